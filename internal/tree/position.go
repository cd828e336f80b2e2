package tree

import (
	"context"
	"fmt"
	"math"
)

// Sibling ordering constants.
const (
	// Gap is the spacing between consecutive siblings after append or rebalance.
	Gap = 1000
	// MinGap is the smallest distance tolerated between a new position and
	// its neighbors before the sibling set is rebalanced.
	MinGap = 100
	// MaxPosition is the largest storable position.
	MaxPosition = math.MaxInt32

	maxAllocAttempts = 2
)

// Allocator assigns sibling positions. It must run inside a transaction that
// holds the sibling lock of the target parent.
type Allocator struct {
	// OnRebalance, when set, is called after every rebalance with the number
	// of siblings renumbered.
	OnRebalance func(orgID string, parentID *string, siblings int)
}

// Allocate returns a position under parentID honoring anchor. exclude is the
// id of a note being moved within the same sibling set; it is not treated as
// a neighbor. When the computed position lands too close to a neighbor the
// siblings are rebalanced and the allocation retried once.
func (a *Allocator) Allocate(ctx context.Context, tx Repository, orgID string, parentID *string, anchor Anchor, exclude string) (int32, error) {
	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		siblings, err := loadSiblings(ctx, tx, orgID, parentID, exclude)
		if err != nil {
			return 0, err
		}

		pos, ok, err := placeAmong(siblings, anchor)
		if err != nil {
			return 0, err
		}
		if ok {
			return pos, nil
		}

		if err := a.rebalance(ctx, tx, orgID, parentID, siblings); err != nil {
			return 0, err
		}
	}
	return 0, fmt.Errorf("%w: no position available under %s after %d attempts",
		ErrStorageFailure, parentLabel(parentID), maxAllocAttempts)
}

func loadSiblings(ctx context.Context, tx Repository, orgID string, parentID *string, exclude string) ([]Note, error) {
	all, err := tx.GetChildren(ctx, orgID, parentID)
	if err != nil {
		return nil, fmt.Errorf("loading siblings under %s: %w", parentLabel(parentID), err)
	}
	if exclude == "" {
		return all, nil
	}
	siblings := all[:0]
	for _, n := range all {
		if n.ID != exclude {
			siblings = append(siblings, n)
		}
	}
	return siblings, nil
}

// placeAmong computes a position against siblings sorted by position. ok is
// false when the result violates MinGap or the storable range and the set
// needs a rebalance first.
//
// Midpoints use integer division, so a new note always sits closer to its
// lower neighbor. That bias is harmless: MinGap triggers a rebalance long
// before the two neighbors could collide.
func placeAmong(siblings []Note, anchor Anchor) (int32, bool, error) {
	if anchor.IsZero() {
		if len(siblings) == 0 {
			return Gap, true, nil
		}
		pos := int64(siblings[len(siblings)-1].Position) + Gap
		return checked(pos, nil, nil)
	}

	beforeIdx, afterIdx := -1, -1
	for i := range siblings {
		switch siblings[i].ID {
		case anchor.Before:
			beforeIdx = i
		case anchor.After:
			afterIdx = i
		}
	}
	if anchor.Before != "" && beforeIdx < 0 {
		return 0, false, fmt.Errorf("%w: anchor %s is not a sibling", ErrInvalidReference, anchor.Before)
	}
	if anchor.After != "" && afterIdx < 0 {
		return 0, false, fmt.Errorf("%w: anchor %s is not a sibling", ErrInvalidReference, anchor.After)
	}

	switch {
	case anchor.Before != "" && anchor.After != "":
		// Both anchors must be adjacent, otherwise the midpoint could land on
		// a sibling sitting between them.
		if afterIdx+1 != beforeIdx {
			return 0, false, fmt.Errorf("%w: anchors %s and %s are not adjacent siblings", ErrInvalidReference, anchor.After, anchor.Before)
		}
		lo, hi := int64(siblings[afterIdx].Position), int64(siblings[beforeIdx].Position)
		return checked((lo+hi)/2, &lo, &hi)

	case anchor.Before != "":
		hi := int64(siblings[beforeIdx].Position)
		if beforeIdx == 0 {
			return checked(hi/2, nil, &hi)
		}
		lo := int64(siblings[beforeIdx-1].Position)
		return checked((lo+hi)/2, &lo, &hi)

	default:
		lo := int64(siblings[afterIdx].Position)
		if afterIdx == len(siblings)-1 {
			return checked(lo+Gap, &lo, nil)
		}
		hi := int64(siblings[afterIdx+1].Position)
		return checked((lo+hi)/2, &lo, &hi)
	}
}

func checked(pos int64, lo, hi *int64) (int32, bool, error) {
	if pos < 0 || pos > MaxPosition {
		return 0, false, nil
	}
	if lo != nil && pos-*lo < MinGap {
		return 0, false, nil
	}
	if hi != nil && *hi-pos < MinGap {
		return 0, false, nil
	}
	return int32(pos), true, nil
}

// rebalance renumbers siblings to (i+1)*Gap, keeping their current order.
func (a *Allocator) rebalance(ctx context.Context, tx Repository, orgID string, parentID *string, siblings []Note) error {
	if int64(len(siblings))*Gap > MaxPosition {
		return fmt.Errorf("%w: %d siblings under %s exceed the position range",
			ErrStorageFailure, len(siblings), parentLabel(parentID))
	}
	for i := range siblings {
		s := &siblings[i]
		want := int32((i + 1) * Gap)
		if s.Position == want {
			continue
		}
		s.Position = want
		if err := tx.Update(ctx, s); err != nil {
			return fmt.Errorf("rebalancing %s: %w", s.ID, err)
		}
	}
	if a.OnRebalance != nil {
		a.OnRebalance(orgID, parentID, len(siblings))
	}
	return nil
}
