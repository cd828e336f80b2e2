package tree

import (
	"context"
	"fmt"
)

// PatchCommand is one field update applied by Service.Patch. The set of
// commands is closed; a parent change can only be expressed as Reparent.
type PatchCommand interface {
	apply(ctx context.Context, s *Service, tx Repository, n *Note) error
}

// RenameTitle replaces the title.
type RenameTitle struct {
	Title string
}

func (c RenameTitle) apply(_ context.Context, _ *Service, _ Repository, n *Note) error {
	if err := validateTitle(c.Title); err != nil {
		return err
	}
	n.Title = c.Title
	return nil
}

// SetContent replaces the content blob.
type SetContent struct {
	Content string
}

func (c SetContent) apply(_ context.Context, _ *Service, _ Repository, n *Note) error {
	n.Content = c.Content
	return nil
}

// SetPosition assigns an explicit position, clamped to [0, MaxPosition]. The
// clamped value must not be held by a sibling.
type SetPosition struct {
	Position int64
}

func (c SetPosition) apply(ctx context.Context, _ *Service, tx Repository, n *Note) error {
	pos := c.Position
	if pos < 0 {
		pos = 0
	}
	if pos > MaxPosition {
		pos = MaxPosition
	}

	if err := tx.LockSiblings(ctx, n.OrganizationID, n.ParentID); err != nil {
		return fmt.Errorf("locking siblings: %w", err)
	}
	siblings, err := loadSiblings(ctx, tx, n.OrganizationID, n.ParentID, n.ID)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		if int64(sib.Position) == pos {
			return fmt.Errorf("%w: position %d is held by sibling %s", ErrInvalidInput, pos, sib.ID)
		}
	}
	n.Position = int32(pos)
	return nil
}

// Reparent moves the note under ParentID (nil for root) at Anchor. It runs
// through the same code path as Service.Move.
type Reparent struct {
	ParentID *string
	Anchor   Anchor
}

func (c Reparent) apply(ctx context.Context, s *Service, tx Repository, n *Note) error {
	return s.relocate(ctx, tx, n, c.ParentID, c.Anchor)
}

// Patch applies commands in order to one note in a single transaction.
func (s *Service) Patch(ctx context.Context, orgID, noteID string, cmds ...PatchCommand) (*Note, error) {
	var patched *Note
	err := s.mutate(ctx, "patch", orgID, noteID, func(ctx context.Context, tx Repository) error {
		if len(cmds) == 0 {
			return fmt.Errorf("%w: empty patch", ErrInvalidInput)
		}
		for _, c := range cmds {
			if _, ok := c.(Reparent); ok {
				if err := tx.LockTree(ctx, orgID); err != nil {
					return fmt.Errorf("locking tree: %w", err)
				}
				break
			}
		}
		n, err := tx.LockNote(ctx, orgID, noteID)
		if err != nil {
			return fmt.Errorf("note %s: %w", noteID, err)
		}
		for _, c := range cmds {
			if c == nil {
				return fmt.Errorf("%w: nil patch command", ErrInvalidInput)
			}
			if err := c.apply(ctx, s, tx, n); err != nil {
				return err
			}
		}
		n.UpdatedAt = s.now().UnixMilli()
		if err := tx.Update(ctx, n); err != nil {
			return fmt.Errorf("updating note %s: %w", n.ID, err)
		}
		patched = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return patched, nil
}
