package tree

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxTitleLength is the longest accepted title, in characters.
const MaxTitleLength = 200

// Service applies tree mutations and queries against a Store.
type Service struct {
	store  Store
	alloc  *Allocator
	hooks  []SubtreeHook
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithSubtreeHook registers a hook run inside every delete transaction.
func WithSubtreeHook(h SubtreeHook) Option {
	return func(s *Service) { s.hooks = append(s.hooks, h) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDFunc overrides note id generation.
func WithIDFunc(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates a Service over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.alloc = &Allocator{OnRebalance: func(orgID string, parentID *string, n int) {
		rebalancesTotal.Inc()
		s.logger.Info("rebalanced siblings", "org", orgID, "parent", parentLabel(parentID), "siblings", n)
	}}
	return s
}

// CreateParams describes a new note.
type CreateParams struct {
	OrgID     string
	ParentID  *string
	Title     string
	Content   string
	CreatedBy string
}

// Create inserts a note at the end of its parent's children.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Note, error) {
	var created *Note
	err := s.mutate(ctx, "create", p.OrgID, "", func(ctx context.Context, tx Repository) error {
		if err := validateTitle(p.Title); err != nil {
			return err
		}

		var parent *Note
		if p.ParentID != nil {
			var err error
			parent, err = tx.LockNote(ctx, p.OrgID, *p.ParentID)
			if err != nil {
				return fmt.Errorf("parent %s: %w", *p.ParentID, err)
			}
		}

		id := s.newID()
		if err := validateID(id); err != nil {
			return err
		}
		path, depth, err := ComputePath(parent, p.OrgID, id)
		if err != nil {
			return err
		}

		if err := tx.LockSiblings(ctx, p.OrgID, p.ParentID); err != nil {
			return fmt.Errorf("locking siblings: %w", err)
		}
		pos, err := s.alloc.Allocate(ctx, tx, p.OrgID, p.ParentID, Anchor{}, "")
		if err != nil {
			return err
		}

		now := s.now().UnixMilli()
		n := &Note{
			ID:             id,
			OrganizationID: p.OrgID,
			ParentID:       cloneID(p.ParentID),
			Title:          p.Title,
			Content:        p.Content,
			CreatedBy:      p.CreatedBy,
			Path:           path,
			Depth:          depth,
			Position:       pos,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Insert(ctx, n); err != nil {
			return fmt.Errorf("inserting note: %w", err)
		}
		if parent != nil {
			if err := tx.AdjustChildrenCount(ctx, p.OrgID, parent.ID, 1); err != nil {
				return fmt.Errorf("incrementing children of %s: %w", parent.ID, err)
			}
		}
		created = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// MoveParams describes a reparent and/or reorder. A nil NewParentID moves the
// note to the root level.
type MoveParams struct {
	OrgID       string
	NoteID      string
	NewParentID *string
	Anchor      Anchor
}

// Move places a note under NewParentID at the position requested by Anchor,
// rewriting the paths of its whole subtree when the parent changes.
func (s *Service) Move(ctx context.Context, p MoveParams) (*Note, error) {
	var moved *Note
	err := s.mutate(ctx, "move", p.OrgID, p.NoteID, func(ctx context.Context, tx Repository) error {
		if err := tx.LockTree(ctx, p.OrgID); err != nil {
			return fmt.Errorf("locking tree: %w", err)
		}
		n, err := tx.LockNote(ctx, p.OrgID, p.NoteID)
		if err != nil {
			return fmt.Errorf("note %s: %w", p.NoteID, err)
		}
		if err := s.relocate(ctx, tx, n, p.NewParentID, p.Anchor); err != nil {
			return err
		}
		moved = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// relocate is the only code path that changes a note's parent. Move and the
// Reparent patch command both end up here. The caller holds the tree lock and
// n's row lock, so n is current. Every validation runs before the first write.
func (s *Service) relocate(ctx context.Context, tx Repository, n *Note, newParentID *string, anchor Anchor) error {
	orgID := n.OrganizationID

	var newParent *Note
	if newParentID != nil {
		var err error
		newParent, err = tx.LockNote(ctx, orgID, *newParentID)
		if err != nil {
			return fmt.Errorf("new parent %s: %w", *newParentID, err)
		}
	}
	if err := CheckMove(n, newParent); err != nil {
		return err
	}
	for _, id := range []string{anchor.Before, anchor.After} {
		if id == "" {
			continue
		}
		a, err := tx.GetNote(ctx, orgID, id)
		if err != nil {
			return fmt.Errorf("anchor %s: %w", id, err)
		}
		if a.ID == n.ID {
			return fmt.Errorf("%w: note %s cannot be its own anchor", ErrInvalidReference, n.ID)
		}
		if !sameParent(a.ParentID, newParentID) {
			return fmt.Errorf("%w: anchor %s is not a child of %s", ErrInvalidReference, id, parentLabel(newParentID))
		}
	}

	parentChanged := !sameParent(n.ParentID, newParentID)
	if parentChanged && n.ParentID != nil {
		if _, err := tx.LockNote(ctx, orgID, *n.ParentID); err != nil {
			return fmt.Errorf("old parent %s: %w", *n.ParentID, err)
		}
	}

	if err := tx.LockSiblings(ctx, orgID, newParentID); err != nil {
		return fmt.Errorf("locking siblings: %w", err)
	}
	if parentChanged {
		if err := tx.LockSiblings(ctx, orgID, n.ParentID); err != nil {
			return fmt.Errorf("locking old siblings: %w", err)
		}
	}

	pos, err := s.alloc.Allocate(ctx, tx, orgID, newParentID, anchor, n.ID)
	if err != nil {
		return err
	}

	if parentChanged {
		if err := tx.LockSubtree(ctx, orgID, n.Path); err != nil {
			return fmt.Errorf("locking subtree: %w", err)
		}
		rewritten, err := ReparentSubtree(ctx, tx, n, newParent)
		if err != nil {
			return err
		}
		subtreeRewriteRows.Observe(float64(rewritten))

		if n.ParentID != nil {
			if err := tx.AdjustChildrenCount(ctx, orgID, *n.ParentID, -1); err != nil {
				return fmt.Errorf("decrementing children of %s: %w", *n.ParentID, err)
			}
		}
		if newParent != nil {
			if err := tx.AdjustChildrenCount(ctx, orgID, newParent.ID, 1); err != nil {
				return fmt.Errorf("incrementing children of %s: %w", newParent.ID, err)
			}
		}
		s.logger.Debug("reparented note", "org", orgID, "note", n.ID,
			"from", parentLabel(n.ParentID), "to", parentLabel(newParentID), "descendants", rewritten)
	}

	n.ParentID = cloneID(newParentID)
	n.Position = pos
	n.UpdatedAt = s.now().UnixMilli()
	if err := tx.Update(ctx, n); err != nil {
		return fmt.Errorf("updating note %s: %w", n.ID, err)
	}
	return nil
}

// Delete removes a note and its entire subtree and returns the removed ids,
// the note itself first.
func (s *Service) Delete(ctx context.Context, orgID, noteID string) ([]string, error) {
	var deleted []string
	err := s.mutate(ctx, "delete", orgID, noteID, func(ctx context.Context, tx Repository) error {
		if err := tx.LockTree(ctx, orgID); err != nil {
			return fmt.Errorf("locking tree: %w", err)
		}
		n, err := tx.LockNote(ctx, orgID, noteID)
		if err != nil {
			return fmt.Errorf("note %s: %w", noteID, err)
		}
		if err := tx.LockSubtree(ctx, orgID, n.Path); err != nil {
			return fmt.Errorf("locking subtree: %w", err)
		}
		descendants, err := tx.GetDescendants(ctx, orgID, n.DescendantPrefix())
		if err != nil {
			return fmt.Errorf("loading subtree: %w", err)
		}

		ids := make([]string, 0, len(descendants)+1)
		ids = append(ids, n.ID)
		for _, d := range descendants {
			ids = append(ids, d.ID)
		}

		for _, h := range s.hooks {
			if err := h.OnSubtreeDeleted(ctx, tx, orgID, ids); err != nil {
				return fmt.Errorf("detaching references: %w", err)
			}
		}
		if err := tx.DeleteMany(ctx, orgID, ids); err != nil {
			return fmt.Errorf("deleting subtree: %w", err)
		}

		// Recount instead of decrementing so earlier drift is repaired.
		if n.ParentID != nil {
			count, err := tx.CountChildren(ctx, orgID, n.ParentID)
			if err != nil {
				return fmt.Errorf("counting children of %s: %w", *n.ParentID, err)
			}
			if err := tx.SetChildrenCount(ctx, orgID, *n.ParentID, count); err != nil {
				return fmt.Errorf("updating children of %s: %w", *n.ParentID, err)
			}
		}
		deleted = ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// RepairCounts recomputes every children_count of the organization and
// returns the ids whose cached value had drifted.
func (s *Service) RepairCounts(ctx context.Context, orgID string) ([]string, error) {
	var fixed []string
	err := s.mutate(ctx, "repair", orgID, "", func(ctx context.Context, tx Repository) error {
		notes, err := tx.AllNotes(ctx, orgID)
		if err != nil {
			return err
		}
		actual := make(map[string]int, len(notes))
		for _, n := range notes {
			if n.ParentID != nil {
				actual[*n.ParentID]++
			}
		}
		for _, n := range notes {
			if n.ChildrenCount == actual[n.ID] {
				continue
			}
			if err := tx.SetChildrenCount(ctx, orgID, n.ID, actual[n.ID]); err != nil {
				return fmt.Errorf("repairing %s: %w", n.ID, err)
			}
			s.logger.Info("repaired children count", "org", orgID, "note", n.ID,
				"cached", n.ChildrenCount, "actual", actual[n.ID])
			fixed = append(fixed, n.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fixed, nil
}

// mutate runs fn in a transaction with tracing, metrics and error
// classification.
func (s *Service) mutate(ctx context.Context, op, orgID, noteID string, fn func(ctx context.Context, tx Repository) error) (err error) {
	ctx, span := tracer.Start(ctx, "tree.Service."+op, trace.WithAttributes(
		attribute.String("notetree.org", orgID),
		attribute.String("notetree.note", noteID),
	))
	start := time.Now()
	defer func() {
		mutationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		mutationsTotal.WithLabelValues(op, errorKind(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if orgID == "" {
		return fmt.Errorf("%w: organization is required", ErrInvalidInput)
	}

	err = s.store.InTx(ctx, func(tx Repository) error {
		return fn(ctx, tx)
	})
	err = classify(err)
	switch {
	case err == nil:
		s.logger.Debug("mutation committed", "op", op, "org", orgID, "note", noteID)
	case errorKind(err) == "storage_failure":
		s.logger.Error("mutation failed", "op", op, "org", orgID, "note", noteID, "err", err)
	default:
		s.logger.Debug("mutation rejected", "op", op, "org", orgID, "note", noteID, "err", err)
	}
	return err
}

// validateID rejects ids that would break path prefix matching.
func validateID(id string) error {
	if id == "" || strings.Contains(id, PathSeparator) {
		return fmt.Errorf("%w: note id %q must be non-empty and free of %q", ErrInvalidInput, id, PathSeparator)
	}
	return nil
}

func validateTitle(title string) error {
	n := utf8.RuneCountInString(title)
	if n == 0 || n > MaxTitleLength {
		return fmt.Errorf("%w: title must be 1-%d characters, got %d", ErrInvalidInput, MaxTitleLength, n)
	}
	return nil
}
