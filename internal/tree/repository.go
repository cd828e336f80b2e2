package tree

import "context"

// Repository is the storage contract the tree runs against. Every method is
// scoped to a single organization; rows of other organizations are invisible.
// Implementations return ErrNotFound for missing rows and ErrConflict when the
// underlying store reports an isolation failure.
type Repository interface {
	// GetNote loads one note.
	GetNote(ctx context.Context, orgID, id string) (*Note, error)

	// GetChildren returns the immediate children of parentID (nil for roots)
	// in ascending position order.
	GetChildren(ctx context.Context, orgID string, parentID *string) ([]Note, error)

	// GetDescendants returns every note whose path starts with prefix.
	GetDescendants(ctx context.Context, orgID, prefix string) ([]Note, error)

	// CountChildren counts live children of parentID (nil for roots).
	CountChildren(ctx context.Context, orgID string, parentID *string) (int, error)

	// ListRoots returns one page of root notes in ascending position order.
	ListRoots(ctx context.Context, orgID string, skip, limit int) ([]Note, error)

	// AllNotes returns every note of the organization ordered by path.
	AllNotes(ctx context.Context, orgID string) ([]Note, error)

	// FindByIDPrefix returns up to limit notes whose id starts with prefix.
	FindByIDPrefix(ctx context.Context, orgID, prefix string, limit int) ([]Note, error)

	// Insert persists a new note.
	Insert(ctx context.Context, n *Note) error

	// Update writes the mutable columns of n (title, content, parent_id, path,
	// depth, position, updated_at). children_count is never written here.
	Update(ctx context.Context, n *Note) error

	// DeleteMany removes the given notes.
	DeleteMany(ctx context.Context, orgID string, ids []string) error

	// AdjustChildrenCount atomically adds delta to a note's children_count.
	AdjustChildrenCount(ctx context.Context, orgID, id string, delta int) error

	// SetChildrenCount overwrites a note's children_count.
	SetChildrenCount(ctx context.Context, orgID, id string, count int) error

	// LockNote loads one note and locks its row for the rest of the
	// transaction. The returned row reflects every transaction that committed
	// before the lock was granted.
	LockNote(ctx context.Context, orgID, id string) (*Note, error)

	// LockTree serializes structural changes (reparent, subtree delete)
	// within one organization for the rest of the transaction.
	LockTree(ctx context.Context, orgID string) error

	// LockSiblings takes a pessimistic lock over the sibling set of parentID
	// for the rest of the transaction.
	LockSiblings(ctx context.Context, orgID string, parentID *string) error

	// LockSubtree takes a pessimistic lock over every row under path.
	LockSubtree(ctx context.Context, orgID, path string) error
}

// Store is a Repository that can open transactions. Reads outside InTx see
// the last committed state.
type Store interface {
	Repository

	// InTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Repository) error) error
}

// Searcher is implemented by stores with a text index.
type Searcher interface {
	Search(ctx context.Context, orgID string, terms []string, limit int) ([]Note, error)
}

// SubtreeHook is notified, inside the delete transaction and before any row
// is removed, with every id of a subtree about to be deleted. Hooks detach
// their own references to those ids; an error aborts the delete.
type SubtreeHook interface {
	OnSubtreeDeleted(ctx context.Context, tx Repository, orgID string, ids []string) error
}

// SubtreeHookFunc adapts a function to SubtreeHook.
type SubtreeHookFunc func(ctx context.Context, tx Repository, orgID string, ids []string) error

// OnSubtreeDeleted calls f.
func (f SubtreeHookFunc) OnSubtreeDeleted(ctx context.Context, tx Repository, orgID string, ids []string) error {
	return f(ctx, tx, orgID, ids)
}
