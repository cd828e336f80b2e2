package graph

import (
	"context"

	"mycelica/notetree/internal/tree"
)

// NoteLister is the part of a repository the audit reads.
type NoteLister interface {
	AllNotes(ctx context.Context, orgID string) ([]tree.Note, error)
}

// SnapshotFromStore loads a TreeSnapshot of one organization.
func SnapshotFromStore(ctx context.Context, r NoteLister, orgID string) (*TreeSnapshot, error) {
	notes, err := r.AllNotes(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return FromNotes(notes), nil
}
