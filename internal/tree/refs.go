package tree

import (
	"context"
	"fmt"
)

// Reference kinds.
const (
	RefReference = "reference" // the owner read the note
	RefModified  = "modified"  // the owner created or changed the note
)

// NoteRef links an external owner (a task, a run, another system's record)
// to a note. Links to a note are severed when its subtree is deleted.
type NoteRef struct {
	OwnerID   string `json:"owner_id"`
	NoteID    string `json:"note_id"`
	Kind      string `json:"kind"`
	CreatedAt int64  `json:"created_at"` // Unix millis
}

// RefStore is implemented by stores that keep note references.
type RefStore interface {
	LinkNote(ctx context.Context, orgID, ownerID, noteID, kind string) error
	UnlinkNote(ctx context.Context, orgID, ownerID, noteID string) (int64, error)
	ListRefs(ctx context.Context, orgID, ownerID string) ([]NoteRef, error)
}

// ValidateRef checks the owner and kind of a new link.
func ValidateRef(ownerID, kind string) error {
	if ownerID == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	switch kind {
	case RefReference, RefModified:
		return nil
	default:
		return fmt.Errorf("%w: unknown reference kind %q", ErrInvalidInput, kind)
	}
}
