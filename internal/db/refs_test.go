package db

import (
	"context"
	"errors"
	"testing"

	"mycelica/notetree/internal/tree"
)

func TestLinkNote(t *testing.T) {
	d := setupTestDB(t)
	insertNote(t, d, "a", nil, 1000)
	ctx := context.Background()

	if err := d.LinkNote(ctx, testOrg, "task-1", "a", tree.RefReference); err != nil {
		t.Fatal(err)
	}
	// Linking again is a no-op.
	if err := d.LinkNote(ctx, testOrg, "task-1", "a", tree.RefReference); err != nil {
		t.Fatal(err)
	}
	if err := d.LinkNote(ctx, testOrg, "task-1", "a", tree.RefModified); err != nil {
		t.Fatal(err)
	}

	refs, err := d.ListRefs(ctx, testOrg, "task-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d refs, want 2", len(refs))
	}

	n, err := d.UnlinkNote(ctx, testOrg, "task-1", "a")
	if err != nil || n != 2 {
		t.Errorf("UnlinkNote = %d, %v; want 2", n, err)
	}
}

func TestLinkNote_Rejects(t *testing.T) {
	d := setupTestDB(t)
	insertNote(t, d, "a", nil, 1000)
	ctx := context.Background()

	tests := []struct {
		name   string
		org    string
		owner  string
		note   string
		kind   string
		wantIs error
	}{
		{"unknown kind", testOrg, "task-1", "a", "liked", tree.ErrInvalidInput},
		{"missing owner", testOrg, "", "a", tree.RefReference, tree.ErrInvalidInput},
		{"missing note", testOrg, "task-1", "zzz", tree.RefReference, tree.ErrNotFound},
		{"other org", "org-2", "task-1", "a", tree.RefReference, tree.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.LinkNote(ctx, tt.org, tt.owner, tt.note, tt.kind)
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("err = %v, want %v", err, tt.wantIs)
			}
		})
	}
}

func TestRefDetacher_RequiresSQLiteTx(t *testing.T) {
	err := RefDetacher().OnSubtreeDeleted(context.Background(), nil, testOrg, []string{"a"})
	if err == nil {
		t.Fatal("expected error for foreign transaction type")
	}
}
