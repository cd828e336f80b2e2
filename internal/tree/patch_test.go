package tree

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatch_FieldCommands(t *testing.T) {
	store := newMemStore()
	now := time.UnixMilli(1000)
	svc := NewService(store, WithIDFunc(seqIDs("A")), WithClock(func() time.Time { return now }))
	mustCreate(t, svc, nil, "draft")

	now = time.UnixMilli(2000)
	n, err := svc.Patch(context.Background(), org, "A",
		RenameTitle{Title: "final"},
		SetContent{Content: "body"},
	)
	require.NoError(t, err)
	assert.Equal(t, "final", n.Title)
	assert.Equal(t, "body", n.Content)
	assert.Equal(t, int64(2000), n.UpdatedAt)

	row := store.snapshot()["A"]
	assert.Equal(t, "final", row.Title)
	assert.Equal(t, int64(1000), row.CreatedAt)
	assert.Equal(t, int64(2000), row.UpdatedAt)
}

func TestPatch_Rejections(t *testing.T) {
	svc, store := newTestService(t, "A", "B")
	mustCreate(t, svc, nil, "A")
	mustCreate(t, svc, nil, "B")
	before := store.snapshot()

	tests := []struct {
		name string
		id   string
		cmds []PatchCommand
		want error
	}{
		{"empty", "A", nil, ErrInvalidInput},
		{"nil command", "A", []PatchCommand{nil}, ErrInvalidInput},
		{"empty title", "A", []PatchCommand{RenameTitle{}}, ErrInvalidInput},
		{"missing note", "nope", []PatchCommand{SetContent{Content: "x"}}, ErrNotFound},
		{"position collision", "A", []PatchCommand{SetPosition{Position: 2000}}, ErrInvalidInput},
		{"later command fails", "A", []PatchCommand{SetContent{Content: "x"}, RenameTitle{}}, ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Patch(context.Background(), org, tt.id, tt.cmds...)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, before, store.snapshot())
}

func TestPatch_SetPositionClamps(t *testing.T) {
	svc, store := newTestService(t, "A", "B")
	mustCreate(t, svc, nil, "A")
	mustCreate(t, svc, nil, "B")

	_, err := svc.Patch(context.Background(), org, "B", SetPosition{Position: -50})
	require.NoError(t, err)
	assert.Equal(t, int32(0), store.snapshot()["B"].Position)

	_, err = svc.Patch(context.Background(), org, "A", SetPosition{Position: MaxPosition + 1})
	require.NoError(t, err)
	assert.Equal(t, int32(MaxPosition), store.snapshot()["A"].Position)

	// Appending after a note at MaxPosition forces a rebalance.
	c, err := svc.Create(context.Background(), CreateParams{OrgID: org, Title: "C"})
	require.NoError(t, err)
	assert.Equal(t, int32(3000), c.Position)
	page, err := svc.ListRoots(context.Background(), org, 0, DefaultRootLimit)
	require.NoError(t, err)
	assert.Equal(t, "B", page.Notes[0].ID)
	assert.Equal(t, int32(1000), page.Notes[0].Position)
	assert.Equal(t, "A", page.Notes[1].ID)
	assert.Equal(t, int32(2000), page.Notes[1].Position)
}

func TestPatch_ReparentMatchesMove(t *testing.T) {
	build := func(t *testing.T) (*Service, *memStore) {
		svc, store := newTestService(t, "A", "B", "C", "X", "Y")
		a := mustCreate(t, svc, nil, "A")
		b := mustCreate(t, svc, &a.ID, "B")
		mustCreate(t, svc, &b.ID, "C")
		x := mustCreate(t, svc, nil, "X")
		mustCreate(t, svc, &x.ID, "Y")
		return svc, store
	}
	x := "X"

	viaMove, moveStore := build(t)
	_, err := viaMove.Move(context.Background(), MoveParams{OrgID: org, NoteID: "B", NewParentID: &x, Anchor: Anchor{Before: "Y"}})
	require.NoError(t, err)

	viaPatch, patchStore := build(t)
	_, err = viaPatch.Patch(context.Background(), org, "B", Reparent{ParentID: &x, Anchor: Anchor{Before: "Y"}})
	require.NoError(t, err)

	assert.Equal(t, moveStore.snapshot(), patchStore.snapshot())
	assert.Equal(t, "X.B.C", patchStore.snapshot()["C"].Path)
}

func TestPatch_ReparentIntoDescendantFails(t *testing.T) {
	svc, store := newTestService(t, "A", "B")
	a := mustCreate(t, svc, nil, "A")
	mustCreate(t, svc, &a.ID, "B")
	before := store.snapshot()

	b := "B"
	_, err := svc.Patch(context.Background(), org, "A", RenameTitle{Title: "renamed"}, Reparent{ParentID: &b})
	assert.ErrorIs(t, err, ErrInvalidMove)
	assert.Equal(t, before, store.snapshot())
}
