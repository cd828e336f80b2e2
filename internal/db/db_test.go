package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"mycelica/notetree/internal/tree"
)

const testOrg = "org-1"

// setupTestDB opens an in-memory database with the full schema.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := OpenDB(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func insertNote(t *testing.T, d *DB, id string, parent *tree.Note, position int32) *tree.Note {
	t.Helper()
	n := &tree.Note{
		ID:             id,
		OrganizationID: testOrg,
		Title:          "note " + id,
		Path:           id,
		Position:       position,
		CreatedAt:      1,
		UpdatedAt:      1,
	}
	if parent != nil {
		n.ParentID = &parent.ID
		n.Path = parent.Path + "." + id
		n.Depth = parent.Depth + 1
	}
	if err := d.Insert(context.Background(), n); err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
	return n
}

func ids(notes []tree.Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGetNote_NotFound(t *testing.T) {
	d := setupTestDB(t)
	insertNote(t, d, "a", nil, 1000)

	if _, err := d.GetNote(context.Background(), testOrg, "missing"); !errors.Is(err, tree.ErrNotFound) {
		t.Errorf("missing id: err = %v, want ErrNotFound", err)
	}
	if _, err := d.GetNote(context.Background(), "org-2", "a"); !errors.Is(err, tree.ErrNotFound) {
		t.Errorf("other org: err = %v, want ErrNotFound", err)
	}
}

func TestGetNote_RoundTrip(t *testing.T) {
	d := setupTestDB(t)
	root := insertNote(t, d, "a", nil, 1000)
	insertNote(t, d, "b", root, 2000)

	got, err := d.GetNote(context.Background(), testOrg, "b")
	if err != nil {
		t.Fatal(err)
	}
	if got.ParentID == nil || *got.ParentID != "a" {
		t.Errorf("parent = %v, want a", got.ParentID)
	}
	if got.Path != "a.b" || got.Depth != 1 || got.Position != 2000 {
		t.Errorf("got path=%q depth=%d position=%d", got.Path, got.Depth, got.Position)
	}

	r, err := d.GetNote(context.Background(), testOrg, "a")
	if err != nil {
		t.Fatal(err)
	}
	if r.ParentID != nil {
		t.Errorf("root parent = %v, want nil", *r.ParentID)
	}
}

func TestGetChildren_OrderedByPosition(t *testing.T) {
	d := setupTestDB(t)
	p := insertNote(t, d, "p", nil, 1000)
	insertNote(t, d, "c3", p, 3000)
	insertNote(t, d, "c1", p, 1000)
	insertNote(t, d, "c2", p, 2000)
	insertNote(t, d, "r2", nil, 500)

	children, err := d.GetChildren(context.Background(), testOrg, &p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(children); !equalIDs(got, []string{"c1", "c2", "c3"}) {
		t.Errorf("children = %v", got)
	}

	roots, err := d.GetChildren(context.Background(), testOrg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(roots); !equalIDs(got, []string{"r2", "p"}) {
		t.Errorf("roots = %v", got)
	}

	count, err := d.CountChildren(context.Background(), testOrg, &p.ID)
	if err != nil || count != 3 {
		t.Errorf("CountChildren = %d, %v; want 3", count, err)
	}
}

func TestGetDescendants_PrefixRange(t *testing.T) {
	d := setupTestDB(t)
	a := insertNote(t, d, "a", nil, 1000)
	b := insertNote(t, d, "b", a, 1000)
	insertNote(t, d, "c", b, 1000)
	// "ab" shares a string prefix with "a" but is not a descendant.
	insertNote(t, d, "ab", nil, 2000)
	insertNote(t, d, "a-x", nil, 3000)

	got, err := d.GetDescendants(context.Background(), testOrg, a.Path+".")
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(got), []string{"b", "c"}) {
		t.Errorf("descendants = %v, want [b c]", ids(got))
	}
}

func TestListRoots_Page(t *testing.T) {
	d := setupTestDB(t)
	for i, id := range []string{"r1", "r2", "r3", "r4"} {
		insertNote(t, d, id, nil, int32((i+1)*1000))
	}
	page, err := d.ListRoots(context.Background(), testOrg, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(page), []string{"r2", "r3"}) {
		t.Errorf("page = %v", ids(page))
	}
}

func TestFindByIDPrefix_EscapesWildcards(t *testing.T) {
	d := setupTestDB(t)
	insertNote(t, d, "abc_1", nil, 1000)
	insertNote(t, d, "abcx1", nil, 2000)

	got, err := d.FindByIDPrefix(context.Background(), testOrg, "abc_", 10)
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(got), []string{"abc_1"}) {
		t.Errorf("got %v, want [abc_1]", ids(got))
	}
}

func TestChildrenCounters(t *testing.T) {
	d := setupTestDB(t)
	insertNote(t, d, "a", nil, 1000)
	ctx := context.Background()

	if err := d.AdjustChildrenCount(ctx, testOrg, "a", 2); err != nil {
		t.Fatal(err)
	}
	if err := d.AdjustChildrenCount(ctx, testOrg, "a", -1); err != nil {
		t.Fatal(err)
	}
	n, _ := d.GetNote(ctx, testOrg, "a")
	if n.ChildrenCount != 1 {
		t.Errorf("children_count = %d, want 1", n.ChildrenCount)
	}

	if err := d.SetChildrenCount(ctx, testOrg, "missing", 0); !errors.Is(err, tree.ErrNotFound) {
		t.Errorf("missing: err = %v, want ErrNotFound", err)
	}

	// Update must not overwrite the counter.
	n.ChildrenCount = 99
	n.Title = "renamed"
	if err := d.Update(ctx, n); err != nil {
		t.Fatal(err)
	}
	n, _ = d.GetNote(ctx, testOrg, "a")
	if n.ChildrenCount != 1 || n.Title != "renamed" {
		t.Errorf("after update: count=%d title=%q", n.ChildrenCount, n.Title)
	}
}

func TestDeleteMany_Batches(t *testing.T) {
	d := setupTestDB(t)
	var all []string
	for i := 0; i < deleteBatch+20; i++ {
		id := fmt.Sprintf("n%03d", i)
		insertNote(t, d, id, nil, int32(i))
		all = append(all, id)
	}
	insertNote(t, d, "keep", nil, 1_000_000)

	if err := d.DeleteMany(context.Background(), testOrg, all); err != nil {
		t.Fatal(err)
	}
	rest, err := d.AllNotes(context.Background(), testOrg)
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(rest), []string{"keep"}) {
		t.Errorf("remaining = %v", ids(rest))
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	d := setupTestDB(t)
	boom := errors.New("boom")

	err := d.InTx(context.Background(), func(tx tree.Repository) error {
		n := &tree.Note{ID: "a", OrganizationID: testOrg, Title: "a", Path: "a", Position: 1000}
		if err := tx.Insert(context.Background(), n); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := d.GetNote(context.Background(), testOrg, "a"); !errors.Is(err, tree.ErrNotFound) {
		t.Errorf("row survived rollback: %v", err)
	}
}

func TestInTx_BusyIsConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.db")
	holder, err := OpenDB(path)
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()
	waiter, err := OpenDB(path, WithBusyTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer waiter.Close()

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- holder.InTx(context.Background(), func(tree.Repository) error {
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err = waiter.InTx(context.Background(), func(tree.Repository) error { return nil })
	close(release)
	if !errors.Is(err, tree.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
	if err := <-done; err != nil {
		t.Errorf("holder: %v", err)
	}
}
