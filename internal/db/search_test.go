package db

import (
	"context"
	"testing"

	"mycelica/notetree/internal/tree"
)

func TestBuildFTSQuery_QuotesTerms(t *testing.T) {
	got := BuildFTSQuery([]string{"flag", "parsing"})
	want := `"flag" OR "parsing"`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildFTSQuery_EscapesQuotes(t *testing.T) {
	got := BuildFTSQuery([]string{`say"hi`, "notes.md"})
	want := `"say""hi" OR "notes.md"`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildFTSQuery_Empty(t *testing.T) {
	if got := BuildFTSQuery(nil); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func seedSearch(t *testing.T, d *DB) {
	t.Helper()
	ctx := context.Background()
	for _, n := range []tree.Note{
		{ID: "k", OrganizationID: testOrg, Title: "Kubernetes rollout", Content: "canary steps", Path: "k", Position: 1000},
		{ID: "p", OrganizationID: testOrg, Title: "Postgres tuning", Content: "vacuum settings", Path: "p", Position: 2000},
		{ID: "x", OrganizationID: "org-2", Title: "Kubernetes secrets", Path: "x", Position: 1000},
	} {
		n := n
		if err := d.Insert(ctx, &n); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSearch_FTS(t *testing.T) {
	d := setupTestDB(t)
	if !d.HasFTS() {
		t.Skip("FTS5 not compiled in")
	}
	seedSearch(t, d)
	ctx := context.Background()

	got, err := d.Search(ctx, testOrg, []string{"kubernetes"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(got), []string{"k"}) {
		t.Errorf("kubernetes = %v, want [k]", ids(got))
	}

	got, err = d.Search(ctx, testOrg, []string{"vacuum", "canary"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("vacuum OR canary = %v, want 2 hits", ids(got))
	}

	// The index follows title updates.
	n, _ := d.GetNote(ctx, testOrg, "p")
	n.Title = "Database tuning"
	if err := d.Update(ctx, n); err != nil {
		t.Fatal(err)
	}
	got, _ = d.Search(ctx, testOrg, []string{"postgres"}, 10)
	if len(got) != 0 {
		t.Errorf("stale index hit: %v", ids(got))
	}
	got, _ = d.Search(ctx, testOrg, []string{"database"}, 10)
	if !equalIDs(ids(got), []string{"p"}) {
		t.Errorf("database = %v, want [p]", ids(got))
	}

	// Deleted rows leave the index.
	if err := d.DeleteMany(ctx, testOrg, []string{"k"}); err != nil {
		t.Fatal(err)
	}
	got, _ = d.Search(ctx, testOrg, []string{"canary"}, 10)
	if len(got) != 0 {
		t.Errorf("deleted note still indexed: %v", ids(got))
	}
}

func TestSearch_LikeFallback(t *testing.T) {
	d := setupTestDB(t)
	seedSearch(t, d)
	r := d.repo
	r.fts = false

	got, err := r.Search(context.Background(), testOrg, []string{"TUNING"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(got), []string{"p"}) {
		t.Errorf("got %v, want [p]", ids(got))
	}

	got, err = r.Search(context.Background(), testOrg, []string{"100%"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("wildcard leaked: %v", ids(got))
	}
}
