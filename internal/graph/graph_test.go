package graph

import (
	"context"
	"testing"

	"mycelica/notetree/internal/tree"
)

func strPtr(s string) *string { return &s }

// node builds a consistent NodeInfo under parent (nil for a root).
func node(id string, parent *NodeInfo, position int32) *NodeInfo {
	n := &NodeInfo{ID: id, Title: "Note " + id, Path: id, Position: position}
	if parent != nil {
		n.ParentID = strPtr(parent.ID)
		n.Path = parent.Path + "." + id
		n.Depth = parent.Depth + 1
		parent.ChildrenCount++
	}
	return n
}

// healthyTree returns a, a.b, a.c, a.b.d and a second root e.
func healthyTree() []*NodeInfo {
	a := node("a", nil, 1000)
	b := node("b", a, 1000)
	c := node("c", a, 2000)
	d := node("d", b, 1000)
	e := node("e", nil, 2000)
	return []*NodeInfo{a, b, c, d, e}
}

// --- Snapshot Tests ---

func TestSnapshot_ChildrenSortedByPosition(t *testing.T) {
	a := node("a", nil, 1000)
	z := node("z", a, 1000)
	y := node("y", a, 3000)
	x := node("x", a, 2000)
	snap := NewSnapshot([]*NodeInfo{y, a, x, z})

	got := snap.Children["a"]
	want := []string{"z", "x", "y"}
	if len(got) != len(want) {
		t.Fatalf("children = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("children[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSnapshot_Regions(t *testing.T) {
	snap := NewSnapshot(healthyTree())
	for id, want := range map[string]string{"a": "a", "b": "a", "d": "a", "e": "e"} {
		if got := snap.Regions[id]; got != want {
			t.Errorf("region(%s) = %s, want %s", id, got, want)
		}
	}
}

func TestSnapshot_FilterToRegion(t *testing.T) {
	snap := NewSnapshot(healthyTree())
	sub := snap.FilterToRegion("b")
	ids := sub.NodeIDs()
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "d" {
		t.Errorf("filtered = %v, want [b d]", ids)
	}
}

func TestSnapshot_FilterToRegion_Cycle(t *testing.T) {
	x := &NodeInfo{ID: "x", Path: "y.x", ParentID: strPtr("y")}
	y := &NodeInfo{ID: "y", Path: "x.y", ParentID: strPtr("x")}
	sub := NewSnapshot([]*NodeInfo{x, y}).FilterToRegion("r")
	if len(sub.Nodes) != 0 {
		t.Errorf("expected empty region, got %v", sub.NodeIDs())
	}
}

func TestSnapshotFromStore(t *testing.T) {
	lister := listerFunc(func(ctx context.Context, orgID string) ([]tree.Note, error) {
		return []tree.Note{
			{ID: "a", OrganizationID: orgID, Path: "a", ChildrenCount: 1, Position: 1000},
			{ID: "b", OrganizationID: orgID, ParentID: strPtr("a"), Path: "a.b", Depth: 1, Position: 1000},
		}, nil
	})
	snap, err := SnapshotFromStore(context.Background(), lister, "org")
	if err != nil {
		t.Fatal(err)
	}
	if r := Audit(snap, DefaultConfig()); !r.OK() {
		t.Errorf("unexpected violations: %+v", r.Violations)
	}
}

type listerFunc func(ctx context.Context, orgID string) ([]tree.Note, error)

func (f listerFunc) AllNotes(ctx context.Context, orgID string) ([]tree.Note, error) {
	return f(ctx, orgID)
}

// --- UnionFind Tests ---

func TestUnionFind(t *testing.T) {
	uf := NewUnionFind([]string{"a", "b", "c", "d"})
	if !uf.Union("a", "b") {
		t.Error("first union should merge")
	}
	if uf.Union("b", "a") {
		t.Error("repeated union should report no merge")
	}
	uf.Union("c", "d")
	if uf.Find("a") != uf.Find("b") || uf.Find("a") == uf.Find("c") {
		t.Error("unexpected set membership")
	}
	if uf.Size("b") != 2 {
		t.Errorf("Size(b) = %d, want 2", uf.Size("b"))
	}
	if uf.Union("a", "zzz") {
		t.Error("union with unknown id should be ignored")
	}
	if got := len(uf.Components()); got != 2 {
		t.Errorf("components = %d, want 2", got)
	}
}

// --- Topology Tests ---

func TestTopology_EmptyTree(t *testing.T) {
	r := ComputeTopology(NewSnapshot(nil), 10)
	if r.TotalNotes != 0 || r.NumTrees != 0 {
		t.Errorf("empty tree should have zeros, got %+v", r)
	}
	if len(r.DepthHistogram) != 6 {
		t.Errorf("histogram buckets = %d, want 6", len(r.DepthHistogram))
	}
}

func TestTopology_Shape(t *testing.T) {
	r := ComputeTopology(NewSnapshot(healthyTree()), 1)
	if r.TotalNotes != 5 || r.RootCount != 2 || r.NumTrees != 2 {
		t.Errorf("got total=%d roots=%d trees=%d", r.TotalNotes, r.RootCount, r.NumTrees)
	}
	if r.LargestTree != 4 || r.SmallestTree != 1 {
		t.Errorf("largest=%d smallest=%d, want 4 and 1", r.LargestTree, r.SmallestTree)
	}
	if r.MaxDepth != 2 || r.LeafCount != 3 {
		t.Errorf("maxDepth=%d leaves=%d, want 2 and 3", r.MaxDepth, r.LeafCount)
	}
	if len(r.WidestParents) != 1 || r.WidestParents[0].ID != "a" || r.WidestParents[0].Children != 2 {
		t.Errorf("widest = %+v, want a with 2", r.WidestParents)
	}
	if r.DepthHistogram[0].Count != 2 || r.DepthHistogram[1].Count != 2 || r.DepthHistogram[2].Count != 1 {
		t.Errorf("histogram = %+v", r.DepthHistogram)
	}
}

// --- Audit Tests ---

func TestAudit_Healthy(t *testing.T) {
	r := Audit(NewSnapshot(healthyTree()), DefaultConfig())
	if !r.OK() {
		t.Fatalf("violations: %+v", r.Violations)
	}
	if r.HealthScore != 1.0 {
		t.Errorf("health = %f, want 1.0", r.HealthScore)
	}
}

func TestAudit_EmptyTree(t *testing.T) {
	r := Audit(NewSnapshot(nil), DefaultConfig())
	if !r.OK() || r.HealthScore != 1.0 {
		t.Errorf("empty tree: ok=%v health=%f", r.OK(), r.HealthScore)
	}
	if r.Violations == nil {
		t.Error("violations should be an empty slice, not nil")
	}
}

func TestAudit_DetectsViolations(t *testing.T) {
	tests := []struct {
		name   string
		damage func(nodes map[string]*NodeInfo)
		kind   string
		noteID string
	}{
		{"stale path", func(n map[string]*NodeInfo) { n["d"].Path = "a.c.d" }, KindPath, "d"},
		{"wrong depth", func(n map[string]*NodeInfo) { n["c"].Depth = 3 }, KindDepth, "c"},
		{"drifted count", func(n map[string]*NodeInfo) { n["a"].ChildrenCount = 7 }, KindChildrenCount, "a"},
		{"duplicate position", func(n map[string]*NodeInfo) { n["c"].Position = 1000 }, KindPosition, "c"},
		{"negative position", func(n map[string]*NodeInfo) { n["e"].Position = -1 }, KindPosition, "e"},
		{"dangling parent", func(n map[string]*NodeInfo) { n["e"].ParentID = strPtr("gone") }, KindDanglingParent, "e"},
		{"cycle", func(n map[string]*NodeInfo) { n["a"].ParentID = strPtr("d") }, KindCycle, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes := healthyTree()
			byID := make(map[string]*NodeInfo, len(nodes))
			for _, n := range nodes {
				byID[n.ID] = n
			}
			tt.damage(byID)

			r := Audit(NewSnapshot(nodes), DefaultConfig())
			found := false
			for _, v := range r.Violations {
				if v.Kind == tt.kind && v.NoteID == tt.noteID {
					found = true
				}
			}
			if !found {
				t.Errorf("no %s violation on %s; got %+v", tt.kind, tt.noteID, r.Violations)
			}
			if r.HealthScore >= 1.0 {
				t.Errorf("health = %f, want < 1", r.HealthScore)
			}
		})
	}
}

func TestAudit_CycleZeroesAcyclicScore(t *testing.T) {
	nodes := healthyTree()
	nodes[0].ParentID = strPtr("d")
	r := Audit(NewSnapshot(nodes), DefaultConfig())
	if r.HealthBreakdown.Acyclic != 0 {
		t.Errorf("acyclic = %f, want 0", r.HealthBreakdown.Acyclic)
	}
	if r.Count(KindCycle) != 3 {
		t.Errorf("cycle violations = %d, want 3 (a, b, d)", r.Count(KindCycle))
	}
}
