package graph

import (
	"fmt"
	"math"
	"sort"

	"mycelica/notetree/internal/tree"
)

// Violation kinds, one per structural invariant.
const (
	KindPath           = "path"            // path != parent path + "." + id
	KindDepth          = "depth"           // depth != parent depth + 1
	KindDanglingParent = "dangling_parent" // parent_id names a missing note
	KindChildrenCount  = "children_count"  // cached count != live children
	KindPosition       = "position"        // duplicate or out-of-range sibling position
	KindCycle          = "cycle"           // note is its own ancestor
)

// Violation is one broken invariant on one note.
type Violation struct {
	Kind   string `json:"kind"`
	NoteID string `json:"note_id"`
	Detail string `json:"detail"`
}

// HealthBreakdown shows the sub-scores of the health formula
type HealthBreakdown struct {
	Structure float64 `json:"structure"`
	Counts    float64 `json:"counts"`
	Ordering  float64 `json:"ordering"`
	Acyclic   float64 `json:"acyclic"`
}

// AuditReport is the full audit result
type AuditReport struct {
	HealthScore     float64         `json:"health_score"`
	HealthBreakdown HealthBreakdown `json:"health_breakdown"`
	Violations      []Violation     `json:"violations"`
	Topology        *TopologyReport `json:"topology"`
}

// OK reports whether the audit found no violations.
func (r *AuditReport) OK() bool {
	return len(r.Violations) == 0
}

// Count returns the number of violations of kind.
func (r *AuditReport) Count(kind string) int {
	n := 0
	for _, v := range r.Violations {
		if v.Kind == kind {
			n++
		}
	}
	return n
}

// AuditConfig holds audit parameters
type AuditConfig struct {
	TopN int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *AuditConfig {
	return &AuditConfig{TopN: 10}
}

// Audit checks every structural invariant and computes a composite health
// score in [0, 1].
func Audit(snap *TreeSnapshot, config *AuditConfig) *AuditReport {
	var violations []Violation
	add := func(kind, id, format string, args ...any) {
		violations = append(violations, Violation{Kind: kind, NoteID: id, Detail: fmt.Sprintf(format, args...)})
	}

	for _, id := range snap.NodeIDs() {
		n := snap.Nodes[id]

		if snap.Regions[id] == unassigned {
			switch {
			case n.ParentID != nil && snap.Nodes[*n.ParentID] == nil:
				add(KindDanglingParent, id, "parent %s does not exist", *n.ParentID)
			case onCycle(id, snap.Nodes):
				add(KindCycle, id, "note is its own ancestor")
			}
		}

		wantPath, wantDepth := id, 0
		if n.ParentID != nil {
			if p := snap.Nodes[*n.ParentID]; p != nil {
				wantPath, wantDepth = p.Path+tree.PathSeparator+id, p.Depth+1
			} else {
				wantPath, wantDepth = n.Path, n.Depth
			}
		}
		if n.Path != wantPath {
			add(KindPath, id, "path %q, want %q", n.Path, wantPath)
		}
		if n.Depth != wantDepth {
			add(KindDepth, id, "depth %d, want %d", n.Depth, wantDepth)
		}

		if live := len(snap.Children[id]); n.ChildrenCount != live {
			add(KindChildrenCount, id, "children_count %d, live children %d", n.ChildrenCount, live)
		}
		if n.Position < 0 {
			add(KindPosition, id, "negative position %d", n.Position)
		}
	}

	parents := make([]string, 0, len(snap.Children))
	for parent := range snap.Children {
		parents = append(parents, parent)
	}
	sort.Strings(parents)
	for _, parent := range parents {
		ids := snap.Children[parent]
		for i := 1; i < len(ids); i++ {
			if snap.Nodes[ids[i]].Position == snap.Nodes[ids[i-1]].Position {
				add(KindPosition, ids[i], "shares position %d with sibling %s", snap.Nodes[ids[i]].Position, ids[i-1])
			}
		}
	}

	topology := ComputeTopology(snap, config.TopN)
	total := float64(len(snap.Nodes))

	report := &AuditReport{Violations: violations, Topology: topology}
	if violations == nil {
		report.Violations = []Violation{}
	}

	structure, counts, ordering, acyclic := 1.0, 1.0, 1.0, 1.0
	if total > 0 {
		structural := report.Count(KindPath) + report.Count(KindDepth) + report.Count(KindDanglingParent)
		structure = clamp(1.0-math.Min(float64(structural)/total, 0.2)*5.0, 0, 1)
		counts = clamp(1.0-math.Min(float64(report.Count(KindChildrenCount))/total, 0.2)*5.0, 0, 1)
		ordering = clamp(1.0-math.Min(float64(report.Count(KindPosition))/total, 0.2)*5.0, 0, 1)
		if report.Count(KindCycle) > 0 {
			acyclic = 0
		}
	}

	report.HealthScore = 0.35*structure + 0.25*counts + 0.20*ordering + 0.20*acyclic
	report.HealthBreakdown = HealthBreakdown{
		Structure: structure,
		Counts:    counts,
		Ordering:  ordering,
		Acyclic:   acyclic,
	}
	return report
}

// onCycle reports whether following parent links from id returns to id.
func onCycle(id string, nodes map[string]*NodeInfo) bool {
	seen := make(map[string]bool)
	current := id
	for {
		n, ok := nodes[current]
		if !ok || n.ParentID == nil || seen[current] {
			return false
		}
		seen[current] = true
		current = *n.ParentID
		if current == id {
			return true
		}
	}
}

func clamp(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
