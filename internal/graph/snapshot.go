// Package graph audits one organization's note tree for structural damage.
// It works on a detached snapshot, so it can examine rows that violate the
// invariants the tree package maintains.
package graph

import (
	"sort"

	"mycelica/notetree/internal/tree"
)

// NodeInfo is a lightweight note representation decoupled from storage types
type NodeInfo struct {
	ID            string
	Title         string
	ParentID      *string
	Path          string
	Depth         int
	ChildrenCount int
	Position      int32
	UpdatedAt     int64
}

// TreeSnapshot holds one organization's notes with precomputed child lists
// and a region map.
type TreeSnapshot struct {
	Nodes    map[string]*NodeInfo
	Children map[string][]string // parent id ("" for roots) -> ids by position
	Regions  map[string]string   // node id -> root ancestor
}

// rootKey is the Children key of root-level notes.
const rootKey = ""

// NewSnapshot builds a TreeSnapshot from raw nodes. Children whose parent is
// missing from nodes are listed under their dangling parent id.
func NewSnapshot(nodes []*NodeInfo) *TreeSnapshot {
	nodeMap := make(map[string]*NodeInfo, len(nodes))
	children := make(map[string][]string)
	for _, n := range nodes {
		nodeMap[n.ID] = n
	}
	for _, n := range nodes {
		key := rootKey
		if n.ParentID != nil {
			key = *n.ParentID
		}
		children[key] = append(children[key], n.ID)
	}
	for key, ids := range children {
		sort.Slice(ids, func(i, j int) bool {
			a, b := nodeMap[ids[i]], nodeMap[ids[j]]
			if a.Position != b.Position {
				return a.Position < b.Position
			}
			return a.ID < b.ID
		})
		children[key] = ids
	}

	return &TreeSnapshot{
		Nodes:    nodeMap,
		Children: children,
		Regions:  computeRegions(nodeMap),
	}
}

// FromNotes converts tree notes into a snapshot.
func FromNotes(notes []tree.Note) *TreeSnapshot {
	nodes := make([]*NodeInfo, 0, len(notes))
	for _, n := range notes {
		var parentID *string
		if n.ParentID != nil {
			p := *n.ParentID
			parentID = &p
		}
		nodes = append(nodes, &NodeInfo{
			ID:            n.ID,
			Title:         n.Title,
			ParentID:      parentID,
			Path:          n.Path,
			Depth:         n.Depth,
			ChildrenCount: n.ChildrenCount,
			Position:      n.Position,
			UpdatedAt:     n.UpdatedAt,
		})
	}
	return NewSnapshot(nodes)
}

// FilterToRegion returns a new snapshot containing regionNodeID and its
// descendants, found by following parent links.
func (s *TreeSnapshot) FilterToRegion(regionNodeID string) *TreeSnapshot {
	included := make(map[string]bool)
	for id := range s.Nodes {
		isDescendantOf(id, regionNodeID, s.Nodes, included, make(map[string]bool))
	}

	var filtered []*NodeInfo
	for id, isDesc := range included {
		if isDesc {
			filtered = append(filtered, s.Nodes[id])
		}
	}
	return NewSnapshot(filtered)
}

// NodeIDs returns a sorted list of all node IDs (for deterministic output)
func (s *TreeSnapshot) NodeIDs() []string {
	ids := make([]string, 0, len(s.Nodes))
	for id := range s.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// isDescendantOf follows parent links from nodeID. visiting guards against
// parent cycles in damaged data.
func isDescendantOf(nodeID, ancestorID string, nodes map[string]*NodeInfo, cache, visiting map[string]bool) bool {
	if nodeID == ancestorID {
		cache[nodeID] = true
		return true
	}
	if cached, ok := cache[nodeID]; ok {
		return cached
	}
	node, ok := nodes[nodeID]
	if !ok || node.ParentID == nil || visiting[nodeID] {
		cache[nodeID] = false
		return false
	}
	visiting[nodeID] = true
	result := isDescendantOf(*node.ParentID, ancestorID, nodes, cache, visiting)
	cache[nodeID] = result
	return result
}

// unassigned is the region of notes whose parent chain is broken or cyclic.
const unassigned = "unassigned"

func computeRegions(nodes map[string]*NodeInfo) map[string]string {
	regions := make(map[string]string, len(nodes))
	for id := range nodes {
		regions[id] = findRootAncestor(id, nodes)
	}
	return regions
}

func findRootAncestor(nodeID string, nodes map[string]*NodeInfo) string {
	current := nodeID
	visited := make(map[string]bool)
	for {
		if visited[current] {
			return unassigned
		}
		visited[current] = true
		node, ok := nodes[current]
		if !ok {
			return unassigned
		}
		if node.ParentID == nil {
			return current
		}
		current = *node.ParentID
	}
}
