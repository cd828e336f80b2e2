package graph

import "sort"

// WideParent is a note with many direct children
type WideParent struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Children int    `json:"children"`
}

// DepthBucket is one bucket in the depth histogram
type DepthBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// TopologyReport describes the shape of the tree
type TopologyReport struct {
	TotalNotes     int           `json:"total_notes"`
	RootCount      int           `json:"root_count"`
	LeafCount      int           `json:"leaf_count"`
	MaxDepth       int           `json:"max_depth"`
	NumTrees       int           `json:"num_trees"`
	LargestTree    int           `json:"largest_tree"`
	SmallestTree   int           `json:"smallest_tree"`
	DepthHistogram []DepthBucket `json:"depth_histogram"`
	WidestParents  []WideParent  `json:"widest_parents"`
}

// ComputeTopology summarizes tree sizes, depth distribution and the parents
// with the most children. Sizes come from the union of every note with its
// parent, so a parent cycle shows up as a tree with no root.
func ComputeTopology(snap *TreeSnapshot, topN int) *TopologyReport {
	total := len(snap.Nodes)
	if total == 0 {
		return &TopologyReport{DepthHistogram: defaultHistogram()}
	}

	nodeIDs := snap.NodeIDs()
	uf := NewUnionFind(nodeIDs)
	for _, id := range nodeIDs {
		if p := snap.Nodes[id].ParentID; p != nil {
			uf.Union(id, *p)
		}
	}
	components := uf.Components()
	largest, smallest := 0, total
	for _, c := range components {
		largest = max(largest, len(c))
		smallest = min(smallest, len(c))
	}

	buckets := [6]int{}
	maxDepth, leaves := 0, 0
	for _, id := range nodeIDs {
		n := snap.Nodes[id]
		maxDepth = max(maxDepth, n.Depth)
		buckets[depthBucket(n.Depth)]++
		if len(snap.Children[id]) == 0 {
			leaves++
		}
	}
	histogram := defaultHistogram()
	for i := range histogram {
		histogram[i].Count = buckets[i]
	}

	var wide []WideParent
	for _, id := range nodeIDs {
		if c := len(snap.Children[id]); c > 0 {
			wide = append(wide, WideParent{ID: id, Title: snap.Nodes[id].Title, Children: c})
		}
	}
	sort.SliceStable(wide, func(i, j int) bool { return wide[i].Children > wide[j].Children })
	if len(wide) > topN {
		wide = wide[:topN]
	}

	return &TopologyReport{
		TotalNotes:     total,
		RootCount:      len(snap.Children[rootKey]),
		LeafCount:      leaves,
		MaxDepth:       maxDepth,
		NumTrees:       len(components),
		LargestTree:    largest,
		SmallestTree:   smallest,
		DepthHistogram: histogram,
		WidestParents:  wide,
	}
}

func defaultHistogram() []DepthBucket {
	return []DepthBucket{
		{Label: "0"}, {Label: "1"}, {Label: "2-3"},
		{Label: "4-7"}, {Label: "8-15"}, {Label: "16+"},
	}
}

func depthBucket(depth int) int {
	switch {
	case depth <= 0:
		return 0
	case depth == 1:
		return 1
	case depth <= 3:
		return 2
	case depth <= 7:
		return 3
	case depth <= 15:
		return 4
	default:
		return 5
	}
}
