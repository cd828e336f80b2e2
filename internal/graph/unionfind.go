package graph

// UnionFind tracks disjoint sets of note ids with path compression and union
// by rank. Linking every note to its parent yields one set per tree; a link
// inside an existing set closes a parent cycle.
type UnionFind struct {
	index  map[string]int
	ids    []string
	parent []int
	rank   []uint8
	size   []int
}

// NewUnionFind creates a new UnionFind where each id is its own set
func NewUnionFind(ids []string) *UnionFind {
	uf := &UnionFind{
		index:  make(map[string]int, len(ids)),
		ids:    make([]string, len(ids)),
		parent: make([]int, len(ids)),
		rank:   make([]uint8, len(ids)),
		size:   make([]int, len(ids)),
	}
	for i, id := range ids {
		uf.index[id] = i
		uf.ids[i] = id
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *UnionFind) root(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

// Find returns the representative id of the set containing id. Unknown ids
// are their own representative.
func (uf *UnionFind) Find(id string) string {
	i, ok := uf.index[id]
	if !ok {
		return id
	}
	return uf.ids[uf.root(i)]
}

// Union merges the sets containing a and b and reports whether they were
// separate. Unknown ids are ignored.
func (uf *UnionFind) Union(a, b string) bool {
	ia, okA := uf.index[a]
	ib, okB := uf.index[b]
	if !okA || !okB {
		return false
	}
	ra, rb := uf.root(ia), uf.root(ib)
	if ra == rb {
		return false
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
	return true
}

// Size returns the number of ids in the set containing id.
func (uf *UnionFind) Size(id string) int {
	i, ok := uf.index[id]
	if !ok {
		return 0
	}
	return uf.size[uf.root(i)]
}

// Components returns every set as a slice of ids, in input order.
func (uf *UnionFind) Components() [][]string {
	groups := make(map[int][]string)
	var order []int
	for i, id := range uf.ids {
		r := uf.root(i)
		if _, ok := groups[r]; !ok {
			order = append(order, r)
		}
		groups[r] = append(groups[r], id)
	}
	result := make([][]string, 0, len(order))
	for _, r := range order {
		result = append(result, groups[r])
	}
	return result
}
