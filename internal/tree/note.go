// Package tree maintains tenant-scoped, ordered note hierarchies.
//
// Ancestry is stored as a materialized path (dot-joined ids ending with the
// note's own id) next to the parent_id foreign key, so descendant checks are
// string-prefix comparisons and subtree loads are indexed range scans. Sibling
// order uses gap-based integer positions that are rebalanced lazily when two
// neighbors get closer than MinGap.
//
// Every mutation runs inside one Store transaction. Create and Move cost is
// proportional to the number of siblings under the target parent (allocation
// may rebalance all of them); Move additionally rewrites every descendant row.
package tree

import "strings"

// Note is one row of the tree.
type Note struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	ParentID       *string `json:"parent_id"`
	Title          string  `json:"title"`
	Content        string  `json:"content"`
	CreatedBy      string  `json:"created_by"`
	Path           string  `json:"path"`
	Depth          int     `json:"depth"`
	ChildrenCount  int     `json:"children_count"`
	Position       int32   `json:"position"`
	CreatedAt      int64   `json:"created_at"` // Unix millis
	UpdatedAt      int64   `json:"updated_at"` // Unix millis
}

// IsRoot reports whether the note has no parent.
func (n *Note) IsRoot() bool {
	return n.ParentID == nil
}

// DescendantPrefix is the path prefix shared by every descendant of n.
func (n *Note) DescendantPrefix() string {
	return n.Path + PathSeparator
}

// IsAncestorOf reports whether n is a strict ancestor of other.
func (n *Note) IsAncestorOf(other *Note) bool {
	return strings.HasPrefix(other.Path, n.DescendantPrefix())
}

// Anchor positions a note relative to its prospective siblings. Empty fields
// are unset; with neither set the note is appended.
type Anchor struct {
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// IsZero reports whether the anchor requests a plain append.
func (a Anchor) IsZero() bool {
	return a.Before == "" && a.After == ""
}

// RootPage is one page of root-level notes plus the total root count.
type RootPage struct {
	Notes []Note `json:"items"`
	Total int    `json:"total"`
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func parentLabel(p *string) string {
	if p == nil {
		return "<root>"
	}
	return *p
}

func cloneID(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
