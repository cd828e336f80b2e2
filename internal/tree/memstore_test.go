package tree

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// memStore is an in-memory Store. InTx works on a copy of the rows and swaps
// it in on commit, so a failed transaction leaves nothing behind.
type memStore struct {
	mu    sync.Mutex
	rows  map[string]Note
	fail  func(op string) error
	locks []string
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]Note)}
}

func (m *memStore) InTx(ctx context.Context, fn func(tx Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memStore{rows: make(map[string]Note, len(m.rows)), fail: m.fail}
	for k, v := range m.rows {
		tx.rows[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.rows = tx.rows
	m.locks = append(m.locks, tx.locks...)
	return nil
}

func (m *memStore) check(op string) error {
	if m.fail != nil {
		return m.fail(op)
	}
	return nil
}

func (m *memStore) GetNote(ctx context.Context, orgID, id string) (*Note, error) {
	n, ok := m.rows[id]
	if !ok || n.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	return &n, nil
}

func (m *memStore) filter(orgID string, keep func(Note) bool) []Note {
	var out []Note
	for _, n := range m.rows {
		if n.OrganizationID == orgID && keep(n) {
			out = append(out, n)
		}
	}
	return out
}

func byPosition(notes []Note) {
	sort.Slice(notes, func(i, j int) bool {
		if notes[i].Position != notes[j].Position {
			return notes[i].Position < notes[j].Position
		}
		return notes[i].ID < notes[j].ID
	})
}

func (m *memStore) GetChildren(ctx context.Context, orgID string, parentID *string) ([]Note, error) {
	out := m.filter(orgID, func(n Note) bool { return sameParent(n.ParentID, parentID) })
	byPosition(out)
	return out, nil
}

func (m *memStore) GetDescendants(ctx context.Context, orgID, prefix string) ([]Note, error) {
	out := m.filter(orgID, func(n Note) bool { return strings.HasPrefix(n.Path, prefix) })
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memStore) CountChildren(ctx context.Context, orgID string, parentID *string) (int, error) {
	children, _ := m.GetChildren(ctx, orgID, parentID)
	return len(children), nil
}

func (m *memStore) ListRoots(ctx context.Context, orgID string, skip, limit int) ([]Note, error) {
	roots, _ := m.GetChildren(ctx, orgID, nil)
	if skip >= len(roots) {
		return nil, nil
	}
	roots = roots[skip:]
	if len(roots) > limit {
		roots = roots[:limit]
	}
	return roots, nil
}

func (m *memStore) AllNotes(ctx context.Context, orgID string) ([]Note, error) {
	return m.GetDescendants(ctx, orgID, "")
}

func (m *memStore) FindByIDPrefix(ctx context.Context, orgID, prefix string, limit int) ([]Note, error) {
	out := m.filter(orgID, func(n Note) bool { return strings.HasPrefix(n.ID, prefix) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Insert(ctx context.Context, n *Note) error {
	if err := m.check("insert"); err != nil {
		return err
	}
	if _, ok := m.rows[n.ID]; ok {
		return fmt.Errorf("duplicate id %s", n.ID)
	}
	m.rows[n.ID] = *n
	return nil
}

func (m *memStore) Update(ctx context.Context, n *Note) error {
	if err := m.check("update"); err != nil {
		return err
	}
	cur, ok := m.rows[n.ID]
	if !ok || cur.OrganizationID != n.OrganizationID {
		return ErrNotFound
	}
	next := *n
	next.ChildrenCount = cur.ChildrenCount
	next.CreatedAt = cur.CreatedAt
	m.rows[n.ID] = next
	return nil
}

func (m *memStore) DeleteMany(ctx context.Context, orgID string, ids []string) error {
	if err := m.check("delete"); err != nil {
		return err
	}
	for _, id := range ids {
		if n, ok := m.rows[id]; ok && n.OrganizationID == orgID {
			delete(m.rows, id)
		}
	}
	return nil
}

func (m *memStore) AdjustChildrenCount(ctx context.Context, orgID, id string, delta int) error {
	if err := m.check("adjust"); err != nil {
		return err
	}
	n, ok := m.rows[id]
	if !ok || n.OrganizationID != orgID {
		return ErrNotFound
	}
	n.ChildrenCount += delta
	m.rows[id] = n
	return nil
}

func (m *memStore) SetChildrenCount(ctx context.Context, orgID, id string, count int) error {
	n, ok := m.rows[id]
	if !ok || n.OrganizationID != orgID {
		return ErrNotFound
	}
	n.ChildrenCount = count
	m.rows[id] = n
	return nil
}

func (m *memStore) LockNote(ctx context.Context, orgID, id string) (*Note, error) {
	m.locks = append(m.locks, "note:"+orgID+":"+id)
	return m.GetNote(ctx, orgID, id)
}

func (m *memStore) LockTree(ctx context.Context, orgID string) error {
	m.locks = append(m.locks, "tree:"+orgID)
	return nil
}

func (m *memStore) LockSiblings(ctx context.Context, orgID string, parentID *string) error {
	m.locks = append(m.locks, "siblings:"+orgID+":"+parentLabel(parentID))
	return nil
}

func (m *memStore) LockSubtree(ctx context.Context, orgID, path string) error {
	m.locks = append(m.locks, "subtree:"+orgID+":"+path)
	return nil
}

// setPositions overwrites positions directly, bypassing the allocator.
func (m *memStore) setPositions(positions map[string]int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, pos := range positions {
		n := m.rows[id]
		n.Position = pos
		m.rows[id] = n
	}
}

func (m *memStore) snapshot() map[string]Note {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Note, len(m.rows))
	for k, v := range m.rows {
		out[k] = v
	}
	return out
}

// seqIDs returns an id generator producing the given ids in order, then
// n1, n2, ... once they run out.
func seqIDs(ids ...string) func() string {
	i := 0
	return func() string {
		i++
		if i <= len(ids) {
			return ids[i-1]
		}
		return fmt.Sprintf("n%d", i)
	}
}

var errInjected = errors.New("injected failure")
