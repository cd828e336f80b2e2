package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"mycelica/notetree/internal/tree"
)

// deleteBatch bounds the number of bound parameters per IN (...) statement.
const deleteBatch = 500

func (r repo) queryNotes(ctx context.Context, query string, args ...any) ([]tree.Note, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var notes []tree.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, mapErr(rows.Err())
}

// GetNote returns a single note, or tree.ErrNotFound.
func (r repo) GetNote(ctx context.Context, orgID, id string) (*tree.Note, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+noteColumns+`
		FROM notes WHERE organization_id = ? AND id = ?`, orgID, id)
	n, err := scanNote(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return &n, nil
}

// GetChildren returns the children of parentID ordered by position. parent_id
// IS ? matches NULL for roots and still uses idx_notes_siblings.
func (r repo) GetChildren(ctx context.Context, orgID string, parentID *string) ([]tree.Note, error) {
	return r.queryNotes(ctx, `SELECT `+noteColumns+`
		FROM notes WHERE organization_id = ? AND parent_id IS ?
		ORDER BY position, id`, orgID, parentID)
}

// GetDescendants returns every note whose path starts with prefix, ordered by
// path, as an index range scan over idx_notes_path.
func (r repo) GetDescendants(ctx context.Context, orgID, prefix string) ([]tree.Note, error) {
	if prefix == "" {
		return r.AllNotes(ctx, orgID)
	}
	return r.queryNotes(ctx, `SELECT `+noteColumns+`
		FROM notes WHERE organization_id = ? AND path >= ? AND path < ?
		ORDER BY path`, orgID, prefix, prefixUpperBound(prefix))
}

// prefixUpperBound returns the smallest string greater than every string
// starting with prefix. Paths are ASCII, so bumping the last byte is enough.
func prefixUpperBound(prefix string) string {
	b := []byte(prefix)
	b[len(b)-1]++
	return string(b)
}

// CountChildren counts the live children of parentID.
func (r repo) CountChildren(ctx context.Context, orgID string, parentID *string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes
		WHERE organization_id = ? AND parent_id IS ?`, orgID, parentID).Scan(&n)
	return n, mapErr(err)
}

// ListRoots returns one page of root notes ordered by position.
func (r repo) ListRoots(ctx context.Context, orgID string, skip, limit int) ([]tree.Note, error) {
	return r.queryNotes(ctx, `SELECT `+noteColumns+`
		FROM notes WHERE organization_id = ? AND parent_id IS NULL
		ORDER BY position, id LIMIT ? OFFSET ?`, orgID, limit, skip)
}

// AllNotes returns every note of the organization ordered by path.
func (r repo) AllNotes(ctx context.Context, orgID string) ([]tree.Note, error) {
	return r.queryNotes(ctx, `SELECT `+noteColumns+`
		FROM notes WHERE organization_id = ? ORDER BY path`, orgID)
}

// FindByIDPrefix finds notes whose ID starts with the given prefix.
func (r repo) FindByIDPrefix(ctx context.Context, orgID, prefix string, limit int) ([]tree.Note, error) {
	return r.queryNotes(ctx, `SELECT `+noteColumns+`
		FROM notes WHERE organization_id = ? AND id LIKE ? ESCAPE '\' LIMIT ?`,
		orgID, escapeLike(prefix)+"%", limit)
}

// Insert adds a new note row.
func (r repo) Insert(ctx context.Context, n *tree.Note) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.OrganizationID, n.ParentID, n.Title, n.Content, n.CreatedBy,
		n.Path, n.Depth, n.ChildrenCount, n.Position, n.CreatedAt, n.UpdatedAt)
	return mapErr(err)
}

// Update writes the mutable columns of n. children_count is left alone.
func (r repo) Update(ctx context.Context, n *tree.Note) error {
	res, err := r.q.ExecContext(ctx, `UPDATE notes
		SET title = ?, content = ?, parent_id = ?, path = ?, depth = ?, position = ?, updated_at = ?
		WHERE organization_id = ? AND id = ?`,
		n.Title, n.Content, n.ParentID, n.Path, n.Depth, n.Position, n.UpdatedAt,
		n.OrganizationID, n.ID)
	return expectRow(res, err, n.ID)
}

// DeleteMany removes the given notes in batches.
func (r repo) DeleteMany(ctx context.Context, orgID string, ids []string) error {
	for start := 0; start < len(ids); start += deleteBatch {
		end := min(start+deleteBatch, len(ids))
		batch := ids[start:end]

		args := make([]any, 0, len(batch)+1)
		args = append(args, orgID)
		for _, id := range batch {
			args = append(args, id)
		}
		query := `DELETE FROM notes WHERE organization_id = ? AND id IN (` + placeholders(len(batch)) + `)`
		if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
			return mapErr(fmt.Errorf("deleting batch at %d: %w", start, err))
		}
	}
	return nil
}

// AdjustChildrenCount adds delta to children_count in one statement.
func (r repo) AdjustChildrenCount(ctx context.Context, orgID, id string, delta int) error {
	res, err := r.q.ExecContext(ctx, `UPDATE notes SET children_count = children_count + ?
		WHERE organization_id = ? AND id = ?`, delta, orgID, id)
	return expectRow(res, err, id)
}

// SetChildrenCount overwrites children_count.
func (r repo) SetChildrenCount(ctx context.Context, orgID, id string, count int) error {
	res, err := r.q.ExecContext(ctx, `UPDATE notes SET children_count = ?
		WHERE organization_id = ? AND id = ?`, count, orgID, id)
	return expectRow(res, err, id)
}

// LockNote is a plain read: BEGIN IMMEDIATE already holds the database write
// lock, so no other writer can change the row before commit.
func (r repo) LockNote(ctx context.Context, orgID, id string) (*tree.Note, error) {
	return r.GetNote(ctx, orgID, id)
}

// LockTree is a no-op for the same reason as LockNote.
func (r repo) LockTree(ctx context.Context, orgID string) error {
	return nil
}

// LockSiblings is a no-op: the transaction already holds the write lock.
func (r repo) LockSiblings(ctx context.Context, orgID string, parentID *string) error {
	return nil
}

// LockSubtree is a no-op for the same reason as LockSiblings.
func (r repo) LockSubtree(ctx context.Context, orgID, path string) error {
	return nil
}

func expectRow(res sql.Result, err error, id string) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("note %s: %w", id, tree.ErrNotFound)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
