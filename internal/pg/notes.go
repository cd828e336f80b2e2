package pg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mycelica/notetree/internal/tree"
)

const noteColumns = `id, organization_id, parent_id, title, content, created_by,
	path, depth, children_count, position, created_at, updated_at`

func scanNote(row pgx.Row) (tree.Note, error) {
	var n tree.Note
	err := row.Scan(
		&n.ID, &n.OrganizationID, &n.ParentID, &n.Title, &n.Content, &n.CreatedBy,
		&n.Path, &n.Depth, &n.ChildrenCount, &n.Position, &n.CreatedAt, &n.UpdatedAt,
	)
	return n, err
}

func (r repo) queryNotes(ctx context.Context, sql string, args ...any) ([]tree.Note, error) {
	rows, err := r.q.Query(ctx, sql, args...)
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

// parentFilter returns the parent_id predicate for parentID, using $n as the
// placeholder. Separate forms keep notes_siblings_idx usable for roots.
func parentFilter(parentID *string, n int) (string, []any) {
	if parentID == nil {
		return "parent_id IS NULL", nil
	}
	return fmt.Sprintf("parent_id = $%d", n), []any{*parentID}
}

func (r repo) GetNote(ctx context.Context, orgID, id string) (*tree.Note, error) {
	n, err := scanNote(r.q.QueryRow(ctx, `SELECT `+noteColumns+`
		FROM notes WHERE organization_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return &n, nil
}

func (r repo) GetChildren(ctx context.Context, orgID string, parentID *string) ([]tree.Note, error) {
	cond, args := parentFilter(parentID, 2)
	return r.queryNotes(ctx, `SELECT `+noteColumns+`
		FROM notes WHERE organization_id = $1 AND `+cond+`
		ORDER BY position, id`, append([]any{orgID}, args...)...)
}

// GetDescendants scans the path range [prefix, prefix with its last byte
// bumped). path uses the C collation, so the range is bytewise and served by
// notes_path_idx.
func (r repo) GetDescendants(ctx context.Context, orgID, prefix string) ([]tree.Note, error) {
	if prefix == "" {
		return r.AllNotes(ctx, orgID)
	}
	upper := []byte(prefix)
	upper[len(upper)-1]++
	return r.queryNotes(ctx, `SELECT `+noteColumns+`
		FROM notes WHERE organization_id = $1 AND path >= $2 AND path < $3
		ORDER BY path`, orgID, prefix, string(upper))
}

func (r repo) CountChildren(ctx context.Context, orgID string, parentID *string) (int, error) {
	cond, args := parentFilter(parentID, 2)
	var n int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM notes WHERE organization_id = $1 AND `+cond,
		append([]any{orgID}, args...)...).Scan(&n)
	return n, mapErr(err)
}

func (r repo) ListRoots(ctx context.Context, orgID string, skip, limit int) ([]tree.Note, error) {
	return r.queryNotes(ctx, `SELECT `+noteColumns+`
		FROM notes WHERE organization_id = $1 AND parent_id IS NULL
		ORDER BY position, id LIMIT $2 OFFSET $3`, orgID, limit, skip)
}

func (r repo) AllNotes(ctx context.Context, orgID string) ([]tree.Note, error) {
	return r.queryNotes(ctx, `SELECT `+noteColumns+`
		FROM notes WHERE organization_id = $1 ORDER BY path`, orgID)
}

func (r repo) FindByIDPrefix(ctx context.Context, orgID, prefix string, limit int) ([]tree.Note, error) {
	return r.queryNotes(ctx, `SELECT `+noteColumns+`
		FROM notes WHERE organization_id = $1 AND id LIKE $2 ESCAPE '\' LIMIT $3`,
		orgID, escapeLike(prefix)+"%", limit)
}

func (r repo) Insert(ctx context.Context, n *tree.Note) error {
	_, err := r.q.Exec(ctx, `INSERT INTO notes (`+noteColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		n.ID, n.OrganizationID, n.ParentID, n.Title, n.Content, n.CreatedBy,
		n.Path, n.Depth, n.ChildrenCount, n.Position, n.CreatedAt, n.UpdatedAt)
	return mapErr(err)
}

func (r repo) Update(ctx context.Context, n *tree.Note) error {
	tag, err := r.q.Exec(ctx, `UPDATE notes
		SET title = $1, content = $2, parent_id = $3, path = $4, depth = $5, position = $6, updated_at = $7
		WHERE organization_id = $8 AND id = $9`,
		n.Title, n.Content, n.ParentID, n.Path, n.Depth, n.Position, n.UpdatedAt,
		n.OrganizationID, n.ID)
	return expectRow(tag, err, n.ID)
}

func (r repo) DeleteMany(ctx context.Context, orgID string, ids []string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM notes WHERE organization_id = $1 AND id = ANY($2)`, orgID, ids)
	return mapErr(err)
}

func (r repo) AdjustChildrenCount(ctx context.Context, orgID, id string, delta int) error {
	tag, err := r.q.Exec(ctx, `UPDATE notes SET children_count = children_count + $1
		WHERE organization_id = $2 AND id = $3`, delta, orgID, id)
	return expectRow(tag, err, id)
}

func (r repo) SetChildrenCount(ctx context.Context, orgID, id string, count int) error {
	tag, err := r.q.Exec(ctx, `UPDATE notes SET children_count = $1
		WHERE organization_id = $2 AND id = $3`, count, orgID, id)
	return expectRow(tag, err, id)
}

// LockNote reads a note with FOR UPDATE. Under READ COMMITTED the row
// returned after the lock is granted is the latest committed version.
func (r repo) LockNote(ctx context.Context, orgID, id string) (*tree.Note, error) {
	n, err := scanNote(r.q.QueryRow(ctx, `SELECT `+noteColumns+`
		FROM notes WHERE organization_id = $1 AND id = $2 FOR UPDATE`, orgID, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return &n, nil
}

// LockTree takes the organization-wide advisory lock held by every reparent
// and subtree delete. Cycle checks then always read committed paths. The
// single-key form lives in a different key space from the sibling locks.
func (r repo) LockTree(ctx context.Context, orgID string) error {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1)::bigint)`, orgID); err != nil {
		return mapErr(fmt.Errorf("advisory lock: %w", err))
	}
	return nil
}

// LockSiblings takes the (organization, parent) advisory lock and then row
// locks on every current sibling. The advisory lock also covers a parent that
// has no children yet.
func (r repo) LockSiblings(ctx context.Context, orgID string, parentID *string) error {
	key := ""
	if parentID != nil {
		key = *parentID
	}
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, orgID, key); err != nil {
		return mapErr(fmt.Errorf("advisory lock: %w", err))
	}
	cond, args := parentFilter(parentID, 2)
	_, err := r.q.Exec(ctx, `SELECT id FROM notes WHERE organization_id = $1 AND `+cond+` FOR UPDATE`,
		append([]any{orgID}, args...)...)
	return mapErr(err)
}

// LockSubtree row-locks the note at path and every descendant.
func (r repo) LockSubtree(ctx context.Context, orgID, path string) error {
	upper := path + "/"
	_, err := r.q.Exec(ctx, `SELECT id FROM notes
		WHERE organization_id = $1 AND (path = $2 OR (path >= $3 AND path < $4))
		FOR UPDATE`, orgID, path, path+tree.PathSeparator, upper)
	return mapErr(err)
}

func expectRow(tag pgconn.CommandTag, err error, id string) error {
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("note %s: %w", id, tree.ErrNotFound)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Search matches any term against title or content, case-insensitively.
func (r repo) Search(ctx context.Context, orgID string, terms []string, limit int) ([]tree.Note, error) {
	if len(terms) == 0 {
		return []tree.Note{}, nil
	}
	patterns := make([]string, len(terms))
	for i, t := range terms {
		patterns[i] = "%" + escapeLike(t) + "%"
	}
	notes, err := r.queryNotes(ctx, `SELECT `+noteColumns+`
		FROM notes
		WHERE organization_id = $1
		  AND (title ILIKE ANY($2) OR content ILIKE ANY($2))
		ORDER BY updated_at DESC
		LIMIT $3`, orgID, patterns, limit)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []tree.Note{}
	}
	return notes, nil
}

// LinkNote records that ownerID refers to noteID. Linking twice is a no-op.
func (r repo) LinkNote(ctx context.Context, orgID, ownerID, noteID, kind string) error {
	if err := tree.ValidateRef(ownerID, kind); err != nil {
		return err
	}
	if _, err := r.GetNote(ctx, orgID, noteID); err != nil {
		return fmt.Errorf("note %s: %w", noteID, err)
	}
	_, err := r.q.Exec(ctx, `INSERT INTO note_refs (owner_id, note_id, organization_id, kind, created_at)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
		ownerID, noteID, orgID, kind, time.Now().UnixMilli())
	return mapErr(err)
}

func (r repo) UnlinkNote(ctx context.Context, orgID, ownerID, noteID string) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM note_refs
		WHERE organization_id = $1 AND owner_id = $2 AND note_id = $3`, orgID, ownerID, noteID)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (r repo) ListRefs(ctx context.Context, orgID, ownerID string) ([]tree.NoteRef, error) {
	rows, err := r.q.Query(ctx, `SELECT owner_id, note_id, kind, created_at
		FROM note_refs WHERE organization_id = $1 AND owner_id = $2
		ORDER BY created_at, note_id`, orgID, ownerID)
	if err != nil {
		return nil, mapErr(err)
	}
	refs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[tree.NoteRef])
	return refs, mapErr(err)
}

// RefDetacher returns the subtree hook that severs note_refs links to notes
// about to be deleted.
func RefDetacher() tree.SubtreeHook {
	return tree.SubtreeHookFunc(func(ctx context.Context, tx tree.Repository, orgID string, ids []string) error {
		t, ok := tx.(*Tx)
		if !ok {
			return fmt.Errorf("ref detacher: unexpected transaction type %T", tx)
		}
		_, err := t.q.Exec(ctx, `DELETE FROM note_refs WHERE organization_id = $1 AND note_id = ANY($2)`, orgID, ids)
		return mapErr(err)
	})
}
