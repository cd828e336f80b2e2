package db

import (
	"context"
	"strings"

	"mycelica/notetree/internal/tree"
)

const qualifiedNoteColumns = `n.id, n.organization_id, n.parent_id, n.title, n.content, n.created_by,
	n.path, n.depth, n.children_count, n.position, n.created_at, n.updated_at`

// BuildFTSQuery turns search terms into an FTS5 query. Each term is quoted so
// FTS5 operators and punctuation inside it are taken literally; terms are
// joined with OR.
func BuildFTSQuery(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// Search returns notes matching any of terms, best matches first. Without
// the FTS5 index it falls back to a case-insensitive LIKE scan.
func (r repo) Search(ctx context.Context, orgID string, terms []string, limit int) ([]tree.Note, error) {
	if len(terms) == 0 {
		return []tree.Note{}, nil
	}
	if !r.fts {
		return r.searchLike(ctx, orgID, terms, limit)
	}

	notes, err := r.queryNotes(ctx, `SELECT `+qualifiedNoteColumns+`
		FROM notes n
		JOIN notes_fts fts ON n.rowid = fts.rowid
		WHERE notes_fts MATCH ? AND n.organization_id = ?
		ORDER BY rank
		LIMIT ?`, BuildFTSQuery(terms), orgID, limit)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []tree.Note{}
	}
	return notes, nil
}

func (r repo) searchLike(ctx context.Context, orgID string, terms []string, limit int) ([]tree.Note, error) {
	var conds []string
	args := []any{orgID}
	for _, t := range terms {
		conds = append(conds, `title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\'`)
		pattern := "%" + escapeLike(t) + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, limit)

	notes, err := r.queryNotes(ctx, `SELECT `+noteColumns+`
		FROM notes WHERE organization_id = ? AND (`+strings.Join(conds, " OR ")+`)
		ORDER BY updated_at DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []tree.Note{}
	}
	return notes, nil
}
