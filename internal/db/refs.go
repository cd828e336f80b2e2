package db

import (
	"context"
	"fmt"
	"time"

	"mycelica/notetree/internal/tree"
)

// LinkNote records that ownerID refers to noteID. Linking twice is a no-op.
func (r repo) LinkNote(ctx context.Context, orgID, ownerID, noteID, kind string) error {
	if err := tree.ValidateRef(ownerID, kind); err != nil {
		return err
	}
	if _, err := r.GetNote(ctx, orgID, noteID); err != nil {
		return fmt.Errorf("note %s: %w", noteID, err)
	}
	_, err := r.q.ExecContext(ctx, `INSERT OR IGNORE INTO note_refs
		(owner_id, note_id, organization_id, kind, created_at) VALUES (?, ?, ?, ?, ?)`,
		ownerID, noteID, orgID, kind, time.Now().UnixMilli())
	return mapErr(err)
}

// UnlinkNote removes every link from ownerID to noteID and reports how many
// rows went away.
func (r repo) UnlinkNote(ctx context.Context, orgID, ownerID, noteID string) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM note_refs
		WHERE organization_id = ? AND owner_id = ? AND note_id = ?`, orgID, ownerID, noteID)
	if err != nil {
		return 0, mapErr(err)
	}
	return res.RowsAffected()
}

// ListRefs returns the links held by ownerID, oldest first.
func (r repo) ListRefs(ctx context.Context, orgID, ownerID string) ([]tree.NoteRef, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT owner_id, note_id, kind, created_at
		FROM note_refs WHERE organization_id = ? AND owner_id = ?
		ORDER BY created_at, note_id`, orgID, ownerID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var refs []tree.NoteRef
	for rows.Next() {
		ref, err := scanRef(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, mapErr(rows.Err())
}

// detachRefs deletes every link pointing at ids.
func (r repo) detachRefs(ctx context.Context, orgID string, ids []string) error {
	for start := 0; start < len(ids); start += deleteBatch {
		end := min(start+deleteBatch, len(ids))
		batch := ids[start:end]

		args := make([]any, 0, len(batch)+1)
		args = append(args, orgID)
		for _, id := range batch {
			args = append(args, id)
		}
		query := `DELETE FROM note_refs WHERE organization_id = ? AND note_id IN (` + placeholders(len(batch)) + `)`
		if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

// RefDetacher returns the subtree hook that severs note_refs links to notes
// about to be deleted. It only works with transactions opened by this package.
func RefDetacher() tree.SubtreeHook {
	return tree.SubtreeHookFunc(func(ctx context.Context, tx tree.Repository, orgID string, ids []string) error {
		t, ok := tx.(*Tx)
		if !ok {
			return fmt.Errorf("ref detacher: unexpected transaction type %T", tx)
		}
		return t.detachRefs(ctx, orgID, ids)
	})
}
