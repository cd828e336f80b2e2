package db

import "mycelica/notetree/internal/tree"

const noteColumns = `id, organization_id, parent_id, title, content, created_by,
	path, depth, children_count, position, created_at, updated_at`

// scanNote scans a row into a Note. The row must have noteColumns in order.
func scanNote(scanner interface{ Scan(dest ...any) error }) (tree.Note, error) {
	var n tree.Note
	err := scanner.Scan(
		&n.ID, &n.OrganizationID, &n.ParentID, &n.Title, &n.Content, &n.CreatedBy,
		&n.Path, &n.Depth, &n.ChildrenCount, &n.Position, &n.CreatedAt, &n.UpdatedAt,
	)
	return n, err
}

func scanRef(scanner interface{ Scan(dest ...any) error }) (tree.NoteRef, error) {
	var r tree.NoteRef
	err := scanner.Scan(&r.OwnerID, &r.NoteID, &r.Kind, &r.CreatedAt)
	return r, err
}
