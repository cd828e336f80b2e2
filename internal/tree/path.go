package tree

import (
	"context"
	"fmt"
	"strings"
)

// PathSeparator joins ancestor ids in a materialized path.
const PathSeparator = "."

// ComputePath returns the path and depth of a new note with the given id
// under parent. A nil parent makes the note a root.
func ComputePath(parent *Note, orgID, id string) (string, int, error) {
	if parent == nil {
		return id, 0, nil
	}
	if parent.OrganizationID != orgID {
		return "", 0, fmt.Errorf("%w: parent %s belongs to another organization", ErrInvalidReference, parent.ID)
	}
	return parent.Path + PathSeparator + id, parent.Depth + 1, nil
}

// CheckMove rejects placing node under newParent when newParent is node
// itself or one of its descendants. A nil newParent (move to root) is always
// acyclic.
func CheckMove(node, newParent *Note) error {
	if newParent == nil {
		return nil
	}
	if newParent.Path == node.Path || newParent.ID == node.ID {
		return fmt.Errorf("%w: cannot move note %s under itself", ErrInvalidMove, node.ID)
	}
	if node.IsAncestorOf(newParent) {
		return fmt.Errorf("%w: cannot move note %s under its descendant %s", ErrInvalidMove, node.ID, newParent.ID)
	}
	return nil
}

// RewritePath replaces oldPrefix at the start of path with newPrefix.
func RewritePath(path, oldPrefix, newPrefix string) string {
	if !strings.HasPrefix(path, oldPrefix) {
		return path
	}
	return newPrefix + path[len(oldPrefix):]
}

// ReparentSubtree gives node the path and depth it has under newParent and rewrites
// every descendant in a single prefix-scan pass. node itself is only updated
// in memory; the caller persists it. It returns the number of descendants
// rewritten.
func ReparentSubtree(ctx context.Context, tx Repository, node, newParent *Note) (int, error) {
	if err := CheckMove(node, newParent); err != nil {
		return 0, err
	}

	newPath, newDepth, err := ComputePath(newParent, node.OrganizationID, node.ID)
	if err != nil {
		return 0, err
	}
	oldPrefix := node.DescendantPrefix()
	newPrefix := newPath + PathSeparator
	depthDelta := newDepth - node.Depth

	if err := tx.LockSubtree(ctx, node.OrganizationID, node.Path); err != nil {
		return 0, fmt.Errorf("locking subtree of %s: %w", node.ID, err)
	}
	descendants, err := tx.GetDescendants(ctx, node.OrganizationID, oldPrefix)
	if err != nil {
		return 0, fmt.Errorf("loading descendants of %s: %w", node.ID, err)
	}

	for i := range descendants {
		d := &descendants[i]
		d.Path = RewritePath(d.Path, oldPrefix, newPrefix)
		d.Depth += depthDelta
		if err := tx.Update(ctx, d); err != nil {
			return 0, fmt.Errorf("rewriting descendant %s: %w", d.ID, err)
		}
	}

	node.Path = newPath
	node.Depth = newDepth
	return len(descendants), nil
}
