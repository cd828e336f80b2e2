package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"mycelica/notetree/internal/tree"
)

var (
	createParent  string
	createContent string
	createBy      string

	moveParent string
	moveRoot   bool
	moveBefore string
	moveAfter  string

	patchTitle    string
	patchContent  string
	patchPosition int64
	patchParent   string
	patchRoot     bool
	patchBefore   string
	patchAfter    string

	deleteYes bool
)

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a note at the end of its parent's children",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := OpenApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		params := tree.CreateParams{
			OrgID:     app.Org(),
			Title:     args[0],
			Content:   createContent,
			CreatedBy: createBy,
		}
		if createParent != "" {
			parent, err := ResolveNote(ctx, app.Svc, app.Org(), createParent)
			if err != nil {
				return err
			}
			params.ParentID = &parent.ID
		}

		note, err := app.Svc.Create(ctx, params)
		if err != nil {
			return err
		}
		return printNote(cmd.OutOrStdout(), note)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <note>",
	Short: "Show a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := OpenApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		note, err := ResolveNote(ctx, app.Svc, app.Org(), args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(w, note)
		}
		fmt.Fprintf(w, "ID:       %s\n", note.ID)
		fmt.Fprintf(w, "Title:    %s\n", note.Title)
		fmt.Fprintf(w, "Parent:   %s\n", parentOrRoot(note.ParentID))
		fmt.Fprintf(w, "Path:     %s\n", note.Path)
		fmt.Fprintf(w, "Depth:    %d\n", note.Depth)
		fmt.Fprintf(w, "Position: %d\n", note.Position)
		fmt.Fprintf(w, "Children: %d\n", note.ChildrenCount)
		if note.CreatedBy != "" {
			fmt.Fprintf(w, "Author:   %s\n", note.CreatedBy)
		}
		fmt.Fprintf(w, "Created:  %s\n", formatMillis(note.CreatedAt))
		fmt.Fprintf(w, "Updated:  %s\n", formatMillis(note.UpdatedAt))
		if note.Content != "" {
			fmt.Fprintf(w, "\n%s\n", note.Content)
		}
		return nil
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <note>",
	Short: "Reparent and/or reorder a note",
	Long: `Move places a note under --parent (or at the root with --root), before
or after a sibling. Without --parent or --root the note stays under its
current parent and is only reordered.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if moveParent != "" && moveRoot {
			return errors.New("--parent and --root are mutually exclusive")
		}
		ctx := cmd.Context()
		app, err := OpenApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		note, err := ResolveNote(ctx, app.Svc, app.Org(), args[0])
		if err != nil {
			return err
		}
		target, err := resolveTarget(ctx, app, note, moveParent, moveRoot)
		if err != nil {
			return err
		}
		anchor, err := resolveAnchor(ctx, app, moveBefore, moveAfter)
		if err != nil {
			return err
		}

		moved, err := app.Svc.Move(ctx, tree.MoveParams{
			OrgID:       app.Org(),
			NoteID:      note.ID,
			NewParentID: target,
			Anchor:      anchor,
		})
		if err != nil {
			return err
		}
		return printNote(cmd.OutOrStdout(), moved)
	},
}

var patchCmd = &cobra.Command{
	Use:   "patch <note>",
	Short: "Update a note's title, content, position or parent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := OpenApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		note, err := ResolveNote(ctx, app.Svc, app.Org(), args[0])
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		opts := patchOptions{}
		if flags.Changed("title") {
			opts.Title = &patchTitle
		}
		if flags.Changed("content") {
			opts.Content = &patchContent
		}
		if flags.Changed("position") {
			opts.Position = &patchPosition
		}
		if patchParent != "" || patchRoot || patchBefore != "" || patchAfter != "" {
			if patchParent != "" && patchRoot {
				return errors.New("--parent and --root are mutually exclusive")
			}
			target, err := resolveTarget(ctx, app, note, patchParent, patchRoot)
			if err != nil {
				return err
			}
			anchor, err := resolveAnchor(ctx, app, patchBefore, patchAfter)
			if err != nil {
				return err
			}
			opts.Reparent = &tree.Reparent{ParentID: target, Anchor: anchor}
		}

		cmds, err := buildPatch(opts)
		if err != nil {
			return err
		}
		patched, err := app.Svc.Patch(ctx, app.Org(), note.ID, cmds...)
		if err != nil {
			return err
		}
		return printNote(cmd.OutOrStdout(), patched)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <note>",
	Short: "Delete a note and its entire subtree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := OpenApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		note, err := ResolveNote(ctx, app.Svc, app.Org(), args[0])
		if err != nil {
			return err
		}
		if note.ChildrenCount > 0 && !deleteYes {
			return fmt.Errorf("note %s has %d children; pass --yes to delete the whole subtree",
				truncID(note.ID), note.ChildrenCount)
		}

		ids, err := app.Svc.Delete(ctx, app.Org(), note.ID)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(w, map[string]any{"deleted": ids})
		}
		fmt.Fprintf(w, "Deleted %d notes (%s %s)\n", len(ids), truncID(note.ID), note.Title)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createParent, "parent", "", "Parent note (default: root level)")
	createCmd.Flags().StringVar(&createContent, "content", "", "Note content")
	createCmd.Flags().StringVar(&createBy, "by", "", "Author recorded as created_by")

	moveCmd.Flags().StringVar(&moveParent, "parent", "", "New parent note")
	moveCmd.Flags().BoolVar(&moveRoot, "root", false, "Move to the root level")
	moveCmd.Flags().StringVar(&moveBefore, "before", "", "Place before this sibling")
	moveCmd.Flags().StringVar(&moveAfter, "after", "", "Place after this sibling")

	patchCmd.Flags().StringVar(&patchTitle, "title", "", "New title")
	patchCmd.Flags().StringVar(&patchContent, "content", "", "New content")
	patchCmd.Flags().Int64Var(&patchPosition, "position", 0, "Explicit position (clamped to the storable range)")
	patchCmd.Flags().StringVar(&patchParent, "parent", "", "New parent note")
	patchCmd.Flags().BoolVar(&patchRoot, "root", false, "Move to the root level")
	patchCmd.Flags().StringVar(&patchBefore, "before", "", "Place before this sibling")
	patchCmd.Flags().StringVar(&patchAfter, "after", "", "Place after this sibling")

	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Delete notes that have children")

	rootCmd.AddCommand(createCmd, showCmd, moveCmd, patchCmd, deleteCmd)
}

// patchOptions holds the patch fields that were set on the command line.
type patchOptions struct {
	Title    *string
	Content  *string
	Position *int64
	Reparent *tree.Reparent
}

// buildPatch turns options into patch commands. A reparent runs first so a
// position set in the same patch applies among the new siblings.
func buildPatch(o patchOptions) ([]tree.PatchCommand, error) {
	if o.Position != nil && o.Reparent != nil && !o.Reparent.Anchor.IsZero() {
		return nil, errors.New("--position cannot be combined with --before or --after")
	}
	var cmds []tree.PatchCommand
	if o.Reparent != nil {
		cmds = append(cmds, *o.Reparent)
	}
	if o.Title != nil {
		cmds = append(cmds, tree.RenameTitle{Title: *o.Title})
	}
	if o.Content != nil {
		cmds = append(cmds, tree.SetContent{Content: *o.Content})
	}
	if o.Position != nil {
		cmds = append(cmds, tree.SetPosition{Position: *o.Position})
	}
	if len(cmds) == 0 {
		return nil, errors.New("nothing to patch")
	}
	return cmds, nil
}

// resolveTarget returns the destination parent id: the resolved --parent,
// nil for --root, or the note's current parent when neither is given.
func resolveTarget(ctx context.Context, app *App, note *tree.Note, parentRef string, root bool) (*string, error) {
	switch {
	case root:
		return nil, nil
	case parentRef != "":
		parent, err := ResolveNote(ctx, app.Svc, app.Org(), parentRef)
		if err != nil {
			return nil, err
		}
		return &parent.ID, nil
	default:
		return note.ParentID, nil
	}
}

func resolveAnchor(ctx context.Context, app *App, before, after string) (tree.Anchor, error) {
	var anchor tree.Anchor
	if before != "" {
		n, err := ResolveNote(ctx, app.Svc, app.Org(), before)
		if err != nil {
			return anchor, err
		}
		anchor.Before = n.ID
	}
	if after != "" {
		n, err := ResolveNote(ctx, app.Svc, app.Org(), after)
		if err != nil {
			return anchor, err
		}
		anchor.After = n.ID
	}
	return anchor, nil
}

func printNote(w io.Writer, n *tree.Note) error {
	if jsonOutput {
		return printJSON(w, n)
	}
	fmt.Fprintf(w, "%s  pos=%d depth=%d  %s\n", n.ID, n.Position, n.Depth, n.Title)
	return nil
}

func parentOrRoot(p *string) string {
	if p == nil {
		return "(root)"
	}
	return *p
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
