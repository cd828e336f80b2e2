package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mycelica/notetree/internal/tree"
)

var (
	linkKind   string
	linkRemove bool
)

var linkCmd = &cobra.Command{
	Use:   "link <owner> <note>",
	Short: "Record that an external owner referenced or modified a note",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := OpenApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		owner := args[0]
		note, err := ResolveNote(ctx, app.Svc, app.Org(), args[1])
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if linkRemove {
			n, err := app.Refs.UnlinkNote(ctx, app.Org(), owner, note.ID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(w, map[string]any{"removed": n})
			}
			fmt.Fprintf(w, "Removed %d links %s -> %s\n", n, owner, truncID(note.ID))
			return nil
		}

		if err := app.Refs.LinkNote(ctx, app.Org(), owner, note.ID, linkKind); err != nil {
			return err
		}
		app.Logger.Debug("linked note", "owner", owner, "note", note.ID, "kind", linkKind)
		if jsonOutput {
			return printJSON(w, tree.NoteRef{OwnerID: owner, NoteID: note.ID, Kind: linkKind})
		}
		fmt.Fprintf(w, "Linked %s -[%s]-> %s %s\n", owner, linkKind, truncID(note.ID), note.Title)
		return nil
	},
}

var refsCmd = &cobra.Command{
	Use:   "refs <owner>",
	Short: "List the notes an owner is linked to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := OpenApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		refs, err := app.Refs.ListRefs(ctx, app.Org(), args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if jsonOutput {
			if refs == nil {
				refs = []tree.NoteRef{}
			}
			return printJSON(w, refs)
		}
		if len(refs) == 0 {
			fmt.Fprintln(w, "(none)")
			return nil
		}
		for _, r := range refs {
			title := "?"
			if n, err := app.Svc.Get(ctx, app.Org(), r.NoteID); err == nil {
				title = truncTitle(n.Title, 50)
			}
			fmt.Fprintf(w, "%-9s %s  %s  %s\n", r.Kind, truncID(r.NoteID), formatMillis(r.CreatedAt), title)
		}
		return nil
	},
}

func init() {
	linkCmd.Flags().StringVar(&linkKind, "kind", tree.RefReference, "Link kind: reference or modified")
	linkCmd.Flags().BoolVar(&linkRemove, "remove", false, "Remove every link between owner and note")
	rootCmd.AddCommand(linkCmd, refsCmd)
}
