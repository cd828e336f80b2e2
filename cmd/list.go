package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mycelica/notetree/internal/tree"
)

var (
	rootsSkip   int
	rootsLimit  int
	searchLimit int
	childrenAll bool
)

var childrenCmd = &cobra.Command{
	Use:   "children <note>",
	Short: "List a note's children in display order",
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

		var notes []tree.Note
		if childrenAll {
			notes, err = app.Svc.Subtree(ctx, app.Org(), note.ID)
		} else {
			notes, err = app.Svc.ListChildren(ctx, app.Org(), note.ID)
		}
		if err != nil {
			return err
		}
		return printNotes(cmd.OutOrStdout(), notes, childrenAll)
	},
}

var rootsCmd = &cobra.Command{
	Use:   "roots",
	Short: "List root notes in display order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := OpenApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		page, err := app.Svc.ListRoots(ctx, app.Org(), rootsSkip, rootsLimit)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(w, page)
		}
		if err := printNotes(w, page.Notes, false); err != nil {
			return err
		}
		fmt.Fprintf(w, "(%d-%d of %d)\n", min(rootsSkip+1, page.Total), rootsSkip+len(page.Notes), page.Total)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Search note titles and content",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := OpenApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		notes, err := app.Svc.Search(ctx, app.Org(), strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
		}
		return printNotes(cmd.OutOrStdout(), notes, false)
	},
}

func init() {
	childrenCmd.Flags().BoolVar(&childrenAll, "all", false, "Include every descendant, indented by depth")
	rootsCmd.Flags().IntVar(&rootsSkip, "skip", 0, "Number of roots to skip")
	rootsCmd.Flags().IntVar(&rootsLimit, "limit", tree.DefaultRootLimit, "Maximum roots to return")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum results")
	rootCmd.AddCommand(childrenCmd, rootsCmd, searchCmd)
}

// printNotes lists notes one per line. With indent, each line is indented
// relative to the depth of the first note.
func printNotes(w io.Writer, notes []tree.Note, indent bool) error {
	if jsonOutput {
		if notes == nil {
			notes = []tree.Note{}
		}
		return printJSON(w, notes)
	}
	if len(notes) == 0 {
		fmt.Fprintln(w, "(none)")
		return nil
	}
	base := notes[0].Depth
	for _, n := range notes {
		pad := ""
		if indent {
			pad = strings.Repeat("  ", n.Depth-base)
		}
		children := ""
		if n.ChildrenCount > 0 {
			children = fmt.Sprintf(" [%d]", n.ChildrenCount)
		}
		fmt.Fprintf(w, "%s  %6d  %s%s%s\n", truncID(n.ID), n.Position, pad, truncTitle(n.Title, 60), children)
	}
	return nil
}
