package cmd

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"mycelica/notetree/internal/graph"
)

var (
	checkRegion string
	checkTopN   int
	checkRepair bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Audit tree invariants: paths, depths, child counts, ordering, cycles",
	Long: `Audit loads every note of the organization and verifies the structural
invariants. With --repair, drifted children counts are recomputed first.
Exits non-zero when violations remain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := OpenApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		var repaired []string
		if checkRepair {
			repaired, err = app.Svc.RepairCounts(ctx, app.Org())
			if err != nil {
				return fmt.Errorf("repairing counts: %w", err)
			}
		}

		snap, err := graph.SnapshotFromStore(ctx, app.Svc, app.Org())
		if err != nil {
			return fmt.Errorf("loading tree: %w", err)
		}
		if checkRegion != "" {
			note, err := ResolveNote(ctx, app.Svc, app.Org(), checkRegion)
			if err != nil {
				return err
			}
			snap = snap.FilterToRegion(note.ID)
		}

		report := graph.Audit(snap, &graph.AuditConfig{TopN: checkTopN})

		w := cmd.OutOrStdout()
		if jsonOutput {
			if err := printJSON(w, struct {
				*graph.AuditReport
				Repaired []string `json:"repaired"`
			}{report, nonNil(repaired)}); err != nil {
				return err
			}
		} else {
			if checkRepair {
				fmt.Fprintf(w, "\n  Repaired %d children counts\n", len(repaired))
			}
			printAudit(w, report, snap)
		}

		if !report.OK() {
			return fmt.Errorf("%d violations found", len(report.Violations))
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkRegion, "region", "", "Scope the audit to this note and its descendants")
	checkCmd.Flags().IntVar(&checkTopN, "top-n", 10, "Number of widest parents to show")
	checkCmd.Flags().BoolVar(&checkRepair, "repair", false, "Recompute drifted children counts before auditing")
	rootCmd.AddCommand(checkCmd)
}

func printAudit(w io.Writer, report *graph.AuditReport, snap *graph.TreeSnapshot) {
	// Health bar
	barLen := int(report.HealthScore * 20)
	if barLen > 20 {
		barLen = 20
	}
	bar := strings.Repeat("█", barLen) + strings.Repeat("░", 20-barLen)
	fmt.Fprintf(w, "\n  Tree Health: %.0f%%  [%s]\n", report.HealthScore*100, bar)
	fmt.Fprintf(w, "  breakdown: structure=%.2f counts=%.2f ordering=%.2f acyclic=%.2f\n\n",
		report.HealthBreakdown.Structure,
		report.HealthBreakdown.Counts,
		report.HealthBreakdown.Ordering,
		report.HealthBreakdown.Acyclic)

	// Topology
	t := report.Topology
	fmt.Fprintln(w, "  TOPOLOGY")
	fmt.Fprintln(w, "  ────────────────────────────────────────")
	fmt.Fprintf(w, "  Notes: %d  Roots: %d  Leaves: %d  Max depth: %d\n", t.TotalNotes, t.RootCount, t.LeafCount, t.MaxDepth)
	fmt.Fprintf(w, "  Trees: %d  Largest: %d  Smallest: %d\n", t.NumTrees, t.LargestTree, t.SmallestTree)

	fmt.Fprintln(w, "\n  Depth distribution:")
	for _, b := range t.DepthHistogram {
		if b.Count > 0 {
			barWidth := int(math.Log2(float64(b.Count))) + 2
			fmt.Fprintf(w, "    %5s: %4d  %s\n", b.Label, b.Count, strings.Repeat("=", barWidth))
		}
	}

	if len(t.WidestParents) > 0 {
		fmt.Fprintln(w, "\n  Widest parents:")
		for _, p := range t.WidestParents {
			fmt.Fprintf(w, "    %s children=%d  %s\n", truncID(p.ID), p.Children, truncTitle(p.Title, 40))
		}
	}

	if len(report.Violations) > 0 {
		fmt.Fprintln(w, "\n  VIOLATIONS")
		fmt.Fprintln(w, "  ────────────────────────────────────────")
		limit := 20
		if len(report.Violations) < limit {
			limit = len(report.Violations)
		}
		for _, v := range report.Violations[:limit] {
			title := "?"
			if n := snap.Nodes[v.NoteID]; n != nil {
				title = truncTitle(n.Title, 30)
			}
			fmt.Fprintf(w, "    %-15s %s (%s)  %s\n", v.Kind, truncID(v.NoteID), title, v.Detail)
		}
		if len(report.Violations) > limit {
			fmt.Fprintf(w, "    ... and %d more\n", len(report.Violations)-limit)
		}
	}

	fmt.Fprintln(w)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
