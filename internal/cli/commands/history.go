package commands

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/chaoticbest/vibehub/internal/orchestrator"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <slug>",
	Short: "Show an app's release history",
	Long: `History lists every release of an app, newest first, including failed
attempts. Releases whose artifacts were pruned from disk are marked;
they can no longer be rolled back to.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		app, entries, err := rt.engine.History(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return err
		}

		cmd.Printf("%s (%s)\n", app.Slug, app.RepoURL)
		if len(entries) == 0 {
			cmd.Println("No releases yet.")
			return nil
		}

		renderHistoryAsTable(cmd, entries)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "show only the newest N releases (0 = all)")
}

func renderHistoryAsTable(cmd *cobra.Command, entries []orchestrator.HistoryEntry) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"RELEASE", "COMMIT", "STATUS", "STARTED", "DURATION", ""})
	for _, entry := range entries {
		marker := ""
		if entry.IsCurrent {
			marker = "* current"
		} else if !entry.OnDisk {
			marker = "pruned"
		}
		t.AppendRow(table.Row{
			entry.Release.Number,
			shortSHA(entry.Release.CommitSHA),
			entry.Release.Status,
			entry.Release.StartedAt.Format(time.RFC3339),
			durationColumn(entry),
			marker,
		})
	}
	t.Render()
}

func durationColumn(entry orchestrator.HistoryEntry) string {
	if entry.Release.CompletedAt == nil {
		return "-"
	}
	return entry.Release.CompletedAt.Sub(entry.Release.StartedAt).Round(time.Second).String()
}
