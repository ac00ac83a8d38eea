package commands

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/chaoticbest/vibehub/internal/orchestrator"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all apps on the hub",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		statuses, err := rt.engine.List(cmd.Context())
		if err != nil {
			return err
		}

		if len(statuses) == 0 {
			cmd.Println("No apps deployed yet.")
			return nil
		}

		renderAppsAsTable(cmd, statuses)
		return nil
	},
}

func renderAppsAsTable(cmd *cobra.Command, statuses []orchestrator.AppStatus) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"APP", "NAME", "TYPE", "CURRENT", "STATE", "URL"})
	for _, status := range statuses {
		t.AppendRow(table.Row{
			status.App.Slug,
			status.App.Name,
			status.App.Type,
			currentColumn(status.Current),
			stateColumn(status),
			status.URL,
		})
	}
	t.Render()
}

func currentColumn(number int) string {
	if number == 0 {
		return "-"
	}
	return strconv.Itoa(number)
}

func stateColumn(status orchestrator.AppStatus) string {
	switch {
	case status.Deploying:
		return "deploying"
	case status.Live:
		return "live"
	default:
		return "offline"
	}
}
