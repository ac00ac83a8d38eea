package commands

import (
	"github.com/spf13/cobra"
)

var pruneKeep int

var pruneCmd = &cobra.Command{
	Use:   "prune <slug>",
	Short: "Delete old release artifacts for an app",
	Long: `Prune removes release directories beyond the newest N, never the one
currently being served. Registry history is kept; pruned releases show
up in history but can no longer be rolled back to.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		keep := pruneKeep
		if keep <= 0 {
			keep = cfg.Release.Keep
		}

		removed, err := rt.engine.Prune(cmd.Context(), args[0], keep)
		if err != nil {
			return err
		}

		if len(removed) == 0 {
			cmd.Println("Nothing to prune.")
			return nil
		}
		cmd.Printf("Pruned %d release(s): %v\n", len(removed), removed)
		return nil
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneKeep, "keep", 0, "releases to retain (default from config)")
}
