package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <slug> <release-number>",
	Short: "Roll an app back to an earlier release",
	Long: `Rollback atomically re-points the app's current pointer at an existing
succeeded release. No new release number is allocated and history is
unchanged. Rolling back to the already-current release is a no-op.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[1])
		if err != nil || number < 1 {
			return fmt.Errorf("invalid release number %q", args[1])
		}

		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		result, err := rt.engine.Rollback(cmd.Context(), args[0], number)
		if err != nil {
			return err
		}

		if result.From == result.To {
			cmd.Printf("%s is already serving release %d\n", result.Slug, result.To)
		} else {
			cmd.Printf("Rolled %s back to release %d (was %d)\n", result.Slug, result.To, result.From)
		}
		cmd.Printf("Live at %s\n", result.URL)
		return nil
	},
}
