package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/chaoticbest/vibehub/internal/orchestrator"
	"github.com/chaoticbest/vibehub/internal/slug"
)

var (
	deployRef  string
	deploySlug string
)

var deployCmd = &cobra.Command{
	Use:   "deploy <git-url>",
	Short: "Deploy an app from a git repository",
	Long: `Deploy fetches the repository, runs its build step if it has one, and
publishes the output as a new numbered release. The app goes live only
once the release is fully on disk; a failed deploy leaves the previous
release serving.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		result, err := rt.engine.Deploy(cmd.Context(), &orchestrator.DeployRequest{
			RepoURL: args[0],
			Ref:     deployRef,
			Slug:    slugOverride(deploySlug),
		})
		if err != nil {
			return err
		}

		cmd.Printf("Deployed %s release %d (%s, %s builder) in %s\n",
			result.App.Slug,
			result.Release.Number,
			shortSHA(result.Release.CommitSHA),
			result.Builder,
			result.Duration.Round(time.Millisecond),
		)
		cmd.Printf("Live at %s\n", result.URL)
		return nil
	},
}

func init() {
	deployCmd.Flags().StringVar(&deployRef, "ref", "", "branch, tag or commit to deploy (default: remote HEAD)")
	deployCmd.Flags().StringVar(&deploySlug, "app", "", "override the app slug derived from the repository URL")
}

// slugOverride normalizes an operator-chosen slug; empty stays empty so
// the engine derives one from the URL.
func slugOverride(s string) string {
	if s == "" {
		return ""
	}
	return slug.Make(s)
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
