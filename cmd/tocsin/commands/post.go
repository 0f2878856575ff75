package commands

import (
	"context"

	"github.com/dyluth/tocsin/internal/config"
	"github.com/dyluth/tocsin/internal/printer"
	"github.com/spf13/cobra"
)

var postQuiet bool

var postCmd = &cobra.Command{
	Use:   "post <identifier>...",
	Short: "Notify every listener of one or more identifiers",
	Long: `Post a notification for each identifier under the configured prefix.

Delivery is best effort: posting a name nobody observes is not an error,
and listeners that start after the post do not see it.

Examples:
  # Signal "sync" under the default prefix
  tocsin post sync

  # Signal two names under a custom prefix over Redis
  tocsin post --prefix com.example.app --facility redis --redis-url redis://localhost:6379 sync refresh`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPost,
}

func init() {
	postCmd.Flags().BoolVarP(&postQuiet, "quiet", "q", false, "Do not print posted names")
	rootCmd.AddCommand(postCmd)
}

func runPost(cmd *cobra.Command, args []string) error {
	s, err := openSession(context.Background())
	if err != nil {
		return err
	}
	defer s.Close()

	if s.cfg.Facility == config.FacilityLocal {
		printer.Warning("local facility only reaches this process; nothing else will see these posts\n")
	}

	for _, id := range identifiers(args) {
		s.broadcaster.Post(id)
		if !postQuiet {
			printer.Posted(s.broadcaster.Namespacer().Qualify(id))
		}
	}
	return nil
}
