package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/tocsin/internal/printer"
	"github.com/dyluth/tocsin/internal/watch"
	"github.com/spf13/cobra"
)

var listenOutputFormat string

var listenCmd = &cobra.Command{
	Use:   "listen <identifier>...",
	Short: "Print a line for every notification received",
	Long: `Observe one or more identifiers and print each delivery until interrupted.

Output Formats:
  default - Human-readable output with timestamps
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Watch two names under the default prefix
  tocsin listen sync refresh

  # Export deliveries as JSON
  tocsin listen --output=json sync > deliveries.jsonl`,
	Args: cobra.MinimumNArgs(1),
	RunE: runListen,
}

func init() {
	listenCmd.Flags().StringVarP(&listenOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, args []string) error {
	format, err := watch.ParseOutputFormat(listenOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", listenOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	ids := identifiers(args)
	if format == watch.OutputFormatDefault {
		printer.Listening(s.cfg.Facility, qualifiedNames(s.broadcaster, ids))
	}

	return watch.Listen(ctx, s.broadcaster, ids, format, printer.Stdout)
}
