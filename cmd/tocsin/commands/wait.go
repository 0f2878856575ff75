package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/tocsin/internal/printer"
	"github.com/dyluth/tocsin/internal/watch"
	"github.com/dyluth/tocsin/pkg/broadcast"
	"github.com/spf13/cobra"
)

var waitTimeout time.Duration

var waitCmd = &cobra.Command{
	Use:   "wait <identifier>",
	Short: "Block until an identifier is posted",
	Long: `Wait for the first notification of an identifier and exit.

Exits 0 when the notification arrives and 1 on timeout or interrupt,
which makes it usable as a cross-process barrier in shell scripts.

Examples:
  # Wait up to a minute for "ready"
  tocsin wait ready --timeout 1m && ./start-client.sh`,
	Args: cobra.ExactArgs(1),
	RunE: runWait,
}

func init() {
	waitCmd.Flags().DurationVarP(&waitTimeout, "timeout", "t", 30*time.Second, "Give up after this long (0 waits forever)")
	rootCmd.AddCommand(waitCmd)
}

func runWait(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	id := broadcast.Identifier(args[0])
	name := s.broadcaster.Namespacer().Qualify(id)

	if err := watch.WaitFor(ctx, s.broadcaster, id, waitTimeout); err != nil {
		if errors.Is(err, context.Canceled) {
			return printer.Error("interrupted", fmt.Sprintf("Stopped waiting for %s.", name), nil)
		}
		return printer.ErrorWithContext(
			"timed out",
			err.Error(),
			facilityContext(s.cfg),
			[]string{fmt.Sprintf("Check the poster uses the same prefix and facility:\n  tocsin post --prefix %s --facility %s %s", s.cfg.Prefix, s.cfg.Facility, id)},
		)
	}

	printer.Success("received %s\n", name)
	return nil
}
