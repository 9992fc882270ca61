// Package relay holds the subcommand that drains the replication outbox
// into the remote backend.
package relay

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/hashicorp-forge/collabdocs/internal/cmd/base"
)

type Command struct {
	*base.Command

	flagConfig      string
	flagOnce        bool
	flagRetryFailed int
	flagCleanup     bool
	flagStats       bool
}

func (c *Command) Synopsis() string {
	return "Push queued document states to the remote backend"
}

func (c *Command) Help() string {
	return `Usage: collabdocs relay [options]

  Polls the replication outbox and pushes queued document states to the
  configured remote backend until interrupted. The outbox must be enabled
  in the configuration.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("relay", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "(Required) Path to collabdocs config file")
	f.BoolVar(&c.flagOnce, "once", false, "Process a single batch and exit")
	f.IntVar(&c.flagRetryFailed, "retry-failed", 0, "Retry up to this many failed entries and exit")
	f.BoolVar(&c.flagCleanup, "cleanup", false, "Delete published entries older than the configured retention and exit")
	f.BoolVar(&c.flagStats, "stats", false, "Print outbox statistics and exit")

	return f
}

func (c *Command) Run(args []string) int {
	ui := c.UI

	if err := c.Flags().Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	ctx, cancel := base.SignalContext()
	defer cancel()

	rt, err := c.Setup(ctx, c.flagConfig)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer c.Shutdown(rt)

	if !rt.Config.Outbox.Enabled {
		ui.Error("outbox is disabled in the configuration")
		return 1
	}

	relay, err := rt.NewRelay(c.Log.Named("relay"))
	if err != nil {
		ui.Error(fmt.Sprintf("error creating relay: %v", err))
		return 1
	}

	switch {
	case c.flagStats:
		stats, err := relay.GetStats()
		if err != nil {
			ui.Error(fmt.Sprintf("error getting outbox stats: %v", err))
			return 1
		}
		ui.Output(fmt.Sprintf("pending:   %d", stats.Pending))
		ui.Output(fmt.Sprintf("published: %d", stats.Published))
		ui.Output(fmt.Sprintf("failed:    %d", stats.Failed))
		return 0

	case c.flagCleanup:
		deleted, err := relay.CleanupOldEntries(rt.Config.Outbox.RetentionDuration())
		if err != nil {
			ui.Error(fmt.Sprintf("error cleaning up outbox: %v", err))
			return 1
		}
		ui.Info(fmt.Sprintf("deleted %d published entries", deleted))
		return 0

	case c.flagRetryFailed > 0:
		n, err := relay.RetryFailed(ctx, c.flagRetryFailed)
		if err != nil {
			ui.Error(fmt.Sprintf("error retrying failed entries: %v", err))
			return 1
		}
		ui.Info(fmt.Sprintf("republished %d entries", n))
		return 0

	case c.flagOnce:
		n, err := relay.ProcessBatch(ctx)
		if err != nil {
			ui.Error(fmt.Sprintf("error processing batch: %v", err))
			return 1
		}
		ui.Info(fmt.Sprintf("processed %d entries", n))
		return 0
	}

	ui.Info("relay running, press Ctrl-C to stop")
	if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		ui.Error(fmt.Sprintf("relay stopped: %v", err))
		return 1
	}
	return 0
}
