package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/crystaldolphin/ctxbudget/internal/container"
	"github.com/crystaldolphin/ctxbudget/internal/shared/cmdutils"
	"github.com/crystaldolphin/ctxbudget/internal/sweep"
)

var (
	sweepDaemon   bool
	sweepSchedule string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Compact every stored session that is over budget",
	Long: `Compact every stored session whose token estimate exceeds the budget.
With --daemon every tick of the configured cron schedule queues each session,
keeping at most one compaction per session in flight, until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepDaemon, "daemon", false, "keep running and sweep on a schedule")
	sweepCmd.Flags().StringVar(&sweepSchedule, "schedule", "", "cron schedule (overrides config)")
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := container.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	sw, err := c.Sweeper()
	if err != nil {
		return err
	}

	if !sweepDaemon {
		reports, err := sw.RunOnce(cmd.Context())
		printReports(reports)
		return err
	}

	spec := sweepSchedule
	if spec == "" {
		spec = cfg.Sweep.Schedule
	}
	if _, err := sweep.ParseSchedule(spec); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("%s Sweeping on %q (limit %d tokens). Press Ctrl+C to stop.\n", cmdutils.Logo, spec, sw.Budget().Limit())
	err = sw.Start(ctx, spec)
	if errors.Is(err, context.Canceled) {
		slog.Info("sweep: shutting down")
		return nil
	}
	return err
}

func printReports(reports []sweep.Report) {
	if len(reports) == 0 {
		fmt.Println("No sessions.")
		return
	}
	tw := cmdutils.NewTable(os.Stdout)
	fmt.Fprintln(tw, "KEY\tOUTCOME\tTOKENS\tARCHIVE\t")
	for _, r := range reports {
		switch {
		case r.Skipped:
			fmt.Fprintf(tw, "%s\tunder budget\t-\t-\t\n", r.Key)
		case r.Result.Outcome == "":
			fmt.Fprintf(tw, "%s\terror\t-\t-\t\n", r.Key)
		default:
			archive := "-"
			if r.Archive != uuid.Nil {
				archive = r.Archive.String()
			}
			fmt.Fprintf(tw, "%s\t%s %s\t%d → %d\t%s\t\n",
				r.Key, cmdutils.Mark(!r.Result.Outcome.Failed()), r.Result.Outcome,
				r.Result.TokensBefore, r.Result.TokensAfter, archive)
		}
	}
	tw.Flush()
}
