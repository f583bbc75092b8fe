package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/crystaldolphin/ctxbudget/internal/compaction"
	"github.com/crystaldolphin/ctxbudget/internal/container"
	"github.com/crystaldolphin/ctxbudget/internal/schema"
	"github.com/crystaldolphin/ctxbudget/internal/session"
	"github.com/crystaldolphin/ctxbudget/internal/shared/cmdutils"
	"github.com/crystaldolphin/ctxbudget/internal/sweep"
)

var (
	compactFull   bool
	compactDryRun bool
)

var compactCmd = &cobra.Command{
	Use:   "compact <session-key|file.jsonl>",
	Short: "Compact one conversation",
	Long: `Compact a stored session, or a JSONL conversation file, so it fits the
configured budget. The partial pass runs first and the full pass follows when
the log is still over budget, unless --full asks for the full pass directly.
With --dry-run the compacted log is printed and nothing is written.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompact,
}

func init() {
	compactCmd.Flags().BoolVar(&compactFull, "full", false, "run a single full pass")
	compactCmd.Flags().BoolVar(&compactDryRun, "dry-run", false, "print the result without writing it")
}

func runCompact(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := container.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	engine, err := c.Engine()
	if err != nil {
		return err
	}
	budget, err := c.Budget()
	if err != nil {
		return err
	}

	target := args[0]
	if strings.HasSuffix(target, ".jsonl") {
		return compactFile(cmd, engine, budget, target)
	}

	store, err := c.Store()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if compactDryRun {
		sess, err := store.Load(ctx, target)
		if err != nil {
			return err
		}
		res := runEngine(cmd, engine, budget, sess.Log)
		cmdutils.PrintResult(os.Stderr, res)
		return printLog(res)
	}

	sw := sweep.New(store, engine, budget, sweep.Options{Full: compactFull, Archive: cfg.Sweep.Archive})
	rep, err := sw.Compact(ctx, target)
	if err != nil {
		return err
	}
	cmdutils.PrintResult(os.Stdout, rep.Result)
	if rep.Archive != uuid.Nil {
		fmt.Printf("Archive:   %s\n", rep.Archive)
	}
	return resultErr(rep.Result)
}

func compactFile(cmd *cobra.Command, engine *compaction.Engine, budget compaction.Budget, path string) error {
	log, err := session.ReadLogFile(path)
	if err != nil {
		return err
	}
	res := runEngine(cmd, engine, budget, log)

	if compactDryRun {
		cmdutils.PrintResult(os.Stderr, res)
		return printLog(res)
	}

	cmdutils.PrintResult(os.Stdout, res)
	if res.Outcome.Changed() {
		if err := session.WriteLogFile(path, res.Log); err != nil {
			return err
		}
		fmt.Printf("Wrote:     %s\n", path)
	}
	return resultErr(res)
}

func runEngine(cmd *cobra.Command, engine *compaction.Engine, budget compaction.Budget, log schema.Log) compaction.Result {
	if compactFull {
		return engine.CompactFull(cmd.Context(), log, budget)
	}
	return engine.Compact(cmd.Context(), log, budget)
}

func printLog(res compaction.Result) error {
	if !res.Outcome.Changed() {
		return resultErr(res)
	}
	return session.WriteLog(os.Stdout, res.Log)
}

func resultErr(res compaction.Result) error {
	if res.Outcome.Failed() {
		return fmt.Errorf("compaction %s", res.Outcome)
	}
	return nil
}
