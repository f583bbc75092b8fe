package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/ctxbudget/internal/config"
	"github.com/crystaldolphin/ctxbudget/internal/container"
	"github.com/crystaldolphin/ctxbudget/internal/shared/cmdutils"
	"github.com/crystaldolphin/ctxbudget/internal/tokens"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and per-session token usage",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfgPath := cfgFile
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}

	fmt.Printf("%s ctxbudget Status\n\n", cmdutils.Logo)

	_, statErr := os.Stat(cfgPath)
	fmt.Printf("Config:    %s %s\n", cfgPath, cmdutils.Mark(statErr == nil))

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  (%v)\n", err)
		return nil
	}

	ws := cfg.WorkspacePath()
	_, wsErr := os.Stat(ws)
	fmt.Printf("Workspace: %s %s\n", ws, cmdutils.Mark(wsErr == nil))

	model := cfg.ChatModel()
	fmt.Printf("Model:     %s (%d token window)\n", model.Name, model.ContextTokens)

	params := cfg.ProviderParams()
	if spec := params.Spec(); spec != nil {
		switch {
		case spec.IsLocal:
			fmt.Printf("Provider:  %s %s\n", spec.Label(), params.APIBase)
		default:
			fmt.Printf("Provider:  %s %s\n", spec.Label(), cmdutils.Mark(params.ResolvedAPIKey() != ""))
		}
	} else {
		fmt.Printf("Provider:  (unknown for model %s)\n", model.Name)
	}
	fmt.Printf("Storage:   %s\n", cfg.Storage.Driver)
	fmt.Printf("Sweep:     %s, %d at a time\n\n", cfg.Sweep.Schedule, cfg.Sweep.Concurrency)

	c, err := container.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	budget, err := c.Budget()
	if err != nil {
		return err
	}
	store, err := c.Store()
	if err != nil {
		fmt.Printf("Sessions:  (%v)\n", err)
		return nil
	}

	ctx := cmd.Context()
	infos, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("Sessions:  none")
		return nil
	}

	fmt.Printf("Sessions (limit %d tokens):\n", budget.Limit())
	tw := cmdutils.NewTable(os.Stdout)
	fmt.Fprintln(tw, "  KEY\tMESSAGES\tTOKENS\tUSED\tCOMPACTIONS\tUPDATED\t")
	for _, info := range infos {
		sess, err := store.Load(ctx, info.Key)
		if err != nil {
			fmt.Fprintf(tw, "  %s\t-\t-\t-\t-\t(%v)\t\n", info.Key, err)
			continue
		}
		used := tokens.EstimateLog(sess.Log)
		mark := ""
		if budget.Exceeded(used) {
			mark = " ✗"
		}
		pct := 0.0
		if budget.ContextTokens > 0 {
			pct = 100 * float64(used) / float64(budget.ContextTokens)
		}
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%.1f%%%s\t%d\t%s\t\n",
			info.Key, info.Messages, used, pct, mark, info.Compactions, info.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
