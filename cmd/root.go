// Package cmd implements the ctxbudget CLI using cobra.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/ctxbudget/internal/config"
	"github.com/crystaldolphin/ctxbudget/internal/shared/cmdutils"
)

const version = "0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "ctxbudget",
	Short: cmdutils.Logo + " ctxbudget: keep conversations inside their token budget",
	Long: cmdutils.Logo + ` ctxbudget estimates token cost, splits oversized text and compacts
conversation logs so they fit a model's context window.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default "+config.ConfigPath()+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(chunkCmd)
	rootCmd.AddCommand(windowCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(embedCmd)
}

func setup(_ *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	return config.LoadDotEnv(".env", filepath.Join(config.DataDir(), ".env"))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
