package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/ctxbudget/internal/schema"
	"github.com/crystaldolphin/ctxbudget/internal/shared/cmdutils"
	"github.com/crystaldolphin/ctxbudget/internal/tokens"
)

var (
	chunkBudget int
	chunkFactor float64
	chunkModel  string
)

var chunkCmd = &cobra.Command{
	Use:   "chunk [file]",
	Short: "Split text into pieces that fit a token budget",
	Long: `Split a file (or stdin) into pieces whose estimated token count fits
the budget. Without --budget the context window of --model is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChunk,
}

func init() {
	chunkCmd.Flags().IntVar(&chunkBudget, "budget", 0, "token budget per piece")
	chunkCmd.Flags().Float64Var(&chunkFactor, "factor", 0.5, "reduction factor applied to the budget")
	chunkCmd.Flags().StringVar(&chunkModel, "model", "", "take the budget from this model's context window")
}

func runChunk(_ *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	text, err := cmdutils.ReadInput(path)
	if err != nil {
		return err
	}

	var pieces []string
	switch {
	case chunkBudget > 0:
		pieces, err = tokens.Chunk(text, chunkBudget, chunkFactor)
	case chunkModel != "":
		pieces, err = tokens.ChunkForModel(text, schema.NewModel(chunkModel, 0), chunkFactor)
	default:
		cfg, cfgErr := loadConfig()
		if cfgErr != nil {
			return cfgErr
		}
		pieces, err = tokens.ChunkForModel(text, cfg.ChatModel(), chunkFactor)
	}
	if err != nil {
		return err
	}

	for i, p := range pieces {
		fmt.Printf("--- chunk %d/%d (%d tokens) ---\n", i+1, len(pieces), tokens.Estimate(p))
		fmt.Println(p)
	}
	return nil
}
