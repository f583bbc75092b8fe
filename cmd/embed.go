package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/ctxbudget/internal/container"
	"github.com/crystaldolphin/ctxbudget/internal/shared/cmdutils"
)

var embedCmd = &cobra.Command{
	Use:   "embed [file...]",
	Short: "Embed texts, chunking them to fit the embedding model",
	Long: `Embed each file (or stdin when none is given) against the configured
provider's embeddings endpoint. Inputs larger than the model's token budget
are split and each piece is embedded separately.`,
	RunE: runEmbed,
}

func runEmbed(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		args = []string{"-"}
	}
	texts := make([]string, 0, len(args))
	for _, path := range args {
		text, err := cmdutils.ReadInput(path)
		if err != nil {
			return err
		}
		texts = append(texts, text)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := container.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	embedder, err := c.Embedder()
	if err != nil {
		return err
	}
	out, err := embedder.Embed(cmd.Context(), texts)
	if err != nil {
		return err
	}

	tw := cmdutils.NewTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "INPUT\tCHUNK\tCHARS\tDIMS\t")
	for _, e := range out {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t\n", args[e.Input], e.Chunk, len(e.Text), len(e.Vector))
	}
	return tw.Flush()
}
