package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/ctxbudget/internal/session"
	"github.com/crystaldolphin/ctxbudget/internal/shared/cmdutils"
	"github.com/crystaldolphin/ctxbudget/internal/tokens"
)

var estimateLog bool

var estimateCmd = &cobra.Command{
	Use:   "estimate [file]",
	Short: "Estimate the token cost of text or a conversation log",
	Long: `Estimate the token cost of a file, or of stdin when no file is given.
With --log the input is read as a JSONL conversation log.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEstimate,
}

func init() {
	estimateCmd.Flags().BoolVar(&estimateLog, "log", false, "treat the input as a JSONL conversation log")
}

func runEstimate(_ *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}

	if estimateLog {
		if path == "" || path == "-" {
			return fmt.Errorf("--log needs a file argument")
		}
		log, err := session.ReadLogFile(path)
		if err != nil {
			return err
		}
		fmt.Printf("Messages: %d\n", len(log))
		fmt.Printf("Tokens:   %d\n", tokens.EstimateLog(log))
		return nil
	}

	text, err := cmdutils.ReadInput(path)
	if err != nil {
		return err
	}
	fmt.Printf("Tokens:   %d\n", tokens.Estimate(text))
	fmt.Printf("Chars:    %d\n", tokens.Chars(text))
	fmt.Printf("Bytes:    %d\n", len(text))
	return nil
}
