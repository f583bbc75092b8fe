package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/ctxbudget/internal/shared/cmdutils"
	"github.com/crystaldolphin/ctxbudget/internal/window"
)

var (
	windowBudget   int
	windowCodec    string
	windowEncoding string
	windowHint     string
	windowState    string
	windowSteps    int
)

var windowCmd = &cobra.Command{
	Use:   "window [file]",
	Short: "Walk a text in token-bounded windows",
	Long: `Print successive windows of at most --budget tokens from a file (or
stdin). With --state the walk position is read from and saved to a file, so
repeated runs continue where the last one stopped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWindowCmd,
}

func init() {
	windowCmd.Flags().IntVar(&windowBudget, "budget", 512, "tokens per window")
	windowCmd.Flags().StringVar(&windowCodec, "codec", "word", "token codec: word or tiktoken")
	windowCmd.Flags().StringVar(&windowEncoding, "encoding", "cl100k_base", "tiktoken encoding")
	windowCmd.Flags().StringVar(&windowHint, "hint", "", "text sent alongside each window; its tokens are reserved")
	windowCmd.Flags().StringVar(&windowState, "state", "", "file holding the walk position")
	windowCmd.Flags().IntVar(&windowSteps, "steps", 0, "stop after this many windows (0 = until done)")
}

func runWindowCmd(_ *cobra.Command, args []string) error {
	if windowBudget <= 0 {
		return fmt.Errorf("--budget must be positive")
	}
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	text, err := cmdutils.ReadInput(path)
	if err != nil {
		return err
	}

	switch windowCodec {
	case "word":
		return runWindow(window.New(text, windowBudget, window.Codec[string](window.WordCodec{})))
	case "tiktoken":
		codec, err := window.NewTiktokenCodec(windowEncoding)
		if err != nil {
			return err
		}
		return runWindow(window.New(text, windowBudget, window.Codec[int](codec)))
	default:
		return fmt.Errorf("unknown codec %q", windowCodec)
	}
}

func runWindow[T any](s *window.Splitter[T]) error {
	st, err := loadWindowState()
	if err != nil {
		return err
	}

	fmt.Printf("Source: %d tokens, starting at %d\n", s.Len(), st.Offset)
	for step := 0; !st.Done && (windowSteps == 0 || step < windowSteps); step++ {
		start := st.Offset
		var text string
		text, st = s.Next(st, windowHint)
		fmt.Printf("--- window %d [%d:%d] ---\n", step+1, start, st.Offset)
		fmt.Println(text)
	}
	if st.Done {
		fmt.Println("--- done ---")
	}
	return saveWindowState(st)
}

func loadWindowState() (window.State, error) {
	var st window.State
	if windowState == "" {
		return st, nil
	}
	data, err := os.ReadFile(windowState)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("read state: %w", err)
	}
	if err := st.UnmarshalBinary(data); err != nil {
		return st, err
	}
	return st, nil
}

func saveWindowState(st window.State) error {
	if windowState == "" {
		return nil
	}
	data, err := st.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(windowState, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}
