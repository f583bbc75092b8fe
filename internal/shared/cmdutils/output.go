package cmdutils

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/crystaldolphin/ctxbudget/internal/compaction"
)

const Logo = "🐬"

// Mark renders a boolean as a check or a cross.
func Mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

// ReadInput returns the contents of path, or of stdin when path is empty
// or "-".
func ReadInput(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

// NewTable returns a tabwriter for aligned columns.
func NewTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// PrintResult writes a human-readable summary of a compaction.
func PrintResult(w io.Writer, res compaction.Result) {
	fmt.Fprintf(w, "Outcome:   %s %s\n", Mark(!res.Outcome.Failed()), res.Outcome)
	if res.Mode != "" {
		fmt.Fprintf(w, "Mode:      %s (%d pass(es), %d attempt(s))\n", res.Mode, res.Passes, res.Attempts)
	}
	fmt.Fprintf(w, "Tokens:    %d → %d\n", res.TokensBefore, res.TokensAfter)
	if res.Outcome.Changed() {
		fmt.Fprintf(w, "Savings:   %.0f%%\n", res.Savings*100)
	}
	if res.OverBudget {
		fmt.Fprintln(w, "Budget:    still over budget")
	}
	if res.SecondPass != "" && res.SecondPass != compaction.OutcomeCompacted {
		fmt.Fprintf(w, "Full pass: %s\n", res.SecondPass)
	}
	if res.Err != nil {
		fmt.Fprintf(w, "Error:     %v\n", res.Err)
	}
}
