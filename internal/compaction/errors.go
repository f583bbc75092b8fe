package compaction

import (
	"errors"
	"fmt"
)

// Outcome tags the result of a compaction.
type Outcome string

const (
	OutcomeCompacted           Outcome = "compacted"
	OutcomeNoOp                Outcome = "no_op"
	OutcomeEmptyAfterFiltering Outcome = "empty_after_filtering"
	OutcomeSummarizerError     Outcome = "summarizer_error"
	OutcomeCompactionFailed    Outcome = "compaction_failed"
)

// Changed reports whether the outcome rewrote the log.
func (o Outcome) Changed() bool { return o == OutcomeCompacted }

// Failed reports whether the outcome is a failure the caller should log.
// A no-op is a valid terminal state, not a failure.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeEmptyAfterFiltering, OutcomeSummarizerError, OutcomeCompactionFailed:
		return true
	}
	return false
}

var (
	ErrInvalidConfig       = errors.New("invalid compaction configuration")
	ErrEmptyAfterFiltering = errors.New("nothing left to summarize after filtering")
	ErrSummarizer          = errors.New("summarizer failed")
	ErrCompactionFailed    = errors.New("savings threshold not met")
	ErrBadSummary          = errors.New("summary must be a single developer message")
)

// Error carries the context of a failed pass.
type Error struct {
	Op       string
	Outcome  Outcome
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("compaction %s: %s", e.Op, e.Outcome)
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempt(s)", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }
