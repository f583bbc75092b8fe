package compaction

import (
	"context"

	"github.com/crystaldolphin/ctxbudget/internal/schema"
)

// Summarizer condenses a run of messages into one developer message.
// Timeouts and cancellation are the implementation's concern; either must
// come back as an error.
type Summarizer interface {
	Summarize(ctx context.Context, messages schema.Log) (schema.Message, error)
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, messages schema.Log) (schema.Message, error)

func (f SummarizerFunc) Summarize(ctx context.Context, messages schema.Log) (schema.Message, error) {
	return f(ctx, messages)
}
