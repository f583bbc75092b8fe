// Package summarizer turns any chat provider into a compaction.Summarizer.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crystaldolphin/ctxbudget/internal/schema"
	"github.com/crystaldolphin/ctxbudget/internal/shared/llmutils"
)

var (
	ErrEmptySummary = errors.New("provider returned an empty summary")
	ErrProvider     = errors.New("provider reported an error")
)

const (
	defaultMaxTokens   = 2048
	defaultTemperature = 0.2
	defaultTimeout     = 2 * time.Minute
)

// LLMSummarizer asks an LLM to condense a run of messages.
type LLMSummarizer struct {
	provider    schema.LLMProvider
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

// Option configures an LLMSummarizer.
type Option func(*LLMSummarizer)

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(s *LLMSummarizer) { s.model = model }
}

// WithMaxTokens bounds the length of the generated summary.
func WithMaxTokens(n int) Option {
	return func(s *LLMSummarizer) { s.maxTokens = n }
}

// WithTimeout bounds one summarizer call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *LLMSummarizer) { s.timeout = d }
}

// New returns a summarizer backed by provider.
func New(provider schema.LLMProvider, opts ...Option) *LLMSummarizer {
	s := &LLMSummarizer{
		provider:    provider,
		model:       provider.DefaultModel(),
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
		timeout:     defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize implements compaction.Summarizer.
func (s *LLMSummarizer) Summarize(ctx context.Context, msgs schema.Log) (schema.Message, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	transcript := FormatTranscript(msgs)
	req := schema.NewLog(
		schema.NewSystemMessage(SystemPrompt),
		schema.NewUserMessage(BuildUserPrompt(transcript)),
	)

	resp, err := s.provider.Chat(ctx, req, schema.NewChatOptions(s.model, s.maxTokens, s.temperature))
	if err != nil {
		return schema.Message{}, fmt.Errorf("summarize LLM call: %w", err)
	}
	if resp.FinishReason == "error" {
		return schema.Message{}, fmt.Errorf("%w: %s", ErrProvider, llmutils.Truncate(resp.Content, 200))
	}

	summary := llmutils.StripThink(resp.Content)
	if summary == "" {
		return schema.Message{}, ErrEmptySummary
	}

	slog.Debug("summarizer: summary generated",
		"messages", len(msgs), "input_chars", len(transcript), "summary_chars", len(summary),
		"finish", resp.FinishReason)
	return schema.NewDeveloperMessage(summary), nil
}
