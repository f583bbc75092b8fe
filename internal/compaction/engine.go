// Package compaction rewrites a conversation log so that it fits a token
// budget.
//
// A pass keeps the last few rounds verbatim and replaces everything older,
// except user messages, with a single developer-role summary. Every User
// message survives byte for byte. Tool calls stay paired with their results.
// Failures return the input unchanged with a tagged Outcome; the engine never
// hands back a half-rewritten log.
//
// The engine holds no per-conversation state, so one Engine may compact many
// conversations concurrently.
package compaction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/crystaldolphin/ctxbudget/internal/rounds"
	"github.com/crystaldolphin/ctxbudget/internal/schema"
	"github.com/crystaldolphin/ctxbudget/internal/tokens"
)

// Mode names how much history a pass was allowed to summarize.
type Mode string

const (
	// ModePartial summarizes only history older than the kept rounds.
	ModePartial Mode = "partial"
	// ModeFull also summarizes the rounds a partial pass kept.
	ModeFull Mode = "full"
)

// Result describes what Compact did. Log is always safe to use: on any
// outcome other than OutcomeCompacted it is the input log.
type Result struct {
	ID       uuid.UUID
	Outcome  Outcome
	Mode     Mode
	Log      schema.Log
	Passes   int
	Attempts int

	TokensBefore int
	TokensAfter  int
	// Savings is the accepted summary's size reduction of the text it replaced.
	Savings    float64
	OverBudget bool

	Err error

	// SecondPass is the outcome of the full pass, if one ran.
	SecondPass    Outcome
	SecondPassErr error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for pass diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine runs compaction passes against a Summarizer.
type Engine struct {
	cfg        Config
	summarizer Summarizer
	logger     *slog.Logger
}

// New returns an Engine. cfg must pass Validate; zero fields are filled from
// the defaults first.
func New(s Summarizer, cfg Config, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: summarizer is required", ErrInvalidConfig)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, summarizer: s, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// NeedsCompaction reports whether log is above the budget.
func (e *Engine) NeedsCompaction(log schema.Log, budget Budget) bool {
	return budget.Exceeded(tokens.EstimateLog(log))
}

// Compact runs a partial pass and, when the result is still above budget,
// a full pass over the recent rounds as well.
func (e *Engine) Compact(ctx context.Context, log schema.Log, budget Budget) Result {
	res := e.begin(log, ModePartial)

	p := e.pass(ctx, log, e.cfg.RoundsToKeep)
	e.apply(&res, p)
	if p.outcome != OutcomeCompacted {
		res.OverBudget = budget.Exceeded(res.TokensAfter)
		return res
	}

	if budget.Exceeded(res.TokensAfter) && e.cfg.AllowFullPass && p.recent > 0 {
		e.logger.Info("compaction: still over budget, running full pass",
			"id", res.ID, "tokens", res.TokensAfter, "limit", budget.Limit())

		q := e.pass(ctx, res.Log, 0)
		res.Passes++
		res.Attempts += q.attempts
		res.SecondPass = q.outcome
		if q.outcome == OutcomeCompacted {
			res.Mode = ModeFull
			res.Log = q.log
			res.Savings = q.savings
			res.TokensAfter = tokens.EstimateLog(q.log)
		} else {
			res.SecondPassErr = q.err
		}
	}

	res.OverBudget = budget.Exceeded(res.TokensAfter)
	return res
}

// CompactFull runs a single pass that may summarize every round.
func (e *Engine) CompactFull(ctx context.Context, log schema.Log, budget Budget) Result {
	res := e.begin(log, ModeFull)
	e.apply(&res, e.pass(ctx, log, 0))
	res.OverBudget = budget.Exceeded(res.TokensAfter)
	return res
}

func (e *Engine) begin(log schema.Log, mode Mode) Result {
	before := tokens.EstimateLog(log)
	return Result{
		ID:           uuid.New(),
		Mode:         mode,
		Log:          log,
		TokensBefore: before,
		TokensAfter:  before,
	}
}

func (e *Engine) apply(res *Result, p passResult) {
	res.Passes++
	res.Attempts += p.attempts
	res.Outcome = p.outcome
	res.Err = p.err
	if p.outcome == OutcomeCompacted {
		res.Log = p.log
		res.Savings = p.savings
		res.TokensAfter = tokens.EstimateLog(p.log)
	}

	attrs := []any{"id", res.ID, "mode", res.Mode, "outcome", p.outcome, "attempts", p.attempts,
		"tokens_before", res.TokensBefore, "tokens_after", res.TokensAfter}
	switch {
	case p.outcome.Failed():
		e.logger.Warn("compaction: pass failed", append(attrs, "err", p.err)...)
	case p.outcome == OutcomeNoOp:
		e.logger.Debug("compaction: nothing to compact", attrs...)
	default:
		e.logger.Info("compaction: pass complete", append(attrs, "savings", fmt.Sprintf("%.2f", p.savings))...)
	}
}

type passResult struct {
	outcome  Outcome
	log      schema.Log
	recent   int
	attempts int
	savings  float64
	err      error
}

// pass runs extract, split, filter, summarize and reassemble with k rounds
// kept verbatim. A summary that repeats a kept message is left out.
func (e *Engine) pass(ctx context.Context, log schema.Log, k int) passResult {
	identity, hasIdentity, work := e.extractIdentity(log)

	older, recent, _ := rounds.Split(work, k)
	if len(older) == 0 {
		return passResult{outcome: OutcomeNoOp}
	}

	users, rest := e.filter(older)
	if len(rest) == 0 {
		return passResult{
			outcome: OutcomeEmptyAfterFiltering,
			err:     &Error{Op: "filter", Outcome: OutcomeEmptyAfterFiltering, Err: ErrEmptyAfterFiltering},
		}
	}

	summary, attempts, savings, err := e.summarize(ctx, rest)
	if err != nil {
		return passResult{outcome: err.Outcome, attempts: attempts, err: err}
	}

	out := make(schema.Log, 0, len(users)+len(recent)+2)
	if hasIdentity {
		out = append(out, identity)
	}
	out = append(out, users...)
	if !echoes(summary, out, recent) {
		out = append(out, summary)
	}
	out = append(out, recent...)

	return passResult{
		outcome:  OutcomeCompacted,
		log:      out,
		recent:   len(recent),
		attempts: attempts,
		savings:  savings,
	}
}

// summarize calls the summarizer until a summary clears the savings
// threshold or MaxAttempts calls have been made. Attempts run one after
// another because each decision depends on the previous result.
func (e *Engine) summarize(ctx context.Context, rest schema.Log) (schema.Message, int, float64, *Error) {
	var (
		lastErr   error
		attempts  int
		best      float64
		summaries int
	)
	inputBytes := rest.Bytes()

	for attempts < e.cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		attempts++

		msg, err := e.summarizer.Summarize(ctx, rest.Clone())
		if err == nil && (msg.Role != schema.RoleDeveloper || msg.Content == "" || len(msg.ToolCalls) > 0) {
			err = fmt.Errorf("%w: got %s message", ErrBadSummary, msg.Role)
		}
		if err != nil {
			lastErr = err
			e.logger.Warn("compaction: summarizer attempt failed", "attempt", attempts, "err", err)
			continue
		}

		summaries++
		savings := savingsRatio(len(msg.Content), inputBytes)
		if savings >= e.cfg.SavingsThreshold {
			return msg, attempts, savings, nil
		}
		best = max(best, savings)
		e.logger.Debug("compaction: summary below savings threshold",
			"attempt", attempts, "savings", savings, "threshold", e.cfg.SavingsThreshold)
	}

	if summaries == 0 {
		return schema.Message{}, attempts, 0, &Error{
			Op:       "summarize",
			Outcome:  OutcomeSummarizerError,
			Attempts: attempts,
			Err:      fmt.Errorf("%w: %w", ErrSummarizer, lastErr),
		}
	}
	return schema.Message{}, attempts, 0, &Error{
		Op:       "summarize",
		Outcome:  OutcomeCompactionFailed,
		Attempts: attempts,
		Err:      fmt.Errorf("%w: best savings %.2f, need %.2f", ErrCompactionFailed, best, e.cfg.SavingsThreshold),
	}
}

// savingsRatio returns 1 − summary/input over byte lengths.
func savingsRatio(summaryBytes, inputBytes int) float64 {
	if inputBytes <= 0 {
		return 0
	}
	return 1 - float64(summaryBytes)/float64(inputBytes)
}
