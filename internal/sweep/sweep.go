// Package sweep compacts stored conversations in the background.
//
// A Sweeper walks every session in a store and compacts the ones above
// budget, a bounded number at a time. A Scheduler keeps at most one run per
// session in flight with one more queued behind it. Start feeds every session
// to a Scheduler on a cron schedule.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/ctxbudget/internal/compaction"
	"github.com/crystaldolphin/ctxbudget/internal/session"
)

const defaultConcurrency = 4

// Report describes what happened to one session.
type Report struct {
	Key     string
	Skipped bool // under budget, nothing attempted
	Result  compaction.Result
	// Archive is the snapshot ID of the pre-compaction log, if one was written.
	Archive uuid.UUID
}

// Options configure a Sweeper.
type Options struct {
	Concurrency int
	// Archive stores the pre-compaction log before rewriting it.
	Archive bool
	// Full runs a single full pass instead of partial-then-full.
	Full   bool
	Logger *slog.Logger
}

// Sweeper compacts conversations held in a session.Store.
type Sweeper struct {
	store  session.Store
	engine *compaction.Engine
	budget compaction.Budget
	opts   Options
	logger *slog.Logger
}

// New returns a Sweeper that measures every session against budget.
func New(store session.Store, engine *compaction.Engine, budget compaction.Budget, opts Options) *Sweeper {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, engine: engine, budget: budget, opts: opts, logger: logger}
}

// Budget returns the budget sessions are measured against.
func (s *Sweeper) Budget() compaction.Budget { return s.budget }

// Compact loads key, compacts it regardless of budget and writes the result
// back. Messages appended while the summarizer ran are kept after the
// rewritten log. A failed compaction leaves the stored log untouched and is
// reported through Report.Result, not the error.
func (s *Sweeper) Compact(ctx context.Context, key string) (Report, error) {
	sess, err := s.store.Load(ctx, key)
	if err != nil {
		return Report{Key: key}, fmt.Errorf("load %s: %w", key, err)
	}
	return s.compact(ctx, sess)
}

func (s *Sweeper) compact(ctx context.Context, sess *session.Session) (Report, error) {
	rep := Report{Key: sess.Key}
	base := len(sess.Log)

	if s.opts.Full {
		rep.Result = s.engine.CompactFull(ctx, sess.Log, s.budget)
	} else {
		rep.Result = s.engine.Compact(ctx, sess.Log, s.budget)
	}
	res := rep.Result
	if !res.Outcome.Changed() {
		if res.Outcome.Failed() {
			s.logger.Warn("sweep: compaction failed", "key", sess.Key, "outcome", res.Outcome, "err", res.Err)
		}
		return rep, nil
	}

	if s.opts.Archive {
		if err := s.store.Archive(ctx, sess.Key, res.ID, sess.Log); err != nil {
			return rep, fmt.Errorf("archive %s: %w", sess.Key, err)
		}
		rep.Archive = res.ID
	}
	if err := s.store.Rebase(ctx, sess.Key, base, res.Log); err != nil {
		return rep, fmt.Errorf("store %s: %w", sess.Key, err)
	}

	s.logger.Info("sweep: compacted",
		"key", sess.Key,
		"id", res.ID,
		"mode", res.Mode,
		"tokens_before", res.TokensBefore,
		"tokens_after", res.TokensAfter,
		"over_budget", res.OverBudget)
	return rep, nil
}

// RunOnce compacts every session above budget. Sessions are processed
// concurrently up to the configured limit; a failure on one session does not
// stop the others. The returned error joins every per-session failure.
func (s *Sweeper) RunOnce(ctx context.Context) ([]Report, error) {
	infos, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var (
		mu      sync.Mutex
		reports []Report
		errs    []error
	)
	record := func(rep Report, err error) {
		mu.Lock()
		defer mu.Unlock()
		reports = append(reports, rep)
		if err != nil {
			errs = append(errs, err)
		}
	}

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for _, info := range infos {
		if ctx.Err() != nil {
			break
		}
		key := info.Key
		g.Go(func() error {
			record(s.sweepOne(ctx, key))
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("sweep: done", "sessions", len(infos), "errors", len(errs))
	return reports, errors.Join(errs...)
}

// sweepOne compacts key only when it is above budget.
func (s *Sweeper) sweepOne(ctx context.Context, key string) (Report, error) {
	sess, err := s.store.Load(ctx, key)
	if err != nil {
		return Report{Key: key}, fmt.Errorf("load %s: %w", key, err)
	}
	if !s.engine.NeedsCompaction(sess.Log, s.budget) {
		return Report{Key: key, Skipped: true}, nil
	}
	return s.compact(ctx, sess)
}

// Enqueue hands every stored session to sc. Sessions under budget are
// skipped when their run comes up. It returns the number of keys scheduled.
func (s *Sweeper) Enqueue(ctx context.Context, sc *Scheduler) (int, error) {
	infos, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	for _, info := range infos {
		sc.Schedule(info.Key)
	}
	return len(infos), nil
}
