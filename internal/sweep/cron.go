package sweep

import (
	"context"
	"fmt"
	"log/slog"

	robfigcron "github.com/robfig/cron/v3"
)

var specParser = robfigcron.NewParser(
	robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow | robfigcron.Descriptor,
)

// ParseSchedule validates a five-field cron expression or a descriptor such
// as "@every 10m".
func ParseSchedule(spec string) (robfigcron.Schedule, error) {
	sched, err := specParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Start sweeps on spec until ctx is cancelled. Every tick hands all stored
// sessions to a Scheduler, so a session still being compacted from an
// earlier tick is queued once instead of compacted twice in parallel.
// Blocks until ctx is cancelled and the runs in progress have finished.
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	sched, err := ParseSchedule(spec)
	if err != nil {
		return err
	}

	sc := NewScheduler(ctx, s, nil)
	logger := cronLogger{s.logger}
	c := robfigcron.New(
		robfigcron.WithParser(specParser),
		robfigcron.WithLogger(logger),
		robfigcron.WithChain(robfigcron.Recover(logger), robfigcron.SkipIfStillRunning(logger)),
	)
	c.Schedule(sched, robfigcron.FuncJob(func() {
		n, err := s.Enqueue(ctx, sc)
		if err != nil {
			s.logger.Warn("sweep: tick failed", "err", err)
			return
		}
		s.logger.Debug("sweep: tick", "sessions", n)
	}))

	c.Start()
	s.logger.Info("sweep: started", "schedule", spec, "concurrency", s.opts.Concurrency)

	<-ctx.Done()

	<-c.Stop().Done()
	sc.Wait()
	return ctx.Err()
}

// cronLogger adapts slog to robfig/cron's logger interface.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
