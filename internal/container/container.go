// Package container wires core ctxbudget services using go.uber.org/dig.
package container

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/dig"

	"github.com/crystaldolphin/ctxbudget/internal/compaction"
	"github.com/crystaldolphin/ctxbudget/internal/config"
	"github.com/crystaldolphin/ctxbudget/internal/providers"
	"github.com/crystaldolphin/ctxbudget/internal/schema"
	"github.com/crystaldolphin/ctxbudget/internal/session"
	"github.com/crystaldolphin/ctxbudget/internal/summarizer"
	"github.com/crystaldolphin/ctxbudget/internal/sweep"
)

const connectTimeout = 30 * time.Second

// Container resolves services on first use. Commands that never touch the
// provider or the store do not need credentials or a database.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	d     *dig.Container
	store session.Store
}

// New registers every constructor for cfg.
func New(cfg *config.Config) (*Container, error) {
	c := &Container{d: dig.New()}

	ctors := []any{
		func() *config.Config { return cfg },
		c.newStore,
		newProvider,
		newBudget,
		newEngine,
		newEmbedder,
		newSweeper,
	}
	for _, ctor := range ctors {
		if err := c.d.Provide(ctor); err != nil {
			return nil, err
		}
	}
	if err := c.d.Provide(newSummarizer, dig.As(new(compaction.Summarizer))); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) Store() (session.Store, error) {
	return resolve[session.Store](c)
}

func (c *Container) Provider() (schema.LLMProvider, error) {
	return resolve[schema.LLMProvider](c)
}

func (c *Container) Engine() (*compaction.Engine, error) {
	return resolve[*compaction.Engine](c)
}

func (c *Container) Budget() (compaction.Budget, error) {
	return resolve[compaction.Budget](c)
}

func (c *Container) Embedder() (*providers.Embedder, error) {
	return resolve[*providers.Embedder](c)
}

func (c *Container) Sweeper() (*sweep.Sweeper, error) {
	return resolve[*sweep.Sweeper](c)
}

// Close releases the store if it was opened.
func (c *Container) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func resolve[T any](c *Container) (T, error) {
	var out T
	err := c.d.Invoke(func(v T) { out = v })
	if err != nil {
		return out, dig.RootCause(err)
	}
	return out, nil
}

func (c *Container) newStore(cfg *config.Config) (session.Store, error) {
	var (
		s   session.Store
		err error
	)
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		s, err = session.NewPGStore(ctx, cfg.Storage.DSN)
	default:
		s, err = session.NewFileStore(cfg.WorkspacePath())
	}
	if err != nil {
		return nil, err
	}
	c.store = s
	return s, nil
}

func newProvider(cfg *config.Config) (schema.LLMProvider, error) {
	p := cfg.ProviderParams()
	spec := p.Spec()
	local := spec != nil && spec.IsLocal
	if p.ResolvedAPIKey() == "" && !local {
		return nil, fmt.Errorf("no API key configured for model %q: set provider.apiKey in %s or %s",
			cfg.Model.Name, config.ConfigPath(), config.EnvAPIKey)
	}
	return providers.New(p), nil
}

func newSummarizer(cfg *config.Config, p schema.LLMProvider) *summarizer.LLMSummarizer {
	opts := []summarizer.Option{summarizer.WithModel(cfg.Model.Name)}
	if cfg.Compaction.SummaryMaxTokens > 0 {
		opts = append(opts, summarizer.WithMaxTokens(cfg.Compaction.SummaryMaxTokens))
	}
	return summarizer.New(p, opts...)
}

func newBudget(cfg *config.Config) (compaction.Budget, error) {
	cc, err := cfg.CompactionConfig()
	if err != nil {
		return compaction.Budget{}, err
	}
	return compaction.NewBudget(cfg.ChatModel(), cc.TargetFraction), nil
}

func newEngine(cfg *config.Config, s compaction.Summarizer) (*compaction.Engine, error) {
	cc, err := cfg.CompactionConfig()
	if err != nil {
		return nil, err
	}
	return compaction.New(s, cc, compaction.WithLogger(slog.Default()))
}

func newEmbedder(cfg *config.Config) *providers.Embedder {
	return providers.NewEmbedder(cfg.ProviderParams(), cfg.EmbedderConfig())
}

func newSweeper(cfg *config.Config, store session.Store, e *compaction.Engine, b compaction.Budget) *sweep.Sweeper {
	return sweep.New(store, e, b, sweep.Options{
		Concurrency: cfg.Sweep.Concurrency,
		Archive:     cfg.Sweep.Archive,
	})
}
