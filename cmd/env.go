package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kingban00/mining-pipeline/internal/cache"
	"github.com/kingban00/mining-pipeline/internal/catalog"
	"github.com/kingban00/mining-pipeline/internal/extract"
	"github.com/kingban00/mining-pipeline/internal/fetch"
	"github.com/kingban00/mining-pipeline/internal/pipeline"
	"github.com/kingban00/mining-pipeline/internal/queue"
	"github.com/kingban00/mining-pipeline/pkg/firecrawl"
	"github.com/kingban00/mining-pipeline/pkg/gemini"
)

// pipelineEnv holds the initialized store, pipeline, and worker pool shared
// by the serve and process commands.
type pipelineEnv struct {
	Store    catalog.Store
	Pipeline *pipeline.Pipeline
	Pool     *queue.WorkerPool
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured catalog backend.
func initStore(ctx context.Context) (catalog.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("MINTEL_STORE_DATABASE_URL is required for the postgres driver")
		}
		return catalog.NewPostgres(ctx, cfg.Store.DatabaseURL, &catalog.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite":
		return catalog.NewSQLite(cfg.Store.SQLitePath)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, provider clients, pipeline, and worker
// pool. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	firecrawlClient := firecrawl.NewClient(cfg.Firecrawl.Key,
		firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL),
		firecrawl.WithRateLimit(cfg.Firecrawl.RequestsPerSecond, cfg.Firecrawl.Burst),
	)
	geminiClient := gemini.NewClient(cfg.Gemini.Key,
		gemini.WithBaseURL(cfg.Gemini.BaseURL),
		gemini.WithModel(cfg.Gemini.Model),
	)

	fetcher := fetch.NewFetcher(firecrawlClient, cfg.Fetch)
	extractor := extract.NewExtractor(geminiClient, cfg.Extract)

	p := pipeline.New(
		st,
		catalog.NewContextCache(st),
		cache.NewLeaseRegistry(cfg.Pipeline.LeaseTTL()),
		fetcher,
		extractor,
		pipeline.Config{
			FreshnessWindow: cfg.Pipeline.FreshnessWindow(),
			ContextTTL:      cfg.Pipeline.ContextTTL(),
		},
	)

	pool := queue.NewWorkerPool(p, queue.Config{
		Workers:        cfg.Queue.Workers,
		Buffer:         cfg.Queue.Buffer,
		MaxAttempts:    cfg.Queue.MaxAttempts,
		InitialBackoff: cfg.Queue.InitialBackoff(),
		AttemptTimeout: cfg.Queue.AttemptTimeout(),
	})

	if n, err := st.DeleteExpiredContext(ctx); err != nil {
		zap.L().Warn("expired context sweep failed", zap.Error(err))
	} else if n > 0 {
		zap.L().Info("swept expired context entries", zap.Int("deleted", n))
	}

	return &pipelineEnv{Store: st, Pipeline: p, Pool: pool}, nil
}
