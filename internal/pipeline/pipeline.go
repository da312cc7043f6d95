// Package pipeline orchestrates one company's journey from submitted name to
// stored intelligence: freshness guard, per-name lease, cached context fetch,
// LLM extraction, and the transactional write (or rejection).
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kingban00/mining-pipeline/internal/cache"
	"github.com/kingban00/mining-pipeline/internal/catalog"
	"github.com/kingban00/mining-pipeline/internal/model"
	"github.com/kingban00/mining-pipeline/internal/resilience"
	"github.com/kingban00/mining-pipeline/internal/resolve"
)

// Outcome states what a run did with its task.
type Outcome int

const (
	// Completed means intelligence was extracted and stored.
	Completed Outcome = iota
	// Skipped means a fresh record already existed; nothing was touched.
	Skipped
	// Rejected means extraction found nothing storable and the company was
	// recorded as rejected.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Skipped:
		return "skipped"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ContextFetcher gathers web context for a company name.
type ContextFetcher interface {
	Fetch(ctx context.Context, name string) string
}

// IntelligenceExtractor turns a context document into structured findings.
type IntelligenceExtractor interface {
	Extract(ctx context.Context, name, document string) (*model.Intelligence, error)
}

// Config holds the orchestration windows.
type Config struct {
	FreshnessWindow time.Duration
	ContextTTL      time.Duration
}

// Pipeline processes one task end to end. All collaborators are injected;
// the pipeline holds no global state.
type Pipeline struct {
	store     catalog.Store
	contexts  cache.Store
	leases    *cache.LeaseRegistry
	fetcher   ContextFetcher
	extractor IntelligenceExtractor
	cfg       Config
}

// New creates a Pipeline.
func New(store catalog.Store, contexts cache.Store, leases *cache.LeaseRegistry, fetcher ContextFetcher, extractor IntelligenceExtractor, cfg Config) *Pipeline {
	return &Pipeline{
		store:     store,
		contexts:  contexts,
		leases:    leases,
		fetcher:   fetcher,
		extractor: extractor,
		cfg:       cfg,
	}
}

// Run processes a task and reports its outcome. Transient failures come back
// wrapped for the queue to retry; a held lease or an empty name fails fast.
func (p *Pipeline) Run(ctx context.Context, task model.Task) (Outcome, error) {
	name := resolve.Name(task.RawName)
	if name == "" {
		return 0, eris.New("pipeline: empty company name")
	}
	log := zap.L().With(zap.String("company", name))

	// Freshness guard: a record updated inside the window is authoritative.
	existing, err := p.store.GetCompanyByName(ctx, name)
	if err != nil {
		return 0, resilience.NewTransientError(eris.Wrap(err, "pipeline: freshness check"), 0)
	}
	if existing != nil && time.Since(existing.UpdatedAt) < p.cfg.FreshnessWindow {
		log.Info("skipping fresh company",
			zap.String("status", string(existing.Status)),
			zap.Time("updated_at", existing.UpdatedAt))
		return Skipped, nil
	}

	key := resolve.CacheKey(name)
	if !p.leases.TryAcquire(key) {
		// Another run owns this name right now. Retrying would only race it.
		return 0, eris.Errorf("pipeline: %s is already being processed", name)
	}
	defer p.leases.Release(key)

	document, err := cache.GetOrFetch(ctx, p.contexts, key, p.cfg.ContextTTL, func(ctx context.Context) (string, error) {
		return p.fetcher.Fetch(ctx, name), nil
	})
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: gather context")
	}

	intel, err := p.extractor.Extract(ctx, name, document)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: extract")
	}

	officialName := intel.OfficialName
	if officialName == "" {
		officialName = name
	}

	if !intel.IsMiningSector || !intel.HasFindings() {
		if _, err := p.store.MarkRejected(ctx, officialName); err != nil {
			return 0, resilience.NewTransientError(eris.Wrap(err, "pipeline: mark rejected"), 0)
		}
		log.Info("company rejected",
			zap.String("official_name", officialName),
			zap.Bool("is_mining_sector", intel.IsMiningSector),
			zap.Bool("has_findings", intel.HasFindings()))
		return Rejected, nil
	}

	company, err := p.store.ReplaceIntelligence(ctx, officialName, intel.Leadership, intel.Assets)
	if err != nil {
		return 0, resilience.NewTransientError(eris.Wrap(err, "pipeline: store intelligence"), 0)
	}

	log.Info("company completed",
		zap.String("company_id", company.ID),
		zap.String("official_name", officialName),
		zap.Int("executives", len(intel.Leadership)),
		zap.Int("assets", len(intel.Assets)))
	return Completed, nil
}
