// Package fetch gathers web context about a company for downstream
// extraction. Two search scopes run concurrently: leadership (board and
// executive pages) and assets (mines, projects, operations).
package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kingban00/mining-pipeline/internal/config"
	"github.com/kingban00/mining-pipeline/pkg/firecrawl"
)

// Placeholder inserted when a scope yields no usable content. The extractor
// prompt recognizes this marker, so keep it stable.
const noDataPlaceholder = "No data found for this section."

// Fetcher assembles a single context document from two scoped searches.
type Fetcher struct {
	client firecrawl.Client
	cfg    config.FetchConfig
}

// NewFetcher creates a Fetcher.
func NewFetcher(client firecrawl.Client, cfg config.FetchConfig) *Fetcher {
	return &Fetcher{client: client, cfg: cfg}
}

// Fetch returns the combined context document for the named company. It
// never returns an error: a failed or empty scope degrades to a placeholder
// section so extraction can still run on whatever was found.
func (f *Fetcher) Fetch(ctx context.Context, name string) string {
	var leadership, assets string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		leadership = f.search(gctx, "leadership",
			fmt.Sprintf("%s mining company board of directors executive management team", name),
			f.cfg.LeadershipLimit, f.cfg.LeadershipMaxChars)
		return nil
	})
	g.Go(func() error {
		assets = f.search(gctx, "assets",
			fmt.Sprintf("%s mining company active operations assets mines projects location", name),
			f.cfg.AssetsLimit, f.cfg.AssetsMaxChars)
		return nil
	})
	g.Wait() //nolint:errcheck // goroutines never return errors

	return fmt.Sprintf("--- LEADERSHIP CONTEXT ---\n%s\n\n--- ASSETS CONTEXT ---\n%s", leadership, assets)
}

// search runs one scoped search and formats the hits with source
// attributions, truncated to the scope's character budget.
func (f *Fetcher) search(ctx context.Context, scope, query string, limit, maxChars int) string {
	start := time.Now()

	sctx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout())
	defer cancel()

	resp, err := f.client.Search(sctx, firecrawl.SearchRequest{
		Query: query,
		Limit: limit,
		ScrapeOptions: firecrawl.ScrapeOptions{
			Formats:         []string{"markdown"},
			OnlyMainContent: true,
		},
	})
	if err != nil {
		zap.L().Warn("context search failed",
			zap.String("scope", scope),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return noDataPlaceholder
	}

	var b strings.Builder
	for _, page := range resp.Data {
		if strings.TrimSpace(page.Markdown) == "" {
			continue
		}
		b.WriteString("Source URL: ")
		b.WriteString(page.URL)
		b.WriteString("\n")
		b.WriteString(page.Markdown)
		b.WriteString("\n\n")
	}

	content := strings.TrimSpace(b.String())
	if content == "" {
		zap.L().Info("context search returned no content", zap.String("scope", scope))
		return noDataPlaceholder
	}
	if len(content) > maxChars {
		content = content[:maxChars]
	}

	zap.L().Debug("context search done",
		zap.String("scope", scope),
		zap.Int("pages", len(resp.Data)),
		zap.Int("chars", len(content)),
		zap.Duration("elapsed", time.Since(start)))
	return content
}
