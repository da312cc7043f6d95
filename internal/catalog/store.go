// Package catalog persists company intelligence: companies, their executives
// and assets, and the scraped-context cache. Postgres backs production;
// SQLite covers single-node and test setups.
package catalog

import (
	"context"
	"time"

	"github.com/kingban00/mining-pipeline/internal/model"
)

// ListFilter narrows and pages ListCompanies.
type ListFilter struct {
	Search  string `json:"search,omitempty"`
	Page    int    `json:"page,omitempty"`
	PerPage int    `json:"per_page,omitempty"`
}

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// Companies
	GetCompanyByName(ctx context.Context, name string) (*model.Company, error)
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	ListCompanies(ctx context.Context, filter ListFilter) ([]model.Company, int, error)

	// ReplaceIntelligence atomically writes a completed extraction: the
	// company row is created or updated and its executives and assets are
	// fully replaced in one transaction.
	ReplaceIntelligence(ctx context.Context, officialName string, leaders []model.Leader, assets []model.AssetFinding) (*model.Company, error)

	// MarkRejected records that extraction found nothing storable. Child
	// rows from any earlier successful run are left untouched.
	MarkRejected(ctx context.Context, name string) (*model.Company, error)

	// Context cache
	GetContext(ctx context.Context, key string) (string, bool, error)
	SetContext(ctx context.Context, key, value string, ttl time.Duration) error
	DeleteExpiredContext(ctx context.Context) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}

// ContextCache adapts a Store's context-cache tables to the cache.Store
// interface the pipeline consumes.
type ContextCache struct {
	store Store
}

// NewContextCache wraps store.
func NewContextCache(store Store) *ContextCache {
	return &ContextCache{store: store}
}

func (c *ContextCache) Get(ctx context.Context, key string) (string, bool, error) {
	return c.store.GetContext(ctx, key)
}

func (c *ContextCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.store.SetContext(ctx, key, value, ttl)
}

// defaultName substitutes "Unknown" for blank extracted names so the
// NOT NULL columns always hold something presentable.
func defaultName(name string) string {
	if name == "" {
		return "Unknown"
	}
	return name
}

// emptyIfNil normalizes nil string slices to empty ones before JSON
// encoding, so stored arrays are [] rather than null.
func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
