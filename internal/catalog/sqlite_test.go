package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingban00/mining-pipeline/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func ptr[T any](v T) *T { return &v }

func TestSQLiteStore_ReplaceIntelligence_RoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	company, err := s.ReplaceIntelligence(ctx, "Test Mining Corp S.A.",
		[]model.Leader{
			{Name: "John Doe", Expertise: []string{"geology", "operations"}, TechnicalSummary: []string{"a", "b", "c"}},
		},
		[]model.AssetFinding{
			{
				Name: "Alpha Mine", Commodities: []string{"gold"},
				Status: ptr("active"), Country: ptr("Brazil"),
				StateProvince: ptr("Minas Gerais"), Town: ptr("Belo Horizonte"),
				Latitude: ptr(-19.916681), Longitude: ptr(-43.934493),
			},
		},
	)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, company.Status)

	got, err := s.GetCompany(ctx, company.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Executives, 1)
	assert.Equal(t, "John Doe", got.Executives[0].Name)
	assert.Equal(t, []string{"geology", "operations"}, got.Executives[0].Expertise)
	require.Len(t, got.Assets, 1)
	assert.Equal(t, "Alpha Mine", got.Assets[0].Name)
	require.True(t, got.Assets[0].HasCoordinates())
	assert.InDelta(t, -19.916681, *got.Assets[0].Latitude, 1e-9)
}

func TestSQLiteStore_ReplaceIntelligence_Idempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := s.ReplaceIntelligence(ctx, "Vale S.A.",
		[]model.Leader{{Name: "Old Leader"}, {Name: "Departed Leader"}}, nil)
	require.NoError(t, err)

	second, err := s.ReplaceIntelligence(ctx, "Vale S.A.",
		[]model.Leader{{Name: "New Leader"}},
		[]model.AssetFinding{{Name: "Carajas", Commodities: []string{"iron ore"}}})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	got, err := s.GetCompany(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, got.Executives, 1)
	assert.Equal(t, "New Leader", got.Executives[0].Name)
	require.Len(t, got.Assets, 1)

	companies, total, err := s.ListCompanies(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, companies, 1)
}

func TestSQLiteStore_GetCompanyByName_CaseInsensitive(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.ReplaceIntelligence(ctx, "Vale S.A.", nil, nil)
	require.NoError(t, err)

	got, err := s.GetCompanyByName(ctx, "VALE s.a.")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Vale S.A.", got.Name)

	missing, err := s.GetCompanyByName(ctx, "Rio Tinto")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStore_MarkRejected_PreservesChildren(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	company, err := s.ReplaceIntelligence(ctx, "Vale S.A.",
		[]model.Leader{{Name: "John Doe"}}, nil)
	require.NoError(t, err)

	rejected, err := s.MarkRejected(ctx, "Vale S.A.")
	require.NoError(t, err)
	assert.Equal(t, company.ID, rejected.ID)
	assert.Equal(t, model.StatusRejected, rejected.Status)

	got, err := s.GetCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
	assert.Len(t, got.Executives, 1, "rejection must not delete prior findings")
}

func TestSQLiteStore_ListCompanies_SearchAndPaging(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, name := range []string{"Vale S.A.", "Rio Tinto", "BHP Group", "Valeura Energy"} {
		_, err := s.ReplaceIntelligence(ctx, name, nil, nil)
		require.NoError(t, err)
	}

	matches, total, err := s.ListCompanies(ctx, ListFilter{Search: "vale"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, matches, 2)

	page1, total, err := s.ListCompanies(ctx, ListFilter{Page: 1, PerPage: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, page1, 3)

	page2, _, err := s.ListCompanies(ctx, ListFilter{Page: 2, PerPage: 3})
	require.NoError(t, err)
	assert.Len(t, page2, 1)
}

func TestSQLiteStore_ContextCache(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, ok, err := s.GetContext(ctx, "vale-sa")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetContext(ctx, "vale-sa", "scraped context", 6*time.Hour))

	val, ok, err := s.GetContext(ctx, "vale-sa")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "scraped context", val)

	// Overwrite via upsert.
	require.NoError(t, s.SetContext(ctx, "vale-sa", "fresher context", 6*time.Hour))
	val, _, err = s.GetContext(ctx, "vale-sa")
	require.NoError(t, err)
	assert.Equal(t, "fresher context", val)

	// An already-expired entry is invisible and reapable.
	require.NoError(t, s.SetContext(ctx, "stale-key", "old", -time.Minute))
	_, ok, err = s.GetContext(ctx, "stale-key")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.DeleteExpiredContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
