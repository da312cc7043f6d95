package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingban00/mining-pipeline/internal/catalog"
	"github.com/kingban00/mining-pipeline/internal/model"
)

type stubQueue struct {
	enqueued []model.Task
	err      error
	pending  int64
}

func (s *stubQueue) Enqueue(task model.Task) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, task)
	return nil
}

func (s *stubQueue) Pending() int64 { return s.pending }

type stubStore struct {
	catalog.Store
	companies []model.Company
	total     int
	detail    *model.Company
	err       error
}

func (s *stubStore) ListCompanies(_ context.Context, _ catalog.ListFilter) ([]model.Company, int, error) {
	return s.companies, s.total, s.err
}

func (s *stubStore) GetCompany(_ context.Context, _ string) (*model.Company, error) {
	return s.detail, s.err
}

func newTestServer(store catalog.Store, q *stubQueue) *httptest.Server {
	return httptest.NewServer(NewServer(NewHandler(store, q, 10)).Router())
}

func TestProcessCompanies(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantTasks  int
	}{
		{
			name:       "accepts batch",
			body:       `{"companies": "Vale, Rio Tinto, vale"}`,
			wantStatus: http.StatusAccepted,
			wantTasks:  2,
		},
		{
			name:       "invalid json",
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing field",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "only separators",
			body:       `{"companies": " , ,, "}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "over batch limit",
			body:       `{"companies": "a,b,c,d,e,f,g,h,i,j,k"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &stubQueue{}
			srv := newTestServer(&stubStore{}, q)
			defer srv.Close()

			resp, err := http.Post(srv.URL+"/api/companies/process", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Len(t, q.enqueued, tt.wantTasks)
		})
	}
}

func TestListCompanies(t *testing.T) {
	now := time.Now().UTC()
	store := &stubStore{
		companies: []model.Company{
			{ID: "c-1", Name: "Vale S.A.", Status: model.StatusCompleted, CreatedAt: now, UpdatedAt: now},
		},
		total: 1,
	}
	srv := newTestServer(store, &stubQueue{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/companies?search=vale")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Data  []model.Company `json:"data"`
		Total int             `json:"total"`
		Page  int             `json:"page"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, 1, body.Page)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Vale S.A.", body.Data[0].Name)
}

func TestListCompanies_EmptyIsArray(t *testing.T) {
	srv := newTestServer(&stubStore{}, &stubQueue{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/companies")
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, `[]`, string(raw["data"]))
}

func TestGetCompany(t *testing.T) {
	lat, lon := -19.9, -43.9
	store := &stubStore{detail: &model.Company{
		ID: "c-1", Name: "Vale S.A.", Status: model.StatusCompleted,
		Executives: []model.Executive{{ID: "e-1", Name: "John Doe"}},
		Assets:     []model.Asset{{ID: "a-1", Name: "Carajas", Latitude: &lat, Longitude: &lon}},
	}}
	srv := newTestServer(store, &stubQueue{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/companies/c-1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var company model.Company
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&company))
	assert.Equal(t, "Vale S.A.", company.Name)
	assert.Len(t, company.Executives, 1)
	assert.Len(t, company.Assets, 1)
}

func TestGetCompany_NotFound(t *testing.T) {
	srv := newTestServer(&stubStore{}, &stubQueue{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/companies/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQueueStatus(t *testing.T) {
	srv := newTestServer(&stubStore{}, &stubQueue{pending: 7})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/companies/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(7), body["pending_jobs"])
}

func TestCompanyAssetsGeoJSON(t *testing.T) {
	lat, lon := -19.916681, -43.934493
	status := "active"
	store := &stubStore{detail: &model.Company{
		ID: "c-1", Name: "Vale S.A.", Status: model.StatusCompleted,
		Assets: []model.Asset{
			{ID: "a-1", Name: "Carajas", Commodities: []string{"iron ore"}, Status: &status, Latitude: &lat, Longitude: &lon},
			{ID: "a-2", Name: "Unlocated Project"},
		},
	}}
	srv := newTestServer(store, &stubQueue{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/companies/c-1/assets.geojson")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1, "assets without coordinates are omitted")
	assert.Equal(t, "Point", fc.Features[0].Geometry.Type)
	assert.InDelta(t, lon, fc.Features[0].Geometry.Coordinates[0], 1e-9)
	assert.InDelta(t, lat, fc.Features[0].Geometry.Coordinates[1], 1e-9)
	assert.Equal(t, "Carajas", fc.Features[0].Properties["name"])
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&stubStore{}, &stubQueue{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
