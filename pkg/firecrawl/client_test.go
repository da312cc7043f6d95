package firecrawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-api-key", WithBaseURL(srv.URL))
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantPages  int
		wantErr    bool
		wantAPIErr bool
		wantStatus int
	}{
		{
			name: "happy path",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/search", r.URL.Path)
				assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var req SearchRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "Vale mining company board of directors", req.Query)
				assert.Equal(t, 2, req.Limit)
				assert.True(t, req.ScrapeOptions.OnlyMainContent)
				assert.Equal(t, []string{"markdown"}, req.ScrapeOptions.Formats)

				json.NewEncoder(w).Encode(SearchResponse{
					Success: true,
					Data: []PageData{
						{URL: "https://vale.com/leadership", Markdown: "# Board"},
						{URL: "https://example.com/vale", Markdown: "# Profile"},
					},
				})
			},
			wantPages: 2,
		},
		{
			name: "quota exceeded",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
			},
			wantErr:    true,
			wantAPIErr: true,
			wantStatus: 429,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"internal server error"}`))
			},
			wantErr:    true,
			wantAPIErr: true,
			wantStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, tt.handler)
			resp, err := c.Search(context.Background(), SearchRequest{
				Query: "Vale mining company board of directors",
				Limit: 2,
				ScrapeOptions: ScrapeOptions{
					Formats:         []string{"markdown"},
					OnlyMainContent: true,
				},
			})

			if tt.wantErr {
				require.Error(t, err)
				if tt.wantAPIErr {
					var apiErr *APIError
					require.ErrorAs(t, err, &apiErr)
					assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
				}
				return
			}
			require.NoError(t, err)
			assert.True(t, resp.Success)
			assert.Len(t, resp.Data, tt.wantPages)
		})
	}
}

func TestScrape(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scrape", r.URL.Path)
		json.NewEncoder(w).Encode(ScrapeResponse{
			Success: true,
			Data:    PageData{URL: "https://vale.com", Markdown: "# Vale", Title: "Vale"},
		})
	})

	resp, err := c.Scrape(context.Background(), ScrapeRequest{URL: "https://vale.com", Formats: []string{"markdown"}})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "# Vale", resp.Data.Markdown)
}

func TestSearch_MalformedBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	})

	_, err := c.Search(context.Background(), SearchRequest{Query: "x"})
	require.Error(t, err)
}
