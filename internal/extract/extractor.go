// Package extract turns scraped web context into structured mining
// intelligence via the Gemini generateContent API.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kingban00/mining-pipeline/internal/config"
	"github.com/kingban00/mining-pipeline/internal/model"
	"github.com/kingban00/mining-pipeline/internal/resilience"
	"github.com/kingban00/mining-pipeline/pkg/gemini"
)

// Appended when the context document is cut at the character budget, so the
// model knows the document is incomplete.
const truncationMarker = "\n\n[CONTEXT TRUNCATED FOR TOKEN SAVING]"

const extractionTemperature = 0.1

// Extractor runs the extraction prompt and validates the structured result.
type Extractor struct {
	client gemini.Client
	cfg    config.ExtractConfig
}

// NewExtractor creates an Extractor.
func NewExtractor(client gemini.Client, cfg config.ExtractConfig) *Extractor {
	return &Extractor{client: client, cfg: cfg}
}

// payload mirrors the wire schema with pointer fields so absent keys are
// distinguishable from empty values. A response missing the leadership or
// assets key violates the contract and is retried.
type payload struct {
	OfficialName   *string               `json:"official_name"`
	IsMiningSector *bool                 `json:"is_mining_sector"`
	Leadership     *[]model.Leader       `json:"leadership"`
	Assets         *[]model.AssetFinding `json:"assets"`
}

// Extract sends the company context to the model and returns validated
// intelligence. All failures are transient: provider faults, empty
// responses, and contract violations alike get retried by the queue.
func (e *Extractor) Extract(ctx context.Context, name, document string) (*model.Intelligence, error) {
	doc := document
	if len(doc) > e.cfg.MaxContextChars {
		doc = doc[:e.cfg.MaxContextChars] + truncationMarker
		zap.L().Debug("context truncated",
			zap.String("company", name),
			zap.Int("original_chars", len(document)))
	}

	resp, err := e.client.GenerateContent(ctx, gemini.GenerateRequest{
		Contents: []gemini.Content{
			{Role: "user", Parts: []gemini.Part{{Text: buildPrompt(name, doc)}}},
		},
		GenerationConfig: gemini.GenerationConfig{
			Temperature:      extractionTemperature,
			ResponseMIMEType: "application/json",
		},
	})
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "extract: generate content"), statusCode(err))
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, resilience.NewTransientError(eris.New("extract: empty model response"), 0)
	}

	var p payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "extract: parse model response"), 0)
	}
	if p.Leadership == nil || p.Assets == nil {
		return nil, resilience.NewTransientError(eris.New("extract: response missing leadership or assets key"), 0)
	}

	intel := &model.Intelligence{
		Leadership: *p.Leadership,
		Assets:     *p.Assets,
	}
	if p.OfficialName != nil {
		intel.OfficialName = strings.TrimSpace(*p.OfficialName)
	}
	if p.IsMiningSector != nil {
		intel.IsMiningSector = *p.IsMiningSector
	}
	sanitizeCoordinates(intel.Assets)

	zap.L().Info("extraction complete",
		zap.String("company", name),
		zap.Bool("is_mining_sector", intel.IsMiningSector),
		zap.Int("leaders", len(intel.Leadership)),
		zap.Int("assets", len(intel.Assets)))
	return intel, nil
}

// sanitizeCoordinates drops lat/long pairs outside valid ranges. The model
// estimates coordinates from location text and occasionally hallucinates.
func sanitizeCoordinates(assets []model.AssetFinding) {
	for i := range assets {
		a := &assets[i]
		if a.Latitude != nil && (*a.Latitude < -90 || *a.Latitude > 90) {
			a.Latitude, a.Longitude = nil, nil
			continue
		}
		if a.Longitude != nil && (*a.Longitude < -180 || *a.Longitude > 180) {
			a.Latitude, a.Longitude = nil, nil
		}
	}
}

func statusCode(err error) int {
	var apiErr *gemini.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func buildPrompt(name, doc string) string {
	var b strings.Builder
	b.WriteString("You are a senior mining industry analyst. Analyze the web context below about the company \"")
	b.WriteString(name)
	b.WriteString("\" and extract structured intelligence.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Only include information about the mining company itself. Ignore unrelated companies that share a similar name.\n")
	b.WriteString("- Determine the official corporate name and whether the company operates in the mining sector.\n")
	b.WriteString("- For each leadership member, provide their name, a list of areas of expertise, and a technical_summary of exactly 3 bullet points describing their professional background.\n")
	b.WriteString("- For each asset (mine, project, or operation), provide its name, commodities produced, operational status, and location (country, state_province, town).\n")
	b.WriteString("- Estimate latitude and longitude from the location details when coordinates are not stated. Use null when no reasonable estimate exists.\n")
	b.WriteString("- If a section of the context says \"No data found for this section.\", return an empty array for that section.\n")
	b.WriteString("- Respond with JSON only, matching this schema exactly:\n\n")
	b.WriteString(`{
  "official_name": "string",
  "is_mining_sector": true,
  "leadership": [
    {
      "name": "string",
      "expertise": ["string"],
      "technical_summary": ["string", "string", "string"]
    }
  ],
  "assets": [
    {
      "name": "string",
      "commodities": ["string"],
      "status": "string or null",
      "country": "string or null",
      "state_province": "string or null",
      "town": "string or null",
      "latitude": 0.0,
      "longitude": 0.0
    }
  ]
}`)
	b.WriteString("\n\nWeb context:\n\n")
	b.WriteString(doc)
	return b.String()
}
