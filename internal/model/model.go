// Package model defines the core types shared across the ingestion pipeline.
package model

import "time"

// CompanyStatus tracks where a company record sits in its lifecycle.
type CompanyStatus string

const (
	StatusPending   CompanyStatus = "pending"
	StatusCompleted CompanyStatus = "completed"
	StatusRejected  CompanyStatus = "rejected"
)

// Task is a single queued unit of work: process one submitted company name.
type Task struct {
	RawName string `json:"raw_name"`
}

// Company is the aggregate root for stored mining intelligence. Name is the
// dedup key (matched case-insensitively); reprocessing the same company
// updates this record rather than creating a duplicate.
type Company struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    CompanyStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	// Populated on detail fetches only.
	Executives []Executive `json:"executives,omitempty"`
	Assets     []Asset     `json:"assets,omitempty"`
}

// Executive is a leadership entry owned by a company. The full set is
// replaced on every successful reprocessing of its owner.
type Executive struct {
	ID               string   `json:"id"`
	CompanyID        string   `json:"company_id"`
	Name             string   `json:"name"`
	Expertise        []string `json:"expertise"`
	TechnicalSummary []string `json:"technical_summary"`
}

// Asset is a mine/project entry owned by a company. Same full-replace
// lifecycle as Executive.
type Asset struct {
	ID            string   `json:"id"`
	CompanyID     string   `json:"company_id"`
	Name          string   `json:"name"`
	Commodities   []string `json:"commodities"`
	Status        *string  `json:"status"`
	Country       *string  `json:"country"`
	StateProvince *string  `json:"state_province"`
	Town          *string  `json:"town"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
}

// HasCoordinates reports whether the asset carries a usable lat/long pair.
func (a Asset) HasCoordinates() bool {
	return a.Latitude != nil && a.Longitude != nil
}

// Intelligence is the validated output of the LLM extraction step.
type Intelligence struct {
	OfficialName   string         `json:"official_name"`
	IsMiningSector bool           `json:"is_mining_sector"`
	Leadership     []Leader       `json:"leadership"`
	Assets         []AssetFinding `json:"assets"`
}

// HasFindings reports whether extraction produced anything worth storing.
func (i Intelligence) HasFindings() bool {
	return len(i.Leadership) > 0 || len(i.Assets) > 0
}

// Leader is one extracted leadership entry, field names matching the
// provider's JSON schema.
type Leader struct {
	Name             string   `json:"name"`
	Expertise        []string `json:"expertise"`
	TechnicalSummary []string `json:"technical_summary"`
}

// AssetFinding is one extracted asset entry. Latitude/longitude may be
// model-estimated from descriptive location text.
type AssetFinding struct {
	Name          string   `json:"name"`
	Commodities   []string `json:"commodities"`
	Status        *string  `json:"status"`
	Country       *string  `json:"country"`
	StateProvince *string  `json:"state_province"`
	Town          *string  `json:"town"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
}
