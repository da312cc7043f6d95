package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/kingban00/mining-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_name_lower ON companies(lower(name));
CREATE INDEX IF NOT EXISTS idx_companies_status ON companies(status);

CREATE TABLE IF NOT EXISTS executives (
	id                TEXT PRIMARY KEY,
	company_id        TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	name              TEXT NOT NULL,
	expertise         TEXT NOT NULL DEFAULT '[]',
	technical_summary TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_executives_company_id ON executives(company_id);

CREATE TABLE IF NOT EXISTS assets (
	id             TEXT PRIMARY KEY,
	company_id     TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	name           TEXT NOT NULL,
	commodities    TEXT NOT NULL DEFAULT '[]',
	status         TEXT,
	country        TEXT,
	state_province TEXT,
	town           TEXT,
	latitude       REAL,
	longitude      REAL
);

CREATE INDEX IF NOT EXISTS idx_assets_company_id ON assets(company_id);

CREATE TABLE IF NOT EXISTS context_cache (
	id         TEXT PRIMARY KEY,
	cache_key  TEXT NOT NULL UNIQUE,
	content    TEXT NOT NULL,
	cached_at  DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_context_cache_expires_at ON context_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetCompanyByName(ctx context.Context, name string) (*model.Company, error) {
	var c model.Company
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, created_at, updated_at FROM companies WHERE lower(name) = lower(?)`,
		name,
	).Scan(&c.ID, &c.Name, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get company by name %s", name)
	}
	return &c, nil
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	var c model.Company
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, created_at, updated_at FROM companies WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.Name, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get company %s", id)
	}

	if c.Executives, err = s.listExecutives(ctx, id); err != nil {
		return nil, err
	}
	if c.Assets, err = s.listAssets(ctx, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) listExecutives(ctx context.Context, companyID string) ([]model.Executive, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, name, expertise, technical_summary FROM executives WHERE company_id = ? ORDER BY name`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list executives")
	}
	defer rows.Close()

	var execs []model.Executive
	for rows.Next() {
		var e model.Executive
		var expertiseJSON, summaryJSON string
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Name, &expertiseJSON, &summaryJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan executive")
		}
		if err := json.Unmarshal([]byte(expertiseJSON), &e.Expertise); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal expertise")
		}
		if err := json.Unmarshal([]byte(summaryJSON), &e.TechnicalSummary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal technical summary")
		}
		execs = append(execs, e)
	}
	return execs, eris.Wrap(rows.Err(), "sqlite: list executives iterate")
}

func (s *SQLiteStore) listAssets(ctx context.Context, companyID string) ([]model.Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, name, commodities, status, country, state_province, town, latitude, longitude
		 FROM assets WHERE company_id = ? ORDER BY name`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assets")
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		var a model.Asset
		var commoditiesJSON string
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Name, &commoditiesJSON,
			&a.Status, &a.Country, &a.StateProvince, &a.Town, &a.Latitude, &a.Longitude); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan asset")
		}
		if err := json.Unmarshal([]byte(commoditiesJSON), &a.Commodities); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal commodities")
		}
		assets = append(assets, a)
	}
	return assets, eris.Wrap(rows.Err(), "sqlite: list assets iterate")
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, filter ListFilter) ([]model.Company, int, error) {
	where := ``
	args := []any{}

	if filter.Search != "" {
		where = ` WHERE name LIKE ? COLLATE NOCASE`
		args = append(args, "%"+filter.Search+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count companies")
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 10
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, status, created_at, updated_at FROM companies`+where+
			` ORDER BY name LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, eris.Wrap(err, "sqlite: scan company")
		}
		companies = append(companies, c)
	}
	return companies, total, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

func (s *SQLiteStore) ReplaceIntelligence(ctx context.Context, officialName string, leaders []model.Leader, assets []model.AssetFinding) (*model.Company, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin replace")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().UTC()

	var companyID string
	var createdAt time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT id, created_at FROM companies WHERE lower(name) = lower(?)`,
		officialName,
	).Scan(&companyID, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		companyID = uuid.New().String()
		createdAt = now
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO companies (id, name, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			companyID, officialName, string(model.StatusCompleted), now, now,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: insert company")
		}
	case err != nil:
		return nil, eris.Wrap(err, "sqlite: resolve company")
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE companies SET name = ?, status = ?, updated_at = ? WHERE id = ?`,
			officialName, string(model.StatusCompleted), now, companyID,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: update company")
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM executives WHERE company_id = ?`, companyID); err != nil {
		return nil, eris.Wrap(err, "sqlite: delete executives")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE company_id = ?`, companyID); err != nil {
		return nil, eris.Wrap(err, "sqlite: delete assets")
	}

	for _, l := range leaders {
		expertiseJSON, err := json.Marshal(emptyIfNil(l.Expertise))
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal expertise")
		}
		summaryJSON, err := json.Marshal(emptyIfNil(l.TechnicalSummary))
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal technical summary")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO executives (id, company_id, name, expertise, technical_summary) VALUES (?, ?, ?, ?, ?)`,
			uuid.New().String(), companyID, defaultName(l.Name), string(expertiseJSON), string(summaryJSON),
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: insert executive")
		}
	}

	for _, a := range assets {
		commoditiesJSON, err := json.Marshal(emptyIfNil(a.Commodities))
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal commodities")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO assets (id, company_id, name, commodities, status, country, state_province, town, latitude, longitude)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), companyID, defaultName(a.Name), string(commoditiesJSON),
			a.Status, a.Country, a.StateProvince, a.Town, a.Latitude, a.Longitude,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: insert asset")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit replace")
	}

	return &model.Company{
		ID:        companyID,
		Name:      officialName,
		Status:    model.StatusCompleted,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) MarkRejected(ctx context.Context, name string) (*model.Company, error) {
	now := time.Now().UTC()

	existing, err := s.GetCompanyByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		id := uuid.New().String()
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO companies (id, name, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			id, name, string(model.StatusRejected), now, now,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: insert rejected company")
		}
		return &model.Company{ID: id, Name: name, Status: model.StatusRejected, CreatedAt: now, UpdatedAt: now}, nil
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE companies SET status = ?, updated_at = ? WHERE id = ?`,
		string(model.StatusRejected), now, existing.ID,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: mark rejected")
	}
	existing.Status = model.StatusRejected
	existing.UpdatedAt = now
	return existing, nil
}

func (s *SQLiteStore) GetContext(ctx context.Context, key string) (string, bool, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM context_cache WHERE cache_key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, eris.Wrap(err, "sqlite: get context")
	}
	return content, true, nil
}

func (s *SQLiteStore) SetContext(ctx context.Context, key, value string, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO context_cache (id, cache_key, content, cached_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (cache_key) DO UPDATE SET content = excluded.content, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		uuid.New().String(), key, value, now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set context")
}

func (s *SQLiteStore) DeleteExpiredContext(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM context_cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired context")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}
