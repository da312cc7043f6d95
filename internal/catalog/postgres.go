package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/kingban00/mining-pipeline/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_name_lower ON companies(lower(name));
CREATE INDEX IF NOT EXISTS idx_companies_status ON companies(status);

CREATE TABLE IF NOT EXISTS executives (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	company_id        TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	name              TEXT NOT NULL,
	expertise         JSONB NOT NULL DEFAULT '[]',
	technical_summary JSONB NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_executives_company_id ON executives(company_id);

CREATE TABLE IF NOT EXISTS assets (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	company_id     TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	name           TEXT NOT NULL,
	commodities    JSONB NOT NULL DEFAULT '[]',
	status         TEXT,
	country        TEXT,
	state_province TEXT,
	town           TEXT,
	latitude       DOUBLE PRECISION,
	longitude      DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_assets_company_id ON assets(company_id);

CREATE TABLE IF NOT EXISTS context_cache (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	cache_key  TEXT NOT NULL UNIQUE,
	content    TEXT NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_context_cache_expires_at ON context_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetCompanyByName(ctx context.Context, name string) (*model.Company, error) {
	var c model.Company
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, status, created_at, updated_at FROM companies WHERE lower(name) = lower($1)`,
		name,
	).Scan(&c.ID, &c.Name, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get company by name %s", name)
	}
	return &c, nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	var c model.Company
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, status, created_at, updated_at FROM companies WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get company %s", id)
	}

	if c.Executives, err = s.listExecutives(ctx, id); err != nil {
		return nil, err
	}
	if c.Assets, err = s.listAssets(ctx, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) listExecutives(ctx context.Context, companyID string) ([]model.Executive, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, name, expertise, technical_summary FROM executives WHERE company_id = $1 ORDER BY name`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list executives")
	}
	defer rows.Close()

	var execs []model.Executive
	for rows.Next() {
		var e model.Executive
		var expertiseJSON, summaryJSON []byte
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Name, &expertiseJSON, &summaryJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan executive")
		}
		if err := json.Unmarshal(expertiseJSON, &e.Expertise); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal expertise")
		}
		if err := json.Unmarshal(summaryJSON, &e.TechnicalSummary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal technical summary")
		}
		execs = append(execs, e)
	}
	return execs, eris.Wrap(rows.Err(), "postgres: list executives iterate")
}

func (s *PostgresStore) listAssets(ctx context.Context, companyID string) ([]model.Asset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, name, commodities, status, country, state_province, town, latitude, longitude
		 FROM assets WHERE company_id = $1 ORDER BY name`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assets")
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		var a model.Asset
		var commoditiesJSON []byte
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Name, &commoditiesJSON,
			&a.Status, &a.Country, &a.StateProvince, &a.Town, &a.Latitude, &a.Longitude); err != nil {
			return nil, eris.Wrap(err, "postgres: scan asset")
		}
		if err := json.Unmarshal(commoditiesJSON, &a.Commodities); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal commodities")
		}
		assets = append(assets, a)
	}
	return assets, eris.Wrap(rows.Err(), "postgres: list assets iterate")
}

func (s *PostgresStore) ListCompanies(ctx context.Context, filter ListFilter) ([]model.Company, int, error) {
	where := ``
	args := []any{}
	argIdx := 1

	if filter.Search != "" {
		where = fmt.Sprintf(` WHERE name ILIKE $%d`, argIdx)
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM companies`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count companies")
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 10
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	query := `SELECT id, name, status, created_at, updated_at FROM companies` + where +
		fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, eris.Wrap(err, "postgres: scan company")
		}
		companies = append(companies, c)
	}
	return companies, total, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

func (s *PostgresStore) ReplaceIntelligence(ctx context.Context, officialName string, leaders []model.Leader, assets []model.AssetFinding) (*model.Company, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin replace")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	now := time.Now().UTC()

	var companyID string
	var createdAt time.Time
	err = tx.QueryRow(ctx,
		`SELECT id, created_at FROM companies WHERE lower(name) = lower($1)`,
		officialName,
	).Scan(&companyID, &createdAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		companyID = uuid.New().String()
		createdAt = now
		if _, err := tx.Exec(ctx,
			`INSERT INTO companies (id, name, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
			companyID, officialName, string(model.StatusCompleted), now, now,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: insert company")
		}
	case err != nil:
		return nil, eris.Wrap(err, "postgres: resolve company")
	default:
		if _, err := tx.Exec(ctx,
			`UPDATE companies SET name = $1, status = $2, updated_at = $3 WHERE id = $4`,
			officialName, string(model.StatusCompleted), now, companyID,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: update company")
		}
	}

	// Full replace: drop all children, then re-insert from the new extraction.
	if _, err := tx.Exec(ctx, `DELETE FROM executives WHERE company_id = $1`, companyID); err != nil {
		return nil, eris.Wrap(err, "postgres: delete executives")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM assets WHERE company_id = $1`, companyID); err != nil {
		return nil, eris.Wrap(err, "postgres: delete assets")
	}

	for _, l := range leaders {
		expertiseJSON, err := json.Marshal(emptyIfNil(l.Expertise))
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal expertise")
		}
		summaryJSON, err := json.Marshal(emptyIfNil(l.TechnicalSummary))
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal technical summary")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO executives (id, company_id, name, expertise, technical_summary) VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), companyID, defaultName(l.Name), expertiseJSON, summaryJSON,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: insert executive")
		}
	}

	for _, a := range assets {
		commoditiesJSON, err := json.Marshal(emptyIfNil(a.Commodities))
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal commodities")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO assets (id, company_id, name, commodities, status, country, state_province, town, latitude, longitude)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.New().String(), companyID, defaultName(a.Name), commoditiesJSON,
			a.Status, a.Country, a.StateProvince, a.Town, a.Latitude, a.Longitude,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: insert asset")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit replace")
	}

	return &model.Company{
		ID:        companyID,
		Name:      officialName,
		Status:    model.StatusCompleted,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) MarkRejected(ctx context.Context, name string) (*model.Company, error) {
	now := time.Now().UTC()

	existing, err := s.GetCompanyByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		id := uuid.New().String()
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO companies (id, name, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
			id, name, string(model.StatusRejected), now, now,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: insert rejected company")
		}
		return &model.Company{ID: id, Name: name, Status: model.StatusRejected, CreatedAt: now, UpdatedAt: now}, nil
	}

	if _, err := s.pool.Exec(ctx,
		`UPDATE companies SET status = $1, updated_at = $2 WHERE id = $3`,
		string(model.StatusRejected), now, existing.ID,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: mark rejected")
	}
	existing.Status = model.StatusRejected
	existing.UpdatedAt = now
	return existing, nil
}

func (s *PostgresStore) GetContext(ctx context.Context, key string) (string, bool, error) {
	var content string
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM context_cache WHERE cache_key = $1 AND expires_at > now()`,
		key,
	).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, eris.Wrap(err, "postgres: get context")
	}
	return content, true, nil
}

func (s *PostgresStore) SetContext(ctx context.Context, key, value string, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO context_cache (id, cache_key, content, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (cache_key) DO UPDATE SET content = $3, cached_at = $4, expires_at = $5`,
		uuid.New().String(), key, value, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set context")
}

func (s *PostgresStore) DeleteExpiredContext(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM context_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired context")
	}
	return int(tag.RowsAffected()), nil
}
