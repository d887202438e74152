package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/macrolens/productcheck/internal/domain"
)

// DefaultSearchLimit bounds a catalog search
const DefaultSearchLimit = 50

// Schema creates the catalog tables if they do not exist
const Schema = `
CREATE TABLE IF NOT EXISTS products (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	manufacturer_name   TEXT,
	registration_number TEXT,
	certification       TEXT,
	barcode             TEXT,
	category            TEXT,
	nutri_score         TEXT,
	country             TEXT,
	state               TEXT,
	image_url           TEXT,
	status              TEXT NOT NULL DEFAULT 'pending',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS products_barcode_idx ON products (barcode);
CREATE INDEX IF NOT EXISTS products_lower_name_idx ON products (lower(name));

CREATE TABLE IF NOT EXISTS verification_log (
	id         BIGSERIAL PRIMARY KEY,
	user_id    TEXT NOT NULL,
	query      TEXT NOT NULL,
	verdict    TEXT NOT NULL,
	product_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const productColumns = `id, name, COALESCE(manufacturer_name, ''), COALESCE(registration_number, ''),
	COALESCE(certification, ''), COALESCE(barcode, ''), COALESCE(category, ''),
	COALESCE(nutri_score, ''), COALESCE(country, ''), COALESCE(state, ''),
	COALESCE(image_url, ''), status`

// querier is the subset of *pgxpool.Pool the catalog uses
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PoolConfig configures the connection pool
type PoolConfig struct {
	URL      string
	MaxConns int32
}

// OpenPool parses cfg.URL and connects a pgx pool, verifying it with a ping
func OpenPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Postgres is a catalog stored in PostgreSQL
type Postgres struct {
	db     querier
	limit  int
	logger zerolog.Logger
}

// NewPostgres creates a catalog over pool
func NewPostgres(pool *pgxpool.Pool, logger zerolog.Logger) *Postgres {
	return &Postgres{db: pool, limit: DefaultSearchLimit, logger: logger}
}

// Migrate applies Schema
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Search returns approved entries whose name contains query, oldest first
func (p *Postgres) Search(ctx context.Context, query string, filters domain.SearchFilters) ([]domain.CatalogProduct, error) {
	sql, args := buildSearchQuery(query, filters, p.limit)
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return collectProducts(rows)
}

// Verify looks query up by barcode or case-insensitive exact name. A
// counterfeit entry outranks an approved one. Lookups with a user id are
// recorded in verification_log.
func (p *Postgres) Verify(ctx context.Context, query, userID string, filters domain.SearchFilters) (*domain.InternalVerdict, error) {
	sql, args := buildVerifyQuery(strings.TrimSpace(query), filters)
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("verify product: %w", err)
	}
	matches, err := collectProducts(rows)
	if err != nil {
		return nil, err
	}

	v := verdictOf(matches)
	if v == nil {
		v = &domain.InternalVerdict{Result: domain.VerdictNotFound}
	}

	if userID != "" {
		var productID *string
		if v.Product != nil {
			productID = &v.Product.ID
		}
		_, err := p.db.Exec(ctx,
			`INSERT INTO verification_log (user_id, query, verdict, product_id) VALUES ($1, $2, $3, $4)`,
			userID, query, string(v.Result), productID)
		if err != nil && !errors.Is(err, context.Canceled) {
			// The verdict stands even if the audit row is lost
			p.logger.Warn().Err(err).Str("user_id", userID).Msg("record verification")
		}
	}
	return v, nil
}

func collectProducts(rows pgx.Rows) ([]domain.CatalogProduct, error) {
	defer rows.Close()

	var out []domain.CatalogProduct
	for rows.Next() {
		var c domain.CatalogProduct
		var status string
		if err := rows.Scan(
			&c.ID, &c.Name, &c.ManufacturerName, &c.RegistrationNumber,
			&c.Certification, &c.Barcode, &c.Category,
			&c.NutriScore, &c.Country, &c.State,
			&c.ImageURL, &status,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		c.Status = domain.CatalogStatus(status)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read products: %w", err)
	}
	return out, nil
}

// queryBuilder accumulates positional arguments
type queryBuilder struct {
	where []string
	args  []any
}

func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *queryBuilder) filters(f domain.SearchFilters) {
	if f.Category != "" {
		b.where = append(b.where, "lower(category) = lower("+b.arg(f.Category)+")")
	}
	if len(f.NutriScore) > 0 {
		grades := make([]string, len(f.NutriScore))
		for i, g := range f.NutriScore {
			grades[i] = strings.ToUpper(g)
		}
		b.where = append(b.where, "upper(nutri_score) = ANY("+b.arg(grades)+")")
	}
	if f.Country != "" {
		b.where = append(b.where, "lower(country) = lower("+b.arg(f.Country)+")")
	}
	if f.State != "" {
		b.where = append(b.where, "lower(state) = lower("+b.arg(f.State)+")")
	}
}

func buildSearchQuery(query string, f domain.SearchFilters, limit int) (string, []any) {
	b := &queryBuilder{}
	b.where = append(b.where, "status = 'approved'")
	b.where = append(b.where, "name ILIKE "+b.arg("%"+escapeLike(strings.TrimSpace(query))+"%")+` ESCAPE '\'`)
	b.filters(f)
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	sql := "SELECT " + productColumns + " FROM products WHERE " + strings.Join(b.where, " AND ") +
		" ORDER BY created_at, id LIMIT " + b.arg(limit)
	return sql, b.args
}

func buildVerifyQuery(query string, f domain.SearchFilters) (string, []any) {
	b := &queryBuilder{}
	if domain.LooksLikeBarcode(query) {
		b.where = append(b.where, "barcode = "+b.arg(query))
	} else {
		b.where = append(b.where, "lower(name) = lower("+b.arg(query)+")")
	}
	b.where = append(b.where, "status IN ('approved', 'counterfeit')")
	b.filters(f)
	sql := "SELECT " + productColumns + " FROM products WHERE " + strings.Join(b.where, " AND ") +
		" ORDER BY (status = 'counterfeit') DESC, created_at, id"
	return sql, b.args
}

// escapeLike escapes LIKE metacharacters so user input matches literally
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
