package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

const entityColumns = `id, name, ticker, cik, sector, industry, exchange, entity_type, aliases, created_at, updated_at`

// UpsertEntity inserts or updates an entity keyed by ticker. Non-empty
// incoming fields win; empty incoming fields preserve the stored value.
// Aliases are unioned.
func (s *Store) UpsertEntity(ctx context.Context, e models.Entity) (models.Entity, error) {
	ticker := strings.ToUpper(strings.TrimSpace(e.Ticker))
	if ticker == "" {
		return models.Entity{}, fmt.Errorf("store: upsert entity: empty ticker")
	}

	aliases := normalizeAliases(e)

	row := s.pool.QueryRow(ctx, `
		INSERT INTO entities (name, ticker, cik, sector, industry, exchange, entity_type, aliases)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE(NULLIF($7, ''), 'company'), $8)
		ON CONFLICT (ticker) DO UPDATE SET
			name        = COALESCE(NULLIF(EXCLUDED.name, ''), entities.name),
			cik         = COALESCE(NULLIF(EXCLUDED.cik, ''), entities.cik),
			sector      = COALESCE(NULLIF(EXCLUDED.sector, ''), entities.sector),
			industry    = COALESCE(NULLIF(EXCLUDED.industry, ''), entities.industry),
			exchange    = COALESCE(NULLIF(EXCLUDED.exchange, ''), entities.exchange),
			entity_type = COALESCE(NULLIF(EXCLUDED.entity_type, ''), entities.entity_type),
			aliases     = (SELECT array_agg(DISTINCT a) FROM unnest(entities.aliases || EXCLUDED.aliases) AS a),
			updated_at  = now()
		RETURNING `+entityColumns,
		e.Name, ticker, e.CIK, e.Sector, e.Industry, e.Exchange, e.Type, aliases)

	out, err := scanEntity(row)
	if err != nil {
		return models.Entity{}, fmt.Errorf("store: upsert entity %s: %w", ticker, err)
	}
	s.appendAudit(ctx, "entity_upserted", "entity", out.ID, ticker)
	return out, nil
}

// normalizeAliases lowercases and unions the entity's aliases with its name
// and ticker so later alias lookups always hit.
func normalizeAliases(e models.Entity) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(a string) {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	for _, a := range e.Aliases {
		add(a)
	}
	add(e.Name)
	add(e.Ticker)
	return out
}

// LookupEntityByTicker finds an entity by exact ticker, case-insensitively.
func (s *Store) LookupEntityByTicker(ctx context.Context, ticker string) (models.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE ticker = upper($1)`, strings.TrimSpace(ticker))
	e, err := scanEntity(row)
	if err != nil {
		return models.Entity{}, asNotFound(err)
	}
	return e, nil
}

// LookupEntityByName finds an entity by exact name, case-insensitively.
func (s *Store) LookupEntityByName(ctx context.Context, name string) (models.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE lower(name) = lower($1)`, strings.TrimSpace(name))
	e, err := scanEntity(row)
	if err != nil {
		return models.Entity{}, asNotFound(err)
	}
	return e, nil
}

// LookupEntityByAlias finds an entity whose alias set contains the query.
func (s *Store) LookupEntityByAlias(ctx context.Context, alias string) (models.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE $1 = ANY(aliases) LIMIT 1`,
		strings.ToLower(strings.TrimSpace(alias)))
	e, err := scanEntity(row)
	if err != nil {
		return models.Entity{}, asNotFound(err)
	}
	return e, nil
}

// SuggestEntities returns autocomplete candidates ordered by match quality:
// exact ticker, then ticker prefix, then name substring, then alias.
func (s *Store) SuggestEntities(ctx context.Context, q string, limit int) ([]models.EntitySuggestion, error) {
	q = strings.TrimSpace(q)
	if q == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT ticker, name, exchange, entity_type,
		       CASE
		           WHEN ticker = upper($1) THEN 0
		           WHEN ticker LIKE upper($1) || '%' THEN 1
		           WHEN lower(name) LIKE '%' || lower($1) || '%' THEN 2
		           WHEN lower($1) = ANY(aliases) THEN 3
		           ELSE 4
		       END AS quality
		FROM entities
		WHERE ticker LIKE upper($1) || '%'
		   OR lower(name) LIKE '%' || lower($1) || '%'
		   OR lower($1) = ANY(aliases)
		ORDER BY quality, ticker
		LIMIT $2`, q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: suggest entities: %w", err)
	}
	defer rows.Close()

	var out []models.EntitySuggestion
	for rows.Next() {
		var sug models.EntitySuggestion
		var quality int
		if err := rows.Scan(&sug.Ticker, &sug.Name, &sug.Exchange, &sug.Type, &quality); err != nil {
			return nil, err
		}
		out = append(out, sug)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (models.Entity, error) {
	var e models.Entity
	err := row.Scan(&e.ID, &e.Name, &e.Ticker, &e.CIK, &e.Sector, &e.Industry,
		&e.Exchange, &e.Type, &e.Aliases, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}
