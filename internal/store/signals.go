package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// UpsertMacro inserts or replaces one macro observation.
func (s *Store) UpsertMacro(ctx context.Context, m models.MacroObservation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO macro_indicators (series_id, series_name, observation_date, value, source_provider)
		VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), 'fred'))
		ON CONFLICT (series_id, observation_date) DO UPDATE SET
			value = EXCLUDED.value,
			series_name = EXCLUDED.series_name`,
		m.SeriesID, m.SeriesName, m.Date, m.Value, m.Provider)
	if err != nil {
		return fmt.Errorf("store: upsert macro %s/%s: %w", m.SeriesID, m.Date, err)
	}
	return nil
}

// LatestMacroValues returns the newest observation per requested series.
func (s *Store) LatestMacroValues(ctx context.Context, seriesIDs []string) (map[string]models.MacroObservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (series_id) series_id, series_name, observation_date, value
		FROM macro_indicators
		WHERE series_id = ANY($1)
		ORDER BY series_id, observation_date DESC`, seriesIDs)
	if err != nil {
		return nil, fmt.Errorf("store: latest macro values: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.MacroObservation)
	for rows.Next() {
		var m models.MacroObservation
		var date time.Time
		if err := rows.Scan(&m.SeriesID, &m.SeriesName, &date, &m.Value); err != nil {
			return nil, err
		}
		m.Date = date.Format("2006-01-02")
		out[m.SeriesID] = m
	}
	return out, rows.Err()
}

// CountMacroSeries reports how many distinct series have observations.
func (s *Store) CountMacroSeries(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(DISTINCT series_id) FROM macro_indicators`).Scan(&n)
	return n, err
}

// UpsertSocialSignal inserts or replaces the daily aggregate for
// (ticker, platform, signal_date).
func (s *Store) UpsertSocialSignal(ctx context.Context, sig models.SocialSignal) error {
	posts, err := json.Marshal(sig.TopPosts)
	if err != nil {
		return fmt.Errorf("store: marshal top posts: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO social_signals
			(entity_id, ticker, platform, signal_date, mention_count, avg_sentiment, top_posts, source_provider)
		VALUES ($1, upper($2), $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ticker, platform, signal_date) DO UPDATE SET
			mention_count = EXCLUDED.mention_count,
			avg_sentiment = EXCLUDED.avg_sentiment,
			top_posts = EXCLUDED.top_posts,
			entity_id = COALESCE(EXCLUDED.entity_id, social_signals.entity_id)`,
		sig.EntityID, sig.Ticker, sig.Platform, sig.SignalDate,
		sig.MentionCount, sig.AvgSentiment, posts, sig.SourceProvider)
	if err != nil {
		return fmt.Errorf("store: upsert social signal %s/%s: %w", sig.Ticker, sig.Platform, err)
	}
	s.appendAudit(ctx, "social_signal_upserted", "social_signal", 0,
		fmt.Sprintf("%s %s %s", sig.Ticker, sig.Platform, sig.SignalDate))
	return nil
}

// GetSocialSignals returns signals for a ticker within the last N days.
func (s *Store) GetSocialSignals(ctx context.Context, ticker string, days int) ([]models.SocialSignal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entity_id, ticker, platform, signal_date, mention_count, avg_sentiment, top_posts, source_provider
		FROM social_signals
		WHERE ticker = upper($1) AND signal_date >= current_date - $2::int
		ORDER BY signal_date DESC`, ticker, days)
	if err != nil {
		return nil, fmt.Errorf("store: social signals %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []models.SocialSignal
	for rows.Next() {
		var sig models.SocialSignal
		var date time.Time
		var posts []byte
		if err := rows.Scan(&sig.EntityID, &sig.Ticker, &sig.Platform, &date,
			&sig.MentionCount, &sig.AvgSentiment, &posts, &sig.SourceProvider); err != nil {
			return nil, err
		}
		sig.SignalDate = date.Format("2006-01-02")
		if err := json.Unmarshal(posts, &sig.TopPosts); err != nil {
			return nil, fmt.Errorf("store: decode top posts: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// UpsertFiling inserts a filing, ignoring duplicates by accession number.
func (s *Store) UpsertFiling(ctx context.Context, f models.EntityFiling) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO entity_filings (ticker, cik, filing_type, filing_date, filing_url, accession_number, description)
		VALUES (upper($1), $2, $3, $4, $5, $6, $7)
		ON CONFLICT (accession_number) DO NOTHING`,
		f.Ticker, f.CIK, f.FilingType, f.FilingDate, f.FilingURL, f.AccessionNumber, f.Description)
	if err != nil {
		return fmt.Errorf("store: upsert filing %s: %w", f.AccessionNumber, err)
	}
	return nil
}

// GetFilings returns recent filings, optionally filtered by type.
func (s *Store) GetFilings(ctx context.Context, ticker, filingType string, limit int) ([]models.EntityFiling, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ticker, cik, filing_type, filing_date, filing_url, accession_number, description, created_at
		FROM entity_filings
		WHERE ticker = upper($1) AND ($2 = '' OR filing_type = $2)
		ORDER BY filing_date DESC
		LIMIT $3`, ticker, filingType, limit)
	if err != nil {
		return nil, fmt.Errorf("store: filings %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []models.EntityFiling
	for rows.Next() {
		var f models.EntityFiling
		var date time.Time
		if err := rows.Scan(&f.Ticker, &f.CIK, &f.FilingType, &date,
			&f.FilingURL, &f.AccessionNumber, &f.Description, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.FilingDate = date.Format("2006-01-02")
		out = append(out, f)
	}
	return out, rows.Err()
}

// CountFilings returns the number of stored filings for a ticker.
func (s *Store) CountFilings(ctx context.Context, ticker string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM entity_filings WHERE ticker = upper($1)`, ticker).Scan(&n)
	return n, err
}
