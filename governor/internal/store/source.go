package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Source statuses.
const (
	StatusOK      = "ok"
	StatusHealing = "healing"
	StatusHealed  = "healed"
)

// Source is a scraped site.
type Source struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	Region        string `json:"region"`
	Status        string `json:"status"`
	LastScrapedAt int64  `json:"last_scraped_at,omitempty"`
	LastHealAt    int64  `json:"last_heal_at,omitempty"`
}

func nowMilli() int64 { return time.Now().UnixMilli() }

// UpsertSource creates a source or updates its display name and region.
// Status and timestamps of an existing source are left untouched.
func (s *Store) UpsertSource(ctx context.Context, src *Source) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sources (id, display_name, region, status)
		VALUES (?,?,?,'ok')
		ON CONFLICT(id) DO UPDATE SET
			display_name=excluded.display_name, region=excluded.region`,
		src.ID, src.DisplayName, src.Region,
	)
	if err != nil {
		return fmt.Errorf("store: upsert source %s: %w", src.ID, err)
	}
	return nil
}

// GetSource returns a source, or nil if unknown.
func (s *Store) GetSource(ctx context.Context, id string) (*Source, error) {
	src := &Source{}
	var scraped, healed sql.NullInt64
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, display_name, region, status, last_scraped_at, last_heal_at
		FROM sources WHERE id = ?`, id).Scan(
		&src.ID, &src.DisplayName, &src.Region, &src.Status, &scraped, &healed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	src.LastScrapedAt = scraped.Int64
	src.LastHealAt = healed.Int64
	return src, nil
}

// ListSources returns all sources ordered by id.
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, display_name, region, status, last_scraped_at, last_heal_at
		FROM sources ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Source
	for rows.Next() {
		src := &Source{}
		var scraped, healed sql.NullInt64
		if err := rows.Scan(&src.ID, &src.DisplayName, &src.Region, &src.Status, &scraped, &healed); err != nil {
			return nil, err
		}
		src.LastScrapedAt = scraped.Int64
		src.LastHealAt = healed.Int64
		out = append(out, src)
	}
	return out, rows.Err()
}

// SetSourceStatus sets the status; a non-zero healAt also stamps
// last_heal_at. Unknown sources are created.
func (s *Store) SetSourceStatus(ctx context.Context, id, status string, healAt int64) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sources (id, status, last_heal_at) VALUES (?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			last_heal_at=COALESCE(excluded.last_heal_at, sources.last_heal_at)`,
		id, status, nullInt(healAt),
	)
	if err != nil {
		return fmt.Errorf("store: set status %s=%s: %w", id, status, err)
	}
	return nil
}

// MarkScraped stamps last_scraped_at after a fully successful scrape and
// moves a healed source back to ok.
func (s *Store) MarkScraped(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sources (id, status, last_scraped_at) VALUES (?,'ok',?)
		ON CONFLICT(id) DO UPDATE SET
			last_scraped_at=excluded.last_scraped_at,
			status=CASE WHEN sources.status='healed' THEN 'ok' ELSE sources.status END`,
		id, s.now(),
	)
	if err != nil {
		return fmt.Errorf("store: mark scraped %s: %w", id, err)
	}
	return nil
}
