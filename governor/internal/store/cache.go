package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CacheGet returns the cached enrichment value for key.
func (s *Store) CacheGet(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM enrichment_cache WHERE cache_key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: cache get: %w", err)
	}
	return v, true, nil
}

// CachePut upserts an enrichment value.
func (s *Store) CachePut(ctx context.Context, key, value, provider string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO enrichment_cache (cache_key, value, provider, updated_at) VALUES (?,?,?,?)
		ON CONFLICT(cache_key) DO UPDATE SET
			value=excluded.value, provider=excluded.provider, updated_at=excluded.updated_at`,
		key, value, provider, s.now(),
	)
	if err != nil {
		return fmt.Errorf("store: cache put: %w", err)
	}
	return nil
}
