package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Selector is the current extraction rule for one field of a source.
type Selector struct {
	SourceID       string `json:"source_id"`
	FieldName      string `json:"field_name"`
	Type           string `json:"selector_type"`
	Value          string `json:"selector_value"`
	Previous       string `json:"selector_previous,omitempty"`
	LastVerifiedAt int64  `json:"last_verified_at,omitempty"`
}

// FallbackSelector is used for fields that have no stored selector.
func FallbackSelector(field string) string {
	return fmt.Sprintf(`[data-field="%s"]`, field)
}

// SeedSelector stores a configured selector if the field has none yet.
// Healed selectors are never overwritten by configuration.
func (s *Store) SeedSelector(ctx context.Context, sourceID, field, value string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO selectors (source_id, field_name, selector_type, selector_value)
		VALUES (?,?,'css',?)
		ON CONFLICT(source_id, field_name) DO NOTHING`,
		sourceID, field, value,
	)
	if err != nil {
		return fmt.Errorf("store: seed selector %s.%s: %w", sourceID, field, err)
	}
	return nil
}

// GetSelector returns the selector row, or nil if none exists.
func (s *Store) GetSelector(ctx context.Context, sourceID, field string) (*Selector, error) {
	sel := &Selector{}
	var verified sql.NullInt64
	err := s.DB.QueryRowContext(ctx, `
		SELECT source_id, field_name, selector_type, selector_value, selector_previous, last_verified_at
		FROM selectors WHERE source_id = ? AND field_name = ?`, sourceID, field).Scan(
		&sel.SourceID, &sel.FieldName, &sel.Type, &sel.Value, &sel.Previous, &verified,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sel.LastVerifiedAt = verified.Int64
	return sel, nil
}

// SelectorsFor maps each field to its current selector value, using
// FallbackSelector for fields without a row.
func (s *Store) SelectorsFor(ctx context.Context, sourceID string, fields []string) (map[string]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT field_name, selector_value FROM selectors WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stored := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, err
		}
		stored[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if v, ok := stored[f]; ok && v != "" {
			out[f] = v
		} else {
			out[f] = FallbackSelector(f)
		}
	}
	return out, nil
}

// CommitHeal installs a verified selector. The value active before the
// heal moves to selector_previous; for a field without a row, before is
// recorded as the previous value.
func (s *Store) CommitHeal(ctx context.Context, sourceID, field, value, before string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO selectors (source_id, field_name, selector_type, selector_value, selector_previous, last_verified_at)
		VALUES (?,?,'css',?,?,?)
		ON CONFLICT(source_id, field_name) DO UPDATE SET
			selector_previous=selectors.selector_value,
			selector_value=excluded.selector_value,
			last_verified_at=excluded.last_verified_at`,
		sourceID, field, value, before, s.now(),
	)
	if err != nil {
		return fmt.Errorf("store: commit heal %s.%s: %w", sourceID, field, err)
	}
	return nil
}

// ListSelectors returns all selectors of a source ordered by field.
func (s *Store) ListSelectors(ctx context.Context, sourceID string) ([]*Selector, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT source_id, field_name, selector_type, selector_value, selector_previous, last_verified_at
		FROM selectors WHERE source_id = ? ORDER BY field_name`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Selector
	for rows.Next() {
		sel := &Selector{}
		var verified sql.NullInt64
		if err := rows.Scan(&sel.SourceID, &sel.FieldName, &sel.Type, &sel.Value, &sel.Previous, &verified); err != nil {
			return nil, err
		}
		sel.LastVerifiedAt = verified.Int64
		out = append(out, sel)
	}
	return out, rows.Err()
}
