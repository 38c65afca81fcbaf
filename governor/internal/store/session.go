package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Session is an encrypted cookie set for one (hub, source) pair.
type Session struct {
	HubID            string `json:"hub_id"`
	SourceID         string `json:"source_id"`
	CookiesEncrypted string `json:"-"`
	UserAgent        string `json:"user_agent"`
	ExpiresAt        int64  `json:"expires_at"`
	UpdatedAt        int64  `json:"updated_at"`
}

// SaveSession upserts the session keyed by (hub, source).
func (s *Store) SaveSession(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = s.now()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sessions (hub_id, source_id, cookies_encrypted, user_agent, expires_at, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(hub_id, source_id) DO UPDATE SET
			cookies_encrypted=excluded.cookies_encrypted, user_agent=excluded.user_agent,
			expires_at=excluded.expires_at, updated_at=excluded.updated_at`,
		sess.HubID, sess.SourceID, sess.CookiesEncrypted, sess.UserAgent, sess.ExpiresAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: save session %s/%s: %w", sess.HubID, sess.SourceID, err)
	}
	return nil
}

// GetSession returns the stored session regardless of expiry, or nil.
func (s *Store) GetSession(ctx context.Context, hubID, sourceID string) (*Session, error) {
	sess := &Session{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT hub_id, source_id, cookies_encrypted, user_agent, expires_at, updated_at
		FROM sessions WHERE hub_id = ? AND source_id = ?`, hubID, sourceID).Scan(
		&sess.HubID, &sess.SourceID, &sess.CookiesEncrypted, &sess.UserAgent, &sess.ExpiresAt, &sess.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// DeleteExpiredSessions removes sessions that expired before now.
func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, s.now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
