// Package store provides the SQLite persistence layer for the governor:
// sources, selectors, heal events, encrypted sessions and the enrichment
// cache. All timestamps are unix milliseconds; zero means unset.
package store

import (
	"database/sql"

	"github.com/Sm36384/Phoenix/dbopen"
)

// Store is the governor database handle.
type Store struct {
	DB  *sql.DB
	now func() int64
}

// Open opens (or creates) the database at path and applies Schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wraps an already-open database that carries Schema.
func New(db *sql.DB) *Store {
	return &Store{DB: db, now: nowMilli}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
