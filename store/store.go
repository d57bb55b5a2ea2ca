// Package store persists audit results: one SQLite row per audited domain,
// replaced on re-audit, and one JSON file per domain in an output directory.
package store

import (
	"database/sql"

	"github.com/hazyhaar/consentcrawl/dbopen"
)

// Store is the audit results database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path and applies Schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
