package db

import (
	"database/sql"
	"errors"
)

// ErrDatabaseRequired is returned when a nil database connection is passed
// where a live one is required.
var ErrDatabaseRequired = errors.New("database connection required")

// Store wraps the raw database connection shared by all persistence consumers
type Store struct {
	db *sql.DB
}

// NewStore creates a Store from an open database connection
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection for sharing with other components
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying connection
func (s *Store) Close() error {
	return s.db.Close()
}
