// Package session provides aliases for the session manager so agent
// packages don't import internal/db directly.
// The canonical implementation is in internal/db/session_manager.go
package session

import (
	"database/sql"

	"github.com/hewlab/hew/internal/db"
)

// Type aliases for the canonical db types
type (
	Manager    = db.SessionManager
	Session    = db.AgentSession
	Message    = db.AgentMessage
	ToolCall   = db.AgentToolCall
	ToolResult = db.AgentToolResult
)

// New creates a session manager from a raw database connection.
func New(sqlDB *sql.DB) (*Manager, error) {
	if sqlDB == nil {
		return nil, db.ErrDatabaseRequired
	}
	return db.NewSessionManagerFromDB(sqlDB), nil
}

// NewFromStore creates a session manager from a db.Store.
func NewFromStore(store *db.Store) *Manager {
	return db.NewSessionManager(store)
}
