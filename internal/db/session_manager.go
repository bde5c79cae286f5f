package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AgentMessage represents a conversation message for the agent
type AgentMessage struct {
	ID          int64           `json:"id,omitempty"`
	SessionID   string          `json:"session_id"`
	Role        string          `json:"role"` // user, assistant, system, tool
	Content     string          `json:"content,omitempty"`
	ToolCalls   json.RawMessage `json:"tool_calls,omitempty"`
	ToolResults json.RawMessage `json:"tool_results,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// AgentToolCall represents a tool invocation
type AgentToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// AgentToolResult represents the result of a tool execution
type AgentToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// AgentSession represents a conversation session for the agent
type AgentSession struct {
	ID         string    `json:"id"`
	SessionKey string    `json:"session_key"` // Maps to 'name' column in DB
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SessionManager handles session and message persistence
type SessionManager struct {
	db *sql.DB
}

// NewSessionManager creates a session manager from a Store
func NewSessionManager(store *Store) *SessionManager {
	return &SessionManager{db: store.db}
}

// NewSessionManagerFromDB creates a session manager from a raw database connection
func NewSessionManagerFromDB(sqlDB *sql.DB) *SessionManager {
	return &SessionManager{db: sqlDB}
}

// GetDB returns the underlying database connection for sharing with other components
func (m *SessionManager) GetDB() *sql.DB {
	return m.db
}

// GetOrCreate returns an existing session by key or creates a new one
func (m *SessionManager) GetOrCreate(sessionKey string) (*AgentSession, error) {
	ctx := context.Background()

	var sess AgentSession
	var name sql.NullString
	var created, updated int64
	err := m.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM sessions WHERE name = ?`, sessionKey,
	).Scan(&sess.ID, &name, &created, &updated)
	if err == nil {
		sess.SessionKey = name.String
		sess.CreatedAt = time.Unix(created, 0)
		sess.UpdatedAt = time.Unix(updated, 0)
		return &sess, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().Unix()
	_, err = m.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, sessionKey, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &AgentSession{
		ID:         id,
		SessionKey: sessionKey,
		CreatedAt:  time.Unix(now, 0),
		UpdatedAt:  time.Unix(now, 0),
	}, nil
}

// GetMessages retrieves messages for a session in append order.
// A positive limit returns the most recent N messages.
func (m *SessionManager) GetMessages(sessionID string, limit int) ([]AgentMessage, error) {
	ctx := context.Background()

	query := `SELECT id, role, content, tool_calls, tool_results, created_at
	          FROM session_messages WHERE session_id = ? ORDER BY id ASC`
	args := []any{sessionID}
	if limit > 0 {
		query = `SELECT id, role, content, tool_calls, tool_results, created_at FROM (
		           SELECT id, role, content, tool_calls, tool_results, created_at
		           FROM session_messages WHERE session_id = ? ORDER BY id DESC LIMIT ?
		         ) ORDER BY id ASC`
		args = append(args, limit)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []AgentMessage
	for rows.Next() {
		var msg AgentMessage
		var content, toolCalls, toolResults sql.NullString
		var created int64
		if err := rows.Scan(&msg.ID, &msg.Role, &content, &toolCalls, &toolResults, &created); err != nil {
			return nil, err
		}
		msg.SessionID = sessionID
		msg.Content = content.String
		msg.CreatedAt = time.Unix(created, 0)
		if toolCalls.Valid && toolCalls.String != "" {
			msg.ToolCalls = json.RawMessage(toolCalls.String)
		}
		if toolResults.Valid && toolResults.String != "" {
			msg.ToolResults = json.RawMessage(toolResults.String)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Strip orphaned tool_results that have no matching tool_calls
	return sanitizeAgentMessages(messages), nil
}

// AppendMessage adds a message to a session
func (m *SessionManager) AppendMessage(sessionID string, msg AgentMessage) error {
	// Empty envelopes create ghost records that confuse history loading
	if msg.Content == "" && len(msg.ToolCalls) == 0 && len(msg.ToolResults) == 0 {
		return nil // silently skip
	}

	ctx := context.Background()

	var toolCalls, toolResults sql.NullString
	if len(msg.ToolCalls) > 0 {
		toolCalls = sql.NullString{String: string(msg.ToolCalls), Valid: true}
	}
	if len(msg.ToolResults) > 0 {
		toolResults = sql.NullString{String: string(msg.ToolResults), Valid: true}
	}

	_, err := m.db.ExecContext(ctx,
		`INSERT INTO session_messages (session_id, role, content, tool_calls, tool_results, created_at)
		 VALUES (?, ?, ?, ?, ?, unixepoch())`,
		sessionID, msg.Role, msg.Content, toolCalls, toolResults,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	_, err = m.db.ExecContext(ctx,
		`UPDATE sessions SET message_count = message_count + 1, updated_at = unixepoch() WHERE id = ?`,
		sessionID,
	)
	return err
}

// GetSummary retrieves the rolling summary for a session (if any)
func (m *SessionManager) GetSummary(sessionID string) (string, error) {
	ctx := context.Background()
	var summary sql.NullString
	err := m.db.QueryRowContext(ctx,
		`SELECT summary FROM sessions WHERE id = ?`, sessionID,
	).Scan(&summary)
	if err != nil {
		return "", err
	}
	return summary.String, nil
}

// UpdateSummary updates the session's summary without touching messages
func (m *SessionManager) UpdateSummary(sessionID, summary string) error {
	ctx := context.Background()
	_, err := m.db.ExecContext(ctx,
		`UPDATE sessions SET summary = ?, updated_at = unixepoch() WHERE id = ?`,
		summary, sessionID,
	)
	return err
}

// Compact replaces the session's messages with a summary. The summary is
// stored on the session row; all but the most recent message are deleted.
func (m *SessionManager) Compact(sessionID, summary string) error {
	ctx := context.Background()
	if err := m.UpdateSummary(sessionID, summary); err != nil {
		return err
	}
	_, err := m.db.ExecContext(ctx,
		`DELETE FROM session_messages WHERE session_id = ?
		 AND id NOT IN (SELECT id FROM session_messages WHERE session_id = ? ORDER BY id DESC LIMIT 1)`,
		sessionID, sessionID,
	)
	return err
}

// Reset clears all messages and the summary from a session
func (m *SessionManager) Reset(sessionID string) error {
	ctx := context.Background()
	if _, err := m.db.ExecContext(ctx,
		`DELETE FROM session_messages WHERE session_id = ?`, sessionID,
	); err != nil {
		return err
	}
	_, err := m.db.ExecContext(ctx,
		`UPDATE sessions SET summary = NULL, message_count = 0, updated_at = unixepoch() WHERE id = ?`,
		sessionID,
	)
	return err
}

// ListSessions returns all sessions, most recently updated first
func (m *SessionManager) ListSessions() ([]AgentSession, error) {
	ctx := context.Background()
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM sessions ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []AgentSession
	for rows.Next() {
		var sess AgentSession
		var name sql.NullString
		var created, updated int64
		if err := rows.Scan(&sess.ID, &name, &created, &updated); err != nil {
			return nil, err
		}
		sess.SessionKey = name.String
		sess.CreatedAt = time.Unix(created, 0)
		sess.UpdatedAt = time.Unix(updated, 0)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session and all its messages
func (m *SessionManager) DeleteSession(sessionID string) error {
	ctx := context.Background()
	if _, err := m.db.ExecContext(ctx,
		`DELETE FROM session_messages WHERE session_id = ?`, sessionID,
	); err != nil {
		return err
	}
	_, err := m.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	return err
}

// Close is a no-op since the database connection is shared
func (m *SessionManager) Close() error {
	return nil
}

// sanitizeAgentMessages removes orphaned tool_results that have no matching tool_calls
func sanitizeAgentMessages(messages []AgentMessage) []AgentMessage {
	if len(messages) == 0 {
		return messages
	}

	seenToolCallIDs := make(map[string]bool)

	result := make([]AgentMessage, 0, len(messages))
	for i, msg := range messages {
		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			var calls []AgentToolCall
			if err := json.Unmarshal(msg.ToolCalls, &calls); err == nil {
				for _, call := range calls {
					seenToolCallIDs[call.ID] = true
				}
			}
			result = append(result, msg)
			continue
		}

		if msg.Role == "tool" && len(msg.ToolResults) > 0 {
			var results []AgentToolResult
			if err := json.Unmarshal(msg.ToolResults, &results); err == nil {
				valid := make([]AgentToolResult, 0, len(results))
				for _, r := range results {
					if seenToolCallIDs[r.ToolCallID] {
						valid = append(valid, r)
					}
				}

				if len(valid) == 0 {
					msg.ToolResults = nil
					if msg.Content == "" && i == 0 {
						continue
					}
				} else if len(valid) < len(results) {
					if newResults, err := json.Marshal(valid); err == nil {
						msg.ToolResults = newResults
					}
				}
			}
		}

		result = append(result, msg)
	}

	return result
}
