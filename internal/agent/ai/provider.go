package ai

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/hewlab/hew/internal/agent/session"
)

// StreamEventType defines the type of streaming event
type StreamEventType string

const (
	EventTypeText       StreamEventType = "text"
	EventTypeToolCall   StreamEventType = "tool_call"
	EventTypeToolResult StreamEventType = "tool_result"
	EventTypeError      StreamEventType = "error"
	EventTypeDone       StreamEventType = "done"
	EventTypeThinking   StreamEventType = "thinking"
	EventTypeProgress   StreamEventType = "progress" // model download progress
)

// StreamEvent represents a streaming response event
type StreamEvent struct {
	Type     StreamEventType  `json:"type"`
	Text     string           `json:"text,omitempty"`
	ToolCall *ToolCall        `json:"tool_call,omitempty"`
	Error    error            `json:"error,omitempty"`
	Message  *session.Message `json:"message,omitempty"`
}

// ToolCall represents a tool invocation from the AI
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolDefinition describes a tool available to the AI
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ChatRequest represents a request to an AI provider
type ChatRequest struct {
	Messages       []session.Message `json:"messages"`
	Tools          []ToolDefinition  `json:"tools,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float64           `json:"temperature,omitempty"`
	System         string            `json:"system,omitempty"`
	Model          string            `json:"model,omitempty"`           // Model override within the provider
	EnableThinking bool              `json:"enable_thinking,omitempty"` // Extended reasoning mode where supported
}

// ModelDescriptor describes a model advertised by a provider
type ModelDescriptor struct {
	Provider      string `json:"provider"`
	ID            string `json:"id"`
	DisplayName   string `json:"displayName,omitempty"`
	ContextWindow int    `json:"contextWindow,omitempty"`
}

// Provider interface for AI providers
type Provider interface {
	// ID returns the provider identifier (e.g., "anthropic", "openai")
	ID() string

	// Stream sends a request and returns a channel of streaming events
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error)

	// ListModels returns the models this provider can serve
	ListModels(ctx context.Context) ([]ModelDescriptor, error)

	// Cancel stops any in-flight streams. Calling it with nothing in
	// flight is a no-op.
	Cancel()
}

// ProviderError represents an error from a provider
type ProviderError struct {
	Provider string `json:"provider"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
	Cause    error  `json:"-"`
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return e.Provider + ": " + e.Code + ": " + e.Message
	}
	return e.Provider + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError wraps an underlying error with provider attribution
func NewProviderError(provider string, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Message:  cause.Error(),
		Cause:    cause,
	}
}

// IsContextOverflow checks if an error indicates context window overflow
func IsContextOverflow(err error) bool {
	pe, ok := err.(*ProviderError)
	if !ok {
		return false
	}
	if pe.Code == "context_length_exceeded" {
		return true
	}
	msg := strings.ToLower(pe.Message)
	for _, kw := range []string{"context", "token", "too long", "exceeded"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// IsRateLimitOrAuth checks if an error is due to rate limiting or auth issues
func IsRateLimitOrAuth(err error) bool {
	pe, ok := err.(*ProviderError)
	if !ok {
		return false
	}
	switch pe.Code {
	case "rate_limit_exceeded", "authentication_error", "invalid_api_key", "unauthorized":
		return true
	}
	msg := strings.ToLower(pe.Message)
	for _, kw := range []string{"rate limit", "too many requests", "429", "401", "403", "unauthorized", "api key"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// canceller tracks in-flight stream cancel functions so a provider can
// abort all of them on demand. Safe for concurrent use; cancelling an
// empty set is a no-op.
type canceller struct {
	mu      sync.Mutex
	nextID  int
	cancels map[int]context.CancelFunc
}

// track wraps ctx with a cancel registered in the set. The returned
// release removes the entry once the stream finishes.
func (c *canceller) track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.cancels == nil {
		c.cancels = make(map[int]context.CancelFunc)
	}
	id := c.nextID
	c.nextID++
	c.cancels[id] = cancel
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		delete(c.cancels, id)
		c.mu.Unlock()
		cancel()
	}
	return ctx, release
}

// cancelAll aborts every tracked stream
func (c *canceller) cancelAll() {
	c.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.cancels))
	for _, fn := range c.cancels {
		cancels = append(cancels, fn)
	}
	c.cancels = nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}
