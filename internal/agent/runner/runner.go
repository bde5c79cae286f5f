package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/hewlab/hew/internal/agent/ai"
	"github.com/hewlab/hew/internal/agent/session"
	"github.com/hewlab/hew/internal/agent/tools"
	"github.com/hewlab/hew/internal/agent/workspace"
	"github.com/hewlab/hew/internal/config"
	"github.com/hewlab/hew/internal/logging"
)

// DefaultSystemPrompt is the base system prompt for coding sessions
const DefaultSystemPrompt = `You are Hew, a coding assistant running on this computer. You work on the user's project directly through your tools.

Your tools are exactly: read_file, write_file, list_files, grep_lines, search_code, create_plan, task_complete, execute_command, search_web. You have no other tools. Call them exactly as named.

## How to work
1. Start non-trivial tasks with create_plan and keep step statuses current as you go.
2. Use search_code and read_file to understand the project before changing it.
3. Make changes with write_file. Verify with execute_command where possible.
4. When the task is fully done and verified, call task_complete with a summary. That ends the loop.
5. If a tool returns an error, read it, adjust, and try a different approach. Never repeat a failing call unchanged.`

// DefaultContextTokenLimit is the max estimated tokens in session
// history before proactive compaction. Conservative so small context
// windows survive.
const DefaultContextTokenLimit = 6000

// RunRequest contains parameters for a run
type RunRequest struct {
	SessionKey string // Session identifier (uses "default" if empty)
	Prompt     string // User prompt
	System     string // Override system prompt
	Provider   string // Requested provider ID (unknown names fall back to default)
	Model      string // Model override within the provider
}

// Runner executes the agentic loop
type Runner struct {
	sessions *session.Manager
	router   *ai.Router
	tools    *tools.Registry
	config   *config.Config

	mu   sync.Mutex
	loop *LoopSession // current run, nil when idle
}

// New creates a new runner
func New(cfg *config.Config, sessions *session.Manager, router *ai.Router, toolRegistry *tools.Registry) *Runner {
	return &Runner{
		sessions: sessions,
		router:   router,
		tools:    toolRegistry,
		config:   cfg,
	}
}

// Loop returns the active loop session, or nil when idle
func (r *Runner) Loop() *LoopSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loop
}

// Cancel aborts the active run: the loop stops iterating and all
// provider streams are cut. Calling it with no run in flight is a
// no-op, as is calling it twice.
func (r *Runner) Cancel() {
	r.mu.Lock()
	loop := r.loop
	r.mu.Unlock()

	if loop != nil {
		loop.Cancel()
	}
	r.router.Cancel()
}

// Run executes the agentic loop and streams events until the task
// completes, errors, is cancelled, or runs out of iterations.
func (r *Runner) Run(ctx context.Context, req *RunRequest) (<-chan ai.StreamEvent, error) {
	logging.Infof("[runner] run: session=%s provider=%s", req.SessionKey, req.Provider)

	if req.SessionKey == "" {
		req.SessionKey = "default"
	}

	sess, err := r.sessions.GetOrCreate(req.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if req.Prompt != "" {
		err = r.sessions.AppendMessage(sess.ID, session.Message{
			SessionID: sess.ID,
			Role:      "user",
			Content:   req.Prompt,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to save message: %w", err)
		}
	}

	loop := NewLoopSession(r.config.MaxIterations)
	loop.Start()

	r.mu.Lock()
	r.loop = loop
	r.mu.Unlock()

	resultCh := make(chan ai.StreamEvent, 100)
	go r.runLoop(ctx, loop, sess.ID, req, resultCh)

	return resultCh, nil
}

// runLoop is the main agentic execution loop
func (r *Runner) runLoop(ctx context.Context, loop *LoopSession, sessionID string, req *RunRequest, resultCh chan<- ai.StreamEvent) {
	defer close(resultCh)
	defer func() {
		r.mu.Lock()
		if r.loop == loop {
			r.loop = nil
		}
		r.mu.Unlock()
	}()

	systemPrompt := req.System
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	systemPrompt = r.injectWorkspaceContext(systemPrompt)

	if err := r.ensureLocalModel(ctx, req, resultCh); err != nil {
		loop.Stop()
		resultCh <- ai.StreamEvent{Type: ai.EventTypeError, Error: err}
		return
	}

	compactionAttempted := false

	for loop.ShouldContinue() {
		if ctx.Err() != nil {
			loop.Cancel()
			return
		}

		iteration := loop.NextIteration()
		logging.Debugf("[runner] iteration %d/%d", iteration, loop.MaxIterations())

		messages, err := r.sessions.GetMessages(sessionID, r.config.MaxContext)
		if err != nil {
			loop.Stop()
			resultCh <- ai.StreamEvent{Type: ai.EventTypeError, Error: err}
			return
		}

		// Compact proactively before the provider rejects us
		if estimateTokens(messages) > DefaultContextTokenLimit && !compactionAttempted {
			compactionAttempted = true
			summary := buildCompactionSummary(messages)
			if compactErr := r.sessions.Compact(sessionID, summary); compactErr == nil {
				messages, err = r.sessions.GetMessages(sessionID, r.config.MaxContext)
				if err != nil {
					loop.Stop()
					resultCh <- ai.StreamEvent{Type: ai.EventTypeError, Error: err}
					return
				}
				logging.Infof("[runner] compacted session to %d messages", len(messages))
			} else {
				logging.Warnf("[runner] compaction failed: %v", compactErr)
			}
		}

		enrichedPrompt := injectSystemContext(systemPrompt, req.Provider, req.Model)
		if summary, _ := r.sessions.GetSummary(sessionID); summary != "" {
			enrichedPrompt += "\n\n---\n[Previous Conversation Summary]\n" + summary + "\n---"
		}

		chatReq := &ai.ChatRequest{
			Messages: messages,
			Tools:    r.tools.List(),
			System:   enrichedPrompt,
			Model:    req.Model,
		}

		events, err := r.router.ChatStream(ctx, req.Provider, chatReq)
		if err != nil {
			if ai.IsContextOverflow(err) && !compactionAttempted {
				compactionAttempted = true
				logging.Infof("[runner] context overflow, compacting and retrying")
				if compactErr := r.sessions.Compact(sessionID, buildCompactionSummary(messages)); compactErr == nil {
					continue
				}
			}
			loop.Stop()
			resultCh <- ai.StreamEvent{Type: ai.EventTypeError, Error: err}
			return
		}

		var assistantContent strings.Builder
		var toolCalls []session.ToolCall

		for event := range events {
			switch event.Type {
			case ai.EventTypeText, ai.EventTypeThinking:
				resultCh <- event
				if event.Type == ai.EventTypeText {
					assistantContent.WriteString(event.Text)
				}

			case ai.EventTypeToolCall:
				resultCh <- event
				toolCalls = append(toolCalls, session.ToolCall{
					ID:    event.ToolCall.ID,
					Name:  event.ToolCall.Name,
					Input: event.ToolCall.Input,
				})

			case ai.EventTypeError:
				loop.Stop()
				resultCh <- event
				return

			case ai.EventTypeDone:
				// Iteration finished; the loop decides what happens next
			}
		}

		// Persist the assistant turn before tool execution so history
		// stays coherent even if a tool hangs or the run is cancelled.
		if assistantContent.Len() > 0 || len(toolCalls) > 0 {
			var toolCallsJSON json.RawMessage
			if len(toolCalls) > 0 {
				toolCallsJSON, _ = json.Marshal(toolCalls)
			}
			err := r.sessions.AppendMessage(sessionID, session.Message{
				SessionID: sessionID,
				Role:      "assistant",
				Content:   assistantContent.String(),
				ToolCalls: toolCallsJSON,
			})
			if err != nil {
				logging.Errorf("[runner] saving assistant message: %v", err)
			}
		}

		if len(toolCalls) == 0 {
			// A text-only response ends the run, but only task_complete
			// may mark the session Completed.
			loop.Stop()
			resultCh <- ai.StreamEvent{Type: ai.EventTypeDone}
			return
		}

		// Execute tools in call order; results are appended in the same
		// order so the provider can match them up.
		var toolResults []session.ToolResult
		taskDone := false
		for _, tc := range toolCalls {
			result := r.tools.Execute(ctx, &ai.ToolCall{
				ID:    tc.ID,
				Name:  tc.Name,
				Input: tc.Input,
			})

			resultCh <- ai.StreamEvent{
				Type: ai.EventTypeToolResult,
				Text: result.Content,
				ToolCall: &ai.ToolCall{
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Input,
				},
			}

			toolResults = append(toolResults, session.ToolResult{
				ToolCallID: tc.ID,
				Content:    result.Content,
				IsError:    result.IsError,
			})

			if tc.Name == tools.TaskCompleteName && !result.IsError {
				taskDone = true
			}
		}

		toolResultsJSON, _ := json.Marshal(toolResults)
		err = r.sessions.AppendMessage(sessionID, session.Message{
			SessionID:   sessionID,
			Role:        "tool",
			ToolResults: toolResultsJSON,
		})
		if err != nil {
			logging.Errorf("[runner] saving tool results: %v", err)
		}

		if taskDone {
			loop.MarkTaskCompleted()
			resultCh <- ai.StreamEvent{Type: ai.EventTypeDone}
			return
		}
	}

	// Deactivate so State() can distinguish exhaustion from a loop that
	// is still mid-iteration.
	loop.Stop()

	switch loop.State() {
	case StateCancelled:
		resultCh <- ai.StreamEvent{Type: ai.EventTypeDone}
	case StateIterationExhausted:
		resultCh <- ai.StreamEvent{
			Type:  ai.EventTypeError,
			Error: fmt.Errorf("reached maximum iterations (%d)", loop.MaxIterations()),
		}
	default:
		resultCh <- ai.StreamEvent{Type: ai.EventTypeDone}
	}
}

// ensureLocalModel pulls a missing ollama model before the first
// iteration so the run doesn't stall silently. Pull progress is
// forwarded to the caller as progress events.
func (r *Runner) ensureLocalModel(ctx context.Context, req *RunRequest, resultCh chan<- ai.StreamEvent) error {
	if req.Provider != "ollama" || req.Model == "" {
		return nil
	}

	baseURL := ""
	if pc := r.config.GetProvider("ollama"); pc != nil {
		baseURL = pc.BaseURL
	}

	return ai.EnsureOllamaModel(ctx, baseURL, req.Model, func(p ai.PullProgress) {
		text := p.Status
		if p.Total > 0 {
			text = fmt.Sprintf("pulling %s: %d%%", p.Model, p.Completed*100/p.Total)
		}
		resultCh <- ai.StreamEvent{Type: ai.EventTypeProgress, Text: text}
	})
}

// Chat is a convenience method for one-shot chat without tool use
func (r *Runner) Chat(ctx context.Context, prompt string) (string, error) {
	events, err := r.router.ChatStream(ctx, "", &ai.ChatRequest{
		Messages: []session.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}

	var result strings.Builder
	for event := range events {
		if event.Type == ai.EventTypeText {
			result.WriteString(event.Text)
		}
		if event.Type == ai.EventTypeError {
			return result.String(), event.Error
		}
	}
	return result.String(), nil
}

// injectWorkspaceContext appends the packed project context to the
// system prompt according to the configured mode.
func (r *Runner) injectWorkspaceContext(systemPrompt string) string {
	root := r.config.WorkspaceDir
	if root == "" {
		root, _ = os.Getwd()
	}
	if root == "" {
		return systemPrompt
	}

	builder := workspace.NewBuilder(root, workspace.ParseMode(r.config.ContextMode))
	if r.config.TokenBudget > 0 {
		builder.TokenBudget = r.config.TokenBudget
	}
	if r.config.MaxContextFiles > 0 {
		builder.MaxContextFiles = r.config.MaxContextFiles
	}

	wsContext := builder.Build()
	if wsContext == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\n" + wsContext
}

// buildCompactionSummary condenses the conversation for storage on the
// session row. User requests and tool failures survive; they are what
// the model most needs after compaction.
func buildCompactionSummary(messages []session.Message) string {
	var summary strings.Builder
	summary.WriteString("[Previous conversation summary]\n")

	for _, msg := range messages {
		if msg.Role == "user" && msg.Content != "" {
			content := msg.Content
			if len(content) > 200 {
				content = content[:200] + "..."
			}
			summary.WriteString("- User request: ")
			summary.WriteString(content)
			summary.WriteString("\n")
		}
		if msg.Role == "tool" && len(msg.ToolResults) > 0 {
			var results []session.ToolResult
			if err := json.Unmarshal(msg.ToolResults, &results); err == nil {
				for _, res := range results {
					if !res.IsError {
						continue
					}
					content := res.Content
					if len(content) > 150 {
						content = content[:150] + "..."
					}
					summary.WriteString("- Tool failure: ")
					summary.WriteString(content)
					summary.WriteString("\n")
				}
			}
		}
	}
	return summary.String()
}

// estimateTokens estimates the token count for a slice of messages
// with the same 4 chars per token heuristic workspace packing uses.
func estimateTokens(messages []session.Message) int {
	totalChars := 0
	for _, msg := range messages {
		totalChars += len(msg.Content)
		totalChars += len(msg.ToolCalls)
		totalChars += len(msg.ToolResults)
	}
	return totalChars / 4
}

// injectSystemContext enriches the system prompt with runtime context
// so the AI knows what model it's running as, current time, etc.
func injectSystemContext(systemPrompt, providerID, modelName string) string {
	now := time.Now()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	osName := runtime.GOOS
	switch osName {
	case "darwin":
		osName = "macOS"
	case "linux":
		osName = "Linux"
	case "windows":
		osName = "Windows"
	}

	contextBlock := fmt.Sprintf(`

---
[System Context]
Model: %s/%s
Date: %s
Time: %s
Timezone: %s
Computer: %s
OS: %s (%s)
---`,
		providerID, modelName,
		now.Format("Monday, January 2, 2006"),
		now.Format("3:04 PM"),
		now.Format("MST"),
		hostname,
		osName, runtime.GOARCH,
	)

	return systemPrompt + contextBlock
}
