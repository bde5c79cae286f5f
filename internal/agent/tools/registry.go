package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hewlab/hew/internal/agent/ai"
	"github.com/hewlab/hew/internal/logging"
)

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Tool interface that all tools must implement
type Tool interface {
	// Name returns the tool's unique name
	Name() string

	// Description returns a description for the AI
	Description() string

	// Schema returns the JSON schema for the tool's input
	Schema() json.RawMessage

	// Execute runs the tool with the given input
	Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error)

	// RequiresApproval returns true if this tool needs user approval
	RequiresApproval() bool
}

// Registry manages available tools
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tools[tool.Name()]; ok {
		logging.Warnf("[registry] tool %q already registered (%T), overwritten by %T",
			tool.Name(), existing, tool)
	}
	r.tools[tool.Name()] = tool
}

// Unregister removes a tool from the registry by name
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all tools as AI tool definitions, sorted by name so the
// prompt sent to the model is deterministic.
func (r *Registry) List() []ai.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]ai.ToolDefinition, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]
		defs = append(defs, ai.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Schema(),
		})
	}
	return defs
}

// Execute runs a tool and returns the result. Failures never propagate
// as errors; they come back as an error-flagged ToolResult so the model
// can read the failure and self-correct.
func (r *Registry) Execute(ctx context.Context, toolCall *ai.ToolCall) *ToolResult {
	logging.Debugf("[registry] executing tool: %s", toolCall.Name)

	r.mu.RLock()
	tool, ok := r.tools[toolCall.Name]
	r.mu.RUnlock()

	if !ok {
		logging.Warnf("[registry] unknown tool: %s", toolCall.Name)
		return &ToolResult{
			Content: fmt.Sprintf(
				"TOOL ERROR: %q does not exist. You do NOT have that tool. Do NOT call it again.\nYour available tools are: %s",
				toolCall.Name, strings.Join(r.Names(), ", ")),
			IsError: true,
		}
	}

	result, err := tool.Execute(ctx, toolCall.Input)
	if err != nil {
		return &ToolResult{
			Content: fmt.Sprintf("TOOL ERROR: %s failed: %v", toolCall.Name, err),
			IsError: true,
		}
	}
	if result == nil {
		return &ToolResult{
			Content: fmt.Sprintf("TOOL ERROR: %s returned no result", toolCall.Name),
			IsError: true,
		}
	}
	return result
}

// RegisterDefaults registers the standard tool set
func (r *Registry) RegisterDefaults() {
	r.Register(NewReadFileTool())
	r.Register(NewWriteFileTool())
	r.Register(NewListFilesTool())
	r.Register(NewGrepLinesTool())
	r.Register(NewSearchCodeTool())
	r.Register(NewCreatePlanTool())
	r.Register(NewTaskCompleteTool())
	r.Register(NewExecuteCommandTool())
	r.Register(NewSearchWebTool())
}
