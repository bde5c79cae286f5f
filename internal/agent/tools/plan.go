package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// PlanStep is one entry in a task plan
type PlanStep struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Status      string `json:"status"` // pending, in-progress, completed, skipped
	Order       int    `json:"order"`
}

// Plan is a titled, ordered list of steps
type Plan struct {
	Title string     `json:"title"`
	Steps []PlanStep `json:"steps"`
}

var validStepStatus = map[string]bool{
	"pending":     true,
	"in-progress": true,
	"completed":   true,
	"skipped":     true,
}

// CreatePlanTool records the model's working plan. Each call replaces
// the previous plan so status updates travel as full re-submissions.
type CreatePlanTool struct {
	mu   sync.Mutex
	plan *Plan

	// OnPlanUpdate fires after each accepted plan, for UI display
	OnPlanUpdate func(plan *Plan)
}

// NewCreatePlanTool creates the create_plan tool
func NewCreatePlanTool() *CreatePlanTool {
	return &CreatePlanTool{}
}

func (t *CreatePlanTool) Name() string {
	return "create_plan"
}

func (t *CreatePlanTool) Description() string {
	return "Create or update the step-by-step plan for the current task. Submit the full plan each time, updating step statuses as work progresses."
}

func (t *CreatePlanTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"title": {
				"type": "string",
				"description": "Short title for the plan"
			},
			"steps": {
				"type": "array",
				"description": "Ordered list of plan steps",
				"items": {
					"type": "object",
					"properties": {
						"id": {"type": "string", "description": "Stable step identifier"},
						"description": {"type": "string", "description": "What this step does"},
						"status": {
							"type": "string",
							"description": "Step status",
							"enum": ["pending", "in-progress", "completed", "skipped"]
						},
						"order": {"type": "integer", "description": "Position in the plan"}
					},
					"required": ["id", "description", "status", "order"]
				}
			}
		},
		"required": ["title", "steps"]
	}`)
}

func (t *CreatePlanTool) RequiresApproval() bool {
	return false
}

func (t *CreatePlanTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in Plan
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.Title == "" {
		return &ToolResult{Content: "title is required", IsError: true}, nil
	}
	if len(in.Steps) == 0 {
		return &ToolResult{Content: "a plan needs at least one step", IsError: true}, nil
	}
	for _, s := range in.Steps {
		if !validStepStatus[s.Status] {
			return &ToolResult{
				Content: fmt.Sprintf("invalid status %q on step %q (valid: pending, in-progress, completed, skipped)", s.Status, s.ID),
				IsError: true,
			}, nil
		}
	}

	sort.SliceStable(in.Steps, func(i, j int) bool {
		return in.Steps[i].Order < in.Steps[j].Order
	})

	t.mu.Lock()
	t.plan = &in
	callback := t.OnPlanUpdate
	t.mu.Unlock()

	if callback != nil {
		callback(&in)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Plan recorded: %s\n", in.Title)
	for _, s := range in.Steps {
		fmt.Fprintf(&b, "  [%s] %s\n", s.Status, s.Description)
	}
	return &ToolResult{Content: b.String()}, nil
}

// CurrentPlan returns the most recently recorded plan, or nil
func (t *CreatePlanTool) CurrentPlan() *Plan {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.plan
}
