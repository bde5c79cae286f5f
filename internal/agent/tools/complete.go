package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// TaskCompleteName is the tool name the loop watches for to terminate
const TaskCompleteName = "task_complete"

// TaskCompleteTool signals that the current task is finished. The loop
// treats a call to this tool as the termination condition.
type TaskCompleteTool struct{}

// NewTaskCompleteTool creates the task_complete tool
func NewTaskCompleteTool() *TaskCompleteTool {
	return &TaskCompleteTool{}
}

func (t *TaskCompleteTool) Name() string {
	return TaskCompleteName
}

func (t *TaskCompleteTool) Description() string {
	return "Call this when the task is fully done. Provide a summary of what was accomplished. This ends the work loop."
}

func (t *TaskCompleteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"summary": {
				"type": "string",
				"description": "Summary of what was accomplished"
			}
		},
		"required": ["summary"]
	}`)
}

func (t *TaskCompleteTool) RequiresApproval() bool {
	return false
}

func (t *TaskCompleteTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.Summary == "" {
		in.Summary = "Task complete."
	}
	return &ToolResult{Content: in.Summary}, nil
}
