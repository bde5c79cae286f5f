package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

const (
	commandTimeout   = 2 * time.Minute
	maxCommandOutput = 64 * 1024 // bytes of combined output returned to the model
)

// ExecuteCommandTool runs a shell command and captures its output
type ExecuteCommandTool struct{}

// NewExecuteCommandTool creates the execute_command tool
func NewExecuteCommandTool() *ExecuteCommandTool {
	return &ExecuteCommandTool{}
}

func (t *ExecuteCommandTool) Name() string {
	return "execute_command"
}

func (t *ExecuteCommandTool) Description() string {
	return "Run a shell command and return its combined stdout and stderr. Set needs_elevation for commands that require root."
}

func (t *ExecuteCommandTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"description": "Shell command to execute"
			},
			"needs_elevation": {
				"type": "boolean",
				"description": "Run the command with elevated privileges (default: false)"
			}
		},
		"required": ["command"]
	}`)
}

// RequiresApproval is always true; arbitrary commands change the system
func (t *ExecuteCommandTool) RequiresApproval() bool {
	return true
}

func (t *ExecuteCommandTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in struct {
		Command        string `json:"command"`
		NeedsElevation bool   `json:"needs_elevation"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.Command == "" {
		return &ToolResult{Content: "command is required", IsError: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var cmd *exec.Cmd
	if in.NeedsElevation {
		cmd = exec.CommandContext(ctx, "sudo", "-n", "sh", "-c", in.Command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", in.Command)
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	output := out.String()
	if len(output) > maxCommandOutput {
		output = output[:maxCommandOutput] + fmt.Sprintf("\n... [truncated, %d bytes total]", out.Len())
	}

	if ctx.Err() == context.DeadlineExceeded {
		return &ToolResult{
			Content: fmt.Sprintf("command timed out after %s\n%s", commandTimeout, output),
			IsError: true,
		}, nil
	}
	if err != nil {
		return &ToolResult{
			Content: fmt.Sprintf("command failed: %v\n%s", err, output),
			IsError: true,
		}, nil
	}

	if output == "" {
		output = "(no output)"
	}
	return &ToolResult{Content: output}, nil
}
