package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hewlab/hew/internal/agent/ai"
)

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry()
	r.RegisterDefaults()

	want := []string{
		"create_plan", "execute_command", "grep_lines", "list_files",
		"read_file", "search_code", "search_web", "task_complete", "write_file",
	}

	names := r.Names()
	if len(names) != len(want) {
		t.Fatalf("expected %d tools, got %d: %v", len(want), len(names), names)
	}
	for i, w := range want {
		if names[i] != w {
			t.Errorf("position %d: expected %s, got %s", i, w, names[i])
		}
	}
}

func TestRegistryListIsDeterministic(t *testing.T) {
	r := NewRegistry()
	r.RegisterDefaults()

	first := r.List()
	for i := 0; i < 5; i++ {
		again := r.List()
		for j := range first {
			if again[j].Name != first[j].Name {
				t.Fatalf("tool order changed between calls: %s vs %s", again[j].Name, first[j].Name)
			}
		}
	}

	for _, def := range first {
		var schema map[string]any
		if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
			t.Errorf("tool %s has invalid schema JSON: %v", def.Name, err)
		}
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	r.RegisterDefaults()

	result := r.Execute(context.Background(), &ai.ToolCall{
		ID:    "call-1",
		Name:  "launch_missiles",
		Input: json.RawMessage(`{}`),
	})

	if !result.IsError {
		t.Fatal("expected error result for unknown tool")
	}
	if !strings.Contains(result.Content, "launch_missiles") {
		t.Error("error should name the unknown tool")
	}
	if !strings.Contains(result.Content, "read_file") {
		t.Error("error should list the available tools")
	}
}

func TestRegistryExecuteToolFailureIsResult(t *testing.T) {
	r := NewRegistry()
	r.Register(NewReadFileTool())

	// Malformed input makes the tool return an error; the registry must
	// convert it into an error-flagged result, not propagate it.
	result := r.Execute(context.Background(), &ai.ToolCall{
		ID:    "call-2",
		Name:  "read_file",
		Input: json.RawMessage(`not json`),
	})

	if result == nil {
		t.Fatal("expected a result")
	}
	if !result.IsError {
		t.Error("expected error flag on failed execution")
	}
}
