package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execTool(t *testing.T, tool Tool, input string) *ToolResult {
	t.Helper()
	result, err := tool.Execute(context.Background(), json.RawMessage(input))
	if err != nil {
		t.Fatalf("%s execute failed: %v", tool.Name(), err)
	}
	return result
}

func TestReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "out.txt")

	write := NewWriteFileTool()
	result := execTool(t, write, fmt.Sprintf(`{"file_path": %q, "content": "hello\nworld"}`, path))
	if result.IsError {
		t.Fatalf("write failed: %s", result.Content)
	}

	read := NewReadFileTool()
	result = execTool(t, read, fmt.Sprintf(`{"file_path": %q}`, path))
	if result.IsError {
		t.Fatalf("read failed: %s", result.Content)
	}
	if result.Content != "hello\nworld" {
		t.Errorf("unexpected content: %q", result.Content)
	}
}

func TestReadFileMissing(t *testing.T) {
	read := NewReadFileTool()
	result := execTool(t, read, `{"file_path": "/no/such/file/anywhere"}`)
	if !result.IsError {
		t.Fatal("expected error result for missing file")
	}
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "child"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	list := NewListFilesTool()
	result := execTool(t, list, fmt.Sprintf(`{"directory_path": %q}`, dir))
	if result.IsError {
		t.Fatalf("list failed: %s", result.Content)
	}

	lines := strings.Split(strings.TrimSpace(result.Content), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 entries, got %v", lines)
	}
	if lines[0] != "a.txt" || lines[1] != "child/" {
		t.Errorf("unexpected listing: %v", lines)
	}
}

func TestGrepLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lines.txt")
	var content strings.Builder
	for i := 1; i <= 20; i++ {
		fmt.Fprintf(&content, "line %d\n", i)
	}
	if err := os.WriteFile(path, []byte(content.String()), 0644); err != nil {
		t.Fatal(err)
	}

	grep := NewGrepLinesTool()

	t.Run("inclusive 1-indexed range", func(t *testing.T) {
		result := execTool(t, grep, fmt.Sprintf(`{"file_path": %q, "start_line": 3, "end_line": 5}`, path))
		if result.IsError {
			t.Fatalf("grep failed: %s", result.Content)
		}
		if !strings.Contains(result.Content, "3\tline 3") ||
			!strings.Contains(result.Content, "5\tline 5") {
			t.Errorf("expected lines 3 through 5, got %q", result.Content)
		}
		if strings.Contains(result.Content, "line 6") {
			t.Error("range should be inclusive of end_line only")
		}
	})

	t.Run("end past EOF is clamped", func(t *testing.T) {
		result := execTool(t, grep, fmt.Sprintf(`{"file_path": %q, "start_line": 19, "end_line": 999}`, path))
		if result.IsError {
			t.Fatalf("grep failed: %s", result.Content)
		}
		if !strings.Contains(result.Content, "line 20") {
			t.Errorf("expected clamped tail, got %q", result.Content)
		}
	})

	t.Run("invalid range", func(t *testing.T) {
		result := execTool(t, grep, fmt.Sprintf(`{"file_path": %q, "start_line": 5, "end_line": 3}`, path))
		if !result.IsError {
			t.Fatal("expected error for reversed range")
		}
	})

	t.Run("start past EOF", func(t *testing.T) {
		result := execTool(t, grep, fmt.Sprintf(`{"file_path": %q, "start_line": 500, "end_line": 510}`, path))
		if !result.IsError {
			t.Fatal("expected error for start past EOF")
		}
	})
}

func TestSearchCode(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc needleHere() {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "node_modules", "dep"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "node_modules", "dep", "x.js"), []byte("needleHere\n"), 0644); err != nil {
		t.Fatal(err)
	}

	search := NewSearchCodeToolAt(dir)

	t.Run("finds matches with line numbers", func(t *testing.T) {
		result := execTool(t, search, `{"search_term": "needleHere"}`)
		if result.IsError {
			t.Fatalf("search failed: %s", result.Content)
		}
		if !strings.Contains(result.Content, "main.go:3") {
			t.Errorf("expected main.go:3 in output, got %q", result.Content)
		}
	})

	t.Run("skips dependency directories", func(t *testing.T) {
		result := execTool(t, search, `{"search_term": "needleHere"}`)
		if strings.Contains(result.Content, "node_modules") {
			t.Error("node_modules must be excluded from search")
		}
	})

	t.Run("no matches", func(t *testing.T) {
		result := execTool(t, search, `{"search_term": "zzz_not_present"}`)
		if result.IsError {
			t.Fatalf("search failed: %s", result.Content)
		}
		if !strings.Contains(result.Content, "No matches") {
			t.Errorf("expected no-match message, got %q", result.Content)
		}
	})
}

func TestCreatePlan(t *testing.T) {
	plan := NewCreatePlanTool()

	t.Run("valid plan is recorded", func(t *testing.T) {
		result := execTool(t, plan, `{
			"title": "Fix the bug",
			"steps": [
				{"id": "s2", "description": "verify", "status": "pending", "order": 2},
				{"id": "s1", "description": "patch", "status": "in-progress", "order": 1}
			]
		}`)
		if result.IsError {
			t.Fatalf("plan failed: %s", result.Content)
		}

		recorded := plan.CurrentPlan()
		if recorded == nil {
			t.Fatal("plan not stored")
		}
		if recorded.Steps[0].ID != "s1" {
			t.Errorf("steps should be sorted by order, got %s first", recorded.Steps[0].ID)
		}
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		result := execTool(t, plan, `{
			"title": "Bad",
			"steps": [{"id": "s1", "description": "x", "status": "doing", "order": 1}]
		}`)
		if !result.IsError {
			t.Fatal("expected error for invalid status")
		}
	})

	t.Run("empty plan rejected", func(t *testing.T) {
		result := execTool(t, plan, `{"title": "Empty", "steps": []}`)
		if !result.IsError {
			t.Fatal("expected error for empty steps")
		}
	})
}

func TestTaskComplete(t *testing.T) {
	tool := NewTaskCompleteTool()
	if tool.Name() != TaskCompleteName {
		t.Fatalf("name mismatch: %s", tool.Name())
	}

	result := execTool(t, tool, `{"summary": "All done"}`)
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if result.Content != "All done" {
		t.Errorf("expected summary echoed, got %q", result.Content)
	}
}

func TestParseDuckDuckGoHTML(t *testing.T) {
	html := `
	<div class="result__body">
		<a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fpage">Example <b>Title</b></a>
		<a class="result__snippet">A short snippet.</a>
	</div>
	<div class="result__body">
		<a class="result__a" href="https://direct.example.org/">Direct Result</a>
	</div>`

	results := parseDuckDuckGoHTML(html, 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].URL != "https://example.com/page" {
		t.Errorf("redirect URL not unwrapped: %q", results[0].URL)
	}
	if results[0].Title != "Example Title" {
		t.Errorf("tags not stripped from title: %q", results[0].Title)
	}
	if results[0].Snippet != "A short snippet." {
		t.Errorf("unexpected snippet: %q", results[0].Snippet)
	}
	if results[1].URL != "https://direct.example.org/" {
		t.Errorf("direct URL mangled: %q", results[1].URL)
	}

	if limited := parseDuckDuckGoHTML(html, 1); len(limited) != 1 {
		t.Errorf("limit not honored: got %d results", len(limited))
	}
}
