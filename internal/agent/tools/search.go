package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxSearchMatches = 100

// skipDirs are directory names never descended into during a code search
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	".next":        true,
	".idea":        true,
	".vscode":      true,
}

// SearchCodeTool searches file contents under the working directory
type SearchCodeTool struct {
	root string
}

// NewSearchCodeTool creates the search_code tool rooted at the current directory
func NewSearchCodeTool() *SearchCodeTool {
	return &SearchCodeTool{root: "."}
}

// NewSearchCodeToolAt creates the search_code tool rooted at dir
func NewSearchCodeToolAt(dir string) *SearchCodeTool {
	return &SearchCodeTool{root: dir}
}

func (t *SearchCodeTool) Name() string {
	return "search_code"
}

func (t *SearchCodeTool) Description() string {
	return "Search all project files for a literal string. Returns file:line matches with the matching line."
}

func (t *SearchCodeTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"search_term": {
				"type": "string",
				"description": "Literal text to search for"
			}
		},
		"required": ["search_term"]
	}`)
}

func (t *SearchCodeTool) RequiresApproval() bool {
	return false
}

func (t *SearchCodeTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in struct {
		SearchTerm string `json:"search_term"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.SearchTerm == "" {
		return &ToolResult{Content: "search_term is required", IsError: true}, nil
	}

	var matches []string
	truncated := false

	err := filepath.WalkDir(t.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if len(matches) >= maxSearchMatches {
			truncated = true
			return filepath.SkipAll
		}

		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if isBinaryLine(line) {
				return nil
			}
			if strings.Contains(line, in.SearchTerm) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", path, lineNo, strings.TrimSpace(line)))
				if len(matches) >= maxSearchMatches {
					truncated = true
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if err != nil && err != ctx.Err() {
		return &ToolResult{Content: fmt.Sprintf("search failed: %v", err), IsError: true}, nil
	}

	if len(matches) == 0 {
		return &ToolResult{Content: fmt.Sprintf("No matches for %q", in.SearchTerm)}, nil
	}

	out := strings.Join(matches, "\n")
	if truncated {
		out += fmt.Sprintf("\n... [stopped after %d matches]", maxSearchMatches)
	}
	return &ToolResult{Content: out}, nil
}

// isBinaryLine flags lines containing NUL bytes so binary files are skipped
func isBinaryLine(line string) bool {
	return strings.ContainsRune(line, '\x00')
}
