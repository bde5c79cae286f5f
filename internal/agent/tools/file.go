package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const maxReadBytes = 256 * 1024 // cap read_file output sent to the model

// ReadFileTool reads a file's full contents
type ReadFileTool struct{}

// NewReadFileTool creates the read_file tool
func NewReadFileTool() *ReadFileTool {
	return &ReadFileTool{}
}

func (t *ReadFileTool) Name() string {
	return "read_file"
}

func (t *ReadFileTool) Description() string {
	return "Read the complete contents of a file. Use grep_lines for a specific line range of large files."
}

func (t *ReadFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {
				"type": "string",
				"description": "Path to the file to read"
			}
		},
		"required": ["file_path"]
	}`)
}

func (t *ReadFileTool) RequiresApproval() bool {
	return false
}

func (t *ReadFileTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.FilePath == "" {
		return &ToolResult{Content: "file_path is required", IsError: true}, nil
	}

	data, err := os.ReadFile(expandPath(in.FilePath))
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("failed to read %s: %v", in.FilePath, err), IsError: true}, nil
	}

	content := string(data)
	if len(content) > maxReadBytes {
		content = content[:maxReadBytes] + fmt.Sprintf("\n... [truncated, %d bytes total]", len(data))
	}
	return &ToolResult{Content: content}, nil
}

// WriteFileTool writes content to a file, creating parent directories
type WriteFileTool struct{}

// NewWriteFileTool creates the write_file tool
func NewWriteFileTool() *WriteFileTool {
	return &WriteFileTool{}
}

func (t *WriteFileTool) Name() string {
	return "write_file"
}

func (t *WriteFileTool) Description() string {
	return "Write content to a file, replacing anything already there. Parent directories are created as needed."
}

func (t *WriteFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {
				"type": "string",
				"description": "Path to the file to write"
			},
			"content": {
				"type": "string",
				"description": "Full content to write to the file"
			}
		},
		"required": ["file_path", "content"]
	}`)
}

func (t *WriteFileTool) RequiresApproval() bool {
	return true
}

func (t *WriteFileTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.FilePath == "" {
		return &ToolResult{Content: "file_path is required", IsError: true}, nil
	}

	path := expandPath(in.FilePath)
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &ToolResult{Content: fmt.Sprintf("failed to create directory %s: %v", dir, err), IsError: true}, nil
		}
	}

	if err := os.WriteFile(path, []byte(in.Content), 0644); err != nil {
		return &ToolResult{Content: fmt.Sprintf("failed to write %s: %v", in.FilePath, err), IsError: true}, nil
	}
	return &ToolResult{Content: fmt.Sprintf("Wrote %d bytes to %s", len(in.Content), in.FilePath)}, nil
}

// ListFilesTool lists directory entries
type ListFilesTool struct{}

// NewListFilesTool creates the list_files tool
func NewListFilesTool() *ListFilesTool {
	return &ListFilesTool{}
}

func (t *ListFilesTool) Name() string {
	return "list_files"
}

func (t *ListFilesTool) Description() string {
	return "List the files and subdirectories inside a directory. Directories are suffixed with a slash."
}

func (t *ListFilesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"directory_path": {
				"type": "string",
				"description": "Path to the directory to list"
			}
		},
		"required": ["directory_path"]
	}`)
}

func (t *ListFilesTool) RequiresApproval() bool {
	return false
}

func (t *ListFilesTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in struct {
		DirectoryPath string `json:"directory_path"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.DirectoryPath == "" {
		return &ToolResult{Content: "directory_path is required", IsError: true}, nil
	}

	entries, err := os.ReadDir(expandPath(in.DirectoryPath))
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("failed to list %s: %v", in.DirectoryPath, err), IsError: true}, nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return &ToolResult{Content: fmt.Sprintf("%s is empty", in.DirectoryPath)}, nil
	}
	return &ToolResult{Content: strings.Join(names, "\n")}, nil
}

// GrepLinesTool extracts a line range from a file
type GrepLinesTool struct{}

// NewGrepLinesTool creates the grep_lines tool
func NewGrepLinesTool() *GrepLinesTool {
	return &GrepLinesTool{}
}

func (t *GrepLinesTool) Name() string {
	return "grep_lines"
}

func (t *GrepLinesTool) Description() string {
	return "Read a specific range of lines from a file. Lines are 1-indexed and the range is inclusive."
}

func (t *GrepLinesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {
				"type": "string",
				"description": "Path to the file to read"
			},
			"start_line": {
				"type": "integer",
				"description": "First line to include (1-indexed)"
			},
			"end_line": {
				"type": "integer",
				"description": "Last line to include (inclusive)"
			}
		},
		"required": ["file_path", "start_line", "end_line"]
	}`)
}

func (t *GrepLinesTool) RequiresApproval() bool {
	return false
}

func (t *GrepLinesTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in struct {
		FilePath  string `json:"file_path"`
		StartLine int    `json:"start_line"`
		EndLine   int    `json:"end_line"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.FilePath == "" {
		return &ToolResult{Content: "file_path is required", IsError: true}, nil
	}
	if in.StartLine < 1 || in.EndLine < in.StartLine {
		return &ToolResult{
			Content: fmt.Sprintf("invalid line range %d-%d: start_line must be >= 1 and end_line >= start_line", in.StartLine, in.EndLine),
			IsError: true,
		}, nil
	}

	data, err := os.ReadFile(expandPath(in.FilePath))
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("failed to read %s: %v", in.FilePath, err), IsError: true}, nil
	}

	lines := strings.Split(string(data), "\n")
	if in.StartLine > len(lines) {
		return &ToolResult{
			Content: fmt.Sprintf("start_line %d is past the end of the file (%d lines)", in.StartLine, len(lines)),
			IsError: true,
		}, nil
	}

	end := in.EndLine
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	for i := in.StartLine; i <= end; i++ {
		fmt.Fprintf(&b, "%d\t%s\n", i, lines[i-1])
	}
	return &ToolResult{Content: b.String()}, nil
}

// expandPath expands a leading ~ to the user's home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
