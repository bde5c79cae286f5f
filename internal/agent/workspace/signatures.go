package workspace

import (
	"path/filepath"
	"strings"
)

// ContentMode says how a file was packed into its summary
type ContentMode string

const (
	ContentFull       ContentMode = "full"
	ContentSignatures ContentMode = "signatures"
)

// fullContentLimit is the byte size under which a file is packed whole
const fullContentLimit = 500

// FileSummary is a compressed representation of one workspace file
type FileSummary struct {
	Path             string      `json:"path"`
	LineCount        int         `json:"line_count"`
	ByteLength       int         `json:"byte_length"`
	ContentMode      ContentMode `json:"content_mode"`
	Payload          string      `json:"payload"`
	CompressionRatio float64     `json:"compression_ratio"`
}

// signaturePrefixes maps file extensions to the line prefixes that
// constitute a file's public shape. Matching is done on the trimmed
// line.
var signaturePrefixes = map[string][]string{
	".go":     {"package ", "import ", "func ", "type ", "var ", "const "},
	".py":     {"def ", "class ", "import ", "from ", "@", "async def "},
	".js":     {"function ", "class ", "export ", "import ", "const ", "module.exports"},
	".jsx":    {"function ", "class ", "export ", "import ", "const "},
	".ts":     {"function ", "class ", "export ", "import ", "const ", "interface ", "type ", "enum "},
	".tsx":    {"function ", "class ", "export ", "import ", "const ", "interface ", "type "},
	".rs":     {"fn ", "pub ", "struct ", "enum ", "impl ", "trait ", "use ", "mod ", "const "},
	".java":   {"public ", "private ", "protected ", "class ", "interface ", "enum ", "import "},
	".kt":     {"fun ", "class ", "object ", "interface ", "import ", "val ", "var "},
	".rb":     {"def ", "class ", "module ", "require "},
	".c":      {"#include", "#define", "typedef ", "struct ", "enum "},
	".h":      {"#include", "#define", "typedef ", "struct ", "enum "},
	".cpp":    {"#include", "#define", "class ", "struct ", "namespace ", "template"},
	".cs":     {"public ", "private ", "protected ", "class ", "interface ", "namespace ", "using "},
	".swift":  {"func ", "class ", "struct ", "enum ", "protocol ", "import ", "extension "},
	".sql":    {"CREATE ", "ALTER ", "DROP ", "create ", "alter ", "drop "},
	".sh":     {"function ", "#!"},
	".svelte": {"export ", "import ", "function ", "const "},
	".vue":    {"export ", "import ", "function ", "const "},
}

// Summarize compresses a file for context packing. Small files travel
// whole; larger ones are reduced to their signature lines, which are
// always an exact subset of the original lines.
func Summarize(path string, data []byte) FileSummary {
	content := string(data)
	lines := strings.Split(content, "\n")

	summary := FileSummary{
		Path:       path,
		LineCount:  len(lines),
		ByteLength: len(data),
	}

	if len(data) < fullContentLimit {
		summary.ContentMode = ContentFull
		summary.Payload = content
		summary.CompressionRatio = 1.0
		return summary
	}

	summary.ContentMode = ContentSignatures
	summary.Payload = extractSignatures(filepath.Ext(path), lines)
	if len(data) > 0 {
		summary.CompressionRatio = float64(len(summary.Payload)) / float64(len(data))
	}
	return summary
}

// extractSignatures keeps the lines whose trimmed form starts with one
// of the language's signature prefixes. Languages without a prefix
// table fall back to the first 20 lines.
func extractSignatures(ext string, lines []string) string {
	prefixes, ok := signaturePrefixes[ext]
	if !ok {
		head := lines
		if len(head) > 20 {
			head = head[:20]
		}
		return strings.Join(head, "\n")
	}

	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(trimmed, prefix) {
				kept = append(kept, line)
				break
			}
		}
	}

	if len(kept) == 0 {
		head := lines
		if len(head) > 10 {
			head = head[:10]
		}
		return strings.Join(head, "\n")
	}
	return strings.Join(kept, "\n")
}
