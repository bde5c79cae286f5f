package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hewlab/hew/internal/logging"
)

// Mode selects how much of the workspace is packed into the context
type Mode string

const (
	ModeFull    Mode = "full"
	ModeSmart   Mode = "smart"
	ModeMinimal Mode = "minimal"
)

// ParseMode maps a config string to a Mode, falling back to smart for
// anything unrecognized.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeFull, ModeSmart, ModeMinimal:
		return Mode(s)
	default:
		if s != "" {
			logging.Warnf("[workspace] unknown context mode %q, using smart", s)
		}
		return ModeSmart
	}
}

const (
	// maxTreeLines caps the directory tree rendering
	maxTreeLines = 200

	// responseReserve is held back from the token budget so the model
	// has room to answer
	responseReserve = 2000

	// manifestInlineLimit is the max byte size for a manifest to be
	// included verbatim rather than summarized
	manifestInlineLimit = 4096

	// defaultTokenBudget applies when the builder gets none
	defaultTokenBudget = 24000

	// defaultMaxFiles applies when the builder gets none
	defaultMaxFiles = 25
)

// skipDirs are never walked into
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
	".cache":       true,
}

// includeExts is the allowlist of source/config extensions considered
// for smart packing
var includeExts = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".jsx": true,
	".tsx": true, ".rs": true, ".java": true, ".kt": true, ".rb": true,
	".c": true, ".h": true, ".cpp": true, ".hpp": true, ".cs": true,
	".swift": true, ".sql": true, ".sh": true, ".yaml": true, ".yml": true,
	".toml": true, ".json": true, ".md": true, ".css": true, ".html": true,
	".vue": true, ".svelte": true,
}

// manifestNames are project manifests that are always surfaced
var manifestNames = map[string]bool{
	"go.mod":           true,
	"package.json":     true,
	"Cargo.toml":       true,
	"pyproject.toml":   true,
	"requirements.txt": true,
	"Gemfile":          true,
	"pom.xml":          true,
	"build.gradle":     true,
	"Makefile":         true,
	"Dockerfile":       true,
	"docker-compose.yml": true,
}

// EstimateTokens approximates the token count of text. Four characters
// per token is close enough for budget arithmetic across providers.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// Builder assembles workspace context for the system prompt
type Builder struct {
	Root            string
	Mode            Mode
	TokenBudget     int
	MaxContextFiles int
}

// NewBuilder creates a context builder for the given project root
func NewBuilder(root string, mode Mode) *Builder {
	return &Builder{
		Root:            root,
		Mode:            mode,
		TokenBudget:     defaultTokenBudget,
		MaxContextFiles: defaultMaxFiles,
	}
}

// Build renders the workspace context for the configured mode
func (b *Builder) Build() string {
	budget := b.TokenBudget
	if budget <= 0 {
		budget = defaultTokenBudget
	}
	maxFiles := b.MaxContextFiles
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}

	switch b.Mode {
	case ModeMinimal:
		return b.buildMinimal()
	case ModeFull:
		return b.buildFull(budget)
	default:
		return b.buildSmart(budget, maxFiles)
	}
}

// buildMinimal renders only the directory tree
func (b *Builder) buildMinimal() string {
	var sb strings.Builder
	sb.WriteString("## Project structure\n\n")
	sb.WriteString(b.buildTree())
	return sb.String()
}

// buildFull packs the tree plus as many whole files as the budget allows
func (b *Builder) buildFull(budget int) string {
	var sb strings.Builder
	sb.WriteString("## Project structure\n\n")
	tree := b.buildTree()
	sb.WriteString(tree)

	remaining := budget - EstimateTokens(tree) - responseReserve

	files := b.collectFiles()
	skipped := 0
	for i, f := range files {
		data, err := os.ReadFile(filepath.Join(b.Root, f.path))
		if err != nil {
			continue
		}
		section := fmt.Sprintf("\n## %s\n\n```\n%s\n```\n", f.path, string(data))
		cost := EstimateTokens(section)
		if cost > remaining {
			// Files are ordered most important first, so once the budget
			// is gone everything from here down is cut.
			skipped = len(files) - i
			break
		}
		sb.WriteString(section)
		remaining -= cost
	}

	if skipped > 0 {
		sb.WriteString(fmt.Sprintf("\n%d more files not shown. Use the read_file tool to read them.\n", skipped))
	}
	return sb.String()
}

// buildSmart packs the tree, manifests, and summaries of the most
// important files within the token budget.
func (b *Builder) buildSmart(budget, maxFiles int) string {
	var sb strings.Builder
	sb.WriteString("## Project structure\n\n")
	tree := b.buildTree()
	sb.WriteString(tree)

	files := b.collectFiles()

	// Manifests ride along regardless of budget; they anchor everything
	// else the model reasons about.
	var manifests, candidates []rankedFile
	for _, f := range files {
		if manifestNames[filepath.Base(f.path)] {
			manifests = append(manifests, f)
		} else {
			candidates = append(candidates, f)
		}
	}

	var configSection strings.Builder
	for _, m := range manifests {
		full := filepath.Join(b.Root, m.path)
		data, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		// Oversized manifests are skipped outright; verbatim or nothing,
		// so a lockfile-sized manifest cannot eat the budget.
		if len(data) > manifestInlineLimit {
			continue
		}
		fmt.Fprintf(&configSection, "\n## %s\n\n```\n%s\n```\n", m.path, string(data))
	}
	sb.WriteString(configSection.String())

	remaining := budget - EstimateTokens(tree) - EstimateTokens(configSection.String()) - responseReserve

	// The candidate list is cut to maxFiles before any emission; files
	// past the cap count toward the overflow notice.
	skipped := 0
	if len(candidates) > maxFiles {
		skipped = len(candidates) - maxFiles
		candidates = candidates[:maxFiles]
	}

	for i, f := range candidates {
		data, err := os.ReadFile(filepath.Join(b.Root, f.path))
		if err != nil {
			continue
		}
		summary := Summarize(f.path, data)

		label := f.path
		if summary.ContentMode == ContentSignatures {
			label += " (signatures)"
		}
		section := fmt.Sprintf("\n## %s\n\n```\n%s\n```\n", label, summary.Payload)
		cost := EstimateTokens(section)
		if cost > remaining {
			// Candidates are ordered most important first. A section that
			// no longer fits ends emission for the whole tail; anything
			// less important must not sneak in on size alone.
			skipped += len(candidates) - i
			break
		}
		sb.WriteString(section)
		remaining -= cost
	}

	if skipped > 0 {
		sb.WriteString(fmt.Sprintf("\n%d more files not shown. Use the read_file tool to read them.\n", skipped))
	}
	return sb.String()
}

// buildTree renders the directory tree depth-first, files before
// subdirectories, capped at maxTreeLines.
func (b *Builder) buildTree() string {
	var lines []string
	b.walkTree(b.Root, "", &lines)

	if len(lines) > maxTreeLines {
		kept := lines[:maxTreeLines]
		kept = append(kept, fmt.Sprintf("... [%d more entries]", len(lines)-maxTreeLines))
		lines = kept
	}
	return strings.Join(lines, "\n") + "\n"
}

func (b *Builder) walkTree(dir, indent string, lines *[]string) {
	if len(*lines) > maxTreeLines {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return // unreadable directories are skipped silently
	}

	var files, dirs []os.DirEntry
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") && name != ".env.example" {
			continue
		}
		if e.IsDir() {
			if skipDirs[name] {
				continue
			}
			dirs = append(dirs, e)
		} else {
			files = append(files, e)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name() < dirs[j].Name() })

	for _, f := range files {
		*lines = append(*lines, indent+f.Name())
	}
	for _, d := range dirs {
		*lines = append(*lines, indent+d.Name()+"/")
		b.walkTree(filepath.Join(dir, d.Name()), indent+"  ", lines)
	}
}

// rankedFile is a workspace file with its importance tier
type rankedFile struct {
	path string
	tier int
}

// collectFiles walks the workspace and returns allowlisted files sorted
// by importance tier. Ties keep encounter order, so the ranking is
// deterministic for a given tree.
func (b *Builder) collectFiles() []rankedFile {
	var files []rankedFile

	filepath.WalkDir(b.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != b.Root && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !includeExts[filepath.Ext(name)] && !manifestNames[name] && name != ".env.example" {
			return nil
		}
		rel, err := filepath.Rel(b.Root, path)
		if err != nil {
			return nil
		}
		files = append(files, rankedFile{path: rel, tier: importanceTier(rel)})
		return nil
	})

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].tier < files[j].tier
	})
	return files
}

// importanceTier assigns a file to an ordering bucket. Lower is packed
// first.
func importanceTier(rel string) int {
	base := filepath.Base(rel)
	lower := strings.ToLower(rel)

	switch {
	case base == "main.go" || base == "main.py" || base == "index.js" ||
		base == "index.ts" || base == "app.py" || base == "server.js":
		return 0
	case manifestNames[base]:
		return 1
	case base == ".env.example" || strings.EqualFold(base, "README.md"):
		return 2
	case strings.Contains(lower, "schema") || strings.Contains(lower, "model") ||
		strings.Contains(lower, "types"):
		return 3
	case strings.Contains(lower, "route") || strings.Contains(lower, "handler") ||
		strings.Contains(lower, "controller") || strings.Contains(lower, "api"):
		return 4
	case strings.Contains(lower, "component") || strings.Contains(lower, "page") ||
		strings.Contains(lower, "view"):
		return 5
	case strings.Contains(lower, "util") || strings.Contains(lower, "helper") ||
		strings.Contains(lower, "lib"):
		return 6
	case strings.Contains(lower, "test") || strings.Contains(lower, "spec"):
		return 8
	default:
		return 7
	}
}
