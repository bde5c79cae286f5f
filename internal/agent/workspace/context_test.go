package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"full":    ModeFull,
		"smart":   ModeSmart,
		"minimal": ModeMinimal,
		"":        ModeSmart,
		"bogus":   ModeSmart,
	}
	for in, want := range cases {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTreeOrdering(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "zeta.go", "package main\n")
	writeFile(t, root, "alpha.go", "package main\n")
	writeFile(t, root, "sub/inner.go", "package sub\n")
	writeFile(t, root, "node_modules/dep/x.js", "ignored\n")

	b := NewBuilder(root, ModeMinimal)
	out := b.Build()

	alphaIdx := strings.Index(out, "alpha.go")
	zetaIdx := strings.Index(out, "zeta.go")
	subIdx := strings.Index(out, "sub/")
	if alphaIdx == -1 || zetaIdx == -1 || subIdx == -1 {
		t.Fatalf("missing entries in tree:\n%s", out)
	}
	if alphaIdx > zetaIdx {
		t.Error("files must be sorted lexicographically")
	}
	if zetaIdx > subIdx {
		t.Error("files must come before subdirectories")
	}
	if strings.Contains(out, "node_modules") {
		t.Error("denylisted directories must not appear in the tree")
	}
}

func TestTreeLineCap(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 400; i++ {
		writeFile(t, root, fmt.Sprintf("file%03d.go", i), "package main\n")
	}

	b := NewBuilder(root, ModeMinimal)
	out := b.Build()

	treeLines := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.HasSuffix(line, ".go") {
			treeLines++
		}
	}
	if treeLines > maxTreeLines {
		t.Errorf("tree has %d file lines, cap is %d", treeLines, maxTreeLines)
	}
	if !strings.Contains(out, "more entries") {
		t.Error("expected truncation marker on capped tree")
	}
}

func TestSmartBudgetNeverExceeded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/demo\n\ngo 1.22\n")
	big := strings.Repeat("func helper() {}\n// filler line of some length here\n", 200)
	for i := 0; i < 10; i++ {
		writeFile(t, root, fmt.Sprintf("pkg/file%d.go", i), "package pkg\n\n"+big)
	}

	b := NewBuilder(root, ModeSmart)
	b.TokenBudget = 1000 // too small for any file content
	out := b.Build()

	// Tree and manifest always survive; file bodies must not.
	if !strings.Contains(out, "Project structure") {
		t.Error("tree missing from output")
	}
	if !strings.Contains(out, "go.mod") {
		t.Error("manifest missing from output")
	}
	if !strings.Contains(out, "more files not shown") {
		t.Error("expected overflow notice when budget excludes files")
	}
	if strings.Contains(out, "filler line of some length") {
		t.Error("file bodies must be dropped under a tiny budget")
	}
}

func TestSmartIncludesManifestVerbatim(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/demo\n\ngo 1.22\n")
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")

	b := NewBuilder(root, ModeSmart)
	out := b.Build()

	if !strings.Contains(out, "module example.com/demo") {
		t.Error("small manifest should be inlined verbatim")
	}
	if !strings.Contains(out, "func main() {}") {
		t.Error("small source files should be packed whole")
	}
}

func TestSmartCutoffDropsLeastImportantFirst(t *testing.T) {
	root := t.TempDir()
	var big strings.Builder
	big.WriteString("package main\n\n")
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&big, "func handler%03d() {}\n", i)
	}
	writeFile(t, root, "main.go", big.String())
	writeFile(t, root, "util/helpers.go", "package util\n\nfunc Clamp(v int) int { return v }\n")

	b := NewBuilder(root, ModeSmart)
	b.TokenBudget = 2500 // reserve leaves room for roughly one small section
	out := b.Build()

	if strings.Contains(out, "func handler000") {
		t.Fatal("oversized entry point should not fit this budget")
	}
	if strings.Contains(out, "func Clamp") {
		t.Error("cut-off must drop the tail, not let a smaller low-importance file in")
	}
	if !strings.Contains(out, "2 more files not shown") {
		t.Errorf("expected both files in the overflow notice:\n%s", out)
	}
}

func TestFullCutoffStopsAtFirstOversizedFile(t *testing.T) {
	root := t.TempDir()
	big := strings.Repeat("// padding line with enough text to cost tokens\n", 400)
	writeFile(t, root, "main.go", "package main\n"+big)
	writeFile(t, root, "util/helpers.go", "package util\n")

	b := NewBuilder(root, ModeFull)
	b.TokenBudget = 2500
	out := b.Build()

	if strings.Contains(out, "package util") {
		t.Error("files after the cut-off must not be emitted")
	}
	if !strings.Contains(out, "2 more files not shown") {
		t.Error("expected overflow notice covering the whole tail")
	}
}

func TestSmartSkipsOversizedManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/demo\n")
	huge := strings.Repeat("{\"dep\": \"padding entry\"},\n", 400) // over manifestInlineLimit
	writeFile(t, root, "package.json", huge)

	b := NewBuilder(root, ModeSmart)
	out := b.Build()

	if !strings.Contains(out, "module example.com/demo") {
		t.Error("small manifest should still be inlined verbatim")
	}
	if strings.Contains(out, "padding entry") {
		t.Error("oversized manifest content must be skipped")
	}
	if strings.Contains(out, "package.json (summary)") {
		t.Error("oversized manifests are skipped, not summarized")
	}
}

func TestCollectFilesAdmitsEnvExample(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".env.example", "API_KEY=\n")
	writeFile(t, root, "main.go", "package main\n")

	b := NewBuilder(root, ModeSmart)
	files := b.collectFiles()

	found := false
	for _, f := range files {
		if f.path == ".env.example" {
			found = true
			if f.tier != 2 {
				t.Errorf(".env.example should rank in the environment tier, got %d", f.tier)
			}
		}
	}
	if !found {
		t.Fatal(".env.example missing from collected files")
	}
}

func TestSmartRespectsMaxFiles(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, root, fmt.Sprintf("f%d.go", i), fmt.Sprintf("package main\n\nfunc f%d() {}\n", i))
	}

	b := NewBuilder(root, ModeSmart)
	b.MaxContextFiles = 3
	out := b.Build()

	sections := strings.Count(out, "\n## ")
	// 3 file sections at most (no manifests in this tree)
	if sections > 3 {
		t.Errorf("expected at most 3 file sections, got %d", sections)
	}
	if !strings.Contains(out, "more files not shown") {
		t.Error("expected notice about files over the cap")
	}
}

func TestImportanceOrdering(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "util/helpers.go", "package util\n")
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "api/routes.go", "package api\n")
	writeFile(t, root, "models/schema.go", "package models\n")
	writeFile(t, root, "go.mod", "module x\n")

	b := NewBuilder(root, ModeSmart)
	files := b.collectFiles()

	order := make([]string, len(files))
	for i, f := range files {
		order[i] = f.path
	}

	pos := func(name string) int {
		for i, p := range order {
			if p == name {
				return i
			}
		}
		t.Fatalf("%s missing from %v", name, order)
		return -1
	}

	if pos("main.go") > pos("go.mod") {
		t.Error("entry point should rank above manifest")
	}
	if pos("go.mod") > pos(filepath.Join("models", "schema.go")) {
		t.Error("manifest should rank above schema files")
	}
	if pos(filepath.Join("models", "schema.go")) > pos(filepath.Join("api", "routes.go")) {
		t.Error("schema should rank above routes")
	}
	if pos(filepath.Join("api", "routes.go")) > pos(filepath.Join("util", "helpers.go")) {
		t.Error("routes should rank above utilities")
	}

	// Ranking is deterministic across runs
	again := b.collectFiles()
	for i := range files {
		if again[i].path != files[i].path {
			t.Fatalf("ordering not stable: %s vs %s at %d", again[i].path, files[i].path, i)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("abcdefgh"); got != 2 {
		t.Errorf("expected 2 tokens for 8 chars, got %d", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("expected 0 tokens for empty string, got %d", got)
	}
}
