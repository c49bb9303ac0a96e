// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapquery/internal/cli/output"
)

// SetupTestProject creates a temporary project: a leapquery.yaml keeping
// results and state inside the project, and a tables.yaml fixture with
// tables /T and /U of rows rows each (a = 0..rows-1, "b c" = a/2).
func SetupTestProject(t *testing.T, rows int) string {
	t.Helper()

	tmpDir := t.TempDir()

	cfg := `results:
  type: memory
  path: .leapquery/results.yaml
state_path: .leapquery/state.db
sources:
  fixture:
    path: tables.yaml
`
	if err := os.WriteFile(filepath.Join(tmpDir, "leapquery.yaml"), []byte(cfg), 0o600); err != nil {
		t.Fatalf("failed to create leapquery.yaml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "tables.yaml"), []byte(Fixture(rows)), 0o600); err != nil {
		t.Fatalf("failed to create tables.yaml: %v", err)
	}
	return tmpDir
}

// Fixture returns a memory store fixture with tables /T and /U.
func Fixture(rows int) string {
	var b strings.Builder
	b.WriteString("tables:\n")
	for _, name := range []string{"T", "U"} {
		fmt.Fprintf(&b, "  - path: /%s\n    title: table %s\n    columns:\n", name, name)
		b.WriteString("      - {name: a, type: int64}\n")
		b.WriteString("      - {name: b c, type: float64}\n")
		b.WriteString("      - {name: pos, type: float32, shape: [2]}\n")
		b.WriteString("    rows:\n")
		for i := range rows {
			fmt.Fprintf(&b, "      - [%d, %g, [%d, %d]]\n", i, float64(i)/2, i, i)
		}
	}
	return b.String()
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode without colors.
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// Reset clears both output buffers.
func (tr *TestRenderer) Reset() {
	tr.Out.Reset()
	tr.ErrOut.Reset()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	if n := strings.Count(md, "```"); n%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", n)
	}
	for i, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
