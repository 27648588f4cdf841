package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestParseRegoFile(t *testing.T) {
	p := parseRegoFile("/rules/short-lines.rego", []byte(`
# Lines shorter than one unit.
# Usually a drafting mistake.
# severity: info

package sketcher.custom.short
`))

	if p.Name != "short-lines" {
		t.Errorf("Expected name short-lines, got %s", p.Name)
	}
	if p.Severity != SeverityInfo {
		t.Errorf("Expected info severity, got %s", p.Severity)
	}
	if p.Description != "Lines shorter than one unit. Usually a drafting mistake." {
		t.Errorf("Expected joined description, got %q", p.Description)
	}
	if !p.Enabled || p.Source != "/rules/short-lines.rego" {
		t.Errorf("Expected enabled policy with source, got %+v", p)
	}
}

func TestParseRegoFile_UnknownSeverity(t *testing.T) {
	p := parseRegoFile("x.rego", []byte("# severity: fatal\npackage x\n"))
	if p.Severity != SeverityWarning {
		t.Errorf("Expected default warning severity, got %s", p.Severity)
	}
}

func TestLoader_LoadFromPaths(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}

	writeFile(t, filepath.Join(dir, "a.rego"), "package a\n")
	writeFile(t, filepath.Join(sub, "b.json"), `{"rego": "package b\n", "severity": "error"}`)
	writeFile(t, filepath.Join(dir, "broken.json"), `{`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	l := NewLoader(zerolog.Nop())
	policies, err := l.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}

	byName := make(map[string]Policy)
	for _, p := range policies {
		byName[p.Name] = p
	}
	if byName["b"].Severity != SeverityError || !byName["b"].Enabled {
		t.Errorf("Expected enabled error policy b, got %+v", byName["b"])
	}
	if byName["a"].Severity != SeverityWarning {
		t.Errorf("Expected warning policy a, got %+v", byName["a"])
	}

	// A single broken file named directly is an error.
	if _, err := l.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "broken.json")}); err == nil {
		t.Error("Expected error for broken JSON policy")
	}
	if _, err := l.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("Expected error for missing path")
	}
}

func TestEngine_Watch(t *testing.T) {
	eng := newTestEngine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.rego")
	writeFile(t, path, "package sketcher.custom.one\n\ndeny contains \"one\" if { true }\n")

	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loader, err := eng.Watch(ctx, []string{dir})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	defer loader.StopWatching()

	writeFile(t, path, "package sketcher.custom.one\n\ndeny contains \"two\" if { true }\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		res, err := eng.Evaluate(context.Background(), balancedSummary(), Context{})
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(res.Violations) == 1 && res.Violations[0].Message == "two" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("Expected the policy change to be picked up")
}
