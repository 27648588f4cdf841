package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openfroyo/sketcher/pkg/engine"
	"github.com/openfroyo/sketcher/pkg/solver"
)

const segmentScript = `SketchPoint( 1, 0, 0 ),
SketchPoint( 2, 1.5, 0.3 ),
Line( 3, 1, 2 ),
FixedPointConstraint( 4, 1 ),
HorizontalConstraint( 5, 3 ),
FixedDistanceConstraint( 6, 1, 2, parameters <?xml version="1.0" encoding="utf-8"?><root><double name="distance" value="2"/></root> )`

const looseScript = `SketchPoint( 1, 0, 0 ),
SketchPoint( 2, 1, 1 ),
Line( 3, 1, 2 )`

const testConfig = `store:
  path: test.db
telemetry:
  logging:
    level: error
`

// workspace writes a config and the given scripts into a temp directory
// and returns the config path.
func workspace(t *testing.T, scripts map[string]string) (dir, cfg string) {
	t.Helper()
	dir = t.TempDir()
	cfg = filepath.Join(dir, "sketcher.yaml")
	if err := os.WriteFile(cfg, []byte(testConfig), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	for name, content := range scripts {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return dir, cfg
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSolveCommand(t *testing.T) {
	dir, cfg := workspace(t, map[string]string{"segment.sk": segmentScript})
	solved := filepath.Join(dir, "solved.sk")

	out, err := run(t, "--config", cfg, "solve", filepath.Join(dir, "segment.sk"), "-o", solved)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(out, "converged after") {
		t.Errorf("Expected convergence line, got:\n%s", out)
	}
	if !strings.Contains(out, "SketchPoint") {
		t.Errorf("Expected point table, got:\n%s", out)
	}

	data, err := os.ReadFile(solved)
	if err != nil {
		t.Fatalf("Expected solved script, got: %v", err)
	}
	if !strings.Contains(string(data), "FixedDistanceConstraint") {
		t.Errorf("Expected solved script to keep constraints, got:\n%s", data)
	}
}

func TestSolveCommand_JSON(t *testing.T) {
	dir, cfg := workspace(t, map[string]string{"segment.sk": segmentScript})

	out, err := run(t, "--config", cfg, "--json", "solve", filepath.Join(dir, "segment.sk"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	var res struct {
		Converged bool   `json:"converged"`
		Script    string `json:"script"`
		Hash      string `json:"hash"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("Expected JSON output, got: %v\n%s", err, out)
	}
	if !res.Converged {
		t.Error("Expected converged to be true")
	}
	if res.Script == "" || res.Hash == "" {
		t.Errorf("Expected script and hash, got %+v", res)
	}
}

func TestSolveCommand_Stdout(t *testing.T) {
	dir, cfg := workspace(t, map[string]string{"segment.sk": segmentScript})

	out, err := run(t, "--config", cfg, "solve", filepath.Join(dir, "segment.sk"), "-o", "-")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if strings.Contains(out, "converged after") {
		t.Errorf("Expected only the script on stdout, got:\n%s", out)
	}
	if !strings.HasPrefix(out, "SketchPoint") {
		t.Errorf("Expected script output, got:\n%s", out)
	}
}

func TestSolveCommand_NotConverged(t *testing.T) {
	dir, cfg := workspace(t, map[string]string{"segment.sk": segmentScript})
	file := filepath.Join(dir, "segment.sk")

	_, err := run(t, "--config", cfg, "solve", "--max-iter", "1", file)
	if !errors.Is(err, solver.ErrNotConverged) {
		t.Fatalf("Expected ErrNotConverged, got: %v", err)
	}
	if code := engine.Classify(err).ExitCode(); code == 0 {
		t.Error("Expected non-zero exit code")
	}

	out, err := run(t, "--config", cfg, "solve", "--max-iter", "1", "--allow-partial", file)
	if err != nil {
		t.Fatalf("Expected no error with --allow-partial, got: %v", err)
	}
	if !strings.Contains(out, "not converged") {
		t.Errorf("Expected not converged line, got:\n%s", out)
	}
}

func TestSolveCommand_InvalidFlags(t *testing.T) {
	dir, cfg := workspace(t, map[string]string{"a.sk": segmentScript, "b.sk": segmentScript})

	tests := []struct {
		name string
		args []string
	}{
		{"unknown solver", []string{"solve", "--solver", "newton", filepath.Join(dir, "a.sk")}},
		{"output with batch", []string{"solve", "-o", "x.sk", filepath.Join(dir, "a.sk"), filepath.Join(dir, "b.sk")}},
		{"missing file", []string{"solve", filepath.Join(dir, "missing.sk")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append([]string{"--config", cfg}, tt.args...)...)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if code := engine.Classify(err).Code; code != engine.ErrCodeInvalidRequest {
				t.Errorf("Expected %s, got %s", engine.ErrCodeInvalidRequest, code)
			}
		})
	}
}

func TestSolveCommand_Batch(t *testing.T) {
	dir, cfg := workspace(t, map[string]string{"a.sk": segmentScript, "b.sk": segmentScript})

	out, err := run(t, "--config", cfg, "solve", "--parallel", "2", filepath.Join(dir, "a.sk"), filepath.Join(dir, "b.sk"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(out, "2 files: 2 converged") {
		t.Errorf("Expected batch summary, got:\n%s", out)
	}
}

func TestValidateCommand(t *testing.T) {
	dir, cfg := workspace(t, map[string]string{"segment.sk": segmentScript})

	out, err := run(t, "--config", cfg, "validate", filepath.Join(dir, "segment.sk"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(out, "4 DoFs, 4 constraint equations") {
		t.Errorf("Expected DoF summary, got:\n%s", out)
	}

	_, err = run(t, "--config", cfg, "validate", filepath.Join(dir, "segment.sk"), "extra")
	if err == nil {
		t.Error("Expected argument error")
	}
}

func TestFmtCommand_Write(t *testing.T) {
	dir, cfg := workspace(t, map[string]string{"segment.sk": segmentScript})
	file := filepath.Join(dir, "segment.sk")

	if _, err := run(t, "--config", cfg, "fmt", "-w", file); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	written, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("Failed to read formatted file: %v", err)
	}

	out, err := run(t, "--config", cfg, "fmt", file)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if out != string(written) {
		t.Errorf("Expected formatting to be stable, got:\n%s\nwant:\n%s", out, written)
	}
}

func TestGraphCommand(t *testing.T) {
	dir, cfg := workspace(t, map[string]string{"segment.sk": segmentScript})

	out, err := run(t, "--config", cfg, "graph", filepath.Join(dir, "segment.sk"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.HasPrefix(out, "digraph") {
		t.Errorf("Expected DOT output, got:\n%s", out)
	}
}

func TestLintCommand(t *testing.T) {
	dir, cfg := workspace(t, map[string]string{"loose.sk": looseScript})
	file := filepath.Join(dir, "loose.sk")

	out, err := run(t, "--config", cfg, "lint", file)
	if err != nil {
		t.Fatalf("Expected warnings not to fail, got: %v", err)
	}
	if !strings.Contains(out, "under-constrained") {
		t.Errorf("Expected under-constrained violation, got:\n%s", out)
	}

	_, err = run(t, "--config", cfg, "lint", "--fail-on", "warning", file)
	if err == nil {
		t.Fatal("Expected lint failure with --fail-on warning")
	}
	if !errors.Is(err, errLintFailed) {
		t.Errorf("Expected errLintFailed, got: %v", err)
	}

	_, err = run(t, "--config", cfg, "lint", "--fail-on", "fatal", file)
	if code := engine.Classify(err).Code; code != engine.ErrCodeInvalidRequest {
		t.Errorf("Expected %s for bad --fail-on, got %s", engine.ErrCodeInvalidRequest, code)
	}
}

func TestLintCommand_List(t *testing.T) {
	_, cfg := workspace(t, nil)

	out, err := run(t, "--config", cfg, "lint", "--list")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	for _, name := range []string{"under-constrained", "over-constrained", "zero-length-line", "unused-layer", "residual-tolerance"} {
		if !strings.Contains(out, name) {
			t.Errorf("Expected %s in policy list, got:\n%s", name, out)
		}
	}
}

func TestHistoryCommands(t *testing.T) {
	dir, cfg := workspace(t, map[string]string{"segment.sk": segmentScript})
	file := filepath.Join(dir, "segment.sk")

	out, err := run(t, "--config", cfg, "history", "new", "bracket")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		t.Fatal("Expected document ID")
	}

	for i, msg := range []string{"first", "second"} {
		out, err = run(t, "--config", cfg, "history", "commit", id, file, "-m", msg)
		if err != nil {
			t.Fatalf("Expected commit %d to succeed, got: %v", i+1, err)
		}
	}
	if !strings.Contains(out, "revision 2 saved") {
		t.Errorf("Expected second revision, got:\n%s", out)
	}

	out, err = run(t, "--config", cfg, "history", "log", id)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(out, "first") || !strings.Contains(out, "second") {
		t.Errorf("Expected both revisions in log, got:\n%s", out)
	}

	out, err = run(t, "--config", cfg, "history", "list")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(out, "bracket") {
		t.Errorf("Expected document in list, got:\n%s", out)
	}

	out, err = run(t, "--config", cfg, "history", "undo", id)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(out, "now at revision 1") {
		t.Errorf("Expected revision 1 after undo, got:\n%s", out)
	}

	checkout := filepath.Join(dir, "checkout.sk")
	out, err = run(t, "--config", cfg, "history", "checkout", id, "1", "-o", checkout)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(out, "revision 1") {
		t.Errorf("Expected revision header, got:\n%s", out)
	}
	if _, err := os.Stat(checkout); err != nil {
		t.Errorf("Expected checkout file, got: %v", err)
	}

	out, err = run(t, "--config", cfg, "history", "show", id)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(out, "FixedDistanceConstraint") {
		t.Errorf("Expected revision script, got:\n%s", out)
	}

	_, err = run(t, "--config", cfg, "history", "show", "no-such-document")
	if code := engine.Classify(err).Code; code != engine.ErrCodeNotFound {
		t.Errorf("Expected %s, got %s", engine.ErrCodeNotFound, code)
	}

	if _, err := run(t, "--config", cfg, "history", "delete", id); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	_, err = run(t, "--config", cfg, "history", "log", id)
	if code := engine.Classify(err).Code; code != engine.ErrCodeNotFound {
		t.Errorf("Expected %s after delete, got %s", engine.ErrCodeNotFound, code)
	}
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "init", dir)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(out, "Created config file") {
		t.Errorf("Expected progress output, got:\n%s", out)
	}
	for _, name := range []string{"sketcher.yaml", "sketcher.db", filepath.Join("policies", "positive_distance.rego")} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s to exist, got: %v", name, err)
		}
	}

	_, err = run(t, "init", dir)
	if code := engine.Classify(err).Code; code != engine.ErrCodeConflict {
		t.Errorf("Expected %s on second init, got %s", engine.ErrCodeConflict, code)
	}

	if _, err := run(t, "init", "--force", dir); err != nil {
		t.Errorf("Expected --force to succeed, got: %v", err)
	}

	// The generated workspace is usable as is.
	out, err = run(t, "--config", filepath.Join(dir, "sketcher.yaml"), "lint", "--list")
	if err != nil {
		t.Fatalf("Expected generated config to load, got: %v", err)
	}
	if !strings.Contains(out, "positive_distance") {
		t.Errorf("Expected example policy to be loaded, got:\n%s", out)
	}
}

func TestSeqArg(t *testing.T) {
	tests := []struct {
		args    []string
		want    int
		wantErr bool
	}{
		{[]string{"doc"}, 0, false},
		{[]string{"doc", "3"}, 3, false},
		{[]string{"doc", "0"}, 0, true},
		{[]string{"doc", "x"}, 0, true},
	}

	for _, tt := range tests {
		got, err := seqArg(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("seqArg(%v): expected error %v, got %v", tt.args, tt.wantErr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("seqArg(%v): expected %d, got %d", tt.args, tt.want, got)
		}
	}
}

func TestProfileFlag(t *testing.T) {
	dir, cfg := workspace(t, map[string]string{"segment.sk": segmentScript})
	script := filepath.Join(dir, "segment.sk")

	if _, err := run(t, "--config", cfg, "--profile", "development", "validate", script); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	_, err := run(t, "--config", cfg, "--profile", "staging", "validate", script)
	if code := engine.Classify(err).Code; code != engine.ErrCodeInvalidRequest {
		t.Errorf("Expected %s for an unknown profile, got %s", engine.ErrCodeInvalidRequest, code)
	}
}
