package config

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestStarlarkEvaluator_Evaluate(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name    string
		script  string
		input   map[string]float64
		want    map[string]float64
		ignored []string
		wantErr string
	}{
		{
			name:   "arithmetic",
			script: "width = 2 + 2\n",
			want:   map[string]float64{"width": 4},
		},
		{
			name:   "uses input",
			script: "doubled = count * 2\n",
			input:  map[string]float64{"count": 5},
			want:   map[string]float64{"doubled": 10},
		},
		{
			name: "functions",
			script: `
def pitch(n, span):
    return span / (n - 1)

holes = 5
spacing = pitch(holes, 80)
`,
			want:    map[string]float64{"holes": 5, "spacing": 20},
			ignored: []string{"pitch"},
		},
		{
			name:   "math module",
			script: "root = math.sqrt(16)\n",
			want:   map[string]float64{"root": 4},
		},
		{
			name:    "syntax error",
			script:  "width = \n",
			wantErr: "starlark execution failed",
		},
		{
			name:    "not finite",
			script:  "big = 1e308 * 10\n",
			wantErr: "not finite",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := evaluator.Evaluate(ctx, "vars.star", tt.script, tt.input)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Expected error containing %q, got: %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if len(res.Variables) != len(tt.want) {
				t.Errorf("Expected %d variables, got %v", len(tt.want), res.Variables)
			}
			for k, v := range tt.want {
				if got, ok := res.Variables[k]; !ok || got != v {
					t.Errorf("Expected %s=%g, got %g", k, v, got)
				}
			}
			if strings.Join(res.Ignored, ",") != strings.Join(tt.ignored, ",") {
				t.Errorf("Expected ignored %v, got %v", tt.ignored, res.Ignored)
			}
		})
	}
}

func TestStarlarkEvaluator_Timeout(t *testing.T) {
	evaluator := NewStarlarkEvaluator(50 * time.Millisecond)
	script := `
def spin():
    n = 0
    for i in range(1000000000):
        n += i
    return n

total = spin()
`
	start := time.Now()
	_, err := evaluator.Evaluate(context.Background(), "spin.star", script, nil)
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("Expected timeout error, got: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("Expected evaluation to stop promptly, took %v", time.Since(start))
	}
}
