package sketch

import (
	"errors"
	"strings"
	"testing"

	"github.com/openfroyo/sketcher/pkg/geom"
)

func TestBuildGraph_EmptySketch(t *testing.T) {
	g, err := BuildGraph(New(nil))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(g.Levels()) != 0 {
		t.Errorf("Expected no levels, got %v", g.Levels())
	}
}

func TestBuildGraph_Levels(t *testing.T) {
	s := horizontalSegment(t, 2, 0)
	g, err := BuildGraph(s)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	levels := g.Levels()
	if len(levels) != 3 {
		t.Fatalf("Expected 3 levels, got %v", levels)
	}
	want := [][]int{{1, 2}, {3, 4, 6}, {5}}
	for i := range want {
		if len(levels[i]) != len(want[i]) {
			t.Fatalf("Expected level %d to be %v, got %v", i, want[i], levels[i])
		}
		for j := range want[i] {
			if levels[i][j] != want[i][j] {
				t.Errorf("Expected level %d to be %v, got %v", i, want[i], levels[i])
			}
		}
	}

	order := g.Order()
	if len(order) != 6 || order[0] != 1 || order[len(order)-1] != 5 {
		t.Errorf("Expected topological order starting at 1 and ending at 5, got %v", order)
	}

	deps := g.Dependents(1)
	if len(deps) != 4 {
		t.Errorf("Expected 4 dependents of 1, got %v", deps)
	}
	up := g.Dependencies(5)
	if len(up) != 3 || up[0] != 1 || up[1] != 2 || up[2] != 3 {
		t.Errorf("Expected dependencies [1 2 3] of 5, got %v", up)
	}

	n, ok := g.Node(3)
	if !ok {
		t.Fatal("Expected node 3")
	}
	if n.Type != TypeLine || n.Level != 1 {
		t.Errorf("Expected line at level 1, got %s at %d", n.Type, n.Level)
	}
}

func TestBuildGraph_Cycle(t *testing.T) {
	s := New(nil)
	p := mustInsert(t, s, NewPoint(0, 0), 1)
	d := mustInsert(t, s, NewFixedDistance(RefTo(p), Literal(geom.V3(1, 0, 0)), 1), 2)
	expr, err := NewExpression("ref(2)", d)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	linked := mustInsert(t, s, NewLinkedDistance(RefTo(p), Literal(geom.V3(0, 1, 0)), expr), 3)

	// Substitution bypasses the insert check.
	c, _ := Get[*LinkedDistance](s, 3)
	c.ReplaceDependency(s, d, linked)

	_, err = BuildGraph(s)
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("Expected ErrCycle, got: %v", err)
	}
	if !strings.Contains(err.Error(), "3 -> 3") {
		t.Errorf("Expected cycle path in error, got: %v", err)
	}

	var buf strings.Builder
	if err := s.GenerateScript(&buf); !errors.Is(err, ErrCycle) {
		t.Errorf("Expected script generation to fail with ErrCycle, got: %v", err)
	}
}

func TestGraph_ToDOT(t *testing.T) {
	s := horizontalSegment(t, 2, 0)
	g, err := BuildGraph(s)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	dot := g.ToDOT()
	for _, want := range []string{
		"digraph Sketch {",
		"subgraph cluster_level_0 {",
		`"1" [label="1\nSketchPoint", fillcolor="lightblue"`,
		`"3" [label="3\nLine", fillcolor="lightgreen"`,
		`"3" -> "1";`,
		`"5" -> "3";`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("Expected DOT output to contain %q, got:\n%s", want, dot)
		}
	}
}

func TestAssembly_Locate(t *testing.T) {
	s := horizontalSegment(t, 2, 0)
	mustInsert(t, s, NewPoint(5, 5), 0)
	a := Assemble(s)

	if a.NDoF() != 6 {
		t.Fatalf("Expected 6 DoFs, got %d", a.NDoF())
	}
	if a.NResiduals() != 4 {
		t.Fatalf("Expected 4 residuals, got %d", a.NResiduals())
	}

	tests := []struct {
		k         int
		id, local int
	}{
		{0, 0, 0},
		{1, 0, 1},
		{2, 1, 0},
		{5, 2, 1},
	}
	for _, tt := range tests {
		id, local, err := a.Locate(tt.k)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if id != tt.id || local != tt.local {
			t.Errorf("Expected DoF %d at (%d, %d), got (%d, %d)", tt.k, tt.id, tt.local, id, local)
		}
	}
	if _, _, err := a.Locate(6); !IsIndex(err) {
		t.Errorf("Expected index error, got: %v", err)
	}

	id, local, err := a.LocateResidual(1)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if id != 4 || local != 1 {
		t.Errorf("Expected residual 1 at (4, 1), got (%d, %d)", id, local)
	}
	if sp, ok := a.ResidualSpan(6); !ok || sp.Offset != 3 || sp.Count != 1 {
		t.Errorf("Expected residual span {3 1} for 6, got %v", sp)
	}

	x, err := a.X()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	x[3] = 7
	if err := a.Apply(x); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, v := mustPoint(t, s, 1).Coords(); v != 7 {
		t.Errorf("Expected applied v 7, got %g", v)
	}
	if err := a.Apply(x[:2]); err == nil {
		t.Error("Expected error for short vector")
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	s := New(nil)
	var seen []EventType
	id := s.Events().Subscribe(nil, func(e Event) { seen = append(seen, e.Type) })

	h := mustInsert(t, s, NewPoint(0, 0), 1)
	mustInsert(t, s, NewFixedPoint(h, 0, 0), 2)
	if len(seen) != 2 || seen[0] != EventAdded {
		t.Errorf("Expected two added events, got %v", seen)
	}

	s.Events().Unsubscribe(id)
	s.Clear()
	if len(seen) != 2 {
		t.Errorf("Expected no events after unsubscribe, got %v", seen)
	}
	if s.Len() != 0 {
		t.Errorf("Expected empty sketch, got %d entities", s.Len())
	}
}
