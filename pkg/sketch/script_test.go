package sketch

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/openfroyo/sketcher/pkg/geom"
	"github.com/openfroyo/sketcher/pkg/params"
)

func testLibrary() *geom.MapLibrary {
	lib := geom.NewMapLibrary()
	lib.Register("rim", geom.Circle{N: geom.V3(0, 0, 1), R: 5})
	return lib
}

// richSketch uses every built-in entity type.
func richSketch(t *testing.T) *Sketch {
	t.Helper()
	s := New(nil, WithLibrary(testLibrary()))

	rim, err := s.SetExternalReference(NewExternalReference("rim", geom.Circle{N: geom.V3(0, 0, 1), R: 5}), 1)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	rimH := mustHandle(t, s, rim)

	p1 := mustInsert(t, s, NewPoint(0, 0), 1)
	p2 := mustInsert(t, s, NewPoint(3.25, -0.1), 2)
	p3 := mustInsert(t, s, NewPoint(1e-7, 4.5), 3)
	l1 := mustInsert(t, s, NewLine(RefTo(p1), RefTo(p2)), 4)
	l2 := mustInsert(t, s, NewLine(RefTo(p2), Literal(geom.V3(6, 0.5, 0))), 5)

	construction := NewLine(RefTo(p1), RefTo(p3))
	construction.SetLayer("construction")
	l3 := mustInsert(t, s, construction, 6)
	props := params.New()
	props.SetString("color", "grey")
	s.SetLayerProperties("construction", props)

	mustInsert(t, s, NewFixedPoint(p1, 0, 0), 7)
	mustInsert(t, s, NewHorizontal(l1), 8)
	mustInsert(t, s, NewVertical(l3), 9)
	mustInsert(t, s, NewTangent(l1, l2), 10)
	mustInsert(t, s, NewPointOnCurve(rimH, RefTo(p3)), 11)
	dist := mustInsert(t, s, NewFixedDistanceAlong(RefTo(p1), RefTo(p2), geom.V3(1, 0, 0), 3), 12)

	expr, err := NewExpression("ref(12) + w", dist)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	mustInsert(t, s, NewLinkedDistance(RefTo(p1), RefTo(p3), expr), 13)
	mustInsert(t, s, NewFixedAngle(RefTo(p2), RefTo(p3), RefTo(p1), 90), 14)

	angleExpr, err := NewExpression("math.sqrt(16) * 20")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	mustInsert(t, s, NewLinkedAngleToHorizontal(RefTo(p3), RefTo(p1), angleExpr), 15)
	s.SetVariable("w", 2)
	return s
}

func generate(t *testing.T, s *Sketch) string {
	t.Helper()
	var buf bytes.Buffer
	if err := s.GenerateScript(&buf); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	return buf.String()
}

func TestSketch_GenerateScript_RoundTrip(t *testing.T) {
	s := richSketch(t)
	first := generate(t, s)

	parsed, err := CreateFromStream(strings.NewReader(first), nil,
		WithLibrary(testLibrary()),
		WithVariables(map[string]float64{"w": 2}))
	if err != nil {
		t.Fatalf("Expected no error parsing generated script, got: %v\n%s", err, first)
	}
	second := generate(t, parsed)
	if first != second {
		t.Errorf("Expected identical regenerated script\nfirst:\n%s\nsecond:\n%s", first, second)
	}

	if parsed.Len() != s.Len() {
		t.Errorf("Expected %d entities, got %d", s.Len(), parsed.Len())
	}
	hs, _ := s.Hash()
	hp, _ := parsed.Hash()
	if hs != hp {
		t.Error("Expected parsed sketch to hash like the original")
	}
	props, ok := parsed.LayerProperties("construction")
	if !ok {
		t.Fatal("Expected construction layer")
	}
	if c, _ := props.String("color"); c != "grey" {
		t.Errorf("Expected layer color grey, got %q", c)
	}
}

func TestSketch_GenerateScript_RoundTripSolves(t *testing.T) {
	s := horizontalSegment(t, 1.5, 0.3)
	p1, _ := s.HandleOf(1)
	p3 := mustInsert(t, s, NewPoint(1, 0.5), 7)
	mustInsert(t, s, NewFixedAngleToHorizontal(RefTo(p3), RefTo(p1), 45), 8)

	parsed, err := CreateFromStream(strings.NewReader(generate(t, s)), nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	for _, sk := range []*Sketch{s, parsed} {
		if _, err := sk.ResolveConstraints(context.Background(), nil); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
	}
	for _, id := range s.Points() {
		u0, v0 := mustPoint(t, s, id).Coords()
		u1, v1 := mustPoint(t, parsed, id).Coords()
		if math.Abs(u0-u1) > solveTol || math.Abs(v0-v1) > solveTol {
			t.Errorf("Point %d: expected (%g, %g), got (%g, %g)", id, u0, v0, u1, v1)
		}
	}
}

func TestSketch_GenerateScript_NonFinite(t *testing.T) {
	s := New(nil)
	p := mustInsert(t, s, NewPoint(math.NaN(), math.Inf(1)), 1)
	mustInsert(t, s, NewLine(RefTo(p), Literal(geom.V3(math.Inf(-1), 0, 0))), 2)
	first := generate(t, s)

	parsed, err := CreateFromStream(strings.NewReader(first), nil)
	if err != nil {
		t.Fatalf("Expected no error parsing generated script, got: %v\n%s", err, first)
	}
	u, v := mustPoint(t, parsed, 1).Coords()
	if !math.IsNaN(u) || !math.IsInf(v, 1) {
		t.Errorf("Expected point at (NaN, +Inf), got (%g, %g)", u, v)
	}
	if second := generate(t, parsed); first != second {
		t.Errorf("Expected identical regenerated script\nfirst:\n%s\nsecond:\n%s", first, second)
	}

	if _, err := CreateFromStream(strings.NewReader("SketchPoint( 1, info, 0 )"), nil); !IsParse(err) {
		t.Errorf("Expected parse error for an identifier, got: %v", err)
	}
}

func TestSketch_ReadFrom_Handles(t *testing.T) {
	tests := []struct {
		name   string
		script string
		valid  bool
	}{
		{"point replaced by line", "Line( 1, [0, 0, 0], [1, 0, 0] )", false},
		{"point kept", "SketchPoint( 1, 2, 3 )", true},
		{"point dropped", "SketchPoint( 2, 2, 3 )", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(nil)
			h := mustInsert(t, s, NewPoint(0, 0), 1)

			if _, err := s.ReadFrom(strings.NewReader(tt.script)); err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			e, ok := s.Resolve(h)
			if ok != tt.valid {
				t.Fatalf("Expected handle %v to resolve: %v, got %v", h, tt.valid, ok)
			}
			if ok {
				if u, v := e.(*SketchPoint).Coords(); u != 2 || v != 3 {
					t.Errorf("Expected point at (2, 3), got (%g, %g)", u, v)
				}
			}
		})
	}
}

func TestSketch_GenerateScript_Format(t *testing.T) {
	s := richSketch(t)
	script := generate(t, s)

	if !strings.HasPrefix(script, "layer construction <?xml") {
		t.Errorf("Expected layer declarations first, got:\n%s", script)
	}
	for _, want := range []string{
		"ExternalReference( -1, rim, layer standard )",
		"SketchPoint( 3, 1e-07, 4.5, layer standard )",
		"Line( 5, 2, [6, 0.5, 0], layer standard )",
		"Line( 6, 1, 3, layer construction )",
		"FixedDistanceConstraint( 12, 1, 2, along [1, 0, 0], layer standard, parameters <?xml",
		"LinkedDistanceConstraint( 13, 1, 3, ref(12) + w, layer standard, parameters <?xml",
		"LinkedAngleConstraint( 15, 3, toHorizontal, 1, math.sqrt(16) * 20, layer standard, parameters <?xml",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("Expected script to contain %q, got:\n%s", want, script)
		}
	}

	// Dependencies precede dependents.
	if strings.Index(script, "FixedDistanceConstraint( 12") > strings.Index(script, "LinkedDistanceConstraint( 13") {
		t.Error("Expected referenced distance before the linked distance")
	}
	if !strings.Contains(script, " ),\n") {
		t.Error("Expected commands separated by \",\\n\"")
	}
}

func TestCreateFromStream_SolvesParsedSketch(t *testing.T) {
	src := `
// p2 starts off the horizontal
layer standard
SketchPoint( 1, 0, 0, layer standard ),
SketchPoint( 2, 1.5, 0.3 ),
Line( 3, 1, 2 ),
FixedPointConstraint( 4, 1 ),
HorizontalConstraint( 5, 3 ), /* inline */
FixedDistanceConstraint( 6, 1, 2, parameters <?xml version="1.0" encoding="utf-8"?><root><double name="distance" value="2"/></root> )
`
	s, err := CreateFromStream(strings.NewReader(src), nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if s.Len() != 6 {
		t.Fatalf("Expected 6 entities, got %d", s.Len())
	}

	d, _ := Get[*FixedDistance](s, 6)
	if d.Target() != 2 {
		t.Errorf("Expected parsed distance 2, got %g", d.Target())
	}
	if v := d.DefaultParameters().NumberOr("dimLineOfs", 0); v != 1 {
		t.Errorf("Expected default dimLineOfs 1, got %g", v)
	}

	if _, err := s.ResolveConstraints(context.Background(), nil); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	u, v := mustPoint(t, s, 2).Coords()
	if math.Abs(u-2) > solveTol || math.Abs(v) > solveTol {
		t.Errorf("Expected p2 at (2, 0), got (%g, %g)", u, v)
	}
}

func TestCreateFromStream_DefaultsFromGeometry(t *testing.T) {
	src := `SketchPoint( 1, 0, 0 ),
SketchPoint( 2, 3, 4 ),
FixedPointConstraint( 3, 2 ),
FixedDistanceConstraint( 4, 1, 2 ),
FixedAngleConstraint( 5, 2, toHorizontal, 1 )`

	s, err := CreateFromStream(strings.NewReader(src), nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	fp, _ := Get[*FixedPoint](s, 3)
	if u, v := fp.Target(); u != 3 || v != 4 {
		t.Errorf("Expected fixed point target (3, 4), got (%g, %g)", u, v)
	}
	d, _ := Get[*FixedDistance](s, 4)
	if d.Target() != 5 {
		t.Errorf("Expected distance 5, got %g", d.Target())
	}
	a, _ := Get[*FixedAngle](s, 5)
	want := math.Atan2(4, 3) * 180 / math.Pi
	if math.Abs(a.Target()-want) > 1e-9 {
		t.Errorf("Expected angle %g, got %g", want, a.Target())
	}
}

func TestCreateFromStream_LinkedDistanceUsesVariables(t *testing.T) {
	src := `SketchPoint( 1, 0, 0 ),
SketchPoint( 2, 1, 0 ),
FixedPointConstraint( 3, 1 ),
LinkedDistanceConstraint( 4, 1, 2, along [1, 0, 0], w * 2 ),
LinkedDistanceConstraint( 5, 2, [3, 5, 0], 5 )`

	s, err := CreateFromStream(strings.NewReader(src), nil, WithVariables(map[string]float64{"w": 1.5}))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, err := s.ResolveConstraints(context.Background(), nil); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	u, v := mustPoint(t, s, 2).Coords()
	if math.Abs(u-3) > solveTol || math.Abs(v) > solveTol {
		t.Errorf("Expected p2 at (3, 0), got (%g, %g)", u, v)
	}
}

func TestCreateFromStream_ExternalReference(t *testing.T) {
	src := `ExternalReference( -1, rim ),
SketchPoint( 1, 5, 0 ),
PointOnCurveConstraint( 2, -1, 1 )`

	s, err := CreateFromStream(strings.NewReader(src), nil, WithLibrary(testLibrary()))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	c, _ := Get[*PointOnCurve](s, 2)
	r, err := c.ConstraintError(s, 0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if math.Abs(r) > 1e-12 {
		t.Errorf("Expected point on rim, got residual %g", r)
	}

	if _, err := CreateFromStream(strings.NewReader(src), nil); !IsParse(err) {
		t.Errorf("Expected parse error without library, got: %v", err)
	}
}

func TestCreateFromStream_ParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		line     int
		col      int
		expected string
		found    string
	}{
		{
			name:     "unknown type",
			src:      "Bogus( 1, 0, 0 )",
			line:     1,
			col:      1,
			expected: "entity type",
			found:    "Bogus",
		},
		{
			name:     "missing closing paren",
			src:      "SketchPoint( 1, 0, 0",
			line:     1,
			col:      21,
			expected: "')'",
		},
		{
			name:     "undefined reference",
			src:      "SketchPoint( 1, 0, 0 ),\nLine( 2, 1, 9 )",
			line:     2,
			col:      13,
			expected: "previously defined entity",
			found:    "9",
		},
		{
			name:     "duplicate id",
			src:      "SketchPoint( 1, 0, 0 ),\nSketchPoint( 1, 1, 1 )",
			line:     2,
			col:      14,
			expected: "unique entity id",
			found:    "1",
		},
		{
			name:     "wrong capability",
			src:      "SketchPoint( 1, 0, 0 ),\nHorizontalConstraint( 2, 1 )",
			line:     2,
			col:      26,
			expected: "line-like entity",
			found:    "1",
		},
		{
			name:     "parameters without blob",
			src:      "SketchPoint( 1, 0, 0, parameters )",
			line:     1,
			col:      34,
			expected: "parameter set",
			found:    ")",
		},
		{
			name:     "missing separator",
			src:      "SketchPoint( 1, 0, 0 ) SketchPoint( 2, 0, 0 )",
			line:     1,
			col:      24,
			expected: "',' or end of input",
			found:    "SketchPoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateFromStream(strings.NewReader(tt.src), nil)
			if err == nil {
				t.Fatal("Expected parse error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Expected *ParseError, got: %v", err)
			}
			if !errors.Is(err, ErrSyntax) {
				t.Error("Expected error to match ErrSyntax")
			}
			if pe.Line != tt.line || pe.Col != tt.col {
				t.Errorf("Expected position %d:%d, got %d:%d (%v)", tt.line, tt.col, pe.Line, pe.Col, err)
			}
			if pe.Expected != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, pe.Expected)
			}
			if pe.Found != tt.found {
				t.Errorf("Expected found %q, got %q", tt.found, pe.Found)
			}
		})
	}
}

func TestSketch_ReadFrom_FailureLeavesSketchUnchanged(t *testing.T) {
	s := horizontalSegment(t, 2, 0)
	before, _ := s.Hash()

	_, err := s.ReadFrom(strings.NewReader("SketchPoint( 1, 0, 0 ),\nLine( 2, 1, 9 )"))
	if !IsParse(err) {
		t.Fatalf("Expected parse error, got: %v", err)
	}
	after, _ := s.Hash()
	if s.Len() != 6 || before != after {
		t.Error("Expected sketch unchanged after failed parse")
	}

	n, err := s.ReadFrom(strings.NewReader("SketchPoint( 5, 1, 1 )"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if n != int64(len("SketchPoint( 5, 1, 1 )")) {
		t.Errorf("Expected byte count %d, got %d", len("SketchPoint( 5, 1, 1 )"), n)
	}
	if s.Len() != 1 {
		t.Errorf("Expected the script to replace the content, got %d entities", s.Len())
	}
}

func TestRegistry_CustomType(t *testing.T) {
	reg := DefaultRegistry().Clone()
	if err := reg.Register("Point", RegistryEntry{Parse: parsePoint}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := reg.Register(TypeLine, RegistryEntry{Parse: parseLine}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got: %v", err)
	}
	if _, ok := DefaultRegistry().Lookup("Point"); ok {
		t.Error("Expected the default registry to stay unmodified")
	}

	s, err := CreateFromStream(strings.NewReader("Point( 1, 2, 3 )"), nil, WithRegistry(reg))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	u, v := mustPoint(t, s, 1).Coords()
	if u != 2 || v != 3 {
		t.Errorf("Expected (2, 3), got (%g, %g)", u, v)
	}
}
