package sketch

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/openfroyo/sketcher/pkg/geom"
	"github.com/openfroyo/sketcher/pkg/params"
)

const (
	xmlBlobStart = "<?xml"
	xmlBlobEnd   = "</root>"
)

// ParseError is a positional "expected X" error.
type ParseError struct {
	Line     int    `json:"line"`
	Col      int    `json:"col"`
	Offset   int    `json:"offset"`
	Expected string `json:"expected"`
	Found    string `json:"found,omitempty"`
	Err      error  `json:"-"`
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := fmt.Sprintf("line %d, column %d: expected %s", e.Line, e.Col, e.Expected)
	if e.Found != "" {
		msg += fmt.Sprintf(", found %q", e.Found)
	} else {
		msg += ", found end of input"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error { return e.Err }

// Is matches ErrSyntax.
func (e *ParseError) Is(target error) bool { return target == error(ErrSyntax) }

// scanner walks the script text. Whitespace and comments are skipped
// before every token.
type scanner struct {
	src string
	pos int
}

func (s *scanner) skip() {
	for s.pos < len(s.src) {
		switch c := s.src[s.pos]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			s.pos++
		case strings.HasPrefix(s.src[s.pos:], "//"):
			end := strings.IndexByte(s.src[s.pos:], '\n')
			if end < 0 {
				s.pos = len(s.src)
			} else {
				s.pos += end + 1
			}
		case strings.HasPrefix(s.src[s.pos:], "/*"):
			end := strings.Index(s.src[s.pos+2:], "*/")
			if end < 0 {
				s.pos = len(s.src)
			} else {
				s.pos += end + 4
			}
		default:
			return
		}
	}
}

func (s *scanner) eof() bool {
	s.skip()
	return s.pos >= len(s.src)
}

func (s *scanner) peek() byte {
	s.skip()
	if s.pos >= len(s.src) {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) accept(c byte) bool {
	if s.peek() == c {
		s.pos++
		return true
	}
	return false
}

func (s *scanner) hasPrefix(p string) bool {
	s.skip()
	return strings.HasPrefix(s.src[s.pos:], p)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentContinue(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (s *scanner) ident() (string, bool) {
	s.skip()
	if s.pos >= len(s.src) || !isIdentStart(s.src[s.pos]) {
		return "", false
	}
	start := s.pos
	for s.pos < len(s.src) && isIdentContinue(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos], true
}

// number scans a signed decimal number with optional fraction and exponent.
func (s *scanner) number() (string, bool) {
	s.skip()
	i := s.pos
	if i < len(s.src) && (s.src[i] == '+' || s.src[i] == '-') {
		i++
	}
	if n := s.nonFinite(i); n > 0 {
		txt := s.src[s.pos : i+n]
		s.pos = i + n
		return txt, true
	}
	digits := 0
	for i < len(s.src) && isDigit(s.src[i]) {
		i++
		digits++
	}
	if i < len(s.src) && s.src[i] == '.' {
		i++
		for i < len(s.src) && isDigit(s.src[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return "", false
	}
	if i < len(s.src) && (s.src[i] == 'e' || s.src[i] == 'E') {
		j := i + 1
		if j < len(s.src) && (s.src[j] == '+' || s.src[j] == '-') {
			j++
		}
		k := j
		for k < len(s.src) && isDigit(s.src[k]) {
			k++
		}
		if k > j {
			i = k
		}
	}
	txt := s.src[s.pos:i]
	s.pos = i
	return txt, true
}

// nonFinite returns the length of an "Inf" or "NaN" word at i, in any
// case, or 0.
func (s *scanner) nonFinite(i int) int {
	for _, w := range []string{"inf", "nan"} {
		end := i + len(w)
		if end > len(s.src) || !strings.EqualFold(s.src[i:end], w) {
			continue
		}
		if end < len(s.src) && isIdentContinue(s.src[end]) {
			return 0
		}
		return len(w)
	}
	return 0
}

// found returns a short excerpt of the input at the current position.
func (s *scanner) found() string {
	s.skip()
	rest := s.src[s.pos:]
	if rest == "" {
		return ""
	}
	if isIdentStart(rest[0]) || isDigit(rest[0]) || rest[0] == '-' || rest[0] == '+' {
		end := 1
		for end < len(rest) && (isIdentContinue(rest[end]) || rest[end] == '.') {
			end++
		}
		return rest[:end]
	}
	return rest[:1]
}

func (s *scanner) errorAt(pos int, expected, found string, err error) *ParseError {
	line, col := 1, 1
	for i := 0; i < pos && i < len(s.src); i++ {
		if s.src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return &ParseError{Line: line, Col: col, Offset: pos, Expected: expected, Found: found, Err: err}
}

func (s *scanner) expected(what string) *ParseError {
	s.skip()
	return s.errorAt(s.pos, what, s.found(), nil)
}

// xmlBlob scans text from "<?xml" up to and including "</root>".
func (s *scanner) xmlBlob() (string, error) {
	if !s.hasPrefix(xmlBlobStart) {
		return "", s.expected("parameter set")
	}
	end := strings.Index(s.src[s.pos:], xmlBlobEnd)
	if end < 0 {
		return "", s.errorAt(len(s.src), "'"+xmlBlobEnd+"'", "", nil)
	}
	blob := s.src[s.pos : s.pos+end+len(xmlBlobEnd)]
	s.pos += end + len(xmlBlobEnd)
	return blob, nil
}

// rawExpression scans text up to the next ',' or ')' outside brackets and
// string literals.
func (s *scanner) rawExpression() (string, error) {
	s.skip()
	start := s.pos
	depth := 0
	var quote byte
	for i := s.pos; i < len(s.src); i++ {
		c := s.src[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case (c == ')' || c == ']' || c == '}') && depth > 0:
			depth--
		case (c == ',' || c == ')') && depth == 0:
			expr := strings.TrimSpace(s.src[start:i])
			if expr == "" {
				return "", s.expected("expression")
			}
			s.pos = i
			return expr, nil
		}
	}
	return "", s.errorAt(len(s.src), "',' or ')' after expression", "", nil)
}

// RuleReader gives parse rules access to the token stream and the sketch
// being built.
type RuleReader struct {
	sc     *scanner
	sketch *Sketch
}

// Resolver returns the sketch under construction.
func (rr *RuleReader) Resolver() Resolver { return rr.sketch }

// Comma consumes a ','.
func (rr *RuleReader) Comma() error {
	if !rr.sc.accept(',') {
		return rr.sc.expected("','")
	}
	return nil
}

// Int reads an integer.
func (rr *RuleReader) Int() (int, error) {
	pos := rr.sc.pos
	txt, ok := rr.sc.number()
	if !ok {
		return 0, rr.sc.expected("integer")
	}
	v, err := strconv.Atoi(txt)
	if err != nil {
		rr.sc.pos = pos
		return 0, rr.sc.errorAt(pos, "integer", txt, nil)
	}
	return v, nil
}

// Float reads a number.
func (rr *RuleReader) Float() (float64, error) {
	pos := rr.sc.pos
	txt, ok := rr.sc.number()
	if !ok {
		return 0, rr.sc.expected("number")
	}
	v, err := strconv.ParseFloat(txt, 64)
	if err != nil {
		return 0, rr.sc.errorAt(pos, "number", txt, err)
	}
	return v, nil
}

// Label reads an identifier.
func (rr *RuleReader) Label() (string, error) {
	l, ok := rr.sc.ident()
	if !ok {
		return "", rr.sc.expected("label")
	}
	return l, nil
}

// Keyword consumes kw if it is the next token.
func (rr *RuleReader) Keyword(kw string) bool {
	pos := rr.sc.pos
	if id, ok := rr.sc.ident(); ok && id == kw {
		return true
	}
	rr.sc.pos = pos
	return false
}

// OptionalClause consumes ", kw" if present.
func (rr *RuleReader) OptionalClause(kw string) bool {
	pos := rr.sc.pos
	if rr.sc.accept(',') && rr.Keyword(kw) {
		return true
	}
	rr.sc.pos = pos
	return false
}

// Vector reads a literal [x, y, z].
func (rr *RuleReader) Vector() (geom.Vec3, error) {
	if !rr.sc.accept('[') {
		return geom.Vec3{}, rr.sc.expected("'['")
	}
	var c [3]float64
	for i := range c {
		if i > 0 {
			if err := rr.Comma(); err != nil {
				return geom.Vec3{}, err
			}
		}
		v, err := rr.Float()
		if err != nil {
			return geom.Vec3{}, err
		}
		c[i] = v
	}
	if !rr.sc.accept(']') {
		return geom.Vec3{}, rr.sc.expected("']'")
	}
	return geom.V3(c[0], c[1], c[2]), nil
}

// Entity reads the ID of a previously declared entity with capability
// want.
func (rr *RuleReader) Entity(want Capability) (Handle, error) {
	rr.sc.skip()
	pos := rr.sc.pos
	id, err := rr.Int()
	if err != nil {
		return Handle{}, rr.sc.errorAt(pos, "entity id", rr.sc.found(), nil)
	}
	h, ok := rr.sketch.HandleOf(id)
	if !ok {
		return Handle{}, rr.sc.errorAt(pos, "previously defined entity", strconv.Itoa(id), nil)
	}
	e, _ := rr.sketch.Resolve(h)
	if !CapabilitiesOf(e).Has(want) {
		return Handle{}, rr.sc.errorAt(pos, want.String()+" entity", strconv.Itoa(id), nil)
	}
	return h, nil
}

// Point reads a point argument: an entity ID or a literal vector.
func (rr *RuleReader) Point() (PointRef, error) {
	if rr.sc.peek() == '[' {
		v, err := rr.Vector()
		if err != nil {
			return PointRef{}, err
		}
		return Literal(v), nil
	}
	h, err := rr.Entity(CapPoint)
	if err != nil {
		return PointRef{}, err
	}
	return RefTo(h), nil
}

// Expression reads a linked expression up to the next top-level ',' or
// ')'. Every ref(id) must name a previously defined entity.
func (rr *RuleReader) Expression() (*Expression, error) {
	rr.sc.skip()
	pos := rr.sc.pos
	src, err := rr.sc.rawExpression()
	if err != nil {
		return nil, err
	}
	var refs []Handle
	for _, id := range ReferencedIDs(src) {
		h, ok := rr.sketch.HandleOf(id)
		if !ok {
			return nil, rr.sc.errorAt(pos, "previously defined entity in expression", strconv.Itoa(id), nil)
		}
		refs = append(refs, h)
	}
	expr, err := NewExpression(src, refs...)
	if err != nil {
		return nil, rr.sc.errorAt(pos, "expression", src, err)
	}
	return expr, nil
}

// Curve looks up an external curve by name.
func (rr *RuleReader) Curve(name string) (geom.Curve, error) {
	pos := rr.sc.pos
	if rr.sketch.library == nil {
		return nil, rr.sc.errorAt(pos, "curve library", name, nil)
	}
	c, err := rr.sketch.library.Curve(name)
	if err != nil {
		return nil, rr.sc.errorAt(pos, "known external curve", name, err)
	}
	return c, nil
}

// Grammar parses sketch scripts with the rules of a registry.
type Grammar struct {
	reg *Registry
}

// NewGrammar creates a grammar. A nil registry selects DefaultRegistry.
func NewGrammar(reg *Registry) *Grammar {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Grammar{reg: reg}
}

// Parse reads src into s. On error s may hold a partial graph; callers
// parse into a scratch sketch and assign it on success.
func (g *Grammar) Parse(src string, s *Sketch) error {
	sc := &scanner{src: src}
	rr := &RuleReader{sc: sc, sketch: s}

	for rr.Keyword("layer") {
		name, err := rr.Label()
		if err != nil {
			return err
		}
		props := params.New()
		if sc.hasPrefix(xmlBlobStart) {
			pos := sc.pos
			blob, err := sc.xmlBlob()
			if err != nil {
				return err
			}
			if props, err = params.ParseXML(blob); err != nil {
				return sc.errorAt(pos, "layer properties", "", err)
			}
		}
		s.SetLayerProperties(name, props)
	}

	if sc.eof() {
		return nil
	}
	for {
		if err := g.command(rr); err != nil {
			return err
		}
		if sc.eof() {
			return nil
		}
		if !sc.accept(',') {
			return sc.expected("',' or end of input")
		}
	}
}

func (g *Grammar) command(rr *RuleReader) error {
	sc := rr.sc
	sc.skip()
	start := sc.pos

	typeName, ok := sc.ident()
	if !ok {
		return sc.expected("entity type")
	}
	entry, ok := g.reg.Lookup(typeName)
	if !ok {
		return sc.errorAt(start, "entity type", typeName, nil)
	}
	if !sc.accept('(') {
		return sc.expected("'('")
	}
	sc.skip()
	idPos := sc.pos
	id, err := rr.Int()
	if err != nil {
		return err
	}
	if _, exists := rr.sketch.Lookup(id); exists {
		return sc.errorAt(idPos, "unique entity id", strconv.Itoa(id), nil)
	}
	if err := rr.Comma(); err != nil {
		return err
	}

	e, err := entry.Parse(rr)
	if err != nil {
		return err
	}

	if rr.OptionalClause("layer") {
		layer, err := rr.Label()
		if err != nil {
			return err
		}
		e.SetLayer(layer)
	}

	var blob string
	save := sc.pos
	blobPos := save
	comma := sc.accept(',')
	keyword := rr.Keyword("parameters")
	switch {
	case sc.hasPrefix(xmlBlobStart):
		blobPos = sc.pos
		if blob, err = sc.xmlBlob(); err != nil {
			return err
		}
	case keyword:
		return sc.expected("parameter set")
	case comma:
		sc.pos = save
	}
	if !sc.accept(')') {
		return sc.expected("')'")
	}

	if entry.Defaults != nil {
		e.ChangeDefaultParameters(entry.Defaults(rr.sketch, e))
	}
	if blob != "" {
		ps, err := params.ParseXML(blob)
		if err != nil {
			return sc.errorAt(blobPos, "parameter set", "", err)
		}
		e.Parameters().Merge(ps)
	}

	if _, err := rr.sketch.Insert(e, id); err != nil {
		return sc.errorAt(start, "valid "+typeName, "", err)
	}
	return nil
}

// CreateFromStream parses a script into a new sketch on plane.
func CreateFromStream(r io.Reader, plane geom.Plane, opts ...Option) (*Sketch, error) {
	s := New(plane, opts...)
	if _, err := s.ReadFrom(r); err != nil {
		return nil, err
	}
	return s, nil
}

// ReadFrom replaces the content of s with the script read from r. On error
// s is left unchanged.
func (s *Sketch) ReadFrom(r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	n := int64(len(data))
	if err != nil {
		return n, fmt.Errorf("failed to read script: %w", err)
	}

	scratch := s.scratch()
	if err := NewGrammar(s.registry).Parse(string(data), scratch); err != nil {
		s.logger.Debug().Err(err).Msg("Script rejected")
		return n, err
	}
	if err := s.Assign(scratch); err != nil {
		return n, err
	}
	return n, nil
}
