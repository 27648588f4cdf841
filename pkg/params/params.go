package params

import (
	"encoding/binary"
	"fmt"
	"hash"
	"math"
	"strconv"
)

// Kind is the type of a parameter value.
type Kind int

const (
	// KindNumber is a float64 value.
	KindNumber Kind = iota
	// KindString is a string value.
	KindString
)

// String returns the XML element name used for the kind.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "double"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a single parameter value.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
}

// Number creates a numeric value.
func Number(v float64) Value { return Value{Kind: KindNumber, Num: v} }

// String creates a string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Text formats the value for serialization.
func (v Value) Text() string {
	if v.Kind == KindNumber {
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	}
	return v.Str
}

// Set is an ordered name to value mapping.
type Set struct {
	names  []string
	values map[string]Value
}

// New creates an empty set.
func New() *Set {
	return &Set{values: make(map[string]Value)}
}

// Set stores a value. New names are appended; existing names keep their
// position.
func (s *Set) Set(name string, v Value) {
	if _, ok := s.values[name]; !ok {
		s.names = append(s.names, name)
	}
	s.values[name] = v
}

// SetNumber stores a numeric value.
func (s *Set) SetNumber(name string, v float64) { s.Set(name, Number(v)) }

// SetString stores a string value.
func (s *Set) SetString(name, v string) { s.Set(name, String(v)) }

// Get returns the value stored under name.
func (s *Set) Get(name string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	v, ok := s.values[name]
	return v, ok
}

// Has reports whether name is present.
func (s *Set) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Number returns a numeric parameter.
func (s *Set) Number(name string) (float64, error) {
	v, ok := s.Get(name)
	if !ok {
		return 0, fmt.Errorf("parameter %q not found", name)
	}
	if v.Kind != KindNumber {
		return 0, fmt.Errorf("parameter %q is not numeric", name)
	}
	return v.Num, nil
}

// NumberOr returns a numeric parameter or def if it is absent or not numeric.
func (s *Set) NumberOr(name string, def float64) float64 {
	n, err := s.Number(name)
	if err != nil {
		return def
	}
	return n
}

// String returns a string parameter.
func (s *Set) String(name string) (string, error) {
	v, ok := s.Get(name)
	if !ok {
		return "", fmt.Errorf("parameter %q not found", name)
	}
	if v.Kind != KindString {
		return "", fmt.Errorf("parameter %q is not a string", name)
	}
	return v.Str, nil
}

// Delete removes name from the set.
func (s *Set) Delete(name string) {
	if _, ok := s.values[name]; !ok {
		return
	}
	delete(s.values, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			break
		}
	}
}

// Names returns the parameter names in insertion order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of parameters.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	c := New()
	if s == nil {
		return c
	}
	for _, n := range s.names {
		c.Set(n, s.values[n])
	}
	return c
}

// Merge copies every entry of other into s.
func (s *Set) Merge(other *Set) {
	if other == nil {
		return
	}
	for _, n := range other.names {
		s.Set(n, other.values[n])
	}
}

// Equal reports whether both sets hold the same entries in the same order.
func (s *Set) Equal(other *Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i, n := range s.names {
		if other.names[i] != n || other.values[n] != s.values[n] {
			return false
		}
	}
	return true
}

// HashInto feeds every entry into h.
func (s *Set) HashInto(h hash.Hash64) {
	if s == nil {
		return
	}
	var buf [8]byte
	for _, n := range s.names {
		v := s.values[n]
		h.Write([]byte(n))
		buf[0] = byte(v.Kind)
		h.Write(buf[:1])
		if v.Kind == KindNumber {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v.Num))
			h.Write(buf[:])
		} else {
			h.Write([]byte(v.Str))
		}
	}
}

// Pair holds the current parameters and their default baseline.
type Pair struct {
	current  *Set
	defaults *Set
}

// NewPair creates a pair whose current values equal defaults.
func NewPair(defaults *Set) Pair {
	if defaults == nil {
		defaults = New()
	}
	return Pair{current: defaults.Clone(), defaults: defaults.Clone()}
}

// Current returns the live parameter set.
func (p *Pair) Current() *Set {
	if p.current == nil {
		p.current = New()
	}
	return p.current
}

// Defaults returns the default baseline.
func (p *Pair) Defaults() *Set {
	if p.defaults == nil {
		p.defaults = New()
	}
	return p.defaults
}

// ChangeDefaults replaces the defaults and resets the current values to
// them. Prior edits of the current set are discarded.
func (p *Pair) ChangeDefaults(d *Set) {
	p.defaults = d.Clone()
	p.current = d.Clone()
}

// Clone returns a deep copy of the pair.
func (p Pair) Clone() Pair {
	return Pair{current: p.current.Clone(), defaults: p.defaults.Clone()}
}
