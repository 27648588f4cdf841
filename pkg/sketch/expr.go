package sketch

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"go.starlark.net/lib/math"
	"go.starlark.net/starlark"
)

var refPattern = regexp.MustCompile(`ref\(\s*(-?\d+)\s*\)`)

// Expression is a Starlark expression computing a constraint target. It
// sees the sketch variables, the math module and ref(id), which returns
// the measured value of a scalar-like entity.
type Expression struct {
	src  string
	refs map[int]Handle
}

// ReferencedIDs lists the entity IDs named by ref(...) calls in src.
func ReferencedIDs(src string) []int {
	var ids []int
	seen := make(map[int]bool)
	for _, m := range refPattern.FindAllStringSubmatch(src, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// NewExpression binds src to the handles of the entities it references.
// Every ref(id) in src must have a matching handle.
func NewExpression(src string, refs ...Handle) (*Expression, error) {
	byID := make(map[int]Handle, len(refs))
	for _, h := range refs {
		byID[h.ID] = h
	}
	e := &Expression{src: src, refs: make(map[int]Handle)}
	for _, id := range ReferencedIDs(src) {
		h, ok := byID[id]
		if !ok {
			return nil, newError(ErrorClassValidation, ErrCodeExpression,
				fmt.Sprintf("expression references unknown entity %d", id), nil)
		}
		e.refs[id] = h
	}
	return e, nil
}

// Source returns the expression text.
func (e *Expression) Source() string { return e.src }

// Dependencies returns the referenced handles in ID order.
func (e *Expression) Dependencies() []Handle {
	ids := make([]int, 0, len(e.refs))
	for id := range e.refs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	hs := make([]Handle, len(ids))
	for i, id := range ids {
		hs[i] = e.refs[id]
	}
	return hs
}

// Eval computes the value of the expression.
func (e *Expression) Eval(r Resolver) (float64, error) {
	thread := &starlark.Thread{Name: "expression"}
	env := starlark.StringDict{
		"math": math.Module,
		"ref":  starlark.NewBuiltin("ref", e.refBuiltin(r)),
	}
	for name, v := range r.Variables() {
		env[name] = starlark.Float(v)
	}

	val, err := starlark.Eval(thread, "expression", e.src, env)
	if err != nil {
		return 0, newError(ErrorClassValidation, ErrCodeExpression,
			fmt.Sprintf("failed to evaluate %q", e.src), err)
	}
	f, ok := starlark.AsFloat(val)
	if !ok {
		return 0, newError(ErrorClassValidation, ErrCodeExpression,
			fmt.Sprintf("expression %q yields %s, not a number", e.src, val.Type()), nil)
	}
	return f, nil
}

func (e *Expression) refBuiltin(r Resolver) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var id int
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &id); err != nil {
			return nil, err
		}
		h, ok := e.refs[id]
		if !ok {
			return nil, fmt.Errorf("ref: entity %d is not bound", id)
		}
		ent, err := resolveAs(r, h, CapScalar)
		if err != nil {
			return nil, err
		}
		v, err := ent.(ScalarLike).Scalar(r)
		if err != nil {
			return nil, err
		}
		return starlark.Float(v), nil
	}
}

// replace rebinds references to from onto to, rewriting the source text
// when the ID changes.
func (e *Expression) replace(r Resolver, from, to Handle) {
	for id, h := range e.refs {
		if !canReplace(r, h, from, to, CapScalar) {
			continue
		}
		delete(e.refs, id)
		e.refs[to.ID] = to
		if to.ID != id {
			e.src = refPattern.ReplaceAllStringFunc(e.src, func(m string) string {
				sub := refPattern.FindStringSubmatch(m)
				if n, err := strconv.Atoi(sub[1]); err == nil && n == id {
					return fmt.Sprintf("ref(%d)", to.ID)
				}
				return m
			})
		}
		return
	}
}

func (e *Expression) clone() *Expression {
	c := &Expression{src: e.src, refs: make(map[int]Handle, len(e.refs))}
	for id, h := range e.refs {
		c.refs[id] = h
	}
	return c
}

// emit writes the referenced entities to b.
func (e *Expression) emit(b *ScriptBuffer, r Resolver) error {
	for _, h := range e.Dependencies() {
		if err := b.emitDependency(r, h); err != nil {
			return err
		}
	}
	return nil
}
