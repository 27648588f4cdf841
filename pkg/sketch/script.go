package sketch

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/openfroyo/sketcher/pkg/geom"
)

// ScriptBuffer collects the commands of a script. Every entity is emitted
// once, after the entities it depends on.
type ScriptBuffer struct {
	emitted  map[int]bool
	visiting map[int]bool
	commands []string
	layers   []string
}

// NewScriptBuffer creates an empty buffer.
func NewScriptBuffer() *ScriptBuffer {
	return &ScriptBuffer{
		emitted:  make(map[int]bool),
		visiting: make(map[int]bool),
	}
}

// insert appends the command of entity id unless it was emitted before.
func (b *ScriptBuffer) insert(id int, cmd string) {
	if b.emitted[id] {
		return
	}
	b.emitted[id] = true
	b.commands = append(b.commands, cmd)
}

// emitDependency writes the entity behind h, and recursively everything it
// depends on, unless already emitted.
func (b *ScriptBuffer) emitDependency(r Resolver, h Handle) error {
	if b.emitted[h.ID] {
		return nil
	}
	if b.visiting[h.ID] {
		return newError(ErrorClassDependency, ErrCodeCycle,
			fmt.Sprintf("entity %d depends on itself", h.ID), nil).WithOperation("generate_script")
	}
	e, ok := r.Resolve(h)
	if !ok {
		return danglingError(h).WithOperation("generate_script")
	}
	b.visiting[h.ID] = true
	defer delete(b.visiting, h.ID)
	return e.WriteScript(b, r, h.ID)
}

// appendLayer adds a layer declaration.
func (b *ScriptBuffer) appendLayer(decl string) {
	b.layers = append(b.layers, decl)
}

// Commands returns the entity commands in emission order.
func (b *ScriptBuffer) Commands() []string { return b.commands }

// WriteTo writes the layer declarations, one per line, followed by the
// commands separated by ",\n".
func (b *ScriptBuffer) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	write := func(s string) error {
		k, err := bw.WriteString(s)
		n += int64(k)
		return err
	}

	for _, l := range b.layers {
		if err := write(l + "\n"); err != nil {
			return n, err
		}
	}
	for i, c := range b.commands {
		sep := ",\n"
		if i == len(b.commands)-1 {
			sep = "\n"
		}
		if err := write(c + sep); err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// formatFloat renders v with the shortest representation that parses back
// to the same value.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// GenerateScript writes the whole sketch to w.
func (s *Sketch) GenerateScript(w io.Writer) error {
	b := NewScriptBuffer()
	for _, id := range s.IDs() {
		if err := b.emitDependency(s, s.slots[id].handle(id)); err != nil {
			return fmt.Errorf("failed to generate script: %w", err)
		}
	}
	for _, name := range s.LayerNames() {
		decl := "layer " + name
		if props, ok := s.layers[name]; ok && props.Len() > 0 {
			decl += " " + props.XML()
		}
		b.appendLayer(decl)
	}
	if _, err := b.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write script: %w", err)
	}
	return nil
}

// formatVector renders a literal vector as [x, y, z].
func formatVector(v geom.Vec3) string {
	return "[" + formatFloat(v.X) + ", " + formatFloat(v.Y) + ", " + formatFloat(v.Z) + "]"
}
