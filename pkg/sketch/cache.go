package sketch

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/openfroyo/sketcher/pkg/geom"
)

// hasher accumulates a content hash.
type hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func newHasher(tag string) *hasher {
	h := &hasher{d: xxhash.New()}
	h.d.WriteString(tag)
	return h
}

func (h *hasher) float(v float64) *hasher {
	binary.LittleEndian.PutUint64(h.buf[:], math.Float64bits(v))
	h.d.Write(h.buf[:])
	return h
}

func (h *hasher) u64(v uint64) *hasher {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	h.d.Write(h.buf[:])
	return h
}

func (h *hasher) vec(v geom.Vec3) *hasher {
	return h.float(v.X).float(v.Y).float(v.Z)
}

func (h *hasher) str(s string) *hasher {
	h.d.WriteString(s)
	h.d.Write([]byte{0})
	return h
}

func (h *hasher) sum() uint64 { return h.d.Sum64() }

// rebuildCache records the hash of the inputs a derived value was computed
// from.
type rebuildCache struct {
	hash     uint64
	valid    bool
	rebuilds int
}

// stale reports whether the derived value must be recomputed for inputs
// hashing to h.
func (c *rebuildCache) stale(h uint64) bool {
	return !c.valid || c.hash != h
}

func (c *rebuildCache) record(h uint64) {
	c.hash = h
	c.valid = true
	c.rebuilds++
}

func (c *rebuildCache) invalidate() { c.valid = false }

// Rebuilds returns how often the derived value was recomputed.
func (c *rebuildCache) Rebuilds() int { return c.rebuilds }
