// Package geom provides the geometry-kernel collaborator used by the sketch
// engine: 3D vectors, the sketch plane that maps planar (u, v) coordinates
// to space, and curves that answer minimum-distance queries.
//
// # Kernel Interfaces
//
// The sketch core only needs two things from a geometry kernel:
//
//	type Plane interface {
//	    Origin() Vec3
//	    AxisU() Vec3
//	    AxisV() Vec3
//	}
//
//	type Curve interface {
//	    MinDistance(p Vec3) float64
//	}
//
// Datum implements Plane. Segment and Circle are analytic curves, WasmCurve
// delegates the distance query to a WebAssembly module so that curves from
// an external CAD kernel can be plugged in without linking it. Curves whose
// evaluation can fail implement CheckedCurve; Distance reports their errors.
//
// # Library
//
// A Library maps names to curves. External references in a sketch script
// refer to curves by name and are resolved through the Library attached to
// the sketch.
package geom
