// Package sketch implements the constrained 2D sketch engine: a graph of
// points, lines and constraints whose degrees of freedom are solved so that
// all constraint residuals vanish, plus the script language used to save
// and restore the graph.
//
// # Entities
//
// Every element of a sketch implements Entity. Entities own zero or more
// degrees of freedom (DoF) and contribute zero or more residual equations:
//
//   - SketchPoint: two DoF, the plane coordinates (u, v)
//   - Line: references two points, no DoF, no residuals
//   - FixedPoint, Horizontal, Vertical, Tangent, PointOnCurve
//   - FixedDistance, LinkedDistance, FixedAngle, LinkedAngle
//   - ExternalReference: a named curve supplied by the geometry kernel
//
// What an entity can be used for is expressed by the closed set of
// capability interfaces PointLike, LineLike, CurveLike and ScalarLike.
//
// # Handles
//
// Entities never hold pointers to each other. A dependency is a Handle,
// the pair (ID, generation) of an arena slot in the owning Sketch. Erasing
// or replacing a slot bumps the generation, so stale handles are detected
// instead of dereferenced. Cloning a sketch keeps IDs and generations,
// which makes every handle of the original valid in the copy without
// rewiring.
//
// # Solving
//
// ResolveConstraints concatenates all DoF and residuals in ascending ID
// order (see Assembly) and hands them to package solver.
//
// # Scripts
//
// A sketch is persisted as a comma-separated list of commands:
//
//	SketchPoint( 1, 0, 0, layer standard ),
//	SketchPoint( 2, 2, 0, layer standard ),
//	Line( 3, 1, 2, layer standard ),
//	FixedDistanceConstraint( 4, 1, 2, layer dims, parameters <?xml ... </root> )
//
// Each command type is registered in a Registry that is handed to
// NewGrammar.
package sketch
