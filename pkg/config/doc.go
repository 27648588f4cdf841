// Package config loads the configuration of the sketcher tools.
//
// A configuration is a sketcher.yaml, sketcher.yml or sketcher.cue file.
// YAML documents and CUE values are both checked against the built-in CUE
// schema #Config before they are decoded over DefaultConfig, and the
// decoded Config is then validated with struct tags:
//
//	plane: XZ
//	solver:
//	  kind: minimize
//	  tolerance: 1e-8
//	variables:
//	  width: 40
//	variables_script: vars.star
//	externals:
//	  - name: rail
//	    kind: segment
//	    from: [0, 0, 0]
//	    to: [100, 0, 0]
//	store:
//	  path: sketches.db
//	policy:
//	  paths: [rules/]
//	  fail_on: warning
//
// The same file in CUE may use references and constraints:
//
//	plane: "XZ"
//	variables: {width: 40, height: width / 2}
//	solver: tolerance: <1e-6
//	solver: tolerance: 1e-8
//
// # Variables scripts
//
// variables_script names a Starlark file. It runs with the declared
// variables and the math module predeclared; every numeric global it
// defines becomes a sketch variable. Scripts run with a timeout.
//
// # External curves
//
// Config.Library turns the externals list into a geom.MapLibrary. Segment
// and circle curves are built in; wasm curves load a WebAssembly module
// exporting min_dist(x, y, z f64) f64.
package config
