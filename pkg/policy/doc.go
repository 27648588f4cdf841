// Package policy lints sketches with design rules written in Rego.
//
// Rules are evaluated by Open Policy Agent against an Input document that
// holds the sketch.Summary of a sketch and a small evaluation context:
//
//	{
//	  "sketch":  {"entities": [...], "ndof": 4, "nconstraints": 4, ...},
//	  "context": {"source": "bracket.sketch", "solved": true}
//	}
//
// Every rule module defines a "deny" set. Elements are either plain
// message strings or objects:
//
//	deny contains violation if {
//		some e in input.sketch.entities
//		e.type == "Line"
//		e.length <= 1e-9
//		violation := {"message": sprintf("line %d has zero length", [e.id]), "entity": e.id}
//	}
//
// # Built-in rules
//
//	under-constrained   warning  more DoFs than constraint equations
//	over-constrained    warning  more constraint equations than DoFs
//	zero-length-line    error    coincident line endpoints
//	unused-layer        info     declared layers no entity uses
//	residual-tolerance  error    residual above tolerance after a solve
//
// # Custom rules
//
// Custom rules are loaded from .rego or .json files. In .rego files the
// leading comment block is the description and a "# severity: error" line
// sets the severity:
//
//	eng, _ := policy.NewEngine(logger)
//	_ = eng.LoadPolicies(ctx, []string{"rules/"})
//	loader, _ := eng.Watch(ctx, []string{"rules/"})
//	defer loader.StopWatching()
package policy
