package policy

// GetBuiltinPolicies returns all built-in design rules.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		underConstrainedPolicy(),
		overConstrainedPolicy(),
		zeroLengthLinePolicy(),
		unusedLayerPolicy(),
		residualTolerancePolicy(),
	}
}

func underConstrainedPolicy() Policy {
	return Policy{
		Name:        "under-constrained",
		Description: "Reports sketches with more degrees of freedom than constraint equations",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"constraints"},
		Rego: `package sketcher.rules.under_constrained

deny contains violation if {
	s := input.sketch
	s.ndof > s.nconstraints
	violation := {
		"message": sprintf("sketch has %d degrees of freedom but only %d constraint equations", [s.ndof, s.nconstraints]),
		"remediation": "add dimensions or fix points until the sketch is fully determined",
	}
}
`,
	}
}

func overConstrainedPolicy() Policy {
	return Policy{
		Name:        "over-constrained",
		Description: "Reports sketches with more constraint equations than degrees of freedom",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"constraints"},
		Rego: `package sketcher.rules.over_constrained

deny contains violation if {
	s := input.sketch
	s.nconstraints > s.ndof
	violation := {
		"message": sprintf("sketch has %d constraint equations for %d degrees of freedom", [s.nconstraints, s.ndof]),
		"remediation": "remove redundant constraints or switch to the minimize solver",
	}
}
`,
	}
}

func zeroLengthLinePolicy() Policy {
	return Policy{
		Name:        "zero-length-line",
		Description: "Lines whose endpoints coincide",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"geometry"},
		Rego: `package sketcher.rules.zero_length_line

deny contains violation if {
	some e in input.sketch.entities
	e.type == "Line"
	e.length <= 1e-9
	violation := {
		"message": sprintf("line %d has zero length", [e.id]),
		"entity": e.id,
	}
}
`,
	}
}

func unusedLayerPolicy() Policy {
	return Policy{
		Name:        "unused-layer",
		Description: "Layer declarations that no entity refers to",
		Severity:    SeverityInfo,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"layers"},
		Rego: `package sketcher.rules.unused_layer

deny contains violation if {
	some layer in input.sketch.declared_layers
	layer != "standard"
	not layer in input.sketch.used_layers
	violation := {
		"message": sprintf("layer %q is declared but not used", [layer]),
		"remediation": "remove the layer declaration",
	}
}
`,
	}
}

func residualTolerancePolicy() Policy {
	return Policy{
		Name:        "residual-tolerance",
		Description: "Solved sketches whose residual exceeds the solver tolerance",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"solver"},
		Rego: `package sketcher.rules.residual_tolerance

deny contains violation if {
	input.context.solved
	s := input.sketch
	s.residual > s.tolerance
	violation := {
		"message": sprintf("residual %v exceeds tolerance %v", [s.residual, s.tolerance]),
	}
}

deny contains violation if {
	input.context.solved
	some e in input.sketch.entities
	some r in e.residuals
	abs(r) > input.sketch.tolerance * 1000
	violation := {
		"message": sprintf("%s %d is not satisfied (residual %v)", [e.type, e.id, r]),
		"entity": e.id,
	}
}
`,
	}
}
