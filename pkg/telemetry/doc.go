// Package telemetry provides observability for the sketcher tools.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry) and
// metrics (Prometheus) with a small event publisher for solve and revision
// events.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// The zerolog logger behind a Logger is handed to sketches so that solver
// iterations are logged at debug level:
//
//	s := sketch.New(plane, sketch.WithLogger(tel.Logger.Zerolog()))
//
// # Metrics
//
// With the default namespace the following series are exported:
//
//	sketcher_solves_total{kind,outcome}
//	sketcher_solve_iterations{kind}
//	sketcher_solve_duration_seconds{kind}
//	sketcher_residual_norm{kind}
//	sketcher_parse_total{outcome}
//	sketcher_entities
//	sketcher_lint_violations_total{severity}
//	sketcher_store_operations_total{operation,status}
//
// # Tracing
//
// Spans are exported to stdout, to an OTLP gRPC collector, or not at all
// ("none"). Parse, solve and lint each get their own span.
package telemetry
