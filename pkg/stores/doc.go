// Package stores persists sketch documents and their revision history.
// It uses SQLite in WAL mode with embedded migrations. Each revision holds
// a generated sketch script together with the solver settings and outcome
// of the solve that produced it, which makes undo a matter of dropping the
// newest row.
package stores
