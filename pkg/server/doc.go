// Package server exposes the sketch engine as a JSON HTTP service.
//
// Routes:
//
//	GET    /health/live
//	GET    /health/ready
//	GET    /metrics
//	POST   /v1/solve                      {script, source, plane, solver, lint}
//	POST   /v1/validate                   {script, source}
//	POST   /v1/lint                       {script, source, solve}
//	POST   /v1/format                     {script}
//	POST   /v1/graph                      {script}
//	GET    /v1/policies
//	POST   /v1/documents                  {name, plane, script}
//	GET    /v1/documents?limit=&offset=
//	GET    /v1/documents/:id
//	DELETE /v1/documents/:id
//	POST   /v1/documents/:id/revisions    {script, message, solver, allow_partial}
//	GET    /v1/documents/:id/revisions
//	GET    /v1/documents/:id/revisions/:seq
//	POST   /v1/documents/:id/undo
//
// Failures are rendered as {"error": {"code", "message", "details"}}. A
// solve that does not converge answers 422 and adds the last iterate as
// "result".
package server
