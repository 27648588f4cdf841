package server

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/openfroyo/sketcher/pkg/engine"
	"github.com/openfroyo/sketcher/pkg/solver"
	"github.com/openfroyo/sketcher/pkg/telemetry"
)

type scriptRequest struct {
	Script string `json:"script" validate:"required"`
	Source string `json:"source"`
}

type solveRequest struct {
	scriptRequest
	Plane string `json:"plane" validate:"omitempty,oneof=XY XZ YZ"`

	// Solver fields override the configured settings one by one.
	Solver json.RawMessage `json:"solver"`

	Lint bool `json:"lint"`
}

type lintRequest struct {
	scriptRequest
	Solve bool `json:"solve"`
}

type createDocumentRequest struct {
	Name   string `json:"name" validate:"required"`
	Plane  string `json:"plane" validate:"omitempty,oneof=XY XZ YZ"`
	Script string `json:"script"`
}

type commitRequest struct {
	Script       string          `json:"script" validate:"required"`
	Message      string          `json:"message"`
	Solver       json.RawMessage `json:"solver"`
	AllowPartial bool            `json:"allow_partial"`
}

func (s *Server) bind(c fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return engine.NewError(engine.ErrCodeInvalidRequest, "empty body", nil)
	}
	if err := json.Unmarshal(c.Body(), out); err != nil {
		return engine.NewError(engine.ErrCodeInvalidRequest, "invalid json", err)
	}
	if err := s.validate.Struct(out); err != nil {
		return engine.NewError(engine.ErrCodeInvalidRequest, "invalid request", err)
	}
	return nil
}

// settings overlays raw on the configured solver settings.
func (s *Server) settings(raw json.RawMessage) (*solver.Settings, error) {
	st := s.engine.Config().Solver
	if len(raw) == 0 {
		return &st, nil
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, engine.NewError(engine.ErrCodeInvalidRequest, "invalid solver settings", err)
	}
	return &st, nil
}

func (s *Server) live(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive"})
}

func (s *Server) ready(c fiber.Ctx) error {
	if st := s.engine.Store(); st != nil {
		if err := st.HealthCheck(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

func (s *Server) solve(c fiber.Ctx) error {
	var req solveRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	settings, err := s.settings(req.Solver)
	if err != nil {
		return err
	}

	res, err := s.engine.Solve(c.Context(), req.Script, engine.SolveOptions{
		Source:   req.Source,
		Plane:    req.Plane,
		Settings: settings,
		Timeout:  s.cfg.SolveTimeout,
		Lint:     req.Lint,
	})
	if err != nil {
		if res != nil {
			return &resultError{err: err, result: res}
		}
		return err
	}
	return c.JSON(res)
}

func (s *Server) validateScript(c fiber.Ctx) error {
	var req scriptRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	report, err := s.engine.Validate(c.Context(), req.Source, req.Script)
	if err != nil {
		return err
	}
	return c.JSON(report)
}

func (s *Server) lint(c fiber.Ctx) error {
	var req lintRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	report, err := s.engine.Lint(c.Context(), req.Source, req.Script, req.Solve)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if s.engine.LintFailed(report.Lint) {
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(report)
}

func (s *Server) format(c fiber.Ctx) error {
	var req scriptRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	out, err := s.engine.Format(c.Context(), req.Source, req.Script)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"script": out})
}

func (s *Server) graph(c fiber.Ctx) error {
	var req scriptRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	dot, err := s.engine.Graph(c.Context(), req.Source, req.Script)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/vnd.graphviz; charset=utf-8")
	return c.SendString(dot)
}

func (s *Server) listPolicies(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"policies": s.engine.Policy().ListPolicies()})
}

// listEvents returns recent events, newest first, optionally filtered by
// a comma-separated type list, a document and a minimum level.
func (s *Server) listEvents(c fiber.Ctx) error {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return err
	}

	var filters []telemetry.EventFilter
	if types := c.Query("type"); types != "" {
		filters = append(filters, telemetry.FilterByType(strings.Split(types, ",")...))
	}
	if doc := c.Query("document"); doc != "" {
		filters = append(filters, telemetry.FilterByDocument(doc))
	}
	switch level := c.Query("level"); level {
	case "":
	case telemetry.EventLevelInfo, telemetry.EventLevelWarning, telemetry.EventLevelError:
		filters = append(filters, telemetry.FilterByLevel(level))
	default:
		return engine.NewError(engine.ErrCodeInvalidRequest, "level must be info, warning or error", nil)
	}

	return c.JSON(fiber.Map{"events": s.events.Recent(limit, filters...)})
}

func (s *Server) createDocument(c fiber.Ctx) error {
	var req createDocumentRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	doc, err := s.engine.CreateDocument(c.Context(), req.Name, req.Plane)
	if err != nil {
		return err
	}
	if req.Script == "" {
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"document": doc})
	}

	rev, res, err := s.engine.Commit(c.Context(), doc.ID, req.Script, "initial revision", engine.SolveOptions{
		Timeout: s.cfg.SolveTimeout,
	})
	if err != nil {
		// The document stays; its script can be committed again.
		if res != nil {
			return &resultError{err: err, result: fiber.Map{"document": doc, "solve": res}}
		}
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"document": doc, "revision": rev})
}

func (s *Server) listDocuments(c fiber.Ctx) error {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return err
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return err
	}
	docs, err := s.engine.Documents(c.Context(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"documents": docs})
}

func (s *Server) getDocument(c fiber.Ctx) error {
	doc, err := s.engine.Document(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

func (s *Server) deleteDocument(c fiber.Ctx) error {
	if err := s.engine.DeleteDocument(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) commit(c fiber.Ctx) error {
	var req commitRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	settings, err := s.settings(req.Solver)
	if err != nil {
		return err
	}

	rev, res, err := s.engine.Commit(c.Context(), c.Params("id"), req.Script, req.Message, engine.SolveOptions{
		Settings:     settings,
		Timeout:      s.cfg.SolveTimeout,
		AllowPartial: req.AllowPartial,
	})
	if err != nil {
		if res != nil {
			return &resultError{err: err, result: res}
		}
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"revision": rev, "solve": res})
}

func (s *Server) listRevisions(c fiber.Ctx) error {
	revs, err := s.engine.Revisions(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"revisions": revs})
}

func (s *Server) getRevision(c fiber.Ctx) error {
	seq, err := strconv.Atoi(c.Params("seq"))
	if err != nil || seq < 1 {
		return engine.NewError(engine.ErrCodeInvalidRequest, "revision must be a positive integer", err)
	}
	rev, err := s.engine.Revision(c.Context(), c.Params("id"), seq)
	if err != nil {
		return err
	}
	return c.JSON(rev)
}

func (s *Server) undo(c fiber.Ctx) error {
	rev, err := s.engine.Undo(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"revision": rev})
}

func queryInt(c fiber.Ctx, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, engine.NewError(engine.ErrCodeInvalidRequest, key+" must be a non-negative integer", err)
	}
	return n, nil
}
