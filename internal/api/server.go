// Package api exposes the operational HTTP surface: triggering runs,
// reconciling single devices, and querying the audit trail.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/attrsync/attrsync/audit"
	"github.com/attrsync/attrsync/config"
	"github.com/attrsync/attrsync/orchestrator"
	"github.com/attrsync/attrsync/storage"
	"github.com/attrsync/attrsync/telemetry"
)

// Server wraps the fiber app and its dependencies.
type Server struct {
	app     *fiber.App
	orch    *orchestrator.Orchestrator
	auditor *audit.Store
	runs    *storage.RunStore
	cfg     *config.Config
	logger  *telemetry.Logger
}

// NewServer builds the app and registers all routes.
func NewServer(orch *orchestrator.Orchestrator, auditor *audit.Store, runs *storage.RunStore, cfg *config.Config, logger *telemetry.Logger) *Server {
	s := &Server{
		orch:    orch,
		auditor: auditor,
		runs:    runs,
		cfg:     cfg,
		logger:  logger,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		s.logger.Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
		return err
	})

	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api")
	api.Post("/reconcile", s.handleReconcile)
	api.Post("/devices/name/:name", s.handleReconcileByName)
	api.Post("/devices/id/:id", s.handleReconcileByID)
	api.Get("/audit", s.handleAuditQuery)
	api.Get("/audit/summary", s.handleAuditSummary)
	api.Post("/audit/export", s.handleAuditExport)
	api.Get("/runs", s.handleRuns)

	s.app = app
	return s
}

// App returns the underlying fiber app, used by tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts serving on addr. Blocks until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleReconcile(c *fiber.Ctx) error {
	result, err := s.orch.RunReconciliation(c.Context())
	if err != nil {
		if result == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
			"stats": result.Stats,
		})
	}
	return c.JSON(result.Stats)
}

func (s *Server) handleReconcileByName(c *fiber.Ctx) error {
	dr, err := s.orch.ProcessSingleByName(c.Context(), c.Params("name"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(dr)
}

func (s *Server) handleReconcileByID(c *fiber.Ctx) error {
	dr, err := s.orch.ProcessSingleByID(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(dr)
}

func (s *Server) handleAuditQuery(c *fiber.Ctx) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	entries, err := s.auditor.Query(f)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"entries": entries, "count": len(entries)})
}

func (s *Server) handleAuditSummary(c *fiber.Ctx) error {
	from, to, err := timeRangeFromQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	summary, err := s.auditor.Summarize(from, to)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(summary)
}

func (s *Server) handleAuditExport(c *fiber.Ctx) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	dir := s.cfg.Export.Dir
	prefix := s.cfg.Export.Prefix
	if prefix == "" {
		prefix = "audit"
	}
	path, err := s.auditor.Export(dir, prefix, f)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"path": path})
}

func (s *Server) handleRuns(c *fiber.Ctx) error {
	if s.runs == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "run history disabled"})
	}
	limit := c.QueryInt("limit", 20)
	runs, err := s.runs.List(limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"runs": runs, "count": len(runs)})
}

func filterFromQuery(c *fiber.Ctx) (audit.Filter, error) {
	from, to, err := timeRangeFromQuery(c)
	if err != nil {
		return audit.Filter{}, err
	}
	return audit.Filter{
		From:   from,
		To:     to,
		Type:   audit.EventType(c.Query("event_type")),
		Device: c.Query("device"),
		Limit:  c.QueryInt("limit", 0),
		Offset: c.QueryInt("offset", 0),
	}, nil
}

func timeRangeFromQuery(c *fiber.Ctx) (from, to time.Time, err error) {
	if v := c.Query("from"); v != "" {
		from, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, fiber.NewError(fiber.StatusBadRequest, "from: expected RFC3339 timestamp")
		}
	}
	if v := c.Query("to"); v != "" {
		to, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, fiber.NewError(fiber.StatusBadRequest, "to: expected RFC3339 timestamp")
		}
	}
	return from, to, nil
}
