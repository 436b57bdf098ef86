package handler

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/veritas/internal/database"
)

// Version is reported by /health.
const Version = "0.1.0"

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	db      database.Pinger
	logger  *slog.Logger
	started time.Time
}

// NewHealthHandler creates a health handler. A nil db makes /ready always ready.
func NewHealthHandler(db database.Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger, started: time.Now()}
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds,omitempty"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// Health GET /health - the process is up
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:        "ok",
		Version:       Version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	})
}

// Ready GET /ready - Postgres answers, so submissions can be persisted
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.db == nil {
		return c.JSON(HealthResponse{Status: "ready"})
	}

	if err := database.HealthCheck(c.UserContext(), h.db); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
			Status: "unavailable",
			Checks: map[string]string{"database": "down"},
		})
	}

	return c.JSON(HealthResponse{
		Status: "ready",
		Checks: map[string]string{"database": "ok"},
	})
}
