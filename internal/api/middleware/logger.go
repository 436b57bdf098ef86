package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger writes one access line per request. Exact paths in skip (probes,
// metrics scrapes) are not logged.
func Logger(logger *slog.Logger, skip ...string) fiber.Handler {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(c *fiber.Ctx) error {
		if skipped[c.Path()] {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		// ErrorHandler runs after us, so the response still has the default status
		status := c.Response().StatusCode()
		if err != nil {
			status = statusOf(err)
		}

		attrs := []slog.Attr{
			slog.String("method", c.Method()),
			slog.String("route", c.Route().Path),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.IP()),
			slog.Any("request_id", c.Locals("requestid")),
		}
		if id, ok := c.Locals(LocalReviewerID).(string); ok {
			attrs = append(attrs, slog.String("reviewer_id", id))
		}

		logger.LogAttrs(c.UserContext(), levelFor(status), "http request", attrs...)
		return err
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
