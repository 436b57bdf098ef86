package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
)

// Recover turns a handler panic into a 500 with the standard error body.
func Recover(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			logger.Error("panic recovered",
				slog.String("panic", fmt.Sprint(r)),
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.Any("request_id", c.Locals("requestid")),
				slog.String("stack", string(debug.Stack())),
			)

			err = writeError(c, fiber.StatusInternalServerError, errorBody{
				Code:    domain.ErrInternal.Code,
				Message: domain.ErrInternal.Message,
			})
		}()
		return c.Next()
	}
}
