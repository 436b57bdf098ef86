package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
)

// errorBody is the only error shape the API ever returns.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorHandler renders every error as {"error":{...}}. Client errors built
// from a domain.AppError carry the wrapped cause as details; server errors
// are logged and never expose their cause.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		body, status := describe(err)

		if status >= 500 {
			logger.Error("request failed",
				slog.String("code", body.Code),
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.Any("request_id", c.Locals("requestid")),
				slog.Any("error", err),
			)
		}

		return writeError(c, status, body)
	}
}

func describe(err error) (errorBody, int) {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		body := errorBody{Code: appErr.Code, Message: appErr.Message}
		if appErr.StatusCode < 500 && appErr.Err != nil {
			body.Details = appErr.Err.Error()
		}
		return body, appErr.StatusCode
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return errorBody{Code: httpCode(fiberErr.Code), Message: fiberErr.Message}, fiberErr.Code
	}

	return errorBody{Code: domain.ErrInternal.Code, Message: domain.ErrInternal.Message}, fiber.StatusInternalServerError
}

// httpCode names framework errors (404 on unknown routes, 426 on the feed).
func httpCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusUpgradeRequired:
		return "UPGRADE_REQUIRED"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	default:
		return "HTTP_ERROR"
	}
}

func writeError(c *fiber.Ctx, status int, body errorBody) error {
	if id, ok := c.Locals("requestid").(string); ok {
		body.RequestID = id
	}
	return c.Status(status).JSON(fiber.Map{"error": body})
}
