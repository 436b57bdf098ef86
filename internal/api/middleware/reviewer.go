package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/veritas/internal/domain"
	"github.com/saturnino-fabrica-de-software/veritas/internal/reviewer"
)

const (
	// LocalReviewerID is the key to retrieve the reviewer id from context
	LocalReviewerID = "reviewer_id"
	// LocalReviewerRole is the key to retrieve the reviewer role from context
	LocalReviewerRole = "reviewer_role"
)

// ReviewerAuthDependencies contains dependencies for reviewer authentication
type ReviewerAuthDependencies struct {
	Tokens *reviewer.TokenService
	Logger *slog.Logger
}

// ReviewerAuth validates the reviewer JWT from the Authorization header.
// With roles set, the token role must be one of them.
func ReviewerAuth(deps ReviewerAuthDependencies, roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" {
			deps.Logger.Debug("missing authorization header for reviewer")
			return domain.ErrUnauthorized
		}

		claims, err := deps.Tokens.ValidateToken(token)
		if err != nil {
			deps.Logger.Warn("invalid reviewer token", "error", err)
			return domain.ErrUnauthorized
		}

		if len(roles) > 0 && !hasRole(claims.Role, roles) {
			deps.Logger.Warn("insufficient privileges", "role", claims.Role, "required", roles)
			return domain.ErrForbidden
		}

		c.Locals(LocalReviewerID, claims.ReviewerID)
		c.Locals(LocalReviewerRole, claims.Role)

		return c.Next()
	}
}

// GetReviewerID retrieves the authenticated reviewer id from context
func GetReviewerID(c *fiber.Ctx) (string, error) {
	id, ok := c.Locals(LocalReviewerID).(string)
	if !ok || id == "" {
		return "", domain.ErrUnauthorized
	}
	return id, nil
}

func hasRole(role string, allowed []string) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		// browsers cannot set headers on a WebSocket handshake
		if strings.EqualFold(c.Get(fiber.HeaderUpgrade), "websocket") {
			return c.Query("access_token")
		}
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
