package ws

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/saturnino-fabrica-de-software/veritas/internal/api/middleware"
)

// Handler upgrades an authenticated reviewer request into a feed
// subscription. ReviewerAuth must run first.
func Handler(hub *Hub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		reviewerID, _ := c.Locals(middleware.LocalReviewerID).(string)
		role, _ := c.Locals(middleware.LocalReviewerRole).(string)
		if reviewerID == "" || role == "" {
			_ = c.Close()
			return
		}

		client := &Client{
			hub:        hub,
			conn:       c,
			reviewerID: reviewerID,
			role:       role,
			send:       make(chan []byte, 64),
		}

		if !hub.join(client) {
			_ = c.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}

// UpgradeMiddleware rejects plain HTTP requests on the feed route.
func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}
