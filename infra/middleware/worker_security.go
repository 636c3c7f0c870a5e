package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/FinanGammell/pare/pkg/response"
)

// SecurityHeaders adds security headers to all responses
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		return c.Next()
	}
}

// MaxBodySize rejects request bodies larger than maxBytes.
func MaxBodySize(maxBytes int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(c.Body()) > maxBytes {
			return response.Error(c, fiber.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large")
		}
		return c.Next()
	}
}
