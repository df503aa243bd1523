package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/reelsaver/api/pkg/response"
)

// WorkerAuth guards internal worker endpoints with a shared bearer secret.
// An empty secret disables the endpoints.
func WorkerAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return response.Forbidden(c, "Worker endpoint disabled")
		}
		token, ok := BearerToken(c)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			return response.Unauthorized(c, "Invalid worker credentials")
		}
		return c.Next()
	}
}
