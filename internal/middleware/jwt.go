package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserIDKey is the Locals key the authenticated user id is stored under.
const UserIDKey = "user_id"

// Authorizer validates an access token and returns its user id.
type Authorizer interface {
	Authorize(ctx context.Context, accessToken string) (int64, error)
}

// JWTAuth returns a middleware that validates bearer access tokens, including
// their version against the user's current one.
func JWTAuth(authz Authorizer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(header[len("Bearer "):])

		uid, err := authz.Authorize(c.UserContext(), token)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "Please authenticate")
		}

		c.Locals(UserIDKey, uid)
		return c.Next()
	}
}
