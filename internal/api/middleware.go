package api

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/yahya159/mobileApp/internal/auth"
)

const claimsKey = "user_claims"

// RequireAuth checks the bearer token on every request. A nil verifier
// disables the check entirely, which is the local development mode.
func RequireAuth(verifier auth.Verifier, log *slog.Logger) fiber.Handler {
	if verifier == nil {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing or malformed authorization header"})
		}
		claims, err := verifier.Verify(c.Context(), token)
		if err != nil {
			log.Warn("token rejected", "error", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}
		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// ClaimsFrom returns the verified claims of the request, nil when auth is
// disabled.
func ClaimsFrom(c *fiber.Ctx) *auth.Claims {
	claims, _ := c.Locals(claimsKey).(*auth.Claims)
	return claims
}
