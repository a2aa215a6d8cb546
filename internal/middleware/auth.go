// internal/middleware/auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// Context keys for Fiber Locals
const (
	AccountIDContextKey = "accountID"
	DeviceIDContextKey  = "deviceID"
)

// GatewayAuth trusts the identity headers set by the API gateway.
// Expects X-User-ID and X-Device-ID; stores them in Locals.
func GatewayAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Header values alias fasthttp's request buffer; the ids outlive the request.
		accountID := utils.CopyString(strings.TrimSpace(c.Get("X-User-ID")))
		deviceID := utils.CopyString(strings.TrimSpace(c.Get("X-Device-ID")))
		if accountID == "" || deviceID == "" {
			log.Printf("[GATEWAY-AUTH] ❌ REJECTED | IP=%s | Path=%s | UserID=%q | DeviceID=%q",
				c.IP(), c.Path(), accountID, deviceID)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized: missing user/device context from Gateway",
			})
		}
		c.Locals(AccountIDContextKey, accountID)
		c.Locals(DeviceIDContextKey, deviceID)
		return c.Next()
	}
}

// ServiceAuth accepts X-Service-Token or a Bearer token equal to expected.
func ServiceAuth(expected string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get("X-Service-Token")
		if token == "" {
			authHeader := c.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}
		if expected == "" || token != expected {
			log.Printf("[SERVICE-AUTH] ❌ REJECTED | IP=%s | Path=%s | Token=%s",
				c.IP(), c.Path(), MaskToken(token))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized: invalid or missing service token",
			})
		}
		log.Printf("[SERVICE-AUTH] ✅ ACCEPTED | IP=%s | Path=%s", c.IP(), c.Path())
		return c.Next()
	}
}

// MaskToken keeps the first 6 characters of a token for logs.
func MaskToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	if len(token) > 6 {
		return token[:6] + "..."
	}
	return token
}

func GetAccountID(c *fiber.Ctx) (string, bool) {
	accountID, ok := c.Locals(AccountIDContextKey).(string)
	return accountID, ok && accountID != ""
}

func GetDeviceID(c *fiber.Ctx) (string, bool) {
	deviceID, ok := c.Locals(DeviceIDContextKey).(string)
	return deviceID, ok && deviceID != ""
}
