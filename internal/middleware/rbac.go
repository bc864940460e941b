package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-audit-api/internal/models"
	"github.com/noah-isme/gema-audit-api/internal/utils"
)

// RequireRole ensures that the authenticated user possesses one of the allowed roles.
func RequireRole(roles ...models.Role) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(string(role)))
		if normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role := normalizeRoleValue(c.Locals(LocalUserRole))
		if _, ok := allowed[role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

// ActorFromContext builds the actor snapshot of the authenticated user. Unknown roles degrade to
// anonymous so the audit trail still captures who called.
func ActorFromContext(c *fiber.Ctx) models.ActorSnapshot {
	actor := models.ActorSnapshot{
		ID:   localString(c, LocalUserID),
		Role: models.RoleAnonymous,
	}
	if role, err := models.ParseRole(normalizeRoleValue(c.Locals(LocalUserRole))); err == nil {
		actor.Role = role
	}
	actor.Name = localString(c, LocalUserName)
	actor.Email = localString(c, LocalUserEmail)
	if actor.ID == "" {
		actor.ID = string(models.RoleAnonymous)
	}
	return actor
}

func localString(c *fiber.Ctx, key string) string {
	if value, ok := c.Locals(key).(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		if value == nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}
