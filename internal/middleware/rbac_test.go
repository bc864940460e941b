package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-audit-api/internal/models"
)

func TestRequireRoleAllowsAuthorizedRoles(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(LocalUserRole, "Admin")
		return c.Next()
	})
	app.Use(RequireRole(models.RoleAdmin, models.RolePrincipal))
	app.Get("/admin", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireRoleRejectsUnauthorizedRoles(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(LocalUserRole, "teacher")
		return c.Next()
	})
	app.Use(RequireRole(models.RoleAdmin, models.RolePrincipal))
	app.Get("/admin", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestActorFromContext(t *testing.T) {
	app := fiber.New()
	var actor models.ActorSnapshot
	app.Get("/", func(c *fiber.Ctx) error {
		c.Locals(LocalUserID, "u-42")
		c.Locals(LocalUserRole, "Counselor")
		c.Locals(LocalUserEmail, "counselor@school.test")
		actor = ActorFromContext(c)
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	require.Equal(t, "u-42", actor.ID)
	require.Equal(t, models.RoleCounselor, actor.Role)
	require.Equal(t, "counselor@school.test", actor.Email)
}

func TestActorFromContextDefaultsToAnonymous(t *testing.T) {
	app := fiber.New()
	var actor models.ActorSnapshot
	app.Get("/", func(c *fiber.Ctx) error {
		c.Locals(LocalUserRole, "janitor")
		actor = ActorFromContext(c)
		return c.SendStatus(fiber.StatusNoContent)
	})

	_, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, "anonymous", actor.ID)
	require.Equal(t, models.RoleAnonymous, actor.Role)
}
