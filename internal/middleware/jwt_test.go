package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-audit-api/internal/models"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func protectedApp(actor *models.ActorSnapshot) *fiber.App {
	app := fiber.New()
	app.Use(JWTProtected(testSecret))
	app.Get("/", func(c *fiber.Ctx) error {
		*actor = ActorFromContext(c)
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestJWTProtectedExposesActorClaims(t *testing.T) {
	var actor models.ActorSnapshot
	app := protectedApp(&actor)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{
		"sub":   "u-7",
		"role":  "Principal",
		"name":  "Pat Principal",
		"email": "pat@school.test",
	}))

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	require.Equal(t, models.ActorSnapshot{ID: "u-7", Role: models.RolePrincipal, Name: "Pat Principal", Email: "pat@school.test"}, actor)
}

func TestJWTProtectedAcceptsNumericSubjects(t *testing.T) {
	var actor models.ActorSnapshot
	app := protectedApp(&actor)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{
		"user_id": 42,
		"roles":   []string{"teacher"},
	}))

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	require.Equal(t, "42", actor.ID)
	require.Equal(t, models.RoleTeacher, actor.Role)
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	cases := map[string]string{
		"missing header":  "",
		"wrong scheme":    "Basic dXNlcjpwYXNz",
		"wrong secret":    "Bearer " + signToken(t, "other-secret", jwt.MapClaims{"sub": "u-1"}),
		"expired":         "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u-1", "exp": time.Now().Add(-time.Minute).Unix()}),
		"missing subject": "Bearer " + signToken(t, testSecret, jwt.MapClaims{"role": "admin"}),
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			var actor models.ActorSnapshot
			app := protectedApp(&actor)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}
