package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newActorApp(capability string) *fiber.App {
	app := fiber.New()
	app.Get("/guarded", RequireActor(), RequireCapability(capability), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestRequireActor_MissingHeader(t *testing.T) {
	app := newActorApp("view_data")

	req := httptest.NewRequest("GET", "/guarded", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireActor_MalformedID(t *testing.T) {
	app := newActorApp("view_data")

	req := httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("X-Actor-Id", "not-a-uuid")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireCapability_Forbidden(t *testing.T) {
	app := newActorApp("manage_org_setup")

	req := httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("X-Actor-Id", uuid.New().String())
	req.Header.Set("X-Actor-Capabilities", "view_data")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRequireCapability_Allowed(t *testing.T) {
	app := newActorApp("manage_org_setup")

	req := httptest.NewRequest("GET", "/guarded", nil)
	req.Header.Set("X-Actor-Id", uuid.New().String())
	req.Header.Set("X-Actor-Capabilities", "view_data, manage_org_setup")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
