package middleware

import (
	"strings"

	"reloop-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const actorLocal = "actor"

// Actor is the already-authenticated caller. Identity and capability
// resolution happen upstream (gateway / identity service); this layer only
// consumes the pre-computed result from the request headers.
type Actor struct {
	ID           uuid.UUID
	Capabilities map[string]bool
}

// Can reports whether the actor holds the given capability.
func (a *Actor) Can(capability string) bool {
	return a != nil && a.Capabilities[capability]
}

// RequireActor parses X-Actor-Id and X-Actor-Capabilities into Locals.
// Returns 401 with the standard error format when the actor id is missing
// or malformed.
func RequireActor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Get("X-Actor-Id"))
		if err != nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		caps := map[string]bool{}
		for _, name := range strings.Split(c.Get("X-Actor-Capabilities"), ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				caps[name] = true
			}
		}
		c.Locals(actorLocal, &Actor{ID: id, Capabilities: caps})
		return c.Next()
	}
}

// RequireCapability returns a handler that rejects actors lacking the capability.
func RequireCapability(capability string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := GetActor(c)
		if actor == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		if !actor.Can(capability) {
			return response.Error(c, "Actor is forbidden from performing this action", fiber.StatusForbidden, nil)
		}
		return c.Next()
	}
}

// GetActor returns the request actor from Locals (nil when unauthenticated).
func GetActor(c *fiber.Ctx) *Actor {
	if a, ok := c.Locals(actorLocal).(*Actor); ok {
		return a
	}
	return nil
}
