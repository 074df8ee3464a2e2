package orgsetup

import (
	"reloop-backend/internal/models"
	"reloop-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles org-setup handlers with dependencies.
type Handlers struct {
	Service *Service
}

type submitVersionBody struct {
	OrganizationID string                 `json:"organization_id"`
	RootNodes      []models.Node          `json:"root_nodes"`
	HubNode        models.Node            `json:"hub_node"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// SubmitVersion POST /api/v1/org-setup/versions
func (h *Handlers) SubmitVersion(c *fiber.Ctx) error {
	var body submitVersionBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	orgID, err := uuid.Parse(body.OrganizationID)
	if err != nil {
		return response.Error(c, "organization_id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	version, err := h.Service.SubmitVersion(c.Context(), SubmitVersionInput{
		OrganizationID: orgID,
		RootNodes:      body.RootNodes,
		HubNode:        body.HubNode,
		Metadata:       body.Metadata,
	})
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.SuccessCreated(c, "Hierarchy version submitted", version, nil)
}

// GetActiveVersion GET /api/v1/org-setup/:organization_id/active
func (h *Handlers) GetActiveVersion(c *fiber.Ctx) error {
	orgID, err := uuid.Parse(c.Params("organization_id"))
	if err != nil {
		return response.Error(c, "organization_id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	version, err := h.Service.GetActiveVersion(c.Context(), orgID)
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.Success(c, "Active hierarchy version", version, nil)
}

// ListVersions GET /api/v1/org-setup/:organization_id/versions
func (h *Handlers) ListVersions(c *fiber.Ctx) error {
	orgID, err := uuid.Parse(c.Params("organization_id"))
	if err != nil {
		return response.Error(c, "organization_id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	versions, err := h.Service.ListVersions(c.Context(), orgID)
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.Success(c, "Hierarchy versions", versions, nil)
}
