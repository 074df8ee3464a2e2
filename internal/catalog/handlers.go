package catalog

import (
	"reloop-backend/internal/models"
	"reloop-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Handlers bundles catalog handlers with dependencies.
type Handlers struct {
	Service *Service
}

type createMaterialBody struct {
	Name           string          `json:"name"`
	MainMaterialID string          `json:"main_material_id"`
	CategoryID     string          `json:"category_id"`
	UnitWeight     decimal.Decimal `json:"unit_weight"`
	CalcGHG        decimal.Decimal `json:"calc_ghg"`
	Tags           []models.TagRef `json:"tags"`
}

// CreateMaterial POST /api/v1/catalog/materials
func (h *Handlers) CreateMaterial(c *fiber.Ctx) error {
	var body createMaterialBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	mainID, err := uuid.Parse(body.MainMaterialID)
	if err != nil {
		return response.Error(c, "main_material_id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	categoryID, err := uuid.Parse(body.CategoryID)
	if err != nil {
		return response.Error(c, "category_id must be a valid uuid", fiber.StatusBadRequest, nil)
	}

	material, err := h.Service.CreateMaterial(c.Context(), CreateMaterialInput{
		Name:           body.Name,
		MainMaterialID: mainID,
		CategoryID:     categoryID,
		UnitWeight:     body.UnitWeight,
		CalcGHG:        body.CalcGHG,
		Tags:           body.Tags,
	})
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.SuccessCreated(c, "Material created", material, nil)
}

// GetMaterial GET /api/v1/catalog/materials/:id
func (h *Handlers) GetMaterial(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	material, err := h.Service.GetMaterial(c.Context(), id)
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.Success(c, "Material", material, nil)
}

// ListMaterials GET /api/v1/catalog/materials
func (h *Handlers) ListMaterials(c *fiber.Ctx) error {
	var filter ListMaterialsFilter
	if v := c.Query("main_material_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return response.Error(c, "main_material_id must be a valid uuid", fiber.StatusBadRequest, nil)
		}
		filter.MainMaterialID = &id
	}
	if v := c.Query("category_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return response.Error(c, "category_id must be a valid uuid", fiber.StatusBadRequest, nil)
		}
		filter.CategoryID = &id
	}
	materials, err := h.Service.ListMaterials(c.Context(), filter)
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.Success(c, "Materials", materials, nil)
}

// DeleteMaterial DELETE /api/v1/catalog/materials/:id (soft delete)
func (h *Handlers) DeleteMaterial(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	if err := h.Service.SoftDeleteMaterial(c.Context(), id); err != nil {
		return response.FromAppError(c, err)
	}
	return response.Success(c, "Material deleted", nil, nil)
}

type nameBody struct {
	Name string `json:"name"`
}

// CreateMainMaterial POST /api/v1/catalog/main-materials
func (h *Handlers) CreateMainMaterial(c *fiber.Ctx) error {
	var body nameBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	main, err := h.Service.CreateMainMaterial(c.Context(), body.Name)
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.SuccessCreated(c, "Main material created", main, nil)
}

// CreateCategory POST /api/v1/catalog/categories
func (h *Handlers) CreateCategory(c *fiber.Ctx) error {
	var body nameBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	category, err := h.Service.CreateCategory(c.Context(), body.Name)
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.SuccessCreated(c, "Category created", category, nil)
}

// CreateTagGroup POST /api/v1/catalog/tag-groups
func (h *Handlers) CreateTagGroup(c *fiber.Ctx) error {
	var body nameBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	group, err := h.Service.CreateTagGroup(c.Context(), body.Name)
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.SuccessCreated(c, "Tag group created", group, nil)
}

type createTagBody struct {
	TagGroupID string `json:"tag_group_id"`
	Name       string `json:"name"`
}

// CreateTag POST /api/v1/catalog/tags
func (h *Handlers) CreateTag(c *fiber.Ctx) error {
	var body createTagBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	groupID, err := uuid.Parse(body.TagGroupID)
	if err != nil {
		return response.Error(c, "tag_group_id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	tag, err := h.Service.CreateTag(c.Context(), groupID, body.Name)
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.SuccessCreated(c, "Tag created", tag, nil)
}

// ListTagGroups GET /api/v1/catalog/tag-groups
func (h *Handlers) ListTagGroups(c *fiber.Ctx) error {
	groups, err := h.Service.ListTagGroups(c.Context())
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.Success(c, "Tag groups", groups, nil)
}
