package ledger

import (
	"reloop-backend/internal/middleware"
	"reloop-backend/internal/models"
	"reloop-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Handlers bundles ledger handlers with dependencies.
type Handlers struct {
	Service *Service
}

func actorFrom(c *fiber.Ctx) (Actor, bool) {
	a := middleware.GetActor(c)
	if a == nil {
		return Actor{}, false
	}
	return Actor{ID: a.ID, Capabilities: a.Capabilities}, true
}

type createRecordBody struct {
	TransactionType    string          `json:"transaction_type"`
	MaterialID         *string         `json:"material_id"`
	MainMaterialID     string          `json:"main_material_id"`
	CategoryID         string          `json:"category_id"`
	OriginQuantity     decimal.Decimal `json:"origin_quantity"`
	OriginWeightKg     decimal.Decimal `json:"origin_weight_kg"`
	OriginPricePerUnit decimal.Decimal `json:"origin_price_per_unit"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	HazardousLevel     int             `json:"hazardous_level"`
	Tags               []models.TagRef `json:"tags"`
	Traceability       []string        `json:"traceability"`
}

// CreateRecord POST /api/v1/records
func (h *Handlers) CreateRecord(c *fiber.Ctx) error {
	var body createRecordBody
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
	var materialID *uuid.UUID
	if body.MaterialID != nil && *body.MaterialID != "" {
		id, err := uuid.Parse(*body.MaterialID)
		if err != nil {
			return response.Error(c, "material_id must be a valid uuid", fiber.StatusBadRequest, nil)
		}
		materialID = &id
	}
	lineage := make([]uuid.UUID, 0, len(body.Traceability))
	for _, raw := range body.Traceability {
		id, err := uuid.Parse(raw)
		if err != nil {
			return response.Error(c, "traceability entries must be valid uuids", fiber.StatusBadRequest, nil)
		}
		lineage = append(lineage, id)
	}

	record, err := h.Service.CreateRecord(c.Context(), CreateRecordInput{
		TransactionType:    models.TransactionType(body.TransactionType),
		MaterialID:         materialID,
		MainMaterialID:     mainID,
		CategoryID:         categoryID,
		OriginQuantity:     body.OriginQuantity,
		OriginWeightKg:     body.OriginWeightKg,
		OriginPricePerUnit: body.OriginPricePerUnit,
		TotalAmount:        body.TotalAmount,
		HazardousLevel:     body.HazardousLevel,
		Tags:               body.Tags,
		Traceability:       lineage,
	})
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.SuccessCreated(c, "Transaction record created", record, nil)
}

// ListByBatch GET /api/v1/records?transaction_id=...
func (h *Handlers) ListByBatch(c *fiber.Ctx) error {
	batchID, err := uuid.Parse(c.Query("transaction_id"))
	if err != nil {
		return response.Error(c, "transaction_id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	records, err := h.Service.ListRecordsByBatch(c.Context(), batchID)
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.Success(c, "Transaction records", records, nil)
}

// GetRecord GET /api/v1/records/:id
func (h *Handlers) GetRecord(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	record, err := h.Service.GetRecord(c.Context(), id)
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.Success(c, "Transaction record", record, nil)
}

type appendTraceabilityBody struct {
	PredecessorIDs []string `json:"predecessor_ids"`
}

// AppendTraceability POST /api/v1/records/:id/traceability
func (h *Handlers) AppendTraceability(c *fiber.Ctx) error {
	recordID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	var body appendTraceabilityBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	ids := make([]uuid.UUID, 0, len(body.PredecessorIDs))
	for _, raw := range body.PredecessorIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return response.Error(c, "predecessor_ids must be valid uuids", fiber.StatusBadRequest, nil)
		}
		ids = append(ids, id)
	}
	if err := h.Service.AppendToTraceability(c.Context(), recordID, ids); err != nil {
		return response.FromAppError(c, err)
	}
	return response.Success(c, "Traceability extended", nil, nil)
}

// ResolveTraceability GET /api/v1/records/:id/traceability
func (h *Handlers) ResolveTraceability(c *fiber.Ctx) error {
	recordID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	lineage, err := h.Service.ResolveTraceability(c.Context(), recordID)
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.Success(c, "Traceability", lineage, nil)
}

type transitionBody struct {
	Status string `json:"status"`
}

// TransitionStatus PATCH /api/v1/records/:id/status
func (h *Handlers) TransitionStatus(c *fiber.Ctx) error {
	recordID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	var body transitionBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	actor, ok := actorFrom(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	if err := h.Service.TransitionStatus(c.Context(), recordID, models.RecordStatus(body.Status), actor); err != nil {
		return response.FromAppError(c, err)
	}
	return response.Success(c, "Status updated", nil, nil)
}

type setMaterialBody struct {
	MaterialID string `json:"material_id"`
}

// SetMaterial PATCH /api/v1/records/:id/material
func (h *Handlers) SetMaterial(c *fiber.Ctx) error {
	recordID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	var body setMaterialBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	materialID, err := uuid.Parse(body.MaterialID)
	if err != nil {
		return response.Error(c, "material_id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	if err := h.Service.SetMaterial(c.Context(), recordID, materialID); err != nil {
		return response.FromAppError(c, err)
	}
	return response.Success(c, "Material resolved", nil, nil)
}
