package batch

import (
	"reloop-backend/internal/middleware"
	"reloop-backend/internal/models"
	"reloop-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles batch handlers with dependencies.
type Handlers struct {
	Service *Service
}

func parseIDList(raw []string) ([]uuid.UUID, bool) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, v := range raw {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

type createBatchBody struct {
	TransactionMethod string   `json:"transaction_method"`
	OrganizationID    string   `json:"organization_id"`
	OriginID          *string  `json:"origin_id"`
	DestinationID     *string  `json:"destination_id"`
	RecordIDs         []string `json:"record_ids"`
}

// CreateBatch POST /api/v1/transactions
func (h *Handlers) CreateBatch(c *fiber.Ctx) error {
	var body createBatchBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	orgID, err := uuid.Parse(body.OrganizationID)
	if err != nil {
		return response.Error(c, "organization_id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	recordIDs, ok := parseIDList(body.RecordIDs)
	if !ok {
		return response.Error(c, "record_ids must contain valid uuids", fiber.StatusBadRequest, nil)
	}
	var originID, destinationID *uuid.UUID
	if body.OriginID != nil && *body.OriginID != "" {
		id, err := uuid.Parse(*body.OriginID)
		if err != nil {
			return response.Error(c, "origin_id must be a valid uuid", fiber.StatusBadRequest, nil)
		}
		originID = &id
	}
	if body.DestinationID != nil && *body.DestinationID != "" {
		id, err := uuid.Parse(*body.DestinationID)
		if err != nil {
			return response.Error(c, "destination_id must be a valid uuid", fiber.StatusBadRequest, nil)
		}
		destinationID = &id
	}

	batch, err := h.Service.CreateBatch(c.Context(), CreateBatchInput{
		Method:         models.TransactionMethod(body.TransactionMethod),
		OrganizationID: orgID,
		OriginID:       originID,
		DestinationID:  destinationID,
		RecordIDs:      recordIDs,
	})
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.SuccessCreated(c, "Transaction created", batch, nil)
}

// GetBatch GET /api/v1/transactions/:id
func (h *Handlers) GetBatch(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	batch, err := h.Service.GetBatch(c.Context(), id)
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.Success(c, "Transaction", batch, nil)
}

// ListBatches GET /api/v1/transactions?organization_id=...
func (h *Handlers) ListBatches(c *fiber.Ctx) error {
	orgID, err := uuid.Parse(c.Query("organization_id"))
	if err != nil {
		return response.Error(c, "organization_id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	batches, err := h.Service.ListBatches(c.Context(), orgID)
	if err != nil {
		return response.FromAppError(c, err)
	}
	return response.Success(c, "Transactions", batches, nil)
}

type addRecordsBody struct {
	RecordIDs []string `json:"record_ids"`
}

// AddRecords POST /api/v1/transactions/:id/records
func (h *Handlers) AddRecords(c *fiber.Ctx) error {
	batchID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	var body addRecordsBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	recordIDs, ok := parseIDList(body.RecordIDs)
	if !ok {
		return response.Error(c, "record_ids must contain valid uuids", fiber.StatusBadRequest, nil)
	}
	if err := h.Service.AddRecords(c.Context(), batchID, recordIDs); err != nil {
		return response.FromAppError(c, err)
	}
	return response.Success(c, "Records added", nil, nil)
}

// Recompute POST /api/v1/transactions/:id/recompute
func (h *Handlers) Recompute(c *fiber.Ctx) error {
	batchID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	if err := h.Service.RecomputeAggregates(c.Context(), batchID); err != nil {
		return response.FromAppError(c, err)
	}
	return response.Success(c, "Aggregates recomputed", nil, nil)
}

type transitionBody struct {
	Status string `json:"status"`
}

// TransitionStatus PATCH /api/v1/transactions/:id/status
func (h *Handlers) TransitionStatus(c *fiber.Ctx) error {
	batchID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	var body transitionBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	a := middleware.GetActor(c)
	if a == nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	actor := Actor{ID: a.ID, Capabilities: a.Capabilities}
	if err := h.Service.TransitionStatus(c.Context(), batchID, models.RecordStatus(body.Status), actor); err != nil {
		return response.FromAppError(c, err)
	}
	return response.Success(c, "Status updated", nil, nil)
}
