package ledger

import (
	"context"
	"time"

	"reloop-backend/internal/catalog"
	"reloop-backend/internal/constants"
	"reloop-backend/internal/models"
	"reloop-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AggregateRecomputer is implemented by the batch service; called after a
// record completes so the owning batch's aggregates stay consistent.
type AggregateRecomputer interface {
	RecomputeAggregates(ctx context.Context, batchID uuid.UUID) error
}

type Service struct {
	DB         *gorm.DB
	Recomputer AggregateRecomputer
}

// Actor is the authenticated caller with its pre-computed capability set.
type Actor struct {
	ID           uuid.UUID
	Capabilities map[string]bool
}

func (a Actor) can(capability string) bool {
	return a.Capabilities[capability]
}

type CreateRecordInput struct {
	TransactionType    models.TransactionType
	MaterialID         *uuid.UUID
	MainMaterialID     uuid.UUID
	CategoryID         uuid.UUID
	OriginQuantity     decimal.Decimal
	OriginWeightKg     decimal.Decimal
	OriginPricePerUnit decimal.Decimal
	TotalAmount        decimal.Decimal
	HazardousLevel     int
	Tags               []models.TagRef
	Traceability       []uuid.UUID
}

func validateScale(field string, d decimal.Decimal, places int32) error {
	if d.IsNegative() {
		return apperrors.Validation(field, "must be non-negative")
	}
	if d.Exponent() < -places {
		return apperrors.Validation(field, "exceeds allowed decimal precision")
	}
	return nil
}

// CreateRecord validates classification consistency, numeric ranges and the
// supplied lineage, then inserts a pending record.
func (s *Service) CreateRecord(ctx context.Context, in CreateRecordInput) (*models.TransactionRecord, error) {
	if !in.TransactionType.Valid() {
		return nil, apperrors.Validation("transaction_type", "must be one of manual_input, rewards, iot")
	}
	if err := validateScale("origin_quantity", in.OriginQuantity, 4); err != nil {
		return nil, err
	}
	if err := validateScale("origin_weight_kg", in.OriginWeightKg, 4); err != nil {
		return nil, err
	}
	if err := validateScale("origin_price_per_unit", in.OriginPricePerUnit, 4); err != nil {
		return nil, err
	}
	if err := validateScale("total_amount", in.TotalAmount, 2); err != nil {
		return nil, err
	}
	if in.HazardousLevel < 0 || in.HazardousLevel > 5 {
		return nil, apperrors.Validation("hazardous_level", "must be between 0 and 5")
	}

	var record *models.TransactionRecord
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var main models.MainMaterial
		if err := tx.Scopes(models.NotDeleted).Where("id = ?", in.MainMaterialID).First(&main).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("main material", in.MainMaterialID.String())
			}
			return err
		}
		var category models.Category
		if err := tx.Scopes(models.NotDeleted).Where("id = ?", in.CategoryID).First(&category).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("category", in.CategoryID.String())
			}
			return err
		}
		// material_id may be null: a record captured with coarse classification
		// only, awaiting a concrete material match.
		if in.MaterialID != nil {
			var material models.Material
			if err := tx.Scopes(models.NotDeleted).Where("id = ?", *in.MaterialID).First(&material).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return apperrors.NotFound("material", in.MaterialID.String())
				}
				return err
			}
			if material.MainMaterialID != in.MainMaterialID {
				return apperrors.Validation("material_id", "material does not belong to the stated main material")
			}
			if material.CategoryID != in.CategoryID {
				return apperrors.Validation("material_id", "material does not belong to the stated category")
			}
		}
		if err := catalog.ValidateTagRefs(tx, in.Tags); err != nil {
			return err
		}
		if err := validateLineage(tx, in.Traceability, time.Now()); err != nil {
			return err
		}

		record = &models.TransactionRecord{
			Status:             models.RecordPending,
			TransactionType:    in.TransactionType,
			MaterialID:         in.MaterialID,
			MainMaterialID:     in.MainMaterialID,
			CategoryID:         in.CategoryID,
			OriginQuantity:     in.OriginQuantity,
			OriginWeightKg:     in.OriginWeightKg,
			OriginPricePerUnit: in.OriginPricePerUnit,
			TotalAmount:        in.TotalAmount,
			HazardousLevel:     in.HazardousLevel,
			Tags:               datatypes.NewJSONSlice(in.Tags),
			Traceability:       datatypes.NewJSONSlice(in.Traceability),
			Lifecycle:          models.Lifecycle{Active: true},
		}
		if err := tx.Create(record).Error; err != nil {
			// The check constraints mirror the application validation above;
			// reaching them means a validation gap, not a caller mistake.
			log.Error().Err(err).Msg("transaction record insert violated a database constraint")
			return apperrors.ConstraintViolation(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// validateLineage checks every referenced id resolves to a live record and
// that the chain reads strictly chronologically, oldest first, entirely in
// the past relative to cutoff.
func validateLineage(tx *gorm.DB, lineage []uuid.UUID, cutoff time.Time) error {
	prev := time.Time{}
	for _, id := range lineage {
		var ref models.TransactionRecord
		if err := tx.Scopes(models.NotDeleted).Where("id = ?", id).First(&ref).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("traceability record", id.String())
			}
			return err
		}
		if !ref.CreatedAt.Before(cutoff) {
			return apperrors.Validation("traceability", "referenced record "+id.String()+" is not older than the record being written")
		}
		if !prev.IsZero() && !ref.CreatedAt.After(prev) {
			return apperrors.Validation("traceability", "lineage must be strictly chronological, oldest first")
		}
		prev = ref.CreatedAt
	}
	return nil
}

// AppendToTraceability extends a record's lineage with predecessors, keeping
// the chain chronological and refusing any append that would make the record
// its own ancestor.
func (s *Service) AppendToTraceability(ctx context.Context, recordID uuid.UUID, predecessorIDs []uuid.UUID) error {
	if len(predecessorIDs) == 0 {
		return apperrors.Validation("predecessor_ids", "at least one predecessor is required")
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.TransactionRecord
		if err := tx.Scopes(models.NotDeleted).Where("id = ?", recordID).First(&record).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("transaction record", recordID.String())
			}
			return err
		}

		lastCreated := time.Time{}
		if n := len(record.Traceability); n > 0 {
			var last models.TransactionRecord
			if err := tx.Where("id = ?", record.Traceability[n-1]).First(&last).Error; err != nil {
				return err
			}
			lastCreated = last.CreatedAt
		}

		for _, predID := range predecessorIDs {
			if predID == recordID {
				return apperrors.CycleDetected(recordID.String())
			}
			var pred models.TransactionRecord
			if err := tx.Scopes(models.NotDeleted).Where("id = ?", predID).First(&pred).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return apperrors.NotFound("traceability record", predID.String())
				}
				return err
			}
			if !pred.CreatedAt.Before(record.CreatedAt) {
				return apperrors.Validation("predecessor_ids", "predecessor "+predID.String()+" is not older than the record")
			}
			if !lastCreated.IsZero() && !pred.CreatedAt.After(lastCreated) {
				return apperrors.Validation("predecessor_ids", "appended lineage must stay strictly chronological")
			}
			if err := reachable(tx, pred, recordID); err != nil {
				return err
			}
			lastCreated = pred.CreatedAt
			record.Traceability = append(record.Traceability, predID)
		}

		record.Touch(time.Now())
		return tx.Save(&record).Error
	})
}

// reachable walks the predecessor's lineage transitively and fails with
// CycleDetected if target appears anywhere in it. The schema stores lineage
// as plain arrays, so nothing below the application stops a cycle.
func reachable(tx *gorm.DB, from models.TransactionRecord, target uuid.UUID) error {
	seen := map[uuid.UUID]bool{from.ID: true}
	frontier := append([]uuid.UUID{}, from.Traceability...)
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		if id == target {
			return apperrors.CycleDetected(target.String())
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		var rec models.TransactionRecord
		if err := tx.Where("id = ?", id).First(&rec).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				continue
			}
			return err
		}
		frontier = append(frontier, rec.Traceability...)
	}
	return nil
}

// TransitionStatus drives the record state machine:
// pending -> approved | rejected, approved -> completed.
// approve/reject require the audit capability; every successful transition
// appends a history row, and completion triggers the owning batch's
// aggregate recompute.
func (s *Service) TransitionStatus(ctx context.Context, recordID uuid.UUID, newStatus models.RecordStatus, actor Actor) error {
	if !newStatus.Valid() {
		return apperrors.Validation("status", "unknown status "+string(newStatus))
	}
	if (newStatus == models.RecordApproved || newStatus == models.RecordRejected) && !actor.can(constants.AuditRecords) {
		return apperrors.Validation("actor", "actor lacks the audit capability")
	}

	var batchID *uuid.UUID
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.TransactionRecord
		if err := tx.Scopes(models.NotDeleted).Where("id = ?", recordID).First(&record).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("transaction record", recordID.String())
			}
			return err
		}
		if !record.Status.CanTransition(newStatus) {
			return apperrors.InvalidTransition(recordID.String(), string(record.Status), string(newStatus))
		}

		now := time.Now()
		fromStatus := record.Status
		record.Status = newStatus
		switch newStatus {
		case models.RecordApproved:
			record.ApprovedByID = &actor.ID
		case models.RecordCompleted:
			record.CompletedDate = &now
		}
		record.Touch(now)
		if err := tx.Save(&record).Error; err != nil {
			return err
		}

		history := models.TransactionStatusHistory{
			RecordID:   &record.ID,
			FromStatus: string(fromStatus),
			ToStatus:   string(newStatus),
			ActorID:    actor.ID,
		}
		if err := tx.Create(&history).Error; err != nil {
			return err
		}

		if newStatus == models.RecordCompleted {
			batchID = record.CreatedTransactionID
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Recompute is idempotent and runs in its own transaction; a failure here
	// leaves the batch stale but retryable, never the record inconsistent.
	if batchID != nil && s.Recomputer != nil {
		if err := s.Recomputer.RecomputeAggregates(ctx, *batchID); err != nil {
			log.Error().Err(err).Str("batch_id", batchID.String()).Msg("aggregate recompute after completion failed")
		}
	}
	return nil
}

// SetMaterial resolves a partially-classified record to a concrete material.
// The material must agree with the record's main material and category.
func (s *Service) SetMaterial(ctx context.Context, recordID, materialID uuid.UUID) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.TransactionRecord
		if err := tx.Scopes(models.NotDeleted).Where("id = ?", recordID).First(&record).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("transaction record", recordID.String())
			}
			return err
		}
		var material models.Material
		if err := tx.Scopes(models.NotDeleted).Where("id = ?", materialID).First(&material).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("material", materialID.String())
			}
			return err
		}
		if material.MainMaterialID != record.MainMaterialID {
			return apperrors.Validation("material_id", "material does not belong to the record's main material")
		}
		if material.CategoryID != record.CategoryID {
			return apperrors.Validation("material_id", "material does not belong to the record's category")
		}
		record.MaterialID = &materialID
		record.Touch(time.Now())
		return tx.Save(&record).Error
	})
}

// GetRecord returns a record by id, excluding soft-deleted rows.
func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*models.TransactionRecord, error) {
	var record models.TransactionRecord
	err := s.DB.WithContext(ctx).Scopes(models.NotDeleted).Where("id = ?", id).First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.NotFound("transaction record", id.String())
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListRecordsByBatch lists the non-deleted records owned by a batch.
func (s *Service) ListRecordsByBatch(ctx context.Context, batchID uuid.UUID) ([]models.TransactionRecord, error) {
	var records []models.TransactionRecord
	err := s.DB.WithContext(ctx).Scopes(models.NotDeleted).
		Where("created_transaction_id = ?", batchID).
		Order("created_date ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ResolveTraceability returns the record's lineage as full records, oldest
// first, for audit tooling.
func (s *Service) ResolveTraceability(ctx context.Context, recordID uuid.UUID) ([]models.TransactionRecord, error) {
	var record models.TransactionRecord
	err := s.DB.WithContext(ctx).Scopes(models.NotDeleted).Where("id = ?", recordID).First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.NotFound("transaction record", recordID.String())
	}
	if err != nil {
		return nil, err
	}
	out := make([]models.TransactionRecord, 0, len(record.Traceability))
	for _, id := range record.Traceability {
		var ref models.TransactionRecord
		if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&ref).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, apperrors.NotFound("traceability record", id.String())
			}
			return nil, err
		}
		out = append(out, ref)
	}
	return out, nil
}
