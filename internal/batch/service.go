package batch

import (
	"context"
	"time"

	"reloop-backend/internal/constants"
	"reloop-backend/internal/models"
	"reloop-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	DB *gorm.DB
}

// Actor is the authenticated caller with its pre-computed capability set.
type Actor struct {
	ID           uuid.UUID
	Capabilities map[string]bool
}

type CreateBatchInput struct {
	Method         models.TransactionMethod
	OrganizationID uuid.UUID
	OriginID       *uuid.UUID
	DestinationID  *uuid.UUID
	RecordIDs      []uuid.UUID
}

// CreateBatch groups existing unowned records into a new batch. Each record
// is claimed with a conditional update so two concurrent batches can never
// own the same record; aggregates are computed inside the same transaction.
func (s *Service) CreateBatch(ctx context.Context, in CreateBatchInput) (*models.Transaction, error) {
	if !in.Method.Valid() {
		return nil, apperrors.Validation("transaction_method", "must be one of origin, transport, transform")
	}
	if len(in.RecordIDs) == 0 {
		return nil, apperrors.Validation("record_ids", "at least one record is required")
	}
	if in.OrganizationID == uuid.Nil {
		return nil, apperrors.Validation("organization_id", "organization_id is required")
	}

	var batch *models.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch = &models.Transaction{
			TransactionMethod:  in.Method,
			OrganizationID:     in.OrganizationID,
			OriginID:           in.OriginID,
			DestinationID:      in.DestinationID,
			Status:             models.RecordPending,
			TransactionRecords: datatypes.NewJSONSlice(in.RecordIDs),
			WeightKg:           decimal.Zero,
			TotalAmount:        decimal.Zero,
			Lifecycle:          models.Lifecycle{Active: true},
		}
		if err := tx.Create(batch).Error; err != nil {
			return err
		}
		if err := claimRecords(tx, batch.ID, in.RecordIDs); err != nil {
			return err
		}
		return recomputeLocked(tx, batch)
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// claimRecords sets created_transaction_id on each record, refusing records
// that are missing, soft-deleted, or already owned by another batch.
func claimRecords(tx *gorm.DB, batchID uuid.UUID, recordIDs []uuid.UUID) error {
	now := time.Now()
	for _, id := range recordIDs {
		res := tx.Model(&models.TransactionRecord{}).
			Where("id = ? AND created_transaction_id IS NULL AND deleted_date IS NULL", id).
			Updates(map[string]interface{}{
				"created_transaction_id": batchID,
				"updated_date":           now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			continue
		}
		var record models.TransactionRecord
		if err := tx.Scopes(models.NotDeleted).Where("id = ?", id).First(&record).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("transaction record", id.String())
			}
			return err
		}
		return apperrors.Conflict("record " + id.String() + " is already owned by another batch")
	}
	return nil
}

// RecomputeAggregates recalculates weight_kg, total_amount and
// hazardous_level from the owned, non-deleted records. Idempotent; the read
// and the write share one transaction so a concurrent insert cannot split
// the snapshot.
func (s *Service) RecomputeAggregates(ctx context.Context, batchID uuid.UUID) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var batch models.Transaction
		if err := tx.Scopes(models.NotDeleted).Where("id = ?", batchID).First(&batch).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("transaction", batchID.String())
			}
			return err
		}
		return recomputeLocked(tx, &batch)
	})
}

func recomputeLocked(tx *gorm.DB, batch *models.Transaction) error {
	var records []models.TransactionRecord
	if err := tx.Scopes(models.NotDeleted).
		Where("created_transaction_id = ?", batch.ID).
		Find(&records).Error; err != nil {
		return err
	}

	weight := decimal.Zero
	amount := decimal.Zero
	hazard := 0
	for _, r := range records {
		weight = weight.Add(r.OriginWeightKg)
		amount = amount.Add(r.TotalAmount)
		if r.HazardousLevel > hazard {
			hazard = r.HazardousLevel
		}
	}

	batch.WeightKg = weight
	batch.TotalAmount = amount
	batch.HazardousLevel = hazard
	batch.Touch(time.Now())
	return tx.Save(batch).Error
}

// AddRecords claims additional unowned records for an existing batch and
// recomputes its aggregates. Completed and rejected batches are closed.
func (s *Service) AddRecords(ctx context.Context, batchID uuid.UUID, recordIDs []uuid.UUID) error {
	if len(recordIDs) == 0 {
		return apperrors.Validation("record_ids", "at least one record is required")
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var batch models.Transaction
		if err := tx.Scopes(models.NotDeleted).Where("id = ?", batchID).First(&batch).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("transaction", batchID.String())
			}
			return err
		}
		if batch.Status == models.RecordCompleted || batch.Status == models.RecordRejected {
			return apperrors.InvalidTransition(batchID.String(), string(batch.Status), string(batch.Status))
		}
		if err := claimRecords(tx, batch.ID, recordIDs); err != nil {
			return err
		}
		batch.TransactionRecords = append(batch.TransactionRecords, recordIDs...)
		return recomputeLocked(tx, &batch)
	})
}

// TransitionStatus drives the batch state machine. Batch status tracks but
// does not replace per-record status: a batch cannot complete while any
// owned record is still pending.
func (s *Service) TransitionStatus(ctx context.Context, batchID uuid.UUID, newStatus models.RecordStatus, actor Actor) error {
	if !newStatus.Valid() {
		return apperrors.Validation("status", "unknown status "+string(newStatus))
	}
	if (newStatus == models.RecordApproved || newStatus == models.RecordRejected) && !actor.Capabilities[constants.AuditRecords] {
		return apperrors.Validation("actor", "actor lacks the audit capability")
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var batch models.Transaction
		if err := tx.Scopes(models.NotDeleted).Where("id = ?", batchID).First(&batch).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("transaction", batchID.String())
			}
			return err
		}
		if !batch.Status.CanTransition(newStatus) {
			return apperrors.InvalidTransition(batchID.String(), string(batch.Status), string(newStatus))
		}
		if newStatus == models.RecordCompleted {
			var pending int64
			err := tx.Model(&models.TransactionRecord{}).
				Where("created_transaction_id = ? AND status = ? AND deleted_date IS NULL", batchID, models.RecordPending).
				Count(&pending).Error
			if err != nil {
				return err
			}
			if pending > 0 {
				return apperrors.InvalidTransition(batchID.String(), string(batch.Status), string(newStatus))
			}
		}

		fromStatus := batch.Status
		batch.Status = newStatus
		batch.Touch(time.Now())
		if err := tx.Save(&batch).Error; err != nil {
			return err
		}
		history := models.TransactionStatusHistory{
			TransactionID: &batch.ID,
			FromStatus:    string(fromStatus),
			ToStatus:      string(newStatus),
			ActorID:       actor.ID,
		}
		return tx.Create(&history).Error
	})
}

// BatchWithRecords pairs a batch with its owned records.
type BatchWithRecords struct {
	models.Transaction
	Records []models.TransactionRecord `json:"records"`
}

// GetBatch returns a batch and its owned, non-deleted records.
func (s *Service) GetBatch(ctx context.Context, batchID uuid.UUID) (*BatchWithRecords, error) {
	var batch models.Transaction
	err := s.DB.WithContext(ctx).Scopes(models.NotDeleted).Where("id = ?", batchID).First(&batch).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.NotFound("transaction", batchID.String())
	}
	if err != nil {
		return nil, err
	}
	var records []models.TransactionRecord
	if err := s.DB.WithContext(ctx).Scopes(models.NotDeleted).
		Where("created_transaction_id = ?", batchID).
		Order("created_date ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return &BatchWithRecords{Transaction: batch, Records: records}, nil
}

// ListBatches lists an organization's non-deleted batches, newest first.
func (s *Service) ListBatches(ctx context.Context, organizationID uuid.UUID) ([]models.Transaction, error) {
	var batches []models.Transaction
	err := s.DB.WithContext(ctx).Scopes(models.NotDeleted).
		Where("organization_id = ?", organizationID).
		Order("created_date DESC").
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}
