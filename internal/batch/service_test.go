package batch

import (
	"context"
	"testing"

	"reloop-backend/internal/constants"
	"reloop-backend/internal/models"
	"reloop-backend/internal/pkg/apperrors"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupBatchTest(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.TransactionRecord{}, &models.Transaction{},
		&models.TransactionStatusHistory{},
	))
	return &Service{DB: db}, db
}

func seedRecord(t *testing.T, db *gorm.DB, weight, amount string, hazard int) models.TransactionRecord {
	t.Helper()
	record := models.TransactionRecord{
		Status:          models.RecordPending,
		TransactionType: models.TypeManualInput,
		MainMaterialID:  uuid.New(),
		CategoryID:      uuid.New(),
		OriginWeightKg:  decimal.RequireFromString(weight),
		TotalAmount:     decimal.RequireFromString(amount),
		HazardousLevel:  hazard,
		Lifecycle:       models.Lifecycle{Active: true},
	}
	require.NoError(t, db.Create(&record).Error)
	return record
}

func TestCreateBatch_EmptyRecords(t *testing.T) {
	s, _ := setupBatchTest(t)
	_, err := s.CreateBatch(context.Background(), CreateBatchInput{
		Method:         models.MethodOrigin,
		OrganizationID: uuid.New(),
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreateBatch_InvalidMethod(t *testing.T) {
	s, db := setupBatchTest(t)
	r := seedRecord(t, db, "1", "1.00", 0)
	_, err := s.CreateBatch(context.Background(), CreateBatchInput{
		Method:         "teleport",
		OrganizationID: uuid.New(),
		RecordIDs:      []uuid.UUID{r.ID},
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreateBatch_Aggregates(t *testing.T) {
	s, db := setupBatchTest(t)
	r1 := seedRecord(t, db, "10.0", "100.00", 0)

	batch, err := s.CreateBatch(context.Background(), CreateBatchInput{
		Method:         models.MethodOrigin,
		OrganizationID: uuid.New(),
		RecordIDs:      []uuid.UUID{r1.ID},
	})
	require.NoError(t, err)
	assert.True(t, batch.WeightKg.Equal(decimal.RequireFromString("10.0")), "weight %s", batch.WeightKg)
	assert.True(t, batch.TotalAmount.Equal(decimal.RequireFromString("100.00")), "amount %s", batch.TotalAmount)

	var reloaded models.TransactionRecord
	require.NoError(t, db.Where("id = ?", r1.ID).First(&reloaded).Error)
	require.NotNil(t, reloaded.CreatedTransactionID)
	assert.Equal(t, batch.ID, *reloaded.CreatedTransactionID)
}

func TestCreateBatch_HazardousLevelIsMax(t *testing.T) {
	s, db := setupBatchTest(t)
	r1 := seedRecord(t, db, "2.5", "10.00", 1)
	r2 := seedRecord(t, db, "7.5", "30.00", 4)

	batch, err := s.CreateBatch(context.Background(), CreateBatchInput{
		Method:         models.MethodTransport,
		OrganizationID: uuid.New(),
		RecordIDs:      []uuid.UUID{r1.ID, r2.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, batch.HazardousLevel)
	assert.True(t, batch.WeightKg.Equal(decimal.RequireFromString("10.0")))
	assert.True(t, batch.TotalAmount.Equal(decimal.RequireFromString("40.00")))
}

func TestCreateBatch_RecordAlreadyOwned(t *testing.T) {
	s, db := setupBatchTest(t)
	r1 := seedRecord(t, db, "10.0", "100.00", 0)

	_, err := s.CreateBatch(context.Background(), CreateBatchInput{
		Method:         models.MethodOrigin,
		OrganizationID: uuid.New(),
		RecordIDs:      []uuid.UUID{r1.ID},
	})
	require.NoError(t, err)

	_, err = s.CreateBatch(context.Background(), CreateBatchInput{
		Method:         models.MethodOrigin,
		OrganizationID: uuid.New(),
		RecordIDs:      []uuid.UUID{r1.ID},
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	// The failed batch must not persist (no partial writes).
	var batches int64
	require.NoError(t, db.Model(&models.Transaction{}).Count(&batches).Error)
	assert.EqualValues(t, 1, batches)
}

func TestCreateBatch_UnknownRecord(t *testing.T) {
	s, _ := setupBatchTest(t)
	_, err := s.CreateBatch(context.Background(), CreateBatchInput{
		Method:         models.MethodOrigin,
		OrganizationID: uuid.New(),
		RecordIDs:      []uuid.UUID{uuid.New()},
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRecomputeAggregates_Idempotent(t *testing.T) {
	s, db := setupBatchTest(t)
	r1 := seedRecord(t, db, "3.1415", "10.50", 2)
	r2 := seedRecord(t, db, "2.0000", "5.25", 1)

	batch, err := s.CreateBatch(context.Background(), CreateBatchInput{
		Method:         models.MethodTransform,
		OrganizationID: uuid.New(),
		RecordIDs:      []uuid.UUID{r1.ID, r2.ID},
	})
	require.NoError(t, err)

	require.NoError(t, s.RecomputeAggregates(context.Background(), batch.ID))
	require.NoError(t, s.RecomputeAggregates(context.Background(), batch.ID))

	var reloaded models.Transaction
	require.NoError(t, db.Where("id = ?", batch.ID).First(&reloaded).Error)
	assert.True(t, reloaded.WeightKg.Equal(decimal.RequireFromString("5.1415")))
	assert.True(t, reloaded.TotalAmount.Equal(decimal.RequireFromString("15.75")))
	assert.Equal(t, 2, reloaded.HazardousLevel)
}

func TestRecomputeAggregates_SkipsSoftDeletedRecords(t *testing.T) {
	s, db := setupBatchTest(t)
	r1 := seedRecord(t, db, "4", "8.00", 0)
	r2 := seedRecord(t, db, "6", "12.00", 3)

	batch, err := s.CreateBatch(context.Background(), CreateBatchInput{
		Method:         models.MethodOrigin,
		OrganizationID: uuid.New(),
		RecordIDs:      []uuid.UUID{r1.ID, r2.ID},
	})
	require.NoError(t, err)

	var rec models.TransactionRecord
	require.NoError(t, db.Where("id = ?", r2.ID).First(&rec).Error)
	rec.SoftDelete(rec.UpdatedAt)
	require.NoError(t, db.Save(&rec).Error)

	require.NoError(t, s.RecomputeAggregates(context.Background(), batch.ID))

	var reloaded models.Transaction
	require.NoError(t, db.Where("id = ?", batch.ID).First(&reloaded).Error)
	assert.True(t, reloaded.WeightKg.Equal(decimal.RequireFromString("4")))
	assert.True(t, reloaded.TotalAmount.Equal(decimal.RequireFromString("8.00")))
	assert.Equal(t, 0, reloaded.HazardousLevel)
}

func TestAddRecords(t *testing.T) {
	s, db := setupBatchTest(t)
	r1 := seedRecord(t, db, "1", "2.00", 0)
	r2 := seedRecord(t, db, "3", "4.00", 5)

	batch, err := s.CreateBatch(context.Background(), CreateBatchInput{
		Method:         models.MethodOrigin,
		OrganizationID: uuid.New(),
		RecordIDs:      []uuid.UUID{r1.ID},
	})
	require.NoError(t, err)

	require.NoError(t, s.AddRecords(context.Background(), batch.ID, []uuid.UUID{r2.ID}))

	got, err := s.GetBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Len(t, got.Records, 2)
	assert.True(t, got.WeightKg.Equal(decimal.RequireFromString("4")))
	assert.Equal(t, 5, got.HazardousLevel)
}

func batchAuditor() Actor {
	return Actor{ID: uuid.New(), Capabilities: map[string]bool{constants.AuditRecords: true}}
}

func TestTransitionStatus_CannotCompleteWithPendingRecords(t *testing.T) {
	s, db := setupBatchTest(t)
	r1 := seedRecord(t, db, "1", "2.00", 0)

	batch, err := s.CreateBatch(context.Background(), CreateBatchInput{
		Method:         models.MethodOrigin,
		OrganizationID: uuid.New(),
		RecordIDs:      []uuid.UUID{r1.ID},
	})
	require.NoError(t, err)
	actor := batchAuditor()
	require.NoError(t, s.TransitionStatus(context.Background(), batch.ID, models.RecordApproved, actor))

	// r1 is still pending, so the batch may not complete yet.
	err = s.TransitionStatus(context.Background(), batch.ID, models.RecordCompleted, actor)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	require.NoError(t, db.Model(&models.TransactionRecord{}).
		Where("id = ?", r1.ID).
		Update("status", models.RecordCompleted).Error)
	require.NoError(t, s.TransitionStatus(context.Background(), batch.ID, models.RecordCompleted, actor))
}

func TestTransitionStatus_WritesHistory(t *testing.T) {
	s, db := setupBatchTest(t)
	r1 := seedRecord(t, db, "1", "2.00", 0)

	batch, err := s.CreateBatch(context.Background(), CreateBatchInput{
		Method:         models.MethodOrigin,
		OrganizationID: uuid.New(),
		RecordIDs:      []uuid.UUID{r1.ID},
	})
	require.NoError(t, err)
	require.NoError(t, s.TransitionStatus(context.Background(), batch.ID, models.RecordApproved, batchAuditor()))

	var history []models.TransactionStatusHistory
	require.NoError(t, db.Where("transaction_id = ?", batch.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, string(models.RecordPending), history[0].FromStatus)
	assert.Equal(t, string(models.RecordApproved), history[0].ToStatus)
}

func TestAddRecords_ClosedBatch(t *testing.T) {
	s, db := setupBatchTest(t)
	r1 := seedRecord(t, db, "1", "2.00", 0)
	r2 := seedRecord(t, db, "1", "2.00", 0)

	batch, err := s.CreateBatch(context.Background(), CreateBatchInput{
		Method:         models.MethodOrigin,
		OrganizationID: uuid.New(),
		RecordIDs:      []uuid.UUID{r1.ID},
	})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Transaction{}).
		Where("id = ?", batch.ID).
		Update("status", models.RecordRejected).Error)

	err = s.AddRecords(context.Background(), batch.ID, []uuid.UUID{r2.ID})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}
