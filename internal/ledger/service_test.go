package ledger

import (
	"context"
	"testing"
	"time"

	"reloop-backend/internal/constants"
	"reloop-backend/internal/models"
	"reloop-backend/internal/pkg/apperrors"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixtures struct {
	main     models.MainMaterial
	category models.Category
	material models.Material
}

func setupLedgerTest(t *testing.T) (*Service, *gorm.DB, fixtures) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.MainMaterial{}, &models.Category{}, &models.Material{},
		&models.TagGroup{}, &models.Tag{},
		&models.TransactionRecord{}, &models.Transaction{},
		&models.TransactionStatusHistory{},
	))

	fx := fixtures{
		main:     models.MainMaterial{Name: "Plastics", Lifecycle: models.Lifecycle{Active: true}},
		category: models.Category{Name: "Packaging", Lifecycle: models.Lifecycle{Active: true}},
	}
	require.NoError(t, db.Create(&fx.main).Error)
	require.NoError(t, db.Create(&fx.category).Error)
	fx.material = models.Material{
		Name:           "PET bottle",
		MainMaterialID: fx.main.ID,
		CategoryID:     fx.category.ID,
		UnitWeight:     decimal.RequireFromString("0.0250"),
		CalcGHG:        decimal.RequireFromString("1.5000"),
		Lifecycle:      models.Lifecycle{Active: true},
	}
	require.NoError(t, db.Create(&fx.material).Error)

	return &Service{DB: db}, db, fx
}

func auditor() Actor {
	return Actor{ID: uuid.New(), Capabilities: map[string]bool{constants.AuditRecords: true}}
}

func validInput(fx fixtures) CreateRecordInput {
	return CreateRecordInput{
		TransactionType:    models.TypeManualInput,
		MaterialID:         &fx.material.ID,
		MainMaterialID:     fx.main.ID,
		CategoryID:         fx.category.ID,
		OriginQuantity:     decimal.RequireFromString("400"),
		OriginWeightKg:     decimal.RequireFromString("10.0"),
		OriginPricePerUnit: decimal.RequireFromString("0.25"),
		TotalAmount:        decimal.RequireFromString("100.00"),
		HazardousLevel:     1,
	}
}

func TestCreateRecord_Valid(t *testing.T) {
	s, _, fx := setupLedgerTest(t)

	record, err := s.CreateRecord(context.Background(), validInput(fx))
	require.NoError(t, err)
	assert.Equal(t, models.RecordPending, record.Status)
	assert.True(t, record.OriginWeightKg.Equal(decimal.RequireFromString("10.0")))
	assert.Nil(t, record.CreatedTransactionID)
}

func TestCreateRecord_NegativeWeight(t *testing.T) {
	s, _, fx := setupLedgerTest(t)

	in := validInput(fx)
	in.OriginWeightKg = decimal.RequireFromString("-1")
	_, err := s.CreateRecord(context.Background(), in)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreateRecord_ExcessivePrecision(t *testing.T) {
	s, _, fx := setupLedgerTest(t)

	in := validInput(fx)
	in.TotalAmount = decimal.RequireFromString("100.005")
	_, err := s.CreateRecord(context.Background(), in)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreateRecord_HazardousLevelOutOfRange(t *testing.T) {
	s, _, fx := setupLedgerTest(t)

	in := validInput(fx)
	in.HazardousLevel = 6
	_, err := s.CreateRecord(context.Background(), in)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreateRecord_MaterialClassificationMismatch(t *testing.T) {
	s, db, fx := setupLedgerTest(t)

	otherMain := models.MainMaterial{Name: "Metals", Lifecycle: models.Lifecycle{Active: true}}
	require.NoError(t, db.Create(&otherMain).Error)

	in := validInput(fx)
	in.MainMaterialID = otherMain.ID
	_, err := s.CreateRecord(context.Background(), in)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreateRecord_NilMaterialAllowed(t *testing.T) {
	s, _, fx := setupLedgerTest(t)

	in := validInput(fx)
	in.MaterialID = nil
	record, err := s.CreateRecord(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, record.MaterialID)
}

func TestCreateRecord_UnknownLineageID(t *testing.T) {
	s, _, fx := setupLedgerTest(t)

	in := validInput(fx)
	in.Traceability = []uuid.UUID{uuid.New()}
	_, err := s.CreateRecord(context.Background(), in)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// seedRecord inserts a record directly with a controlled created_date, so
// chronology-sensitive cases do not depend on wall-clock spacing.
func seedRecord(t *testing.T, db *gorm.DB, fx fixtures, createdAt time.Time, lineage ...uuid.UUID) models.TransactionRecord {
	t.Helper()
	record := models.TransactionRecord{
		Status:          models.RecordPending,
		TransactionType: models.TypeManualInput,
		MainMaterialID:  fx.main.ID,
		CategoryID:      fx.category.ID,
		Traceability:    datatypes.NewJSONSlice(lineage),
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
		Lifecycle:       models.Lifecycle{Active: true},
	}
	require.NoError(t, db.Create(&record).Error)
	return record
}

func TestCreateRecord_LineageChronology(t *testing.T) {
	s, db, fx := setupLedgerTest(t)

	base := time.Now().Add(-time.Hour)
	r1 := seedRecord(t, db, fx, base)
	r2 := seedRecord(t, db, fx, base.Add(time.Minute))

	in := validInput(fx)
	in.Traceability = []uuid.UUID{r1.ID, r2.ID}
	_, err := s.CreateRecord(context.Background(), in)
	require.NoError(t, err)

	in = validInput(fx)
	in.Traceability = []uuid.UUID{r2.ID, r1.ID}
	_, err = s.CreateRecord(context.Background(), in)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestAppendToTraceability_PreservesChronology(t *testing.T) {
	s, db, fx := setupLedgerTest(t)

	base := time.Now().Add(-time.Hour)
	r1 := seedRecord(t, db, fx, base)
	r2 := seedRecord(t, db, fx, base.Add(time.Minute))
	r3 := seedRecord(t, db, fx, base.Add(2*time.Minute), r1.ID)

	require.NoError(t, s.AppendToTraceability(context.Background(), r3.ID, []uuid.UUID{r2.ID}))

	var reloaded models.TransactionRecord
	require.NoError(t, db.Where("id = ?", r3.ID).First(&reloaded).Error)
	require.Len(t, reloaded.Traceability, 2)
	assert.Equal(t, r1.ID, reloaded.Traceability[0])
	assert.Equal(t, r2.ID, reloaded.Traceability[1])

	// r1 predates the existing tail, appending it again would go backwards
	err := s.AppendToTraceability(context.Background(), r3.ID, []uuid.UUID{r1.ID})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestAppendToTraceability_SelfCycle(t *testing.T) {
	s, db, fx := setupLedgerTest(t)

	r := seedRecord(t, db, fx, time.Now().Add(-time.Hour))
	err := s.AppendToTraceability(context.Background(), r.ID, []uuid.UUID{r.ID})
	assert.ErrorIs(t, err, apperrors.ErrCycleDetected)
}

func TestAppendToTraceability_TransitiveCycle(t *testing.T) {
	s, db, fx := setupLedgerTest(t)

	// Adversarial state the schema cannot prevent: an older record whose
	// lineage already points at a newer one.
	base := time.Now().Add(-time.Hour)
	newer := seedRecord(t, db, fx, base.Add(time.Minute))
	older := seedRecord(t, db, fx, base, newer.ID)

	err := s.AppendToTraceability(context.Background(), newer.ID, []uuid.UUID{older.ID})
	assert.ErrorIs(t, err, apperrors.ErrCycleDetected)
}

func TestTransitionStatus_HappyPath(t *testing.T) {
	s, db, fx := setupLedgerTest(t)
	actor := auditor()

	record, err := s.CreateRecord(context.Background(), validInput(fx))
	require.NoError(t, err)

	require.NoError(t, s.TransitionStatus(context.Background(), record.ID, models.RecordApproved, actor))
	require.NoError(t, s.TransitionStatus(context.Background(), record.ID, models.RecordCompleted, actor))

	var reloaded models.TransactionRecord
	require.NoError(t, db.Where("id = ?", record.ID).First(&reloaded).Error)
	assert.Equal(t, models.RecordCompleted, reloaded.Status)
	require.NotNil(t, reloaded.ApprovedByID)
	assert.Equal(t, actor.ID, *reloaded.ApprovedByID)
	assert.NotNil(t, reloaded.CompletedDate)

	var historyCount int64
	require.NoError(t, db.Model(&models.TransactionStatusHistory{}).Where("record_id = ?", record.ID).Count(&historyCount).Error)
	assert.EqualValues(t, 2, historyCount)
}

func TestTransitionStatus_PendingToCompletedRejected(t *testing.T) {
	s, _, fx := setupLedgerTest(t)

	record, err := s.CreateRecord(context.Background(), validInput(fx))
	require.NoError(t, err)

	err = s.TransitionStatus(context.Background(), record.ID, models.RecordCompleted, auditor())
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestTransitionStatus_RejectedIsTerminal(t *testing.T) {
	s, _, fx := setupLedgerTest(t)
	actor := auditor()

	record, err := s.CreateRecord(context.Background(), validInput(fx))
	require.NoError(t, err)
	require.NoError(t, s.TransitionStatus(context.Background(), record.ID, models.RecordRejected, actor))

	err = s.TransitionStatus(context.Background(), record.ID, models.RecordApproved, actor)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestTransitionStatus_RequiresAuditCapability(t *testing.T) {
	s, _, fx := setupLedgerTest(t)

	record, err := s.CreateRecord(context.Background(), validInput(fx))
	require.NoError(t, err)

	viewer := Actor{ID: uuid.New(), Capabilities: map[string]bool{constants.ViewData: true}}
	err = s.TransitionStatus(context.Background(), record.ID, models.RecordApproved, viewer)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

type recomputeSpy struct {
	calls []uuid.UUID
}

func (r *recomputeSpy) RecomputeAggregates(ctx context.Context, batchID uuid.UUID) error {
	r.calls = append(r.calls, batchID)
	return nil
}

func TestTransitionStatus_CompletionTriggersRecompute(t *testing.T) {
	s, db, fx := setupLedgerTest(t)
	spy := &recomputeSpy{}
	s.Recomputer = spy
	actor := auditor()

	record, err := s.CreateRecord(context.Background(), validInput(fx))
	require.NoError(t, err)

	batchID := uuid.New()
	require.NoError(t, db.Model(&models.TransactionRecord{}).
		Where("id = ?", record.ID).
		Update("created_transaction_id", batchID).Error)

	require.NoError(t, s.TransitionStatus(context.Background(), record.ID, models.RecordApproved, actor))
	assert.Empty(t, spy.calls)

	require.NoError(t, s.TransitionStatus(context.Background(), record.ID, models.RecordCompleted, actor))
	require.Len(t, spy.calls, 1)
	assert.Equal(t, batchID, spy.calls[0])
}

func TestSetMaterial(t *testing.T) {
	s, db, fx := setupLedgerTest(t)

	in := validInput(fx)
	in.MaterialID = nil
	record, err := s.CreateRecord(context.Background(), in)
	require.NoError(t, err)

	require.NoError(t, s.SetMaterial(context.Background(), record.ID, fx.material.ID))

	var reloaded models.TransactionRecord
	require.NoError(t, db.Where("id = ?", record.ID).First(&reloaded).Error)
	require.NotNil(t, reloaded.MaterialID)
	assert.Equal(t, fx.material.ID, *reloaded.MaterialID)

	// Material under a different classification is refused.
	otherMain := models.MainMaterial{Name: "Glass", Lifecycle: models.Lifecycle{Active: true}}
	require.NoError(t, db.Create(&otherMain).Error)
	misfit := models.Material{
		Name:           "Bottle glass",
		MainMaterialID: otherMain.ID,
		CategoryID:     fx.category.ID,
		UnitWeight:     decimal.RequireFromString("0.3"),
		CalcGHG:        decimal.RequireFromString("0.8"),
		Lifecycle:      models.Lifecycle{Active: true},
	}
	require.NoError(t, db.Create(&misfit).Error)
	err = s.SetMaterial(context.Background(), record.ID, misfit.ID)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestResolveTraceability_OldestFirst(t *testing.T) {
	s, db, fx := setupLedgerTest(t)

	base := time.Now().Add(-time.Hour)
	r1 := seedRecord(t, db, fx, base)
	r2 := seedRecord(t, db, fx, base.Add(time.Minute))
	r3 := seedRecord(t, db, fx, base.Add(2*time.Minute), r1.ID, r2.ID)

	lineage, err := s.ResolveTraceability(context.Background(), r3.ID)
	require.NoError(t, err)
	require.Len(t, lineage, 2)
	assert.Equal(t, r1.ID, lineage[0].ID)
	assert.Equal(t, r2.ID, lineage[1].ID)
}
