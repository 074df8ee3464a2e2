package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RecordStatus is the lifecycle state of a TransactionRecord.
type RecordStatus string

const (
	RecordPending   RecordStatus = "pending"
	RecordApproved  RecordStatus = "approved"
	RecordCompleted RecordStatus = "completed"
	RecordRejected  RecordStatus = "rejected"
)

// recordTransitions is the allowed state machine:
// pending -> approved | rejected, approved -> completed.
// completed and rejected are terminal.
var recordTransitions = map[RecordStatus][]RecordStatus{
	RecordPending:  {RecordApproved, RecordRejected},
	RecordApproved: {RecordCompleted},
}

// CanTransition reports whether from -> to is a legal status transition.
func (from RecordStatus) CanTransition(to RecordStatus) bool {
	for _, next := range recordTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known record status.
func (s RecordStatus) Valid() bool {
	switch s {
	case RecordPending, RecordApproved, RecordCompleted, RecordRejected:
		return true
	}
	return false
}

// TransactionType tags the source of truth for a record.
type TransactionType string

const (
	TypeManualInput TransactionType = "manual_input"
	TypeRewards     TransactionType = "rewards"
	TypeIoT         TransactionType = "iot"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeManualInput, TypeRewards, TypeIoT:
		return true
	}
	return false
}

// TransactionRecord is the atomic ledger entry for one material movement.
// material_id may be null when the material is not yet resolved at capture
// time; main_material_id and category_id are always required.
// Traceability is the ordered lineage of prior record ids, oldest first;
// entries may reference records owned by earlier batches (cross-batch DAG).
type TransactionRecord struct {
	ID                   uuid.UUID                      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Status               RecordStatus                   `gorm:"column:status;type:varchar(20);not null;default:'pending'" json:"status"`
	TransactionType      TransactionType                `gorm:"column:transaction_type;type:varchar(20);not null" json:"transaction_type"`
	MaterialID           *uuid.UUID                     `gorm:"column:material_id;type:uuid;index" json:"material_id"`
	MainMaterialID       uuid.UUID                      `gorm:"column:main_material_id;type:uuid;not null;index" json:"main_material_id"`
	CategoryID           uuid.UUID                      `gorm:"column:category_id;type:uuid;not null;index" json:"category_id"`
	OriginQuantity       decimal.Decimal                `gorm:"column:origin_quantity;type:decimal(18,4);not null" json:"origin_quantity"`
	OriginWeightKg       decimal.Decimal                `gorm:"column:origin_weight_kg;type:decimal(18,4);not null" json:"origin_weight_kg"`
	OriginPricePerUnit   decimal.Decimal                `gorm:"column:origin_price_per_unit;type:decimal(18,4);not null" json:"origin_price_per_unit"`
	TotalAmount          decimal.Decimal                `gorm:"column:total_amount;type:decimal(18,2);not null" json:"total_amount"`
	HazardousLevel       int                            `gorm:"column:hazardous_level;not null;default:0;check:hazardous_level >= 0 AND hazardous_level <= 5" json:"hazardous_level"`
	Tags                 datatypes.JSONSlice[TagRef]    `gorm:"column:tags" json:"tags"`
	Traceability         datatypes.JSONSlice[uuid.UUID] `gorm:"column:traceability" json:"traceability"`
	CreatedTransactionID *uuid.UUID                     `gorm:"column:created_transaction_id;type:uuid;index" json:"created_transaction_id"`
	ApprovedByID         *uuid.UUID                     `gorm:"column:approved_by_id;type:uuid" json:"approved_by_id"`
	CompletedDate        *time.Time                     `gorm:"column:completed_date" json:"completed_date"`
	CreatedAt            time.Time                      `gorm:"column:created_date;index" json:"created_date"`
	UpdatedAt            time.Time                      `gorm:"column:updated_date" json:"updated_date"`
	Lifecycle
}

func (TransactionRecord) TableName() string {
	return "transaction_records"
}

func (r *TransactionRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Touch advances updated_date; every write path calls this explicitly
// instead of relying on a hidden database trigger.
func (r *TransactionRecord) Touch(now time.Time) {
	r.UpdatedAt = now
}

// TransactionStatusHistory is the append-only audit trail: one row per
// record or batch status transition. Consumed by the external audit and
// notification subsystems; never updated or deleted.
type TransactionStatusHistory struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	RecordID      *uuid.UUID `gorm:"column:record_id;type:uuid;index" json:"record_id"`
	TransactionID *uuid.UUID `gorm:"column:transaction_id;type:uuid;index" json:"transaction_id"`
	FromStatus    string     `gorm:"column:from_status;type:varchar(20);not null" json:"from_status"`
	ToStatus      string     `gorm:"column:to_status;type:varchar(20);not null" json:"to_status"`
	ActorID       uuid.UUID  `gorm:"column:actor_id;type:uuid;not null" json:"actor_id"`
	CreatedAt     time.Time  `gorm:"column:created_date" json:"created_date"`
}

func (TransactionStatusHistory) TableName() string {
	return "transaction_status_history"
}

func (h *TransactionStatusHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
