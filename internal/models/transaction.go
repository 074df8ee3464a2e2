package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TransactionMethod controls which invariants apply to a batch.
type TransactionMethod string

const (
	MethodOrigin    TransactionMethod = "origin"
	MethodTransport TransactionMethod = "transport"
	MethodTransform TransactionMethod = "transform"
)

// Valid reports whether m is a known batch method.
func (m TransactionMethod) Valid() bool {
	switch m {
	case MethodOrigin, MethodTransport, MethodTransform:
		return true
	}
	return false
}

// Transaction is a batch: the unit of submission grouping one or more
// TransactionRecords. WeightKg / TotalAmount / HazardousLevel are aggregates
// over the owned records and are recomputed, never hand-set.
type Transaction struct {
	ID                 uuid.UUID                      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TransactionMethod  TransactionMethod              `gorm:"column:transaction_method;type:varchar(20);not null" json:"transaction_method"`
	OrganizationID     uuid.UUID                      `gorm:"column:organization_id;type:uuid;not null;index" json:"organization_id"`
	OriginID           *uuid.UUID                     `gorm:"column:origin_id;type:uuid" json:"origin_id"`
	DestinationID      *uuid.UUID                     `gorm:"column:destination_id;type:uuid" json:"destination_id"`
	WeightKg           decimal.Decimal                `gorm:"column:weight_kg;type:decimal(18,4);not null" json:"weight_kg"`
	TotalAmount        decimal.Decimal                `gorm:"column:total_amount;type:decimal(18,2);not null" json:"total_amount"`
	TransactionRecords datatypes.JSONSlice[uuid.UUID] `gorm:"column:transaction_records" json:"transaction_records"`
	Status             RecordStatus                   `gorm:"column:status;type:varchar(20);not null;default:'pending'" json:"status"`
	HazardousLevel     int                            `gorm:"column:hazardous_level;not null;default:0;check:hazardous_level >= 0 AND hazardous_level <= 5" json:"hazardous_level"`
	CreatedAt          time.Time                      `gorm:"column:created_date;index" json:"created_date"`
	UpdatedAt          time.Time                      `gorm:"column:updated_date" json:"updated_date"`
	Lifecycle
}

func (Transaction) TableName() string {
	return "transactions"
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Touch advances updated_date on explicit write paths.
func (t *Transaction) Touch(now time.Time) {
	t.UpdatedAt = now
}
