package models

import (
	"time"

	"gorm.io/gorm"
)

// Lifecycle is the shared soft-delete state embedded in every core entity.
// Rows are never hard-deleted; superseded or retired rows keep their identity
// so historical ledger references stay resolvable.
type Lifecycle struct {
	Active      bool       `gorm:"column:active;not null;default:true" json:"active"`
	DeletedDate *time.Time `gorm:"column:deleted_date;index" json:"deleted_date,omitempty"`
}

// SoftDelete marks the entity deleted at the given instant.
func (l *Lifecycle) SoftDelete(now time.Time) {
	l.Active = false
	l.DeletedDate = &now
}

// Deleted reports whether the entity has been soft-deleted.
func (l Lifecycle) Deleted() bool {
	return l.DeletedDate != nil
}

// NotDeleted scopes a query to rows that have not been soft-deleted.
// Use with db.Scopes(models.NotDeleted).
func NotDeleted(db *gorm.DB) *gorm.DB {
	return db.Where("deleted_date IS NULL")
}
