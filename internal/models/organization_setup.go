package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Node is one element of an organization's structural tree.
type Node struct {
	NodeID   string `json:"nodeId"`
	Children []Node `json:"children,omitempty"`
}

// OrganizationSetup is one immutable snapshot of an organization's structural
// tree. Edits always insert a new version row; superseded rows are deactivated,
// never deleted. At most one row per organization is active, enforced by the
// partial unique index below and by the locked deactivate+insert in the
// orgsetup service.
type OrganizationSetup struct {
	ID             uuid.UUID                     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID                     `gorm:"column:organization_id;type:uuid;not null;index;uniqueIndex:uq_org_setup_active,where:is_active" json:"organization_id"`
	Version        int                           `gorm:"column:version;not null" json:"version"`
	IsActive       bool                          `gorm:"column:is_active;not null;default:false" json:"is_active"`
	RootNodes      datatypes.JSONSlice[Node]     `gorm:"column:root_nodes" json:"root_nodes"`
	HubNode        datatypes.JSONType[Node]      `gorm:"column:hub_node" json:"hub_node"`
	Metadata       datatypes.JSONMap             `gorm:"column:metadata" json:"metadata"`
	CreatedAt      time.Time                     `gorm:"column:created_date;index" json:"created_date"`
	UpdatedAt      time.Time                     `gorm:"column:updated_date" json:"updated_date"`
}

func (OrganizationSetup) TableName() string {
	return "organization_setup"
}

func (s *OrganizationSetup) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
