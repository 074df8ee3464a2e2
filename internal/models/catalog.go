package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TagRef is one ordered (tag group, tag) condition descriptor, e.g. color or
// contamination level. Stored as a JSON array element; order is significant.
type TagRef struct {
	TagGroupID uuid.UUID `json:"tag_group_id"`
	TagID      uuid.UUID `json:"tag_id"`
}

// MainMaterial is the coarse classification layer above Material.
type MainMaterial struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	CreatedAt time.Time `gorm:"column:created_date" json:"created_date"`
	UpdatedAt time.Time `gorm:"column:updated_date" json:"updated_date"`
	Lifecycle
}

func (MainMaterial) TableName() string {
	return "main_materials"
}

func (m *MainMaterial) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Category is an orthogonal classification layer (e.g. packaging, electronics).
type Category struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	CreatedAt time.Time `gorm:"column:created_date" json:"created_date"`
	UpdatedAt time.Time `gorm:"column:updated_date" json:"updated_date"`
	Lifecycle
}

func (Category) TableName() string {
	return "categories"
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Material identifies a tradable waste material. Identity is immutable;
// materials are soft-deleted only, so historical records keep resolving.
type Material struct {
	ID             uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name           string                     `gorm:"column:name;not null" json:"name"`
	MainMaterialID uuid.UUID                  `gorm:"column:main_material_id;type:uuid;not null;index" json:"main_material_id"`
	CategoryID     uuid.UUID                  `gorm:"column:category_id;type:uuid;not null;index" json:"category_id"`
	UnitWeight     decimal.Decimal            `gorm:"column:unit_weight;type:decimal(18,4);not null" json:"unit_weight"`
	CalcGHG        decimal.Decimal            `gorm:"column:calc_ghg;type:decimal(18,4);not null" json:"calc_ghg"`
	Tags           datatypes.JSONSlice[TagRef] `gorm:"column:tags" json:"tags"`
	CreatedAt      time.Time                  `gorm:"column:created_date" json:"created_date"`
	UpdatedAt      time.Time                  `gorm:"column:updated_date" json:"updated_date"`
	Lifecycle
}

func (Material) TableName() string {
	return "materials"
}

func (m *Material) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// TagGroup names one axis of condition descriptors (color, contamination, ...).
type TagGroup struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	CreatedAt time.Time `gorm:"column:created_date" json:"created_date"`
	UpdatedAt time.Time `gorm:"column:updated_date" json:"updated_date"`
	Lifecycle
}

func (TagGroup) TableName() string {
	return "tag_groups"
}

func (g *TagGroup) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// Tag is one value within a TagGroup.
type Tag struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TagGroupID uuid.UUID `gorm:"column:tag_group_id;type:uuid;not null;index" json:"tag_group_id"`
	Name       string    `gorm:"column:name;not null" json:"name"`
	CreatedAt  time.Time `gorm:"column:created_date" json:"created_date"`
	UpdatedAt  time.Time `gorm:"column:updated_date" json:"updated_date"`
	Lifecycle
}

func (Tag) TableName() string {
	return "tags"
}

func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
