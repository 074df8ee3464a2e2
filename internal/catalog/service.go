package catalog

import (
	"context"
	"time"

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

type CreateMaterialInput struct {
	Name           string
	MainMaterialID uuid.UUID
	CategoryID     uuid.UUID
	UnitWeight     decimal.Decimal
	CalcGHG        decimal.Decimal
	Tags           []models.TagRef
}

// CreateMaterial validates classification references and tag refs, then
// inserts the material.
func (s *Service) CreateMaterial(ctx context.Context, in CreateMaterialInput) (*models.Material, error) {
	if in.Name == "" {
		return nil, apperrors.Validation("name", "name is required")
	}
	if in.UnitWeight.IsNegative() {
		return nil, apperrors.Validation("unit_weight", "must be non-negative")
	}
	if in.CalcGHG.IsNegative() {
		return nil, apperrors.Validation("calc_ghg", "must be non-negative")
	}

	var material *models.Material
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
		if err := ValidateTagRefs(tx, in.Tags); err != nil {
			return err
		}

		material = &models.Material{
			Name:           in.Name,
			MainMaterialID: in.MainMaterialID,
			CategoryID:     in.CategoryID,
			UnitWeight:     in.UnitWeight,
			CalcGHG:        in.CalcGHG,
			Tags:           datatypes.NewJSONSlice(in.Tags),
			Lifecycle:      models.Lifecycle{Active: true},
		}
		return tx.Create(material).Error
	})
	if err != nil {
		return nil, err
	}
	return material, nil
}

// GetMaterial returns a material by id, excluding soft-deleted rows.
func (s *Service) GetMaterial(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	var material models.Material
	err := s.DB.WithContext(ctx).Scopes(models.NotDeleted).Where("id = ?", id).First(&material).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.NotFound("material", id.String())
	}
	if err != nil {
		return nil, err
	}
	return &material, nil
}

type ListMaterialsFilter struct {
	MainMaterialID *uuid.UUID
	CategoryID     *uuid.UUID
}

// ListMaterials lists non-deleted materials, optionally filtered by
// classification.
func (s *Service) ListMaterials(ctx context.Context, filter ListMaterialsFilter) ([]models.Material, error) {
	q := s.DB.WithContext(ctx).Scopes(models.NotDeleted)
	if filter.MainMaterialID != nil {
		q = q.Where("main_material_id = ?", *filter.MainMaterialID)
	}
	if filter.CategoryID != nil {
		q = q.Where("category_id = ?", *filter.CategoryID)
	}
	var materials []models.Material
	if err := q.Order("created_date DESC").Find(&materials).Error; err != nil {
		return nil, err
	}
	return materials, nil
}

// SoftDeleteMaterial retires a material while preserving its identity for
// historical ledger references. Never a hard delete.
func (s *Service) SoftDeleteMaterial(ctx context.Context, id uuid.UUID) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var material models.Material
		if err := tx.Scopes(models.NotDeleted).Where("id = ?", id).First(&material).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("material", id.String())
			}
			return err
		}
		now := time.Now()
		material.SoftDelete(now)
		material.UpdatedAt = now
		return tx.Save(&material).Error
	})
}

// CreateMainMaterial inserts a coarse classification entry.
func (s *Service) CreateMainMaterial(ctx context.Context, name string) (*models.MainMaterial, error) {
	if name == "" {
		return nil, apperrors.Validation("name", "name is required")
	}
	main := &models.MainMaterial{Name: name, Lifecycle: models.Lifecycle{Active: true}}
	if err := s.DB.WithContext(ctx).Create(main).Error; err != nil {
		return nil, err
	}
	return main, nil
}

// CreateCategory inserts a category entry.
func (s *Service) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	if name == "" {
		return nil, apperrors.Validation("name", "name is required")
	}
	category := &models.Category{Name: name, Lifecycle: models.Lifecycle{Active: true}}
	if err := s.DB.WithContext(ctx).Create(category).Error; err != nil {
		return nil, err
	}
	return category, nil
}

// CreateTagGroup inserts a tag-group axis.
func (s *Service) CreateTagGroup(ctx context.Context, name string) (*models.TagGroup, error) {
	if name == "" {
		return nil, apperrors.Validation("name", "name is required")
	}
	group := &models.TagGroup{Name: name, Lifecycle: models.Lifecycle{Active: true}}
	if err := s.DB.WithContext(ctx).Create(group).Error; err != nil {
		return nil, err
	}
	return group, nil
}

// CreateTag inserts a tag value under an existing group.
func (s *Service) CreateTag(ctx context.Context, groupID uuid.UUID, name string) (*models.Tag, error) {
	if name == "" {
		return nil, apperrors.Validation("name", "name is required")
	}
	var tag *models.Tag
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.TagGroup
		if err := tx.Scopes(models.NotDeleted).Where("id = ?", groupID).First(&group).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("tag group", groupID.String())
			}
			return err
		}
		tag = &models.Tag{TagGroupID: groupID, Name: name, Lifecycle: models.Lifecycle{Active: true}}
		return tx.Create(tag).Error
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

// TagGroupWithTags pairs a group with its non-deleted tags.
type TagGroupWithTags struct {
	models.TagGroup
	Tags []models.Tag `json:"tags"`
}

// ListTagGroups returns all non-deleted tag groups with their tags.
func (s *Service) ListTagGroups(ctx context.Context) ([]TagGroupWithTags, error) {
	var groups []models.TagGroup
	if err := s.DB.WithContext(ctx).Scopes(models.NotDeleted).Order("created_date ASC").Find(&groups).Error; err != nil {
		return nil, err
	}
	out := make([]TagGroupWithTags, 0, len(groups))
	for _, g := range groups {
		var tags []models.Tag
		if err := s.DB.WithContext(ctx).Scopes(models.NotDeleted).Where("tag_group_id = ?", g.ID).Order("created_date ASC").Find(&tags).Error; err != nil {
			return nil, err
		}
		out = append(out, TagGroupWithTags{TagGroup: g, Tags: tags})
	}
	return out, nil
}

// ValidateTagRefs checks each (group, tag) pair resolves to a live tag in the
// stated group. Order is preserved by the caller; this only checks resolution.
func ValidateTagRefs(tx *gorm.DB, tags []models.TagRef) error {
	for _, ref := range tags {
		var tag models.Tag
		if err := tx.Scopes(models.NotDeleted).Where("id = ?", ref.TagID).First(&tag).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("tag", ref.TagID.String())
			}
			return err
		}
		if tag.TagGroupID != ref.TagGroupID {
			return apperrors.Validation("tags", "tag "+ref.TagID.String()+" does not belong to group "+ref.TagGroupID.String())
		}
	}
	return nil
}
