package orgsetup

import (
	"context"
	"errors"
	"strings"
	"time"

	"reloop-backend/internal/models"
	"reloop-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	DB       *gorm.DB
	Cache    *Cache // optional; nil disables caching
	MaxDepth int    // hierarchy depth bound; <=0 falls back to 16
}

const defaultMaxDepth = 16

type SubmitVersionInput struct {
	OrganizationID uuid.UUID
	RootNodes      []models.Node
	HubNode        models.Node
	Metadata       map[string]interface{}
}

// SubmitVersion inserts a new active hierarchy snapshot for the organization.
// The deactivation sweep and the insert run in one transaction, serialized on
// the organization's existing rows, so at most one version is ever active.
// A lost race is retried once, then surfaced as a conflict.
func (s *Service) SubmitVersion(ctx context.Context, in SubmitVersionInput) (*models.OrganizationSetup, error) {
	if in.OrganizationID == uuid.Nil {
		return nil, apperrors.Validation("organization_id", "organization_id is required")
	}
	maxDepth := s.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	if err := ValidateTree(in.RootNodes, maxDepth); err != nil {
		return nil, err
	}
	if in.HubNode.NodeID != "" {
		if err := ValidateTree([]models.Node{in.HubNode}, maxDepth); err != nil {
			return nil, err
		}
	}

	var version *models.OrganizationSetup
	submit := func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// Row-level lock on the organization's versions serializes
			// concurrent submissions on Postgres; the partial unique index on
			// (organization_id) WHERE is_active backstops dialects without it.
			q := tx.Model(&models.OrganizationSetup{}).Where("organization_id = ?", in.OrganizationID)
			if tx.Dialector.Name() == "postgres" {
				q = q.Clauses(clause.Locking{Strength: "UPDATE"})
			}
			var maxVersion int
			type row struct{ Version int }
			var rows []row
			if err := q.Select("version").Order("version DESC").Limit(1).Find(&rows).Error; err != nil {
				return err
			}
			if len(rows) > 0 {
				maxVersion = rows[0].Version
			}

			now := time.Now()
			if err := tx.Model(&models.OrganizationSetup{}).
				Where("organization_id = ? AND is_active = ?", in.OrganizationID, true).
				Updates(map[string]interface{}{"is_active": false, "updated_date": now}).Error; err != nil {
				return err
			}

			version = &models.OrganizationSetup{
				OrganizationID: in.OrganizationID,
				Version:        maxVersion + 1,
				IsActive:       true,
				RootNodes:      datatypes.NewJSONSlice(in.RootNodes),
				HubNode:        datatypes.NewJSONType(in.HubNode),
				Metadata:       datatypes.JSONMap(in.Metadata),
			}
			return tx.Create(version).Error
		})
	}

	err := submit()
	if isDuplicateActive(err) {
		// Another administrator won the race between our sweep and insert.
		log.Warn().Str("organization_id", in.OrganizationID.String()).Msg("version swap lost a race, retrying once")
		err = submit()
	}
	if err != nil {
		if isDuplicateActive(err) {
			return nil, apperrors.Conflict("concurrent version submission for organization " + in.OrganizationID.String())
		}
		return nil, err
	}

	if s.Cache != nil {
		s.Cache.Invalidate(ctx, in.OrganizationID)
	}
	return version, nil
}

// isDuplicateActive recognizes the partial unique index on active versions
// firing under a concurrent submission.
func isDuplicateActive(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}

// GetActiveVersion returns the organization's single active snapshot,
// reading through the cache when one is configured.
func (s *Service) GetActiveVersion(ctx context.Context, organizationID uuid.UUID) (*models.OrganizationSetup, error) {
	if s.Cache != nil {
		if v, ok := s.Cache.Get(ctx, organizationID); ok {
			return v, nil
		}
	}

	var version models.OrganizationSetup
	err := s.DB.WithContext(ctx).
		Where("organization_id = ? AND is_active = ?", organizationID, true).
		First(&version).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.NotFound("active hierarchy version", organizationID.String())
	}
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		s.Cache.Set(ctx, organizationID, &version)
	}
	return &version, nil
}

// ListVersions returns all snapshots for the organization, newest first,
// for audit and rollback tooling.
func (s *Service) ListVersions(ctx context.Context, organizationID uuid.UUID) ([]models.OrganizationSetup, error) {
	var versions []models.OrganizationSetup
	err := s.DB.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("created_date DESC").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// ValidateTree checks a node forest for empty ids, duplicate ids and
// excessive depth (a defensive bound against pathological payloads).
func ValidateTree(roots []models.Node, maxDepth int) error {
	seen := map[string]bool{}
	var walk func(node models.Node, depth int) error
	walk = func(node models.Node, depth int) error {
		if node.NodeID == "" {
			return apperrors.Validation("root_nodes", "node id must not be empty")
		}
		if depth > maxDepth {
			return apperrors.Validation("root_nodes", "tree exceeds maximum depth")
		}
		if seen[node.NodeID] {
			return apperrors.Validation("root_nodes", "duplicate node id "+node.NodeID)
		}
		seen[node.NodeID] = true
		for _, child := range node.Children {
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range roots {
		if err := walk(root, 1); err != nil {
			return err
		}
	}
	return nil
}
