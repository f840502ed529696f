package repository

import (
	"context"
	"time"

	"portal/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MemberRoleRepository interface {
	Create(ctx context.Context, grant *model.MemberRole) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.MemberRole, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]model.MemberRole, error)
	ListValidForMember(ctx context.Context, memberID uuid.UUID, asOf time.Time) ([]model.MemberRole, error)
	EndGrant(ctx context.Context, id uuid.UUID, endedAt time.Time) error
	EndGrantsByEntity(ctx context.Context, entityType string, entityID uuid.UUID, endedAt time.Time) error
}

type memberRoleRepository struct {
	db *gorm.DB
}

func NewMemberRoleRepository(db *gorm.DB) MemberRoleRepository {
	return &memberRoleRepository{db: db}
}

func (r *memberRoleRepository) Create(ctx context.Context, grant *model.MemberRole) error {
	return GetDB(ctx, r.db).Create(grant).Error
}

func (r *memberRoleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.MemberRole, error) {
	var grant model.MemberRole
	if err := GetDB(ctx, r.db).Preload("Role").First(&grant, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &grant, nil
}

func (r *memberRoleRepository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]model.MemberRole, error) {
	var grants []model.MemberRole
	err := GetDB(ctx, r.db).
		Preload("Role").
		Where("member_id = ?", memberID).
		Order("start_on desc").
		Find(&grants).Error
	if err != nil {
		return nil, err
	}
	return grants, nil
}

// ListValidForMember returns the member's role grants in effect at asOf,
// with role permissions preloaded for aggregation. The date filter mirrors
// authz.IsValidOn exactly.
func (r *memberRoleRepository) ListValidForMember(ctx context.Context, memberID uuid.UUID, asOf time.Time) ([]model.MemberRole, error) {
	var grants []model.MemberRole
	err := GetDB(ctx, r.db).
		Preload("Role.Permissions").
		Where("member_id = ?", memberID).
		Where("start_on <= ?", asOf).
		Where("expires_on IS NULL OR expires_on > ?", asOf).
		Find(&grants).Error
	if err != nil {
		return nil, err
	}
	return grants, nil
}

// EndGrant closes a grant's validity window at endedAt. The row stays for
// history; it simply stops matching validity filters.
func (r *memberRoleRepository) EndGrant(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	return GetDB(ctx, r.db).
		Model(&model.MemberRole{}).
		Where("id = ?", id).
		Update("expires_on", endedAt).Error
}

// EndGrantsByEntity closes every still-open grant produced by the given
// source entity (e.g. the role granted by an activity authorization when
// that authorization is revoked or expires).
func (r *memberRoleRepository) EndGrantsByEntity(ctx context.Context, entityType string, entityID uuid.UUID, endedAt time.Time) error {
	return GetDB(ctx, r.db).
		Model(&model.MemberRole{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Where("expires_on IS NULL OR expires_on > ?", endedAt).
		Update("expires_on", endedAt).Error
}
