package repository

import (
	"context"
	"time"

	"portal/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MemberRepository defines the interface for data access of Member entities
type MemberRepository interface {
	Create(ctx context.Context, member *model.Member) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Member, error)
	GetByIDWithBranch(ctx context.Context, id uuid.UUID) (*model.Member, error)
	GetByEmail(ctx context.Context, email string) (*model.Member, error)
	List(ctx context.Context, page, limit int) ([]model.Member, int64, error)
	Update(ctx context.Context, member *model.Member) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListHoldersOfPermission(ctx context.Context, permissionID uuid.UUID, asOf time.Time) ([]model.Member, error)
}

type memberRepository struct {
	db *gorm.DB
}

// NewMemberRepository returns a new instance of MemberRepository
func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) Create(ctx context.Context, member *model.Member) error {
	return GetDB(ctx, r.db).Create(member).Error
}

func (r *memberRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Member, error) {
	var member model.Member
	if err := GetDB(ctx, r.db).First(&member, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *memberRepository) GetByIDWithBranch(ctx context.Context, id uuid.UUID) (*model.Member, error) {
	var member model.Member
	if err := GetDB(ctx, r.db).Preload("Branch").First(&member, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *memberRepository) GetByEmail(ctx context.Context, email string) (*model.Member, error) {
	var member model.Member
	if err := GetDB(ctx, r.db).First(&member, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *memberRepository) List(ctx context.Context, page, limit int) ([]model.Member, int64, error) {
	var members []model.Member
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.Member{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Branch").Order("sca_name asc").Offset(offset).Limit(limit).Find(&members).Error; err != nil {
		return nil, 0, err
	}

	return members, total, nil
}

func (r *memberRepository) Update(ctx context.Context, member *model.Member) error {
	return GetDB(ctx, r.db).Save(member).Error
}

func (r *memberRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Member{}).Error
}

// ListHoldersOfPermission returns the members holding the given permission
// (or any super-user permission) through a role grant valid at asOf. The
// date filter mirrors authz.IsValidOn: inclusive start, exclusive expiry.
// Candidates still pass through the aggregator afterwards for requirement
// and scope checks; this query only narrows the set.
func (r *memberRepository) ListHoldersOfPermission(ctx context.Context, permissionID uuid.UUID, asOf time.Time) ([]model.Member, error) {
	var members []model.Member
	err := GetDB(ctx, r.db).
		Distinct("members.*").
		Joins("JOIN member_roles mr ON mr.member_id = members.id").
		Joins("JOIN role_permissions rp ON rp.role_id = mr.role_id").
		Joins("JOIN permissions p ON p.id = rp.permission_id").
		Where("p.id = ? OR p.is_super_user = true", permissionID).
		Where("mr.start_on <= ?", asOf).
		Where("mr.expires_on IS NULL OR mr.expires_on > ?", asOf).
		Where("members.status = ?", model.MemberStatusActive).
		Preload("Branch").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}
