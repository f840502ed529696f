package repository

import (
	"context"
	"time"

	"portal/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AuthorizationRepository interface {
	Create(ctx context.Context, auth *model.Authorization) error
	Update(ctx context.Context, auth *model.Authorization) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Authorization, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.Authorization, error)
	// FindByIDLocked acquires a row-level lock; must run inside a
	// transaction. All workflow transitions go through it so concurrent
	// actions against one authorization serialize in the database.
	FindByIDLocked(ctx context.Context, id uuid.UUID) (*model.Authorization, error)
	FindInFlight(ctx context.Context, memberID, activityID uuid.UUID, asOf time.Time) (*model.Authorization, error)
	FindCurrentApproved(ctx context.Context, memberID, activityID uuid.UUID, asOf time.Time) (*model.Authorization, error)
	List(ctx context.Context, filter AuthorizationFilter) ([]model.Authorization, int64, error)
	ListLapsed(ctx context.Context, asOf time.Time) ([]model.Authorization, error)
}

// AuthorizationFilter narrows authorization listings.
type AuthorizationFilter struct {
	MemberID   *uuid.UUID
	ActivityID *uuid.UUID
	Status     string
	Page       int
	Limit      int
}

type authorizationRepository struct {
	db *gorm.DB
}

func NewAuthorizationRepository(db *gorm.DB) AuthorizationRepository {
	return &authorizationRepository{db: db}
}

func (r *authorizationRepository) Create(ctx context.Context, auth *model.Authorization) error {
	return GetDB(ctx, r.db).Create(auth).Error
}

func (r *authorizationRepository) Update(ctx context.Context, auth *model.Authorization) error {
	return GetDB(ctx, r.db).Save(auth).Error
}

func (r *authorizationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Authorization, error) {
	var auth model.Authorization
	if err := GetDB(ctx, r.db).First(&auth, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &auth, nil
}

func (r *authorizationRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.Authorization, error) {
	var auth model.Authorization
	err := GetDB(ctx, r.db).
		Preload("Member").
		Preload("Activity").
		First(&auth, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &auth, nil
}

func (r *authorizationRepository) FindByIDLocked(ctx context.Context, id uuid.UUID) (*model.Authorization, error) {
	var auth model.Authorization
	err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&auth, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &auth, nil
}

// FindInFlight returns the member's pending or still-valid approved
// authorization for the activity, if one exists. Used by the
// duplicate-request guard; the approved-branch date filter mirrors
// authz.IsValidOn.
func (r *authorizationRepository) FindInFlight(ctx context.Context, memberID, activityID uuid.UUID, asOf time.Time) (*model.Authorization, error) {
	var auth model.Authorization
	err := GetDB(ctx, r.db).
		Where("member_id = ? AND activity_id = ?", memberID, activityID).
		Where(
			GetDB(ctx, r.db).Where("status = ?", model.AuthStatusPending).
				Or("status = ? AND (expires_on IS NULL OR expires_on > ?)", model.AuthStatusApproved, asOf),
		).
		First(&auth).Error
	if err != nil {
		return nil, err
	}
	return &auth, nil
}

// FindCurrentApproved returns the member's approved authorization for the
// activity whose validity window covers asOf. A renewal extends from its
// expiry when one exists.
func (r *authorizationRepository) FindCurrentApproved(ctx context.Context, memberID, activityID uuid.UUID, asOf time.Time) (*model.Authorization, error) {
	var auth model.Authorization
	err := GetDB(ctx, r.db).
		Where("member_id = ? AND activity_id = ?", memberID, activityID).
		Where("status = ?", model.AuthStatusApproved).
		Where("start_on IS NULL OR start_on <= ?", asOf).
		Where("expires_on IS NULL OR expires_on > ?", asOf).
		Order("expires_on DESC").
		First(&auth).Error
	if err != nil {
		return nil, err
	}
	return &auth, nil
}

func (r *authorizationRepository) List(ctx context.Context, filter AuthorizationFilter) ([]model.Authorization, int64, error) {
	var auths []model.Authorization
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.Authorization{})
	if filter.MemberID != nil {
		query = query.Where("member_id = ?", *filter.MemberID)
	}
	if filter.ActivityID != nil {
		query = query.Where("activity_id = ?", *filter.ActivityID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.
		Preload("Member").
		Preload("Activity").
		Order("created_at DESC").
		Offset(offset).
		Limit(filter.Limit).
		Find(&auths).Error; err != nil {
		return nil, 0, err
	}

	return auths, total, nil
}

// ListLapsed returns approved authorizations whose validity window has
// passed at asOf, for the expiry sweep.
func (r *authorizationRepository) ListLapsed(ctx context.Context, asOf time.Time) ([]model.Authorization, error) {
	var auths []model.Authorization
	err := GetDB(ctx, r.db).
		Where("status = ?", model.AuthStatusApproved).
		Where("expires_on IS NOT NULL AND expires_on <= ?", asOf).
		Find(&auths).Error
	if err != nil {
		return nil, err
	}
	return auths, nil
}
