package repository

import (
	"context"

	"portal/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ApprovalRepository interface {
	Create(ctx context.Context, step *model.AuthorizationApproval) error
	Update(ctx context.Context, step *model.AuthorizationApproval) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.AuthorizationApproval, error)
	// FindByIDLocked locks the step row for the duration of the enclosing
	// transaction.
	FindByIDLocked(ctx context.Context, id uuid.UUID) (*model.AuthorizationApproval, error)
	FindByToken(ctx context.Context, token string) (*model.AuthorizationApproval, error)
	ListByAuthorization(ctx context.Context, authorizationID uuid.UUID) ([]model.AuthorizationApproval, error)
	FindUnresolved(ctx context.Context, authorizationID uuid.UUID) (*model.AuthorizationApproval, error)
	ListPendingForApprover(ctx context.Context, approverID uuid.UUID) ([]model.AuthorizationApproval, error)
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Create(ctx context.Context, step *model.AuthorizationApproval) error {
	return GetDB(ctx, r.db).Create(step).Error
}

func (r *approvalRepository) Update(ctx context.Context, step *model.AuthorizationApproval) error {
	return GetDB(ctx, r.db).Save(step).Error
}

func (r *approvalRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.AuthorizationApproval, error) {
	var step model.AuthorizationApproval
	if err := GetDB(ctx, r.db).First(&step, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &step, nil
}

func (r *approvalRepository) FindByIDLocked(ctx context.Context, id uuid.UUID) (*model.AuthorizationApproval, error) {
	var step model.AuthorizationApproval
	err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&step, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &step, nil
}

func (r *approvalRepository) FindByToken(ctx context.Context, token string) (*model.AuthorizationApproval, error) {
	var step model.AuthorizationApproval
	if err := GetDB(ctx, r.db).First(&step, "authorization_token = ?", token).Error; err != nil {
		return nil, err
	}
	return &step, nil
}

func (r *approvalRepository) ListByAuthorization(ctx context.Context, authorizationID uuid.UUID) ([]model.AuthorizationApproval, error) {
	var steps []model.AuthorizationApproval
	err := GetDB(ctx, r.db).
		Preload("Approver").
		Where("authorization_id = ?", authorizationID).
		Order("requested_on asc").
		Find(&steps).Error
	if err != nil {
		return nil, err
	}
	return steps, nil
}

// FindUnresolved returns the single open step for an authorization, if any.
// The workflow invariant guarantees at most one.
func (r *approvalRepository) FindUnresolved(ctx context.Context, authorizationID uuid.UUID) (*model.AuthorizationApproval, error) {
	var step model.AuthorizationApproval
	err := GetDB(ctx, r.db).
		Where("authorization_id = ? AND responded_on IS NULL", authorizationID).
		First(&step).Error
	if err != nil {
		return nil, err
	}
	return &step, nil
}

// ListPendingForApprover returns the approver's open queue, oldest first.
func (r *approvalRepository) ListPendingForApprover(ctx context.Context, approverID uuid.UUID) ([]model.AuthorizationApproval, error) {
	var steps []model.AuthorizationApproval
	err := GetDB(ctx, r.db).
		Preload("Authorization.Member").
		Preload("Authorization.Activity").
		Where("approver_id = ? AND responded_on IS NULL", approverID).
		Order("requested_on asc").
		Find(&steps).Error
	if err != nil {
		return nil, err
	}
	return steps, nil
}
