package repository

import (
	"context"

	"portal/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ActivityRepository interface {
	Create(ctx context.Context, activity *model.Activity) error
	Update(ctx context.Context, activity *model.Activity) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Activity, error)
	FindByIDWithPermission(ctx context.Context, id uuid.UUID) (*model.Activity, error)
	ListAll(ctx context.Context) ([]model.Activity, error)
}

type activityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, activity *model.Activity) error {
	return GetDB(ctx, r.db).Create(activity).Error
}

func (r *activityRepository) Update(ctx context.Context, activity *model.Activity) error {
	return GetDB(ctx, r.db).Save(activity).Error
}

func (r *activityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Activity{}).Error
}

func (r *activityRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Activity, error) {
	var activity model.Activity
	if err := GetDB(ctx, r.db).First(&activity, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &activity, nil
}

func (r *activityRepository) FindByIDWithPermission(ctx context.Context, id uuid.UUID) (*model.Activity, error) {
	var activity model.Activity
	if err := GetDB(ctx, r.db).Preload("Permission").First(&activity, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &activity, nil
}

func (r *activityRepository) ListAll(ctx context.Context) ([]model.Activity, error) {
	var activities []model.Activity
	if err := GetDB(ctx, r.db).Preload("Permission").Order("name asc").Find(&activities).Error; err != nil {
		return nil, err
	}
	return activities, nil
}
