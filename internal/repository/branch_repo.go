package repository

import (
	"context"
	"fmt"

	"portal/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BranchRepository interface {
	Create(ctx context.Context, branch *model.Branch) error
	Update(ctx context.Context, branch *model.Branch) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Branch, error)
	FindByName(ctx context.Context, name string) (*model.Branch, error)
	ListAll(ctx context.Context) ([]model.Branch, error)
	Descendants(ctx context.Context, id uuid.UUID) ([]model.Branch, error)
	RebuildTree(ctx context.Context) error
}

type branchRepository struct {
	db *gorm.DB
}

func NewBranchRepository(db *gorm.DB) BranchRepository {
	return &branchRepository{db: db}
}

func (r *branchRepository) Create(ctx context.Context, branch *model.Branch) error {
	return GetDB(ctx, r.db).Create(branch).Error
}

func (r *branchRepository) Update(ctx context.Context, branch *model.Branch) error {
	return GetDB(ctx, r.db).Save(branch).Error
}

func (r *branchRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Branch, error) {
	var branch model.Branch
	if err := GetDB(ctx, r.db).First(&branch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &branch, nil
}

func (r *branchRepository) FindByName(ctx context.Context, name string) (*model.Branch, error) {
	var branch model.Branch
	if err := GetDB(ctx, r.db).Where("name = ?", name).First(&branch).Error; err != nil {
		return nil, err
	}
	return &branch, nil
}

func (r *branchRepository) ListAll(ctx context.Context) ([]model.Branch, error) {
	var branches []model.Branch
	if err := GetDB(ctx, r.db).Order("lft asc").Find(&branches).Error; err != nil {
		return nil, err
	}
	return branches, nil
}

// Descendants returns every branch strictly inside the given branch's
// nested-set bounds, ordered by tree position.
func (r *branchRepository) Descendants(ctx context.Context, id uuid.UUID) ([]model.Branch, error) {
	var root model.Branch
	if err := GetDB(ctx, r.db).First(&root, "id = ?", id).Error; err != nil {
		return nil, err
	}

	var branches []model.Branch
	err := GetDB(ctx, r.db).
		Where("lft > ? AND rght < ?", root.Lft, root.Rght).
		Order("lft asc").
		Find(&branches).Error
	if err != nil {
		return nil, err
	}
	return branches, nil
}

// RebuildTree recomputes all lft/rght bounds from the parent pointers in a
// single transaction: a depth-first walk numbering each node on entry and
// exit, children visited in name order. Run after structural edits.
func (r *branchRepository) RebuildTree(ctx context.Context) error {
	return GetDB(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var branches []model.Branch
		if err := tx.Order("name asc").Find(&branches).Error; err != nil {
			return err
		}

		children := make(map[uuid.UUID][]*model.Branch)
		var roots []*model.Branch
		for i := range branches {
			b := &branches[i]
			if b.ParentID == nil {
				roots = append(roots, b)
			} else {
				children[*b.ParentID] = append(children[*b.ParentID], b)
			}
		}

		counter := 0
		var number func(b *model.Branch) error
		number = func(b *model.Branch) error {
			counter++
			b.Lft = counter
			for _, child := range children[b.ID] {
				if err := number(child); err != nil {
					return err
				}
			}
			counter++
			b.Rght = counter
			return tx.Model(&model.Branch{}).Where("id = ?", b.ID).
				Updates(map[string]interface{}{"lft": b.Lft, "rght": b.Rght}).Error
		}

		for _, root := range roots {
			if err := number(root); err != nil {
				return fmt.Errorf("failed to renumber branch tree: %w", err)
			}
		}
		return nil
	})
}
