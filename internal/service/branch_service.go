package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"portal/internal/model"
	"portal/internal/repository"
)

// --- DTOs ---

type CreateBranchRequest struct {
	Name     string `json:"name" binding:"required"`
	ParentID string `json:"parent_id"` // empty for a root branch
}

type UpdateBranchRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"` // empty string makes it a root
}

type BranchResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
	Lft      int    `json:"lft"`
	Rght     int    `json:"rght"`
}

// BranchService manages the branch hierarchy. Every structural change
// rebuilds the nested-set numbering from the parent pointers so subtree
// queries stay a single range comparison.
type BranchService interface {
	CreateBranch(ctx context.Context, req CreateBranchRequest) (*BranchResponse, error)
	GetBranch(ctx context.Context, id string) (*BranchResponse, error)
	ListBranches(ctx context.Context) ([]BranchResponse, error)
	Descendants(ctx context.Context, id string) ([]BranchResponse, error)
	UpdateBranch(ctx context.Context, id string, req UpdateBranchRequest) (*BranchResponse, error)
}

type branchService struct {
	branches    repository.BranchRepository
	permissions PermissionService
}

func NewBranchService(branches repository.BranchRepository, permissions PermissionService) BranchService {
	return &branchService{branches: branches, permissions: permissions}
}

func (s *branchService) CreateBranch(ctx context.Context, req CreateBranchRequest) (*BranchResponse, error) {
	branch := &model.Branch{Name: req.Name}

	if req.ParentID != "" {
		parentID, err := uuid.Parse(req.ParentID)
		if err != nil {
			return nil, fmt.Errorf("invalid parent id: %w", err)
		}
		if _, err := s.branches.FindByID(ctx, parentID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrBranchNotFound
			}
			return nil, fmt.Errorf("failed to load parent branch: %w", err)
		}
		branch.ParentID = &parentID
	}

	if err := s.branches.Create(ctx, branch); err != nil {
		return nil, fmt.Errorf("failed to create branch: %w", err)
	}
	if err := s.branches.RebuildTree(ctx); err != nil {
		return nil, fmt.Errorf("failed to rebuild branch tree: %w", err)
	}

	return s.GetBranch(ctx, branch.ID.String())
}

func (s *branchService) GetBranch(ctx context.Context, id string) (*BranchResponse, error) {
	branchID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid branch id: %w", err)
	}
	branch, err := s.branches.FindByID(ctx, branchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBranchNotFound
		}
		return nil, fmt.Errorf("failed to load branch: %w", err)
	}
	resp := toBranchResponse(branch)
	return &resp, nil
}

func (s *branchService) ListBranches(ctx context.Context) ([]BranchResponse, error) {
	branches, err := s.branches.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	res := make([]BranchResponse, 0, len(branches))
	for i := range branches {
		res = append(res, toBranchResponse(&branches[i]))
	}
	return res, nil
}

func (s *branchService) Descendants(ctx context.Context, id string) ([]BranchResponse, error) {
	branchID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid branch id: %w", err)
	}
	if _, err := s.branches.FindByID(ctx, branchID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBranchNotFound
		}
		return nil, fmt.Errorf("failed to load branch: %w", err)
	}

	descendants, err := s.branches.Descendants(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list descendants: %w", err)
	}
	res := make([]BranchResponse, 0, len(descendants))
	for i := range descendants {
		res = append(res, toBranchResponse(&descendants[i]))
	}
	return res, nil
}

func (s *branchService) UpdateBranch(ctx context.Context, id string, req UpdateBranchRequest) (*BranchResponse, error) {
	branchID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid branch id: %w", err)
	}
	branch, err := s.branches.FindByID(ctx, branchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBranchNotFound
		}
		return nil, fmt.Errorf("failed to load branch: %w", err)
	}

	if req.Name != "" {
		branch.Name = req.Name
	}

	reparented := false
	if req.ParentID != nil {
		if *req.ParentID == "" {
			branch.ParentID = nil
		} else {
			parentID, err := uuid.Parse(*req.ParentID)
			if err != nil {
				return nil, fmt.Errorf("invalid parent id: %w", err)
			}
			if parentID == branchID {
				return nil, errors.New("branch cannot be its own parent")
			}
			parent, err := s.branches.FindByID(ctx, parentID)
			if err != nil {
				return nil, ErrBranchNotFound
			}
			// Reject moves under the branch's own subtree.
			if branch.Contains(parent) {
				return nil, errors.New("cannot move a branch under its own descendant")
			}
			branch.ParentID = &parentID
		}
		reparented = true
	}

	if err := s.branches.Update(ctx, branch); err != nil {
		return nil, fmt.Errorf("failed to update branch: %w", err)
	}
	if reparented {
		if err := s.branches.RebuildTree(ctx); err != nil {
			return nil, fmt.Errorf("failed to rebuild branch tree: %w", err)
		}
		// Subtree shapes changed, so every scoped permission may differ.
		s.permissions.InvalidateAll(ctx)
	}

	return s.GetBranch(ctx, id)
}

func toBranchResponse(b *model.Branch) BranchResponse {
	resp := BranchResponse{
		ID:   b.ID.String(),
		Name: b.Name,
		Lft:  b.Lft,
		Rght: b.Rght,
	}
	if b.ParentID != nil {
		resp.ParentID = b.ParentID.String()
	}
	return resp
}
