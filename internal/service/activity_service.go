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

type CreateActivityRequest struct {
	Name                  string `json:"name" binding:"required"`
	Description           string `json:"description"`
	TermLength            int    `json:"term_length"` // months; defaults to 48
	MinimumAge            int    `json:"minimum_age"`
	MaximumAge            int    `json:"maximum_age"`
	NumRequiredAuthorizors int   `json:"num_required_authorizors"`
	NumRequiredRenewers   int    `json:"num_required_renewers"`
	PermissionID          string `json:"permission_id" binding:"required"`
	GrantsRoleID          string `json:"grants_role_id"`
}

type UpdateActivityRequest struct {
	Name                  string `json:"name"`
	Description           string `json:"description"`
	TermLength            *int   `json:"term_length"`
	MinimumAge            *int   `json:"minimum_age"`
	MaximumAge            *int   `json:"maximum_age"`
	NumRequiredAuthorizors *int  `json:"num_required_authorizors"`
	NumRequiredRenewers   *int   `json:"num_required_renewers"`
	PermissionID          string `json:"permission_id"`
	GrantsRoleID          *string `json:"grants_role_id"` // empty string clears the link
}

type ActivityResponse struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Description           string `json:"description"`
	TermLength            int    `json:"term_length"`
	MinimumAge            int    `json:"minimum_age"`
	MaximumAge            int    `json:"maximum_age"`
	NumRequiredAuthorizors int   `json:"num_required_authorizors"`
	NumRequiredRenewers   int    `json:"num_required_renewers"`
	PermissionID          string `json:"permission_id"`
	PermissionName        string `json:"permission_name,omitempty"`
	GrantsRoleID          string `json:"grants_role_id,omitempty"`
}

type EligibleApproverResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	BranchName string `json:"branch_name,omitempty"`
}

// --- Interface ---

type ActivityService interface {
	CreateActivity(ctx context.Context, req CreateActivityRequest) (*ActivityResponse, error)
	GetActivity(ctx context.Context, id string) (*ActivityResponse, error)
	ListActivities(ctx context.Context) ([]ActivityResponse, error)
	UpdateActivity(ctx context.Context, id string, req UpdateActivityRequest) (*ActivityResponse, error)
	DeleteActivity(ctx context.Context, id string) error
	// EligibleApprovers lists members able to approve an authorization
	// request for the activity from a member of the given branch.
	EligibleApprovers(ctx context.Context, activityID, requesterID string) ([]EligibleApproverResponse, error)
}

type activityService struct {
	activities repository.ActivityRepository
	members    repository.MemberRepository
	roles      repository.RoleRepository
	approvers  ApproverService
}

func NewActivityService(activities repository.ActivityRepository, members repository.MemberRepository, roles repository.RoleRepository, approvers ApproverService) ActivityService {
	return &activityService{activities: activities, members: members, roles: roles, approvers: approvers}
}

// --- Implementation ---

func (s *activityService) CreateActivity(ctx context.Context, req CreateActivityRequest) (*ActivityResponse, error) {
	permissionID, err := uuid.Parse(req.PermissionID)
	if err != nil {
		return nil, fmt.Errorf("invalid permission id: %w", err)
	}
	if _, err := s.roles.FindPermissionByID(ctx, permissionID); err != nil {
		return nil, fmt.Errorf("permission not found: %w", err)
	}

	activity := &model.Activity{
		Name:         req.Name,
		Description:  req.Description,
		MinimumAge:   req.MinimumAge,
		MaximumAge:   200,
		PermissionID: permissionID,
	}
	if req.MaximumAge > 0 {
		activity.MaximumAge = req.MaximumAge
	}
	if req.TermLength > 0 {
		activity.TermLength = req.TermLength
	}
	if req.NumRequiredAuthorizors > 0 {
		activity.NumRequiredAuthorizors = req.NumRequiredAuthorizors
	}
	if req.NumRequiredRenewers > 0 {
		activity.NumRequiredRenewers = req.NumRequiredRenewers
	}
	if activity.MinimumAge > activity.MaximumAge {
		return nil, errors.New("minimum age exceeds maximum age")
	}
	if req.GrantsRoleID != "" {
		roleID, err := uuid.Parse(req.GrantsRoleID)
		if err != nil {
			return nil, fmt.Errorf("invalid grants role id: %w", err)
		}
		if _, err := s.roles.FindByID(ctx, roleID); err != nil {
			return nil, ErrRoleNotFound
		}
		activity.GrantsRoleID = &roleID
	}

	if err := s.activities.Create(ctx, activity); err != nil {
		return nil, fmt.Errorf("failed to create activity: %w", err)
	}
	return s.GetActivity(ctx, activity.ID.String())
}

func (s *activityService) GetActivity(ctx context.Context, id string) (*ActivityResponse, error) {
	activityID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid activity id: %w", err)
	}
	activity, err := s.activities.FindByIDWithPermission(ctx, activityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}
	resp := toActivityResponse(activity)
	return &resp, nil
}

func (s *activityService) ListActivities(ctx context.Context) ([]ActivityResponse, error) {
	activities, err := s.activities.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	res := make([]ActivityResponse, 0, len(activities))
	for i := range activities {
		res = append(res, toActivityResponse(&activities[i]))
	}
	return res, nil
}

func (s *activityService) UpdateActivity(ctx context.Context, id string, req UpdateActivityRequest) (*ActivityResponse, error) {
	activityID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid activity id: %w", err)
	}
	activity, err := s.activities.FindByID(ctx, activityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}

	if req.Name != "" {
		activity.Name = req.Name
	}
	if req.Description != "" {
		activity.Description = req.Description
	}
	if req.TermLength != nil {
		if *req.TermLength <= 0 {
			return nil, errors.New("term length must be positive")
		}
		activity.TermLength = *req.TermLength
	}
	if req.MinimumAge != nil {
		activity.MinimumAge = *req.MinimumAge
	}
	if req.MaximumAge != nil {
		activity.MaximumAge = *req.MaximumAge
	}
	if activity.MinimumAge > activity.MaximumAge {
		return nil, errors.New("minimum age exceeds maximum age")
	}
	if req.NumRequiredAuthorizors != nil {
		if *req.NumRequiredAuthorizors < 1 {
			return nil, errors.New("at least one authorizor is required")
		}
		activity.NumRequiredAuthorizors = *req.NumRequiredAuthorizors
	}
	if req.NumRequiredRenewers != nil {
		if *req.NumRequiredRenewers < 1 {
			return nil, errors.New("at least one renewer is required")
		}
		activity.NumRequiredRenewers = *req.NumRequiredRenewers
	}
	if req.PermissionID != "" {
		permissionID, err := uuid.Parse(req.PermissionID)
		if err != nil {
			return nil, fmt.Errorf("invalid permission id: %w", err)
		}
		if _, err := s.roles.FindPermissionByID(ctx, permissionID); err != nil {
			return nil, fmt.Errorf("permission not found: %w", err)
		}
		activity.PermissionID = permissionID
	}
	if req.GrantsRoleID != nil {
		if *req.GrantsRoleID == "" {
			activity.GrantsRoleID = nil
		} else {
			roleID, err := uuid.Parse(*req.GrantsRoleID)
			if err != nil {
				return nil, fmt.Errorf("invalid grants role id: %w", err)
			}
			if _, err := s.roles.FindByID(ctx, roleID); err != nil {
				return nil, ErrRoleNotFound
			}
			activity.GrantsRoleID = &roleID
		}
	}

	if err := s.activities.Update(ctx, activity); err != nil {
		return nil, fmt.Errorf("failed to update activity: %w", err)
	}
	return s.GetActivity(ctx, id)
}

func (s *activityService) DeleteActivity(ctx context.Context, id string) error {
	activityID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid activity id: %w", err)
	}
	if _, err := s.activities.FindByID(ctx, activityID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrActivityNotFound
		}
		return fmt.Errorf("failed to load activity: %w", err)
	}
	return s.activities.Delete(ctx, activityID)
}

func (s *activityService) EligibleApprovers(ctx context.Context, activityID, requesterID string) ([]EligibleApproverResponse, error) {
	actID, err := uuid.Parse(activityID)
	if err != nil {
		return nil, fmt.Errorf("invalid activity id: %w", err)
	}
	reqID, err := uuid.Parse(requesterID)
	if err != nil {
		return nil, fmt.Errorf("invalid member id: %w", err)
	}

	requester, err := s.members.GetByID(ctx, reqID)
	if err != nil {
		return nil, ErrMemberNotFound
	}

	candidates, err := s.approvers.EligibleApprovers(ctx, actID, requester.BranchID, []uuid.UUID{reqID})
	if err != nil {
		return nil, err
	}

	res := make([]EligibleApproverResponse, 0, len(candidates))
	for i := range candidates {
		r := EligibleApproverResponse{
			ID:   candidates[i].ID.String(),
			Name: candidates[i].DisplayName(),
		}
		if candidates[i].Branch != nil {
			r.BranchName = candidates[i].Branch.Name
		}
		res = append(res, r)
	}
	return res, nil
}

func toActivityResponse(a *model.Activity) ActivityResponse {
	resp := ActivityResponse{
		ID:                    a.ID.String(),
		Name:                  a.Name,
		Description:           a.Description,
		TermLength:            a.TermLength,
		MinimumAge:            a.MinimumAge,
		MaximumAge:            a.MaximumAge,
		NumRequiredAuthorizors: a.NumRequiredAuthorizors,
		NumRequiredRenewers:   a.NumRequiredRenewers,
		PermissionID:          a.PermissionID.String(),
	}
	if a.Permission != nil {
		resp.PermissionName = a.Permission.Name
	}
	if a.GrantsRoleID != nil {
		resp.GrantsRoleID = a.GrantsRoleID.String()
	}
	return resp
}
