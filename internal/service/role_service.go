package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"portal/internal/authz"
	"portal/internal/model"
	"portal/internal/repository"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"` // Permission UUIDs
}

type UpdateRoleRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type UpdateRolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids" binding:"required"`
}

type CreatePermissionRequest struct {
	Name                         string `json:"name" binding:"required"`
	RequireActiveMembership      bool   `json:"require_active_membership"`
	RequireActiveBackgroundCheck bool   `json:"require_active_background_check"`
	RequiresWarrant              bool   `json:"requires_warrant"`
	MinimumAge                   int    `json:"minimum_age"`
	IsSuperUser                  bool   `json:"is_super_user"`
	ScopingRule                  string `json:"scoping_rule" binding:"required"`
	ActivityID                   string `json:"activity_id"`
}

type RoleResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	IsSystem    bool                 `json:"is_system"`
	Permissions []PermissionResponse `json:"permissions"`
	CreatedAt   string               `json:"created_at"`
}

type PermissionResponse struct {
	ID                           string `json:"id"`
	Name                         string `json:"name"`
	RequireActiveMembership      bool   `json:"require_active_membership"`
	RequireActiveBackgroundCheck bool   `json:"require_active_background_check"`
	RequiresWarrant              bool   `json:"requires_warrant"`
	MinimumAge                   int    `json:"minimum_age"`
	IsSuperUser                  bool   `json:"is_super_user"`
	ScopingRule                  string `json:"scoping_rule"`
	ActivityID                   string `json:"activity_id,omitempty"`
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id string) (*RoleResponse, error)
	CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, id string) error
	ListPermissions(ctx context.Context) ([]PermissionResponse, error)
	CreatePermission(ctx context.Context, req CreatePermissionRequest) (*PermissionResponse, error)
	UpdateRolePermissions(ctx context.Context, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error)
}

type roleService struct {
	roles       repository.RoleRepository
	permissions PermissionService
}

func NewRoleService(roles repository.RoleRepository, permissions PermissionService) RoleService {
	return &roleService{roles: roles, permissions: permissions}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.roles.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, id string) (*RoleResponse, error) {
	roleID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid role id: %w", err)
	}

	role, err := s.roles.FindByIDWithPermissions(ctx, roleID)
	if err != nil {
		return nil, ErrRoleNotFound
	}

	resp := toRoleResponse(*role)
	return &resp, nil
}

func (s *roleService) CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error) {
	role := &model.Role{
		Name:        req.Name,
		Description: req.Description,
		IsSystem:    false,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	if len(req.Permissions) > 0 {
		permIDs := make([]uuid.UUID, 0, len(req.Permissions))
		for _, pid := range req.Permissions {
			parsed, parseErr := uuid.Parse(pid)
			if parseErr != nil {
				return nil, fmt.Errorf("invalid permission id '%s': %w", pid, parseErr)
			}
			permIDs = append(permIDs, parsed)
		}
		if err := s.roles.UpdatePermissions(ctx, role.ID, permIDs); err != nil {
			return nil, fmt.Errorf("failed to assign permissions: %w", err)
		}
	}

	return s.GetRole(ctx, role.ID.String())
}

func (s *roleService) UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error) {
	roleID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid role id: %w", err)
	}

	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		return nil, ErrRoleNotFound
	}

	role.Name = req.Name
	role.Description = req.Description
	if err := s.roles.Update(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	return s.GetRole(ctx, id)
}

func (s *roleService) DeleteRole(ctx context.Context, id string) error {
	roleID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid role id: %w", err)
	}

	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		return ErrRoleNotFound
	}
	if role.IsSystem {
		return fmt.Errorf("cannot delete system role '%s'", role.Name)
	}

	if err := s.roles.Delete(ctx, roleID); err != nil {
		return err
	}
	s.permissions.InvalidateAll(ctx)
	return nil
}

func (s *roleService) ListPermissions(ctx context.Context) ([]PermissionResponse, error) {
	perms, err := s.roles.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res, nil
}

func (s *roleService) CreatePermission(ctx context.Context, req CreatePermissionRequest) (*PermissionResponse, error) {
	if _, err := authz.ParseScopingRule(req.ScopingRule); err != nil {
		if errors.Is(err, authz.ErrInvalidScopingRule) {
			return nil, fmt.Errorf("invalid scoping rule '%s'", req.ScopingRule)
		}
		return nil, err
	}
	if req.MinimumAge < 0 {
		return nil, errors.New("minimum age cannot be negative")
	}

	perm := &model.Permission{
		Name:                         req.Name,
		RequireActiveMembership:      req.RequireActiveMembership,
		RequireActiveBackgroundCheck: req.RequireActiveBackgroundCheck,
		RequiresWarrant:              req.RequiresWarrant,
		MinimumAge:                   req.MinimumAge,
		IsSuperUser:                  req.IsSuperUser,
		ScopingRule:                  req.ScopingRule,
	}
	if req.ActivityID != "" {
		activityID, err := uuid.Parse(req.ActivityID)
		if err != nil {
			return nil, fmt.Errorf("invalid activity id: %w", err)
		}
		perm.ActivityID = &activityID
	}

	if err := s.roles.FindOrCreatePermission(ctx, perm); err != nil {
		return nil, fmt.Errorf("failed to create permission: %w", err)
	}
	resp := toPermissionResponse(*perm)
	return &resp, nil
}

func (s *roleService) UpdateRolePermissions(ctx context.Context, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error) {
	id, err := uuid.Parse(roleID)
	if err != nil {
		return nil, fmt.Errorf("invalid role id: %w", err)
	}

	if _, err := s.roles.FindByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to load role: %w", err)
	}

	permIDs := make([]uuid.UUID, 0, len(req.PermissionIDs))
	for _, pid := range req.PermissionIDs {
		parsed, parseErr := uuid.Parse(pid)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid permission id '%s': %w", pid, parseErr)
		}
		permIDs = append(permIDs, parsed)
	}

	if err := s.roles.UpdatePermissions(ctx, id, permIDs); err != nil {
		return nil, fmt.Errorf("failed to update permissions: %w", err)
	}

	// Any member holding the role may now wield a different set.
	s.permissions.InvalidateAll(ctx)

	return s.GetRole(ctx, roleID)
}

// --- Helpers ---

func toRoleResponse(r model.Role) RoleResponse {
	perms := make([]PermissionResponse, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}

	return RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		Permissions: perms,
		CreatedAt:   r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	resp := PermissionResponse{
		ID:                           p.ID.String(),
		Name:                         p.Name,
		RequireActiveMembership:      p.RequireActiveMembership,
		RequireActiveBackgroundCheck: p.RequireActiveBackgroundCheck,
		RequiresWarrant:              p.RequiresWarrant,
		MinimumAge:                   p.MinimumAge,
		IsSuperUser:                  p.IsSuperUser,
		ScopingRule:                  p.ScopingRule,
	}
	if p.ActivityID != nil {
		resp.ActivityID = p.ActivityID.String()
	}
	return resp
}
