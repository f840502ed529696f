package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"portal/internal/model"
	"portal/internal/repository"
)

// --- DTOs ---

type CreateGrantRequest struct {
	MemberID  string  `json:"member_id"` // taken from the URL path when empty
	RoleID    string  `json:"role_id" binding:"required"`
	StartOn   *string `json:"start_on"`   // RFC 3339; defaults to now
	ExpiresOn *string `json:"expires_on"` // RFC 3339; nil = indefinite
	// Source is either direct_grant or warrant. Activity authorizations
	// create their grants through the workflow engine, never here.
	Source string `json:"source" binding:"required"`
}

type GrantResponse struct {
	ID         string  `json:"id"`
	MemberID   string  `json:"member_id"`
	MemberName string  `json:"member_name,omitempty"`
	RoleID     string  `json:"role_id"`
	RoleName   string  `json:"role_name,omitempty"`
	StartOn    string  `json:"start_on"`
	ExpiresOn  *string `json:"expires_on"`
	Source     string  `json:"source"`
	Active     bool    `json:"active"`
}

// GrantService manages time-windowed role grants on members. Every
// mutation invalidates the member's derived permission set.
type GrantService interface {
	CreateGrant(ctx context.Context, approverID string, req CreateGrantRequest) (*GrantResponse, error)
	ListGrants(ctx context.Context, memberID string) ([]GrantResponse, error)
	EndGrant(ctx context.Context, grantID string) error
}

type grantService struct {
	memberRoles repository.MemberRoleRepository
	members     repository.MemberRepository
	roles       repository.RoleRepository
	permissions PermissionService
	clock       Clock
}

func NewGrantService(memberRoles repository.MemberRoleRepository, members repository.MemberRepository, roles repository.RoleRepository, permissions PermissionService, clock Clock) GrantService {
	return &grantService{memberRoles: memberRoles, members: members, roles: roles, permissions: permissions, clock: clock}
}

func (s *grantService) CreateGrant(ctx context.Context, approverID string, req CreateGrantRequest) (*GrantResponse, error) {
	if req.Source != model.GrantSourceDirect && req.Source != model.GrantSourceWarrant {
		return nil, fmt.Errorf("invalid grant source '%s'", req.Source)
	}

	memberID, err := uuid.Parse(req.MemberID)
	if err != nil {
		return nil, fmt.Errorf("invalid member id: %w", err)
	}
	roleID, err := uuid.Parse(req.RoleID)
	if err != nil {
		return nil, fmt.Errorf("invalid role id: %w", err)
	}

	if _, err := s.members.GetByID(ctx, memberID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to load member: %w", err)
	}
	if _, err := s.roles.FindByID(ctx, roleID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to load role: %w", err)
	}

	now := s.clock()
	startOn := now
	if req.StartOn != nil {
		t, err := time.Parse(time.RFC3339, *req.StartOn)
		if err != nil {
			return nil, fmt.Errorf("invalid start date: %w", err)
		}
		startOn = t
	}

	var expiresOn *time.Time
	if req.ExpiresOn != nil {
		t, err := time.Parse(time.RFC3339, *req.ExpiresOn)
		if err != nil {
			return nil, fmt.Errorf("invalid expiry date: %w", err)
		}
		if !t.After(startOn) {
			return nil, errors.New("expiry must be after start")
		}
		expiresOn = &t
	}

	grant := &model.MemberRole{
		MemberID:   memberID,
		RoleID:     roleID,
		StartOn:    startOn,
		ExpiresOn:  expiresOn,
		EntityType: req.Source,
	}
	if approverID != "" {
		id, err := uuid.Parse(approverID)
		if err != nil {
			return nil, fmt.Errorf("invalid approver id: %w", err)
		}
		grant.ApproverID = &id
	}

	if err := s.memberRoles.Create(ctx, grant); err != nil {
		return nil, fmt.Errorf("failed to create grant: %w", err)
	}

	s.permissions.Invalidate(ctx, memberID)

	return s.toGrantResponse(ctx, grant, now), nil
}

func (s *grantService) ListGrants(ctx context.Context, memberID string) ([]GrantResponse, error) {
	id, err := uuid.Parse(memberID)
	if err != nil {
		return nil, fmt.Errorf("invalid member id: %w", err)
	}

	grants, err := s.memberRoles.ListByMember(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}

	now := s.clock()
	res := make([]GrantResponse, 0, len(grants))
	for i := range grants {
		res = append(res, *s.toGrantResponse(ctx, &grants[i], now))
	}
	return res, nil
}

func (s *grantService) EndGrant(ctx context.Context, grantID string) error {
	id, err := uuid.Parse(grantID)
	if err != nil {
		return fmt.Errorf("invalid grant id: %w", err)
	}

	grant, err := s.memberRoles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("grant not found")
		}
		return fmt.Errorf("failed to load grant: %w", err)
	}

	// Grants produced by the authorization workflow end with the
	// authorization, not by hand.
	if grant.EntityType == model.GrantSourceAuthorization {
		return errors.New("authorization-backed grants end with the authorization")
	}

	if err := s.memberRoles.EndGrant(ctx, id, s.clock()); err != nil {
		return fmt.Errorf("failed to end grant: %w", err)
	}

	s.permissions.Invalidate(ctx, grant.MemberID)
	return nil
}

func (s *grantService) toGrantResponse(ctx context.Context, g *model.MemberRole, now time.Time) *GrantResponse {
	resp := &GrantResponse{
		ID:       g.ID.String(),
		MemberID: g.MemberID.String(),
		RoleID:   g.RoleID.String(),
		StartOn:  g.StartOn.Format(time.RFC3339),
		Source:   g.EntityType,
	}
	if g.ExpiresOn != nil {
		t := g.ExpiresOn.Format(time.RFC3339)
		resp.ExpiresOn = &t
	}
	resp.Active = !g.StartOn.After(now) && (g.ExpiresOn == nil || g.ExpiresOn.After(now))

	if g.Member != nil {
		resp.MemberName = g.Member.DisplayName()
	}
	if g.Role != nil {
		resp.RoleName = g.Role.Name
	} else if role, err := s.roles.FindByID(ctx, g.RoleID); err == nil {
		resp.RoleName = role.Name
	}
	return resp
}
