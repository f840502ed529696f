package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"portal/internal/authz"
	"portal/internal/cache"
	"portal/internal/metrics"
	"portal/internal/repository"
)

// Clock supplies the current instant. Injected so workflow tests can pin
// time.
type Clock func() time.Time

// PermissionService is the permission aggregator: it derives a member's
// effective permission set from currently-valid role grants.
type PermissionService interface {
	// EffectivePermissions computes (or serves from cache) the member's
	// permission set as of now.
	EffectivePermissions(ctx context.Context, memberID uuid.UUID) (*authz.PermissionSet, error)
	// EffectivePermissionsAt computes the set at an explicit instant,
	// bypassing the cache. Used by the engine when evaluating historical
	// or scheduled instants.
	EffectivePermissionsAt(ctx context.Context, memberID uuid.UUID, asOf time.Time) (*authz.PermissionSet, error)
	// Invalidate drops the member's cached set. Call after granting or
	// ending a role, or moving the member between branches.
	Invalidate(ctx context.Context, memberID uuid.UUID)
	// InvalidateAll drops every cached set. Call after editing role or
	// permission definitions.
	InvalidateAll(ctx context.Context)
}

type permissionService struct {
	members     repository.MemberRepository
	memberRoles repository.MemberRoleRepository
	branches    repository.BranchRepository
	cache       cache.PermissionCache
	clock       Clock
}

func NewPermissionService(
	members repository.MemberRepository,
	memberRoles repository.MemberRoleRepository,
	branches repository.BranchRepository,
	permCache cache.PermissionCache,
	clock Clock,
) PermissionService {
	return &permissionService{
		members:     members,
		memberRoles: memberRoles,
		branches:    branches,
		cache:       permCache,
		clock:       clock,
	}
}

func (s *permissionService) EffectivePermissions(ctx context.Context, memberID uuid.UUID) (*authz.PermissionSet, error) {
	if set, ok := s.cache.Get(ctx, memberID); ok {
		metrics.PermissionCacheLookups.WithLabelValues("hit").Inc()
		return set, nil
	}
	metrics.PermissionCacheLookups.WithLabelValues("miss").Inc()

	set, err := s.EffectivePermissionsAt(ctx, memberID, s.clock())
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, memberID, set)
	return set, nil
}

func (s *permissionService) EffectivePermissionsAt(ctx context.Context, memberID uuid.UUID, asOf time.Time) (*authz.PermissionSet, error) {
	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to load member: %w", err)
	}

	grants, err := s.memberRoles.ListValidForMember(ctx, memberID, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to load role grants: %w", err)
	}

	branches, err := s.branches.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load branch tree: %w", err)
	}
	tree := authz.NewTreeIndex(branches)

	set := &authz.PermissionSet{MemberID: memberID, ComputedAt: asOf}

	// Union permissions across all valid grants, dedupe by permission
	// identity keeping the widest scope observed, and drop permissions
	// whose requirement gates the member fails.
	seen := make(map[uuid.UUID]int) // permission ID -> index in set.Permissions
	for _, grant := range grants {
		if grant.Role == nil {
			continue
		}
		for _, perm := range grant.Role.Permissions {
			if err := authz.MeetsRequirements(member, &perm, grants, asOf); err != nil {
				continue
			}

			rule, err := authz.ParseScopingRule(perm.ScopingRule)
			if err != nil {
				// Corrupt configuration, not a business outcome.
				return nil, fmt.Errorf("permission %q: %w", perm.Name, err)
			}

			if perm.IsSuperUser {
				set.SuperUser = true
			}

			scope := authz.BranchesInScope(rule, member.BranchID, tree)
			if idx, ok := seen[perm.ID]; ok {
				existing, _ := authz.ParseScopingRule(set.Permissions[idx].Permission.ScopingRule)
				if rule.Wider(existing) {
					set.Permissions[idx] = authz.EffectivePermission{Permission: perm, Scope: scope}
				}
				continue
			}

			seen[perm.ID] = len(set.Permissions)
			set.Permissions = append(set.Permissions, authz.EffectivePermission{Permission: perm, Scope: scope})
		}
	}

	return set, nil
}

func (s *permissionService) Invalidate(ctx context.Context, memberID uuid.UUID) {
	s.cache.Invalidate(ctx, memberID)
}

func (s *permissionService) InvalidateAll(ctx context.Context) {
	s.cache.InvalidateAll(ctx)
}
