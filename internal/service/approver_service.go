package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"portal/internal/authz"
	"portal/internal/model"
	"portal/internal/repository"
)

// ApproverService computes the eligible-approver candidate set for an
// activity and branch scope. The engine uses it both to populate
// next-approver choices and to validate a chosen approver.
type ApproverService interface {
	// EligibleApprovers returns every member who may approve an
	// authorization for the activity requested from the given branch,
	// excluding the listed member IDs (the requester and any approvers
	// already consulted). An empty list is a legitimate outcome, not an
	// error.
	EligibleApprovers(ctx context.Context, activityID, requesterBranchID uuid.UUID, exclude []uuid.UUID) ([]model.Member, error)
	// IsEligible reports whether one specific member is in the eligible
	// set.
	IsEligible(ctx context.Context, activityID, requesterBranchID, approverID uuid.UUID, exclude []uuid.UUID) (bool, error)
}

type approverService struct {
	activities  repository.ActivityRepository
	members     repository.MemberRepository
	branches    repository.BranchRepository
	permissions PermissionService
	clock       Clock
}

func NewApproverService(
	activities repository.ActivityRepository,
	members repository.MemberRepository,
	branches repository.BranchRepository,
	permissions PermissionService,
	clock Clock,
) ApproverService {
	return &approverService{
		activities:  activities,
		members:     members,
		branches:    branches,
		permissions: permissions,
		clock:       clock,
	}
}

func (s *approverService) EligibleApprovers(ctx context.Context, activityID, requesterBranchID uuid.UUID, exclude []uuid.UUID) ([]model.Member, error) {
	activity, err := s.activities.FindByIDWithPermission(ctx, activityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}
	if activity.Permission == nil {
		return nil, fmt.Errorf("activity %q has no governing permission configured", activity.Name)
	}

	rule, err := authz.ParseScopingRule(activity.Permission.ScopingRule)
	if err != nil {
		return nil, fmt.Errorf("activity %q: %w", activity.Name, err)
	}

	branches, err := s.branches.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load branch tree: %w", err)
	}
	tree := authz.NewTreeIndex(branches)

	// Scope is rooted at the requesting member's branch: the permission's
	// scoping rule decides how far around that branch approvers may sit.
	scope := authz.BranchesInScope(rule, requesterBranchID, tree)

	excluded := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	candidates, err := s.members.ListHoldersOfPermission(ctx, activity.PermissionID, s.clock())
	if err != nil {
		return nil, fmt.Errorf("failed to load permission holders: %w", err)
	}

	var eligible []model.Member
	for _, candidate := range candidates {
		if excluded[candidate.ID] {
			continue
		}

		set, err := s.permissions.EffectivePermissions(ctx, candidate.ID)
		if err != nil {
			return nil, err
		}

		if set.SuperUser {
			eligible = append(eligible, candidate)
			continue
		}
		if !set.Has(activity.Permission.Name) {
			continue
		}
		if !scope.Includes(candidate.BranchID) {
			continue
		}
		eligible = append(eligible, candidate)
	}

	// Deterministic presentation order: branch name, then display name.
	sort.SliceStable(eligible, func(i, j int) bool {
		bi, bj := branchName(&eligible[i]), branchName(&eligible[j])
		if bi != bj {
			return bi < bj
		}
		return eligible[i].DisplayName() < eligible[j].DisplayName()
	})

	return eligible, nil
}

func (s *approverService) IsEligible(ctx context.Context, activityID, requesterBranchID, approverID uuid.UUID, exclude []uuid.UUID) (bool, error) {
	eligible, err := s.EligibleApprovers(ctx, activityID, requesterBranchID, exclude)
	if err != nil {
		return false, err
	}
	for _, m := range eligible {
		if m.ID == approverID {
			return true, nil
		}
	}
	return false, nil
}

func branchName(m *model.Member) string {
	if m.Branch != nil {
		return m.Branch.Name
	}
	return ""
}
