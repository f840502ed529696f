package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"portal/internal/cache"
	"portal/internal/model"
)

type aggregatorFixture struct {
	svc         PermissionService
	members     *memberRepoStub
	memberRoles *memberRoleRepoStub
	branches    *branchRepoStub
	cache       *cache.MemoryCache
	now         time.Time

	member *model.Member
	branch model.Branch
}

func newAggregatorFixture(t *testing.T) *aggregatorFixture {
	t.Helper()

	f := &aggregatorFixture{
		members:     newMemberRepoStub(),
		memberRoles: &memberRoleRepoStub{},
		branches:    &branchRepoStub{},
		cache:       cache.NewMemoryCache(5 * time.Minute),
		now:         time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}

	f.branch = model.Branch{ID: uuid.New(), Name: "The Shire", Lft: 2, Rght: 3}
	f.branches.branches = []model.Branch{
		{ID: uuid.New(), Name: "Kingdom", Lft: 1, Rght: 4},
		f.branch,
	}

	f.member = f.members.add(&model.Member{
		ScaName:    "Aldric",
		BranchID:   f.branch.ID,
		BirthYear:  1990,
		BirthMonth: 6,
		Status:     model.MemberStatusActive,
	})

	f.svc = NewPermissionService(f.members, f.memberRoles, f.branches, f.cache, func() time.Time { return f.now })
	return f
}

// grantRole attaches a role with the given permissions to the member for a
// window around now.
func (f *aggregatorFixture) grantRole(perms ...model.Permission) *model.MemberRole {
	grant := &model.MemberRole{
		MemberID: f.member.ID,
		RoleID:   uuid.New(),
		StartOn:  f.now.AddDate(-1, 0, 0),
		Role:     &model.Role{Name: "role", Permissions: perms},
	}
	f.memberRoles.Create(context.Background(), grant)
	return grant
}

func TestEffectivePermissionsUnionsValidGrants(t *testing.T) {
	f := newAggregatorFixture(t)

	held := model.Permission{ID: uuid.New(), Name: "Can Manage Members", ScopingRule: model.ScopeBranchOnly}
	f.grantRole(held)

	// An expired grant contributes nothing.
	lapsed := f.grantRole(model.Permission{ID: uuid.New(), Name: "Can Manage Roles", ScopingRule: model.ScopeGlobal})
	ended := f.now.AddDate(0, -1, 0)
	lapsed.ExpiresOn = &ended

	set, err := f.svc.EffectivePermissions(context.Background(), f.member.ID)
	if err != nil {
		t.Fatalf("EffectivePermissions: %v", err)
	}

	if !set.Has("Can Manage Members") {
		t.Fatal("held permission missing from set")
	}
	if set.Has("Can Manage Roles") {
		t.Fatal("permission from lapsed grant leaked into set")
	}
	if set.SuperUser {
		t.Fatal("unexpected super-user flag")
	}

	ep, _ := set.Find("Can Manage Members")
	if !ep.Scope.Includes(f.branch.ID) {
		t.Fatal("branch_only scope misses the member's own branch")
	}
	if ep.Scope.Includes(f.branches.branches[0].ID) {
		t.Fatal("branch_only scope covers the parent branch")
	}
}

func TestEffectivePermissionsDeduplicatesAcrossRoles(t *testing.T) {
	f := newAggregatorFixture(t)

	permID := uuid.New()
	f.grantRole(model.Permission{ID: permID, Name: "Can Authorize Rapier Combat", ScopingRule: model.ScopeBranchOnly})
	f.grantRole(model.Permission{ID: permID, Name: "Can Authorize Rapier Combat", ScopingRule: model.ScopeGlobal})

	set, err := f.svc.EffectivePermissions(context.Background(), f.member.ID)
	if err != nil {
		t.Fatalf("EffectivePermissions: %v", err)
	}

	if len(set.Permissions) != 1 {
		t.Fatalf("permissions = %d, want 1 after dedupe", len(set.Permissions))
	}
	// The widest observed scope wins.
	if !set.Permissions[0].Scope.All {
		t.Fatal("narrow scope survived dedupe over the global one")
	}
}

func TestEffectivePermissionsSuperUser(t *testing.T) {
	f := newAggregatorFixture(t)
	f.grantRole(model.Permission{ID: uuid.New(), Name: "Super User", IsSuperUser: true, ScopingRule: model.ScopeGlobal})

	set, err := f.svc.EffectivePermissions(context.Background(), f.member.ID)
	if err != nil {
		t.Fatalf("EffectivePermissions: %v", err)
	}
	if !set.SuperUser {
		t.Fatal("super-user flag not carried")
	}
	if !set.Has("anything at all") {
		t.Fatal("super-user should hold every permission")
	}
}

func TestEffectivePermissionsDropsGatedPermissions(t *testing.T) {
	f := newAggregatorFixture(t)
	f.grantRole(model.Permission{
		ID:                      uuid.New(),
		Name:                    "Can Authorize Armored Combat",
		ScopingRule:             model.ScopeBranchAndChildren,
		RequireActiveMembership: true,
	})

	// No membership record at all: the gate fails.
	set, err := f.svc.EffectivePermissions(context.Background(), f.member.ID)
	if err != nil {
		t.Fatalf("EffectivePermissions: %v", err)
	}
	if set.Has("Can Authorize Armored Combat") {
		t.Fatal("gated permission held without an active membership")
	}

	// With a current membership the same grant passes.
	expiry := f.now.AddDate(1, 0, 0)
	f.member.MembershipExpiresOn = &expiry
	f.svc.Invalidate(context.Background(), f.member.ID)

	set, err = f.svc.EffectivePermissions(context.Background(), f.member.ID)
	if err != nil {
		t.Fatalf("EffectivePermissions: %v", err)
	}
	if !set.Has("Can Authorize Armored Combat") {
		t.Fatal("gated permission missing despite active membership")
	}
}

func TestEffectivePermissionsServesFromCache(t *testing.T) {
	f := newAggregatorFixture(t)
	f.grantRole(model.Permission{ID: uuid.New(), Name: "Can Manage Members", ScopingRule: model.ScopeBranchOnly})

	if _, err := f.svc.EffectivePermissions(context.Background(), f.member.ID); err != nil {
		t.Fatalf("EffectivePermissions: %v", err)
	}

	// A new grant is invisible until the cached set is dropped.
	f.grantRole(model.Permission{ID: uuid.New(), Name: "Can View Audit Log", ScopingRule: model.ScopeGlobal})

	set, err := f.svc.EffectivePermissions(context.Background(), f.member.ID)
	if err != nil {
		t.Fatalf("EffectivePermissions: %v", err)
	}
	if set.Has("Can View Audit Log") {
		t.Fatal("cache did not serve the stale set")
	}

	f.svc.Invalidate(context.Background(), f.member.ID)
	set, err = f.svc.EffectivePermissions(context.Background(), f.member.ID)
	if err != nil {
		t.Fatalf("EffectivePermissions: %v", err)
	}
	if !set.Has("Can View Audit Log") {
		t.Fatal("invalidation did not force a recompute")
	}
}

func TestEffectivePermissionsUnknownMember(t *testing.T) {
	f := newAggregatorFixture(t)

	_, err := f.svc.EffectivePermissions(context.Background(), uuid.New())
	if !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("err = %v, want ErrMemberNotFound", err)
	}
}
