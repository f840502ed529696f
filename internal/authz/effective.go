package authz

import (
	"time"

	"github.com/google/uuid"

	"portal/internal/model"
)

// EffectivePermission is one permission a member actually wields, annotated
// with the branch scope it applies over.
type EffectivePermission struct {
	Permission model.Permission `json:"permission"`
	Scope      BranchScope      `json:"scope"`
}

// PermissionSet is the aggregated result of a member's currently-valid role
// grants: the deduplicated permission list plus the global super-user
// bypass flag. This is the value cached per member by the aggregator.
type PermissionSet struct {
	MemberID    uuid.UUID             `json:"member_id"`
	SuperUser   bool                  `json:"super_user"`
	Permissions []EffectivePermission `json:"permissions"`
	ComputedAt  time.Time             `json:"computed_at"`
}

// Find returns the effective permission with the given name, if held.
func (s *PermissionSet) Find(name string) (EffectivePermission, bool) {
	for _, ep := range s.Permissions {
		if ep.Permission.Name == name {
			return ep, true
		}
	}
	return EffectivePermission{}, false
}

// Has reports whether the member holds the named permission at all,
// regardless of branch. Super-users hold everything.
func (s *PermissionSet) Has(name string) bool {
	if s.SuperUser {
		return true
	}
	_, ok := s.Find(name)
	return ok
}

// Covers reports whether the member holds permissionID with a scope that
// includes branchID. Super-users cover every branch.
func (s *PermissionSet) Covers(permissionID, branchID uuid.UUID) bool {
	if s.SuperUser {
		return true
	}
	for _, ep := range s.Permissions {
		if ep.Permission.ID == permissionID && ep.Scope.Includes(branchID) {
			return true
		}
	}
	return false
}
