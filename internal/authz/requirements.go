package authz

import (
	"time"

	"portal/internal/model"
)

// Requirement is one eligibility predicate a member must satisfy to wield
// a permission. grants carries the member's currently-valid role grants so
// provenance checks (warrants) can inspect them. A nil return means the
// requirement is met.
type Requirement func(m *model.Member, p *model.Permission, grants []model.MemberRole, asOf time.Time) error

// namedRequirements holds extra predicates for specific permissions, keyed
// on permission name. The set is closed and registered in code at startup:
// different permissions can carry different eligibility logic without any
// reflection or class-name indirection.
var namedRequirements = map[string][]Requirement{}

// RegisterRequirement attaches an additional predicate to a permission
// name. Call during wiring, before any traffic; the map is not locked.
func RegisterRequirement(permissionName string, req Requirement) {
	namedRequirements[permissionName] = append(namedRequirements[permissionName], req)
}

// MeetsRequirements checks every gate on the permission for the member at
// asOf: the flag-driven checks (membership, background check, minimum age,
// warrant provenance) plus any predicates registered for the permission's
// name. Super-user permissions bypass everything. Returns the first
// failing requirement's error, or nil.
func MeetsRequirements(m *model.Member, p *model.Permission, grants []model.MemberRole, asOf time.Time) error {
	if p.IsSuperUser {
		return nil
	}

	// A nil expiry date means no membership/check on record at all, not an
	// indefinite one.
	if p.RequireActiveMembership {
		if m.MembershipExpiresOn == nil || !IsValidOn(nil, m.MembershipExpiresOn, asOf) {
			return ErrMembershipLapsed
		}
	}
	if p.RequireActiveBackgroundCheck {
		if m.BackgroundCheckExpiresOn == nil || !IsValidOn(nil, m.BackgroundCheckExpiresOn, asOf) {
			return ErrBackgroundCheckLapsed
		}
	}
	if p.MinimumAge > 0 && m.AgeAt(asOf) < p.MinimumAge {
		return ErrUnderMinimumAge
	}
	if p.RequiresWarrant && !hasWarrantBackedGrant(p, grants, asOf) {
		return ErrWarrantRequired
	}

	for _, req := range namedRequirements[p.Name] {
		if err := req(m, p, grants, asOf); err != nil {
			return err
		}
	}
	return nil
}

// hasWarrantBackedGrant reports whether any currently-valid grant carrying
// this permission's role originated from a warrant.
func hasWarrantBackedGrant(p *model.Permission, grants []model.MemberRole, asOf time.Time) bool {
	for _, g := range grants {
		if g.EntityType != model.GrantSourceWarrant {
			continue
		}
		if !IsValidOn(&g.StartOn, g.ExpiresOn, asOf) {
			continue
		}
		if g.Role == nil {
			continue
		}
		for _, rp := range g.Role.Permissions {
			if rp.ID == p.ID {
				return true
			}
		}
	}
	return false
}
