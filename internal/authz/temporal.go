package authz

import "time"

// IsValidOn reports whether a grant bounded by [startOn, expiresOn) is in
// effect at asOf. A nil startOn means "always started", a nil expiresOn
// means "never expires". The start is inclusive and the expiry instant
// itself is not valid.
//
// Every place that decides whether a grant, role assignment or
// authorization is current must go through this predicate (or encode the
// identical boundary logic in SQL) so the engine and live queries cannot
// drift apart.
func IsValidOn(startOn, expiresOn *time.Time, asOf time.Time) bool {
	if startOn != nil && startOn.After(asOf) {
		return false
	}
	if expiresOn != nil && !expiresOn.After(asOf) {
		return false
	}
	return true
}
