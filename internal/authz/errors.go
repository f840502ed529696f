package authz

import "errors"

var (
	// ErrInvalidScopingRule indicates a stored scoping rule outside the
	// closed set — corrupt configuration, surfaced as a server error.
	ErrInvalidScopingRule = errors.New("invalid scoping rule")

	// Requirement failures: reasons a member holding a permission through
	// a role does not actually wield it at a given instant.
	ErrMembershipLapsed      = errors.New("active membership required")
	ErrBackgroundCheckLapsed = errors.New("active background check required")
	ErrUnderMinimumAge       = errors.New("member under minimum age")
	ErrWarrantRequired       = errors.New("permission requires a warrant-backed role")
)
