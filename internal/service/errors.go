package service

import "errors"

// Business-rule failures: expected, user-facing outcomes. Handlers match
// these with errors.Is and render them; they are never logged as server
// errors. Anything not in this list that bubbles out of a service is an
// integrity or infrastructure failure.
var (
	ErrActivityNotFound  = errors.New("activity not found")
	ErrMemberNotFound    = errors.New("member not found")
	ErrBranchNotFound    = errors.New("branch not found")
	ErrRoleNotFound      = errors.New("role not found")
	ErrApprovalNotFound  = errors.New("approval step not found")
	ErrTokenNotFound     = errors.New("authorization token not recognized")
	ErrAuthorizationNotFound = errors.New("authorization not found")

	ErrDuplicateRequest         = errors.New("an authorization for this activity is already pending or current")
	ErrAgeOutOfRange            = errors.New("member age outside the activity's allowed range")
	ErrIneligibleApprover       = errors.New("chosen approver is not eligible for this activity and branch")
	ErrApproverAlreadyConsulted = errors.New("approver was already consulted for this authorization")
	ErrNextApproverRequired     = errors.New("a next approver is required while approvals remain outstanding")
	ErrApprovalResolved         = errors.New("approval step already resolved")
	ErrApproverMismatch         = errors.New("approval step belongs to a different approver")
	ErrNotRevocable             = errors.New("authorization is not current")
	ErrStillCurrent             = errors.New("authorization has not lapsed yet")

	// ErrConflict reports a concurrent transition on the same
	// authorization: the state changed between the caller's read and the
	// locked re-check. Safe to re-fetch and retry.
	ErrConflict = errors.New("authorization was modified concurrently")
)
