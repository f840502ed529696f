package handler

import (
	"errors"
	"net/http"

	"portal/internal/service"
)

// statusForError maps service sentinel errors onto HTTP status codes.
// Anything unrecognized is a 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrMemberNotFound),
		errors.Is(err, service.ErrActivityNotFound),
		errors.Is(err, service.ErrBranchNotFound),
		errors.Is(err, service.ErrRoleNotFound),
		errors.Is(err, service.ErrApprovalNotFound),
		errors.Is(err, service.ErrTokenNotFound),
		errors.Is(err, service.ErrAuthorizationNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDuplicateRequest),
		errors.Is(err, service.ErrApprovalResolved),
		errors.Is(err, service.ErrApproverAlreadyConsulted),
		errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrAgeOutOfRange),
		errors.Is(err, service.ErrIneligibleApprover),
		errors.Is(err, service.ErrNextApproverRequired),
		errors.Is(err, service.ErrNotRevocable),
		errors.Is(err, service.ErrStillCurrent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrApproverMismatch):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
