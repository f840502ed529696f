package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"portal/internal/authz"
	"portal/internal/logging"
	"portal/internal/metrics"
	"portal/internal/model"
	"portal/internal/notification"
	"portal/internal/repository"
	ws "portal/internal/websocket"
)

// --- DTOs ---

type RequestAuthorizationDTO struct {
	MemberID   string `json:"member_id" binding:"required"`
	ActivityID string `json:"activity_id" binding:"required"`
	ApproverID string `json:"approver_id" binding:"required"`
	IsRenewal  bool   `json:"is_renewal"`
}

type ApproveStepDTO struct {
	NextApproverID string `json:"next_approver_id"` // required while approvals remain outstanding
	Notes          string `json:"notes"`
}

type DenyStepDTO struct {
	Notes string `json:"notes"`
}

type RevokeAuthorizationDTO struct {
	Reason string `json:"reason" binding:"required"`
}

type AuthorizationResponse struct {
	ID            string  `json:"id"`
	MemberID      string  `json:"member_id"`
	MemberName    string  `json:"member_name,omitempty"`
	ActivityID    string  `json:"activity_id"`
	ActivityName  string  `json:"activity_name,omitempty"`
	Status        string  `json:"status"`
	Label         string  `json:"label"` // derived: CURRENT/UPCOMING for approved rows
	IsRenewal     bool    `json:"is_renewal"`
	ApprovalCount int     `json:"approval_count"`
	StartOn       *string `json:"start_on"`
	ExpiresOn     *string `json:"expires_on"`
	RevokedReason string  `json:"revoked_reason,omitempty"`
}

type ApprovalStepResponse struct {
	ID              string  `json:"id"`
	AuthorizationID string  `json:"authorization_id"`
	ApproverID      string  `json:"approver_id"`
	ApproverName    string  `json:"approver_name,omitempty"`
	RequestedOn     string  `json:"requested_on"`
	RespondedOn     *string `json:"responded_on"`
	Approved        bool    `json:"approved"`
	ApproverNotes   string  `json:"approver_notes,omitempty"`
}

type PendingApprovalResponse struct {
	StepID       string `json:"step_id"`
	RequestedOn  string `json:"requested_on"`
	MemberName   string `json:"member_name"`
	ActivityName string `json:"activity_name"`
	IsRenewal    bool   `json:"is_renewal"`
}

// TokenApprovalResponse resolves an email-link token to the step it
// belongs to. Possession of the token identifies the approver; the
// approver-match check still runs when the step is acted on.
type TokenApprovalResponse struct {
	StepID        string                `json:"step_id"`
	ApproverID    string                `json:"approver_id"`
	Authorization AuthorizationResponse `json:"authorization"`
}

// --- Interface ---

// AuthorizationService is the approval workflow engine: it creates
// authorization requests, advances them through required approval steps
// and finalizes them as approved, denied, revoked or expired.
type AuthorizationService interface {
	Request(ctx context.Context, req RequestAuthorizationDTO) (*AuthorizationResponse, error)
	Approve(ctx context.Context, approvalID, actingApproverID string, req ApproveStepDTO) (*AuthorizationResponse, error)
	Deny(ctx context.Context, approvalID, actingApproverID string, req DenyStepDTO) (*AuthorizationResponse, error)
	Revoke(ctx context.Context, authorizationID, revokerID string, req RevokeAuthorizationDTO) (*AuthorizationResponse, error)
	Expire(ctx context.Context, authorizationID uuid.UUID, asOf time.Time) error
	ExpireLapsed(ctx context.Context, asOf time.Time) (int, error)
	ResolveToken(ctx context.Context, token string) (*TokenApprovalResponse, error)
	List(ctx context.Context, filter repository.AuthorizationFilter) ([]AuthorizationResponse, int64, error)
	ApprovalChain(ctx context.Context, authorizationID string) ([]ApprovalStepResponse, error)
	PendingForApprover(ctx context.Context, approverID string) ([]PendingApprovalResponse, error)
}

type authorizationService struct {
	authorizations repository.AuthorizationRepository
	approvals      repository.ApprovalRepository
	activities     repository.ActivityRepository
	members        repository.MemberRepository
	memberRoles    repository.MemberRoleRepository
	audits         repository.AuditRepository
	txManager      repository.TransactionManager
	approvers      ApproverService
	permissions    PermissionService
	notifier       notification.Notifier
	hub            *ws.Hub
	clock          Clock
}

func NewAuthorizationService(
	authorizations repository.AuthorizationRepository,
	approvals repository.ApprovalRepository,
	activities repository.ActivityRepository,
	members repository.MemberRepository,
	memberRoles repository.MemberRoleRepository,
	audits repository.AuditRepository,
	txManager repository.TransactionManager,
	approvers ApproverService,
	permissions PermissionService,
	notifier notification.Notifier,
	hub *ws.Hub,
	clock Clock,
) AuthorizationService {
	return &authorizationService{
		authorizations: authorizations,
		approvals:      approvals,
		activities:     activities,
		members:        members,
		memberRoles:    memberRoles,
		audits:         audits,
		txManager:      txManager,
		approvers:      approvers,
		permissions:    permissions,
		notifier:       notifier,
		hub:            hub,
		clock:          clock,
	}
}

// --- Implementation ---

func (s *authorizationService) Request(ctx context.Context, req RequestAuthorizationDTO) (*AuthorizationResponse, error) {
	memberID, err := uuid.Parse(req.MemberID)
	if err != nil {
		return nil, fmt.Errorf("invalid member id: %w", err)
	}
	activityID, err := uuid.Parse(req.ActivityID)
	if err != nil {
		return nil, fmt.Errorf("invalid activity id: %w", err)
	}
	approverID, err := uuid.Parse(req.ApproverID)
	if err != nil {
		return nil, fmt.Errorf("invalid approver id: %w", err)
	}

	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to load member: %w", err)
	}

	activity, err := s.activities.FindByIDWithPermission(ctx, activityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}

	now := s.clock()

	age := member.AgeAt(now)
	if age < activity.MinimumAge || age > activity.MaximumAge {
		return nil, ErrAgeOutOfRange
	}

	// No duplicate in-flight requests for first-time authorizations. A
	// renewal is expected to overlap the grant it extends.
	if !req.IsRenewal {
		if _, err := s.authorizations.FindInFlight(ctx, memberID, activityID, now); err == nil {
			return nil, ErrDuplicateRequest
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to check in-flight authorizations: %w", err)
		}
	}

	// The requester can never approve their own request.
	eligible, err := s.approvers.IsEligible(ctx, activityID, member.BranchID, approverID, []uuid.UUID{memberID})
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, ErrIneligibleApprover
	}

	token, err := newApprovalToken()
	if err != nil {
		return nil, fmt.Errorf("failed to mint approval token: %w", err)
	}

	auth := &model.Authorization{
		MemberID:   memberID,
		ActivityID: activityID,
		Status:     model.AuthStatusPending,
		IsRenewal:  req.IsRenewal,
	}
	step := &model.AuthorizationApproval{
		ApproverID:         approverID,
		AuthorizationToken: token,
		RequestedOn:        now,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.authorizations.Create(txCtx, auth); err != nil {
			return fmt.Errorf("failed to create authorization: %w", err)
		}
		step.AuthorizationID = auth.ID
		if err := s.approvals.Create(txCtx, step); err != nil {
			return fmt.Errorf("failed to create approval step: %w", err)
		}
		return s.writeAudit(txCtx, &memberID, model.ActionRequestAuthorization, auth.ID.String(), activity.Name, map[string]interface{}{
			"activity_id": activityID.String(),
			"approver_id": approverID.String(),
			"is_renewal":  req.IsRenewal,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.AuthorizationsRequested.Inc()
	s.broadcast(ws.EventAuthorizationRequested, auth)
	s.notifyApprover(ctx, approverID, member, activity, token)

	resp := toAuthorizationResponse(auth, now)
	resp.MemberName = member.DisplayName()
	resp.ActivityName = activity.Name
	return &resp, nil
}

func (s *authorizationService) Approve(ctx context.Context, approvalID, actingApproverID string, req ApproveStepDTO) (*AuthorizationResponse, error) {
	stepID, err := uuid.Parse(approvalID)
	if err != nil {
		return nil, fmt.Errorf("invalid approval id: %w", err)
	}
	actingID, err := uuid.Parse(actingApproverID)
	if err != nil {
		return nil, fmt.Errorf("invalid approver id: %w", err)
	}

	var nextApproverID *uuid.UUID
	if req.NextApproverID != "" {
		parsed, parseErr := uuid.Parse(req.NextApproverID)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid next approver id: %w", parseErr)
		}
		nextApproverID = &parsed
	}

	now := s.clock()

	var (
		auth      *model.Authorization
		activity  *model.Activity
		member    *model.Member
		finalized bool
		nextToken string
	)

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		step, err := s.approvals.FindByIDLocked(txCtx, stepID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrApprovalNotFound
			}
			return fmt.Errorf("failed to load approval step: %w", err)
		}
		if step.RespondedOn != nil {
			return ErrApprovalResolved
		}
		if step.ApproverID != actingID {
			return ErrApproverMismatch
		}

		auth, err = s.authorizations.FindByIDLocked(txCtx, step.AuthorizationID)
		if err != nil {
			return fmt.Errorf("failed to load authorization: %w", err)
		}
		// The step was open but the authorization has already moved on:
		// another transition won the race.
		if auth.Status != model.AuthStatusPending {
			return ErrConflict
		}

		activity, err = s.activities.FindByIDWithPermission(txCtx, auth.ActivityID)
		if err != nil {
			return fmt.Errorf("failed to load activity: %w", err)
		}
		member, err = s.members.GetByID(txCtx, auth.MemberID)
		if err != nil {
			return fmt.Errorf("failed to load member: %w", err)
		}

		step.Approved = true
		step.RespondedOn = &now
		step.ApproverNotes = req.Notes
		if err := s.approvals.Update(txCtx, step); err != nil {
			return fmt.Errorf("failed to resolve approval step: %w", err)
		}

		auth.ApprovalCount++
		required := activity.RequiredApprovals(auth.IsRenewal)

		if auth.ApprovalCount >= required {
			finalized = true
			if err := s.finalizeApproved(txCtx, auth, activity, actingID, now); err != nil {
				return err
			}
		} else {
			if nextApproverID == nil {
				return ErrNextApproverRequired
			}
			nextToken, err = s.openNextStep(txCtx, auth, member, *nextApproverID, now)
			if err != nil {
				return err
			}
		}

		if err := s.authorizations.Update(txCtx, auth); err != nil {
			return fmt.Errorf("failed to update authorization: %w", err)
		}

		return s.writeAudit(txCtx, &actingID, model.ActionApproveStep, auth.ID.String(), activity.Name, map[string]interface{}{
			"approval_count": auth.ApprovalCount,
			"required":       required,
			"finalized":      finalized,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.ApprovalSteps.WithLabelValues("approved").Inc()
	s.broadcast(ws.EventApprovalResolved, auth)

	if finalized {
		metrics.AuthorizationsFinalized.WithLabelValues("approved").Inc()
		s.broadcast(ws.EventAuthorizationFinalized, auth)
		if err := s.notifier.AuthorizationApproved(ctx, member, activity); err != nil {
			logging.Error("failed to notify member of approval",
				zap.String("authorization_id", auth.ID.String()), zap.Error(err))
		}
	} else if nextApproverID != nil {
		s.notifyApprover(ctx, *nextApproverID, member, activity, nextToken)
	}

	resp := toAuthorizationResponse(auth, now)
	resp.MemberName = member.DisplayName()
	resp.ActivityName = activity.Name
	return &resp, nil
}

func (s *authorizationService) Deny(ctx context.Context, approvalID, actingApproverID string, req DenyStepDTO) (*AuthorizationResponse, error) {
	stepID, err := uuid.Parse(approvalID)
	if err != nil {
		return nil, fmt.Errorf("invalid approval id: %w", err)
	}
	actingID, err := uuid.Parse(actingApproverID)
	if err != nil {
		return nil, fmt.Errorf("invalid approver id: %w", err)
	}

	now := s.clock()

	var (
		auth     *model.Authorization
		activity *model.Activity
		member   *model.Member
	)

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		step, err := s.approvals.FindByIDLocked(txCtx, stepID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrApprovalNotFound
			}
			return fmt.Errorf("failed to load approval step: %w", err)
		}
		if step.RespondedOn != nil {
			return ErrApprovalResolved
		}
		if step.ApproverID != actingID {
			return ErrApproverMismatch
		}

		auth, err = s.authorizations.FindByIDLocked(txCtx, step.AuthorizationID)
		if err != nil {
			return fmt.Errorf("failed to load authorization: %w", err)
		}
		if auth.Status != model.AuthStatusPending {
			return ErrConflict
		}

		activity, err = s.activities.FindByIDWithPermission(txCtx, auth.ActivityID)
		if err != nil {
			return fmt.Errorf("failed to load activity: %w", err)
		}
		member, err = s.members.GetByID(txCtx, auth.MemberID)
		if err != nil {
			return fmt.Errorf("failed to load member: %w", err)
		}

		step.Approved = false
		step.RespondedOn = &now
		step.ApproverNotes = req.Notes
		if err := s.approvals.Update(txCtx, step); err != nil {
			return fmt.Errorf("failed to resolve approval step: %w", err)
		}

		// One denial terminates the whole chain, no matter how many
		// approvals had accumulated.
		auth.Status = model.AuthStatusDenied
		if err := s.authorizations.Update(txCtx, auth); err != nil {
			return fmt.Errorf("failed to update authorization: %w", err)
		}

		return s.writeAudit(txCtx, &actingID, model.ActionDenyAuthorization, auth.ID.String(), activity.Name, map[string]interface{}{
			"notes": req.Notes,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.ApprovalSteps.WithLabelValues("denied").Inc()
	metrics.AuthorizationsFinalized.WithLabelValues("denied").Inc()
	s.broadcast(ws.EventAuthorizationFinalized, auth)
	if err := s.notifier.AuthorizationDenied(ctx, member, activity, req.Notes); err != nil {
		logging.Error("failed to notify member of denial",
			zap.String("authorization_id", auth.ID.String()), zap.Error(err))
	}

	resp := toAuthorizationResponse(auth, now)
	resp.MemberName = member.DisplayName()
	resp.ActivityName = activity.Name
	return &resp, nil
}

func (s *authorizationService) Revoke(ctx context.Context, authorizationID, revokerID string, req RevokeAuthorizationDTO) (*AuthorizationResponse, error) {
	authID, err := uuid.Parse(authorizationID)
	if err != nil {
		return nil, fmt.Errorf("invalid authorization id: %w", err)
	}
	revID, err := uuid.Parse(revokerID)
	if err != nil {
		return nil, fmt.Errorf("invalid revoker id: %w", err)
	}

	now := s.clock()

	var (
		auth     *model.Authorization
		activity *model.Activity
		member   *model.Member
	)

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		auth, err = s.authorizations.FindByIDLocked(txCtx, authID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAuthorizationNotFound
			}
			return fmt.Errorf("failed to load authorization: %w", err)
		}

		// Only an approved grant whose window has not lapsed (current or
		// upcoming) can be revoked. Revoking anything terminal is a
		// reported failure so the caller knows nothing changed.
		if auth.Status != model.AuthStatusApproved {
			return ErrNotRevocable
		}
		if auth.ExpiresOn != nil && !auth.ExpiresOn.After(now) {
			return ErrNotRevocable
		}

		activity, err = s.activities.FindByID(txCtx, auth.ActivityID)
		if err != nil {
			return fmt.Errorf("failed to load activity: %w", err)
		}
		member, err = s.members.GetByID(txCtx, auth.MemberID)
		if err != nil {
			return fmt.Errorf("failed to load member: %w", err)
		}

		auth.Status = model.AuthStatusRevoked
		auth.RevokerID = &revID
		auth.RevokedReason = req.Reason
		// Validity ends right now for every downstream date check.
		auth.ExpiresOn = &now
		if err := s.authorizations.Update(txCtx, auth); err != nil {
			return fmt.Errorf("failed to update authorization: %w", err)
		}

		if err := s.memberRoles.EndGrantsByEntity(txCtx, model.GrantSourceAuthorization, auth.ID, now); err != nil {
			return fmt.Errorf("failed to end granted roles: %w", err)
		}

		return s.writeAudit(txCtx, &revID, model.ActionRevokeAuthorization, auth.ID.String(), activity.Name, map[string]interface{}{
			"reason": req.Reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.permissions.Invalidate(ctx, auth.MemberID)
	metrics.AuthorizationsFinalized.WithLabelValues("revoked").Inc()
	s.broadcast(ws.EventAuthorizationFinalized, auth)
	if err := s.notifier.AuthorizationRevoked(ctx, member, activity, req.Reason); err != nil {
		logging.Error("failed to notify member of revocation",
			zap.String("authorization_id", auth.ID.String()), zap.Error(err))
	}

	resp := toAuthorizationResponse(auth, now)
	resp.MemberName = member.DisplayName()
	resp.ActivityName = activity.Name
	return &resp, nil
}

// Expire transitions one approved authorization to expired once its window
// has lapsed. Mechanical: driven by the sweep, not the interactive flow,
// and gated on the same temporal predicate every live query uses.
func (s *authorizationService) Expire(ctx context.Context, authorizationID uuid.UUID, asOf time.Time) error {
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		auth, err := s.authorizations.FindByIDLocked(txCtx, authorizationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAuthorizationNotFound
			}
			return fmt.Errorf("failed to load authorization: %w", err)
		}
		if auth.Status != model.AuthStatusApproved {
			return ErrNotRevocable
		}
		if authz.IsValidOn(auth.StartOn, auth.ExpiresOn, asOf) {
			return ErrStillCurrent
		}

		auth.Status = model.AuthStatusExpired
		if err := s.authorizations.Update(txCtx, auth); err != nil {
			return fmt.Errorf("failed to update authorization: %w", err)
		}
		if err := s.memberRoles.EndGrantsByEntity(txCtx, model.GrantSourceAuthorization, auth.ID, asOf); err != nil {
			return fmt.Errorf("failed to end granted roles: %w", err)
		}
		return s.writeAudit(txCtx, nil, model.ActionExpireAuthorization, auth.ID.String(), "", map[string]interface{}{
			"as_of": asOf.Format(time.RFC3339),
		})
	})
	if err != nil {
		return err
	}

	metrics.AuthorizationsFinalized.WithLabelValues("expired").Inc()
	return nil
}

// ExpireLapsed sweeps every approved authorization whose window has passed.
// Returns how many were expired; individual conflicts are logged and
// skipped so one contested row cannot stall the sweep.
func (s *authorizationService) ExpireLapsed(ctx context.Context, asOf time.Time) (int, error) {
	lapsed, err := s.authorizations.ListLapsed(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to list lapsed authorizations: %w", err)
	}

	expired := 0
	for _, auth := range lapsed {
		if err := s.Expire(ctx, auth.ID, asOf); err != nil {
			if errors.Is(err, ErrStillCurrent) || errors.Is(err, ErrNotRevocable) {
				continue
			}
			logging.Error("failed to expire authorization",
				zap.String("authorization_id", auth.ID.String()), zap.Error(err))
			continue
		}
		expired++
		s.permissions.Invalidate(ctx, auth.MemberID)
	}
	return expired, nil
}

func (s *authorizationService) ResolveToken(ctx context.Context, token string) (*TokenApprovalResponse, error) {
	step, err := s.approvals.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}
	if step.RespondedOn != nil {
		return nil, ErrApprovalResolved
	}

	auth, err := s.authorizations.FindByIDWithRelations(ctx, step.AuthorizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization: %w", err)
	}

	resp := toAuthorizationResponse(auth, s.clock())
	if auth.Member != nil {
		resp.MemberName = auth.Member.DisplayName()
	}
	if auth.Activity != nil {
		resp.ActivityName = auth.Activity.Name
	}

	return &TokenApprovalResponse{
		StepID:        step.ID.String(),
		ApproverID:    step.ApproverID.String(),
		Authorization: resp,
	}, nil
}

func (s *authorizationService) List(ctx context.Context, filter repository.AuthorizationFilter) ([]AuthorizationResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	auths, total, err := s.authorizations.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list authorizations: %w", err)
	}

	now := s.clock()
	result := make([]AuthorizationResponse, 0, len(auths))
	for i := range auths {
		resp := toAuthorizationResponse(&auths[i], now)
		if auths[i].Member != nil {
			resp.MemberName = auths[i].Member.DisplayName()
		}
		if auths[i].Activity != nil {
			resp.ActivityName = auths[i].Activity.Name
		}
		result = append(result, resp)
	}
	return result, total, nil
}

func (s *authorizationService) ApprovalChain(ctx context.Context, authorizationID string) ([]ApprovalStepResponse, error) {
	authID, err := uuid.Parse(authorizationID)
	if err != nil {
		return nil, fmt.Errorf("invalid authorization id: %w", err)
	}

	steps, err := s.approvals.ListByAuthorization(ctx, authID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval steps: %w", err)
	}

	result := make([]ApprovalStepResponse, 0, len(steps))
	for _, step := range steps {
		sr := ApprovalStepResponse{
			ID:              step.ID.String(),
			AuthorizationID: step.AuthorizationID.String(),
			ApproverID:      step.ApproverID.String(),
			RequestedOn:     step.RequestedOn.Format(time.RFC3339),
			Approved:        step.Approved,
			ApproverNotes:   step.ApproverNotes,
		}
		if step.Approver != nil {
			sr.ApproverName = step.Approver.DisplayName()
		}
		if step.RespondedOn != nil {
			t := step.RespondedOn.Format(time.RFC3339)
			sr.RespondedOn = &t
		}
		result = append(result, sr)
	}
	return result, nil
}

func (s *authorizationService) PendingForApprover(ctx context.Context, approverID string) ([]PendingApprovalResponse, error) {
	id, err := uuid.Parse(approverID)
	if err != nil {
		return nil, fmt.Errorf("invalid approver id: %w", err)
	}

	steps, err := s.approvals.ListPendingForApprover(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}

	result := make([]PendingApprovalResponse, 0, len(steps))
	for _, step := range steps {
		pr := PendingApprovalResponse{
			StepID:      step.ID.String(),
			RequestedOn: step.RequestedOn.Format(time.RFC3339),
		}
		if step.Authorization != nil {
			pr.IsRenewal = step.Authorization.IsRenewal
			if step.Authorization.Member != nil {
				pr.MemberName = step.Authorization.Member.DisplayName()
			}
			if step.Authorization.Activity != nil {
				pr.ActivityName = step.Authorization.Activity.Name
			}
		}
		result = append(result, pr)
	}
	return result, nil
}

// --- internals ---

// finalizeApproved stamps the validity window and grants any linked role.
// Renewals extend from the prior grant's expiry when it is still in the
// future, otherwise from now.
func (s *authorizationService) finalizeApproved(txCtx context.Context, auth *model.Authorization, activity *model.Activity, actingID uuid.UUID, now time.Time) error {
	startOn := now
	if auth.IsRenewal {
		prior, err := s.authorizations.FindCurrentApproved(txCtx, auth.MemberID, auth.ActivityID, now)
		if err == nil && prior.ExpiresOn != nil && prior.ExpiresOn.After(now) {
			startOn = *prior.ExpiresOn
		} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up prior authorization: %w", err)
		}
	}
	expiresOn := startOn.AddDate(0, activity.TermLength, 0)

	auth.Status = model.AuthStatusApproved
	auth.StartOn = &startOn
	auth.ExpiresOn = &expiresOn

	if activity.GrantsRoleID != nil {
		authID := auth.ID
		grant := &model.MemberRole{
			MemberID:   auth.MemberID,
			RoleID:     *activity.GrantsRoleID,
			StartOn:    startOn,
			ExpiresOn:  &expiresOn,
			ApproverID: &actingID,
			EntityType: model.GrantSourceAuthorization,
			EntityID:   &authID,
		}
		if err := s.memberRoles.Create(txCtx, grant); err != nil {
			return fmt.Errorf("failed to grant activity role: %w", err)
		}
		s.permissions.Invalidate(txCtx, auth.MemberID)
	}
	return nil
}

// openNextStep validates the chosen next approver against the eligible set
// (excluding the requester and everyone already consulted) and creates the
// next pending step. Creation happens under the authorization's row lock,
// so the single-unresolved-step invariant holds without application-level
// serialization.
func (s *authorizationService) openNextStep(txCtx context.Context, auth *model.Authorization, member *model.Member, nextApproverID uuid.UUID, now time.Time) (string, error) {
	consulted, err := s.approvals.ListByAuthorization(txCtx, auth.ID)
	if err != nil {
		return "", fmt.Errorf("failed to list prior steps: %w", err)
	}

	exclude := []uuid.UUID{auth.MemberID}
	for _, prior := range consulted {
		if prior.ApproverID == nextApproverID {
			return "", ErrApproverAlreadyConsulted
		}
		exclude = append(exclude, prior.ApproverID)
	}

	eligible, err := s.approvers.IsEligible(txCtx, auth.ActivityID, member.BranchID, nextApproverID, exclude)
	if err != nil {
		return "", err
	}
	if !eligible {
		return "", ErrIneligibleApprover
	}

	token, err := newApprovalToken()
	if err != nil {
		return "", fmt.Errorf("failed to mint approval token: %w", err)
	}

	step := &model.AuthorizationApproval{
		AuthorizationID:    auth.ID,
		ApproverID:         nextApproverID,
		AuthorizationToken: token,
		RequestedOn:        now,
	}
	if err := s.approvals.Create(txCtx, step); err != nil {
		return "", fmt.Errorf("failed to create approval step: %w", err)
	}
	return token, nil
}

func (s *authorizationService) writeAudit(txCtx context.Context, memberID *uuid.UUID, action, entityID, entityName string, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	entry := &model.AuditLog{
		MemberID:   memberID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
	if err := s.audits.Log(txCtx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *authorizationService) notifyApprover(ctx context.Context, approverID uuid.UUID, member *model.Member, activity *model.Activity, token string) {
	approver, err := s.members.GetByID(ctx, approverID)
	if err != nil {
		logging.Error("failed to load approver for notification",
			zap.String("approver_id", approverID.String()), zap.Error(err))
		return
	}
	if err := s.notifier.ApprovalRequested(ctx, approver, member, activity, token); err != nil {
		logging.Error("failed to notify approver",
			zap.String("approver_id", approverID.String()), zap.Error(err))
	}
}

func (s *authorizationService) broadcast(eventType string, auth *model.Authorization) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastEvent(eventType, map[string]any{
		"authorization_id": auth.ID.String(),
		"status":           auth.Status,
	})
}

func newApprovalToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func toAuthorizationResponse(a *model.Authorization, now time.Time) AuthorizationResponse {
	resp := AuthorizationResponse{
		ID:            a.ID.String(),
		MemberID:      a.MemberID.String(),
		ActivityID:    a.ActivityID.String(),
		Status:        a.Status,
		Label:         a.Status,
		IsRenewal:     a.IsRenewal,
		ApprovalCount: a.ApprovalCount,
		RevokedReason: a.RevokedReason,
	}
	if a.StartOn != nil {
		t := a.StartOn.Format(time.RFC3339)
		resp.StartOn = &t
	}
	if a.ExpiresOn != nil {
		t := a.ExpiresOn.Format(time.RFC3339)
		resp.ExpiresOn = &t
	}
	if a.Status == model.AuthStatusApproved {
		if authz.IsValidOn(a.StartOn, a.ExpiresOn, now) {
			resp.Label = model.AuthLabelCurrent
		} else if a.StartOn != nil && a.StartOn.After(now) {
			resp.Label = model.AuthLabelUpcoming
		} else {
			resp.Label = model.AuthStatusExpired
		}
	}
	return resp
}
