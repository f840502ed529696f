package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"portal/internal/model"
)

type engineFixture struct {
	svc         AuthorizationService
	members     *memberRepoStub
	activities  *activityRepoStub
	auths       *authorizationRepoStub
	approvals   *approvalRepoStub
	memberRoles *memberRoleRepoStub
	audits      *auditRepoStub
	approvers   *approverStub
	perms       *permissionServiceStub
	notifier    *notifierStub
	now         time.Time

	requester *model.Member
	marshal   *model.Member
	marshal2  *model.Member
	activity  *model.Activity
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	f := &engineFixture{
		members:     newMemberRepoStub(),
		activities:  newActivityRepoStub(),
		auths:       newAuthorizationRepoStub(),
		memberRoles: &memberRoleRepoStub{},
		audits:      &auditRepoStub{},
		perms:       &permissionServiceStub{},
		notifier:    &notifierStub{},
		now:         time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}
	f.approvals = &approvalRepoStub{auths: f.auths, members: f.members, activities: f.activities}

	branchID := uuid.New()
	f.requester = f.members.add(&model.Member{
		ScaName:    "Aldric",
		Email:      "aldric@example.org",
		BranchID:   branchID,
		BirthYear:  1990,
		BirthMonth: 6,
		Status:     model.MemberStatusActive,
	})
	f.marshal = f.members.add(&model.Member{
		ScaName:    "Brunhilde",
		Email:      "brunhilde@example.org",
		BranchID:   branchID,
		BirthYear:  1980,
		BirthMonth: 1,
		Status:     model.MemberStatusActive,
	})
	f.marshal2 = f.members.add(&model.Member{
		ScaName:    "Cedric",
		Email:      "cedric@example.org",
		BranchID:   branchID,
		BirthYear:  1985,
		BirthMonth: 2,
		Status:     model.MemberStatusActive,
	})

	f.activity = f.activities.add(&model.Activity{
		Name:       "Armored Combat",
		TermLength: 48,
		MinimumAge: 16,
		MaximumAge: 200,
		Permission: &model.Permission{
			ID:          uuid.New(),
			Name:        "Can Authorize Armored Combat",
			ScopingRule: model.ScopeBranchAndChildren,
		},
		NumRequiredAuthorizors: 1,
		NumRequiredRenewers:    1,
	})

	f.approvers = &approverStub{eligible: map[uuid.UUID]bool{
		f.marshal.ID:  true,
		f.marshal2.ID: true,
	}}

	tx := txManagerStub{
		auths:       f.auths,
		approvals:   f.approvals,
		memberRoles: f.memberRoles,
		audits:      f.audits,
	}
	f.svc = NewAuthorizationService(
		f.auths, f.approvals, f.activities, f.members, f.memberRoles,
		f.audits, tx, f.approvers, f.perms, f.notifier,
		nil, func() time.Time { return f.now },
	)
	return f
}

func (f *engineFixture) request(t *testing.T, isRenewal bool) *AuthorizationResponse {
	t.Helper()
	resp, err := f.svc.Request(context.Background(), RequestAuthorizationDTO{
		MemberID:   f.requester.ID.String(),
		ActivityID: f.activity.ID.String(),
		ApproverID: f.marshal.ID.String(),
		IsRenewal:  isRenewal,
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	return resp
}

// pendingStep returns the single unresolved step for an authorization.
func (f *engineFixture) pendingStep(t *testing.T, authID string) *model.AuthorizationApproval {
	t.Helper()
	id, _ := uuid.Parse(authID)
	step, err := f.approvals.FindUnresolved(context.Background(), id)
	if err != nil {
		t.Fatalf("no unresolved step for %s", authID)
	}
	return step
}

func TestRequestCreatesPendingAuthorization(t *testing.T) {
	f := newEngineFixture(t)

	resp := f.request(t, false)

	if resp.Status != model.AuthStatusPending {
		t.Fatalf("status = %q, want PENDING", resp.Status)
	}
	if resp.ApprovalCount != 0 {
		t.Fatalf("approval count = %d, want 0", resp.ApprovalCount)
	}
	if resp.MemberName != "Aldric" || resp.ActivityName != "Armored Combat" {
		t.Fatalf("unexpected names %q / %q", resp.MemberName, resp.ActivityName)
	}

	step := f.pendingStep(t, resp.ID)
	if step.ApproverID != f.marshal.ID {
		t.Fatalf("step approver = %s, want %s", step.ApproverID, f.marshal.ID)
	}
	if step.AuthorizationToken == "" {
		t.Fatal("step has no token")
	}
	if !step.RequestedOn.Equal(f.now) {
		t.Fatalf("requested_on = %v, want %v", step.RequestedOn, f.now)
	}

	if f.notifier.requested != 1 {
		t.Fatalf("approver notifications = %d, want 1", f.notifier.requested)
	}
	if f.notifier.lastToken != step.AuthorizationToken {
		t.Fatal("notification carried the wrong token")
	}

	if len(f.audits.entries) != 1 || f.audits.entries[0].Action != model.ActionRequestAuthorization {
		t.Fatalf("audit entries = %+v", f.audits.entries)
	}
}

func TestRequestRejectsDuplicateInFlight(t *testing.T) {
	f := newEngineFixture(t)
	f.request(t, false)

	_, err := f.svc.Request(context.Background(), RequestAuthorizationDTO{
		MemberID:   f.requester.ID.String(),
		ActivityID: f.activity.ID.String(),
		ApproverID: f.marshal.ID.String(),
	})
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("err = %v, want ErrDuplicateRequest", err)
	}
}

func TestRequestAllowsRenewalAlongsideCurrentGrant(t *testing.T) {
	f := newEngineFixture(t)

	// A current approved grant would block a fresh request but not a
	// renewal of itself.
	start := f.now.AddDate(-2, 0, 0)
	expires := f.now.AddDate(0, 6, 0)
	f.auths.Create(context.Background(), &model.Authorization{
		MemberID:   f.requester.ID,
		ActivityID: f.activity.ID,
		Status:     model.AuthStatusApproved,
		StartOn:    &start,
		ExpiresOn:  &expires,
	})

	if _, err := f.svc.Request(context.Background(), RequestAuthorizationDTO{
		MemberID:   f.requester.ID.String(),
		ActivityID: f.activity.ID.String(),
		ApproverID: f.marshal.ID.String(),
	}); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("fresh request err = %v, want ErrDuplicateRequest", err)
	}

	resp := f.request(t, true)
	if !resp.IsRenewal {
		t.Fatal("renewal flag lost")
	}
}

func TestRequestAgeOutOfRange(t *testing.T) {
	f := newEngineFixture(t)
	// Born June 2012: 13 in March 2026, under the minimum of 16.
	f.requester.BirthYear = 2012

	_, err := f.svc.Request(context.Background(), RequestAuthorizationDTO{
		MemberID:   f.requester.ID.String(),
		ActivityID: f.activity.ID.String(),
		ApproverID: f.marshal.ID.String(),
	})
	if !errors.Is(err, ErrAgeOutOfRange) {
		t.Fatalf("err = %v, want ErrAgeOutOfRange", err)
	}
}

func TestRequestRejectsIneligibleApprover(t *testing.T) {
	f := newEngineFixture(t)
	f.approvers.eligible[f.marshal.ID] = false

	_, err := f.svc.Request(context.Background(), RequestAuthorizationDTO{
		MemberID:   f.requester.ID.String(),
		ActivityID: f.activity.ID.String(),
		ApproverID: f.marshal.ID.String(),
	})
	if !errors.Is(err, ErrIneligibleApprover) {
		t.Fatalf("err = %v, want ErrIneligibleApprover", err)
	}
}

func TestRequestRejectsSelfApproval(t *testing.T) {
	f := newEngineFixture(t)
	f.approvers.eligible[f.requester.ID] = true

	_, err := f.svc.Request(context.Background(), RequestAuthorizationDTO{
		MemberID:   f.requester.ID.String(),
		ActivityID: f.activity.ID.String(),
		ApproverID: f.requester.ID.String(),
	})
	if !errors.Is(err, ErrIneligibleApprover) {
		t.Fatalf("err = %v, want ErrIneligibleApprover", err)
	}
}

func TestRequestUnknownActivity(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.svc.Request(context.Background(), RequestAuthorizationDTO{
		MemberID:   f.requester.ID.String(),
		ActivityID: uuid.NewString(),
		ApproverID: f.marshal.ID.String(),
	})
	if !errors.Is(err, ErrActivityNotFound) {
		t.Fatalf("err = %v, want ErrActivityNotFound", err)
	}
}

func TestApproveFinalizesWhenQuorumReached(t *testing.T) {
	f := newEngineFixture(t)
	created := f.request(t, false)
	step := f.pendingStep(t, created.ID)

	resp, err := f.svc.Approve(context.Background(), step.ID.String(), f.marshal.ID.String(), ApproveStepDTO{Notes: "clean passes"})
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if resp.Status != model.AuthStatusApproved {
		t.Fatalf("status = %q, want APPROVED", resp.Status)
	}
	if resp.Label != model.AuthLabelCurrent {
		t.Fatalf("label = %q, want CURRENT", resp.Label)
	}
	if resp.ApprovalCount != 1 {
		t.Fatalf("approval count = %d, want 1", resp.ApprovalCount)
	}

	authID, _ := uuid.Parse(created.ID)
	auth := f.auths.rows[authID]
	if auth.StartOn == nil || !auth.StartOn.Equal(f.now) {
		t.Fatalf("start_on = %v, want %v", auth.StartOn, f.now)
	}
	wantExpiry := f.now.AddDate(0, 48, 0)
	if auth.ExpiresOn == nil || !auth.ExpiresOn.Equal(wantExpiry) {
		t.Fatalf("expires_on = %v, want %v", auth.ExpiresOn, wantExpiry)
	}

	if step.RespondedOn == nil || !step.Approved || step.ApproverNotes != "clean passes" {
		t.Fatalf("step not resolved as approved: %+v", step)
	}
	if f.notifier.approved != 1 {
		t.Fatalf("member approval notifications = %d, want 1", f.notifier.approved)
	}
}

func TestApproveOpensNextStepUntilQuorum(t *testing.T) {
	f := newEngineFixture(t)
	f.activity.NumRequiredAuthorizors = 2
	created := f.request(t, false)
	first := f.pendingStep(t, created.ID)

	// A second approver is mandatory while approvals remain outstanding.
	_, err := f.svc.Approve(context.Background(), first.ID.String(), f.marshal.ID.String(), ApproveStepDTO{})
	if !errors.Is(err, ErrNextApproverRequired) {
		t.Fatalf("err = %v, want ErrNextApproverRequired", err)
	}

	// The same approver cannot be consulted twice.
	_, err = f.svc.Approve(context.Background(), first.ID.String(), f.marshal.ID.String(), ApproveStepDTO{
		NextApproverID: f.marshal.ID.String(),
	})
	if !errors.Is(err, ErrApproverAlreadyConsulted) {
		t.Fatalf("err = %v, want ErrApproverAlreadyConsulted", err)
	}

	// Nor can the requester be chosen as the next approver.
	f.approvers.eligible[f.requester.ID] = true
	_, err = f.svc.Approve(context.Background(), first.ID.String(), f.marshal.ID.String(), ApproveStepDTO{
		NextApproverID: f.requester.ID.String(),
	})
	if !errors.Is(err, ErrIneligibleApprover) {
		t.Fatalf("err = %v, want ErrIneligibleApprover", err)
	}

	resp, err := f.svc.Approve(context.Background(), first.ID.String(), f.marshal.ID.String(), ApproveStepDTO{
		NextApproverID: f.marshal2.ID.String(),
	})
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if resp.Status != model.AuthStatusPending {
		t.Fatalf("status = %q, want PENDING after first of two approvals", resp.Status)
	}
	if resp.ApprovalCount != 1 {
		t.Fatalf("approval count = %d, want 1", resp.ApprovalCount)
	}

	second := f.pendingStep(t, created.ID)
	if second.ApproverID != f.marshal2.ID {
		t.Fatalf("next step approver = %s, want %s", second.ApproverID, f.marshal2.ID)
	}
	if second.AuthorizationToken == first.AuthorizationToken {
		t.Fatal("next step reused the prior token")
	}
	if f.notifier.requested != 2 {
		t.Fatalf("approver notifications = %d, want 2", f.notifier.requested)
	}

	resp, err = f.svc.Approve(context.Background(), second.ID.String(), f.marshal2.ID.String(), ApproveStepDTO{})
	if err != nil {
		t.Fatalf("second Approve: %v", err)
	}
	if resp.Status != model.AuthStatusApproved || resp.ApprovalCount != 2 {
		t.Fatalf("final status/count = %q/%d, want APPROVED/2", resp.Status, resp.ApprovalCount)
	}
}

func TestApproveApproverMismatch(t *testing.T) {
	f := newEngineFixture(t)
	created := f.request(t, false)
	step := f.pendingStep(t, created.ID)

	_, err := f.svc.Approve(context.Background(), step.ID.String(), f.marshal2.ID.String(), ApproveStepDTO{})
	if !errors.Is(err, ErrApproverMismatch) {
		t.Fatalf("err = %v, want ErrApproverMismatch", err)
	}
}

func TestApproveResolvedStep(t *testing.T) {
	f := newEngineFixture(t)
	created := f.request(t, false)
	step := f.pendingStep(t, created.ID)

	if _, err := f.svc.Approve(context.Background(), step.ID.String(), f.marshal.ID.String(), ApproveStepDTO{}); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	_, err := f.svc.Approve(context.Background(), step.ID.String(), f.marshal.ID.String(), ApproveStepDTO{})
	if !errors.Is(err, ErrApprovalResolved) {
		t.Fatalf("err = %v, want ErrApprovalResolved", err)
	}
}

func TestDenyTerminatesChain(t *testing.T) {
	f := newEngineFixture(t)
	f.activity.NumRequiredAuthorizors = 3
	created := f.request(t, false)
	first := f.pendingStep(t, created.ID)

	if _, err := f.svc.Approve(context.Background(), first.ID.String(), f.marshal.ID.String(), ApproveStepDTO{
		NextApproverID: f.marshal2.ID.String(),
	}); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	second := f.pendingStep(t, created.ID)

	// One denial ends the chain even with an approval already collected.
	resp, err := f.svc.Deny(context.Background(), second.ID.String(), f.marshal2.ID.String(), DenyStepDTO{Notes: "unsafe footwork"})
	if err != nil {
		t.Fatalf("Deny: %v", err)
	}
	if resp.Status != model.AuthStatusDenied {
		t.Fatalf("status = %q, want DENIED", resp.Status)
	}
	if second.Approved || second.RespondedOn == nil || second.ApproverNotes != "unsafe footwork" {
		t.Fatalf("step not resolved as denied: %+v", second)
	}
	if f.notifier.denied != 1 {
		t.Fatalf("denial notifications = %d, want 1", f.notifier.denied)
	}

	// A denied authorization no longer blocks a new request.
	if _, err := f.svc.Request(context.Background(), RequestAuthorizationDTO{
		MemberID:   f.requester.ID.String(),
		ActivityID: f.activity.ID.String(),
		ApproverID: f.marshal.ID.String(),
	}); err != nil {
		t.Fatalf("request after denial: %v", err)
	}
}

func TestRenewalExtendsFromPriorExpiry(t *testing.T) {
	f := newEngineFixture(t)

	start := f.now.AddDate(-3, 0, 0)
	priorExpiry := f.now.AddDate(0, 6, 0)
	f.auths.Create(context.Background(), &model.Authorization{
		MemberID:   f.requester.ID,
		ActivityID: f.activity.ID,
		Status:     model.AuthStatusApproved,
		StartOn:    &start,
		ExpiresOn:  &priorExpiry,
	})

	created := f.request(t, true)
	step := f.pendingStep(t, created.ID)
	resp, err := f.svc.Approve(context.Background(), step.ID.String(), f.marshal.ID.String(), ApproveStepDTO{})
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}

	// The renewal picks up where the prior grant leaves off, so no term
	// time is lost by renewing early.
	if resp.Label != model.AuthLabelUpcoming {
		t.Fatalf("label = %q, want UPCOMING", resp.Label)
	}
	authID, _ := uuid.Parse(created.ID)
	auth := f.auths.rows[authID]
	if auth.StartOn == nil || !auth.StartOn.Equal(priorExpiry) {
		t.Fatalf("start_on = %v, want prior expiry %v", auth.StartOn, priorExpiry)
	}
	wantExpiry := priorExpiry.AddDate(0, 48, 0)
	if auth.ExpiresOn == nil || !auth.ExpiresOn.Equal(wantExpiry) {
		t.Fatalf("expires_on = %v, want %v", auth.ExpiresOn, wantExpiry)
	}
}

func TestRenewalAfterLapseStartsNow(t *testing.T) {
	f := newEngineFixture(t)

	start := f.now.AddDate(-5, 0, 0)
	lapsed := f.now.AddDate(-1, 0, 0)
	f.auths.Create(context.Background(), &model.Authorization{
		MemberID:   f.requester.ID,
		ActivityID: f.activity.ID,
		Status:     model.AuthStatusExpired,
		StartOn:    &start,
		ExpiresOn:  &lapsed,
	})

	created := f.request(t, true)
	step := f.pendingStep(t, created.ID)
	if _, err := f.svc.Approve(context.Background(), step.ID.String(), f.marshal.ID.String(), ApproveStepDTO{}); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	authID, _ := uuid.Parse(created.ID)
	auth := f.auths.rows[authID]
	if auth.StartOn == nil || !auth.StartOn.Equal(f.now) {
		t.Fatalf("start_on = %v, want now %v", auth.StartOn, f.now)
	}
}

func TestApproveGrantsLinkedRole(t *testing.T) {
	f := newEngineFixture(t)
	roleID := uuid.New()
	f.activity.GrantsRoleID = &roleID

	created := f.request(t, false)
	step := f.pendingStep(t, created.ID)
	if _, err := f.svc.Approve(context.Background(), step.ID.String(), f.marshal.ID.String(), ApproveStepDTO{}); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if len(f.memberRoles.grants) != 1 {
		t.Fatalf("grants = %d, want 1", len(f.memberRoles.grants))
	}
	grant := f.memberRoles.grants[0]
	if grant.MemberID != f.requester.ID || grant.RoleID != roleID {
		t.Fatalf("grant targets %s/%s", grant.MemberID, grant.RoleID)
	}
	if grant.EntityType != model.GrantSourceAuthorization {
		t.Fatalf("grant entity type = %q", grant.EntityType)
	}
	authID, _ := uuid.Parse(created.ID)
	if grant.EntityID == nil || *grant.EntityID != authID {
		t.Fatal("grant does not reference the authorization")
	}
	if !containsID(f.perms.invalidated, f.requester.ID) {
		t.Fatal("permission cache not invalidated for the grantee")
	}
}

func TestRevokeEndsGrantAndWindow(t *testing.T) {
	f := newEngineFixture(t)
	roleID := uuid.New()
	f.activity.GrantsRoleID = &roleID

	created := f.request(t, false)
	step := f.pendingStep(t, created.ID)
	if _, err := f.svc.Approve(context.Background(), step.ID.String(), f.marshal.ID.String(), ApproveStepDTO{}); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	resp, err := f.svc.Revoke(context.Background(), created.ID, f.marshal.ID.String(), RevokeAuthorizationDTO{Reason: "safety violation"})
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if resp.Status != model.AuthStatusRevoked {
		t.Fatalf("status = %q, want REVOKED", resp.Status)
	}
	if resp.RevokedReason != "safety violation" {
		t.Fatalf("reason = %q", resp.RevokedReason)
	}

	authID, _ := uuid.Parse(created.ID)
	auth := f.auths.rows[authID]
	if auth.ExpiresOn == nil || !auth.ExpiresOn.Equal(f.now) {
		t.Fatalf("expires_on = %v, want now", auth.ExpiresOn)
	}
	if auth.RevokerID == nil || *auth.RevokerID != f.marshal.ID {
		t.Fatal("revoker not recorded")
	}

	grant := f.memberRoles.grants[0]
	if grant.ExpiresOn == nil || !grant.ExpiresOn.Equal(f.now) {
		t.Fatalf("linked role grant not ended: %v", grant.ExpiresOn)
	}
	if f.notifier.revoked != 1 {
		t.Fatalf("revocation notifications = %d, want 1", f.notifier.revoked)
	}
}

func TestRevokeRequiresCurrentGrant(t *testing.T) {
	f := newEngineFixture(t)
	created := f.request(t, false)

	// Still pending: nothing to revoke.
	_, err := f.svc.Revoke(context.Background(), created.ID, f.marshal.ID.String(), RevokeAuthorizationDTO{Reason: "x"})
	if !errors.Is(err, ErrNotRevocable) {
		t.Fatalf("err = %v, want ErrNotRevocable", err)
	}

	// Approved but already lapsed: likewise.
	start := f.now.AddDate(-5, 0, 0)
	lapsed := f.now.AddDate(-1, 0, 0)
	stale := &model.Authorization{
		MemberID:   f.requester.ID,
		ActivityID: f.activity.ID,
		Status:     model.AuthStatusApproved,
		StartOn:    &start,
		ExpiresOn:  &lapsed,
	}
	f.auths.Create(context.Background(), stale)
	_, err = f.svc.Revoke(context.Background(), stale.ID.String(), f.marshal.ID.String(), RevokeAuthorizationDTO{Reason: "x"})
	if !errors.Is(err, ErrNotRevocable) {
		t.Fatalf("err = %v, want ErrNotRevocable", err)
	}
}

func TestExpireLapsedSweep(t *testing.T) {
	f := newEngineFixture(t)

	mkApproved := func(expiresIn time.Duration) *model.Authorization {
		start := f.now.AddDate(-4, 0, 0)
		expiry := f.now.Add(expiresIn)
		a := &model.Authorization{
			MemberID:   f.requester.ID,
			ActivityID: f.activity.ID,
			Status:     model.AuthStatusApproved,
			StartOn:    &start,
			ExpiresOn:  &expiry,
		}
		f.auths.Create(context.Background(), a)
		return a
	}

	lapsedA := mkApproved(-48 * time.Hour)
	lapsedB := mkApproved(-time.Second)
	current := mkApproved(24 * time.Hour)

	expired, err := f.svc.ExpireLapsed(context.Background(), f.now)
	if err != nil {
		t.Fatalf("ExpireLapsed: %v", err)
	}
	if expired != 2 {
		t.Fatalf("expired = %d, want 2", expired)
	}
	if lapsedA.Status != model.AuthStatusExpired || lapsedB.Status != model.AuthStatusExpired {
		t.Fatalf("lapsed rows not expired: %q / %q", lapsedA.Status, lapsedB.Status)
	}
	if current.Status != model.AuthStatusApproved {
		t.Fatalf("current row touched: %q", current.Status)
	}
	if !containsID(f.perms.invalidated, f.requester.ID) {
		t.Fatal("permission cache not invalidated after expiry")
	}
}

func TestExpireStillCurrent(t *testing.T) {
	f := newEngineFixture(t)

	start := f.now.AddDate(0, -1, 0)
	expiry := f.now.AddDate(0, 1, 0)
	a := &model.Authorization{
		MemberID:   f.requester.ID,
		ActivityID: f.activity.ID,
		Status:     model.AuthStatusApproved,
		StartOn:    &start,
		ExpiresOn:  &expiry,
	}
	f.auths.Create(context.Background(), a)

	if err := f.svc.Expire(context.Background(), a.ID, f.now); !errors.Is(err, ErrStillCurrent) {
		t.Fatalf("err = %v, want ErrStillCurrent", err)
	}
}

func TestResolveToken(t *testing.T) {
	f := newEngineFixture(t)
	created := f.request(t, false)
	step := f.pendingStep(t, created.ID)

	resp, err := f.svc.ResolveToken(context.Background(), step.AuthorizationToken)
	if err != nil {
		t.Fatalf("ResolveToken: %v", err)
	}
	if resp.StepID != step.ID.String() {
		t.Fatalf("step id = %s, want %s", resp.StepID, step.ID)
	}
	if resp.ApproverID != f.marshal.ID.String() {
		t.Fatalf("approver id = %s, want %s", resp.ApproverID, f.marshal.ID)
	}
	if resp.Authorization.ID != created.ID {
		t.Fatal("token resolved to the wrong authorization")
	}

	if _, err := f.svc.ResolveToken(context.Background(), "no-such-token"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("err = %v, want ErrTokenNotFound", err)
	}

	// A resolved step's token is spent.
	if _, err := f.svc.Approve(context.Background(), step.ID.String(), f.marshal.ID.String(), ApproveStepDTO{}); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := f.svc.ResolveToken(context.Background(), step.AuthorizationToken); !errors.Is(err, ErrApprovalResolved) {
		t.Fatalf("err = %v, want ErrApprovalResolved", err)
	}
}

func TestPendingForApprover(t *testing.T) {
	f := newEngineFixture(t)
	f.request(t, false)

	pending, err := f.svc.PendingForApprover(context.Background(), f.marshal.ID.String())
	if err != nil {
		t.Fatalf("PendingForApprover: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if pending[0].MemberName != "Aldric" || pending[0].ActivityName != "Armored Combat" {
		t.Fatalf("unexpected pending row: %+v", pending[0])
	}

	none, err := f.svc.PendingForApprover(context.Background(), f.marshal2.ID.String())
	if err != nil {
		t.Fatalf("PendingForApprover: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("pending for uninvolved approver = %d, want 0", len(none))
	}
}
