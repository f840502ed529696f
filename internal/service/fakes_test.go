package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"portal/internal/authz"
	"portal/internal/model"
	"portal/internal/notification"
	"portal/internal/repository"
)

// In-memory repository stand-ins for workflow tests. Misses return
// gorm.ErrRecordNotFound so the services' errors.Is checks behave exactly
// as against the real repositories.

type memberRepoStub struct {
	members map[uuid.UUID]*model.Member
	holders []model.Member
}

func newMemberRepoStub() *memberRepoStub {
	return &memberRepoStub{members: make(map[uuid.UUID]*model.Member)}
}

func (r *memberRepoStub) add(m *model.Member) *model.Member {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	r.members[m.ID] = m
	return m
}

func (r *memberRepoStub) Create(_ context.Context, m *model.Member) error {
	r.add(m)
	return nil
}

func (r *memberRepoStub) GetByID(_ context.Context, id uuid.UUID) (*model.Member, error) {
	m, ok := r.members[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return m, nil
}

func (r *memberRepoStub) GetByIDWithBranch(ctx context.Context, id uuid.UUID) (*model.Member, error) {
	return r.GetByID(ctx, id)
}

func (r *memberRepoStub) GetByEmail(_ context.Context, email string) (*model.Member, error) {
	for _, m := range r.members {
		if m.Email == email {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memberRepoStub) List(_ context.Context, _, _ int) ([]model.Member, int64, error) {
	var out []model.Member
	for _, m := range r.members {
		out = append(out, *m)
	}
	return out, int64(len(out)), nil
}

func (r *memberRepoStub) Update(_ context.Context, m *model.Member) error {
	r.members[m.ID] = m
	return nil
}

func (r *memberRepoStub) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.members, id)
	return nil
}

func (r *memberRepoStub) ListHoldersOfPermission(_ context.Context, _ uuid.UUID, _ time.Time) ([]model.Member, error) {
	return r.holders, nil
}

type branchRepoStub struct {
	branches []model.Branch
}

func (r *branchRepoStub) Create(_ context.Context, b *model.Branch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	r.branches = append(r.branches, *b)
	return nil
}

func (r *branchRepoStub) Update(_ context.Context, _ *model.Branch) error { return nil }

func (r *branchRepoStub) FindByID(_ context.Context, id uuid.UUID) (*model.Branch, error) {
	for i := range r.branches {
		if r.branches[i].ID == id {
			return &r.branches[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *branchRepoStub) FindByName(_ context.Context, name string) (*model.Branch, error) {
	for i := range r.branches {
		if r.branches[i].Name == name {
			return &r.branches[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *branchRepoStub) ListAll(_ context.Context) ([]model.Branch, error) {
	return r.branches, nil
}

func (r *branchRepoStub) Descendants(_ context.Context, _ uuid.UUID) ([]model.Branch, error) {
	return nil, nil
}

func (r *branchRepoStub) RebuildTree(_ context.Context) error { return nil }

type activityRepoStub struct {
	activities map[uuid.UUID]*model.Activity
}

func newActivityRepoStub() *activityRepoStub {
	return &activityRepoStub{activities: make(map[uuid.UUID]*model.Activity)}
}

func (r *activityRepoStub) add(a *model.Activity) *model.Activity {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Permission != nil {
		a.PermissionID = a.Permission.ID
	}
	r.activities[a.ID] = a
	return a
}

func (r *activityRepoStub) Create(_ context.Context, a *model.Activity) error {
	r.add(a)
	return nil
}

func (r *activityRepoStub) Update(_ context.Context, a *model.Activity) error {
	r.activities[a.ID] = a
	return nil
}

func (r *activityRepoStub) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.activities, id)
	return nil
}

func (r *activityRepoStub) FindByID(ctx context.Context, id uuid.UUID) (*model.Activity, error) {
	return r.FindByIDWithPermission(ctx, id)
}

func (r *activityRepoStub) FindByIDWithPermission(_ context.Context, id uuid.UUID) (*model.Activity, error) {
	a, ok := r.activities[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return a, nil
}

func (r *activityRepoStub) ListAll(_ context.Context) ([]model.Activity, error) {
	var out []model.Activity
	for _, a := range r.activities {
		out = append(out, *a)
	}
	return out, nil
}

type memberRoleRepoStub struct {
	grants []*model.MemberRole
}

func (r *memberRoleRepoStub) Create(_ context.Context, g *model.MemberRole) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	r.grants = append(r.grants, g)
	return nil
}

func (r *memberRoleRepoStub) FindByID(_ context.Context, id uuid.UUID) (*model.MemberRole, error) {
	for _, g := range r.grants {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memberRoleRepoStub) ListByMember(_ context.Context, memberID uuid.UUID) ([]model.MemberRole, error) {
	var out []model.MemberRole
	for _, g := range r.grants {
		if g.MemberID == memberID {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (r *memberRoleRepoStub) ListValidForMember(_ context.Context, memberID uuid.UUID, asOf time.Time) ([]model.MemberRole, error) {
	var out []model.MemberRole
	for _, g := range r.grants {
		if g.MemberID == memberID && authz.IsValidOn(&g.StartOn, g.ExpiresOn, asOf) {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (r *memberRoleRepoStub) EndGrant(_ context.Context, id uuid.UUID, endedAt time.Time) error {
	for _, g := range r.grants {
		if g.ID == id {
			t := endedAt
			g.ExpiresOn = &t
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memberRoleRepoStub) EndGrantsByEntity(_ context.Context, entityType string, entityID uuid.UUID, endedAt time.Time) error {
	for _, g := range r.grants {
		if g.EntityType == entityType && g.EntityID != nil && *g.EntityID == entityID {
			t := endedAt
			g.ExpiresOn = &t
		}
	}
	return nil
}

type authorizationRepoStub struct {
	rows  map[uuid.UUID]*model.Authorization
	order []uuid.UUID
}

func newAuthorizationRepoStub() *authorizationRepoStub {
	return &authorizationRepoStub{rows: make(map[uuid.UUID]*model.Authorization)}
}

func (r *authorizationRepoStub) Create(_ context.Context, a *model.Authorization) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.rows[a.ID] = a
	r.order = append(r.order, a.ID)
	return nil
}

func (r *authorizationRepoStub) Update(_ context.Context, a *model.Authorization) error {
	r.rows[a.ID] = a
	return nil
}

func (r *authorizationRepoStub) FindByID(_ context.Context, id uuid.UUID) (*model.Authorization, error) {
	a, ok := r.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return a, nil
}

func (r *authorizationRepoStub) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.Authorization, error) {
	return r.FindByID(ctx, id)
}

func (r *authorizationRepoStub) FindByIDLocked(ctx context.Context, id uuid.UUID) (*model.Authorization, error) {
	return r.FindByID(ctx, id)
}

func (r *authorizationRepoStub) FindInFlight(_ context.Context, memberID, activityID uuid.UUID, asOf time.Time) (*model.Authorization, error) {
	for _, id := range r.order {
		a := r.rows[id]
		if a.MemberID != memberID || a.ActivityID != activityID {
			continue
		}
		if a.Status == model.AuthStatusPending {
			return a, nil
		}
		if a.Status == model.AuthStatusApproved && (a.ExpiresOn == nil || a.ExpiresOn.After(asOf)) {
			return a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *authorizationRepoStub) FindCurrentApproved(_ context.Context, memberID, activityID uuid.UUID, asOf time.Time) (*model.Authorization, error) {
	for _, id := range r.order {
		a := r.rows[id]
		if a.MemberID == memberID && a.ActivityID == activityID &&
			a.Status == model.AuthStatusApproved && authz.IsValidOn(a.StartOn, a.ExpiresOn, asOf) {
			return a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *authorizationRepoStub) List(_ context.Context, filter repository.AuthorizationFilter) ([]model.Authorization, int64, error) {
	var out []model.Authorization
	for _, id := range r.order {
		a := r.rows[id]
		if filter.MemberID != nil && a.MemberID != *filter.MemberID {
			continue
		}
		if filter.ActivityID != nil && a.ActivityID != *filter.ActivityID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		out = append(out, *a)
	}
	return out, int64(len(out)), nil
}

func (r *authorizationRepoStub) ListLapsed(_ context.Context, asOf time.Time) ([]model.Authorization, error) {
	var out []model.Authorization
	for _, id := range r.order {
		a := r.rows[id]
		if a.Status == model.AuthStatusApproved && a.ExpiresOn != nil && !a.ExpiresOn.After(asOf) {
			out = append(out, *a)
		}
	}
	return out, nil
}

type approvalRepoStub struct {
	steps      []*model.AuthorizationApproval
	auths      *authorizationRepoStub
	members    *memberRepoStub
	activities *activityRepoStub
}

func (r *approvalRepoStub) Create(_ context.Context, step *model.AuthorizationApproval) error {
	if step.ID == uuid.Nil {
		step.ID = uuid.New()
	}
	r.steps = append(r.steps, step)
	return nil
}

func (r *approvalRepoStub) Update(_ context.Context, step *model.AuthorizationApproval) error {
	for i, s := range r.steps {
		if s.ID == step.ID {
			r.steps[i] = step
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *approvalRepoStub) FindByID(_ context.Context, id uuid.UUID) (*model.AuthorizationApproval, error) {
	for _, s := range r.steps {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *approvalRepoStub) FindByIDLocked(ctx context.Context, id uuid.UUID) (*model.AuthorizationApproval, error) {
	return r.FindByID(ctx, id)
}

func (r *approvalRepoStub) FindByToken(_ context.Context, token string) (*model.AuthorizationApproval, error) {
	for _, s := range r.steps {
		if s.AuthorizationToken == token {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *approvalRepoStub) ListByAuthorization(_ context.Context, authorizationID uuid.UUID) ([]model.AuthorizationApproval, error) {
	var out []model.AuthorizationApproval
	for _, s := range r.steps {
		if s.AuthorizationID == authorizationID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *approvalRepoStub) FindUnresolved(_ context.Context, authorizationID uuid.UUID) (*model.AuthorizationApproval, error) {
	for _, s := range r.steps {
		if s.AuthorizationID == authorizationID && s.RespondedOn == nil {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *approvalRepoStub) ListPendingForApprover(_ context.Context, approverID uuid.UUID) ([]model.AuthorizationApproval, error) {
	var out []model.AuthorizationApproval
	for _, s := range r.steps {
		if s.ApproverID != approverID || s.RespondedOn != nil {
			continue
		}
		step := *s
		if r.auths != nil {
			if a, ok := r.auths.rows[s.AuthorizationID]; ok {
				// Mirror the real repository's preloads.
				preloaded := *a
				if r.members != nil {
					preloaded.Member = r.members.members[a.MemberID]
				}
				if r.activities != nil {
					preloaded.Activity = r.activities.activities[a.ActivityID]
				}
				step.Authorization = &preloaded
			}
		}
		out = append(out, step)
	}
	return out, nil
}

type auditRepoStub struct {
	entries []model.AuditLog
}

func (r *auditRepoStub) Log(_ context.Context, entry *model.AuditLog) error {
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *auditRepoStub) List(_ context.Context, _, _ int) ([]model.AuditLog, int64, error) {
	return r.entries, int64(len(r.entries)), nil
}

// txManagerStub mimics transaction semantics over the in-memory stubs:
// it snapshots their state before running the function and restores it when
// the function errors, since the engine mutates loaded rows before some
// failure checks and relies on rollback.
type txManagerStub struct {
	auths       *authorizationRepoStub
	approvals   *approvalRepoStub
	memberRoles *memberRoleRepoStub
	audits      *auditRepoStub
}

type txSnapshot struct {
	rows    map[uuid.UUID]*model.Authorization
	order   []uuid.UUID
	steps   []*model.AuthorizationApproval
	grants  []*model.MemberRole
	entries []model.AuditLog
}

func (m txManagerStub) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	snap := m.snapshot()
	if err := fn(ctx); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m txManagerStub) snapshot() txSnapshot {
	snap := txSnapshot{rows: make(map[uuid.UUID]*model.Authorization, len(m.auths.rows))}
	for id, a := range m.auths.rows {
		clone := *a
		snap.rows[id] = &clone
	}
	snap.order = append(snap.order, m.auths.order...)
	for _, s := range m.approvals.steps {
		clone := *s
		snap.steps = append(snap.steps, &clone)
	}
	for _, g := range m.memberRoles.grants {
		clone := *g
		snap.grants = append(snap.grants, &clone)
	}
	snap.entries = append(snap.entries, m.audits.entries...)
	return snap
}

func (m txManagerStub) restore(snap txSnapshot) {
	m.auths.rows = snap.rows
	m.auths.order = snap.order
	m.approvals.steps = snap.steps
	m.memberRoles.grants = snap.grants
	m.audits.entries = snap.entries
}

type notifierStub struct {
	requested, approved, denied, revoked int
	lastToken                            string
}

var _ notification.Notifier = (*notifierStub)(nil)

func (n *notifierStub) ApprovalRequested(_ context.Context, _, _ *model.Member, _ *model.Activity, token string) error {
	n.requested++
	n.lastToken = token
	return nil
}

func (n *notifierStub) AuthorizationApproved(_ context.Context, _ *model.Member, _ *model.Activity) error {
	n.approved++
	return nil
}

func (n *notifierStub) AuthorizationDenied(_ context.Context, _ *model.Member, _ *model.Activity, _ string) error {
	n.denied++
	return nil
}

func (n *notifierStub) AuthorizationRevoked(_ context.Context, _ *model.Member, _ *model.Activity, _ string) error {
	n.revoked++
	return nil
}

// approverStub marks specific members eligible and honors the exclusion
// list the way the real selector does.
type approverStub struct {
	eligible map[uuid.UUID]bool
}

func (a *approverStub) EligibleApprovers(_ context.Context, _, _ uuid.UUID, exclude []uuid.UUID) ([]model.Member, error) {
	var out []model.Member
	for id, ok := range a.eligible {
		if !ok || containsID(exclude, id) {
			continue
		}
		out = append(out, model.Member{ID: id})
	}
	return out, nil
}

func (a *approverStub) IsEligible(_ context.Context, _, _, approverID uuid.UUID, exclude []uuid.UUID) (bool, error) {
	if containsID(exclude, approverID) {
		return false, nil
	}
	return a.eligible[approverID], nil
}

type permissionServiceStub struct {
	sets           map[uuid.UUID]*authz.PermissionSet
	invalidated    []uuid.UUID
	invalidatedAll bool
}

func (p *permissionServiceStub) EffectivePermissions(_ context.Context, memberID uuid.UUID) (*authz.PermissionSet, error) {
	if set, ok := p.sets[memberID]; ok {
		return set, nil
	}
	return &authz.PermissionSet{MemberID: memberID}, nil
}

func (p *permissionServiceStub) EffectivePermissionsAt(ctx context.Context, memberID uuid.UUID, _ time.Time) (*authz.PermissionSet, error) {
	return p.EffectivePermissions(ctx, memberID)
}

func (p *permissionServiceStub) Invalidate(_ context.Context, memberID uuid.UUID) {
	p.invalidated = append(p.invalidated, memberID)
}

func (p *permissionServiceStub) InvalidateAll(_ context.Context) {
	p.invalidatedAll = true
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
