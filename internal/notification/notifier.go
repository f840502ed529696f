package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"portal/internal/logging"
	"portal/internal/model"
)

// Notifier dispatches workflow emails. Failures are the caller's to log,
// never to roll a committed transition back for.
type Notifier interface {
	ApprovalRequested(ctx context.Context, approver, requester *model.Member, activity *model.Activity, token string) error
	AuthorizationApproved(ctx context.Context, member *model.Member, activity *model.Activity) error
	AuthorizationDenied(ctx context.Context, member *model.Member, activity *model.Activity, notes string) error
	AuthorizationRevoked(ctx context.Context, member *model.Member, activity *model.Activity, reason string) error
}

// EmailNotifier renders workflow notifications and hands them to a Mailer.
type EmailNotifier struct {
	mailer  Mailer
	baseURL string // portal base URL used in approval links
}

// Mailer is the transport boundary. The default implementation only logs;
// a real SMTP or provider client slots in behind the same method.
type Mailer interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

func NewEmailNotifier(mailer Mailer, baseURL string) *EmailNotifier {
	return &EmailNotifier{mailer: mailer, baseURL: baseURL}
}

func (n *EmailNotifier) ApprovalRequested(ctx context.Context, approver, requester *model.Member, activity *model.Activity, token string) error {
	subject := fmt.Sprintf("Authorization approval needed: %s", activity.Name)
	body := fmt.Sprintf(
		"%s has requested authorization for %s and selected you as an approver.\n\nReview: %s/authorizations/approvals/token/%s\n",
		requester.DisplayName(), activity.Name, n.baseURL, token,
	)
	return n.mailer.Send(ctx, approver.Email, subject, body)
}

func (n *EmailNotifier) AuthorizationApproved(ctx context.Context, member *model.Member, activity *model.Activity) error {
	subject := fmt.Sprintf("Authorization approved: %s", activity.Name)
	body := fmt.Sprintf("Your authorization for %s has been approved.\n", activity.Name)
	return n.mailer.Send(ctx, member.Email, subject, body)
}

func (n *EmailNotifier) AuthorizationDenied(ctx context.Context, member *model.Member, activity *model.Activity, notes string) error {
	subject := fmt.Sprintf("Authorization denied: %s", activity.Name)
	body := fmt.Sprintf("Your authorization request for %s was denied.\n", activity.Name)
	if notes != "" {
		body += "Approver notes: " + notes + "\n"
	}
	return n.mailer.Send(ctx, member.Email, subject, body)
}

func (n *EmailNotifier) AuthorizationRevoked(ctx context.Context, member *model.Member, activity *model.Activity, reason string) error {
	subject := fmt.Sprintf("Authorization revoked: %s", activity.Name)
	body := fmt.Sprintf("Your authorization for %s has been revoked.\nReason: %s\n", activity.Name, reason)
	return n.mailer.Send(ctx, member.Email, subject, body)
}

// LogMailer records outbound mail through the structured logger instead of
// an SMTP connection. Stands in wherever a real provider is not configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, recipient, subject, _ string) error {
	logging.Info("sending email",
		zap.String("recipient", recipient),
		zap.String("subject", subject))
	return nil
}
