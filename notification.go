package enroll

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-print"
)

// Notification is the payload emitted after a workflow issues a verification
// token or completes a registration. Token is nil for auto-verified sign-ups.
type Notification struct {
	User           *User
	RequestContext any
	Token          *VerificationToken
	Purpose        TokenPurpose
	OccurredAt     time.Time
}

// Notifier delivers notifications to an external collaborator, usually a
// mailer. Delivery is best-effort: workflows log failures and move on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) error {
	return nil
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// PrintNotifier is a development Notifier that dumps the payload to stdout.
type PrintNotifier struct{}

// Notify implements Notifier.
func (PrintNotifier) Notify(_ context.Context, n Notification) error {
	payload := map[string]any{
		"purpose": n.Purpose,
	}
	if n.User != nil {
		payload["to"] = n.User.Email
		payload["user_id"] = n.User.ID.String()
	}
	if n.Token != nil {
		payload["to"] = tokenRecipient(n)
		payload["link"] = fmt.Sprintf("/verify/%s/%s", n.Purpose, n.Token.Value)
	}

	fmt.Println("====== SENDING EMAIL NOTIFICATION =======")
	fmt.Println(print.MaybePrettyJSON(payload))
	return nil
}

func tokenRecipient(n Notification) string {
	// sign_up and email_change tokens are scoped to the email under
	// verification, reset tokens go to the account email
	if n.Token != nil && n.Token.Email != "" {
		return n.Token.Email
	}
	if n.User != nil {
		return n.User.Email
	}
	return ""
}

// dispatchNotification emits n without blocking the workflow. The state
// transition already committed; a delivery failure is logged, not propagated.
func dispatchNotification(notifier Notifier, logger Logger, n Notification) {
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now()
	}

	if logger == nil {
		logger = defLogger{}
	}

	notifier = normalizeNotifier(notifier)

	go func() {
		if err := notifier.Notify(context.Background(), n); err != nil {
			logger.Warn("notification delivery error: %v", err)
		}
	}()
}
