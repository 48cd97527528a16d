package enroll

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventUserStatusChanged      ActivityEventType = "user.status.changed"
	ActivityEventLoginSuccess           ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure           ActivityEventType = "auth.login.failure"
	ActivityEventAccountRegistered      ActivityEventType = "account.registered"
	ActivityEventAccountActivated       ActivityEventType = "account.activated"
	ActivityEventPasswordResetRequested ActivityEventType = "account.password_reset.requested"
	ActivityEventPasswordResetSuccess   ActivityEventType = "account.password_reset.success"
	ActivityEventEmailChangeRequested   ActivityEventType = "account.email_change.requested"
	ActivityEventEmailChangeConfirmed   ActivityEventType = "account.email_change.confirmed"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	FromStatus UserStatus
	ToStatus   UserStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		if logger == nil {
			logger = defLogger{}
		}
		logger.Warn("activity sink record error: %v", err)
	}
}
