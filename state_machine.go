package enroll

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const textCodeInvalidTransition = "INVALID_ACCOUNT_STATE_TRANSITION"

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition)

// ActorRef identifies who/what triggered a transition.
type ActorRef struct {
	ID   string
	Type string
}

// accountTransitions is the lifecycle graph: a pending account activates
// once its email is verified; active accounts can be suspended and
// reinstated. Pending never jumps to suspended and nothing leaves via
// any other edge.
var accountTransitions = map[UserStatus][]UserStatus{
	UserStatusPending:   {UserStatusActive},
	UserStatusActive:    {UserStatusSuspended},
	UserStatusSuspended: {UserStatusActive},
}

// AccountStateMachine centralizes lifecycle transitions for users.
type AccountStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, user *User, target UserStatus) (*User, error)
	TransitionTx(ctx context.Context, tx bun.IDB, actor ActorRef, user *User, target UserStatus) (*User, error)
	CurrentStatus(user *User) UserStatus
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accountStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *accountStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

type accountStateMachine struct {
	users        Users
	activitySink ActivitySink
	logger       Logger
	now          func() time.Time
}

// NewAccountStateMachine builds the lifecycle machine over the users repository.
func NewAccountStateMachine(users Users, opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		users:        users,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		now:          time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

func (sm *accountStateMachine) CurrentStatus(user *User) UserStatus {
	if user == nil {
		return ""
	}
	user.EnsureStatus()
	return user.Status
}

func (sm *accountStateMachine) Transition(ctx context.Context, actor ActorRef, user *User, target UserStatus) (*User, error) {
	return sm.transition(ctx, nil, actor, user, target)
}

func (sm *accountStateMachine) TransitionTx(ctx context.Context, tx bun.IDB, actor ActorRef, user *User, target UserStatus) (*User, error) {
	return sm.transition(ctx, tx, actor, user, target)
}

func (sm *accountStateMachine) transition(ctx context.Context, tx bun.IDB, actor ActorRef, user *User, target UserStatus) (*User, error) {
	from := sm.CurrentStatus(user)

	if !transitionAllowed(from, target) {
		return nil, ErrInvalidTransition
	}

	opts := sm.statusOptions(from, target)

	var updated *User
	var err error
	if tx != nil {
		updated, err = sm.users.UpdateStatusTx(ctx, tx, user.ID, target, opts...)
	} else {
		updated, err = sm.users.UpdateStatus(ctx, user.ID, target, opts...)
	}
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist status transition")
	}

	recordActivity(ctx, sm.activitySink, sm.logger, ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		Actor:      actor,
		UserID:     user.ID.String(),
		FromStatus: from,
		ToStatus:   target,
		OccurredAt: sm.now(),
	})

	return updated, nil
}

func (sm *accountStateMachine) statusOptions(from, target UserStatus) []StatusUpdateOption {
	var opts []StatusUpdateOption

	switch target {
	case UserStatusSuspended:
		at := sm.now()
		opts = append(opts, WithSuspendedAt(&at))
	case UserStatusActive:
		// activating a pending account means its email was just verified
		if from == UserStatusPending {
			opts = append(opts, WithEmailVerified())
		}
		opts = append(opts, WithSuspendedAt(nil))
	}

	return opts
}

func transitionAllowed(from, target UserStatus) bool {
	for _, allowed := range accountTransitions[from] {
		if allowed == target {
			return true
		}
	}
	return false
}
