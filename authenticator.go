package enroll

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// Authenticator matches a login credential against the configured account
// attributes and verifies the secret. It is read-only: no lockout, no
// attempt tracking, no session issuance.
type Authenticator struct {
	matcher          *CredentialMatcher
	activitySink     ActivitySink
	logger           Logger
	supportsInactive bool
	decoyHash        string
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, cfg Config) (*Authenticator, error) {
	matcher, err := NewCredentialMatcher(repo, cfg)
	if err != nil {
		return nil, err
	}

	return &Authenticator{
		matcher:          matcher,
		activitySink:     noopActivitySink{},
		logger:           defLogger{},
		supportsInactive: cfg.GetSupportsInactiveUser(),
		// compared against on the no-account path so both failure branches
		// cost one bcrypt verification
		decoyHash: RandomPasswordHash(),
	}, nil
}

func (a *Authenticator) WithLogger(logger Logger) *Authenticator {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (a *Authenticator) WithActivitySink(sink ActivitySink) *Authenticator {
	a.activitySink = normalizeActivitySink(sink)
	return a
}

// Matcher returns the CredentialMatcher used by this Authenticator.
func (a *Authenticator) Matcher() *CredentialMatcher {
	return a.matcher
}

// SupportsInactiveUser reports whether the deployment admits inactive
// accounts at login. The Authenticator itself never rejects them; the login
// flow calls EnsureActive when this returns false, while password reset
// flows authenticate inactive accounts regardless.
func (a *Authenticator) SupportsInactiveUser() bool {
	return a.supportsInactive
}

// Authenticate resolves login and verifies secret against the stored hash.
// Unknown login and bad secret collapse into the same error.
func (a *Authenticator) Authenticate(ctx context.Context, login, secret string) (*User, error) {
	user, err := a.matcher.FindByLogin(ctx, login)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// burn a comparison so the miss costs the same as a mismatch
			_ = ComparePasswordAndHash(secret, a.decoyHash)

			a.emitAuthEvent(ctx, ActivityEventLoginFailure, "", map[string]any{
				"login": login,
				"error": "no matching account",
			})
			return nil, ErrAuthFailed
		}

		a.logger.Error("authenticate login lookup error: %v", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve login")
	}

	if err := ComparePasswordAndHash(secret, user.PasswordHash); err != nil {
		if !errors.Is(err, ErrMismatchedHashAndPassword) {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "password verification failed")
		}

		a.emitAuthEvent(ctx, ActivityEventLoginFailure, user.ID.String(), map[string]any{
			"login": login,
			"error": "bad credential",
		})
		return nil, ErrAuthFailed
	}

	a.emitAuthEvent(ctx, ActivityEventLoginSuccess, user.ID.String(), map[string]any{
		"login": login,
	})

	return user, nil
}

// EnsureActive is the activity check login flows apply after Authenticate
// when SupportsInactiveUser is false.
func (a *Authenticator) EnsureActive(user *User) error {
	if user == nil {
		return ErrAuthFailed
	}

	if !user.IsActive() {
		return ErrAccountInactive
	}

	return nil
}

func (a *Authenticator) emitAuthEvent(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	actor := ActorRef{Type: "unknown"}
	if userID != "" {
		actor = ActorRef{ID: userID, Type: "user"}
	}

	recordActivity(ctx, a.activitySink, a.logger, ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	})
}
