package enroll

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email          string `json:"email" example:"pepe.rone@example.com" doc:"Customer email."`
	RequestContext any    `json:"-"`
	OnResponse     func(resp *InitializePasswordResetResponse)
}

func (m InitializePasswordResetMessage) Type() string { return "account.password_reset" }

type InitializePasswordResetResponse struct {
	// Tokens holds one password_reset token per account registered under the
	// address. The lookup is case-insensitive and deliberately non-unique.
	Tokens  []*VerificationToken
	Success bool
}

// InitializePasswordResetHandler is step one of the reset flow: issue a token
// per matching account and hand them to the notification hook. No account
// state changes here.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	tokens   *TokenStore
	notifier Notifier
	activity ActivitySink
	logger   Logger
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager, tokens *TokenStore) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		tokens:   tokens,
		notifier: noopNotifier{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithNotifier sets the notification hook that mails the reset links.
func (h *InitializePasswordResetHandler) WithNotifier(notifier Notifier) *InitializePasswordResetHandler {
	h.notifier = normalizeNotifier(notifier)
	return h
}

// WithActivitySink sets the sink used to emit reset request events.
func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := validation.ValidateStruct(&event,
		validation.Field(&event.Email, validation.Required, is.Email),
	)
	if err != nil {
		return wrapValidationError(err, "invalid password reset input")
	}

	var accounts []*User

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		accounts, err = h.repo.Users().FindAllByEmailTx(ctx, tx, event.Email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve accounts for password reset")
		}

		if len(accounts) == 0 {
			return goerrors.New("that e-mail address doesn't have an associated account", goerrors.CategoryValidation).
				WithTextCode(TextCodeUnknownEmail).
				WithMetadata(map[string]any{"email": event.Email})
		}

		for _, account := range accounts {
			token, err := h.tokens.CreateTx(ctx, tx, account, PurposePasswordReset, "")
			if err != nil {
				return err
			}
			resp.Tokens = append(resp.Tokens, token)
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	for i, token := range resp.Tokens {
		recordActivity(ctx, h.activity, h.logger, ActivityEvent{
			EventType: ActivityEventPasswordResetRequested,
			Actor:     ActorRef{ID: token.UserID.String(), Type: "user"},
			UserID:    token.UserID.String(),
			Metadata: map[string]any{
				"token_id": token.ID.String(),
			},
		})

		dispatchNotification(h.notifier, h.logger, Notification{
			User:           accounts[i],
			RequestContext: event.RequestContext,
			Token:          token,
			Purpose:        PurposePasswordReset,
		})
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
