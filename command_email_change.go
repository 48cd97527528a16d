package enroll

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RequestEmailChangeMessage struct {
	UserID         uuid.UUID `json:"user_id" doc:"Account requesting the address change."`
	NewEmail       string    `json:"new_email" example:"pepe.rone@example.com" doc:"Address the token will be scoped to."`
	RequestContext any       `json:"-"`
	OnResponse     func(resp *RequestEmailChangeResponse)
}

func (m RequestEmailChangeMessage) Type() string { return "account.email_change" }

type RequestEmailChangeResponse struct {
	User    *User
	Token   *VerificationToken
	Success bool
}

// RequestEmailChangeHandler is step one of the address change: the account
// keeps its current email until a token scoped to the candidate address is
// redeemed. The candidate is validated for uniqueness here, and again at
// confirmation by the column constraint.
type RequestEmailChangeHandler struct {
	repo     RepositoryManager
	tokens   *TokenStore
	binding  ValidatorBinding
	notifier Notifier
	activity ActivitySink
	logger   Logger
}

// NewRequestEmailChangeHandler creates a handler with sane defaults.
func NewRequestEmailChangeHandler(repo RepositoryManager, tokens *TokenStore) *RequestEmailChangeHandler {
	return &RequestEmailChangeHandler{
		repo:     repo,
		tokens:   tokens,
		binding:  DefaultValidatorBinding(),
		notifier: noopNotifier{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithValidatorBinding overrides the per-field validator table.
func (h *RequestEmailChangeHandler) WithValidatorBinding(binding ValidatorBinding) *RequestEmailChangeHandler {
	if binding != nil {
		h.binding = binding
	}
	return h
}

// WithNotifier sets the notification hook that mails the confirmation link.
func (h *RequestEmailChangeHandler) WithNotifier(notifier Notifier) *RequestEmailChangeHandler {
	h.notifier = normalizeNotifier(notifier)
	return h
}

// WithActivitySink sets the sink used to emit email change events.
func (h *RequestEmailChangeHandler) WithActivitySink(sink ActivitySink) *RequestEmailChangeHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RequestEmailChangeHandler) WithLogger(logger Logger) *RequestEmailChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RequestEmailChangeHandler) Execute(ctx context.Context, event RequestEmailChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email change request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestEmailChangeHandler) execute(ctx context.Context, event RequestEmailChangeMessage) error {
	resp := &RequestEmailChangeResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := h.validate(ctx, event); err != nil {
		return wrapValidationError(err, "invalid email change input")
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByIDTx(ctx, tx, event.UserID.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryNotFound, "account not found for email change")
		}

		token, err := h.tokens.CreateTx(ctx, tx, user, PurposeEmailChange, event.NewEmail)
		if err != nil {
			return err
		}

		resp.User = user
		resp.Token = token
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to request email change")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventEmailChangeRequested,
		Actor:     ActorRef{ID: resp.User.ID.String(), Type: "user"},
		UserID:    resp.User.ID.String(),
		Metadata: map[string]any{
			"new_email": event.NewEmail,
		},
	})

	dispatchNotification(h.notifier, h.logger, Notification{
		User:           resp.User,
		RequestContext: event.RequestContext,
		Token:          resp.Token,
		Purpose:        PurposeEmailChange,
	})

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *RequestEmailChangeHandler) validate(ctx context.Context, event RequestEmailChangeMessage) error {
	fctx := FieldContext{Ctx: ctx, Repo: h.repo}

	emailRules := append([]validation.Rule{
		validation.Required,
		validation.Length(6, 100),
		is.Email,
	}, h.binding.Rules("email", fctx)...)

	return validation.ValidateStruct(&event,
		validation.Field(&event.UserID, validation.Required, validation.By(validateUUIDNotNil)),
		validation.Field(&event.NewEmail, emailRules...),
	)
}

func validateUUIDNotNil(value any) error {
	id, ok := value.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return goerrors.New("a valid user id is required", goerrors.CategoryBadInput)
	}
	return nil
}

type ConfirmEmailChangeMessage struct {
	Token          string `json:"token" doc:"Email change token from the confirmation link."`
	RequestContext any    `json:"-"`
	OnResponse     func(resp *ConfirmEmailChangeResponse)
}

func (m ConfirmEmailChangeMessage) Type() string { return "account.email_change.confirm" }

type ConfirmEmailChangeResponse struct {
	User    *User
	Success bool
}

// ConfirmEmailChangeHandler redeems an email_change token and writes the
// address the token carries onto the account. Redemption and the address
// swap share one transaction.
type ConfirmEmailChangeHandler struct {
	repo     RepositoryManager
	tokens   *TokenStore
	activity ActivitySink
	logger   Logger
}

// NewConfirmEmailChangeHandler creates a handler with sane defaults.
func NewConfirmEmailChangeHandler(repo RepositoryManager, tokens *TokenStore) *ConfirmEmailChangeHandler {
	return &ConfirmEmailChangeHandler{
		repo:     repo,
		tokens:   tokens,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit confirmation events.
func (h *ConfirmEmailChangeHandler) WithActivitySink(sink ActivitySink) *ConfirmEmailChangeHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ConfirmEmailChangeHandler) WithLogger(logger Logger) *ConfirmEmailChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConfirmEmailChangeHandler) Execute(ctx context.Context, event ConfirmEmailChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email change confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmEmailChangeHandler) execute(ctx context.Context, event ConfirmEmailChangeMessage) error {
	resp := &ConfirmEmailChangeResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err := h.tokens.RedeemTx(ctx, tx, event.Token, PurposeEmailChange)
		if err != nil {
			return err
		}

		user, err := h.repo.Users().ChangeEmailTx(ctx, tx, token.UserID, token.Email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account email")
		}

		resp.User = user
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm email change")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventEmailChangeConfirmed,
		Actor:     ActorRef{ID: resp.User.ID.String(), Type: "user"},
		UserID:    resp.User.ID.String(),
		Metadata: map[string]any{
			"email": resp.User.Email,
		},
	})

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
