package enroll

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token           string `json:"token" doc:"Password reset token from the confirmation link."`
	Password        string `json:"password" example:"some_secret_word" doc:"New password."`
	PasswordConfirm string `json:"password_confirm" doc:"New password, typed again."`
	RequestContext  any    `json:"-"`
	OnResponse      func(resp *FinalizePasswordResetResponse)
}

func (m FinalizePasswordResetMessage) Type() string { return "account.password_reset.finalize" }

type FinalizePasswordResetResponse struct {
	User    *User
	Success bool
}

// FinalizePasswordResetHandler is step two of the reset flow. The two-secret
// confirmation runs before anything touches storage, then token redemption
// and the secret overwrite share one transaction: a failed overwrite rolls
// the consumption back so the link can be retried.
type FinalizePasswordResetHandler struct {
	repo      RepositoryManager
	tokens    *TokenStore
	binding   ValidatorBinding
	activity  ActivitySink
	logger    Logger
	pwdMinLen int
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager, tokens *TokenStore, cfg Config) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:      repo,
		tokens:    tokens,
		binding:   nil,
		activity:  noopActivitySink{},
		logger:    defLogger{},
		pwdMinLen: cfg.GetPasswordMinLength(),
	}
}

// WithValidatorBinding attaches extra password validators.
func (h *FinalizePasswordResetHandler) WithValidatorBinding(binding ValidatorBinding) *FinalizePasswordResetHandler {
	h.binding = binding
	return h
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	resp := &FinalizePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := h.validate(ctx, event); err != nil {
		return wrapValidationError(err, "invalid password reset input")
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err := h.tokens.RedeemTx(ctx, tx, event.Token, PurposePasswordReset)
		if err != nil {
			return err
		}

		user, err := ChangePasswordTx(ctx, tx, h.repo, token.UserID, event.Password)
		if err != nil {
			return err
		}

		resp.User = user
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor:     ActorRef{ID: resp.User.ID.String(), Type: "user"},
		UserID:    resp.User.ID.String(),
	})

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *FinalizePasswordResetHandler) validate(ctx context.Context, event FinalizePasswordResetMessage) error {
	// no login name at this point; login-relative rules no-op
	fctx := FieldContext{Ctx: ctx, Repo: h.repo}

	passwordRules := append([]validation.Rule{
		validation.Required,
		validation.Length(h.pwdMinLen, 100),
	}, h.binding.Rules("password", fctx)...)

	return validation.ValidateStruct(&event,
		validation.Field(&event.Token, validation.Required),
		validation.Field(&event.Password, passwordRules...),
		validation.Field(
			&event.PasswordConfirm,
			validation.Required,
			validation.By(ValidateStringEquals(event.Password)),
		),
	)
}

// ChangePasswordTx overwrites the account secret. It is the "decide the new
// secret" half of the reset flow; callers must already have proven control
// of a password_reset token, normally by redeeming it in the same
// transaction.
func ChangePasswordTx(ctx context.Context, tx bun.IDB, repo RepositoryManager, userID uuid.UUID, password string) (*User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	if err := repo.Users().ResetPasswordTx(ctx, tx, userID, hash); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account password")
	}

	return repo.Users().GetByIDTx(ctx, tx, userID.String())
}
