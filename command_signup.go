package enroll

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type SignUpMessage struct {
	Username        string `json:"username"`
	Email           string `json:"email" example:"pepe.rone@example.com" doc:"Email the activation token is scoped to."`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	UseHashid       bool   `json:"-"`
	RequestContext  any    `json:"-"`
	OnResponse      func(resp *SignUpResponse)
}

func (m SignUpMessage) Type() string { return "account.sign_up" }

// Login returns the name the account will be matched by: the username when
// given, the email local part otherwise.
func (m SignUpMessage) Login() string {
	if m.Username != "" {
		return m.Username
	}

	if strings.Contains(m.Email, "@") {
		return strings.Split(m.Email, "@")[0]
	}

	return m.Email
}

type SignUpResponse struct {
	User *User
	// Token is the sign_up verification token; nil when the deployment
	// auto-verifies accounts.
	Token   *VerificationToken
	Success bool
}

// SignUpHandler creates an account and, unless the deployment auto-verifies,
// gates activation behind a sign_up verification token.
type SignUpHandler struct {
	repo       RepositoryManager
	tokens     *TokenStore
	binding    ValidatorBinding
	notifier   Notifier
	activity   ActivitySink
	logger     Logger
	autoVerify bool
	pwdMinLen  int
	forbidDrv  bool
}

// NewSignUpHandler creates a handler with sane defaults.
func NewSignUpHandler(repo RepositoryManager, tokens *TokenStore, cfg Config) *SignUpHandler {
	return &SignUpHandler{
		repo:       repo,
		tokens:     tokens,
		binding:    DefaultValidatorBinding(),
		notifier:   noopNotifier{},
		activity:   noopActivitySink{},
		logger:     defLogger{},
		autoVerify: cfg.GetAutoVerify(),
		pwdMinLen:  cfg.GetPasswordMinLength(),
		forbidDrv:  cfg.GetForbidLoginDerivedPassword(),
	}
}

// WithValidatorBinding overrides the per-field validator table.
func (h *SignUpHandler) WithValidatorBinding(binding ValidatorBinding) *SignUpHandler {
	if binding != nil {
		h.binding = binding
	}
	return h
}

// WithNotifier sets the notification hook fired after registration.
func (h *SignUpHandler) WithNotifier(notifier Notifier) *SignUpHandler {
	h.notifier = normalizeNotifier(notifier)
	return h
}

// WithActivitySink sets the sink used to emit registration events.
func (h *SignUpHandler) WithActivitySink(sink ActivitySink) *SignUpHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *SignUpHandler) WithLogger(logger Logger) *SignUpHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *SignUpHandler) Execute(ctx context.Context, event SignUpMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during sign up",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SignUpHandler) execute(ctx context.Context, event SignUpMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := h.validate(ctx, event); err != nil {
		return wrapValidationError(err, "invalid sign up input")
	}

	resp := &SignUpResponse{}
	user := &User{}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.Username = event.Login()
		user.Email = event.Email
		user.Phone = event.Phone
		user.PasswordHash = hash
		user.Status = UserStatusPending
		if h.autoVerify {
			user.Status = UserStatusActive
			user.EmailVerified = true
		}

		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		if !h.autoVerify {
			token, err := h.tokens.CreateTx(ctx, tx, user, PurposeSignUp, event.Email)
			if err != nil {
				return err
			}
			resp.Token = token
		}

		resp.User = user
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "sign up transaction failed")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventAccountRegistered,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"auto_verify": h.autoVerify,
		},
	})

	dispatchNotification(h.notifier, h.logger, Notification{
		User:           user,
		RequestContext: event.RequestContext,
		Token:          resp.Token,
		Purpose:        PurposeSignUp,
	})

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *SignUpHandler) validate(ctx context.Context, event SignUpMessage) error {
	fctx := FieldContext{Ctx: ctx, Repo: h.repo, Login: event.Login()}

	usernameRules := append([]validation.Rule{
		validation.Length(3, 100),
	}, h.binding.Rules("username", fctx)...)

	emailRules := append([]validation.Rule{
		validation.Required,
		validation.Length(6, 100),
		is.Email,
	}, h.binding.Rules("email", fctx)...)

	phoneRules := h.binding.Rules("phone", fctx)

	passwordRules := []validation.Rule{
		validation.Required,
		validation.Length(h.pwdMinLen, 100),
	}
	if h.forbidDrv {
		passwordRules = append(passwordRules, NotDerivedFromLogin(fctx))
	}
	passwordRules = append(passwordRules, h.binding.Rules("password", fctx)...)

	return validation.ValidateStruct(&event,
		validation.Field(&event.Username, usernameRules...),
		validation.Field(&event.Email, emailRules...),
		validation.Field(&event.Phone, phoneRules...),
		validation.Field(&event.Password, passwordRules...),
		validation.Field(
			&event.PasswordConfirm,
			validation.Required,
			validation.By(ValidateStringEquals(event.Password)),
		),
	)
}
