package enroll

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type VerifySignUpMessage struct {
	Token          string `json:"token" doc:"Sign up verification token from the confirmation link."`
	RequestContext any    `json:"-"`
	OnResponse     func(resp *VerifySignUpResponse)
}

func (m VerifySignUpMessage) Type() string { return "account.sign_up.verify" }

type VerifySignUpResponse struct {
	User    *User
	Success bool
}

// VerifySignUpHandler redeems a sign_up token and activates the account.
// Redemption and activation share one transaction: if activation fails the
// token stays unconsumed and the link can be retried.
type VerifySignUpHandler struct {
	repo     RepositoryManager
	tokens   *TokenStore
	machine  AccountStateMachine
	activity ActivitySink
	logger   Logger
}

// NewVerifySignUpHandler creates a handler with sane defaults.
func NewVerifySignUpHandler(repo RepositoryManager, tokens *TokenStore) *VerifySignUpHandler {
	return &VerifySignUpHandler{
		repo:     repo,
		tokens:   tokens,
		machine:  NewAccountStateMachine(repo.Users()),
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithStateMachine overrides the lifecycle machine used for activation.
func (h *VerifySignUpHandler) WithStateMachine(machine AccountStateMachine) *VerifySignUpHandler {
	if machine != nil {
		h.machine = machine
	}
	return h
}

// WithActivitySink sets the sink used to emit activation events.
func (h *VerifySignUpHandler) WithActivitySink(sink ActivitySink) *VerifySignUpHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *VerifySignUpHandler) WithLogger(logger Logger) *VerifySignUpHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifySignUpHandler) Execute(ctx context.Context, event VerifySignUpMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during sign up verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifySignUpHandler) execute(ctx context.Context, event VerifySignUpMessage) error {
	resp := &VerifySignUpResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err := h.tokens.RedeemTx(ctx, tx, event.Token, PurposeSignUp)
		if err != nil {
			return err
		}

		user, err := h.repo.Users().GetByIDTx(ctx, tx, token.UserID.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for activation")
		}

		activated, err := h.machine.TransitionTx(ctx, tx, ActorRef{ID: user.ID.String(), Type: "user"}, user, UserStatusActive)
		if err != nil {
			return err
		}

		resp.User = activated
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to verify sign up")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventAccountActivated,
		Actor:     ActorRef{ID: resp.User.ID.String(), Type: "user"},
		UserID:    resp.User.ID.String(),
	})

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
