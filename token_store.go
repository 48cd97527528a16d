package enroll

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// TokenStore creates and redeems verification tokens. Redemption always runs
// inside the caller's transaction so the consumption flag and the state
// change it authorizes commit or roll back together.
type TokenStore struct {
	repo   RepositoryManager
	ttl    string
	now    func() time.Time
	logger Logger
}

// NewTokenStore builds a store with the TTL pattern from cfg. An empty
// pattern means tokens never expire; deployments should configure one.
func NewTokenStore(repo RepositoryManager, cfg Config) (*TokenStore, error) {
	ttl := cfg.GetTokenTTL()
	if ttl != "" {
		if _, err := time.ParseDuration(ttl); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid token TTL pattern").
				WithMetadata(map[string]any{"ttl": ttl})
		}
	}

	return &TokenStore{
		repo:   repo,
		ttl:    ttl,
		now:    time.Now,
		logger: defLogger{},
	}, nil
}

func (s *TokenStore) WithLogger(logger Logger) *TokenStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithClock injects a custom clock (useful for tests).
func (s *TokenStore) WithClock(clock func() time.Time) *TokenStore {
	if clock != nil {
		s.now = clock
	}
	return s
}

// CreateTx issues a token for user scoped to purpose. email carries the
// address under verification for sign_up and email_change tokens and stays
// empty for password resets.
func (s *TokenStore) CreateTx(ctx context.Context, tx bun.IDB, user *User, purpose TokenPurpose, email string) (*VerificationToken, error) {
	value, err := NewTokenValue()
	if err != nil {
		return nil, err
	}

	record := &VerificationToken{
		Value:   value,
		UserID:  user.ID,
		Purpose: purpose,
		Email:   email,
	}

	if s.ttl != "" {
		duration, err := time.ParseDuration(s.ttl)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to parse token TTL")
		}
		expiresAt := s.now().Add(duration)
		record.ExpiresAt = &expiresAt
	}

	created, err := s.repo.VerificationTokens().CreateTx(ctx, tx, record)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist verification token")
	}

	return created, nil
}

// RedeemTx validates and consumes the token identified by value. Failure
// kinds (not found, wrong purpose, consumed, expired) stay distinguishable
// through the error predicates in errors.go. On success the returned token
// carries its consumption timestamp.
func (s *TokenStore) RedeemTx(ctx context.Context, tx bun.IDB, value string, purpose TokenPurpose) (*VerificationToken, error) {
	token, err := s.repo.VerificationTokens().GetByValueTx(ctx, tx, value)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, newTokenNotFoundError(value)
		}
		return nil, err
	}

	if token.Purpose != purpose {
		return nil, newTokenPurposeError(token.Purpose, purpose)
	}

	if token.IsConsumed() {
		return nil, newTokenConsumedError()
	}

	if err := s.checkExpiry(token); err != nil {
		return nil, err
	}

	// compare-and-set: a concurrent redemption that got here first wins and
	// this call surfaces the already-used error
	consumed, err := s.repo.VerificationTokens().ConsumeTx(ctx, tx, token.ID, s.now())
	if err != nil {
		return nil, err
	}

	return consumed, nil
}

func (s *TokenStore) checkExpiry(token *VerificationToken) error {
	if token.ExpiresAt != nil {
		if token.IsExpired(s.now()) {
			return newTokenExpiredError()
		}
		return nil
	}

	// rows issued before a TTL was configured fall back to the creation
	// timestamp check
	if s.ttl == "" || token.CreatedAt == nil {
		return nil
	}

	expired, err := IsOutsideThresholdPeriod(*token.CreatedAt, s.ttl)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check token expiration period")
	}

	if expired {
		return newTokenExpiredError()
	}

	return nil
}
