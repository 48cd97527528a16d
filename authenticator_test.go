package enroll_test

import (
	"context"
	"errors"
	"testing"

	"github.com/farin/go-enroll"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func quickHash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newTestAuthenticator(t *testing.T, users *MockUsers, cfg enroll.Config) (*enroll.Authenticator, *MockRepositoryManager) {
	t.Helper()

	repo := &MockRepositoryManager{}
	repo.On("Users").Return(users)

	authenticator, err := enroll.NewAuthenticator(repo, cfg)
	require.NoError(t, err)

	return authenticator.WithLogger(testLogger{}), repo
}

func TestAuthenticateMatchesConfiguredAttributes(t *testing.T) {
	ctx := context.Background()
	users := &MockUsers{}

	cfg := &enroll.SimpleConfig{
		LoginAttributes:      []string{"username", "email", "phone"},
		SupportsInactiveUser: true,
	}

	authenticator, _ := newTestAuthenticator(t, users, cfg)

	user := &enroll.User{
		ID:           uuid.New(),
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: quickHash(t, "s3cret-word"),
		Status:       enroll.UserStatusActive,
	}

	// one disjunctive query over every configured column
	users.On("GetByLogin", mock.Anything, "alice@example.com",
		[]string{"username", "email", "phone_number"}).
		Return(user, nil).Once()

	got, err := authenticator.Authenticate(ctx, "alice@example.com", "s3cret-word")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	users.AssertExpectations(t)
}

func TestAuthenticateCollapsesFailureModes(t *testing.T) {
	ctx := context.Background()
	users := &MockUsers{}

	authenticator, _ := newTestAuthenticator(t, users, enroll.NewDefaultConfig())

	bob := &enroll.User{
		ID:           uuid.New(),
		Username:     "bob",
		PasswordHash: quickHash(t, "right-password"),
	}

	users.On("GetByLogin", mock.Anything, "nobody", mock.Anything).
		Return(nil, repository.NewRecordNotFound()).Once()
	users.On("GetByLogin", mock.Anything, "bob", mock.Anything).
		Return(bob, nil).Once()

	_, missErr := authenticator.Authenticate(ctx, "nobody", "whatever")
	_, mismatchErr := authenticator.Authenticate(ctx, "bob", "wrong-password")

	// unknown login and bad secret are indistinguishable to the caller
	require.Error(t, missErr)
	require.Error(t, mismatchErr)
	assert.Equal(t, enroll.ErrAuthFailed, missErr)
	assert.Equal(t, enroll.ErrAuthFailed, mismatchErr)

	users.AssertExpectations(t)
}

func TestAuthenticateSurfacesIntegrityViolation(t *testing.T) {
	ctx := context.Background()
	users := &MockUsers{}

	authenticator, _ := newTestAuthenticator(t, users, enroll.NewDefaultConfig())

	users.On("GetByLogin", mock.Anything, "dup", mock.Anything).
		Return(nil, enroll.NewAmbiguousLoginError("dup")).Once()

	_, err := authenticator.Authenticate(ctx, "dup", "whatever")
	require.Error(t, err)
	assert.NotEqual(t, enroll.ErrAuthFailed, err)
	assert.True(t, enroll.IsIntegrityViolation(err))

	users.AssertExpectations(t)
}

func TestAuthenticateAdmitsInactiveAccounts(t *testing.T) {
	ctx := context.Background()
	users := &MockUsers{}

	cfg := &enroll.SimpleConfig{SupportsInactiveUser: false}
	authenticator, _ := newTestAuthenticator(t, users, cfg)

	pending := &enroll.User{
		ID:           uuid.New(),
		Username:     "carol",
		PasswordHash: quickHash(t, "carols-secret"),
		Status:       enroll.UserStatusPending,
	}

	users.On("GetByLogin", mock.Anything, "carol", mock.Anything).
		Return(pending, nil).Once()

	// Authenticate itself never rejects an inactive account: the reset flow
	// needs to verify pending users too. The login flow applies EnsureActive.
	got, err := authenticator.Authenticate(ctx, "carol", "carols-secret")
	require.NoError(t, err)

	assert.False(t, authenticator.SupportsInactiveUser())
	err = authenticator.EnsureActive(got)
	require.Error(t, err)
	assert.Equal(t, enroll.ErrAccountInactive, err)

	users.AssertExpectations(t)
}

func TestAuthenticateEmitsActivityEvents(t *testing.T) {
	ctx := context.Background()
	users := &MockUsers{}
	sink := &MockActivitySink{}

	authenticator, _ := newTestAuthenticator(t, users, enroll.NewDefaultConfig())
	authenticator.WithActivitySink(sink)

	userID := uuid.New()
	user := &enroll.User{
		ID:           userID,
		Username:     "dave",
		PasswordHash: quickHash(t, "daves-secret"),
	}

	users.On("GetByLogin", mock.Anything, "dave", mock.Anything).
		Return(user, nil).Twice()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt enroll.ActivityEvent) bool {
		return evt.EventType == enroll.ActivityEventLoginSuccess &&
			evt.UserID == userID.String()
	})).Return(nil).Once()
	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt enroll.ActivityEvent) bool {
		return evt.EventType == enroll.ActivityEventLoginFailure &&
			evt.UserID == userID.String()
	})).Return(nil).Once()

	_, err := authenticator.Authenticate(ctx, "dave", "daves-secret")
	require.NoError(t, err)

	_, err = authenticator.Authenticate(ctx, "dave", "not-the-secret")
	require.True(t, errors.Is(err, enroll.ErrAuthFailed))

	sink.AssertExpectations(t)
}

func TestNewAuthenticatorRejectsUnknownAttribute(t *testing.T) {
	repo := &MockRepositoryManager{}

	cfg := &enroll.SimpleConfig{LoginAttributes: []string{"username", "shoe_size"}}

	_, err := enroll.NewAuthenticator(repo, cfg)
	require.Error(t, err)
}
