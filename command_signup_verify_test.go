package enroll_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/farin/go-enroll"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newVerifyFixture(t *testing.T) (*enroll.VerifySignUpHandler, *MockRepositoryManager, *MockUsers, *MockVerificationTokens) {
	t.Helper()

	repo := &MockRepositoryManager{}
	users := &MockUsers{}
	tokens := &MockVerificationTokens{}

	repo.On("Users").Return(users)
	repo.On("VerificationTokens").Return(tokens)

	store, err := enroll.NewTokenStore(repo, enroll.NewDefaultConfig())
	require.NoError(t, err)

	handler := enroll.NewVerifySignUpHandler(repo, store).
		WithLogger(testLogger{})

	return handler, repo, users, tokens
}

func TestVerifySignUpActivatesAccount(t *testing.T) {
	ctx := context.Background()
	handler, repo, users, tokens := newVerifyFixture(t)

	sink := &MockActivitySink{}
	handler.WithActivitySink(sink)

	userID := uuid.New()
	now := time.Now()
	future := now.Add(time.Hour)

	record := &enroll.VerificationToken{
		ID:        uuid.New(),
		Value:     "tok-value",
		UserID:    userID,
		Purpose:   enroll.PurposeSignUp,
		ExpiresAt: &future,
	}
	consumed := *record
	consumed.ConsumedAt = &now

	pending := &enroll.User{ID: userID, Username: "pepe", Status: enroll.UserStatusPending}
	activated := &enroll.User{ID: userID, Username: "pepe", Status: enroll.UserStatusActive, EmailVerified: true}

	tokens.On("GetByValueTx", mock.Anything, mock.Anything, "tok-value").
		Return(record, nil).Once()
	tokens.On("ConsumeTx", mock.Anything, mock.Anything, record.ID, mock.Anything).
		Return(&consumed, nil).Once()

	users.On("GetByIDTx", mock.Anything, mock.Anything, userID.String()).
		Return(pending, nil).Once()
	users.On("UpdateStatusTx", mock.Anything, mock.Anything, userID, enroll.UserStatusActive, mock.Anything).
		Return(activated, nil).Once()

	repo.On("RunInTx", mock.Anything, (*sql.TxOptions)(nil), mock.Anything).Return(nil).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt enroll.ActivityEvent) bool {
		return evt.EventType == enroll.ActivityEventAccountActivated &&
			evt.UserID == userID.String()
	})).Return(nil).Once()

	var resp *enroll.VerifySignUpResponse
	err := handler.Execute(ctx, enroll.VerifySignUpMessage{
		Token:      "tok-value",
		OnResponse: func(r *enroll.VerifySignUpResponse) { resp = r },
	})
	require.NoError(t, err)

	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	assert.True(t, resp.User.IsActive())

	repo.AssertExpectations(t)
	users.AssertExpectations(t)
	tokens.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestVerifySignUpRejectsWrongPurposeToken(t *testing.T) {
	ctx := context.Background()
	handler, repo, users, tokens := newVerifyFixture(t)

	future := time.Now().Add(time.Hour)
	record := &enroll.VerificationToken{
		ID:        uuid.New(),
		Value:     "tok-value",
		UserID:    uuid.New(),
		Purpose:   enroll.PurposePasswordReset,
		ExpiresAt: &future,
	}

	tokens.On("GetByValueTx", mock.Anything, mock.Anything, "tok-value").
		Return(record, nil).Once()
	repo.On("RunInTx", mock.Anything, (*sql.TxOptions)(nil), mock.Anything).Return(nil).Once()

	err := handler.Execute(ctx, enroll.VerifySignUpMessage{Token: "tok-value"})
	require.Error(t, err)
	assert.True(t, enroll.IsTokenPurposeMismatch(err))

	// no activation without a valid sign_up token
	users.AssertNotCalled(t, "UpdateStatusTx",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	tokens.AssertNotCalled(t, "ConsumeTx",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifySignUpRejectsConsumedToken(t *testing.T) {
	ctx := context.Background()
	handler, repo, _, tokens := newVerifyFixture(t)

	now := time.Now()
	future := now.Add(time.Hour)
	record := &enroll.VerificationToken{
		ID:         uuid.New(),
		Value:      "tok-value",
		UserID:     uuid.New(),
		Purpose:    enroll.PurposeSignUp,
		ExpiresAt:  &future,
		ConsumedAt: &now,
	}

	tokens.On("GetByValueTx", mock.Anything, mock.Anything, "tok-value").
		Return(record, nil).Once()
	repo.On("RunInTx", mock.Anything, (*sql.TxOptions)(nil), mock.Anything).Return(nil).Once()

	err := handler.Execute(ctx, enroll.VerifySignUpMessage{Token: "tok-value"})
	require.Error(t, err)
	assert.True(t, enroll.IsTokenConsumed(err))
}
