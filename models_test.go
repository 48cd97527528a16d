package enroll_test

import (
	"testing"
	"time"

	"github.com/farin/go-enroll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserEnsureStatus(t *testing.T) {
	user := &enroll.User{}
	user.EnsureStatus()
	assert.Equal(t, enroll.UserStatusActive, user.Status)

	pending := &enroll.User{Status: enroll.UserStatusPending}
	pending.EnsureStatus()
	assert.Equal(t, enroll.UserStatusPending, pending.Status)
}

func TestUserIsActive(t *testing.T) {
	assert.True(t, (&enroll.User{Status: enroll.UserStatusActive}).IsActive())
	assert.True(t, (&enroll.User{}).IsActive())
	assert.False(t, (&enroll.User{Status: enroll.UserStatusPending}).IsActive())
	assert.False(t, (&enroll.User{Status: enroll.UserStatusSuspended}).IsActive())
}

func TestUserAddMetadata(t *testing.T) {
	user := &enroll.User{}
	user.AddMetadata("source", "import").AddMetadata("batch", 7)

	assert.Equal(t, "import", user.Metadata["source"])
	assert.Equal(t, 7, user.Metadata["batch"])
}

func TestVerificationTokenLifetime(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	fresh := &enroll.VerificationToken{ExpiresAt: &later}
	assert.False(t, fresh.IsExpired(now))
	assert.True(t, fresh.IsExpired(later))
	assert.True(t, fresh.IsExpired(later.Add(time.Minute)))

	// no expiry configured, never expires
	open := &enroll.VerificationToken{}
	assert.False(t, open.IsExpired(now.Add(1000*time.Hour)))
}

func TestVerificationTokenIsConsumed(t *testing.T) {
	now := time.Now()

	assert.False(t, (&enroll.VerificationToken{}).IsConsumed())
	assert.True(t, (&enroll.VerificationToken{ConsumedAt: &now}).IsConsumed())
}

func TestNewTokenValue(t *testing.T) {
	seen := map[string]bool{}

	for i := 0; i < 32; i++ {
		value, err := enroll.NewTokenValue()
		require.NoError(t, err)

		// 32 bytes of entropy, URL-safe base64 without padding
		assert.Len(t, value, 43)
		assert.NotContains(t, value, "+")
		assert.NotContains(t, value, "/")
		assert.NotContains(t, value, "=")

		assert.False(t, seen[value])
		seen[value] = true
	}
}
