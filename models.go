package enroll

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the user's lifecycle status
type UserStatus = string

const (
	// UserStatusPending means the account exists but the email was never verified
	UserStatusPending UserStatus = "pending"
	// UserStatusActive is a fully usable account
	UserStatusActive UserStatus = "active"
	// UserStatusSuspended is an account an operator took offline
	UserStatusSuspended UserStatus = "suspended"
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string         `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string         `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone         string         `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash  string         `bun:"password_hash" json:"password_hash,omitempty"`
	Status        UserStatus     `bun:"status" json:"status,omitempty"`
	EmailVerified bool           `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	SuspendedAt   *time.Time     `bun:"suspended_at,nullzero" json:"suspended_at,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the zero value for rows predating the status column
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusActive
	}
}

// IsActive reports whether the account may be admitted by a login flow
func (u *User) IsActive() bool {
	u.EnsureStatus()
	return u.Status == UserStatusActive
}

// IsSuspended reports whether an operator took the account offline
func (u *User) IsSuspended() bool {
	return u.Status == UserStatusSuspended
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// TokenPurpose is the single state transition a verification token authorizes
type TokenPurpose = string

const (
	// PurposeSignUp activates a freshly registered account
	PurposeSignUp TokenPurpose = "sign_up"
	// PurposePasswordReset authorizes overwriting the account secret
	PurposePasswordReset TokenPurpose = "password_reset"
	// PurposeEmailChange swaps the account email for the token's email
	PurposeEmailChange TokenPurpose = "email_change"
)

// VerificationToken is a single-use grant for one account state transition.
// Valid for redemption iff it was never consumed and has not expired.
type VerificationToken struct {
	bun.BaseModel `bun:"table:verification_tokens,alias:vtk"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Value         string       `bun:"value,notnull,unique" json:"value,omitempty"`
	UserID        uuid.UUID    `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User        `bun:"rel:has-one,join:user_id=id" json:"user,omitempty"`
	Purpose       TokenPurpose `bun:"purpose,notnull" json:"purpose,omitempty"`
	Email         string       `bun:"email" json:"email,omitempty"`
	ExpiresAt     *time.Time   `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time   `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// IsConsumed reports whether the token was already redeemed
func (t *VerificationToken) IsConsumed() bool {
	return t.ConsumedAt != nil
}

// IsExpired reports whether the token lifetime has passed. Tokens without
// an expiry never expire; a deployment should configure a TTL.
func (t *VerificationToken) IsExpired(now time.Time) bool {
	if t.ExpiresAt == nil {
		return false
	}
	return !now.Before(*t.ExpiresAt)
}
