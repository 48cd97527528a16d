package enroll

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeInvalidCreds is the single collapsed login failure code
	TextCodeInvalidCreds = "INVALID_CREDENTIALS"
	// TextCodeEmptyPassword is returned when hashing an empty secret
	TextCodeEmptyPassword = "EMPTY_PASSWORD"
	// TextCodeInactiveAccount flags a login attempt on a non-active account
	TextCodeInactiveAccount = "INACTIVE_ACCOUNT"
	// TextCodePasswordMismatch is the two-secret confirmation failure
	TextCodePasswordMismatch = "PASSWORD_MISMATCH"
	// TextCodeUnknownEmail is returned when a reset request matches no account
	TextCodeUnknownEmail = "UNKNOWN_EMAIL"
	// TextCodeAmbiguousLogin flags a broken cross-attribute uniqueness invariant
	TextCodeAmbiguousLogin = "AMBIGUOUS_LOGIN_MATCH"

	// TextCodeTokenNotFound through TextCodeTokenExpired are the redemption
	// failure kinds. They stay distinguishable for logging; presentation
	// layers collapse them into one "link invalid or expired" message.
	TextCodeTokenNotFound        = "TOKEN_NOT_FOUND"
	TextCodeTokenPurposeMismatch = "TOKEN_PURPOSE_MISMATCH"
	TextCodeTokenConsumed        = "TOKEN_ALREADY_USED"
	TextCodeTokenExpired         = "TOKEN_EXPIRED"
)

// ErrAuthFailed is the only error the Authenticator returns for a bad login
// or a bad password, so callers cannot enumerate accounts.
var ErrAuthFailed = goerrors.New("invalid login or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrNoEmptyString rejects empty secrets before hashing
var ErrNoEmptyString = goerrors.New("password cannot be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// ErrMismatchedHashAndPassword is the internal bcrypt mismatch error
var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrAccountInactive is returned by EnsureActive for login flows that do not
// admit inactive accounts.
var ErrAccountInactive = goerrors.New("this account is inactive", goerrors.CategoryAuth).
	WithTextCode(TextCodeInactiveAccount)

// NewAmbiguousLoginError reports a violated storage invariant: a login string
// matched more than one account across the configured attributes. Fatal,
// never user-facing, never silently resolved to one row.
func NewAmbiguousLoginError(login string) *goerrors.Error {
	return goerrors.New("login matches multiple accounts", goerrors.CategoryInternal).
		WithTextCode(TextCodeAmbiguousLogin).
		WithMetadata(map[string]any{"login": login})
}

func newTokenNotFoundError(value string) *goerrors.Error {
	return goerrors.New("verification token not found", goerrors.CategoryNotFound).
		WithTextCode(TextCodeTokenNotFound).
		WithMetadata(map[string]any{"token": maskTokenValue(value)})
}

func newTokenPurposeError(have, want TokenPurpose) *goerrors.Error {
	return goerrors.New("verification token has a different purpose", goerrors.CategoryValidation).
		WithTextCode(TextCodeTokenPurposeMismatch).
		WithMetadata(map[string]any{"purpose": have, "expected": want})
}

func newTokenConsumedError() *goerrors.Error {
	return goerrors.New("verification token has already been used", goerrors.CategoryConflict).
		WithTextCode(TextCodeTokenConsumed)
}

func newTokenExpiredError() *goerrors.Error {
	return goerrors.New("verification token has expired", goerrors.CategoryValidation).
		WithTextCode(TextCodeTokenExpired)
}

// IsTokenInvalid reports whether err is any of the redemption failure kinds
func IsTokenInvalid(err error) bool {
	return IsTokenNotFound(err) || IsTokenPurposeMismatch(err) ||
		IsTokenConsumed(err) || IsTokenExpired(err)
}

// IsTokenNotFound matches the not-found redemption failure
func IsTokenNotFound(err error) bool {
	return hasTextCode(err, TextCodeTokenNotFound)
}

// IsTokenPurposeMismatch matches a redemption attempted with the wrong purpose
func IsTokenPurposeMismatch(err error) bool {
	return hasTextCode(err, TextCodeTokenPurposeMismatch)
}

// IsTokenConsumed matches a replayed redemption
func IsTokenConsumed(err error) bool {
	return hasTextCode(err, TextCodeTokenConsumed)
}

// IsTokenExpired matches a redemption past the token lifetime
func IsTokenExpired(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}

// IsIntegrityViolation matches broken storage invariants like an ambiguous
// multi-attribute login match.
func IsIntegrityViolation(err error) bool {
	return hasTextCode(err, TextCodeAmbiguousLogin)
}

// IsValidationError reports whether err is field-scoped, user-correctable input
func IsValidationError(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryValidation
	}
	return false
}

func hasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

func maskTokenValue(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "****"
}
