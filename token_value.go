package enroll

import (
	"crypto/rand"
	"encoding/base64"

	goerrors "github.com/goliatone/go-errors"
)

// tokenValueLen is the raw entropy per token value, 256 bits
const tokenValueLen = 32

// NewTokenValue generates the opaque value of a verification token: random
// bytes encoded URL-safe so the value can sit in a confirmation link as-is.
func NewTokenValue() (string, error) {
	b := make([]byte, tokenValueLen)
	if _, err := rand.Read(b); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate token value")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
