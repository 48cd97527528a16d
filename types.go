package enroll

import "fmt"

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds the options consumed by the enroll services and handlers
type Config interface {
	GetLoginAttributes() []string
	GetAutoVerify() bool
	GetPasswordMinLength() int
	GetForbidLoginDerivedPassword() bool
	GetSupportsInactiveUser() bool
	GetTokenTTL() string
}

// SimpleConfig is a plain Config implementation with usable defaults.
type SimpleConfig struct {
	LoginAttributes            []string
	AutoVerify                 bool
	PasswordMinLength          int
	ForbidLoginDerivedPassword bool
	SupportsInactiveUser       bool
	TokenTTL                   string
}

// NewDefaultConfig returns the configuration the original enroll app ships
// with: login by username only, explicit verification, 24h token lifetime.
func NewDefaultConfig() *SimpleConfig {
	return &SimpleConfig{
		LoginAttributes:      []string{"username"},
		PasswordMinLength:    4,
		SupportsInactiveUser: true,
		TokenTTL:             "24h",
	}
}

func (c *SimpleConfig) GetLoginAttributes() []string { return c.LoginAttributes }

func (c *SimpleConfig) GetAutoVerify() bool { return c.AutoVerify }

func (c *SimpleConfig) GetPasswordMinLength() int {
	if c.PasswordMinLength <= 0 {
		return 4
	}
	return c.PasswordMinLength
}

func (c *SimpleConfig) GetForbidLoginDerivedPassword() bool { return c.ForbidLoginDerivedPassword }

func (c *SimpleConfig) GetSupportsInactiveUser() bool { return c.SupportsInactiveUser }

func (c *SimpleConfig) GetTokenTTL() string { return c.TokenTTL }

var _ Config = (*SimpleConfig)(nil)

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ENROLL "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ENROLL "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ENROLL "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ENROLL "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
