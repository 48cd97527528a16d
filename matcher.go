package enroll

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// loginAttributeColumns maps the configurable attribute names to their
// storage columns. Every listed column carries a unique constraint; the
// deployment must additionally guarantee no login string matches two
// different accounts across attributes.
var loginAttributeColumns = map[string]string{
	"username": "username",
	"email":    "email",
	"phone":    "phone_number",
}

// LoginAttributeSet is the ordered list of unique account attributes a login
// string is matched against. Built once at startup, immutable afterwards.
type LoginAttributeSet []string

// NewLoginAttributeSet validates the attribute names against the supported
// set. An empty list falls back to username-only matching.
func NewLoginAttributeSet(attrs ...string) (LoginAttributeSet, error) {
	if len(attrs) == 0 {
		attrs = []string{"username"}
	}

	set := make(LoginAttributeSet, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := loginAttributeColumns[attr]; !ok {
			return nil, goerrors.New("unsupported login attribute", goerrors.CategoryBadInput).
				WithMetadata(map[string]any{"attribute": attr})
		}
		set = append(set, attr)
	}

	return set, nil
}

// Columns returns the storage columns for the configured attributes.
func (s LoginAttributeSet) Columns() []string {
	columns := make([]string, 0, len(s))
	for _, attr := range s {
		columns = append(columns, loginAttributeColumns[attr])
	}
	return columns
}

// CredentialMatcher resolves a login string to exactly one account by
// testing it against every configured attribute in a single query.
type CredentialMatcher struct {
	repo   RepositoryManager
	attrs  LoginAttributeSet
	logger Logger
}

// NewCredentialMatcher builds a matcher for the configured attribute set.
func NewCredentialMatcher(repo RepositoryManager, cfg Config) (*CredentialMatcher, error) {
	attrs, err := NewLoginAttributeSet(cfg.GetLoginAttributes()...)
	if err != nil {
		return nil, err
	}

	return &CredentialMatcher{
		repo:   repo,
		attrs:  attrs,
		logger: defLogger{},
	}, nil
}

func (m *CredentialMatcher) WithLogger(logger Logger) *CredentialMatcher {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// Attributes returns the configured attribute set.
func (m *CredentialMatcher) Attributes() LoginAttributeSet {
	return m.attrs
}

// FindByLogin returns the single account owning login under any configured
// attribute, a record-not-found error for zero matches, or an integrity
// violation when the storage invariant is broken and several accounts match.
func (m *CredentialMatcher) FindByLogin(ctx context.Context, login string) (*User, error) {
	user, err := m.repo.Users().GetByLogin(ctx, login, m.attrs.Columns())
	if err != nil {
		if IsIntegrityViolation(err) {
			m.logger.Error("ambiguous login match for %q, storage invariant violated", login)
		}
		return nil, err
	}
	return user, nil
}

// FindByLoginTx is FindByLogin inside a caller transaction.
func (m *CredentialMatcher) FindByLoginTx(ctx context.Context, tx bun.IDB, login string) (*User, error) {
	user, err := m.repo.Users().GetByLoginTx(ctx, tx, login, m.attrs.Columns())
	if err != nil {
		if IsIntegrityViolation(err) {
			m.logger.Error("ambiguous login match for %q, storage invariant violated", login)
		}
		return nil, err
	}
	return user, nil
}
