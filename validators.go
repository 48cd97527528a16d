package enroll

import (
	"context"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// FieldContext is what a bound validator capability gets to work with:
// the request context for storage lookups and the login name for rules that
// relate a field to the account identity.
type FieldContext struct {
	Ctx   context.Context
	Repo  RepositoryManager
	Login string
}

// RuleFactory builds a validation rule for one field of one request.
type RuleFactory func(fctx FieldContext) validation.Rule

// ValidatorBinding maps a workflow input field name to the extra validator
// capabilities a deployment attaches to it. The bound rules augment the
// built-in format checks, they never replace them. Bindings for fields a
// given workflow does not carry are silently ignored, so one table can be
// shared across workflows with different field subsets.
type ValidatorBinding map[string][]RuleFactory

// Rules materializes the factories bound to field. Nil-safe on both the
// binding and individual factories.
func (b ValidatorBinding) Rules(field string, fctx FieldContext) []validation.Rule {
	if b == nil {
		return nil
	}

	factories, ok := b[field]
	if !ok {
		return nil
	}

	rules := make([]validation.Rule, 0, len(factories))
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		rules = append(rules, factory(fctx))
	}

	return rules
}

// DefaultValidatorBinding mirrors the stock deployment: uniqueness checks on
// username and email.
func DefaultValidatorBinding() ValidatorBinding {
	return ValidatorBinding{
		"username": {UniqueUsername},
		"email":    {UniqueEmail},
	}
}

// UniqueUsername rejects usernames already owned by another account.
func UniqueUsername(fctx FieldContext) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s == "" || fctx.Repo == nil {
			return nil
		}

		taken, err := fctx.Repo.Users().UsernameTaken(fctx.Ctx, s)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "username uniqueness check failed")
		}

		if taken {
			return errors.New("this username is already taken")
		}
		return nil
	})
}

// UniqueEmail rejects email addresses already registered to another account.
func UniqueEmail(fctx FieldContext) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s == "" || fctx.Repo == nil {
			return nil
		}

		taken, err := fctx.Repo.Users().EmailTaken(fctx.Ctx, s)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "email uniqueness check failed")
		}

		if taken {
			return errors.New("this e-mail address is already registered")
		}
		return nil
	})
}

// PhoneNumber validates the value as an E.164 phone number.
func PhoneNumber(_ FieldContext) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}

		num, err := phonenumbers.Parse(s, "")
		if err != nil || !phonenumbers.IsValidNumber(num) {
			return errors.New("must be a valid phone number in international format")
		}
		return nil
	})
}

// NotDerivedFromLogin rejects secrets that start with the login name or
// whose reversal starts with it. Case-insensitive. A deployment enables it
// through the forbid-login-derived-password flag.
func NotDerivedFromLogin(fctx FieldContext) validation.Rule {
	login := strings.ToLower(fctx.Login)

	return validation.By(func(value any) error {
		if login == "" {
			return nil
		}

		s, _ := value.(string)
		secret := strings.ToLower(s)

		if strings.HasPrefix(secret, login) || strings.HasPrefix(reverseString(secret), login) {
			return errors.New("password cannot be derived from the login name")
		}
		return nil
	})
}

// ValidateStringEquals is the two-secret confirmation primitive: both fields
// present and equal, with a mismatch error distinct from per-field errors.
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return goerrors.New("you must type the same password each time", goerrors.CategoryValidation).
				WithTextCode(TextCodePasswordMismatch)
		}
		return nil
	}
}

// wrapValidationError normalizes ozzo field errors into the rich error
// taxonomy while keeping the per-field detail for re-display.
func wrapValidationError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		fields := map[string]any{}
		for field, ferr := range fieldErrs {
			fields[field] = ferr.Error()
		}
		return goerrors.Wrap(err, goerrors.CategoryValidation, msg).
			WithMetadata(map[string]any{"fields": fields})
	}

	return goerrors.Wrap(err, goerrors.CategoryValidation, msg)
}

func reverseString(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
