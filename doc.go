// Package enroll provides the account lifecycle core for a web application:
// sign-up, credential verification, password reset, and email-change
// confirmation, all gated by single-use verification tokens.
//
// Credential matching:
//   - A CredentialMatcher resolves one login string against a configurable
//     ordered set of unique account attributes (username, email, phone) with a
//     single disjunctive query. The Authenticator combines it with bcrypt
//     verification and collapses every failure into one opaque error so a
//     caller can never probe which logins exist.
//
// Verification tokens:
//   - A TokenStore issues URL-safe single-use tokens bound to an account, a
//     purpose (sign_up, password_reset, email_change) and, where relevant, the
//     email address under verification. Redemption is a compare-and-set inside
//     the caller's transaction, so the token flip and the state change it
//     authorizes commit or roll back together.
//
// Workflows:
//   - Command handlers (SignUpHandler, InitializePasswordResetHandler,
//     FinalizePasswordResetHandler, RequestEmailChangeHandler and friends)
//     orchestrate validation, the matcher, the token store and a Notifier
//     hook. Notifications run best-effort; their failure never fails the
//     state transition.
//
// Validation:
//   - Field rules are ozzo-validation rules. A ValidatorBinding table lets a
//     deployment attach extra rule capabilities (uniqueness, phone format,
//     "password not derived from login") to workflow fields without touching
//     workflow code.
package enroll
