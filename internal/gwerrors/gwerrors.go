// Package gwerrors defines the sentinel error kinds the gateway surfaces to
// callers, so handlers can branch on error identity (errors.Is) instead of
// string matching, the way the rest of the corpus wraps errors with
// fmt.Errorf("...: %w", err) and compares sentinels.
package gwerrors

import "errors"

var (
	// ErrConfigMissing means a required runtime config key is unset.
	ErrConfigMissing = errors.New("CONFIG_MISSING")
	// ErrUpstreamUnavailable means the upstream LLM API could not be reached.
	ErrUpstreamUnavailable = errors.New("UPSTREAM_UNAVAILABLE")
	// ErrUserInactive means the resolved user exists but is deactivated.
	ErrUserInactive = errors.New("USER_INACTIVE")
	// ErrPolicyMissing means the resolved effective policy id has no row.
	ErrPolicyMissing = errors.New("POLICY_MISSING")
	// ErrDailyExceeded means the user's daily token counter met or exceeded
	// their policy's daily_token_limit.
	ErrDailyExceeded = errors.New("DAILY_EXCEEDED")
	// ErrMonthlyExceeded means the user's monthly token counter met or
	// exceeded their policy's monthly_token_limit.
	ErrMonthlyExceeded = errors.New("MONTHLY_EXCEEDED")
	// ErrUnauthorizedAdmin means the admin credential header was missing or
	// wrong.
	ErrUnauthorizedAdmin = errors.New("UNAUTHORIZED_ADMIN")
	// ErrBadRequest means an admin payload failed validation.
	ErrBadRequest = errors.New("BAD_REQUEST")
	// ErrInternal is a catch-all operational failure.
	ErrInternal = errors.New("INTERNAL")
)

// Reason returns the human-readable denial reason CheckAccess reports for a
// given policy-check error.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrUserInactive):
		return "User is inactive"
	case errors.Is(err, ErrPolicyMissing):
		return "Policy not found"
	case errors.Is(err, ErrDailyExceeded):
		return "Daily token limit exceeded"
	case errors.Is(err, ErrMonthlyExceeded):
		return "Monthly token limit exceeded"
	default:
		return "Access denied"
	}
}
