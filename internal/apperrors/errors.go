// Package apperrors defines the error taxonomy of §7: errors are
// classified by observable effect, not by concrete type, so callers use
// errors.Is against these sentinels after wrapping with fmt.Errorf.
package apperrors

import "errors"

var (
	// ErrTransient covers network errors, timeouts, 5xx, and rate limiting.
	// Retried with exponential backoff at the owning layer.
	ErrTransient = errors.New("transient io error")

	// ErrDataQuality covers missing price, unparseable tx, missing decimals.
	// The item is dropped with a warning; the batch continues.
	ErrDataQuality = errors.New("data quality error")

	// ErrValidation covers bad address, wrong mint, out-of-range amount,
	// or allocation percentages that do not sum to 100.
	ErrValidation = errors.New("validation error")

	// ErrPolicyRejected covers ineligibility, slippage breach, an open
	// circuit breaker, or a system halt. Always surfaced as a structured
	// result and always audited, never swallowed.
	ErrPolicyRejected = errors.New("policy rejected")

	// ErrIntegrityViolation covers audit/idempotency checksum mismatches.
	// The operation is aborted and a human alert path is triggered.
	ErrIntegrityViolation = errors.New("integrity violation")

	// ErrFatal covers an unreachable HSM, an unavailable audit DB, or
	// missing production configuration. The process refuses to serve
	// trading traffic.
	ErrFatal = errors.New("fatal error")

	// ErrAuth covers a missing or invalid bearer/JWT credential at an
	// HTTP boundary.
	ErrAuth = errors.New("authentication error")
)

// HTTPStatus maps an error, by its nearest taxonomy sentinel, to the §7
// HTTP status table. Falls through to 500 for anything unclassified.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return 400
	case errors.Is(err, ErrAuth):
		return 401
	case errors.Is(err, ErrTransient):
		return 429
	case errors.Is(err, ErrPolicyRejected):
		return 503
	case errors.Is(err, ErrIntegrityViolation):
		return 500
	default:
		return 500
	}
}
