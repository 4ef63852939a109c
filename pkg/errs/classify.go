package errs

import "strings"

// retryableMarkers are substrings that, found case-insensitively anywhere in
// an error's message or cause chain, make the error retryable. Order does
// not matter; this is a set membership test, not a priority list.
var retryableMarkers = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"i/o timeout",
	"broken pipe",
	"429",
	"rate limit",
	"throttl",
	"overloaded",
	"busy",
	"temporarily unavailable",
	"502",
	"503",
	"504",
	"resource_exhausted",
	"deadline_exceeded",
	"overloaded_error",
	"model loading",
	"internalservererrorexception",
}

// neverRetryableMarkers take priority over retryableMarkers: if any of these
// match, the error is non-retryable even if a retryable marker also matches
// (e.g. "invalid request: rate limit parameter malformed").
var neverRetryableMarkers = []string{
	"authentication",
	"invalid api key",
	"forbidden",
	"not found",
	"invalid request",
	"invalid_request_error",
	"model not found",
	"unauthorizedexception",
	"invalidparameterexception",
	"illegalargumentexception",
}

// Classify implements the authoritative retryable classifier from spec.md
// §4.4 and §7: it inspects an error's message and its full Unwrap chain,
// case-insensitively, for the marker substrings above. Never-retryable
// markers win on conflict. Ambiguous errors (no marker matches either list)
// default to non-retryable — fail fast rather than retry something unknown.
func Classify(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(chainText(err))
	for _, m := range neverRetryableMarkers {
		if strings.Contains(text, m) {
			return false
		}
	}
	for _, m := range retryableMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// chainText concatenates the Error() text of err and every error in its
// Unwrap chain, so a retryable marker buried in a wrapped cause is still
// found.
func chainText(err error) string {
	var b strings.Builder
	for err != nil {
		b.WriteString(err.Error())
		b.WriteString(" ")
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return b.String()
}

// CategoryFor maps an error to a StructuredError category using the same
// marker vocabulary as Classify, for callers (typically concrete providers)
// that have a plain error and need to produce a StructuredError without
// hand-classifying it themselves. It never returns CategoryInternal for a
// marker it recognizes as network/auth/etc.; CategoryInternal is the
// fallback for genuinely unrecognized errors.
func CategoryFor(err error) Category {
	if err == nil {
		return CategoryInternal
	}
	text := strings.ToLower(chainText(err))
	switch {
	case containsAny(text, "authentication", "invalid api key", "unauthorizedexception", "forbidden"):
		return CategoryAuth
	case containsAny(text, "429", "rate limit", "throttl"):
		return CategoryRateLimit
	case containsAny(text, "timeout", "timed out", "deadline_exceeded"):
		return CategoryTimeout
	case containsAny(text, "connection refused", "connection reset", "i/o timeout", "broken pipe"):
		return CategoryNetwork
	case containsAny(text, "not found", "model not found"):
		return CategoryNotFound
	case containsAny(text, "invalid request", "invalid_request_error", "invalidparameterexception", "illegalargumentexception"):
		return CategoryValidation
	case containsAny(text, "overloaded", "busy", "temporarily unavailable", "502", "503", "504", "resource_exhausted", "overloaded_error", "model loading", "internalservererrorexception"):
		return CategoryServiceUnavailable
	default:
		return CategoryInternal
	}
}

func containsAny(text string, markers ...string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
