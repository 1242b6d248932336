package generation

import "strings"

// retryablePatterns groups error substrings by category, matched
// case-insensitively against err.Error().
//
// NOTE: string matching is used because the backend surfaces transient
// failures only as HTTP status text and wrapped transport errors.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	for _, group := range retryablePatterns {
		if containsAny(errStr, group...) {
			return true
		}
	}
	return false
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
