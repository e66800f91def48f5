package llm

import (
	"context"
	"errors"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
)

// statusCodeRegex matches the "Error 503," prefix of Gemini API errors
var statusCodeRegex = regexp.MustCompile(`Error (\d{3})\b`)

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// IsRateLimitError checks if an error is a provider rate limit error.
// Matches 429 status codes and RESOURCE_EXHAUSTED errors.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if StatusCode(err) == 429 {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "rate_limit") ||
		strings.Contains(errStr, "quota")
}

// StatusCode returns the HTTP status of a provider error, or 0 when unknown.
func StatusCode(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	if m := statusCodeRegex.FindStringSubmatch(err.Error()); len(m) == 2 {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}

// IsTransient reports whether a failed call is worth retrying: timeouts,
// connection resets, rate limits and 5xx responses. Cancellation of the
// caller's context, auth failures and malformed requests are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if interfaces.KindOf(err) == interfaces.KindConfiguration {
		return false
	}

	switch code := StatusCode(err); {
	case code == 408 || code == 429:
		return true
	case code >= 500:
		return true
	case code >= 400:
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection reset", "timeout", "temporarily unavailable", "overloaded", "unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return IsRateLimitError(err)
}

// ExtractRetryDelay parses the API-suggested retry delay from an error.
// Returns 0 if no delay is found in the error message.
//
// Example error message:
// "Error 429, Message: ... Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED"
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}
