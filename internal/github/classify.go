package github

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	gogithub "github.com/google/go-github/v74/github"
)

// ErrorKind classifies an API error for retry decisions.
type ErrorKind int

const (
	// ErrorFatal aborts the controller immediately.
	ErrorFatal ErrorKind = iota
	// ErrorTransient is safe to retry after a backoff.
	ErrorTransient
)

// Classify sorts an API error into transient or fatal based on the HTTP
// status code and error type rather than matching response body text.
// Server-side errors (5xx), rate limits (429 and the dedicated rate-limit
// error types), and transport-level failures are transient; everything
// else, including context cancellation, is fatal.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorFatal
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorFatal
	}

	var rateErr *gogithub.RateLimitError
	if errors.As(err, &rateErr) {
		return ErrorTransient
	}
	var abuseErr *gogithub.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return ErrorTransient
	}

	var respErr *gogithub.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		code := respErr.Response.StatusCode
		if code >= http.StatusInternalServerError || code == http.StatusTooManyRequests {
			return ErrorTransient
		}
		return ErrorFatal
	}

	// Transport failures (connection refused, DNS, timeouts) never carry a
	// status code; treat them as transient.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrorTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTransient
	}

	return ErrorFatal
}

// IsTransient reports whether the error is safe to retry.
func IsTransient(err error) bool {
	return Classify(err) == ErrorTransient
}
