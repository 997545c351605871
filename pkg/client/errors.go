package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Sternrassler/eve-marketwatch/pkg/ratelimit"
)

// Common errors returned by the client.
var (
	// ErrAbandoned marks a terminal failure: the resource is gone, forbidden
	// or otherwise cannot be fetched by retrying.
	ErrAbandoned = errors.New("resource fetch abandoned")

	// ErrRetryExhausted is returned when every attempt failed transiently.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrNoToken is returned for authenticated endpoints when no bearer
	// token is available. No request is sent.
	ErrNoToken = errors.New("no bearer token available")

	// ErrRateLimited is returned when the error limit gate blocks a request.
	// It is transient.
	ErrRateLimited = ratelimit.ErrBlocked
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents the ESI 520 error and local error limit blocks.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport failures without a response.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassAuth represents requests skipped for lack of a token.
	ErrorClassAuth ErrorClass = "auth"
)

// ESIError describes a failed request.
type ESIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *ESIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ESI %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("ESI %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ESIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status to an error class. Statuses below 400
// are not errors and yield "".
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 520:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry determines if an error class is worth another attempt.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// Client errors cannot succeed on retry, and missing tokens are skipped locally.
		return false
	}
}

// ClassOf extracts the error class of err, or "" if err carries none.
func ClassOf(err error) ErrorClass {
	var esiErr *ESIError
	if errors.As(err, &esiErr) {
		return esiErr.ErrorClass
	}
	switch {
	case errors.Is(err, ErrNoToken):
		return ErrorClassAuth
	case errors.Is(err, ratelimit.ErrBlocked):
		return ErrorClassRateLimit
	}
	return ""
}

// IsTransient reports whether err may succeed on a later attempt.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return shouldRetry(ClassOf(err))
}

// IsNotFound reports whether err is a terminal 404.
func IsNotFound(err error) bool {
	var esiErr *ESIError
	return errors.As(err, &esiErr) && esiErr.StatusCode == http.StatusNotFound
}
