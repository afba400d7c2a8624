// Package errors defines the error taxonomy for the sync pipeline and the
// classification helpers that decide whether a failed exchange attempt should
// fall through to the next exchange.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrAllExchangesExhausted signals that every ranked exchange was tried for a
// logical call and none produced data. Callers treat it as "no data for this
// chunk", not as a fatal failure.
var ErrAllExchangesExhausted = errors.New("all exchanges exhausted")

// ErrMarketNotFound signals that an exchange does not list the requested
// trading pair. Terminal for that exchange within the current call.
var ErrMarketNotFound = errors.New("market not found")

// ErrExchangeUnavailable signals a transient exchange failure (network error,
// rate limit, maintenance window). The attempt moves on to the next exchange.
var ErrExchangeUnavailable = errors.New("exchange unavailable")

// ErrUnknownExchange signals that an exchange id from the ranking has no
// registered adapter. Terminal for that exchange within the current call.
var ErrUnknownExchange = errors.New("unknown exchange")

// StorageError wraps a sink failure with the operation that produced it.
// Storage failures abort the current timeframe but leave siblings untouched.
type StorageError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err with the failing storage operation name.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// ConfigError reports an invalid or unloadable configuration. Fatal at
// startup.
type ConfigError struct {
	Field string
	Err   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether an exchange attempt failed for a reason that is
// worth retrying on the same exchange later: timeouts, connection failures,
// and explicit rate limiting. Market-not-found and unknown-exchange errors are
// terminal for the call and return false.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMarketNotFound) || errors.Is(err, ErrUnknownExchange) {
		return false
	}
	if errors.Is(err, ErrExchangeUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit", "too many requests", "timeout", "connection refused",
		"connection reset", "temporarily unavailable", "service unavailable",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
