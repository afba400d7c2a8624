package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "exchange unavailable sentinel", err: ErrExchangeUnavailable, want: true},
		{name: "wrapped exchange unavailable", err: fmt.Errorf("binance: %w", ErrExchangeUnavailable), want: true},
		{name: "market not found", err: ErrMarketNotFound, want: false},
		{name: "unknown exchange", err: ErrUnknownExchange, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "net op error", err: &net.OpError{Op: "dial", Err: stderrors.New("refused")}, want: true},
		{name: "rate limit message", err: stderrors.New("HTTP 429: rate limit exceeded"), want: true},
		{name: "service unavailable message", err: stderrors.New("503 Service Unavailable"), want: true},
		{name: "plain error", err: stderrors.New("invalid interval"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestStorageError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := NewStorageError("merge", inner)

	assert.Contains(t, err.Error(), "merge")
	assert.True(t, stderrors.Is(err, inner))

	var sErr *StorageError
	assert.True(t, stderrors.As(fmt.Errorf("wrapped: %w", err), &sErr))
	assert.Equal(t, "merge", sErr.Op)
}

func TestConfigError(t *testing.T) {
	inner := stderrors.New("must not be empty")
	err := &ConfigError{Field: "database.type", Err: inner}

	assert.Contains(t, err.Error(), "database.type")
	assert.True(t, stderrors.Is(err, inner))
}
