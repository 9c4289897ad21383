package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultErrorMapper_MapError(t *testing.T) {
	m := NewDefaultErrorMapper()

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"unique constraint", errors.New("UNIQUE constraint failed: categories.user_id, categories.name"), ErrConflict},
		{"no rows", errors.New("sql: no rows in result set"), ErrNotFound},
		{"locked", errors.New("database is locked"), ErrTransient},
		{"nats no responders", errors.New("nats: no responders available for request"), ErrTransient},
		{"deadline", context.DeadlineExceeded, ErrTransient},
		{"unknown", errors.New("boom"), ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.MapError(tt.in)
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestDefaultErrorMapper_KeepsCategorized(t *testing.T) {
	m := NewDefaultErrorMapper()
	in := NotFound("transaction 42")
	assert.Same(t, in, m.MapError(in))
	assert.ErrorIs(t, m.MapError(context.Canceled), context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Transient("queue full")))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", ErrConflict)))
	assert.False(t, IsRetryable(InvalidInput("amount")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(nil))
}
