package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", RequestIDFrom(ctx))
}

func TestRequestIDFrom_Missing(t *testing.T) {
	assert.Empty(t, RequestIDFrom(context.Background()))
}

func TestEnsureRequestID(t *testing.T) {
	ctx := EnsureRequestID(context.Background())
	generated := RequestIDFrom(ctx)
	assert.NotEmpty(t, generated)

	// An existing ID is kept, not replaced.
	again := EnsureRequestID(ctx)
	assert.Equal(t, generated, RequestIDFrom(again))
}
