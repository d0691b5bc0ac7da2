// Package cache provides a cache abstraction for completed chat
// responses. Non-streaming completions for an identical request can be
// served without an upstream round trip. Supports an in-memory backend
// and Redis for multi-instance deployments.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"modelstream/internal/core"
)

// Cache defines the interface for response cache storage.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves a cached response by key.
	// Returns nil, nil on a miss.
	Get(ctx context.Context, key string) (*core.ChatResponse, error)

	// Set stores a response under key.
	Set(ctx context.Context, key string, resp *core.ChatResponse) error

	// Close releases any resources held by the cache.
	Close() error
}

// Key derives the cache key for a request from the xxhash of its
// canonical JSON encoding. Streamed requests are never cached, so the
// Stream flag is excluded from the key.
func Key(req *core.ChatRequest) (string, error) {
	normalized := *req
	normalized.Stream = false
	data, err := json.Marshal(&normalized)
	if err != nil {
		return "", err
	}
	sum := xxhash.Sum64(data)
	return "modelstream:chat:" + strconv.FormatUint(sum, 16), nil
}

// DefaultTTL is the time-to-live applied by backends when the caller
// does not configure one.
const DefaultTTL = 24 * time.Hour
