package cache

import (
	"context"
	"time"
)

// Config holds cache configuration
type Config struct {
	MaxEntries int           // L1 capacity (default: 1024)
	L1TTL      time.Duration // Upper bound on L1 entry age (default: 1 minute)
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		MaxEntries: 1024,
		L1TTL:      time.Minute,
	}
}

// Remote is the shared second tier, satisfied by the Redis client.
type Remote interface {
	GetRaw(ctx context.Context, key string) ([]byte, error)
	SetRaw(ctx context.Context, key string, data []byte, ttl time.Duration) error
	InvalidatePatterns(ctx context.Context, patterns ...string) error
}
