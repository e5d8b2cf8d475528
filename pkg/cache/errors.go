package cache

import "errors"

// ErrInvalidCacheKey is returned when a cache key is empty
var ErrInvalidCacheKey = errors.New("invalid cache key")
