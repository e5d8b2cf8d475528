// Package middleware limits how often a client may submit statistics.
//
// RateLimiter is an in-process token bucket for single-instance deployments.
// DistributedRateLimiter keeps a fixed-window counter per client in Redis so
// that several API instances share one budget:
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, middleware.DefaultRateLimitConfig(), "")
//	proxies, _ := middleware.ParseTrustedProxies([]string{"10.0.0.0/8"})
//	submit = middleware.RateLimit(limiter, proxies, metrics)(submit)
//
// Clients are keyed by ClientIP, which only reads X-Forwarded-For and
// X-Real-IP when the connection comes from a trusted proxy. Rejected requests
// carry a Retry-After taken from the limiter. When the limiter backend fails
// the request is allowed and the failure is logged and counted.
package middleware
