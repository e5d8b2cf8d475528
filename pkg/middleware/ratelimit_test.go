package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/portstats/pkg/observability"
)

var testConfig = &RateLimitConfig{
	RequestsPerWindow: 10,
	WindowDuration:    time.Minute,
	BurstSize:         2,
}

func allowN(t *testing.T, l Limiter, key string, n int) int {
	t.Helper()
	allowed := 0
	for i := 0; i < n; i++ {
		ok, err := l.Allow(context.Background(), key)
		require.NoError(t, err)
		if ok {
			allowed++
		}
	}
	return allowed
}

func remaining(t *testing.T, l Limiter, key string) int {
	t.Helper()
	n, err := l.Remaining(context.Background(), key)
	require.NoError(t, err)
	return n
}

func TestRateLimiter_AllowUpToCapacity(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewRateLimiter(testConfig, clock)

	assert.Equal(t, 12, allowN(t, limiter, "client", 20))
	assert.Equal(t, 0, remaining(t, limiter, "client"))

	// 6 seconds refill one token at 10 per minute.
	clock.Advance(6 * time.Second)
	assert.Equal(t, 1, allowN(t, limiter, "client", 3))
}

func TestRateLimiter_RetryAfter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewRateLimiter(testConfig, clock)
	ctx := context.Background()

	wait, err := limiter.RetryAfter(ctx, "client")
	require.NoError(t, err)
	assert.Zero(t, wait)

	allowN(t, limiter, "client", 12)
	wait, err = limiter.RetryAfter(ctx, "client")
	require.NoError(t, err)
	assert.Equal(t, 6*time.Second, wait)

	clock.Advance(4 * time.Second)
	wait, err = limiter.RetryAfter(ctx, "client")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, wait)
}

func TestRateLimiter_RefillIsCapped(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewRateLimiter(testConfig, clock)

	allowN(t, limiter, "client", 12)
	clock.Advance(time.Hour)

	assert.Equal(t, 12, allowN(t, limiter, "client", 20))
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(testConfig, clockwork.NewFakeClock())

	allowN(t, limiter, "a", 12)

	assert.Equal(t, 12, remaining(t, limiter, "b"))
	assert.Equal(t, 12, allowN(t, limiter, "b", 12))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewRateLimiter(testConfig, clock)

	allowN(t, limiter, "stale", 1)
	clock.Advance(3 * time.Minute)
	allowN(t, limiter, "fresh", 1)
	limiter.Cleanup()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.buckets, "stale")
	assert.Contains(t, limiter.buckets, "fresh")
}

func TestRateLimiter_Concurrency(t *testing.T) {
	limiter := NewRateLimiter(testConfig, clockwork.NewFakeClock())

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := limiter.Allow(context.Background(), "client")
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 12, allowed)
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	limiter := NewRateLimiter(nil, nil)
	assert.Equal(t, DefaultRateLimitConfig(), limiter.Config())
}

func TestParseTrustedProxies(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.10 ", "", "2001:db8::/32"})
	require.NoError(t, err)
	require.Len(t, proxies, 3)

	assert.True(t, proxies.Contains("10.1.2.3"))
	assert.True(t, proxies.Contains("192.0.2.10"))
	assert.False(t, proxies.Contains("192.0.2.11"))
	assert.True(t, proxies.Contains("2001:db8::1"))
	assert.False(t, proxies.Contains("not-an-ip"))

	_, err = ParseTrustedProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)
}

func TestClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		trusted TrustedProxies
		want    string
	}{
		{name: "remote addr", remote: "192.0.2.1:51234", want: "192.0.2.1"},
		{name: "remote addr without port", remote: "192.0.2.1", want: "192.0.2.1"},
		{name: "forwarded chain from trusted proxy", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, remote: "10.0.0.2:80", trusted: trusted, want: "203.0.113.7"},
		{name: "real ip from trusted proxy", headers: map[string]string{"X-Real-IP": "198.51.100.4"}, remote: "10.0.0.2:80", trusted: trusted, want: "198.51.100.4"},
		{name: "trusted proxy without headers", remote: "10.0.0.2:80", trusted: trusted, want: "10.0.0.2"},
		{name: "forwarded header from untrusted client", headers: map[string]string{"X-Forwarded-For": "203.0.113.7"}, remote: "192.0.2.1:51234", trusted: trusted, want: "192.0.2.1"},
		{name: "forwarded header without trusted proxies", headers: map[string]string{"X-Forwarded-For": "203.0.113.7", "X-Real-IP": "198.51.100.4"}, remote: "10.0.0.2:80", want: "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r, tt.trusted))
		})
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}
func (failingLimiter) Remaining(context.Context, string) (int, error) {
	return 0, errors.New("connection refused")
}
func (failingLimiter) RetryAfter(context.Context, string) (time.Duration, error) {
	return 0, errors.New("connection refused")
}
func (failingLimiter) Config() *RateLimitConfig { return testConfig }

func serve(h http.Handler, remote string) *httptest.ResponseRecorder {
	return serveForwarded(h, remote, "")
}

func serveForwarded(h http.Handler, remote, forwardedFor string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/statistics/submit/", nil)
	r.RemoteAddr = remote
	if forwardedFor != "" {
		r.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestRateLimit_RejectsExhaustedClient(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	clock := clockwork.NewFakeClock()
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Hour}, clock)
	calls := 0
	h := RateLimit(limiter, nil, metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	w := serve(h, "192.0.2.1:1000")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = serve(h, "192.0.2.1:2000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3600", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "Too many submissions")

	// The wait shrinks as the bucket refills.
	clock.Advance(20 * time.Minute)
	w = serve(h, "192.0.2.1:3000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2400", w.Header().Get("Retry-After"))

	w = serve(h, "192.0.2.2:1000")
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RateLimitedTotal.WithLabelValues("rejected")))
}

func TestRateLimit_KeysByForwardedClientBehindTrustedProxy(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Hour}, clockwork.NewFakeClock())
	h := RateLimit(limiter, trusted, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	// Distinct clients behind one proxy have their own budgets.
	assert.Equal(t, http.StatusOK, serveForwarded(h, "10.0.0.2:80", "203.0.113.7").Code)
	assert.Equal(t, http.StatusOK, serveForwarded(h, "10.0.0.2:80", "203.0.113.8").Code)
	assert.Equal(t, http.StatusTooManyRequests, serveForwarded(h, "10.0.0.2:80", "203.0.113.7").Code)

	// A direct client cannot escape its budget by forging the header.
	assert.Equal(t, http.StatusOK, serveForwarded(h, "192.0.2.1:1000", "198.51.100.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, serveForwarded(h, "192.0.2.1:1000", "198.51.100.2").Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	h := RateLimit(failingLimiter{}, nil, metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := serve(h, "192.0.2.1:1000")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitedTotal.WithLabelValues("failed_open")))
}

func TestRateLimit_NilMetrics(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Hour}, clockwork.NewFakeClock())
	h := RateLimit(limiter, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	serve(h, "192.0.2.1:1000")
	w := serve(h, "192.0.2.1:1000")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
