// Package robusthttp builds the retrying HTTP client shared by the platform
// clients.
package robusthttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// slogAdapter reports intermediate failures as warnings: a failed attempt is
// usually followed by a retry.
type slogAdapter struct {
	inner *slog.Logger
}

func (l slogAdapter) Error(msg string, keysAndValues ...any) { l.inner.Warn(msg, keysAndValues...) }
func (l slogAdapter) Warn(msg string, keysAndValues ...any)  { l.inner.Warn(msg, keysAndValues...) }
func (l slogAdapter) Info(msg string, keysAndValues ...any)  { l.inner.Info(msg, keysAndValues...) }
func (l slogAdapter) Debug(msg string, keysAndValues ...any) { l.inner.Debug(msg, keysAndValues...) }

type settings struct {
	retry     *retryablehttp.Client
	timeout   time.Duration
	userAgent string
}

// Option configures NewClient.
type Option func(*settings)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(s *settings) { s.retry.RetryMax = n }
}

// WithRetryWait bounds the backoff between attempts.
func WithRetryWait(waitMin, waitMax time.Duration) Option {
	return func(s *settings) {
		s.retry.RetryWaitMin = waitMin
		s.retry.RetryWaitMax = waitMax
	}
}

// WithLogger routes retry logging to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.retry.Logger = retryablehttp.LeveledLogger(slogAdapter{inner: logger})
	}
}

// WithTransport replaces the pooled, instrumented transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *settings) { s.retry.HTTPClient.Transport = rt }
}

// WithTimeout sets the overall per-request timeout, retries included.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *settings) { s.userAgent = ua }
}

// NewClient returns a standard *http.Client that retries connection errors
// and 5xx responses (except 501) with backoff. 429 responses are returned to
// the caller unretried.
func NewClient(opts ...Option) *http.Client {
	retry := retryablehttp.NewClient()
	retry.HTTPClient.Transport = otelhttp.NewTransport(cleanhttp.DefaultPooledTransport())
	retry.RetryMax = 3
	retry.RetryWaitMin = 1 * time.Second
	retry.RetryWaitMax = 10 * time.Second
	retry.Logger = retryablehttp.LeveledLogger(slogAdapter{inner: slog.Default().With("subsystem", "robusthttp")})
	retry.CheckRetry = RetryPolicy

	s := &settings{
		retry:     retry,
		timeout:   30 * time.Second,
		userAgent: "allmyposts/" + versioninfo.Short(),
	}
	for _, opt := range opts {
		opt(s)
	}

	client := retry.StandardClient()
	client.Transport = &userAgentTransport{next: client.Transport, ua: s.userAgent}
	client.Timeout = s.timeout
	return client
}

// RetryPolicy is retryablehttp.DefaultRetryPolicy, except that rate limiting
// is left to the caller.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

type userAgentTransport struct {
	next http.RoundTripper
	ua   string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.ua)
	}
	return t.next.RoundTrip(req)
}
