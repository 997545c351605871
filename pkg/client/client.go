// Package client fetches market and universe data from ESI. It issues
// conditional GET requests, walks paginated resources page by page, keeps
// per-page cache tags, and classifies and retries failures.
//
// A Client holds the settings and limiters shared by the whole process.
// Each worker owns a Session created from it, so HTTP connections and stat
// counters are never shared between workers. GlobalAPI and RegionAPI hold
// the pagination state of each resource and are shared by every session.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/eve-marketwatch/pkg/logging"
	"github.com/Sternrassler/eve-marketwatch/pkg/ratelimit"
	"github.com/Sternrassler/eve-marketwatch/pkg/stats"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public ESI root.
const DefaultBaseURL = "https://esi.evetech.net/latest"

// TokenSource supplies the bearer token for authenticated endpoints.
type TokenSource interface {
	// Token returns the current token, or "" if none is available.
	Token() string
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the ESI root, without trailing slash.
	BaseURL string

	// User-Agent header (REQUIRED by ESI)
	UserAgent string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// RateLimit is the process-wide request rate in requests per second.
	// Zero disables rate limiting.
	RateLimit float64
	Burst     int

	// RetryAttempts is the number of attempts per page or resource.
	RetryAttempts int

	// RetryBackoff is multiplied by the attempt number between attempts.
	RetryBackoff time.Duration

	// Gate blocks requests when the ESI error budget is nearly exhausted.
	Gate *ratelimit.Gate

	// Tokens supplies bearer tokens for authenticated endpoints.
	Tokens TokenSource
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		UserAgent:     userAgent,
		Timeout:       30 * time.Second,
		RateLimit:     20,
		Burst:         10,
		RetryAttempts: 3,
		RetryBackoff:  500 * time.Millisecond,
	}
}

// Client is the process-wide ESI client.
type Client struct {
	config  Config
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// New creates a new ESI client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryAttempts < 1 {
		return nil, fmt.Errorf("retry_attempts must be >= 1 (got %d)", cfg.RetryAttempts)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		config:  cfg,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logging.NewLogger("esi-client"),
	}, nil
}

// BaseURL returns the configured ESI root.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Session is a worker-owned view of the client: it has its own HTTP
// connection pool and records into the worker's stats.
type Session struct {
	client     *Client
	httpClient *http.Client
	stats      *stats.Stats
	logger     zerolog.Logger
}

// NewSession creates a session recording into st. st may be nil.
func (c *Client) NewSession(st *stats.Stats, logger zerolog.Logger) *Session {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &Session{
		client: c,
		httpClient: &http.Client{
			Timeout:   c.config.Timeout,
			Transport: transport,
		},
		stats:  st,
		logger: logger,
	}
}

// Stats returns the accumulator the session records into.
func (s *Session) Stats() *stats.Stats {
	return s.stats
}

// response is a successful (2xx or 304) ESI response with its body read.
type response struct {
	status int
	header http.Header
	body   []byte
	etag   string
}

func (r *response) notModified() bool {
	return r.status == http.StatusNotModified
}

// maxPages reads X-Pages, defaulting to 1.
func (r *response) maxPages() int {
	if n, err := strconv.Atoi(r.header.Get("X-Pages")); err == nil && n > 0 {
		return n
	}
	return 1
}

// get issues a single conditional GET. It never retries.
func (s *Session) get(ctx context.Context, category, endpoint string, params url.Values, etag string, needsAuth bool) (*response, error) {
	c := s.client

	var token string
	if needsAuth {
		if c.config.Tokens != nil {
			token = c.config.Tokens.Token()
		}
		if token == "" {
			esiRequestsTotal.WithLabelValues(category, "no_token").Inc()
			return nil, &ESIError{ErrorClass: ErrorClassAuth, Message: endpoint, Err: ErrNoToken}
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := c.config.Gate.Allow(ctx); err != nil {
		if errors.Is(err, ratelimit.ErrBlocked) {
			esiRequestsTotal.WithLabelValues(category, "rate_limited").Inc()
			return nil, &ESIError{ErrorClass: ErrorClassRateLimit, Message: "blocked by error limit gate", Err: err}
		}
		return nil, err
	}

	reqURL := c.config.BaseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	startTime := time.Now()
	resp, err := s.httpClient.Do(req)
	esiRequestDuration.WithLabelValues(category).Observe(time.Since(startTime).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		esiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		esiRequestsTotal.WithLabelValues(category, "network_error").Inc()
		return nil, &ESIError{ErrorClass: ErrorClassNetwork, Message: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if err := c.config.Gate.Observe(ctx, resp.Header); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to update error limit from headers")
	}
	esiRequestsTotal.WithLabelValues(category, strconv.Itoa(resp.StatusCode)).Inc()

	if class := classifyStatus(resp.StatusCode); class != "" {
		esiErrorsTotal.WithLabelValues(string(class)).Inc()
		_, _ = io.Copy(io.Discard, resp.Body)
		s.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("ESI request error")
		return nil, &ESIError{StatusCode: resp.StatusCode, ErrorClass: class, Message: resp.Status}
	}

	out := &response{
		status: resp.StatusCode,
		header: resp.Header,
		etag:   resp.Header.Get("ETag"),
	}
	if out.notModified() {
		esiNotModifiedTotal.Inc()
		return out, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ESIError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Message: "read body", Err: err}
	}
	out.body = body
	return out, nil
}
