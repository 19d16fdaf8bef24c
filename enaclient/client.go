// Package enaclient talks to the ENA portal API. It owns the network
// behavior of the tool: timeouts, TLS, and retrying transient failures with
// exponential backoff.
package enaclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/carbocation/herring"
	"github.com/carbocation/herring/ena"
	"github.com/carbocation/herring/enaquery"
	"go.uber.org/zap"
)

const bodyExcerpt = 512

// Client executes portal queries. It is safe for concurrent use.
type Client struct {
	cfg   Config
	http  *http.Client
	sleep Sleeper
	log   *zap.Logger
	now   func() time.Time

	retries atomic.Int64
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the client built from the Config.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSleeper replaces the real-time backoff sleep.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New validates cfg and builds a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:   cfg,
		sleep: SleepContext,
		log:   zap.NewNop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		hc, err := NewHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
		c.http = hc
	}

	if cfg.InsecureTLS {
		c.log.Warn("TLS certificate validation is disabled")
	}
	if cfg.CABundle != "" {
		c.log.Info("trusting extra root certificates", zap.String("ca_bundle", cfg.CABundle))
	}
	c.log.Debug("HTTP client ready", zap.Duration("timeout", cfg.Timeout), zap.Int("max_attempts", cfg.Retry.MaxAttempts))

	return c, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// Retries is the number of retries performed so far by this Client.
func (c *Client) Retries() int {
	return int(c.retries.Load())
}

// Execute runs one read_run search and returns the raw rows. A timeout <= 0
// uses the configured per-request timeout. Errors wrap herring.ErrTransient
// (retry budget exhausted), herring.ErrFatal, or the context's error.
func (c *Client) Execute(ctx context.Context, query string, timeout time.Duration) ([]ena.Row, error) {
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}

	url := enaquery.SearchURL(c.cfg.BaseURL, query, ena.Fields, 0)
	c.log.Debug("search", zap.String("query", query), zap.String("url", url))

	body, err := c.get(ctx, url, timeout)
	if err != nil {
		return nil, err
	}

	rows, err := ena.DecodeRows(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding read_run rows from %s: %v", herring.ErrFatal, url, err)
	}

	return rows, nil
}

// Health is the outcome of a Probe.
type Health struct {
	ResultsOK bool
	SearchOK  bool

	// Warnings wrap herring.ErrHandshake.
	Warnings []error
}

// OK reports whether both probe steps succeeded.
func (h Health) OK() bool {
	return h.ResultsOK && h.SearchOK
}

// Probe hits the status endpoint, then runs a one-row search. Both steps are
// single attempts and failures are only logged: the probe gives the operator
// an early signal and never stops a run.
func (c *Client) Probe(ctx context.Context) Health {
	var h Health

	warn := func(step string, err error) {
		w := fmt.Errorf("%w: %s: %w", herring.ErrHandshake, step, err)
		h.Warnings = append(h.Warnings, w)
		c.log.Warn("ENA handshake step failed", zap.String("step", step), zap.Error(err))
	}

	if _, err := c.attempt(ctx, enaquery.ResultsURL(c.cfg.BaseURL), c.cfg.Timeout); err != nil {
		warn("results ping", err)
	} else {
		h.ResultsOK = true
	}

	url := enaquery.SearchURL(c.cfg.BaseURL, enaquery.PlatformFilter(c.cfg.Platform), []string{"run_accession"}, 1)
	if body, err := c.attempt(ctx, url, c.cfg.Timeout); err != nil {
		warn("minimal search", err)
	} else if _, err := ena.DecodeRows(bytes.NewReader(body)); err != nil {
		warn("minimal search", fmt.Errorf("%w: undecodable body: %v", herring.ErrFatal, err))
	} else {
		h.SearchOK = true
	}

	if h.OK() {
		c.log.Debug("ENA handshake ok")
	}

	return h
}

// get performs a GET with retries according to the policy.
func (c *Client) get(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	policy := c.cfg.Retry

	for attempt := 1; ; attempt++ {
		c.log.Debug("GET", zap.String("url", url), zap.Int("attempt", attempt), zap.Int("of", policy.MaxAttempts))

		body, err := c.attempt(ctx, url, timeout)
		if err == nil {
			return body, nil
		}

		// The caller gave up; don't dress that up as a transient failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		retry, wait := policy.Next(attempt, err)
		if !retry {
			if errors.Is(err, herring.ErrTransient) {
				return nil, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
			}
			return nil, err
		}

		c.retries.Add(1)
		c.log.Warn("retrying after transient failure",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait))

		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// attempt performs exactly one GET under its own timeout and classifies any
// failure.
func (c *Client) attempt(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", herring.ErrFatal, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", classifyTransportError(err), url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body of %s: %w", herring.ErrTransient, url, err)
	}

	c.log.Debug("response", zap.String("status", resp.Status), zap.Int("bytes", len(body)))

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return body, nil
	}

	if len(body) > bodyExcerpt {
		body = body[:bodyExcerpt]
	}

	return nil, &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		URL:        url,
		Body:       string(bytes.TrimSpace(body)),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
		transient:  c.cfg.Retry.Transient(resp.StatusCode),
	}
}

// classifyTransportError treats certificate problems as fatal, since retrying
// cannot fix them, and everything else (resets, DNS, timeouts) as transient.
func classifyTransportError(err error) error {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return herring.ErrFatal
	}

	return herring.ErrTransient
}
