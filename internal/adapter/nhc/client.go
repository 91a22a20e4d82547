// Package nhc fetches the live active-storm feed. Every request goes through a
// circuit breaker so a failing upstream is not hammered by API reads.
package nhc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/storm-tracker-service/internal/domain"
	"github.com/couchcryptid/storm-tracker-service/internal/observability"
	gobreaker "github.com/sony/gobreaker/v2"
)

const maxFeedBytes = 8 << 20

// Options configures a Client.
type Options struct {
	URL     string
	Timeout time.Duration

	// InsecureRetry allows one retry without certificate verification on the
	// passthrough path. Development only.
	InsecureRetry bool

	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Client reads the active-storm feed.
type Client struct {
	url            string
	httpClient     *http.Client
	insecureClient *http.Client
	breaker        *gobreaker.CircuitBreaker[[]byte]
	metrics        *observability.Metrics
	logger         *slog.Logger
}

// NewClient creates a feed client with a bounded request timeout.
func NewClient(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	logger = logger.With("component", "nhc_feed")
	c := &Client{
		url:        opts.URL,
		httpClient: &http.Client{Timeout: opts.Timeout},
		metrics:    metrics,
		logger:     logger,
	}
	if opts.InsecureRetry {
		c.insecureClient = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in via FEED_INSECURE_RETRY
			},
		}
	}

	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "nhc-feed",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("feed circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.BreakerState.Set(float64(to))
		},
	})
	return c
}

// FetchActiveStorms performs one GET against the feed and parses it. Any
// failure, including an open breaker, wraps domain.ErrFeedUnavailable.
func (c *Client) FetchActiveStorms(ctx context.Context) ([]domain.ActiveStorm, error) {
	body, err := c.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFeedUnavailable, err)
	}
	storms, err := ParseFeed(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFeedUnavailable, err)
	}
	return storms, nil
}

// FetchActiveStormsRelaxed is FetchActiveStorms with a single retry that skips
// certificate verification, when InsecureRetry is enabled. Used only by the
// feed passthrough endpoint.
func (c *Client) FetchActiveStormsRelaxed(ctx context.Context) ([]domain.ActiveStorm, error) {
	storms, err := c.FetchActiveStorms(ctx)
	if err == nil || c.insecureClient == nil || errors.Is(err, gobreaker.ErrOpenState) {
		return storms, err
	}

	c.logger.Warn("feed fetch failed, retrying without certificate verification", "error", err)
	body, rerr := c.get(ctx, c.insecureClient)
	if rerr != nil {
		c.metrics.FeedRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: insecure retry: %w", domain.ErrFeedUnavailable, rerr)
	}
	c.metrics.FeedRequests.WithLabelValues("success").Inc()
	storms, rerr = ParseFeed(body)
	if rerr != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFeedUnavailable, rerr)
	}
	c.logger.Warn("feed fetch succeeded on insecure retry")
	return storms, nil
}

func (c *Client) fetch(ctx context.Context) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.get(ctx, c.httpClient)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.FeedRequests.WithLabelValues("rejected").Inc()
	case err != nil:
		c.metrics.FeedRequests.WithLabelValues("error").Inc()
		c.logger.Debug("feed request failed", "error", err)
	default:
		c.metrics.FeedRequests.WithLabelValues("success").Inc()
	}
	return body, err
}

func (c *Client) get(ctx context.Context, client *http.Client) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("feed status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	return body, nil
}
