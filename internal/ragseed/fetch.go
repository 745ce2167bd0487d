package ragseed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const userAgent = "Mozilla/5.0 (compatible; ai-mock-interviewer-ragseed/1.0)"

// maxBody caps a fetched document.
const maxBody = 16 << 20

// Fetcher performs GET requests with retry on transient failures.
type Fetcher struct {
	Client     *http.Client
	MaxElapsed time.Duration
}

// DefaultFetcher returns a Fetcher with an instrumented client.
func DefaultFetcher() *Fetcher {
	return &Fetcher{
		Client:     &http.Client{Timeout: 30 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		MaxElapsed: time.Minute,
	}
}

type statusError struct {
	url    string
	status int
}

func (e *statusError) Error() string { return fmt.Sprintf("GET %s: status %d", e.url, e.status) }

// Get returns the body of url. 4xx responses other than 429 are not retried.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", userAgent)
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			serr := &statusError{url: url, status: resp.StatusCode}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(serr)
			}
			slog.Warn("fetch non-200; retrying", slog.String("url", url), slog.Int("status", resp.StatusCode))
			return serr
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBody))
		return err
	}
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 200 * time.Millisecond
	expo.MaxElapsedTime = f.MaxElapsed
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return nil, fmt.Errorf("op=ragseed.fetch: %w", err)
	}
	return body, nil
}
