// Package oracle reads competitor quotes and search hits from retailer HTML.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

var ErrRateLimited = errors.New("oracle: rate limited, retries exhausted")

// fetcher downloads and parses pages, retrying throttled responses with
// exponential backoff.
type fetcher struct {
	client         *http.Client
	userAgent      string
	maxRetries     int
	initialBackoff time.Duration
	logger         *zap.Logger
	sleep          func(ctx context.Context, d time.Duration) error
}

func newFetcher(timeout time.Duration, userAgent string, maxRetries int, backoff time.Duration, logger *zap.Logger) *fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &fetcher{
		client:         &http.Client{Timeout: timeout},
		userAgent:      userAgent,
		maxRetries:     maxRetries,
		initialBackoff: backoff,
		logger:         logger,
		sleep:          sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

func (f *fetcher) document(ctx context.Context, endpoint string) (*goquery.Document, error) {
	wait := f.initialBackoff
	for attempt := 0; ; attempt++ {
		doc, code, err := f.get(ctx, endpoint)
		if err == nil {
			return doc, nil
		}
		if !retryable(code) {
			return nil, err
		}
		if attempt >= f.maxRetries {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, endpoint)
		}
		f.logger.Warn("throttled, backing off",
			zap.String("url", endpoint),
			zap.Int("status", code),
			zap.Duration("wait", wait),
			zap.Int("attempt", attempt+1))
		if err := f.sleep(ctx, wait); err != nil {
			return nil, err
		}
		wait *= 2
	}
}

func (f *fetcher) get(ctx context.Context, endpoint string) (*goquery.Document, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept-Language", "vi-VN,vi;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, endpoint)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return doc, resp.StatusCode, nil
}
