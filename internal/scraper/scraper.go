package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pfrederiksen/stuwo-offers/internal/logger"
	"github.com/pfrederiksen/stuwo-offers/internal/offer"
	"golang.org/x/net/html/charset"
)

const (
	BaseURL    = "https://www.studentenwerk-muenchen.de"
	OffersPath = "/en/accommodation/private-accommodation-service/offers/"
	UserAgent  = "stuwo-offers/1.0 (github.com/pfrederiksen/stuwo-offers)"
	Timeout    = 30 * time.Second
	// Retries is zero so a failed request ends the run unless retrying is enabled
	Retries = 0
)

// Fetcher returns the raw markup of the offers page
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// HTTPFetcher fetches the offers page with a plain GET request
type HTTPFetcher struct {
	client        *http.Client
	url           string
	userAgent     string
	retries       int
	retryInterval time.Duration
}

// NewHTTPFetcher creates a fetcher for url. retries is the number of extra
// attempts after the first one; zero disables retrying.
func NewHTTPFetcher(url, userAgent string, timeout time.Duration, retries int) *HTTPFetcher {
	if userAgent == "" {
		userAgent = UserAgent
	}
	if timeout <= 0 {
		timeout = Timeout
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		url:           url,
		userAgent:     userAgent,
		retries:       retries,
		retryInterval: 500 * time.Millisecond,
	}
}

// Fetch performs the GET request, retrying transport errors and 5xx responses
func (f *HTTPFetcher) Fetch(ctx context.Context) (string, error) {
	var body string

	operation := func() error {
		b, err := f.fetchOnce(ctx)
		if err != nil {
			return err
		}
		body = b
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = f.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(f.retries)), ctx)

	notify := func(err error, wait time.Duration) {
		logger.IncrCounter("fetch.retries")
		logger.Warn("Fetch failed, retrying", logger.Fields{
			"url":   f.url,
			"wait":  wait.String(),
			"error": err.Error(),
		})
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return "", err
	}
	return body, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", backoff.Permanent(fmt.Errorf("fetching page: %w", err))
		}
		return "", fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		if resp.StatusCode < 500 {
			return "", backoff.Permanent(statusErr)
		}
		return "", statusErr
	}

	// Decode to UTF-8 using the declared charset, or a sniffed one
	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("decoding body: %w", err)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(data), nil
}

// Scraper fetches the offers page and parses it into offers
type Scraper struct {
	fetcher Fetcher
	lenient bool
}

// New creates a Scraper. With lenient set, malformed rows are skipped instead
// of failing the whole parse.
func New(fetcher Fetcher, lenient bool) *Scraper {
	return &Scraper{
		fetcher: fetcher,
		lenient: lenient,
	}
}

// FetchOffers fetches the page and extracts one offer per table row
func (s *Scraper) FetchOffers(ctx context.Context) (*offer.ParseResult, error) {
	start := time.Now()
	body, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching offers page: %w", err)
	}
	logger.RecordTiming("scraper.fetch", time.Since(start))
	logger.Debug("Fetched offers page", logger.Fields{"bytes": len(body)})

	start = time.Now()
	result, err := ParseOffers(strings.NewReader(body), !s.lenient)
	if err != nil {
		return nil, err
	}
	logger.RecordTiming("scraper.parse", time.Since(start))

	for _, skipped := range result.Skipped {
		logger.IncrCounter("rows.skipped")
		logger.Warn("Skipped malformed row", logger.Fields{
			"row":    skipped.Index,
			"reason": skipped.Reason,
		})
	}

	return result, nil
}
