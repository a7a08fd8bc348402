package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders the offers page in headless Chrome and returns the
// resulting DOM. Use it when the table is filled in client side.
type BrowserFetcher struct {
	url       string
	userAgent string
	execPath  string
	timeout   time.Duration
}

// NewBrowserFetcher creates a fetcher for url. An empty execPath lets chromedp
// locate the browser binary.
func NewBrowserFetcher(url, userAgent, execPath string, timeout time.Duration) *BrowserFetcher {
	if userAgent == "" {
		userAgent = UserAgent
	}
	if timeout <= 0 {
		timeout = Timeout
	}
	return &BrowserFetcher{
		url:       url,
		userAgent: userAgent,
		execPath:  execPath,
		timeout:   timeout,
	}
}

// Fetch navigates to the page and returns the outer HTML of the document
func (b *BrowserFetcher) Fetch(ctx context.Context) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(b.userAgent),
	)
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, b.timeout)
	defer cancelRun()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(b.url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("rendering page: %w", err)
	}
	return html, nil
}
