package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultBrowserTimeout bounds one headless-browser fetch.
const DefaultBrowserTimeout = 30 * time.Second

// BrowserFetcher retrieves listing markup through a headless Chromium
// instance, for sources that render their event blocks client-side.
// It waits for the block selector to become visible before reading the DOM.
type BrowserFetcher struct {
	url     string
	waitFor string
	timeout time.Duration
}

// NewBrowserFetcher creates a browser-based fetcher. waitFor is the CSS
// selector whose visibility signals that the listing has rendered (typically
// the configured block selector).
func NewBrowserFetcher(url, waitFor string, timeout time.Duration) *BrowserFetcher {
	if timeout <= 0 {
		timeout = DefaultBrowserTimeout
	}
	return &BrowserFetcher{
		url:     url,
		waitFor: waitFor,
		timeout: timeout,
	}
}

// FetchHTML navigates to the listing URL and returns the rendered document.
func (f *BrowserFetcher) FetchHTML(ctx context.Context) (string, error) {
	if f.url == "" {
		return "", errors.New("source URL is empty")
	}

	cctx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	cctx, timeoutCancel := context.WithTimeout(cctx, f.timeout)
	defer timeoutCancel()

	var html string
	tasks := chromedp.Tasks{
		chromedp.Navigate(f.url),
		chromedp.WaitVisible(f.waitFor, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}

	if err := chromedp.Run(cctx, tasks); err != nil {
		return "", fmt.Errorf("browser fetch: %w", err)
	}
	return html, nil
}
