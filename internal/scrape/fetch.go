// Package scrape fetches the source listing page and extracts raw events
// from its markup.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	appLog "whatson/internal/log"
)

// acceptHTML mirrors the Accept header the source expects for its
// server-rendered listing page.
const acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// Fetcher retrieves raw listing markup with a plain HTTP GET.
type Fetcher struct {
	client *http.Client
	url    string
}

// NewFetcher creates an HTTP fetcher for the given listing URL.
func NewFetcher(url string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

// FetchHTML performs the GET and returns the response body as a string.
// Network errors and non-2xx statuses are fatal; there is no retry.
func (f *Fetcher) FetchHTML(ctx context.Context) (string, error) {
	if f.url == "" {
		return "", errors.New("source URL is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", fmt.Errorf("build source request: %w", err)
	}
	req.Header.Set("Accept", acceptHTML)

	appLog.Debug("source fetch start", "url", f.url)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("source returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read source body: %w", err)
	}

	appLog.Info("source fetch success", "url", f.url, "status", resp.StatusCode, "bytes", len(body))
	return string(body), nil
}
