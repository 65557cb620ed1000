// Package image downloads event images, scales and re-encodes them, and
// embeds them into events as base64 payloads.
package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"whatson/internal/model"
)

const (
	// DefaultMaxDimension is the largest allowed width or height.
	DefaultMaxDimension = 600
	// DefaultQuality is the JPEG encode quality.
	DefaultQuality = 80
)

// Enricher replaces each event's ImageLink with an embedded base64 JPEG.
type Enricher struct {
	client  *http.Client
	maxDim  int
	quality int
}

// NewEnricher creates an Enricher. Zero values fall back to the defaults.
func NewEnricher(maxDim, quality int, timeout time.Duration) *Enricher {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Enricher{
		client:  &http.Client{Timeout: timeout},
		maxDim:  maxDim,
		quality: quality,
	}
}

// Enrich processes all events concurrently and joins on completion. A failure
// for any single image fails the whole batch; the input slice is left
// untouched. On success no returned event carries both ImageLink and Image.
func (e *Enricher) Enrich(ctx context.Context, events []model.Event) ([]model.Event, error) {
	out := make([]model.Event, len(events))
	copy(out, events)

	g, gctx := errgroup.WithContext(ctx)
	for i := range out {
		i := i
		g.Go(func() error {
			encoded, err := e.fetchAndEncode(gctx, out[i].ImageLink)
			if err != nil {
				return fmt.Errorf("image %q: %w", out[i].ImageLink, err)
			}
			out[i].Image = encoded
			out[i].ImageLink = ""
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetchAndEncode downloads one image, fits it into maxDim and returns it as
// a base64-encoded JPEG.
func (e *Enricher) fetchAndEncode(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", errors.New("empty image link")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > e.maxDim || bounds.Dy() > e.maxDim {
		img = imaging.Fit(img, e.maxDim, e.maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(e.quality)); err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
