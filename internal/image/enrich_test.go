package image

import (
	"bytes"
	"context"
	"encoding/base64"
	stdimage "image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"whatson/internal/model"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func imageServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func decodeResult(t *testing.T, encoded string) stdimage.Image {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("result is not base64: %v", err)
	}
	img, format, err := stdimage.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("result does not decode: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("result format = %q, want jpeg", format)
	}
	return img
}

func TestEnrichScalesDownLargeImage(t *testing.T) {
	srv := imageServer(t, pngBytes(t, 800, 500))
	e := NewEnricher(600, 80, 5*time.Second)

	events, err := e.Enrich(context.Background(), []model.Event{{ImageLink: srv.URL, Title: "a"}})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}

	got := events[0]
	if got.ImageLink != "" {
		t.Errorf("ImageLink still set: %q", got.ImageLink)
	}
	if got.Image == "" {
		t.Fatal("Image not set")
	}

	img := decodeResult(t, got.Image)
	b := img.Bounds()
	if b.Dx() > 600 || b.Dy() > 600 {
		t.Errorf("image not fitted: %dx%d", b.Dx(), b.Dy())
	}
	// Aspect ratio preserved: 800x500 fitted into 600 gives 600x375.
	if b.Dx() != 600 || b.Dy() != 375 {
		t.Errorf("fitted size = %dx%d, want 600x375", b.Dx(), b.Dy())
	}
}

func TestEnrichKeepsSmallImageSize(t *testing.T) {
	srv := imageServer(t, pngBytes(t, 300, 200))
	e := NewEnricher(600, 80, 5*time.Second)

	events, err := e.Enrich(context.Background(), []model.Event{{ImageLink: srv.URL}})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}

	img := decodeResult(t, events[0].Image)
	b := img.Bounds()
	if b.Dx() != 300 || b.Dy() != 200 {
		t.Errorf("small image resized to %dx%d", b.Dx(), b.Dy())
	}
}

func TestEnrichNeverLeavesBothFields(t *testing.T) {
	srv := imageServer(t, pngBytes(t, 100, 100))
	e := NewEnricher(600, 80, 5*time.Second)

	in := []model.Event{
		{ImageLink: srv.URL, Title: "a"},
		{ImageLink: srv.URL, Title: "b"},
		{ImageLink: srv.URL, Title: "c"},
	}
	events, err := e.Enrich(context.Background(), in)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}

	for _, ev := range events {
		if ev.ImageLink != "" && ev.Image != "" {
			t.Errorf("event %q has both imageLink and image", ev.Title)
		}
		if ev.Image == "" {
			t.Errorf("event %q not enriched", ev.Title)
		}
	}

	// Input slice must be untouched.
	for _, ev := range in {
		if ev.Image != "" || ev.ImageLink == "" {
			t.Errorf("input mutated: %+v", ev)
		}
	}
}

func TestEnrichFailsBatchOnBadImage(t *testing.T) {
	good := imageServer(t, pngBytes(t, 100, 100))
	bad := imageServer(t, []byte("not an image"))
	e := NewEnricher(600, 80, 5*time.Second)

	_, err := e.Enrich(context.Background(), []model.Event{
		{ImageLink: good.URL},
		{ImageLink: bad.URL},
	})
	if err == nil {
		t.Fatal("expected batch failure on undecodable image")
	}
}

func TestEnrichEmptyBatch(t *testing.T) {
	e := NewEnricher(600, 80, 5*time.Second)
	events, err := e.Enrich(context.Background(), nil)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events", len(events))
	}
}
