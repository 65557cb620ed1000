package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"whatson/internal/model"
	"whatson/internal/pipeline"
)

type memStore struct {
	mu         sync.Mutex
	partitions map[string][][]model.Event
	checkErr   error
}

func newMemStore() *memStore {
	return &memStore{partitions: map[string][][]model.Event{}}
}

func (s *memStore) CheckPartition(_ context.Context, key string) ([]model.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkErr != nil {
		return nil, false, s.checkErr
	}
	chunks, ok := s.partitions[key]
	if !ok {
		return nil, false, nil
	}
	var events []model.Event
	for _, chunk := range chunks {
		events = append(events, chunk...)
	}
	return events, true, nil
}

func (s *memStore) PersistChunks(_ context.Context, key string, chunks [][]model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partitions[key] = append(s.partitions[key], chunks...)
	return nil
}

func (s *memStore) DeletePartition(_ context.Context, key string, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.partitions[key])
	delete(s.partitions, key)
	return n, nil
}

func (s *memStore) Partitions(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.partitions))
	for key := range s.partitions {
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *memStore) chunkCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.partitions[key])
}

type stubFetcher struct {
	calls int
	html  string
}

func (f *stubFetcher) FetchHTML(context.Context) (string, error) {
	f.calls++
	return f.html, nil
}

type stubEnricher struct{}

func (stubEnricher) Enrich(_ context.Context, events []model.Event) ([]model.Event, error) {
	out := make([]model.Event, len(events))
	copy(out, events)
	for i := range out {
		out[i].Image = "aW1n"
		out[i].ImageLink = ""
	}
	return out, nil
}

func fixedNow() time.Time {
	return time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
}

const listingHTML = `
<div class="box">
	<a class="image" href="/e/1"><img src="http://img/1.png"></a>
	<span class="date">2024-06-20</span>
	<h2 class="title"><a>jazz NIGHT</a></h2>
	<span class="category">Music</span>
</div>`

func newTestServer(st pipeline.Store, f pipeline.Fetcher) (*Server, *pipeline.Pipeline) {
	p := pipeline.New(st, f, stubEnricher{}, pipeline.Options{
		Location: time.UTC,
		Now:      fixedNow,
	})
	return NewServer(p), p
}

func TestEventsMissScrapesThenPersists(t *testing.T) {
	st := newMemStore()
	fetcher := &stubFetcher{html: listingHTML}
	srv, p := newTestServer(st, fetcher)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Events []model.Event `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(resp.Events) != 1 {
		t.Fatalf("got %d events: %s", len(resp.Events), rec.Body.String())
	}
	got := resp.Events[0]
	if got.Title != "Jazz Night" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.Image == "" || got.ImageLink != "" {
		t.Errorf("enrichment invariant broken: %+v", got)
	}

	// The same result must land in the cache after the response.
	p.Wait()
	if st.chunkCount("15-06-2024") != 1 {
		t.Errorf("chunks persisted = %d, want 1", st.chunkCount("15-06-2024"))
	}
}

func TestEventsHitServesCacheWithoutFetch(t *testing.T) {
	st := newMemStore()
	st.partitions["15-06-2024"] = [][]model.Event{
		{{Title: "Cached", Image: "aW1n", FetchDate: "15-06-2024"}},
	}
	fetcher := &stubFetcher{html: listingHTML}
	srv, p := newTestServer(st, fetcher)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	p.Wait()

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetcher called %d times on cache hit", fetcher.calls)
	}
	// No duplicate write on a hit.
	if st.chunkCount("15-06-2024") != 1 {
		t.Errorf("chunks = %d, want 1", st.chunkCount("15-06-2024"))
	}
	if !strings.Contains(rec.Body.String(), "Cached") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestEventsFailureReturns500(t *testing.T) {
	st := newMemStore()
	st.checkErr = errors.New("storage down")
	srv, _ := newTestServer(st, &stubFetcher{html: listingHTML})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if resp.Error == "" {
		t.Error("error message missing")
	}
}

func TestEventsMethodAgnostic(t *testing.T) {
	st := newMemStore()
	st.partitions["15-06-2024"] = [][]model.Event{{{Title: "Cached"}}}
	srv, _ := newTestServer(st, &stubFetcher{})

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, "/events", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s /events = %d, want 200", method, rec.Code)
		}
	}
}

func TestFeedServesCalendar(t *testing.T) {
	st := newMemStore()
	st.partitions["15-06-2024"] = [][]model.Event{
		{{Title: "Jazz Night", Category: "Music", Date: "2024-06-20"}},
	}
	srv, _ := newTestServer(st, &stubFetcher{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events.ics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "BEGIN:VCALENDAR") {
		t.Errorf("body is not a calendar:\n%s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(newMemStore(), &stubFetcher{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q", rec.Body.String())
	}
}
