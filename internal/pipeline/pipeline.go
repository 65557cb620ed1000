// Package pipeline orchestrates the daily ingestion chain: cache check,
// scrape, normalize, enrich, and the post-response persistence.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	appLog "whatson/internal/log"
	"whatson/internal/metrics"
	"whatson/internal/model"
	"whatson/internal/normalize"
	"whatson/internal/scrape"
	"whatson/internal/store"
)

// Fetcher retrieves raw listing markup.
type Fetcher interface {
	FetchHTML(ctx context.Context) (string, error)
}

// Enricher embeds images into events.
type Enricher interface {
	Enrich(ctx context.Context, events []model.Event) ([]model.Event, error)
}

// Store is the document-store contract the pipeline needs.
type Store interface {
	CheckPartition(ctx context.Context, key string) ([]model.Event, bool, error)
	PersistChunks(ctx context.Context, key string, chunks [][]model.Event) error
	DeletePartition(ctx context.Context, key string, pageSize int) (int, error)
	Partitions(ctx context.Context) ([]string, error)
}

// persistTimeout bounds one background persistence run.
const persistTimeout = 30 * time.Second

// Options tunes a Pipeline.
type Options struct {
	Selectors scrape.Selectors
	// Location is the timezone the daily partition key is computed in.
	Location  *time.Location
	ChunkSize int
	PageSize  int
	// PurgeBeforeWrite deletes stale partitions before persisting a fresh
	// set. Off by default; the scheduled purge covers aging out normally.
	PurgeBeforeWrite bool
	// Now is a clock override for tests.
	Now func() time.Time
}

// Pipeline holds the collaborators for one deployment. Each request runs
// with fully independent state; the only shared member is the WaitGroup
// tracking background persistence.
type Pipeline struct {
	store     Store
	fetcher   Fetcher
	enricher  Enricher
	selectors scrape.Selectors
	loc       *time.Location
	chunkSize int
	pageSize  int

	purgeBeforeWrite bool
	now              func() time.Time

	wg sync.WaitGroup
}

// New wires a Pipeline. Nil/zero options fall back to defaults.
func New(st Store, fetcher Fetcher, enricher Enricher, opts Options) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = model.DefaultChunkSize
	}
	if opts.PageSize <= 0 {
		opts.PageSize = store.DefaultPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Selectors == (scrape.Selectors{}) {
		opts.Selectors = scrape.DefaultSelectors()
	}

	return &Pipeline{
		store:            st,
		fetcher:          fetcher,
		enricher:         enricher,
		selectors:        opts.Selectors,
		loc:              opts.Location,
		chunkSize:        opts.ChunkSize,
		pageSize:         opts.PageSize,
		purgeBeforeWrite: opts.PurgeBeforeWrite,
		now:              opts.Now,
	}
}

// Today returns today's events, preferring the cache. The bool reports a
// cache hit; on a hit no fetch, normalize or enrich work happens. On a miss
// the caller is expected to respond first and then call PersistAsync with
// the same event set, so cache and response never diverge.
func (p *Pipeline) Today(ctx context.Context) ([]model.Event, model.DateStamp, bool, error) {
	stamp := model.NewDateStamp(p.now().In(p.loc))

	cached, found, err := p.store.CheckPartition(ctx, stamp.Formatted)
	if err != nil {
		return nil, stamp, false, fmt.Errorf("cache read: %w", err)
	}
	if found {
		metrics.CacheHits.Inc()
		appLog.Info("cache hit", "partition", stamp.Formatted, "events", len(cached))
		return cached, stamp, true, nil
	}

	metrics.CacheMisses.Inc()
	events, err := p.Fresh(ctx, stamp)
	if err != nil {
		return nil, stamp, false, err
	}
	return events, stamp, false, nil
}

// Fresh runs the scrape chain unconditionally: fetch, extract, clean,
// filter out past events, enrich images.
func (p *Pipeline) Fresh(ctx context.Context, stamp model.DateStamp) ([]model.Event, error) {
	start := time.Now()

	rawHTML, err := p.fetcher.FetchHTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}

	events, err := scrape.Extract(rawHTML, p.selectors, stamp.Formatted)
	if err != nil {
		return nil, fmt.Errorf("extract events: %w", err)
	}

	events = normalize.Clean(events)
	events = normalize.FilterPast(events, stamp)

	events, err = p.enricher.Enrich(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("enrich images: %w", err)
	}

	metrics.ScrapeDuration.Observe(time.Since(start).Seconds())
	metrics.ImagesEmbedded.Add(float64(len(events)))
	appLog.Info("scrape complete",
		"partition", stamp.Formatted,
		"events", len(events),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return events, nil
}

// PersistAsync chunks the events and writes them to the cache in a detached
// goroutine. The response has already been sent by the time this runs, so
// failures are logged and never surfaced.
func (p *Pipeline) PersistAsync(stamp model.DateStamp, events []model.Event) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if p.purgeBeforeWrite {
			if _, err := p.PurgeStale(ctx, stamp); err != nil {
				appLog.Error("stale purge before write failed", err, "partition", stamp.Formatted)
			}
		}

		chunks := model.ChunkEvents(events, p.chunkSize)
		if err := p.store.PersistChunks(ctx, stamp.Formatted, chunks); err != nil {
			appLog.Error("failed to save events", err, "partition", stamp.Formatted)
			return
		}
		appLog.Info("events cached", "partition", stamp.Formatted, "chunks", len(chunks), "events", len(events))
	}()
}

// Wait blocks until all background persistence launched so far has finished.
// Used on shutdown and in tests.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// PurgeStale deletes every partition other than today's, page by page.
// Unlike persistence this is an explicit operation, so failures surface.
// It is idempotent: purging an already-clean store deletes nothing.
func (p *Pipeline) PurgeStale(ctx context.Context, stamp model.DateStamp) (int, error) {
	keys, err := p.store.Partitions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list partitions: %w", err)
	}

	total := 0
	for _, key := range keys {
		if key == stamp.Formatted {
			continue
		}
		deleted, err := p.store.DeletePartition(ctx, key, p.pageSize)
		total += deleted
		if err != nil {
			return total, fmt.Errorf("purge partition %q: %w", key, err)
		}
		appLog.Info("partition purged", "partition", key, "documents", deleted)
	}

	metrics.PurgedDocuments.Add(float64(total))
	return total, nil
}
