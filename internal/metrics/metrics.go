// Package metrics exposes Prometheus instrumentation for the ingestion
// pipeline and the cache purge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whatson_cache_hits_total",
		Help: "Requests answered from the daily cache partition.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whatson_cache_misses_total",
		Help: "Requests that triggered a fresh scrape.",
	})

	ScrapeDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "whatson_scrape_duration_seconds",
		Help: "Wall time of the fetch/extract/normalize/enrich chain.",
	})

	ImagesEmbedded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whatson_images_embedded_total",
		Help: "Event images downloaded, re-encoded and embedded.",
	})

	PurgedDocuments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whatson_purged_documents_total",
		Help: "Cache documents removed by the paged purge.",
	})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
