// Package metrics exposes import and query counters on a private Prometheus
// registry.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjannette/finagg-backend/internal/aggregate"
	"github.com/kjannette/finagg-backend/internal/limits"
	"github.com/kjannette/finagg-backend/internal/models"
)

const namespace = "finagg"

type Collector struct {
	registry *prometheus.Registry

	linesSkipped  *prometheus.CounterVec
	pointsWritten prometheus.Counter
	batches       prometheus.Counter
	imports       *prometheus.CounterVec
	importSecs    prometheus.Histogram
	queries       *prometheus.HistogramVec
	queryErrors   *prometheus.CounterVec
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		linesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "lines_skipped_total",
			Help: "Source lines rejected by the parser, by reason.",
		}, []string{"reason"}),
		pointsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "points_written_total",
			Help: "Price points committed to storage.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "batches_flushed_total",
			Help: "Successful batch writes.",
		}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "runs_total",
			Help: "Import runs, by outcome.",
		}, []string{"outcome"}),
		importSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "run_duration_seconds",
			Help:    "Wall time of import runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
		queries: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "query", Name: "duration_seconds",
			Help:    "Series query latency, by kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		queryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "query", Name: "errors_total",
			Help: "Failed series queries, by kind and cause.",
		}, []string{"kind", "cause"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "range_cache", Name: "hits_total",
			Help: "Range lookups served from memory.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "range_cache", Name: "misses_total",
			Help: "Range lookups that went to storage.",
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.linesSkipped, c.pointsWritten, c.batches, c.imports, c.importSecs,
		c.queries, c.queryErrors, c.cacheHits, c.cacheMisses,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) LineSkipped(reason string) { c.linesSkipped.WithLabelValues(reason).Inc() }

func (c *Collector) BatchFlushed(size int) {
	c.batches.Inc()
	c.pointsWritten.Add(float64(size))
}

func (c *Collector) ImportFinished(sum *models.ImportSummary) {
	outcome := "success"
	if sum.Failed() {
		outcome = "failure"
	}
	c.imports.WithLabelValues(outcome).Inc()
	if !sum.FinishedAt.IsZero() {
		c.importSecs.Observe(sum.FinishedAt.Sub(sum.StartedAt).Seconds())
	}
}

func (c *Collector) ObserveQuery(kind string, d time.Duration, err error) {
	c.queries.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		c.queryErrors.WithLabelValues(kind, cause(err)).Inc()
	}
}

func cause(err error) string {
	switch {
	case errors.Is(err, aggregate.ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(err, limits.ErrRangeTooLarge):
		return "range_too_large"
	case errors.Is(err, aggregate.ErrStorageRead):
		return "storage"
	default:
		return "other"
	}
}

func (c *Collector) CacheHit()  { c.cacheHits.Inc() }
func (c *Collector) CacheMiss() { c.cacheMisses.Inc() }
