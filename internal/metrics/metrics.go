// Package metrics exposes ambient Prometheus counters and histograms for
// the gateway's request, streaming, and cost surfaces (SPEC_FULL.md §12:
// "standard practice for every service in this corpus that has a
// /health"). Not itself a spec'd module — it observes the pipeline from
// the outside.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "llmgate"

var (
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound chat requests in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model", "path", "status"}, // path: passthrough|adapter
	)

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total inbound chat requests",
		},
		[]string{"provider", "model", "path", "status"},
	)

	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens consumed, by class",
		},
		[]string{"provider", "model", "class"}, // class: input|output|cache_write|cache_read
	)

	costTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_total_usd",
			Help:      "Total cost in USD",
		},
		[]string{"provider", "model"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently open streaming responses",
		},
	)

	snifferDroppedChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_sniffer_dropped_chunks_total",
			Help:      "Chunks dropped by the usage sniffer tee under backpressure",
		},
		[]string{"kind"},
	)

	allCollectors = []prometheus.Collector{
		requestDuration, requestsTotal, tokensTotal, costTotal, streamsActive, snifferDroppedChunks,
	}
)

// Registry bundles the gateway's collectors behind a dedicated Prometheus
// registry, rather than the global default, so tests can build isolated
// instances without collector-already-registered panics.
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry builds and registers every gateway metric plus the standard
// Go runtime/process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	for _, c := range allCollectors {
		reg.MustRegister(c)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Registry{reg: reg}
}

// Handler returns the http.Handler for GET /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordRequest records one completed chat request (spec §4.H outcome).
func RecordRequest(provider, model, path, status string, durationSeconds float64) {
	requestDuration.WithLabelValues(provider, model, path, status).Observe(durationSeconds)
	requestsTotal.WithLabelValues(provider, model, path, status).Inc()
}

// RecordTokens records the per-class token counts from one usage record.
func RecordTokens(provider, model string, input, output, cacheWrite, cacheRead int) {
	if input > 0 {
		tokensTotal.WithLabelValues(provider, model, "input").Add(float64(input))
	}
	if output > 0 {
		tokensTotal.WithLabelValues(provider, model, "output").Add(float64(output))
	}
	if cacheWrite > 0 {
		tokensTotal.WithLabelValues(provider, model, "cache_write").Add(float64(cacheWrite))
	}
	if cacheRead > 0 {
		tokensTotal.WithLabelValues(provider, model, "cache_read").Add(float64(cacheRead))
	}
}

// RecordCost records the total cost of one usage record.
func RecordCost(provider, model string, cost float64) {
	if cost > 0 {
		costTotal.WithLabelValues(provider, model).Add(cost)
	}
}

// StreamOpened/StreamClosed track concurrently open streaming responses.
func StreamOpened() { streamsActive.Inc() }
func StreamClosed() { streamsActive.Dec() }

// RecordSnifferDrop records a usage-sniffer chunk dropped under
// backpressure (spec §4.G point 3: the tee "must not block").
func RecordSnifferDrop(kind string) {
	snifferDroppedChunks.WithLabelValues(kind).Inc()
}
