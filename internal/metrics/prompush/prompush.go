// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// A batch job has no scrape endpoint, so the collected series are pushed to
// a Pushgateway on Flush. The Pushgateway "job" grouping key carries the
// pipeline job; extra grouping labels (typically the run id) keep runs
// apart.
package prompush

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"docetl/internal/metrics"
)

// Config holds Pushgateway backend configuration.
type Config struct {
	// GatewayURL is the Pushgateway base URL, e.g. http://pushgateway:9091.
	GatewayURL string
	// Job is the Pushgateway "job" group. Empty means "docetl".
	Job string
	// Grouping adds grouping labels to the push URL.
	Grouping map[string]string
	// Retries is how many times a push failing with 429, 5xx or a transport
	// error is repeated.
	Retries int
	// RetryWait is the first backoff between pushes; it doubles up to eight
	// times its value. Zero keeps the client's default (1s).
	RetryWait time.Duration
}

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string
	jobName    string
	grouping   map[string]string
	reg        *prometheus.Registry
	client     *http.Client

	stepCounter   *prometheus.CounterVec // etl_step_total
	stepDuration  *prometheus.SummaryVec // etl_step_duration_seconds
	recordCounter *prometheus.CounterVec // etl_records_total
	batchCounter  prometheus.Counter     // etl_batches_total
	fallbacks     prometheus.Counter     // etl_fallbacks_total
}

var _ metrics.Backend = (*Backend)(nil)

// NewBackend constructs a Prometheus Pushgateway backend.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if cfg.Job == "" {
		cfg.Job = "docetl"
	}

	b := &Backend{
		gatewayURL: cfg.GatewayURL,
		jobName:    cfg.Job,
		grouping:   cfg.Grouping,
		reg:        prometheus.NewRegistry(),
		client:     pushClient(cfg),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline step executions by step and status.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDuration,
			Help:       "Duration of pipeline steps in seconds by step and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"step", "status"}),
		recordCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Record counts by kind (read, skipped, duplicates, inserted, rejected, ...).",
		}, []string{"kind"}),
		batchCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Chunks processed by this job.",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.FallbacksTotal,
			Help: "Files re-read with the whole-file fallback reader.",
		}),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter":   b.stepCounter,
		"step summary":   b.stepDuration,
		"record counter": b.recordCounter,
		"batch counter":  b.batchCounter,
		"fallbacks":      b.fallbacks,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

// IncCounter routes known metric names to their collectors; unknown names
// are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter != nil {
			b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
		}
	case metrics.RecordsTotal:
		if b.recordCounter != nil {
			b.recordCounter.WithLabelValues(labels["kind"]).Add(delta)
		}
	case metrics.BatchesTotal:
		if b.batchCounter != nil {
			b.batchCounter.Add(delta)
		}
	case metrics.FallbacksTotal:
		if b.fallbacks != nil {
			b.fallbacks.Add(delta)
		}
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// pushClient retries failed pushes with exponential backoff. The request
// body is buffered by the client, so every attempt resends the full payload.
func pushClient(cfg Config) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = max(cfg.Retries, 0)
	if cfg.RetryWait > 0 {
		rc.RetryWaitMin = cfg.RetryWait
		rc.RetryWaitMax = 8 * cfg.RetryWait
	}
	rc.Logger = nil
	return rc.StandardClient()
}

// Flush pushes the current registry to the Pushgateway, replacing the
// group's previous series.
func (b *Backend) Flush() error {
	p := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg).Client(b.client)
	for k, v := range b.grouping {
		p = p.Grouping(k, v)
	}
	if err := p.Push(); err != nil {
		return fmt.Errorf("prompush: push to %s: %w", b.gatewayURL, err)
	}
	return nil
}
