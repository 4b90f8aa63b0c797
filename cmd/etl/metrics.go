package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"docetl/internal/config"
	"docetl/internal/metrics"
	"docetl/internal/metrics/datadog"
	"docetl/internal/metrics/prompush"
)

const (
	defaultPushgatewayURL = "http://localhost:9091"
	defaultDatadogAddr    = "127.0.0.1:8125"
)

// metricsBackend builds the backend named by m. runID becomes a Pushgateway
// grouping label and a DogStatsD tag.
func metricsBackend(m config.Metrics, job, runID string) (metrics.Backend, error) {
	switch strings.ToLower(m.Backend) {
	case "", "none":
		return metrics.Nop{}, nil
	case "pushgateway":
		url := m.PushgatewayURL
		if url == "" {
			url = defaultPushgatewayURL
		}
		return prompush.NewBackend(prompush.Config{
			GatewayURL: url,
			Job:        job,
			Grouping:   map[string]string{"run_id": runID},
			Retries:    2,
		})
	case "datadog":
		addr := m.DatadogAddr
		if addr == "" {
			addr = defaultDatadogAddr
		}
		tags := append([]string{"run_id:" + runID}, m.Tags...)
		return datadog.NewBackend(datadog.Config{Addr: addr, Namespace: m.Namespace, GlobalTags: tags})
	}
	return nil, fmt.Errorf("unknown metrics backend %q", m.Backend)
}

// newRecorder never fails: a backend that cannot be built is logged and
// replaced by the no-op one.
func newRecorder(cfg config.Config, runID string, lg *log.Logger) *metrics.Recorder {
	b, err := metricsBackend(cfg.Metrics, cfg.Job, runID)
	if err != nil {
		lg.Warn("metrics disabled", "backend", cfg.Metrics.Backend, "err", err)
		b = metrics.Nop{}
	} else if cfg.Metrics.Backend != "" && cfg.Metrics.Backend != "none" {
		lg.Info("metrics enabled", "backend", cfg.Metrics.Backend, "job", cfg.Job)
	}
	return metrics.NewRecorder(cfg.Job, b)
}
