// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the pipeline.
//
// Backend is the narrow interface concrete systems implement (see the
// prompush and datadog subpackages). Recorder binds a backend to one job and
// is passed explicitly to the components that record; a nil *Recorder is a
// valid no-op, so metrics are always safe to call.
package metrics

import (
	"sync"
	"time"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Metric names.
const (
	StepTotal      = "etl_step_total"
	StepDuration   = "etl_step_duration_seconds"
	RecordsTotal   = "etl_records_total"
	BatchesTotal   = "etl_batches_total"
	FallbacksTotal = "etl_fallbacks_total"
)

// Record kinds counted under RecordsTotal.
const (
	KindRead       = "read"
	KindSkipped    = "skipped"
	KindDuplicates = "duplicates"
	KindOutliers   = "outliers"
	KindFilled     = "filled"
	KindAttempted  = "attempted"
	KindInserted   = "inserted"
	KindRejected   = "rejected"
)

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }

// Recorder records pipeline metrics for one job.
type Recorder struct {
	job     string
	backend Backend

	flushOnce sync.Once
	flushErr  error
}

// NewRecorder binds b to job. A nil backend records nothing.
func NewRecorder(job string, b Backend) *Recorder {
	if b == nil {
		b = Nop{}
	}
	return &Recorder{job: job, backend: b}
}

// Step measures latency and success/failure of one pipeline step.
func (r *Recorder) Step(step string, err error, d time.Duration) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": r.job, "step": step, "status": status}
	r.backend.IncCounter(StepTotal, 1, lbls)
	r.backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// Records increments the record counter for kind. Non-positive deltas are
// ignored.
func (r *Recorder) Records(kind string, delta int) {
	if r == nil || delta <= 0 {
		return
	}
	r.backend.IncCounter(RecordsTotal, float64(delta), Labels{"job": r.job, "kind": kind})
}

// Batches increments the chunk counter.
func (r *Recorder) Batches(delta int) {
	if r == nil || delta <= 0 {
		return
	}
	r.backend.IncCounter(BatchesTotal, float64(delta), Labels{"job": r.job})
}

// Fallback counts a file that was re-read with the whole-file reader.
func (r *Recorder) Fallback() {
	if r == nil {
		return
	}
	r.backend.IncCounter(FallbacksTotal, 1, Labels{"job": r.job})
}

// Flush flushes the backend once; later calls return the first result.
func (r *Recorder) Flush() error {
	if r == nil {
		return nil
	}
	r.flushOnce.Do(func() { r.flushErr = r.backend.Flush() })
	return r.flushErr
}
