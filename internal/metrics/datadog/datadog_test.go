package datadog

import (
	"reflect"
	"testing"

	"docetl/internal/metrics"
)

func TestLabelsToTags(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   metrics.Labels
		want []string
	}{
		{nil, nil},
		{metrics.Labels{}, nil},
		{metrics.Labels{"kind": "read", "job": "spotify"}, []string{"job:spotify", "kind:read"}},
	}
	for _, tt := range tests {
		if got := labelsToTags(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("labelsToTags(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewBackend(t *testing.T) {
	t.Parallel()
	if _, err := NewBackend(Config{}); err == nil {
		t.Fatal("expected error for empty Addr")
	}

	// UDP needs no listener.
	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", Namespace: "docetl.", GlobalTags: []string{"env:test"}})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	b.IncCounter(metrics.RecordsTotal, 3, metrics.Labels{"kind": metrics.KindRead})
	b.ObserveHistogram(metrics.StepDuration, 0.25, metrics.Labels{"step": "load"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestZeroBackendIsNoop(t *testing.T) {
	t.Parallel()
	var b Backend
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}
