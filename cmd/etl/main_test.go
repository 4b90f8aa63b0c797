package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docetl/internal/config"
	"docetl/internal/etl"
	"docetl/internal/logging"
	"docetl/internal/metrics"
	"docetl/internal/metrics/datadog"
	"docetl/internal/metrics/prompush"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestMetricsBackend(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		backend string
		check   func(metrics.Backend) bool
		wantErr bool
	}{
		{"empty", "", func(b metrics.Backend) bool { _, ok := b.(metrics.Nop); return ok }, false},
		{"none", "none", func(b metrics.Backend) bool { _, ok := b.(metrics.Nop); return ok }, false},
		{"pushgateway", "pushgateway", func(b metrics.Backend) bool { _, ok := b.(*prompush.Backend); return ok }, false},
		{"datadog", "datadog", func(b metrics.Backend) bool { _, ok := b.(*datadog.Backend); return ok }, false},
		{"unknown", "graphite", nil, true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b, err := metricsBackend(config.Metrics{Backend: tc.backend}, "job", "run-1")
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.backend)
				}
				return
			}
			if err != nil {
				t.Fatalf("metricsBackend(%q): %v", tc.backend, err)
			}
			if !tc.check(b) {
				t.Fatalf("metricsBackend(%q) = %T", tc.backend, b)
			}
		})
	}
}

func TestExecute_Dir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "spotify_playlists.csv", "id,name,followers\np1,Chill,10\np2,,20\np1,Chill,10\n")
	writeFile(t, dir, "spotify_tracks.csv", "id;track_name;artist_name;popularity\nt1;Song A;Artist A;50\nt2;Song B;Artist B;70\n")
	writeFile(t, dir, "notes.txt", "ignored")

	cfg := config.Default()
	cfg.Source.Dir = dir
	cfg.Storage.Kind = "memory"
	cfg.Storage.DSN = ""

	sum, err := execute(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if sum.Outcome != etl.OutcomeSuccess {
		t.Fatalf("outcome=%v files=%+v", sum.Outcome, sum.Files)
	}
	if len(sum.Files) != 2 {
		t.Fatalf("files=%d, want 2", len(sum.Files))
	}
	if sum.Collections["playlists"] != 2 || sum.Collections["tracks"] != 2 {
		t.Fatalf("collections=%v", sum.Collections)
	}

	var buf bytes.Buffer
	printSummary(&buf, sum)
	out := buf.String()
	for _, want := range []string{"spotify_playlists.csv", "playlists: 2 documents", "outcome: success"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestExecute_UnknownStore(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Source.Dir = t.TempDir()
	cfg.Storage.Kind = "no-such-store"

	sum, err := execute(context.Background(), cfg, logging.Discard())
	if err == nil {
		t.Fatal("expected error")
	}
	if sum.Outcome != etl.OutcomeFailure || sum.Outcome.ExitCode() != 1 {
		t.Fatalf("outcome=%v", sum.Outcome)
	}
}

func TestApp_Validate(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	good := writeFile(t, dir, "good.toml", "[storage]\nkind = \"memory\"\n")
	bad := writeFile(t, dir, "bad.toml", "[storage]\nkind = \"memory\"\n\n[parser]\nchunk_size = -1\n")

	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer, app.ErrWriter = &out, &errOut
	if err := app.Run(context.Background(), []string{"docetl", "validate", "-c", good}); err != nil {
		t.Fatalf("validate good: %v", err)
	}
	if !strings.Contains(out.String(), "configuration is valid") {
		t.Fatalf("stdout=%q", out.String())
	}

	app = newApp()
	errOut.Reset()
	app.Writer, app.ErrWriter = &out, &errOut
	err := app.Run(context.Background(), []string{"docetl", "validate", "-c", bad})
	if !errors.Is(err, errInvalidConfig) {
		t.Fatalf("validate bad: err=%v", err)
	}
	if !strings.Contains(errOut.String(), "parser.chunk_size") {
		t.Fatalf("stderr=%q", errOut.String())
	}
}

func TestApp_Sniff(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "tracks.csv", "id;track_name;popularity\nt1;Song A;50\nt2;Song B;70\n")

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	if err := app.Run(context.Background(), []string{"docetl", "sniff", "--rows", "1", p}); err != nil {
		t.Fatalf("sniff: %v", err)
	}
	got := out.String()
	for _, want := range []string{"delimiter: ';'", "id, track_name, popularity", "t1 | Song A | 50"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Song B") {
		t.Fatalf("sample not bounded by --rows:\n%s", got)
	}
}
