package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_LevelAndFormat(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l, closeFn, err := New(Options{Level: "warn", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closeFn()

	l.Info("hidden")
	l.Warn("shown", "file", "tracks.csv")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not json: %v (%q)", err, lines[0])
	}
	if entry["msg"] != "shown" || entry["file"] != "tracks.csv" {
		t.Fatalf("entry=%v", entry)
	}
}

func TestNew_FileTee(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "etl.log")
	var buf bytes.Buffer
	l, closeFn, err := New(Options{Format: "logfmt", Writer: &buf, File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("loaded", "collection", "playlists")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, got := range []string{buf.String(), string(b)} {
		if !strings.Contains(got, "collection=playlists") {
			t.Errorf("missing entry in %q", got)
		}
	}
}

func TestNew_BadOptions(t *testing.T) {
	t.Parallel()
	cases := []Options{
		{Level: "loud"},
		{Format: "xml"},
		{File: filepath.Join(t.TempDir(), "missing", "dir", "x.log")},
	}
	for _, opt := range cases {
		if _, _, err := New(opt); err == nil {
			t.Errorf("New(%+v): expected error", opt)
		}
	}
}
