package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocal_ReopensForFallback(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "spotify_playlists.csv")
	const payload = "id,name\np1,Chill\n"
	if err := os.WriteFile(p, []byte(payload), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	src := NewLocal(p)
	if src.Path() != p {
		t.Fatalf("Path() = %q", src.Path())
	}

	for i := 0; i < 2; i++ {
		rc, err := src.Open(context.Background())
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		b, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil || string(b) != payload {
			t.Fatalf("read #%d = %q, %v", i+1, b, err)
		}
	}
}

func TestLocal_OpenErrors(t *testing.T) {
	t.Parallel()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	existing := filepath.Join(t.TempDir(), "tracks.csv")
	if err := os.WriteFile(existing, []byte("id\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name   string
		path   string
		ctx    context.Context
		wantIs error
		substr string
	}{
		{"missing file", filepath.Join(t.TempDir(), "missing.csv"), context.Background(), os.ErrNotExist, "open dataset"},
		{"canceled context", existing, canceled, context.Canceled, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rc, err := NewLocal(tt.path).Open(tt.ctx)
			if rc != nil {
				_ = rc.Close()
				t.Fatal("got a reader on error")
			}
			if !errors.Is(err, tt.wantIs) {
				t.Fatalf("err = %v, want %v", err, tt.wantIs)
			}
			if tt.substr != "" && !strings.Contains(err.Error(), tt.substr) {
				t.Fatalf("err %q lacks %q", err, tt.substr)
			}
		})
	}
}
