package etl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"docetl/internal/config"
	"docetl/internal/transformer"
	"docetl/pkg/records"
)

func TestCatalog_Files(t *testing.T) {
	t.Parallel()
	src := config.Source{
		Kind:  "files",
		Rules: config.Default().Source.Rules,
		Files: []config.File{
			{Path: "data/spotify_playlists.csv"},
			{Path: "data/extra.csv", Kind: "track"},
			{Path: "data/other.csv", Collection: "misc"},
		},
	}
	cat, err := Catalog(src)
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	ds, err := cat.Datasets(context.Background())
	if err != nil {
		t.Fatalf("Datasets: %v", err)
	}
	want := []struct {
		kind records.Kind
		coll string
	}{
		{records.KindPlaylist, "playlists"},
		{records.KindTrack, "tracks"},
		{records.KindGeneric, "misc"},
	}
	for i, w := range want {
		if ds[i].Kind != w.kind || ds[i].Collection != w.coll {
			t.Errorf("ds[%d]=%+v want %v/%s", i, ds[i], w.kind, w.coll)
		}
	}
}

func TestCatalog_Dir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, n := range []string{"tracks.csv", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("a\n1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cat, err := Catalog(config.Source{Kind: "dir", Dir: dir, Rules: config.Default().Source.Rules})
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	ds, err := cat.Datasets(context.Background())
	if err != nil || len(ds) != 1 || ds[0].Kind != records.KindTrack {
		t.Fatalf("ds=%+v err=%v", ds, err)
	}
}

func TestCatalog_Errors(t *testing.T) {
	t.Parallel()
	cases := []config.Source{
		{Kind: "ftp"},
		{Kind: "dir", Rules: []config.Rule{{Contains: "x", Kind: "album"}}},
		{Kind: "files", Files: []config.File{{Path: "a.csv", Kind: "album"}}},
		{Kind: "s3"},
	}
	for _, src := range cases {
		if _, err := Catalog(src); err == nil {
			t.Errorf("Catalog(%+v): expected error", src)
		}
	}
}

func TestIndexes(t *testing.T) {
	t.Parallel()
	s := config.Storage{Indexes: map[string][]config.Index{
		"tracks": {{Keys: []string{"album_name"}}},
		"genres": {{Keys: []string{"id"}, Unique: true}},
	}}
	got := Indexes(s)
	if len(got["tracks"]) != 4 || len(got["playlists"]) != 2 || len(got["genres"]) != 1 {
		t.Fatalf("indexes=%v", got)
	}
	s.NoDefaultIndexes = true
	got = Indexes(s)
	if len(got["tracks"]) != 1 || len(got["playlists"]) != 0 {
		t.Fatalf("indexes=%v", got)
	}
}

func TestCSVOptions(t *testing.T) {
	t.Parallel()
	opt := CSVOptions(config.Parser{
		Delimiter:    "\t",
		ChunkSize:    10,
		Replacements: []config.Replacement{{From: "\\\"", To: "\"\""}},
	})
	if opt.Comma != '\t' || opt.ChunkSize != 10 || len(opt.Replacements) != 1 {
		t.Fatalf("opt=%+v", opt)
	}
	if CSVOptions(config.Parser{}).Comma != 0 {
		t.Fatal("empty delimiter must mean detect")
	}
}

func TestOutcome(t *testing.T) {
	t.Parallel()
	done := FileReport{State: StateCompleted}
	failed := FileReport{State: StateAborted}
	tests := []struct {
		files       []FileReport
		countFailed bool
		want        Outcome
	}{
		{nil, false, OutcomeFailure},
		{[]FileReport{done, done}, false, OutcomeSuccess},
		{[]FileReport{done, failed}, false, OutcomePartial},
		{[]FileReport{failed}, false, OutcomeFailure},
		{[]FileReport{done}, true, OutcomePartial},
	}
	for i, tt := range tests {
		if got := outcomeOf(tt.files, tt.countFailed); got != tt.want {
			t.Errorf("case %d: got %v want %v", i, got, tt.want)
		}
	}
	if OutcomeFailure.ExitCode() != 1 || OutcomePartial.String() != "partial" {
		t.Fatal("outcome mapping")
	}
}

func TestTransformOptions_DefaultsFillEveryNumericColumn(t *testing.T) {
	t.Parallel()
	b := records.RawBatch{
		Header: []string{"id", "track_name", "artist_name", "popularity"},
		Rows: []records.RawRow{
			{"1", "a", "x", "10"},
			{"", "b", "y", "20"},
			{"3", "c", "z", ""},
		},
		Lines: []int{2, 3, 4},
	}
	res := transformer.Tracks(b, TransformOptions(config.Default().Transform))

	numeric := 0
	for _, col := range res.Columns {
		if !col.Type.Numeric() {
			continue
		}
		numeric++
		for i, rec := range res.Records {
			if rec[col.Name] == nil {
				t.Fatalf("numeric column %q row %d is nil (type %s)", col.Name, i, col.Type)
			}
		}
	}
	if numeric < 2 {
		t.Fatalf("columns=%+v, want id and popularity numeric", res.Columns)
	}
	if got := res.Records[1]["id"]; got != 2.0 {
		t.Fatalf("filled id = %v, want median 2", got)
	}
}
