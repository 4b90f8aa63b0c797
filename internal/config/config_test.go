package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestDefault(t *testing.T) {
	t.Parallel()
	d := Default()
	if d.Parser.ChunkSize != 100_000 || d.Storage.SubBatchSize != 1000 {
		t.Fatalf("sizes: %+v %+v", d.Parser, d.Storage)
	}
	if d.Storage.Kind != "mongo" || d.Storage.Database != "spotify_music_db" {
		t.Fatalf("storage: %+v", d.Storage)
	}
	if len(d.Source.Rules) != 2 {
		t.Fatalf("rules: %+v", d.Source.Rules)
	}
	if len(d.Transform.OutlierExempt) != 0 {
		t.Fatalf("outlier exemptions are opt-in: %v", d.Transform.OutlierExempt)
	}
}

func TestDecode_TOMLOverDefaults(t *testing.T) {
	t.Parallel()
	data := `
job = "spotify"

[source]
kind = "files"

[[source.files]]
path = "data/playlists.csv"
kind = "playlist"

[parser]
delimiter = ";"
chunk_size = 5000

[parser.header_map]
"Track Name" = "track_name"

[storage]
kind = "postgres"
dsn = "postgres://localhost/db"

[[storage.indexes.tracks]]
keys = ["album_name"]
`
	cfg := Default()
	if err := Decode([]byte(data), ".toml", &cfg); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Job != "spotify" || cfg.Source.Kind != "files" || len(cfg.Source.Files) != 1 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Parser.Delimiter != ";" || cfg.Parser.ChunkSize != 5000 || cfg.Parser.HeaderMap["Track Name"] != "track_name" {
		t.Fatalf("parser=%+v", cfg.Parser)
	}
	// Untouched defaults survive.
	if cfg.Storage.SubBatchSize != 1000 || cfg.Parser.SniffRows != 5 {
		t.Fatalf("defaults lost: %+v %+v", cfg.Storage, cfg.Parser)
	}
	if got := cfg.Storage.Indexes["tracks"]; len(got) != 1 || got[0].Keys[0] != "album_name" {
		t.Fatalf("indexes=%+v", cfg.Storage.Indexes)
	}
}

func TestDecode_JSON(t *testing.T) {
	t.Parallel()
	cfg := Default()
	data := `{"job":"j","storage":{"kind":"sqlite","dsn":"file:x.db"},"runtime":{"pipelined":true,"queue_depth":2}}`
	if err := Decode([]byte(data), ".JSON", &cfg); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Storage.Kind != "sqlite" || !cfg.Runtime.Pipelined || cfg.Runtime.QueueDepth != 2 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestDecode_UnknownKeys(t *testing.T) {
	t.Parallel()
	cases := []struct{ ext, data string }{
		{".toml", "jobb = \"x\"\n"},
		{".json", `{"jobb":"x"}`},
	}
	for _, tc := range cases {
		cfg := Default()
		if err := Decode([]byte(tc.data), tc.ext, &cfg); err == nil {
			t.Errorf("%s: expected unknown-key error", tc.ext)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		EnvMongoURI:       "mongodb+srv://user:pw@cluster/",
		EnvChunkSize:      "2500",
		EnvSubBatchSize:   "250",
		EnvMetricsBackend: "pushgateway",
		EnvPushgatewayURL: "http://gw:9091",
	}
	cfg := Default()
	if err := ApplyEnv(&cfg, func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Storage.DSN != env[EnvMongoURI] {
		t.Fatalf("dsn=%q", cfg.Storage.DSN)
	}
	if cfg.Parser.ChunkSize != 2500 || cfg.Storage.SubBatchSize != 250 {
		t.Fatalf("sizes=%d/%d", cfg.Parser.ChunkSize, cfg.Storage.SubBatchSize)
	}
	if cfg.Metrics.Backend != "pushgateway" || cfg.Metrics.PushgatewayURL != "http://gw:9091" {
		t.Fatalf("metrics=%+v", cfg.Metrics)
	}

	// The generic DSN wins, and the mongo URI is ignored for other kinds.
	env[EnvStorageKind] = "postgres"
	cfg = Default()
	_ = ApplyEnv(&cfg, func(k string) string { return env[k] })
	if cfg.Storage.DSN != "" {
		t.Fatalf("mongo URI applied to postgres: %q", cfg.Storage.DSN)
	}
	env[EnvStorageDSN] = "postgres://x"
	_ = ApplyEnv(&cfg, func(k string) string { return env[k] })
	if cfg.Storage.DSN != "postgres://x" {
		t.Fatalf("dsn=%q", cfg.Storage.DSN)
	}

	bad := Default()
	if err := ApplyEnv(&bad, func(k string) string {
		if k == EnvChunkSize {
			return "lots"
		}
		return ""
	}); err == nil || !strings.Contains(err.Error(), EnvChunkSize) {
		t.Fatalf("err=%v", err)
	}
}

func TestLoad_File(t *testing.T) {
	p := writeFile(t, "job.toml", "job = \"from-file\"\n[storage]\nkind = \"memory\"\n")
	t.Setenv(EnvLogLevel, "debug")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Job != "from-file" || cfg.Storage.Kind != "memory" || cfg.Log.Level != "debug" {
		t.Fatalf("cfg=%+v", cfg)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDecode_ShippedConfig(t *testing.T) {
	t.Parallel()
	data, err := os.ReadFile(filepath.Join("..", "..", "configs", "spotify.toml"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	cfg := Default()
	if err := Decode(data, ".toml", &cfg); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Storage.Kind != "mongo" || cfg.Log.File != "etl_spotify.log" || len(cfg.Source.Rules) != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}
	// Only the missing connection string keeps it from validating.
	for _, iss := range Validate(cfg) {
		if iss.Severity == SeverityError && iss.Path != "storage.dsn" {
			t.Fatalf("unexpected issue: %v", iss)
		}
	}
}
