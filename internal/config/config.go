// Package config defines the configuration model of the ETL job. A job file
// is TOML or JSON (chosen by extension) layered over Default(), and a few
// environment variables override the file so that credentials need not be
// written to disk.
//
// Example (TOML, trimmed):
//
//	job = "spotify"
//
//	[source]
//	kind = "dir"
//	dir  = "data/spotify"
//
//	[[source.rules]]
//	contains = "playlist"
//	kind     = "playlist"
//
//	[storage]
//	kind     = "mongo"
//	database = "spotify_music_db"
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the top-level job configuration.
type Config struct {
	// Job names the run in logs and metrics.
	Job       string    `toml:"job" json:"job"`
	Source    Source    `toml:"source" json:"source"`
	Parser    Parser    `toml:"parser" json:"parser"`
	Transform Transform `toml:"transform" json:"transform"`
	Storage   Storage   `toml:"storage" json:"storage"`
	Runtime   Runtime   `toml:"runtime" json:"runtime"`
	Metrics   Metrics   `toml:"metrics" json:"metrics"`
	Log       Log       `toml:"log" json:"log"`
}

// Source says where the delimited files come from.
type Source struct {
	// Kind is dir, manifest, files or s3.
	Kind string `toml:"kind" json:"kind"`
	// Dir is scanned for files with extension Ext (kind=dir).
	Dir string `toml:"dir" json:"dir"`
	Ext string `toml:"ext" json:"ext"`
	// Manifest is a list file of path[,kind[,collection]] lines (kind=manifest).
	Manifest string `toml:"manifest" json:"manifest"`
	// Files are listed explicitly (kind=files).
	Files []File `toml:"files" json:"files"`
	S3    S3     `toml:"s3" json:"s3"`
	// Rules tag files whose name contains a substring, first match wins.
	Rules []Rule `toml:"rules" json:"rules"`
}

// File is one explicitly listed dataset. Empty Kind defers to the rules.
type File struct {
	Path       string `toml:"path" json:"path"`
	Kind       string `toml:"kind" json:"kind"`
	Collection string `toml:"collection" json:"collection"`
}

// Rule maps a file-name substring to a dataset kind and collection.
type Rule struct {
	Contains   string `toml:"contains" json:"contains"`
	Kind       string `toml:"kind" json:"kind"`
	Collection string `toml:"collection" json:"collection"`
}

// S3 configures an S3-compatible bucket prefix (kind=s3).
type S3 struct {
	Endpoint        string `toml:"endpoint" json:"endpoint"`
	AccessKeyID     string `toml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key" json:"secret_access_key"`
	Region          string `toml:"region" json:"region"`
	UseSSL          bool   `toml:"use_ssl" json:"use_ssl"`
	Bucket          string `toml:"bucket" json:"bucket"`
	Prefix          string `toml:"prefix" json:"prefix"`
}

// Parser configures the delimited reader.
type Parser struct {
	// Delimiter is a single character; empty means detect per file.
	Delimiter    string            `toml:"delimiter" json:"delimiter"`
	LazyQuotes   bool              `toml:"lazy_quotes" json:"lazy_quotes"`
	TrimSpace    bool              `toml:"trim_space" json:"trim_space"`
	ChunkSize    int               `toml:"chunk_size" json:"chunk_size"`
	SniffRows    int               `toml:"sniff_rows" json:"sniff_rows"`
	HeaderMap    map[string]string `toml:"header_map" json:"header_map"`
	Replacements []Replacement     `toml:"replacements" json:"replacements"`
}

// Replacement rewrites a broken byte sequence before parsing.
type Replacement struct {
	From string `toml:"from" json:"from"`
	To   string `toml:"to" json:"to"`
}

// Transform tunes the cleaning rules.
type Transform struct {
	// OutlierExempt lists numeric columns never treated for outliers. Empty
	// by default: every numeric track column is fenced and filled.
	OutlierExempt []string `toml:"outlier_exempt" json:"outlier_exempt"`
	// TimeLayouts replaces the default date layouts when set.
	TimeLayouts []string `toml:"time_layouts" json:"time_layouts"`
}

// Storage selects the document store and how documents are written.
type Storage struct {
	// Kind is a registered backend: mongo, postgres, mysql, mssql, sqlite or memory.
	Kind     string `toml:"kind" json:"kind"`
	DSN      string `toml:"dsn" json:"dsn"`
	Database string `toml:"database" json:"database"`
	// SubBatchSize caps documents per insert call.
	SubBatchSize int `toml:"sub_batch_size" json:"sub_batch_size"`
	// WritesPerSecond throttles document writes; 0 disables.
	WritesPerSecond float64 `toml:"writes_per_second" json:"writes_per_second"`
	// Indexes per collection, added to the built-in ones.
	Indexes map[string][]Index `toml:"indexes" json:"indexes"`
	// NoDefaultIndexes drops the built-in playlist and track indexes.
	NoDefaultIndexes bool `toml:"no_default_indexes" json:"no_default_indexes"`
}

// Index is one configured index.
type Index struct {
	Name   string   `toml:"name" json:"name"`
	Keys   []string `toml:"keys" json:"keys"`
	Unique bool     `toml:"unique" json:"unique"`
}

// Runtime controls the chunk pipeline.
type Runtime struct {
	// Pipelined overlaps reading+transforming the next chunk with loading
	// the current one.
	Pipelined bool `toml:"pipelined" json:"pipelined"`
	// QueueDepth bounds transformed chunks waiting to load (1 or 2).
	QueueDepth int `toml:"queue_depth" json:"queue_depth"`
}

// Metrics selects a metrics backend.
type Metrics struct {
	// Backend is none, pushgateway or datadog.
	Backend        string   `toml:"backend" json:"backend"`
	PushgatewayURL string   `toml:"pushgateway_url" json:"pushgateway_url"`
	DatadogAddr    string   `toml:"datadog_addr" json:"datadog_addr"`
	Namespace      string   `toml:"namespace" json:"namespace"`
	Tags           []string `toml:"tags" json:"tags"`
}

// Log configures the logger.
type Log struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
	File   string `toml:"file" json:"file"`
}

// Default returns the configuration used when a file leaves a field unset.
func Default() Config {
	return Config{
		Job: "spotify_etl",
		Source: Source{
			Kind: "dir",
			Dir:  "data",
			Ext:  ".csv",
			Rules: []Rule{
				{Contains: "playlist", Kind: "playlist", Collection: "playlists"},
				{Contains: "track", Kind: "track", Collection: "tracks"},
			},
		},
		Parser: Parser{
			ChunkSize: 100_000,
			SniffRows: 5,
		},
		Storage: Storage{
			Kind:         "mongo",
			Database:     "spotify_music_db",
			SubBatchSize: 1000,
		},
		Runtime: Runtime{QueueDepth: 1},
		Metrics: Metrics{Backend: "none"},
		Log:     Log{Level: "info", Format: "text"},
	}
}

// Load reads path over Default() and applies environment overrides. An
// empty path yields the defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(data, filepath.Ext(path), &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode unmarshals data onto cfg. ext selects the format: ".json" is JSON,
// anything else TOML. Unknown keys are errors in both.
func Decode(data []byte, ext string, cfg *Config) error {
	if strings.EqualFold(ext, ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// Environment overrides.
const (
	EnvStorageKind    = "ETL_STORAGE_KIND"
	EnvStorageDSN     = "ETL_STORAGE_DSN"
	EnvMongoURI       = "MONGODB_CONNECTION_STRING"
	EnvChunkSize      = "ETL_CHUNK_SIZE"
	EnvSubBatchSize   = "ETL_SUB_BATCH_SIZE"
	EnvMetricsBackend = "METRICS_BACKEND"
	EnvPushgatewayURL = "PUSHGATEWAY_URL"
	EnvLogLevel       = "ETL_LOG_LEVEL"
)

// ApplyEnv overrides cfg from getenv. ETL_STORAGE_DSN wins over
// MONGODB_CONNECTION_STRING; the latter only applies to the mongo backend.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv(EnvStorageKind); v != "" {
		cfg.Storage.Kind = v
	}
	switch {
	case getenv(EnvStorageDSN) != "":
		cfg.Storage.DSN = getenv(EnvStorageDSN)
	case cfg.Storage.Kind == "mongo" && getenv(EnvMongoURI) != "":
		cfg.Storage.DSN = getenv(EnvMongoURI)
	}
	if err := intEnv(getenv, EnvChunkSize, &cfg.Parser.ChunkSize); err != nil {
		return err
	}
	if err := intEnv(getenv, EnvSubBatchSize, &cfg.Storage.SubBatchSize); err != nil {
		return err
	}
	if v := getenv(EnvMetricsBackend); v != "" {
		cfg.Metrics.Backend = v
	}
	if v := getenv(EnvPushgatewayURL); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

func intEnv(getenv func(string) string, k string, dst *int) error {
	v := getenv(k)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	*dst = n
	return nil
}
