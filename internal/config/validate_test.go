package config

import "testing"

func hasIssue(issues []Issue, sev IssueSeverity, path string) bool {
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path {
			return true
		}
	}
	return false
}

func TestValidate(t *testing.T) {
	t.Parallel()

	withDSN := func(c Config) Config { c.Storage.DSN = "mongodb://localhost/db"; return c }

	tests := []struct {
		name     string
		mutate   func(*Config)
		severity IssueSeverity
		path     string
	}{
		{"empty job", func(c *Config) { c.Job = " " }, SeverityError, "job"},
		{"missing dsn", func(c *Config) { c.Storage.DSN = "" }, SeverityError, "storage.dsn"},
		{"memory store warns", func(c *Config) { c.Storage.Kind = "memory" }, SeverityWarning, "storage.kind"},
		{"unknown source", func(c *Config) { c.Source.Kind = "ftp" }, SeverityError, "source.kind"},
		{"dir without path", func(c *Config) { c.Source.Dir = "" }, SeverityError, "source.dir"},
		{"bad rule kind", func(c *Config) { c.Source.Rules[0].Kind = "album" }, SeverityError, "source.rules[0].kind"},
		{"files without entries", func(c *Config) { c.Source.Kind = "files" }, SeverityError, "source.files"},
		{"s3 without bucket", func(c *Config) { c.Source.Kind = "s3"; c.Source.S3.Endpoint = "http://minio:9000" }, SeverityError, "source.s3.bucket"},
		{"multi-char delimiter", func(c *Config) { c.Parser.Delimiter = ";;" }, SeverityError, "parser.delimiter"},
		{"quote delimiter", func(c *Config) { c.Parser.Delimiter = `"` }, SeverityError, "parser.delimiter"},
		{"zero sub-batch", func(c *Config) { c.Storage.SubBatchSize = 0 }, SeverityError, "storage.sub_batch_size"},
		{"queue depth", func(c *Config) { c.Runtime.Pipelined = true; c.Runtime.QueueDepth = 5 }, SeverityError, "runtime.queue_depth"},
		{"index without keys", func(c *Config) { c.Storage.Indexes = map[string][]Index{"tracks": {{}}} }, SeverityError, "storage.indexes.tracks[0].keys"},
		{"unknown metrics backend", func(c *Config) { c.Metrics.Backend = "graphite" }, SeverityWarning, "metrics.backend"},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }, SeverityError, "log.level"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := withDSN(Default())
			cfg.Source.Rules = append([]Rule(nil), cfg.Source.Rules...)
			tt.mutate(&cfg)
			issues := Validate(cfg)
			if !hasIssue(issues, tt.severity, tt.path) {
				t.Fatalf("want %s at %s, got %v", tt.severity, tt.path, issues)
			}
		})
	}
}

func TestValidate_DefaultsWithDSNAreClean(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Storage.DSN = "mongodb://localhost:27017"
	if issues := Validate(cfg); len(issues) != 0 {
		t.Fatalf("issues=%v", issues)
	}
	if HasErrors(nil) {
		t.Fatal("HasErrors(nil)")
	}
}
