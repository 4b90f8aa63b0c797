package config

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"docetl/pkg/records"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the
// config, e.g. "storage.dsn" or "source.rules[1].kind".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is error-severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate lints cfg without mutating it. Callers decide whether warnings
// are fatal.
func Validate(cfg Config) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, a ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(cfg.Job) == "" {
		add(SeverityError, "job", "job must not be empty; it labels logs and metrics")
	}
	validateSource(cfg.Source, add)
	validateParser(cfg.Parser, add)
	validateStorage(cfg.Storage, add)
	validateRuntime(cfg.Runtime, add)
	validateMetrics(cfg.Metrics, add)
	validateLog(cfg.Log, add)
	return issues
}

type addFunc func(sev IssueSeverity, path, format string, a ...any)

func validateSource(s Source, add addFunc) {
	switch s.Kind {
	case "dir":
		if strings.TrimSpace(s.Dir) == "" {
			add(SeverityError, "source.dir", "dir source requires a directory")
		}
	case "manifest":
		if strings.TrimSpace(s.Manifest) == "" {
			add(SeverityError, "source.manifest", "manifest source requires a list file")
		}
	case "files":
		if len(s.Files) == 0 {
			add(SeverityError, "source.files", "files source lists no files")
		}
		for i, f := range s.Files {
			if strings.TrimSpace(f.Path) == "" {
				add(SeverityError, fmt.Sprintf("source.files[%d].path", i), "path must not be empty")
			}
			if _, err := records.ParseKind(f.Kind); err != nil {
				add(SeverityError, fmt.Sprintf("source.files[%d].kind", i), "%v", err)
			}
		}
	case "s3":
		if s.S3.Endpoint == "" {
			add(SeverityError, "source.s3.endpoint", "s3 source requires an endpoint")
		}
		if s.S3.Bucket == "" {
			add(SeverityError, "source.s3.bucket", "s3 source requires a bucket")
		}
		if s.S3.AccessKeyID == "" || s.S3.SecretAccessKey == "" {
			add(SeverityWarning, "source.s3", "no credentials configured; anonymous access will be used")
		}
	case "":
		add(SeverityError, "source.kind", "source.kind must not be empty")
	default:
		add(SeverityError, "source.kind", "unknown source kind %q (want dir, manifest, files or s3)", s.Kind)
	}

	for i, r := range s.Rules {
		path := fmt.Sprintf("source.rules[%d]", i)
		if strings.TrimSpace(r.Contains) == "" {
			add(SeverityWarning, path+".contains", "rule without a match string never applies")
		}
		if _, err := records.ParseKind(r.Kind); err != nil {
			add(SeverityError, path+".kind", "%v", err)
		}
	}
}

func validateParser(p Parser, add addFunc) {
	if p.Delimiter != "" {
		r, size := utf8.DecodeRuneInString(p.Delimiter)
		switch {
		case size != len(p.Delimiter):
			add(SeverityError, "parser.delimiter", "delimiter must be a single character, got %q", p.Delimiter)
		case r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError:
			add(SeverityError, "parser.delimiter", "invalid delimiter %q", p.Delimiter)
		}
	}
	if p.ChunkSize < 0 {
		add(SeverityError, "parser.chunk_size", "chunk_size must be >= 0 (0 selects the default)")
	}
	for i, r := range p.Replacements {
		if r.From == "" {
			add(SeverityError, fmt.Sprintf("parser.replacements[%d].from", i), "from must not be empty")
		}
	}
}

func validateStorage(s Storage, add addFunc) {
	switch s.Kind {
	case "":
		add(SeverityError, "storage.kind", "storage.kind must not be empty")
		return
	case "memory":
		add(SeverityWarning, "storage.kind", "memory store keeps documents for this process only")
	case "mongo", "postgres", "mysql", "mssql", "sqlite":
		if strings.TrimSpace(s.DSN) == "" {
			add(SeverityError, "storage.dsn", "%s storage requires a connection string (set %s or %s)",
				s.Kind, EnvStorageDSN, EnvMongoURI)
		}
	default:
		add(SeverityWarning, "storage.kind", "unknown storage kind %q; ensure a matching backend is registered", s.Kind)
	}

	if s.SubBatchSize <= 0 {
		add(SeverityError, "storage.sub_batch_size", "sub_batch_size must be > 0")
	}
	if s.WritesPerSecond < 0 {
		add(SeverityError, "storage.writes_per_second", "writes_per_second must be >= 0")
	}
	for coll, idxs := range s.Indexes {
		for i, idx := range idxs {
			if len(idx.Keys) == 0 {
				add(SeverityError, fmt.Sprintf("storage.indexes.%s[%d].keys", coll, i), "index has no keys")
			}
		}
	}
}

func validateRuntime(r Runtime, add addFunc) {
	if r.Pipelined && (r.QueueDepth < 1 || r.QueueDepth > 2) {
		add(SeverityError, "runtime.queue_depth", "queue_depth must be 1 or 2 when pipelined, got %d", r.QueueDepth)
	}
}

func validateMetrics(m Metrics, add addFunc) {
	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if m.PushgatewayURL == "" {
			add(SeverityWarning, "metrics.pushgateway_url", "no Pushgateway URL; http://localhost:9091 will be used")
		}
	case "datadog":
		if m.DatadogAddr == "" {
			add(SeverityWarning, "metrics.datadog_addr", "no DogStatsD address; 127.0.0.1:8125 will be used")
		}
	default:
		add(SeverityWarning, "metrics.backend", "unknown metrics backend %q; metrics disabled", m.Backend)
	}
}

func validateLog(l Log, add addFunc) {
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		add(SeverityError, "log.level", "unknown log level %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "", "text", "logfmt", "json":
	default:
		add(SeverityError, "log.format", "unknown log format %q", l.Format)
	}
}
