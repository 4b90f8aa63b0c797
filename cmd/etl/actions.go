package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"docetl/internal/config"
	"docetl/internal/datasource/file"
	"docetl/internal/etl"
	"docetl/internal/logging"
	csvparser "docetl/internal/parser/csv"
)

var errInvalidConfig = errors.New("configuration is invalid")

// check prints the issues of cfg to w and fails when any is an error.
func check(cfg config.Config, w io.Writer) error {
	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return errInvalidConfig
	}
	return nil
}

func validateAction(_ context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := check(cfg, cmd.Root().ErrWriter); err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "configuration is valid: %s\n", displayPath(path))
	return nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if v := cmd.String("storage"); v != "" {
		cfg.Storage.Kind = v
	}
	if v := cmd.String("dsn"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := cmd.String("dir"); v != "" {
		cfg.Source.Kind = "dir"
		cfg.Source.Dir = v
	}
	if cmd.Bool("pipelined") {
		cfg.Runtime.Pipelined = true
	}
	if v := cmd.String("log-level"); v != "" {
		cfg.Log.Level = v
	}

	if err := check(cfg, cmd.Root().ErrWriter); err != nil {
		return err
	}

	lg, closeLog, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	sum, err := execute(ctx, cfg, lg)
	if sum.Files == nil && err != nil {
		return err
	}
	printSummary(cmd.Root().Writer, sum)
	if code := sum.Outcome.ExitCode(); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// execute runs the pipeline described by cfg. A setup failure returns an
// empty summary and the error; file failures are reflected in the outcome.
func execute(ctx context.Context, cfg config.Config, lg *log.Logger) (etl.Summary, error) {
	runID := uuid.New().String()
	rec := newRecorder(cfg, runID, lg)
	defer func() {
		if err := rec.Flush(); err != nil {
			lg.Warn("metrics flush", "err", err)
		}
	}()

	fail := etl.Summary{Outcome: etl.OutcomeFailure}
	store, err := etl.OpenStore(ctx, cfg.Storage)
	if err != nil {
		lg.Error("open store", "kind", cfg.Storage.Kind, "err", err)
		return fail, fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			lg.Warn("close store", "err", err)
		}
	}()

	cat, err := etl.Catalog(cfg.Source)
	if err != nil {
		return fail, err
	}
	datasets, err := cat.Datasets(ctx)
	if err != nil {
		lg.Error("list datasets", "source", cfg.Source.Kind, "err", err)
		return fail, fmt.Errorf("list datasets: %w", err)
	}

	runner := etl.NewRunner(etl.Env{Log: lg, Config: cfg, Metrics: rec, RunID: runID}, store)
	return runner.Run(ctx, datasets)
}

func printSummary(w io.Writer, sum etl.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tCOLLECTION\tSTATE\tREAD\tSKIPPED\tINSERTED\tREJECTED\tFALLBACK")
	for _, f := range sum.Files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%t\n",
			f.Name, f.Collection, f.State, f.RowsRead, f.Skipped, f.Inserted, f.Rejected, f.Fallback)
	}
	_ = tw.Flush()
	names := make([]string, 0, len(sum.Collections))
	for name := range sum.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s: %d documents\n", name, sum.Collections[name])
	}
	fmt.Fprintf(w, "outcome: %s\n", sum.Outcome)
}

func sniffAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return errors.New("sniff: a file path is required")
	}
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	opt := etl.CSVOptions(cfg.Parser)
	opt.SniffRows = cmd.Int("rows")

	sc, err := csvparser.Sniff(ctx, file.NewLocal(path), opt)
	if err != nil {
		return err
	}
	w := cmd.Root().Writer
	fmt.Fprintf(w, "delimiter: %q\n", sc.Delimiter)
	fmt.Fprintf(w, "columns:   %s\n", strings.Join(sc.Columns, ", "))
	for i, row := range sc.Sample {
		fmt.Fprintf(w, "%4d  %s\n", i+1, strings.Join(row, " | "))
	}
	return nil
}

func displayPath(p string) string {
	if p == "" {
		return "(defaults)"
	}
	return p
}
