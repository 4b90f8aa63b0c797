// Package etl wires reader, transformer and loader for each dataset file
// and accounts for the run.
//
// A file moves through Sniffing, Streaming and, per chunk, Transforming and
// Loading until Completed. When the chunked reader reports that it cannot
// continue, the file is re-read whole by the permissive reader (Fallback);
// rows from chunks already loaded are not loaded twice. A file is Aborted
// when both readers fail or the store fails; the remaining chunks of that
// file are not attempted and the run moves on to the next file.
package etl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"docetl/internal/config"
	"docetl/internal/datasource"
	"docetl/internal/loader"
	"docetl/internal/metrics"
	csvparser "docetl/internal/parser/csv"
	"docetl/internal/storage"
	"docetl/internal/transformer"
	"docetl/pkg/records"
)

// Env is the pipeline context handed to every component.
type Env struct {
	Log     *log.Logger
	Config  config.Config
	Metrics *metrics.Recorder
	RunID   string
}

// Runner processes datasets into one store.
type Runner struct {
	env    Env
	store  storage.Store
	loader *loader.Loader
	csv    csvparser.Options
	topts  transformer.Options
	log    *log.Logger
}

// NewRunner builds a Runner from env.Config.
func NewRunner(env Env, store storage.Store) *Runner {
	lg := env.Log
	if lg == nil {
		lg = log.Default()
	}
	if env.RunID != "" {
		lg = lg.With("run", env.RunID)
	}
	cfg := env.Config
	return &Runner{
		env:   env,
		store: store,
		log:   lg,
		loader: loader.New(store, loader.Options{
			SubBatchSize:    cfg.Storage.SubBatchSize,
			Indexes:         Indexes(cfg.Storage),
			WritesPerSecond: cfg.Storage.WritesPerSecond,
			Log:             lg,
			Metrics:         env.Metrics,
		}),
		csv:   CSVOptions(cfg.Parser),
		topts: TransformOptions(cfg.Transform),
	}
}

// Totals returns the loader's running totals per collection.
func (r *Runner) Totals() map[string]loader.Totals { return r.loader.Totals() }

// Run processes every dataset in order; a failed file does not stop the
// others. It then counts the documents of every collection written to.
// The returned error joins the errors of failed files.
func (r *Runner) Run(ctx context.Context, datasets []datasource.Dataset) (Summary, error) {
	start := time.Now()
	sum := Summary{Collections: CollectionSummary{}}
	r.log.Info("run started", "job", r.env.Config.Job, "files", len(datasets), "store", r.env.Config.Storage.Kind)

	for _, ds := range datasets {
		if err := ctx.Err(); err != nil {
			sum.Files = append(sum.Files, FileReport{
				Name: ds.Name, Kind: ds.Kind, Collection: ds.Collection,
				State: StateAborted, Err: fmt.Errorf("%s: %w", ds.Name, err),
			})
			continue
		}
		rep, _ := r.RunFile(ctx, ds)
		sum.Files = append(sum.Files, rep)
	}

	colls := make([]string, 0)
	for name := range r.loader.Totals() {
		colls = append(colls, name)
	}
	sort.Strings(colls)

	countFailed := false
	for _, name := range colls {
		n, err := r.store.CountDocuments(ctx, name)
		if err != nil {
			countFailed = true
			r.log.Error("count documents", "collection", name, "err", err)
			continue
		}
		sum.Collections[name] = n
	}

	sum.Outcome = outcomeOf(sum.Files, countFailed)
	sum.Elapsed = time.Since(start)
	for _, name := range colls {
		if n, ok := sum.Collections[name]; ok {
			r.log.Info("collection", "name", name, "documents", n)
		}
	}
	r.log.Info("run finished",
		"outcome", sum.Outcome,
		"files", len(sum.Files),
		"elapsed", sum.Elapsed.Truncate(time.Millisecond),
	)
	return sum, sum.Err()
}

// RunFile processes one dataset and reports on it. The error is also
// stored in the report.
func (r *Runner) RunFile(ctx context.Context, ds datasource.Dataset) (FileReport, error) {
	start := time.Now()
	if ds.Collection == "" {
		ds.Collection = datasource.BaseCollection(ds.Name)
	}
	rep := FileReport{Name: ds.Name, Kind: ds.Kind, Collection: ds.Collection}
	f := &fileRun{
		r:   r,
		ds:  ds,
		fn:  transformer.For(ds.Kind),
		opt: r.csv,
		rep: &rep,
		log: r.log.With("file", ds.Name),
	}
	f.log.Info("file started", "kind", ds.Kind, "collection", ds.Collection)

	err := f.run(ctx)
	rep.Elapsed = time.Since(start)
	r.env.Metrics.Step("file", err, rep.Elapsed)
	if err != nil {
		rep.State = StateAborted
		rep.Err = fmt.Errorf("%s: %w", ds.Name, err)
		f.log.Error("file aborted", "chunks", rep.Chunks, "inserted", rep.Inserted, "err", err)
		return rep, rep.Err
	}
	rep.State = StateCompleted
	f.log.Info("file completed",
		"chunks", rep.Chunks,
		"rows", rep.RowsRead,
		"skipped", rep.Skipped,
		"duplicates", rep.Duplicates,
		"inserted", rep.Inserted,
		"rejected", rep.Rejected,
		"fallback", rep.Fallback,
		"elapsed", rep.Elapsed.Truncate(time.Millisecond),
	)
	return rep, nil
}

// fileRun is the state of one RunFile call.
type fileRun struct {
	r   *Runner
	ds  datasource.Dataset
	fn  transformer.Func
	opt csvparser.Options
	rep *FileReport
	log *log.Logger

	// loadedThrough is the last source line of the chunks loaded so far.
	loadedThrough int
}

// chunk is a transformed batch waiting to be loaded.
type chunk struct {
	index    int
	rows     int
	skipped  int
	lastLine int
	res      transformer.Result
}

func (f *fileRun) setState(s State) {
	f.rep.State = s
	f.log.Debug("state", "state", s)
}

func (f *fileRun) run(ctx context.Context) error {
	f.setState(StateSniffing)
	f.opt.OnSkip = func(line int, err error) {
		f.log.Warn("row skipped", "line", line, "err", err)
	}
	// A configured delimiter is kept; the header is read either way.
	schema, err := csvparser.Sniff(ctx, f.ds.Src, f.opt)
	switch {
	case err != nil && f.opt.Comma == 0:
		f.log.Warn("sniff failed, assuming ','", "err", err)
		f.opt.Comma = ','
	case err != nil:
		f.log.Warn("sniff failed", "err", err)
	default:
		f.opt.Comma = schema.Delimiter
		f.log.Info("schema detected",
			"delimiter", string(schema.Delimiter),
			"columns", strings.Join(schema.Columns, ","),
			"count", len(schema.Columns))
	}
	f.rep.Delimiter = f.opt.Comma

	f.setState(StateStreaming)
	cr, st := csvparser.Open(ctx, f.ds.Src, f.opt)
	defer cr.Close()
	if st == csvparser.StatusNeedsFallback {
		return f.fallback(ctx, cr.Reason())
	}

	var needsFallback bool
	if f.r.env.Config.Runtime.Pipelined {
		needsFallback, err = f.streamPipelined(ctx, cr)
	} else {
		needsFallback, err = f.stream(ctx, cr)
	}
	if err != nil {
		return err
	}
	if needsFallback {
		return f.fallback(ctx, cr.Reason())
	}
	return nil
}

// stream pulls, transforms and loads one chunk at a time.
func (f *fileRun) stream(ctx context.Context, cr *csvparser.ChunkReader) (bool, error) {
	for {
		b, st, err := cr.Next(ctx)
		if err != nil {
			return false, err
		}
		switch st {
		case csvparser.StatusEOF:
			return false, nil
		case csvparser.StatusNeedsFallback:
			return true, nil
		}
		f.setState(StateTransforming)
		if err := f.load(ctx, f.transform(b)); err != nil {
			return false, err
		}
		f.setState(StateStreaming)
	}
}

// streamPipelined reads and transforms the next chunk while the current one
// loads. Chunks are loaded in file order. Only the loading goroutine
// touches the report.
func (f *fileRun) streamPipelined(ctx context.Context, cr *csvparser.ChunkReader) (bool, error) {
	depth := f.r.env.Config.Runtime.QueueDepth
	if depth < 1 {
		depth = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan chunk, depth)
	needsFallback := false

	g.Go(func() error {
		defer close(queue)
		for {
			b, st, err := cr.Next(gctx)
			if err != nil {
				return err
			}
			switch st {
			case csvparser.StatusEOF:
				return nil
			case csvparser.StatusNeedsFallback:
				needsFallback = true
				return nil
			}
			select {
			case queue <- f.transform(b):
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	g.Go(func() error {
		for c := range queue {
			if err := f.load(gctx, c); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	return needsFallback, err
}

func (f *fileRun) transform(b records.RawBatch) chunk {
	start := time.Now()
	res := f.fn(b, f.r.topts)
	f.r.env.Metrics.Step("transform", nil, time.Since(start))

	c := chunk{index: b.Index, rows: len(b.Rows), skipped: b.Skipped, res: res}
	if n := len(b.Lines); n > 0 {
		c.lastLine = b.Lines[n-1]
	}
	f.log.Debug("chunk transformed",
		"chunk", c.index,
		"rows", c.rows,
		"documents", len(res.Records),
		"duplicates", res.Duplicates,
		"outliers", res.Outliers,
		"filled", res.Filled,
	)
	return c
}

func (f *fileRun) load(ctx context.Context, c chunk) error {
	rep := f.rep
	rep.Chunks++
	rep.RowsRead += c.rows
	rep.Skipped += c.skipped
	rep.Duplicates += c.res.Duplicates
	rep.Dropped += c.res.Dropped
	rep.Outliers += c.res.Outliers
	rep.Filled += c.res.Filled

	m := f.r.env.Metrics
	m.Batches(1)
	m.Records(metrics.KindRead, c.rows)
	m.Records(metrics.KindSkipped, c.skipped)
	m.Records(metrics.KindDuplicates, c.res.Duplicates)
	m.Records(metrics.KindOutliers, c.res.Outliers)
	m.Records(metrics.KindFilled, c.res.Filled)

	f.setState(StateLoading)
	res, err := f.r.loader.Scoped("file", f.ds.Name, "chunk", c.index).Load(ctx, f.ds.Collection, c.res.Records)
	rep.Attempted += res.Attempted
	rep.Inserted += res.Inserted
	rep.Rejected += res.Rejected
	if err != nil {
		return fmt.Errorf("chunk %d: %w", c.index, err)
	}
	if c.lastLine > f.loadedThrough {
		f.loadedThrough = c.lastLine
	}
	return nil
}

// fallback re-reads the whole file permissively and loads the rows past
// the last loaded chunk as one batch. If it fails too, both errors are
// returned.
func (f *fileRun) fallback(ctx context.Context, reason error) error {
	if reason == nil {
		reason = errors.New("chunked reader stopped")
	}
	f.setState(StateFallback)
	f.rep.Fallback = true
	f.rep.FallbackReason = reason.Error()
	f.r.env.Metrics.Fallback()
	f.log.Warn("chunked read failed, re-reading whole file", "reason", reason, "resume_after_line", f.loadedThrough)

	opt := f.opt
	skipped := 0
	opt.OnSkip = func(line int, err error) {
		if line > f.loadedThrough {
			skipped++
			f.log.Warn("row skipped", "line", line, "err", err)
		}
	}
	b, err := csvparser.ReadAll(ctx, f.ds.Src, opt)
	if err != nil {
		return errors.Join(fmt.Errorf("stream: %w", reason), fmt.Errorf("fallback: %w", err))
	}

	if f.loadedThrough > 0 {
		keep := 0
		for i, line := range b.Lines {
			if line > f.loadedThrough {
				b.Rows[keep] = b.Rows[i]
				b.Lines[keep] = line
				keep++
			}
		}
		b.Rows, b.Lines = b.Rows[:keep], b.Lines[:keep]
	}
	b.Index = f.rep.Chunks
	b.Skipped = skipped

	f.setState(StateTransforming)
	return f.load(ctx, f.transform(b))
}
