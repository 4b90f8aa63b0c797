// Package loader writes cleaned documents to a storage.Store in bounded
// sub-batches. Document-level rejections are warnings; any other store
// error stops the load.
//
// Logging: every sub-batch emits a debug progress line with running totals
// and rows/sec; every Load ends with one info line.
package loader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"docetl/internal/metrics"
	"docetl/internal/storage"
	"docetl/pkg/records"
)

// DefaultSubBatchSize is the InsertMany size when none is configured.
const DefaultSubBatchSize = 1000

// DefaultIndexes returns the indexes the known collections get.
func DefaultIndexes() map[string][]storage.Index {
	return map[string][]storage.Index{
		"playlists": {
			{Keys: []string{"id"}, Unique: true},
			{Keys: []string{"name"}},
		},
		"tracks": {
			{Keys: []string{"id"}, Unique: true},
			{Keys: []string{"artist_name"}},
			{Keys: []string{"track_name"}},
		},
	}
}

// Options configures a Loader.
type Options struct {
	// SubBatchSize caps each InsertMany call. <= 0 means DefaultSubBatchSize.
	SubBatchSize int
	// Indexes per collection, ensured after the first Load into it.
	Indexes map[string][]storage.Index
	// WritesPerSecond throttles documents sent to the store. 0 disables.
	WritesPerSecond float64
	Log             *log.Logger
	Metrics         *metrics.Recorder
}

// Totals are running counts for one collection.
type Totals struct {
	Attempted int
	Inserted  int
	Rejected  int
}

// Result reports one Load call.
type Result struct {
	SubBatches int
	Attempted  int
	Inserted   int
	Rejected   int
	Failures   []storage.DocFailure
}

type collState struct {
	totals  Totals
	loaded  bool
	indexed bool
}

// state is shared between a Loader and its scoped views.
type state struct {
	mu    sync.Mutex
	colls map[string]*collState
}

// Loader writes documents through a store. It is safe for concurrent use.
type Loader struct {
	store   storage.Store
	opt     Options
	limiter *rate.Limiter
	log     *log.Logger
	st      *state
}

// New returns a Loader over store.
func New(store storage.Store, opt Options) *Loader {
	if opt.SubBatchSize <= 0 {
		opt.SubBatchSize = DefaultSubBatchSize
	}
	lg := opt.Log
	if lg == nil {
		lg = log.Default()
	}
	l := &Loader{
		store: store,
		opt:   opt,
		log:   lg.With("component", "loader"),
		st:    &state{colls: make(map[string]*collState)},
	}
	if opt.WritesPerSecond > 0 {
		burst := int(math.Ceil(opt.WritesPerSecond))
		if burst < opt.SubBatchSize {
			burst = opt.SubBatchSize
		}
		l.limiter = rate.NewLimiter(rate.Limit(opt.WritesPerSecond), burst)
	}
	return l
}

// Scoped returns a view of l that logs with the extra key/value pairs, e.g.
// the file and chunk being loaded. Totals and index state are shared.
func (l *Loader) Scoped(kv ...any) *Loader {
	c := *l
	c.log = l.log.With(kv...)
	return &c
}

// Load writes recs into collection in sub-batches, in order. A
// *storage.BulkWriteError from the store is logged per document and
// counted as rejected; any other error is returned at once and the
// remaining sub-batches are not attempted.
func (l *Loader) Load(ctx context.Context, collection string, recs []records.Record) (Result, error) {
	var res Result
	if collection == "" {
		return res, errors.New("loader: empty collection name")
	}

	start := time.Now()
	res, err := l.insert(ctx, collection, recs, start)
	l.opt.Metrics.Records(metrics.KindAttempted, res.Attempted)
	l.opt.Metrics.Records(metrics.KindInserted, res.Inserted)
	l.opt.Metrics.Records(metrics.KindRejected, res.Rejected)
	l.opt.Metrics.Step("load", err, time.Since(start))
	if err != nil {
		l.log.Error("load failed", "collection", collection, "attempted", res.Attempted, "inserted", res.Inserted, "err", err)
		return res, err
	}

	if err := l.ensureAfterLoad(ctx, collection); err != nil {
		return res, err
	}
	l.log.Info("loaded",
		"collection", collection,
		"documents", len(recs),
		"inserted", res.Inserted,
		"rejected", res.Rejected,
		"sub_batches", res.SubBatches,
		"elapsed", time.Since(start).Truncate(time.Millisecond),
	)
	return res, nil
}

func (l *Loader) insert(ctx context.Context, collection string, recs []records.Record, start time.Time) (Result, error) {
	var res Result
	last := start
	for i, batch := range records.Split(recs, l.opt.SubBatchSize) {
		if l.limiter != nil {
			if err := l.limiter.WaitN(ctx, len(batch)); err != nil {
				return res, fmt.Errorf("loader: throttle: %w", err)
			}
		}

		ir, err := l.store.InsertMany(ctx, collection, batch)
		res.SubBatches++
		res.Attempted += len(batch)
		if err != nil {
			bwe, ok := storage.AsBulkWriteError(err)
			if !ok {
				res.Inserted += ir.Inserted
				l.account(collection, len(batch), ir.Inserted, 0)
				return res, fmt.Errorf("loader: insert into %s (sub-batch %d): %w", collection, i, err)
			}
			offset := i * l.opt.SubBatchSize
			for _, f := range bwe.Failures {
				l.log.Warn("document rejected",
					"collection", collection,
					"sub_batch", i,
					"index", offset+f.Index,
					"id", f.ID,
					"err", f.Err,
				)
				f.Index += offset
				res.Failures = append(res.Failures, f)
			}
			ir.Inserted = bwe.Inserted
		}
		rejected := len(batch) - ir.Inserted
		res.Inserted += ir.Inserted
		res.Rejected += rejected
		l.account(collection, len(batch), ir.Inserted, rejected)

		now := time.Now()
		rps := 0.0
		if d := now.Sub(last); d > 0 {
			rps = float64(ir.Inserted) / d.Seconds()
		}
		l.log.Debug("sub-batch written",
			"collection", collection,
			"sub_batch", i,
			"inserted", ir.Inserted,
			"total_inserted", res.Inserted,
			"rps", math.Round(rps),
			"elapsed", now.Sub(start).Truncate(time.Millisecond),
		)
		last = now
	}
	return res, nil
}

func (l *Loader) account(collection string, attempted, inserted, rejected int) {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	cs := l.collState(collection)
	cs.totals.Attempted += attempted
	cs.totals.Inserted += inserted
	cs.totals.Rejected += rejected
	cs.loaded = true
}

// collState must be called with st.mu held.
func (l *Loader) collState(collection string) *collState {
	cs, ok := l.st.colls[collection]
	if !ok {
		cs = &collState{}
		l.st.colls[collection] = cs
	}
	return cs
}

func (l *Loader) ensureAfterLoad(ctx context.Context, collection string) error {
	l.st.mu.Lock()
	cs := l.collState(collection)
	cs.loaded = true
	done := cs.indexed
	l.st.mu.Unlock()
	if done {
		return nil
	}
	return l.EnsureIndexes(ctx, collection)
}

// EnsureIndexes creates the configured indexes of collection. Existing
// documents that violate a unique index are logged and the collection is
// retried on its next Load; other errors are returned.
func (l *Loader) EnsureIndexes(ctx context.Context, collection string) error {
	idxs := l.opt.Indexes[collection]
	conflict := false
	for _, idx := range idxs {
		err := l.store.CreateIndex(ctx, collection, idx)
		switch {
		case err == nil:
			l.log.Debug("index ensured", "collection", collection, "index", idx.IndexName(collection))
		case errors.Is(err, storage.ErrIndexConflict):
			conflict = true
			l.log.Warn("unique index not built, existing documents conflict",
				"collection", collection, "index", idx.IndexName(collection), "err", err)
		default:
			return fmt.Errorf("loader: ensure index %s: %w", idx.IndexName(collection), err)
		}
	}

	l.st.mu.Lock()
	l.collState(collection).indexed = !conflict
	l.st.mu.Unlock()
	return nil
}

// Totals returns a snapshot of running totals per collection.
func (l *Loader) Totals() map[string]Totals {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	out := make(map[string]Totals, len(l.st.colls))
	for name, cs := range l.st.colls {
		if cs.loaded {
			out[name] = cs.totals
		}
	}
	return out
}
