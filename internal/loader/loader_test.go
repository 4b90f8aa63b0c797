package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"docetl/internal/logging"
	"docetl/internal/storage"
	"docetl/internal/storage/memory"
	"docetl/pkg/records"
)

// fakeStore records calls and can be told to fail.
type fakeStore struct {
	mu         sync.Mutex
	batchSizes []int
	indexCalls []string

	failInsertAt int // 1-based call number; 0 = never
	indexErrs    []error
	inserts      int
}

func (f *fakeStore) InsertMany(_ context.Context, _ string, docs []records.Record) (storage.InsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.inserts == f.failInsertAt {
		return storage.InsertResult{}, errors.New("connection reset")
	}
	f.batchSizes = append(f.batchSizes, len(docs))
	return storage.InsertResult{Inserted: len(docs)}, nil
}

func (f *fakeStore) CreateIndex(_ context.Context, coll string, idx storage.Index) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexCalls = append(f.indexCalls, idx.IndexName(coll))
	if len(f.indexErrs) > 0 {
		err := f.indexErrs[0]
		f.indexErrs = f.indexErrs[1:]
		return err
	}
	return nil
}

func (f *fakeStore) CountDocuments(context.Context, string) (int64, error) { return 0, nil }
func (f *fakeStore) Close() error                                         { return nil }

func docs(n int, idOf func(i int) any) []records.Record {
	out := make([]records.Record, n)
	for i := range out {
		out[i] = records.Record{"id": idOf(i), "name": fmt.Sprintf("p%d", i)}
	}
	return out
}

func seq(i int) any { return fmt.Sprintf("id-%d", i) }

func TestLoad_SplitsInOrder(t *testing.T) {
	t.Parallel()
	fs := &fakeStore{}
	l := New(fs, Options{SubBatchSize: 300, Log: logging.Discard()})

	res, err := l.Load(context.Background(), "tracks", docs(1000, seq))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []int{300, 300, 300, 100}
	if fmt.Sprint(fs.batchSizes) != fmt.Sprint(want) {
		t.Fatalf("batch sizes=%v want %v", fs.batchSizes, want)
	}
	if res.SubBatches != 4 || res.Attempted != 1000 || res.Inserted != 1000 || res.Rejected != 0 {
		t.Fatalf("res=%+v", res)
	}
}

func TestLoad_DuplicateKeysAreWarnings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.New()
	if err := st.CreateIndex(ctx, "tracks", storage.Index{Keys: []string{"id"}, Unique: true}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if _, err := st.InsertMany(ctx, "tracks", []records.Record{{"id": "id-10"}, {"id": "id-500"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	l := New(st, Options{SubBatchSize: 1000, Log: logging.Discard()})
	res, err := l.Load(ctx, "tracks", docs(1000, seq))
	if err != nil {
		t.Fatalf("Load must not fail on duplicate keys: %v", err)
	}
	if res.Inserted != 998 || res.Rejected != 2 || len(res.Failures) != 2 {
		t.Fatalf("res=%+v", res)
	}
	if res.Failures[0].ID != "id-10" || res.Failures[1].ID != "id-500" {
		t.Fatalf("failures=%+v", res.Failures)
	}
	n, _ := st.CountDocuments(ctx, "tracks")
	if n != 1000 {
		t.Fatalf("count=%d want 1000", n)
	}
}

// Failure indexes are relative to the whole Load, not the sub-batch.
func TestLoad_FailureIndexAcrossSubBatches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.New()
	_ = st.CreateIndex(ctx, "c", storage.Index{Keys: []string{"id"}, Unique: true})

	recs := docs(10, seq)
	recs[7]["id"] = "id-1"
	l := New(st, Options{SubBatchSize: 4, Log: logging.Discard()})
	res, err := l.Load(ctx, "c", recs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(res.Failures) != 1 || res.Failures[0].Index != 7 {
		t.Fatalf("failures=%+v", res.Failures)
	}
}

func TestLoad_FatalErrorStops(t *testing.T) {
	t.Parallel()
	fs := &fakeStore{failInsertAt: 2}
	l := New(fs, Options{SubBatchSize: 100, Log: logging.Discard(), Indexes: DefaultIndexes()})

	res, err := l.Load(context.Background(), "tracks", docs(500, seq))
	if err == nil {
		t.Fatal("expected fatal error")
	}
	if _, ok := storage.AsBulkWriteError(err); ok {
		t.Fatalf("fatal error must not be a BulkWriteError: %v", err)
	}
	if fs.inserts != 2 || res.SubBatches != 2 || res.Inserted != 100 {
		t.Fatalf("inserts=%d res=%+v", fs.inserts, res)
	}
	if len(fs.indexCalls) != 0 {
		t.Fatalf("indexes must not be ensured after a failed load: %v", fs.indexCalls)
	}
}

func TestLoad_IndexesEnsuredOnce(t *testing.T) {
	t.Parallel()
	fs := &fakeStore{}
	l := New(fs, Options{Log: logging.Discard(), Indexes: DefaultIndexes()})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.Load(ctx, "playlists", docs(5, seq)); err != nil {
			t.Fatalf("Load %d: %v", i, err)
		}
	}
	want := "[ix_playlists_id ix_playlists_name]"
	if got := fmt.Sprint(fs.indexCalls); got != want {
		t.Fatalf("index calls=%s want %s", got, want)
	}
}

func TestLoad_IndexConflictRetried(t *testing.T) {
	t.Parallel()
	fs := &fakeStore{indexErrs: []error{fmt.Errorf("wrap: %w", storage.ErrIndexConflict)}}
	l := New(fs, Options{Log: logging.Discard(), Indexes: map[string][]storage.Index{
		"c": {{Keys: []string{"id"}, Unique: true}},
	}})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.Load(ctx, "c", docs(1, seq)); err != nil {
			t.Fatalf("Load %d: %v", i, err)
		}
	}
	if len(fs.indexCalls) != 2 {
		t.Fatalf("index calls=%v; want a retry after the conflict and none after success", fs.indexCalls)
	}
}

func TestLoad_IndexErrorIsFatal(t *testing.T) {
	t.Parallel()
	fs := &fakeStore{indexErrs: []error{errors.New("permission denied")}}
	l := New(fs, Options{Log: logging.Discard(), Indexes: DefaultIndexes()})
	if _, err := l.Load(context.Background(), "tracks", docs(1, seq)); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoad_IdempotentWithUniqueID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.New()
	l := New(st, Options{SubBatchSize: 50, Log: logging.Discard(), Indexes: DefaultIndexes()})

	if _, err := l.Load(ctx, "playlists", docs(120, seq)); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	res, err := l.Load(ctx, "playlists", docs(120, seq))
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if res.Inserted != 0 || res.Rejected != 120 {
		t.Fatalf("second res=%+v", res)
	}
	if n, _ := st.CountDocuments(ctx, "playlists"); n != 120 {
		t.Fatalf("count=%d want 120", n)
	}

	tot := l.Totals()["playlists"]
	if tot.Attempted != 240 || tot.Inserted != 120 || tot.Rejected != 120 {
		t.Fatalf("totals=%+v", tot)
	}
}

func TestScopedSharesTotals(t *testing.T) {
	t.Parallel()
	l := New(&fakeStore{}, Options{Log: logging.Discard()})
	ctx := context.Background()
	if _, err := l.Scoped("file", "a.csv", "chunk", 0).Load(ctx, "a", docs(3, seq)); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Scoped("file", "b.csv", "chunk", 0).Load(ctx, "b", docs(2, seq)); err != nil {
		t.Fatal(err)
	}
	tot := l.Totals()
	if len(tot) != 2 || tot["a"].Inserted != 3 || tot["b"].Inserted != 2 {
		t.Fatalf("totals=%+v", tot)
	}
}

func TestLoad_ThrottleHonoursContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fs := &fakeStore{}
	l := New(fs, Options{SubBatchSize: 10, WritesPerSecond: 1, Log: logging.Discard()})
	if _, err := l.Load(ctx, "c", docs(10, seq)); err == nil {
		t.Fatal("expected context error from throttle")
	}
	if fs.inserts != 0 {
		t.Fatalf("inserts=%d; want none", fs.inserts)
	}
}

func TestLoad_EmptyCollectionName(t *testing.T) {
	t.Parallel()
	l := New(&fakeStore{}, Options{Log: logging.Discard()})
	if _, err := l.Load(context.Background(), "", docs(1, seq)); err == nil {
		t.Fatal("expected error")
	}
}
