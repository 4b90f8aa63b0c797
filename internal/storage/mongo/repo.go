// Package mongo implements the document store on MongoDB with the official
// Go driver. Inserts are unordered so one rejected document does not stop
// the rest of a batch.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"docetl/internal/storage"
	"docetl/pkg/records"
)

// Server error codes.
const (
	codeDuplicateKey         = 11000
	codeIndexOptionsConflict = 85
	codeIndexKeySpecConflict = 86
)

// Repository is a MongoDB-backed storage.Store bound to one database.
type Repository struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ storage.Store = (*Repository)(nil)

// NewRepository connects to uri and pings the primary. The database is
// database, or the one named in the URI path.
func NewRepository(ctx context.Context, uri, database string) (*Repository, error) {
	name, err := databaseName(uri, database)
	if err != nil {
		return nil, err
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetAppName("docetl"))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &Repository{client: client, db: client.Database(name)}, nil
}

func databaseName(uri, database string) (string, error) {
	if database != "" {
		return database, nil
	}
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return "", fmt.Errorf("mongo uri: %w", err)
	}
	if cs.Database == "" {
		return "", errors.New("mongo: no database configured and none in the URI")
	}
	return cs.Database, nil
}

// InsertMany performs an unordered insert. Per-document write errors come
// back as a *storage.BulkWriteError.
func (r *Repository) InsertMany(ctx context.Context, coll string, docs []records.Record) (storage.InsertResult, error) {
	if len(docs) == 0 {
		return storage.InsertResult{}, nil
	}
	in := make([]interface{}, len(docs))
	for i, d := range docs {
		in[i] = bson.M(d)
	}
	_, err := r.db.Collection(coll).InsertMany(ctx, in, options.InsertMany().SetOrdered(false))
	if err == nil {
		return storage.InsertResult{Inserted: len(docs)}, nil
	}
	return translateInsertError(coll, docs, err)
}

// translateInsertError splits document-level write errors from store
// failures. A write concern error means the outcome is unknown and is
// treated as a failure.
func translateInsertError(coll string, docs []records.Record, err error) (storage.InsertResult, error) {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return storage.InsertResult{}, fmt.Errorf("mongo insert into %s: %w", coll, err)
	}
	out := &storage.BulkWriteError{Collection: coll}
	for _, we := range bwe.WriteErrors {
		f := storage.DocFailure{Index: we.Index}
		if we.Index >= 0 && we.Index < len(docs) {
			f.ID = storage.DocID(docs[we.Index])
		}
		if we.Code == codeDuplicateKey {
			f.Err = fmt.Errorf("%w: %s", storage.ErrDuplicateKey, we.Message)
		} else {
			f.Err = fmt.Errorf("write error %d: %s", we.Code, we.Message)
		}
		out.Failures = append(out.Failures, f)
	}
	out.Inserted = len(docs) - len(out.Failures)
	return storage.InsertResult{Inserted: out.Inserted}, out
}

// CreateIndex creates idx; an equivalent existing index is not an error.
func (r *Repository) CreateIndex(ctx context.Context, coll string, idx storage.Index) error {
	if len(idx.Keys) == 0 {
		return fmt.Errorf("mongo: index on %s has no keys", coll)
	}
	_, err := r.db.Collection(coll).Indexes().CreateOne(ctx, indexModel(coll, idx))
	return translateIndexError(coll, idx.IndexName(coll), err)
}

func indexModel(coll string, idx storage.Index) mongo.IndexModel {
	keys := make(bson.D, len(idx.Keys))
	for i, k := range idx.Keys {
		keys[i] = bson.E{Key: k, Value: 1}
	}
	opts := options.Index().SetName(idx.IndexName(coll)).SetUnique(idx.Unique)
	if idx.Unique {
		// Documents whose keys are null or missing stay unconstrained.
		filter := make(bson.D, len(idx.Keys))
		for i, k := range idx.Keys {
			filter[i] = bson.E{Key: k, Value: bson.D{{Key: "$type", Value: indexedTypes}}}
		}
		opts.SetPartialFilterExpression(filter)
	}
	return mongo.IndexModel{Keys: keys, Options: opts}
}

// indexedTypes are the BSON types a transformed document can hold, null
// excluded.
var indexedTypes = bson.A{"string", "number", "date", "bool"}

func translateIndexError(coll, name string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s on %s: %v", storage.ErrIndexConflict, name, coll, err)
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == codeIndexOptionsConflict || ce.Code == codeIndexKeySpecConflict) {
		return nil
	}
	return fmt.Errorf("mongo create index %s: %w", name, err)
}

// CountDocuments counts every document in coll.
func (r *Repository) CountDocuments(ctx context.Context, coll string) (int64, error) {
	n, err := r.db.Collection(coll).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("mongo count %s: %w", coll, err)
	}
	return n, nil
}

// Close disconnects the client.
func (r *Repository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}
