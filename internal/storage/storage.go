// Package storage defines the document-store contract the loader writes
// through, plus a factory that backends register with at init time.
//
// A store holds named collections of documents. InsertMany is unordered:
// documents rejected individually (for example by a unique index) are
// reported in a *BulkWriteError while the rest are written. Any other error
// means the store itself failed and the caller should stop writing.
package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"docetl/pkg/records"
)

var (
	// ErrIndexConflict means a unique index could not be built because
	// documents already in the collection violate it.
	ErrIndexConflict = errors.New("storage: existing documents violate unique index")

	// ErrDuplicateKey marks a document rejected by a unique index.
	ErrDuplicateKey = errors.New("storage: duplicate key")

	// ErrUnknownKind is returned by New for an unregistered backend.
	ErrUnknownKind = errors.New("storage: unknown kind")
)

// Index describes a single- or multi-field index on a collection.
type Index struct {
	Name   string
	Keys   []string
	Unique bool
}

// IndexName returns Name, or a name derived from the collection and keys.
func (i Index) IndexName(collection string) string {
	if i.Name != "" {
		return i.Name
	}
	return "ix_" + collection + "_" + strings.Join(i.Keys, "_")
}

// InsertResult reports what InsertMany wrote.
type InsertResult struct {
	Inserted int
}

// DocFailure is one rejected document.
type DocFailure struct {
	// Index is the position of the document in the InsertMany call.
	Index int
	// ID is the document's "id" field, when it has one.
	ID  any
	Err error
}

// BulkWriteError reports documents rejected by an otherwise successful
// InsertMany. It is a warning, not a store failure.
type BulkWriteError struct {
	Collection string
	Inserted   int
	Failures   []DocFailure
}

func (e *BulkWriteError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("storage: %s: bulk write error", e.Collection)
	}
	return fmt.Sprintf("storage: %s: %d documents rejected (first at %d: %v)",
		e.Collection, len(e.Failures), e.Failures[0].Index, e.Failures[0].Err)
}

// AsBulkWriteError reports whether err carries document-level rejections
// only.
func AsBulkWriteError(err error) (*BulkWriteError, bool) {
	var bwe *BulkWriteError
	if errors.As(err, &bwe) {
		return bwe, true
	}
	return nil, false
}

// DocID returns the id of doc, or nil.
func DocID(doc records.Record) any {
	if v, ok := doc["id"]; ok {
		return v
	}
	return doc["_id"]
}

// KeyOf builds a comparable key from the given fields of doc. ok is false
// when any field is missing or null; such documents are not constrained by
// a unique index. Numbers compare by value regardless of int/float type.
func KeyOf(doc records.Record, fields []string) (key string, ok bool) {
	var b strings.Builder
	for i, f := range fields {
		v, present := doc[f]
		if !present || v == nil {
			return "", false
		}
		if i > 0 {
			b.WriteByte(0x1f)
		}
		switch x := v.(type) {
		case string:
			b.WriteString("s:")
			b.WriteString(x)
		case int64:
			b.WriteString("n:")
			b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 64))
		case int:
			b.WriteString("n:")
			b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 64))
		case float64:
			b.WriteString("n:")
			b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		case time.Time:
			b.WriteString("t:")
			b.WriteString(x.UTC().Format(time.RFC3339Nano))
		default:
			fmt.Fprintf(&b, "%T:%v", x, x)
		}
	}
	return b.String(), true
}
