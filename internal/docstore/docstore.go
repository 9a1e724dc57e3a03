// Package docstore persists tool results as schemaless documents grouped by
// collection.
package docstore

import (
	"context"
	"errors"
	"fmt"
)

var ErrUnavailable = errors.New("document store unavailable")

type Document map[string]any

// Filter selects documents whose fields equal every filter value.
type Filter map[string]any

type Store interface {
	Read(ctx context.Context, collection string, filter Filter) ([]Document, error)
	Write(ctx context.Context, collection string, doc Document) error
	// Delete removes every matching document and reports how many were removed.
	Delete(ctx context.Context, collection string, filter Filter) (int, error)
}

// Matches compares values by their printed form so that a number decoded
// from JSON (float64) still matches the int it was written as.
func (f Filter) Matches(doc Document) bool {
	for key, want := range f {
		got, ok := doc[key]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// FindOne returns the first matching document, or nil.
func FindOne(ctx context.Context, store Store, collection string, filter Filter) (Document, error) {
	docs, err := store.Read(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func clone(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
