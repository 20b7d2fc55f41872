// Package vectorstore holds the backing-store contract of the search index.
//
// A Storage is bound to one named index at construction. It embeds record
// text itself through its configured provider, both on write and on query,
// so callers only ever hand it text.
//
// Error contract shared by all implementations:
//   - Create on an existing index returns domain.ErrIndexExists.
//   - Drop, Upsert and Search on a missing index return domain.ErrIndexNotFound.
//   - Anything else is a transport or provider failure.
package vectorstore

import (
	"context"

	"vecsearch/internal/domain"
)

// Admin is the lifecycle surface used by the index manager.
type Admin interface {
	Exists(ctx context.Context) (bool, error)
	Create(ctx context.Context, spec domain.IndexSpec) error
	// Ready reports whether a created index accepts consistent reads.
	Ready(ctx context.Context) (bool, error)
	Drop(ctx context.Context) error
}

// Data is the record surface used by the index.
type Data interface {
	// Upsert writes records into the namespace partition, replacing any
	// record with the same id.
	Upsert(ctx context.Context, ns domain.Namespace, records []domain.Record) error
	// Search returns up to topK candidates from ns ordered by similarity.
	Search(ctx context.Context, ns domain.Namespace, query string, topK int) ([]domain.Candidate, error)
}

// Storage persists records and supports similarity search.
type Storage interface {
	Admin
	Data
	Close() error
}
