// Package ports defines the interfaces the domain services depend on.
package ports

import "context"

// CollectionManager handles the lifecycle of the similarity index collection.
// Kept apart from VectorIndex so services that only query do not see it.
type CollectionManager interface {
	// EnsureCollection creates the collection if it doesn't exist.
	EnsureCollection(ctx context.Context, vectorSize uint64) error

	// DeleteCollection drops the collection and everything in it.
	DeleteCollection(ctx context.Context) error
}
