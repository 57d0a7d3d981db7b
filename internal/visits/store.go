package visits

import (
	"context"
	"time"
)

// Loader reads the full visit log. Implementations never fail: storage errors
// are logged and the empty collection is returned instead.
type Loader interface {
	Load(ctx context.Context) *Collection
}

// Appender adds one record to the log
type Appender interface {
	Append(ctx context.Context, record VisitRecord) error
}

// Pruner removes records older than a cutoff (retention window)
type Pruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is the full read/write surface of a visit log backend
type Store interface {
	Loader
	Appender
	Pruner
	// Count returns the stored running visit counter
	Count(ctx context.Context) (int64, error)
}
