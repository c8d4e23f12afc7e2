package v1

import (
	"context"

	"github.com/tinoosan/bookkeeping/internal/storage/writethrough"
)

// ReadyChecker is optionally implemented by stores to indicate readiness.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// Resyncer re-pushes entries and records that only reached the in-memory book.
type Resyncer interface {
	Pending() writethrough.Pending
	Resync(ctx context.Context) (writethrough.Pending, error)
}
