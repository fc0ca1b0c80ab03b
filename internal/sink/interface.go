package sink

import (
	"context"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/collector"
)

// Sink persists the records of one cycle.
type Sink interface {
	Name() string

	// Write stores records. A failure carries one of ErrWriteTimeout,
	// ErrWriteRejected or ErrWriteFailed.
	Write(ctx context.Context, records []collector.Record) error

	Close() error
}
