package sink

import (
	"context"
	"net"
	"strings"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
	"github.com/nats-io/nats.go"
)

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInitFailed    = errors.ErrorCode("sink_init_failed")
	ErrCloseFailed   = errors.ErrShutdownFailed

	// Write Errors
	ErrWriteTimeout  = errors.ErrorCode("sink_write_timeout")
	ErrWriteRejected = errors.ErrorCode("sink_write_rejected")
	ErrWriteFailed   = errors.ErrorCode("sink_write_failed")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("sink_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("sink_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("sink_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("sink_transaction_failed")
)

// Classify maps a write failure onto the sink error taxonomy.
func Classify(err error) errors.ErrorCode {
	if err == nil {
		return ""
	}

	switch code := errors.CodeOf(err); code {
	case ErrWriteTimeout, ErrWriteRejected, ErrWriteFailed:
		return code
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
		return ErrWriteTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrWriteTimeout
	}

	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return ErrWriteTimeout
	}

	return ErrWriteFailed
}

// writeError wraps err with its classification.
func writeError(err error) errors.Error {
	return errors.New().Wrap(Classify(err), err)
}
