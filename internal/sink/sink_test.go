package sink

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/collector"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

var cycleTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testRecords() []collector.Record {
	return []collector.Record{
		{
			Measurement: "device",
			Time:        cycleTime,
			Fields: collector.Fields{
				"model":            "FRITZ!Box 7590",
				"firmware":         "154.07.29",
				"update_available": false,
				"uptime":           int64(1234567),
			},
		},
		{
			Measurement: "traffic",
			Time:        cycleTime,
			Fields: collector.Fields{
				"rate_byte_down": int64(98000),
				"dns_server1":    "192.0.2.53",
			},
		},
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o deadline reached" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.ErrorCode
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, ErrWriteTimeout},
		{"wrapped deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), ErrWriteTimeout},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutError{}}, ErrWriteTimeout},
		{"nats timeout", nats.ErrTimeout, ErrWriteTimeout},
		{"message", stderrors.New("Client.Timeout exceeded while awaiting headers"), ErrWriteTimeout},
		{"already classified", errors.New().New(ErrWriteRejected), ErrWriteRejected},
		{"unknown", stderrors.New("connection reset by peer"), ErrWriteFailed},
		{"canceled", context.Canceled, ErrWriteFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestWriteErrorKeepsCause(t *testing.T) {
	err := writeError(context.DeadlineExceeded)

	assert.Equal(t, ErrWriteTimeout, err.Code())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
