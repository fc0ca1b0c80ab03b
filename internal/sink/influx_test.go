package sink

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/logger"
	"github.com/influxdata/influxdb1-client/models"
	client "github.com/influxdata/influxdb1-client/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInflux struct {
	databases []string
	queries   []string
	batches   []client.BatchPoints
	writeErr  error
	closed    bool
}

func (f *fakeInflux) Query(q client.Query) (*client.Response, error) {
	f.queries = append(f.queries, q.Command)

	if q.Command != "SHOW DATABASES" {
		return &client.Response{}, nil
	}

	values := make([][]interface{}, 0, len(f.databases))
	for _, name := range f.databases {
		values = append(values, []interface{}{name})
	}
	return &client.Response{Results: []client.Result{{
		Series: []models.Row{{Name: "databases", Columns: []string{"name"}, Values: values}},
	}}}, nil
}

func (f *fakeInflux) Write(bp client.BatchPoints) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.batches = append(f.batches, bp)
	return nil
}

func (f *fakeInflux) Close() error {
	f.closed = true
	return nil
}

func influxConfig() InfluxConfig {
	return InfluxConfig{Address: "127.0.0.1", Port: 8086, Database: "FritzBox", Timeout: time.Second}
}

func TestInfluxCreatesMissingDatabase(t *testing.T) {
	fake := &fakeInflux{databases: []string{"_internal"}}

	_, err := newInflux(fake, influxConfig(), logger.Nop())
	require.NoError(t, err)

	assert.Equal(t, []string{"SHOW DATABASES", `CREATE DATABASE "FritzBox"`}, fake.queries)
}

func TestInfluxKeepsExistingDatabase(t *testing.T) {
	fake := &fakeInflux{databases: []string{"_internal", "FritzBox"}}

	_, err := newInflux(fake, influxConfig(), logger.Nop())
	require.NoError(t, err)

	assert.Equal(t, []string{"SHOW DATABASES"}, fake.queries)
}

func TestInfluxWrite(t *testing.T) {
	fake := &fakeInflux{databases: []string{"FritzBox"}}
	s, err := newInflux(fake, influxConfig(), logger.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), testRecords()))
	require.Len(t, fake.batches, 1)

	bp := fake.batches[0]
	assert.Equal(t, "FritzBox", bp.Database())
	assert.Equal(t, "s", bp.Precision())

	points := bp.Points()
	require.Len(t, points, 2)
	assert.Equal(t, "device", points[0].Name())
	assert.True(t, points[0].Time().Equal(cycleTime))
	assert.Empty(t, points[0].Tags())

	fields, err := points[0].Fields()
	require.NoError(t, err)
	assert.Equal(t, "FRITZ!Box 7590", fields["model"])
	assert.Equal(t, false, fields["update_available"])
}

func TestInfluxWriteEmptyIsNoop(t *testing.T) {
	fake := &fakeInflux{databases: []string{"FritzBox"}}
	s, err := newInflux(fake, influxConfig(), logger.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), nil))
	assert.Empty(t, fake.batches)
}

func TestInfluxWriteErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.ErrorCode
	}{
		{"timeout", stderrors.New(`Post "http://127.0.0.1:8086/write": context deadline exceeded (Client.Timeout exceeded while awaiting headers)`), ErrWriteTimeout},
		{"rejected", stderrors.New(`partial write: field type conflict`), ErrWriteRejected},
		{"failed", stderrors.New("connection refused"), ErrWriteFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeInflux{databases: []string{"FritzBox"}, writeErr: tt.err}
			s, err := newInflux(fake, influxConfig(), logger.Nop())
			require.NoError(t, err)

			err = s.Write(context.Background(), testRecords())
			assert.Equal(t, tt.want, errors.CodeOf(err))
		})
	}
}

func TestInfluxConfigValidate(t *testing.T) {
	assert.NoError(t, influxConfig().Validate())

	cfg := influxConfig()
	cfg.Database = ""
	assert.True(t, errors.HasCode(cfg.Validate(), ErrInvalidConfig))
}
