package sink

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/collector"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/logger"
	client "github.com/influxdata/influxdb1-client/v2"
)

const influxPrecision = "s"

type InfluxConfig struct {
	Address  string
	Port     int
	User     string
	Password string
	Database string
	Timeout  time.Duration
}

func (c InfluxConfig) Validate() error {
	errFactory := errors.New()
	if c.Address == "" {
		return errFactory.WithData(ErrInvalidConfig, "influxdb address")
	}
	if c.Database == "" {
		return errFactory.WithData(ErrInvalidConfig, "influxdb database")
	}
	return nil
}

// influxClient is the part of client.Client the sink uses.
type influxClient interface {
	Query(q client.Query) (*client.Response, error)
	Write(bp client.BatchPoints) error
	Close() error
}

// Influx writes one batch of points per cycle to an InfluxDB 1.x database.
type Influx struct {
	client influxClient
	cfg    InfluxConfig
	logger logger.Logger
}

var _ Sink = (*Influx)(nil)

func NewInflux(cfg InfluxConfig, log logger.Logger) (*Influx, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     "http://" + net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)),
		Username: cfg.User,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, errFactory.Wrap(ErrInitFailed, err)
	}

	s, err := newInflux(c, cfg, log)
	if err != nil {
		c.Close()
		return nil, err
	}

	return s, nil
}

func newInflux(c influxClient, cfg InfluxConfig, log logger.Logger) (*Influx, error) {
	s := &Influx{client: c, cfg: cfg, logger: log}

	if err := s.ensureDatabase(); err != nil {
		return nil, errors.New().Wrap(ErrInitFailed, err)
	}

	log.Info().
		Str("address", cfg.Address).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("InfluxDB sink initialized")

	return s, nil
}

func (*Influx) Name() string {
	return "influxdb"
}

// ensureDatabase creates the database unless it already exists.
func (s *Influx) ensureDatabase() error {
	names, err := s.query("SHOW DATABASES")
	if err != nil {
		return err
	}

	for _, name := range names {
		if name == s.cfg.Database {
			return nil
		}
	}

	if _, err := s.query(fmt.Sprintf("CREATE DATABASE %s", quoteIdent(s.cfg.Database))); err != nil {
		return err
	}

	s.logger.Info().Str("database", s.cfg.Database).Msg("Created InfluxDB database")

	return nil
}

// query runs an InfluxQL statement and returns the first column of every
// returned row.
func (s *Influx) query(cmd string) ([]string, error) {
	resp, err := s.client.Query(client.NewQuery(cmd, "", ""))
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}

	var values []string
	for _, result := range resp.Results {
		for _, row := range result.Series {
			for _, v := range row.Values {
				if len(v) == 0 {
					continue
				}
				if name, ok := v[0].(string); ok {
					values = append(values, name)
				}
			}
		}
	}

	return values, nil
}

func (s *Influx) Write(ctx context.Context, records []collector.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return writeError(err)
	}

	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  s.cfg.Database,
		Precision: influxPrecision,
	})
	if err != nil {
		return errors.New().Wrap(ErrWriteFailed, err)
	}

	for _, r := range records {
		pt, err := client.NewPoint(r.Measurement, nil, map[string]interface{}(r.Fields), r.Time)
		if err != nil {
			return errors.New().Wrap(ErrWriteRejected, err)
		}
		bp.AddPoint(pt)
	}

	if err := s.client.Write(bp); err != nil {
		if isRejection(err) {
			return errors.New().Wrap(ErrWriteRejected, err)
		}
		return writeError(err)
	}

	s.logger.Debug().Int("points", len(records)).Msg("Wrote points to InfluxDB")

	return nil
}

func (s *Influx) Close() error {
	if err := s.client.Close(); err != nil {
		return errors.New().Wrap(ErrCloseFailed, err)
	}
	return nil
}

// isRejection reports whether the server refused the points themselves.
func isRejection(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "partial write") ||
		strings.Contains(msg, "field type conflict") ||
		strings.Contains(msg, "database not found")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `\"`) + `"`
}
