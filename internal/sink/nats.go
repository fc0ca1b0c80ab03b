package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/collector"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/logger"
	"github.com/nats-io/nats.go"
)

const defaultNATSTimeout = 5 * time.Second

type NATSConfig struct {
	URL      string
	Subject  string
	User     string
	Password string
	Timeout  time.Duration
}

func (c NATSConfig) Validate() error {
	errFactory := errors.New()
	if c.URL == "" {
		return errFactory.WithData(ErrInvalidConfig, "nats url")
	}
	if c.Subject == "" {
		return errFactory.WithData(ErrInvalidConfig, "nats subject")
	}
	return nil
}

// natsConn is the part of *nats.Conn the sink uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// natsMessage is the JSON body of one published record.
type natsMessage struct {
	Measurement string           `json:"measurement"`
	Time        string           `json:"time"`
	Fields      collector.Fields `json:"fields"`
}

// NATS publishes each record on <subject>.<measurement>.
type NATS struct {
	conn   natsConn
	cfg    NATSConfig
	logger logger.Logger
}

var _ Sink = (*NATS)(nil)

func NewNATS(cfg NATSConfig, log logger.Logger) (*NATS, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultNATSTimeout
	}

	opts := []nats.Option{
		nats.Name("fritzboxinflux"),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errFactory.Wrap(ErrInitFailed, err)
	}

	log.Info().
		Str("url", nc.ConnectedUrl()).
		Str("subject", cfg.Subject).
		Msg("NATS sink initialized")

	return newNATS(nc, cfg, log), nil
}

func newNATS(conn natsConn, cfg NATSConfig, log logger.Logger) *NATS {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultNATSTimeout
	}
	return &NATS{conn: conn, cfg: cfg, logger: log}
}

func (*NATS) Name() string {
	return "nats"
}

func (s *NATS) Write(ctx context.Context, records []collector.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return writeError(err)
	}

	for _, r := range records {
		data, err := json.Marshal(natsMessage{
			Measurement: r.Measurement,
			Time:        r.Time.UTC().Format(time.RFC3339),
			Fields:      r.Fields,
		})
		if err != nil {
			return errors.New().Wrap(ErrWriteRejected, err)
		}

		if err := s.conn.Publish(s.cfg.Subject+"."+r.Measurement, data); err != nil {
			return writeError(err)
		}
	}

	timeout := s.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return writeError(context.DeadlineExceeded)
	}

	if err := s.conn.FlushTimeout(timeout); err != nil {
		return writeError(err)
	}

	s.logger.Debug().Int("messages", len(records)).Str("subject", s.cfg.Subject).Msg("Published records to NATS")

	return nil
}

func (s *NATS) Close() error {
	s.conn.Close()
	return nil
}
