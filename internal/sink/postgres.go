package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/collector"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type PostgresConfig struct {
	URL   string
	Table string
}

func (c PostgresConfig) Validate() error {
	errFactory := errors.New()
	if c.URL == "" {
		return errFactory.WithData(ErrInvalidConfig, "postgres url")
	}
	if !tableNamePattern.MatchString(c.Table) {
		return errFactory.WithData(ErrInvalidConfig, "postgres table "+c.Table)
	}
	return nil
}

// pgxPool is the part of *pgxpool.Pool the sink uses.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// Postgres stores one row per record with the fields as jsonb. It works on
// plain PostgreSQL and on TimescaleDB.
type Postgres struct {
	pool   pgxPool
	cfg    PostgresConfig
	insert string
	logger logger.Logger
}

var _ Sink = (*Postgres)(nil)

func NewPostgres(ctx context.Context, cfg PostgresConfig, log logger.Logger) (*Postgres, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errFactory.Wrap(ErrInitFailed, err)
	}

	s, err := newPostgres(ctx, pool, cfg, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Str("host", poolConfig.ConnConfig.Host).
		Str("table", cfg.Table).
		Int32("max_conns", poolConfig.MaxConns).
		Msg("PostgreSQL sink initialized")

	return s, nil
}

func newPostgres(ctx context.Context, pool pgxPool, cfg PostgresConfig, log logger.Logger) (*Postgres, error) {
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		time        TIMESTAMPTZ NOT NULL,
		measurement TEXT        NOT NULL,
		fields      JSONB       NOT NULL,
		PRIMARY KEY (time, measurement)
	)`, cfg.Table)

	if _, err := pool.Exec(ctx, create); err != nil {
		return nil, errors.New().Wrap(ErrSchemaInitFailed, err)
	}

	return &Postgres{
		pool: pool,
		cfg:  cfg,
		insert: fmt.Sprintf(`INSERT INTO %s (time, measurement, fields) VALUES ($1, $2, $3)
		ON CONFLICT (time, measurement) DO UPDATE SET fields = EXCLUDED.fields`, cfg.Table),
		logger: log,
	}, nil
}

func (*Postgres) Name() string {
	return "postgres"
}

func (s *Postgres) Write(ctx context.Context, records []collector.Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		fields, err := json.Marshal(r.Fields)
		if err != nil {
			return errors.New().Wrap(ErrWriteRejected, err)
		}
		batch.Queue(s.insert, r.Time.UTC(), r.Measurement, fields)
	}

	if err := sendBatchExecAll(ctx, batch, s.pool.SendBatch, "measurements"); err != nil {
		return writeError(err)
	}

	s.logger.Debug().Int("rows", len(records)).Str("table", s.cfg.Table).Msg("Wrote rows to PostgreSQL")

	return nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func sendBatchExecAll(ctx context.Context, batch *pgx.Batch, send func(context.Context, *pgx.Batch) pgx.BatchResults, operation string) (err error) {
	if batch == nil || batch.Len() == 0 {
		return nil
	}

	br := send(ctx, batch)
	defer func() {
		if closeErr := br.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%s batch close: %w", operation, closeErr)
		}
	}()

	for i := 0; i < batch.Len(); i++ {
		tag, execErr := br.Exec()
		if execErr != nil {
			return fmt.Errorf("%s batch exec (command %d): %w", operation, i, execErr)
		}
		if tag.RowsAffected() == 0 {
			return errors.New().WithData(ErrWriteRejected, fmt.Sprintf("%s batch command %d affected no rows", operation, i))
		}
	}

	return nil
}
