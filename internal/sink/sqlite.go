package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/collector"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultDirPerm = 0o755
	timeLayout     = time.RFC3339

	// maxBufferedBatches bounds the buffer, in batches, while flushes fail.
	maxBufferedBatches = 4
)

type SQLiteConfig struct {
	Path string
	// BatchSize is the number of cycles buffered before a flush.
	BatchSize int
	// BatchTimeout flushes a partial batch periodically. Zero disables it.
	BatchTimeout time.Duration
	BackupDir    string
}

func (c SQLiteConfig) Validate() error {
	if c.Path == "" {
		return errors.New().WithData(ErrInvalidConfig, "sqlite path")
	}
	return nil
}

// SQLite stores every field of every record as one row of a narrow table.
type SQLite struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           SQLiteConfig
	mu            sync.Mutex
	buffer        [][]collector.Record
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

var _ Sink = (*SQLite)(nil)

func NewSQLite(cfg SQLiteConfig, log logger.Logger) (*SQLite, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Join(filepath.Dir(cfg.Path), "backups")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrInitFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.Path,
			Error: err.Error(),
		})
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal=WAL&_auto_vacuum=2")
	if err != nil {
		return nil, errFactory.WithData(ErrInitFailed, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := validateAndUpdateSchema(db, cfg.BackupDir, log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrInitFailed, err)
	}

	log.Info().
		Str("path", cfg.Path).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("SQLite sink initialized")

	s := &SQLite{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([][]collector.Record, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchSize > 1 && cfg.BatchTimeout > 0 {
		s.flushTicker = time.NewTicker(cfg.BatchTimeout)
		go s.flusher()
	} else {
		close(s.flushDoneChan)
	}

	return s, nil
}

func (*SQLite) Name() string {
	return "sqlite"
}

func (s *SQLite) Write(ctx context.Context, records []collector.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return writeError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer = append(s.buffer, records)
	s.trimBuffer()
	if len(s.buffer) < s.cfg.BatchSize {
		return nil
	}

	if err := s.flush(); err != nil {
		return writeError(err)
	}
	return nil
}

func (s *SQLite) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.shutdownChan)
		if s.flushTicker != nil {
			s.flushTicker.Stop()
		}
		<-s.flushDoneChan

		s.mu.Lock()
		if err := s.flush(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to flush buffered measurements")
		}
		s.mu.Unlock()

		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			closeErr = errors.New().WithData(ErrCloseFailed, struct {
				Phase string
				Error string
			}{
				Phase: "checkpoint_wal",
				Error: err.Error(),
			})
		}

		if err := s.db.Close(); err != nil && closeErr == nil {
			closeErr = errors.New().WithData(ErrCloseFailed, struct {
				Phase string
				Error string
			}{
				Phase: "close_database",
				Error: err.Error(),
			})
		}

		s.logger.Info().Msg("SQLite sink closed")
	})

	return closeErr
}

// trimBuffer drops the oldest cycles once the buffer exceeds its bound.
// Callers hold s.mu.
func (s *SQLite) trimBuffer() {
	limit := s.cfg.BatchSize * maxBufferedBatches
	if len(s.buffer) <= limit {
		return
	}

	dropped := len(s.buffer) - limit
	s.buffer = append(s.buffer[:0], s.buffer[dropped:]...)

	s.logger.Warn().
		Int("dropped_cycles", dropped).
		Int("buffered_cycles", len(s.buffer)).
		Msg("Dropped oldest unflushed measurements")
}

func (s *SQLite) flusher() {
	defer close(s.flushDoneChan)

	for {
		select {
		case <-s.flushTicker.C:
			s.mu.Lock()
			if err := s.flush(); err != nil {
				s.logger.Error().Err(err).Msg("Periodic flush failed")
			}
			s.mu.Unlock()
		case <-s.shutdownChan:
			return
		}
	}
}

// flush writes the buffer in one transaction. Callers hold s.mu.
func (s *SQLite) flush() error {
	if len(s.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := s.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertMeasurementSQL)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	rows := 0
	for _, cycle := range s.buffer {
		for _, r := range cycle {
			ts := r.Time.UTC().Format(timeLayout)
			for field, value := range r.Fields {
				text, kind := encodeValue(value)
				if _, err := stmt.Exec(ts, r.Measurement, field, text, kind); err != nil {
					if rbErr := tx.Rollback(); rbErr != nil {
						s.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
					}
					return errFactory.Wrap(ErrTransactionFailed, err)
				}
				rows++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	s.logger.Debug().
		Int("cycles", len(s.buffer)).
		Int("rows", rows).
		Msg("Flushed measurements to database")
	s.buffer = s.buffer[:0]

	return nil
}

// encodeValue renders a field value and names its type.
func encodeValue(v any) (string, string) {
	switch val := v.(type) {
	case bool:
		return strconv.FormatBool(val), "boolean"
	case int:
		return strconv.Itoa(val), "integer"
	case int64:
		return strconv.FormatInt(val, 10), "integer"
	case uint64:
		return strconv.FormatUint(val, 10), "integer"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), "float"
	case string:
		return val, "string"
	default:
		return fmt.Sprint(val), "string"
	}
}
