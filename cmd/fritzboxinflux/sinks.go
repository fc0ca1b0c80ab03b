package main

import (
	"context"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/config"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/logger"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/sink"
)

// openSinks opens every configured sink. On failure the sinks opened so far
// are closed again.
func openSinks(ctx context.Context, cfg *config.Config) ([]sink.Sink, error) {
	sinks := make([]sink.Sink, 0, len(cfg.Sinks))

	for _, name := range cfg.Sinks {
		s, err := openSink(ctx, config.SinkKind(name), cfg)
		if err != nil {
			closeSinks(sinks)
			return nil, err
		}
		sinks = append(sinks, s)
	}

	return sinks, nil
}

func openSink(ctx context.Context, kind config.SinkKind, cfg *config.Config) (sink.Sink, error) {
	log := logger.Default()

	switch kind {
	case config.SinkInfluxDB:
		return sink.NewInflux(sink.InfluxConfig{
			Address:  cfg.InfluxDB.Address,
			Port:     cfg.InfluxDB.Port,
			User:     cfg.InfluxDB.User,
			Password: cfg.InfluxDB.Password,
			Database: cfg.InfluxDB.Database,
			Timeout:  seconds(cfg.InfluxDB.Timeout),
		}, log)
	case config.SinkSQLite:
		return sink.NewSQLite(sink.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			BatchSize:    cfg.SQLite.BatchSize,
			BatchTimeout: seconds(cfg.SQLite.BatchTimeout),
			BackupDir:    cfg.SQLite.BackupDir,
		}, log)
	case config.SinkPostgres:
		return sink.NewPostgres(ctx, sink.PostgresConfig{
			URL:   cfg.Postgres.URL,
			Table: cfg.Postgres.Table,
		}, log)
	case config.SinkNATS:
		return sink.NewNATS(sink.NATSConfig{
			URL:      cfg.NATS.URL,
			Subject:  cfg.NATS.Subject,
			User:     cfg.NATS.User,
			Password: cfg.NATS.Password,
			Timeout:  seconds(cfg.NATS.Timeout),
		}, log)
	default:
		return nil, errors.New().WithData(errors.ErrUnknownSink, string(kind))
	}
}

func closeSinks(sinks []sink.Sink) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			logger.Error().Err(err).Str("sink", s.Name()).Msg("Failed to close sink")
		}
	}
}
