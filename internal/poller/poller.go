package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/collector"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/logger"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/sink"
	"github.com/google/uuid"
)

// Sampler produces one batch of measurement records per cycle.
type Sampler interface {
	WarmUp(ctx context.Context)
	CollectSample(ctx context.Context) []collector.Record
}

var _ Sampler = (*collector.Collector)(nil)

// Poller drives the collector at a fixed interval and hands every batch to
// all sinks. Cycles never overlap.
type Poller struct {
	sampler  Sampler
	sinks    []sink.Sink
	interval time.Duration
	logger   logger.Logger
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	ID      string
	Records int
	Failed  map[string]errors.ErrorCode
}

func New(sampler Sampler, sinks []sink.Sink, interval time.Duration, log logger.Logger) (*Poller, error) {
	errFactory := errors.New()

	if sampler == nil {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, "sampler")
	}
	if interval <= 0 {
		return nil, errFactory.WithData(errors.ErrInvalidInterval, interval.String())
	}

	return &Poller{
		sampler:  sampler,
		sinks:    sinks,
		interval: interval,
		logger:   log,
	}, nil
}

// Run performs the warm-up read, then a cycle immediately and on every tick
// until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().
		Dur("interval", p.interval).
		Int("sinks", len(p.sinks)).
		Msg("Starting poller")

	p.sampler.WarmUp(ctx)
	if ctx.Err() != nil {
		return nil
	}

	p.Cycle(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Poller stopped")
			return nil
		case <-ticker.C:
			p.Cycle(ctx)
		}
	}
}

// Cycle collects one sample and writes it to every sink. Sink failures and
// panics are logged; they never end the loop.
func (p *Poller) Cycle(ctx context.Context) (result CycleResult) {
	result.ID = uuid.NewString()
	result.Failed = make(map[string]errors.ErrorCode)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := errors.New().WithData(errors.ErrCycleFailed, fmt.Sprint(r))
			p.logger.ErrorWithCode(err).
				Str("cycle_id", result.ID).
				Msg("Cycle aborted")
		}
	}()

	records := p.sampler.CollectSample(ctx)
	result.Records = len(records)

	if len(records) == 0 {
		p.logger.Warn().
			Str("cycle_id", result.ID).
			Msg("No measurements collected, skipping write")
		return result
	}

	for _, s := range p.sinks {
		if err := s.Write(ctx, records); err != nil {
			code := sink.Classify(err)
			result.Failed[s.Name()] = code
			p.logWriteError(result.ID, s.Name(), code, err)
		}
	}

	p.logger.Debug().
		Str("cycle_id", result.ID).
		Int("records", result.Records).
		Int("failed_sinks", len(result.Failed)).
		Dur("duration", time.Since(start)).
		Msg("Cycle complete")

	return result
}

func (p *Poller) logWriteError(cycleID, name string, code errors.ErrorCode, err error) {
	event := p.logger.Error()
	if code == sink.ErrWriteTimeout {
		event = p.logger.Warn()
	}

	event.
		Err(err).
		Str("cycle_id", cycleID).
		Str("sink", name).
		Str("error_code", string(code)).
		Msg("Failed to write measurements")
}

// Close closes every sink and joins their errors.
func (p *Poller) Close() error {
	var errs []error
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
