package collector

import (
	"context"
	"time"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/gateway"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/logger"
)

type Config struct {
	// DSL selects the PPP connection status endpoint instead of the IP one.
	DSL bool
}

type Option func(*Collector)

// WithClock replaces the wall clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// WithMaxHostEntries overrides DefaultMaxHostEntries.
func WithMaxHostEntries(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.maxHostEntries = n
		}
	}
}

func WithLogger(log logger.Logger) Option {
	return func(c *Collector) {
		c.logger = log
	}
}

// Collector turns one round of gateway calls into measurement records. It
// keeps no state between cycles.
type Collector struct {
	gw             gateway.Gateway
	cfg            Config
	endpoints      []EndpointSpec
	now            func() time.Time
	maxHostEntries int
	logger         logger.Logger
}

func New(gw gateway.Gateway, cfg Config, opts ...Option) *Collector {
	c := &Collector{
		gw:             gw,
		cfg:            cfg,
		endpoints:      append([]EndpointSpec{ConnectionEndpoint(cfg.DSL)}, catalog...),
		now:            time.Now,
		maxHostEntries: DefaultMaxHostEntries,
		logger:         logger.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WarmUp performs an acquisition and discards it. The router tends to miss
// values on the first read after a connection is established.
func (c *Collector) WarmUp(ctx context.Context) {
	ds := c.Acquire(ctx)
	c.logger.Debug().
		Int("answers", countNonEmpty(ds.Answers)).
		Msg("Warm-up read discarded")
}

// CollectSample acquires, selects and formats one cycle. Groups that could
// not be built are absent from the result.
func (c *Collector) CollectSample(ctx context.Context) []Record {
	ds := c.Acquire(ctx)
	return Format(ds.Time, c.Select(ds))
}

// Acquire performs every gateway call of one cycle. Failed calls leave an
// empty answer behind.
func (c *Collector) Acquire(ctx context.Context) *Dataset {
	ds := &Dataset{
		Time:    c.now().UTC(),
		Answers: make(map[string]gateway.Answer, len(c.endpoints)),
	}

	ds.Census = c.countHosts(ctx)
	c.logger.Debug().
		Int("known", ds.Census.Known).
		Int("active", ds.Census.Active).
		Int("known_lan", ds.Census.KnownLAN).
		Int("active_lan", ds.Census.ActiveLAN).
		Int("known_wlan", ds.Census.KnownWLAN).
		Int("active_wlan", ds.Census.ActiveWLAN).
		Bool("complete", ds.Census.Complete).
		Msg("Host census")

	for _, ep := range c.endpoints {
		ds.Answers[ep.Name] = c.read(ctx, ep)
	}

	ds.Firmware, ds.FirmwareErr = c.gw.FirmwareVersion(ctx)
	if ds.FirmwareErr != nil {
		c.logger.Debug().Err(ds.FirmwareErr).Msg("Failed to read firmware version")
	}

	return ds
}

func (c *Collector) read(ctx context.Context, ep EndpointSpec) gateway.Answer {
	answer, err := c.gw.Call(ctx, ep.Service, ep.Action, ep.Args)
	if err != nil {
		c.logger.Debug().
			Err(err).
			Str("endpoint", ep.Name).
			Str("service", ep.Service).
			Str("action", ep.Action).
			Msg("Endpoint call failed")
		return gateway.Answer{}
	}
	if answer == nil {
		return gateway.Answer{}
	}
	return answer
}

// Select builds every group independently. A group that cannot be built is
// left out and its cause logged once.
func (c *Collector) Select(ds *Dataset) map[Group]Fields {
	selected := make(map[Group]Fields, len(Groups))

	for _, group := range Groups {
		fields, err := tryBuild(group, ds)
		if err != nil {
			c.logger.Info().
				Err(err).
				Str("group", string(group)).
				Msg("Measurement group dropped")
			continue
		}
		selected[group] = fields
	}

	return selected
}

// Format turns the selected groups into records stamped with t, in group
// order. Empty groups are skipped.
func Format(t time.Time, selected map[Group]Fields) []Record {
	records := make([]Record, 0, len(selected))

	for _, group := range Groups {
		fields := selected[group]
		if len(fields) == 0 {
			continue
		}
		records = append(records, Record{
			Measurement: string(group),
			Time:        t,
			Fields:      fields,
		})
	}

	return records
}

func countNonEmpty(answers map[string]gateway.Answer) int {
	n := 0
	for _, a := range answers {
		if len(a) > 0 {
			n++
		}
	}
	return n
}
