package collector

import (
	"context"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/gateway"
)

// DefaultMaxHostEntries bounds host enumeration for a router that never
// reports the end of its host table.
const DefaultMaxHostEntries = 4096

func (c *Collector) countHosts(ctx context.Context) HostCensus {
	errFactory := errors.New()

	var census HostCensus
	for index := 0; index < c.maxHostEntries; index++ {
		entry, err := c.gw.HostEntry(ctx, index)
		if errors.Is(err, gateway.ErrEndOfList) {
			census.Complete = true
			return census
		}
		if err != nil {
			c.logger.Warn().
				Err(errFactory.Wrap(ErrCensusIncomplete, err)).
				Int("index", index).
				Msg("Host enumeration stopped early")
			return census
		}
		census.add(entry)
	}

	c.logger.ErrorWithCode(errFactory.WithData(ErrHostLimitReached, c.maxHostEntries)).
		Int("limit", c.maxHostEntries).
		Msg("Router did not signal the end of the host table")

	return census
}

func (h *HostCensus) add(entry gateway.HostEntry) {
	h.Known++
	if entry.Active {
		h.Active++
	}

	switch entry.InterfaceType {
	case gateway.InterfaceEthernet:
		h.KnownLAN++
		if entry.Active {
			h.ActiveLAN++
		}
	case gateway.InterfaceWLAN:
		h.KnownWLAN++
		if entry.Active {
			h.ActiveWLAN++
		}
	}
}
