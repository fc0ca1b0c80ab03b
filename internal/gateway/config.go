package gateway

import (
	"time"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
)

const (
	defaultTimeout = 10 * time.Second

	// descriptionBackoff is how long a failed description load is reported
	// again without contacting the router.
	descriptionBackoff = 30 * time.Second
)

type Config struct {
	Address  string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.Address == "" {
		return errFactory.WithData(ErrInvalidConfig, "address")
	}
	if c.Port <= 0 {
		return errFactory.WithData(ErrInvalidConfig, "port")
	}
	return nil
}

// Option configures a Client.
type Option func(*Client)

// WithClock replaces the clock used for the description backoff.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}
