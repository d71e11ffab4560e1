// Package clock provides the broker's wall-clock source: a network time
// query against a primary NTP host with a pool fallback.
package clock

import (
	"context"
	"errors"
	"time"

	"github.com/beevik/ntp"
)

// ErrClockUnavailable is returned when both the primary and fallback time
// providers fail within their timeouts. Callers should treat this as
// transient and retry.
var ErrClockUnavailable = errors.New("clock: no time provider reachable")

const (
	primaryHost  = "time.cloudflare.com"
	fallbackHost = "pool.ntp.org"
	queryTimeout = 3 * time.Second
)

// Clock returns a best-effort wall time in epoch seconds. NetworkClock
// does not enforce monotonicity: each call reports the queried
// provider's time as is, so successive readings can go backwards.
type Clock interface {
	NowEpochSeconds(ctx context.Context) (int64, error)
}

// NetworkClock queries primaryHost first, falling back to fallbackHost on
// failure, exactly as the original broker's get_ntp_time did.
type NetworkClock struct {
	queryFunc func(host string, opt ntp.QueryOptions) (*ntp.Response, error)
}

// NewNetworkClock returns a Clock backed by real NTP queries.
func NewNetworkClock() *NetworkClock {
	return &NetworkClock{queryFunc: ntp.QueryWithOptions}
}

// NowEpochSeconds queries the primary time provider, then the fallback,
// returning ErrClockUnavailable only if both fail.
func (c *NetworkClock) NowEpochSeconds(ctx context.Context) (int64, error) {
	if t, err := c.query(ctx, primaryHost); err == nil {
		return t, nil
	}
	if t, err := c.query(ctx, fallbackHost); err == nil {
		return t, nil
	}
	return 0, ErrClockUnavailable
}

func (c *NetworkClock) query(ctx context.Context, host string) (int64, error) {
	deadline, ok := ctx.Deadline()
	timeout := queryTimeout
	if ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return 0, context.DeadlineExceeded
	}

	resp, err := c.queryFunc(host, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, err
	}
	return time.Now().Add(resp.ClockOffset).Unix(), nil
}

// FixedClock is a deterministic Clock for tests.
type FixedClock struct {
	Epoch int64
	Err   error
}

// NowEpochSeconds returns the fixed epoch, or the configured error.
func (f FixedClock) NowEpochSeconds(_ context.Context) (int64, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	return f.Epoch, nil
}
