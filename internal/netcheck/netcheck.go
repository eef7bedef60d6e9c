// Package netcheck reports network reachability by probing a well-known
// TCP endpoint.
package netcheck

import (
	"context"
	"net"
	"time"

	"github.com/classkeeper/authsession/internal/errs"
)

// Checker answers whether the network is currently reachable and waits for
// it to come back.
type Checker interface {
	// IsOnline reports current reachability.
	IsOnline(ctx context.Context) bool
	// WaitForOnline blocks until reachability returns or timeout elapses,
	// in which case it returns errs.ErrNoConnectivity.
	WaitForOnline(ctx context.Context, timeout time.Duration) error
}

// Prober is a Checker that dials a TCP address. The zero interval defaults
// to one second between probes.
type Prober struct {
	Addr        string
	DialTimeout time.Duration
	Interval    time.Duration

	// dial is swapped in tests.
	dial func(ctx context.Context, addr string, timeout time.Duration) error
}

// NewProber builds a Prober for addr (host:port).
func NewProber(addr string) *Prober {
	return &Prober{
		Addr:        addr,
		DialTimeout: 3 * time.Second,
		Interval:    time.Second,
		dial:        dialTCP,
	}
}

func dialTCP(ctx context.Context, addr string, timeout time.Duration) error {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// IsOnline probes the address once.
func (p *Prober) IsOnline(ctx context.Context) bool {
	return p.dial(ctx, p.Addr, p.DialTimeout) == nil
}

// WaitForOnline polls until a probe succeeds or timeout elapses.
func (p *Prober) WaitForOnline(ctx context.Context, timeout time.Duration) error {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	if p.IsOnline(ctx) {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return errs.ErrNoConnectivity
		case <-tick.C:
			if p.IsOnline(ctx) {
				return nil
			}
		}
	}
}
