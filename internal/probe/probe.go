// Package probe checks database and network reachability ahead of work that
// would otherwise fail slowly. Results are values; probes never return errors.
package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"gradebook_service/internal/domain"
)

const defaultTimeout = 2 * time.Second

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Prober struct {
	db      Pinger
	dialer  Dialer
	timeout time.Duration
}

func New(db Pinger, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Prober{db: db, dialer: &net.Dialer{}, timeout: timeout}
}

// WithDialer replaces the network dialer, mostly for tests.
func (p *Prober) WithDialer(d Dialer) *Prober {
	p.dialer = d
	return p
}

func (p *Prober) CheckDatabase(ctx context.Context) (res domain.Reachability) {
	defer func() {
		if r := recover(); r != nil {
			res = domain.Unreachable(fmt.Sprintf("database probe panicked: %v", r))
		}
	}()

	if p.db == nil {
		return domain.Unreachable("database not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.db.PingContext(ctx); err != nil {
		return domain.Unreachable(fmt.Sprintf("database ping failed: %v", err))
	}
	return domain.Reachable()
}

// CheckNetwork dials host ("host:port") over TCP. A zero timeout uses the
// prober default.
func (p *Prober) CheckNetwork(ctx context.Context, host string, timeout time.Duration) (res domain.Reachability) {
	defer func() {
		if r := recover(); r != nil {
			res = domain.Unreachable(fmt.Sprintf("network probe panicked: %v", r))
		}
	}()

	if host == "" {
		return domain.Unreachable("no host configured")
	}
	if timeout <= 0 {
		timeout = p.timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return domain.Unreachable(fmt.Sprintf("dial %s: %v", host, err))
	}
	_ = conn.Close()
	return domain.Reachable()
}
