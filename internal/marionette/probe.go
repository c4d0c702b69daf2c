package marionette

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/shinji-kodama/shield/internal/model"
)

// DefaultPort is the port Marionette listens on when the profile does not
// override marionette.port.
const DefaultPort = 2828

// DefaultInterval is the delay between connection attempts in WaitReady.
const DefaultInterval = 100 * time.Millisecond

// Probe checks whether the automation endpoint accepts TCP connections.
//
// Like a port scanner it asks the OS directly: a successful dial means
// something is listening. It does not speak the Marionette protocol.
type Probe struct {
	host        string
	port        int
	interval    time.Duration
	dialTimeout time.Duration
}

// NewProbe creates a Probe for host:port. An empty host means loopback
// and a zero port means DefaultPort.
func NewProbe(host string, port int) *Probe {
	if host == "" {
		host = "127.0.0.1"
	}
	if port == 0 {
		port = DefaultPort
	}
	return &Probe{
		host:        host,
		port:        port,
		interval:    DefaultInterval,
		dialTimeout: time.Second,
	}
}

// Addr returns the probed address in host:port form.
func (p *Probe) Addr() string {
	return net.JoinHostPort(p.host, strconv.Itoa(p.port))
}

// IsListening reports whether a TCP connection to the endpoint succeeds.
// The connection is closed immediately.
func (p *Probe) IsListening(ctx context.Context) bool {
	d := net.Dialer{Timeout: p.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr())
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// WaitReady polls the endpoint every interval until it accepts a
// connection. It gives up with a TIMEOUT error after wait, and returns
// ctx's error if ctx ends first. A wait of zero or less checks once.
func (p *Probe) WaitReady(ctx context.Context, wait time.Duration) error {
	if p.IsListening(ctx) {
		return nil
	}
	if wait <= 0 {
		return model.TimeoutError(fmt.Sprintf("marionette is not listening on %s", p.Addr()), nil)
	}

	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	tick := time.NewTicker(p.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return model.TimeoutError(
				fmt.Sprintf("marionette did not start listening on %s within %s", p.Addr(), wait), nil)
		case <-tick.C:
			if p.IsListening(ctx) {
				return nil
			}
		}
	}
}
