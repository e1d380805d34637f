// Package connectivity reports whether the device can reach the network
// and emits transition events the synchronizer uses to trigger a pass on
// reconnect.
package connectivity

import (
	"context"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Monitor is the connectivity view consumed by the engine.
type Monitor interface {
	// Online reports the last observed connectivity state.
	Online() bool

	// Events delivers transitions: true when connectivity was regained,
	// false when it was lost. Rapid flaps may coalesce.
	Events() <-chan bool
}

// Prober checks reachability once. Implementations must honor the context
// deadline.
type Prober func(ctx context.Context) bool

// DialProber probes by opening a TCP connection to addr.
func DialProber(addr string) Prober {
	return func(ctx context.Context) bool {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}

// Config holds configuration for the polling monitor.
type Config struct {
	// Interval between probes.
	Interval time.Duration

	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration

	// Logger for transition events.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:     10 * time.Second,
		ProbeTimeout: 3 * time.Second,
		Logger:       log.New(os.Stderr, "[connectivity] ", log.LstdFlags),
	}
}

// Poller is a Monitor that probes on a fixed interval.
type Poller struct {
	probe  Prober
	config *Config

	online atomic.Bool
	events chan bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a monitor around the given prober. The initial state
// is one synchronous probe, so callers see a settled Online() immediately.
// Use Start() to begin polling and Stop() to shut down.
func NewPoller(probe Prober, config *Config) *Poller {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Poller{
		probe:  probe,
		config: config,
		events: make(chan bool, 1),
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ProbeTimeout)
	p.online.Store(probe(ctx))
	cancel()

	return p
}

// Online implements Monitor.Online.
func (p *Poller) Online() bool {
	return p.online.Load()
}

// Events implements Monitor.Events.
func (p *Poller) Events() <-chan bool {
	return p.events
}

// Start begins the polling loop.
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop halts the polling loop and waits for it to exit.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, p.config.ProbeTimeout)
			now := p.probe(probeCtx)
			cancel()

			was := p.online.Swap(now)
			if was == now {
				continue
			}

			if now {
				p.config.Logger.Printf("Connectivity regained")
			} else {
				p.config.Logger.Printf("Connectivity lost")
			}

			// Coalesce: drop the event if the consumer is behind.
			select {
			case p.events <- now:
			default:
			}
		}
	}
}
