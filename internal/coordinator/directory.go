package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"mqtt-cluster/internal/actor"
	"mqtt-cluster/internal/logger"
	"mqtt-cluster/internal/metrics"
)

// Factory builds the coordinator for a cluster identity
type Factory func(clusterID string) *Coordinator

// DirectoryOption configures a Directory
type DirectoryOption func(*Directory)

func WithDirectoryClock(clk clock.Clock) DirectoryOption {
	return func(d *Directory) { d.clock = clk }
}

// WithIdleTimeout deactivates coordinators that have no brokers and have
// not been looked up for d. Zero keeps coordinators until Close.
func WithIdleTimeout(timeout time.Duration) DirectoryOption {
	return func(d *Directory) { d.idleTimeout = timeout }
}

// Directory activates one coordinator per cluster identity on first
// lookup.
type Directory struct {
	coordinators *actor.Registry[string, *Coordinator]
	factory      Factory
	logger       *logger.Logger
	clock        clock.Clock
	idleTimeout  time.Duration

	mu       sync.Mutex
	lastUsed map[string]time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewDirectory(factory Factory, log *logger.Logger, opts ...DirectoryOption) *Directory {
	d := &Directory{
		coordinators: actor.NewRegistry[string, *Coordinator](),
		factory:      factory,
		logger:       log,
		clock:        clock.New(),
		lastUsed:     make(map[string]time.Time),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.idleTimeout <= 0 {
		close(d.done)
		return d
	}

	interval := d.idleTimeout / 2
	if interval <= 0 {
		interval = d.idleTimeout
	}
	// Created before the goroutine starts so a mock clock sees it
	ticker := d.clock.Ticker(interval)
	go d.sweepLoop(ticker)
	return d
}

// Coordinator returns the coordinator for clusterID, activating it if needed
func (d *Directory) Coordinator(clusterID string) *Coordinator {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, created := d.coordinators.GetOrCreate(clusterID, func(id string) *Coordinator {
		return d.factory(id)
	})
	if created {
		d.logger.Info("coordinator created", "cluster", clusterID)
	}
	d.lastUsed[clusterID] = d.clock.Now()
	return c
}

// Lookup returns an active coordinator without activating one
func (d *Directory) Lookup(clusterID string) (*Coordinator, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.coordinators.Get(clusterID)
	if ok {
		d.lastUsed[clusterID] = d.clock.Now()
	}
	return c, ok
}

// Deactivate removes the coordinator for clusterID after its final flush
func (d *Directory) Deactivate(ctx context.Context, clusterID string) error {
	d.mu.Lock()
	c, ok := d.coordinators.Remove(clusterID)
	delete(d.lastUsed, clusterID)
	d.mu.Unlock()

	if !ok {
		return nil
	}
	return c.Close(ctx)
}

// Len returns the number of active coordinators
func (d *Directory) Len() int {
	return d.coordinators.Len()
}

// Close stops idle reclamation and deactivates every coordinator
func (d *Directory) Close(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.done

	var err error
	d.coordinators.Range(func(id string, c *Coordinator) bool {
		err = multierr.Append(err, d.Deactivate(ctx, id))
		return true
	})
	return err
}

// MetricsSource reports gauges for every active coordinator
func (d *Directory) MetricsSource() metrics.Source {
	return func(m *metrics.Metrics) {
		m.SetCoordinatorsActive(d.coordinators.Len())
		d.coordinators.Range(func(_ string, c *Coordinator) bool {
			c.reportMetrics(m)
			return true
		})
	}
}

func (d *Directory) sweepLoop(ticker *clock.Ticker) {
	defer close(d.done)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.sweep()
		case <-d.stop:
			return
		}
	}
}

// sweep deactivates idle coordinators. Removal happens under mu so a
// concurrent lookup either refreshes the coordinator first or activates
// a fresh one afterwards.
func (d *Directory) sweep() {
	now := d.clock.Now()
	var idle []*Coordinator

	d.mu.Lock()
	d.coordinators.Range(func(id string, c *Coordinator) bool {
		if c.brokers.Len() > 0 || now.Sub(d.lastUsed[id]) < d.idleTimeout {
			return true
		}
		d.coordinators.Remove(id)
		delete(d.lastUsed, id)
		idle = append(idle, c)
		return true
	})
	d.mu.Unlock()

	for _, c := range idle {
		d.logger.Info("deactivating idle coordinator", "cluster", c.ID())

		ctx, cancel := context.WithTimeout(context.Background(), d.idleTimeout)
		if err := c.Close(ctx); err != nil {
			d.logger.Error("failed to deactivate idle coordinator",
				"cluster", c.ID(),
				"error", err)
		}
		cancel()
	}
}
