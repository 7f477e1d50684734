package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"go-topo/internal/metrics"
	"go-topo/internal/models"
	"go-topo/internal/portname"
	"go-topo/internal/topology"
)

// Fetcher retrieves the neighbor report of one device.
type Fetcher interface {
	Fetch(ctx context.Context, d models.Device) ([]topology.NeighborRecord, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, d models.Device) ([]topology.NeighborRecord, error)

func (f FetcherFunc) Fetch(ctx context.Context, d models.Device) ([]topology.NeighborRecord, error) {
	return f(ctx, d)
}

type Options struct {
	Workers int
	Timeout time.Duration // per device, 0 means no limit
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Result is the outcome of retrieving one device. Neighbors is never nil; a
// failed device has an empty list and Err set.
type Result struct {
	Device    models.Device
	Neighbors []topology.NeighborRecord
	Err       error
	Elapsed   time.Duration
}

type Collector struct {
	fetcher Fetcher
	workers int
	timeout time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics
}

func New(fetcher Fetcher, opts Options) *Collector {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Collector{
		fetcher: fetcher,
		workers: opts.Workers,
		timeout: opts.Timeout,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
}

// Collect retrieves all devices concurrently and returns one result per
// device in the order given.
func (c *Collector) Collect(ctx context.Context, devices []models.Device) []Result {
	results := make([]Result, len(devices))

	p := pool.New().WithMaxGoroutines(c.workers)
	for i, dev := range devices {
		p.Go(func() {
			results[i] = c.collectOne(ctx, dev)
		})
	}
	p.Wait()

	return results
}

func (c *Collector) collectOne(ctx context.Context, dev models.Device) Result {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	neighbors, err := c.fetcher.Fetch(ctx, dev)
	elapsed := time.Since(start)

	if err != nil {
		c.log.Warn("neighbor retrieval failed",
			"device", dev.Hostname, "ip", dev.IPAddress, "transport", dev.Transport, "err", err)
		c.metrics.DeviceFailed(dev.Transport)
		return Result{Device: dev, Neighbors: []topology.NeighborRecord{}, Err: err, Elapsed: elapsed}
	}
	if neighbors == nil {
		neighbors = []topology.NeighborRecord{}
	}
	c.log.Debug("neighbors retrieved", "device", dev.Hostname, "count", len(neighbors), "elapsed", elapsed)
	return Result{Device: dev, Neighbors: neighbors, Elapsed: elapsed}
}

// Inputs converts results into builder input. With canonical set, interface
// names are rewritten to their short form so both ends of a link agree.
func Inputs(results []Result, canonical bool) []topology.DeviceInput {
	inputs := make([]topology.DeviceInput, 0, len(results))
	for _, r := range results {
		neighbors := r.Neighbors
		if canonical {
			neighbors = CanonicalizeInterfaces(neighbors)
		}
		inputs = append(inputs, topology.DeviceInput{
			Identity:  r.Device.Hostname,
			Category:  r.Device.Model,
			Neighbors: neighbors,
		})
	}
	return inputs
}

// CanonicalizeInterfaces returns a copy of records with short interface names.
func CanonicalizeInterfaces(records []topology.NeighborRecord) []topology.NeighborRecord {
	out := make([]topology.NeighborRecord, len(records))
	for i, r := range records {
		r.LocalInterface = portname.Canonical(r.LocalInterface)
		r.NeighborInterface = portname.Canonical(r.NeighborInterface)
		out[i] = r
	}
	return out
}
