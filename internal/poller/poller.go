package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"go-topo/internal/collector"
	"go-topo/internal/metrics"
	"go-topo/internal/models"
	"go-topo/internal/topology"
)

// Store is the persistence the discovery loop needs.
type Store interface {
	ListDevices() ([]models.Device, error)
	ReplaceNeighbors(deviceID uint, records []topology.NeighborRecord, at time.Time) error
	ReplaceMacEntries(deviceID uint, entries []models.MacEntry, at time.Time) error
	RecordRun(run *models.DiscoveryRun) error
	DeviceInputs() ([]topology.DeviceInput, error)
}

// MacSource reads the forwarding table of one device.
type MacSource interface {
	FetchMACs(ctx context.Context, d models.Device) ([]models.MacEntry, error)
}

// Snapshot is a published topology graph.
type Snapshot struct {
	Graph    *topology.Graph
	Warnings []topology.Warning
	Failed   []string // hostnames whose retrieval failed
	Run      models.DiscoveryRun
}

type Options struct {
	Canonical bool
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	// Macs, when set, reads the MAC table of every SNMP device each run.
	Macs       MacSource
	MacWorkers int
	MacTimeout time.Duration
}

// Poller runs discovery: load the inventory, collect neighbor reports, build
// the graph and publish it.
type Poller struct {
	store     Store
	collector *collector.Collector
	builder   *topology.Builder
	canonical bool
	log       *slog.Logger
	metrics   *metrics.Metrics

	macs       MacSource
	macWorkers int
	macTimeout time.Duration

	mu     sync.Mutex // one run at a time
	latest atomic.Pointer[Snapshot]
}

func New(store Store, c *collector.Collector, b *topology.Builder, opts Options) *Poller {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.MacWorkers <= 0 {
		opts.MacWorkers = 1
	}
	return &Poller{
		store:      store,
		collector:  c,
		builder:    b,
		canonical:  opts.Canonical,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		macs:       opts.Macs,
		macWorkers: opts.MacWorkers,
		macTimeout: opts.MacTimeout,
	}
}

// Latest returns the last published snapshot, or nil before the first run.
func (p *Poller) Latest() *Snapshot {
	return p.latest.Load()
}

// Restore publishes a graph built from the stored neighbor reports without
// contacting any device.
func (p *Poller) Restore() (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	inputs, err := p.store.DeviceInputs()
	if err != nil {
		return nil, err
	}
	res, err := p.builder.Build(inputs)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Graph:    res.Graph,
		Warnings: res.Warnings,
		Run: models.DiscoveryRun{
			Devices:  len(inputs),
			Nodes:    res.Graph.NodeCount(),
			Edges:    res.Graph.EdgeCount(),
			Warnings: len(res.Warnings),
			Policy:   p.builder.Policy().String(),
		},
	}
	p.metrics.SetGraph(snap.Run.Nodes, snap.Run.Edges)
	p.latest.Store(snap)
	p.log.Info("topology restored from stored reports", "nodes", snap.Run.Nodes, "edges", snap.Run.Edges)
	return snap, nil
}

// RunOnce performs one discovery run and publishes its graph.
func (p *Poller) RunOnce(ctx context.Context) (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	devices, err := p.store.ListDevices()
	if err != nil {
		return nil, err
	}
	p.log.Info("discovery started", "devices", len(devices))

	results := p.collector.Collect(ctx, devices)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputs := collector.Inputs(results, p.canonical)
	var failed []string
	for i, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Device.Hostname)
			continue
		}
		if err := p.store.ReplaceNeighbors(r.Device.ID, inputs[i].Neighbors, start); err != nil {
			p.log.Error("failed to store neighbor report", "device", r.Device.Hostname, "err", err)
		}
	}

	if p.macs != nil {
		p.collectMacs(ctx, devices, start)
	}

	res, err := p.builder.Build(inputs)
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		p.log.Warn("skipped neighbor record", "device", w.Device, "input", w.Input, "record", w.Record, "err", w.Err)
	}

	run := models.DiscoveryRun{
		StartedAt: start,
		Duration:  time.Since(start),
		Devices:   len(devices),
		Failed:    len(failed),
		Nodes:     res.Graph.NodeCount(),
		Edges:     res.Graph.EdgeCount(),
		Warnings:  len(res.Warnings),
		Policy:    p.builder.Policy().String(),
	}
	if err := p.store.RecordRun(&run); err != nil {
		p.log.Error("failed to record discovery run", "err", err)
	}
	p.metrics.ObserveRun(run.Duration, run.Nodes, run.Edges, run.Warnings)

	snap := &Snapshot{Graph: res.Graph, Warnings: res.Warnings, Failed: failed, Run: run}
	p.latest.Store(snap)

	p.log.Info("discovery cycle complete",
		"devices", run.Devices, "failed", run.Failed, "nodes", run.Nodes, "edges", run.Edges,
		"warnings", run.Warnings, "elapsed", run.Duration)
	return snap, nil
}

// collectMacs reads and stores the MAC table of every SNMP device. A failed
// device keeps its previous table.
func (p *Poller) collectMacs(ctx context.Context, devices []models.Device, at time.Time) {
	var snmp []models.Device
	for _, d := range devices {
		if d.Transport == "snmp" {
			snmp = append(snmp, d)
		}
	}
	tables := make([][]models.MacEntry, len(snmp))
	errs := make([]error, len(snmp))

	wp := pool.New().WithMaxGoroutines(p.macWorkers)
	for i, d := range snmp {
		wp.Go(func() {
			ctx := ctx
			if p.macTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, p.macTimeout)
				defer cancel()
			}
			tables[i], errs[i] = p.macs.FetchMACs(ctx, d)
		})
	}
	wp.Wait()

	stored := 0
	for i, d := range snmp {
		if errs[i] != nil {
			p.log.Warn("MAC table retrieval failed", "device", d.Hostname, "ip", d.IPAddress, "err", errs[i])
			continue
		}
		if err := p.store.ReplaceMacEntries(d.ID, tables[i], at); err != nil {
			p.log.Error("failed to store MAC table", "device", d.Hostname, "err", err)
			continue
		}
		stored++
		p.log.Debug("MAC table stored", "device", d.Hostname, "entries", len(tables[i]))
	}
	if len(snmp) > 0 {
		p.log.Info("MAC tables collected", "devices", len(snmp), "stored", stored)
	}
}

// Run performs a discovery run immediately and then every interval until ctx
// is done.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			p.log.Error("discovery failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
