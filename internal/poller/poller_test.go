package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-topo/internal/category"
	"go-topo/internal/collector"
	"go-topo/internal/db"
	"go-topo/internal/metrics"
	"go-topo/internal/models"
	"go-topo/internal/topology"
)

var reports = map[string][]topology.NeighborRecord{
	"R1.lab": {
		{Neighbor: "SW1.lab", LocalInterface: "Gig 0/1", NeighborInterface: "Gig 1/0/1", Platform: "WS-C3650-"},
		{Neighbor: "R2", LocalInterface: "Gig 0/2", NeighborInterface: "Gig 0/0/0"},
	},
	"SW1.lab": {
		{Neighbor: "R1.lab", LocalInterface: "GigabitEthernet1/0/1", NeighborInterface: "GigabitEthernet0/1"},
		{Neighbor: "", LocalInterface: "Gi1/0/2", NeighborInterface: "Gi0/1"},
	},
}

func newTestPoller(t *testing.T, fetch collector.FetcherFunc) (*Poller, *db.Store, *metrics.Metrics) {
	t.Helper()

	store, err := db.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, _, err = store.ImportDevices([]models.Device{
		{Hostname: "R1.lab", IPAddress: "10.0.0.1", Model: "ISR4331B"},
		{Hostname: "SW1.lab", IPAddress: "10.0.0.2", Model: "WS-C3650"},
		{Hostname: "SW9", IPAddress: "10.0.0.9", Model: "WS-C3850"},
	})
	require.NoError(t, err)

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	c := collector.New(fetch, collector.Options{Workers: 2, Metrics: m})
	b := topology.NewBuilder(topology.Options{})
	return New(store, c, b, Options{Canonical: true, Metrics: m}), store, m
}

func fakeNetwork(ctx context.Context, d models.Device) ([]topology.NeighborRecord, error) {
	if d.Hostname == "SW9" {
		return nil, errors.New("connection refused")
	}
	return reports[d.Hostname], nil
}

func TestRunOnce(t *testing.T) {
	p, store, m := newTestPoller(t, fakeNetwork)
	assert.Nil(t, p.Latest())

	snap, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.Same(t, snap, p.Latest())

	g := snap.Graph
	assert.Equal(t, 4, g.NodeCount())
	assert.Equal(t, 2, g.EdgeCount())
	assert.Equal(t, []string{"SW9"}, snap.Failed)
	require.Len(t, snap.Warnings, 1)
	assert.ErrorIs(t, snap.Warnings[0], topology.ErrMalformedRecord)

	edges := g.Edges()
	assert.Equal(t, "r1", edges[0].A)
	assert.Equal(t, "sw1", edges[0].B)
	assert.Equal(t, []topology.InterfacePair{{A: "Gi0/1", B: "Gi1/0/1"}}, edges[0].Pairs)

	sw9, ok := g.Node("sw9")
	require.True(t, ok)
	assert.Equal(t, category.CoreSwitch, sw9.Category)

	assert.Equal(t, 3, snap.Run.Devices)
	assert.Equal(t, 1, snap.Run.Failed)
	assert.Equal(t, "dedup", snap.Run.Policy)

	run, ok, err := store.LastRun()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, run.Nodes)

	devices, err := store.ListDevices()
	require.NoError(t, err)
	stored, err := store.Neighbors(devices[0].ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "Gi0/1", stored[0].LocalInterface)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Nodes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeviceFailures.WithLabelValues("ssh")))
}

func TestRunOnce_FailureKeepsStoredReport(t *testing.T) {
	var down atomic.Bool
	p, store, _ := newTestPoller(t, func(ctx context.Context, d models.Device) ([]topology.NeighborRecord, error) {
		if down.Load() && d.Hostname == "R1.lab" {
			return nil, errors.New("timeout")
		}
		return fakeNetwork(ctx, d)
	})

	_, err := p.RunOnce(context.Background())
	require.NoError(t, err)

	down.Store(true)
	snap, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"R1.lab", "SW9"}, snap.Failed)

	// the link is still known from sw1's side
	assert.Equal(t, 1, snap.Graph.EdgeCount())

	devices, err := store.ListDevices()
	require.NoError(t, err)
	stored, err := store.Neighbors(devices[0].ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestRestore(t *testing.T) {
	p, store, _ := newTestPoller(t, fakeNetwork)
	_, err := p.RunOnce(context.Background())
	require.NoError(t, err)

	// a second poller over the same store sees the stored reports
	b := topology.NewBuilder(topology.Options{})
	c := collector.New(collector.FetcherFunc(func(ctx context.Context, d models.Device) ([]topology.NeighborRecord, error) {
		t.Fatal("Restore contacted a device")
		return nil, nil
	}), collector.Options{})
	restored := New(store, c, b, Options{})

	snap, err := restored.Restore()
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Graph.NodeCount())
	assert.Equal(t, 2, snap.Graph.EdgeCount())
	assert.Same(t, snap, restored.Latest())
}

func TestRunOnce_Cancelled(t *testing.T) {
	p, _, _ := newTestPoller(t, func(ctx context.Context, d models.Device) ([]topology.NeighborRecord, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, p.Latest())
}

func TestRun_StopsWithContext(t *testing.T) {
	var runs atomic.Int32
	p, _, _ := newTestPoller(t, func(ctx context.Context, d models.Device) ([]topology.NeighborRecord, error) {
		if d.Hostname == "R1.lab" {
			runs.Add(1)
		}
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRestore_SetsGraphGauges(t *testing.T) {
	p, store, _ := newTestPoller(t, fakeNetwork)
	_, err := p.RunOnce(context.Background())
	require.NoError(t, err)

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	c := collector.New(collector.FetcherFunc(fakeNetwork), collector.Options{})
	restored := New(store, c, topology.NewBuilder(topology.Options{}), Options{Metrics: m})

	_, err = restored.Restore()
	require.NoError(t, err)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Nodes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Edges))
	assert.Zero(t, testutil.ToFloat64(m.Runs))
}

type fakeMacs map[string][]models.MacEntry

func (f fakeMacs) FetchMACs(ctx context.Context, d models.Device) ([]models.MacEntry, error) {
	entries, ok := f[d.Hostname]
	if !ok {
		return nil, errors.New("no such host")
	}
	return entries, nil
}

func TestRunOnce_MacTables(t *testing.T) {
	store, err := db.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, _, err = store.ImportDevices([]models.Device{
		{Hostname: "R1.lab", IPAddress: "10.0.0.1", Model: "ISR4331B"},
		{Hostname: "SW1.lab", IPAddress: "10.0.0.2", Model: "WS-C3650", Transport: "snmp"},
		{Hostname: "SW2.lab", IPAddress: "10.0.0.3", Model: "WS-C3650", Transport: "snmp"},
	})
	require.NoError(t, err)

	macs := fakeMacs{
		"R1.lab":  {{MAC: "de:ad:be:ef:00:01", Interface: "Gi0/1", VLAN: 1, Type: "dynamic"}},
		"SW1.lab": {{MAC: "00:11:22:33:44:55", Interface: "Gi1/0/3", VLAN: 20, Type: "dynamic"}},
	}
	c := collector.New(collector.FetcherFunc(fakeNetwork), collector.Options{})
	p := New(store, c, topology.NewBuilder(topology.Options{}), Options{Macs: macs, MacWorkers: 2})

	snap, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Failed)

	results, err := store.SearchMacs("00:11:22")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "SW1.lab", results[0].Device)
	assert.Equal(t, "Gi1/0/3", results[0].Interface)

	// only SNMP devices are walked
	results, err = store.SearchMacs("de:ad")
	require.NoError(t, err)
	assert.Empty(t, results)
}
