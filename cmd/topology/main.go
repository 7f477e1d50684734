package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-topo/internal/category"
	"go-topo/internal/collector"
	"go-topo/internal/inventory"
	"go-topo/internal/logging"
	"go-topo/internal/poller"
	"go-topo/internal/sshclient"
	"go-topo/internal/topology"
)

type nodeOut struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Source   string `json:"source"`
}

type linkOut struct {
	A     string                   `json:"a"`
	B     string                   `json:"b"`
	Label string                   `json:"label"`
	Pairs []topology.InterfacePair `json:"pairs"`
}

type graphOut struct {
	Policy   string    `json:"policy"`
	Nodes    []nodeOut `json:"nodes"`
	Links    []linkOut `json:"links"`
	Warnings []string  `json:"warnings,omitempty"`
	Failed   []string  `json:"failed,omitempty"`
}

func main() {
	opts, err := loadOptions(os.Args[1:])
	if err != nil {
		if isHelp(err) {
			os.Exit(0)
		}
		if !printed(err) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(2)
	}

	level := "info"
	if opts.Debug {
		level = "debug"
	}
	log := logging.New(logging.Config{Level: level})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := io.Writer(os.Stdout)
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			log.Error("cannot create output file", "err", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	if err := run(ctx, opts, out, log); err != nil {
		log.Error("topology failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *Options, out io.Writer, log *slog.Logger) error {
	table := category.DefaultTable()
	if opts.Categories != "" {
		var err error
		if table, err = category.Load(opts.Categories); err != nil {
			return err
		}
	}
	builder := topology.NewBuilder(topology.Options{
		Policy:     topology.PolicyFor(!opts.NoDedup),
		Categories: table,
		Logger:     log,
	})

	var (
		inputs []topology.DeviceInput
		failed []string
		err    error
	)
	if opts.Reports != "" {
		inputs, err = loadReports(opts.Reports, !opts.RawInterfaces)
	} else {
		inputs, failed, err = discover(ctx, opts, log)
	}
	if err != nil {
		return err
	}

	res, err := builder.Build(inputs)
	if err != nil {
		return err
	}
	if res.Graph.Empty() {
		log.Warn("Network topology graph has no nodes to visualize!")
	}

	g := graphOut{Policy: builder.Policy().String(), Nodes: []nodeOut{}, Links: []linkOut{}, Failed: failed}
	for _, n := range res.Graph.Nodes() {
		g.Nodes = append(g.Nodes, nodeOut{ID: n.ID, Category: string(n.Category), Source: string(n.Source)})
	}
	for _, l := range res.Graph.Links() {
		g.Links = append(g.Links, linkOut{A: l.A, B: l.B, Label: l.Label(), Pairs: l.Pairs})
	}
	for _, w := range res.Warnings {
		log.Warn("skipped neighbor record", "device", w.Device, "input", w.Input, "record", w.Record, "err", w.Err)
		g.Warnings = append(g.Warnings, w.Error())
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}

// loadReports reads saved builder input: a JSON array of devices with their
// neighbor records. With canonical set, interface names are shortened the
// same way as for discovered reports.
func loadReports(path string, canonical bool) ([]topology.DeviceInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var inputs []topology.DeviceInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if inputs == nil {
		inputs = []topology.DeviceInput{}
	}
	if canonical {
		for i := range inputs {
			inputs[i].Neighbors = collector.CanonicalizeInterfaces(inputs[i].Neighbors)
		}
	}
	return inputs, nil
}

func discover(ctx context.Context, opts *Options, log *slog.Logger) ([]topology.DeviceInput, []string, error) {
	devices, skipped, err := inventory.Load(opts.Inventory)
	if err != nil {
		return nil, nil, err
	}
	for _, s := range skipped {
		log.Warn("inventory row skipped", "line", s.Line, "reason", s.Reason)
	}

	fetcher := &poller.TransportFetcher{
		SSH: &poller.SSHFetcher{Runner: sshclient.New(sshclient.Config{
			Username: opts.SSHUser,
			Password: opts.SSHPassword,
			Port:     opts.SSHPort,
			Timeout:  10 * time.Second,
		})},
		SNMP: &poller.SNMPFetcher{Community: opts.Community},
	}
	c := collector.New(fetcher, collector.Options{Workers: opts.Workers, Timeout: opts.Timeout, Logger: log})
	results := c.Collect(ctx, devices)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Device.Hostname)
		}
	}
	return collector.Inputs(results, !opts.RawInterfaces), failed, nil
}
