package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go-topo/internal/category"
	"go-topo/internal/collector"
	"go-topo/internal/config"
	"go-topo/internal/db"
	"go-topo/internal/inventory"
	"go-topo/internal/logging"
	"go-topo/internal/metrics"
	"go-topo/internal/poller"
	"go-topo/internal/sshclient"
	"go-topo/internal/topology"
	"go-topo/internal/web"

	"github.com/gofiber/fiber/v2"
)

func main() {
	// Load .env if exists
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.Config{}).Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	store, err := db.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("database %s: %w", cfg.DBPath, err)
	}
	defer store.Close()

	if cfg.InventoryFile != "" {
		devices, skipped, err := inventory.Load(cfg.InventoryFile)
		if err != nil {
			return fmt.Errorf("inventory %s: %w", cfg.InventoryFile, err)
		}
		for _, s := range skipped {
			log.Warn("inventory row skipped", "file", cfg.InventoryFile, "line", s.Line, "reason", s.Reason)
		}
		created, updated, err := store.ImportDevices(devices)
		if err != nil {
			return fmt.Errorf("inventory import: %w", err)
		}
		log.Info("inventory imported", "file", cfg.InventoryFile, "added", created, "updated", updated)
	}

	table := category.DefaultTable()
	if cfg.CategoryFile != "" {
		if table, err = category.Load(cfg.CategoryFile); err != nil {
			return fmt.Errorf("category table %s: %w", cfg.CategoryFile, err)
		}
	}

	m, err := metrics.New(nil)
	if err != nil {
		return fmt.Errorf("metrics registration: %w", err)
	}

	snmp := &poller.SNMPFetcher{Community: cfg.SNMPCommunity}
	fetcher := &poller.TransportFetcher{
		SSH: &poller.SSHFetcher{Runner: sshclient.New(sshclient.Config{
			Username: cfg.SSHUser,
			Password: cfg.SSHPassword,
			Port:     cfg.SSHPort,
			Timeout:  cfg.SSHTimeout,
		})},
		SNMP: snmp,
	}
	c := collector.New(fetcher, collector.Options{
		Workers: cfg.Workers,
		Timeout: cfg.DeviceTimeout,
		Logger:  log,
		Metrics: m,
	})
	builder := topology.NewBuilder(topology.Options{
		Policy:     topology.PolicyFor(cfg.Dedup),
		Categories: table,
		Logger:     log.With("component", "builder"),
	})
	opts := poller.Options{
		Canonical: cfg.CanonicalInterfaces,
		Logger:    log,
		Metrics:   m,
	}
	if cfg.MacTables {
		opts.Macs = &poller.MacFetcher{SNMP: snmp}
		opts.MacWorkers = cfg.Workers
		opts.MacTimeout = cfg.DeviceTimeout
	}
	p := poller.New(store, c, builder, opts)
	if _, err := p.Restore(); err != nil {
		log.Warn("could not restore topology from stored reports", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background discovery
	go p.Run(ctx, cfg.PollInterval)

	app := fiber.New(fiber.Config{
		Views: web.NewEngine(cfg.TemplatesDir),
	})
	web.SetupRoutes(app, &web.Handlers{
		Inventory:  store,
		Discoverer: p,
		Macs:       store,
		Metrics:    m,
		Logger:     log,
	})

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	log.Info("server running", "url", "http://"+cfg.Addr())
	return app.Listen(cfg.Addr())
}
