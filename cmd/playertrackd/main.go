// playertrackd records game-server player counts and streams them to viewers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/governor"
	"github.com/xtxerr/playertrack/internal/history"
	"github.com/xtxerr/playertrack/internal/hub"
	"github.com/xtxerr/playertrack/internal/ingest"
	"github.com/xtxerr/playertrack/internal/live"
	"github.com/xtxerr/playertrack/internal/loader"
	"github.com/xtxerr/playertrack/internal/logging"
	"github.com/xtxerr/playertrack/internal/metrics"
	"github.com/xtxerr/playertrack/internal/record"
	"github.com/xtxerr/playertrack/internal/roster"
	"github.com/xtxerr/playertrack/internal/server"
	"github.com/xtxerr/playertrack/internal/storage"
	"github.com/xtxerr/playertrack/internal/storage/mirror"
	"github.com/xtxerr/playertrack/internal/storage/retention"
	"github.com/xtxerr/playertrack/internal/wire"
)

// Version is set at build time via ldflags
var Version = "dev"

var log = logging.Component("main")

func main() {
	// CLI flags
	cfgPath := flag.String("config", "", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	serversFile := flag.String("servers", "", "server roster file (overrides config)")
	flag.Parse()

	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// CLI overrides
	if *listen != "" {
		if err := cfg.HTTP.SetAddr(*listen); err != nil {
			fmt.Fprintf(os.Stderr, "invalid -listen %q: %v\n", *listen, err)
			os.Exit(1)
		}
	}
	if *serversFile != "" {
		cfg.ServersFile = *serversFile
		cfg.ServersInline = ""
	}

	if err := loader.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	logging.Init(level, cfg.Log.JSON())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("playertrackd failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *loader.Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	log.Info("playertrackd starting", "version", Version)

	// =========================================================================
	// Roster and Storage
	// =========================================================================

	r, err := roster.Load(cfg.RosterSource())
	if err != nil {
		return errors.Wrap(err, "load roster")
	}
	log.Info("roster loaded", "servers", r.Len())

	engine, err := storage.Open(cfg.Storage)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.EnsureSchema(ctx); err != nil {
		if errors.IsFatalStorage(err) {
			return err
		}
		log.Error("schema check failed", "error", err)
	}

	// =========================================================================
	// Live State (history, records)
	// =========================================================================

	keys := make([]string, 0, r.Len())
	for _, srv := range r.All() {
		keys = append(keys, srv.Key())
	}
	tracker := record.New(engine, keys)

	state := live.New(r, tracker, cfg.WindowCapacity(), wire.PublicConfig{
		GraphDurationMs:       cfg.GraphDuration.Milliseconds(),
		ServerGraphDurationMs: cfg.ServerGraphDuration.Milliseconds(),
		PingIntervalMs:        cfg.PingInterval.Milliseconds(),
		GraphMaxLength:        cfg.WindowCapacity(),
		ServerGraphMaxLength:  cfg.ServerWindowCapacity(),
		GraphDurationLabel:    cfg.DurationLabel(),
	})

	loaded, err := history.New(engine, r, cfg.GraphDuration).Load(ctx, state.Target())
	if err != nil {
		log.Error("history not loaded, starting with empty graphs", "error", err)
	} else {
		log.Info("history loaded", "rows", loaded.Rows, "servers", loaded.Entities, "rounds", loaded.TimelineLen)
	}

	reconciled, err := tracker.Reconcile(ctx)
	if err != nil {
		return err
	}
	log.Info("records loaded",
		"stored", reconciled.Stored,
		"migrated", reconciled.Migrated,
		"unknown", reconciled.Unknown,
		"failed", reconciled.Failed)

	// =========================================================================
	// Distribution and Ingestion
	// =========================================================================

	h := hub.New(cfg.Connections.SendBufferSize)
	gov := governor.New(governor.Config{
		MaxPerIP:             cfg.Connections.MaxPerIP,
		MaxTotal:             cfg.Connections.MaxTotal,
		TrustProxy:           cfg.Connections.TrustProxy,
		AllowedOrigins:       cfg.Connections.AllowedOrigins,
		MaxMessagesPerWindow: cfg.Messages.MaxPerWindow,
		MessageWindow:        cfg.Messages.Window,
	})

	writer := ingest.NewWriter(engine, cfg.Ingest.QueueSize)
	defer writer.Close()

	pipeline := ingest.New(state, h, writer, ingest.Config{
		QueueSize:      cfg.Ingest.TickQueueSize,
		LogFailedPings: cfg.LogFailedPings,
	})

	var sweeper *retention.Sweeper
	if cfg.Retention.Enabled {
		sweeper = retention.New(engine, cfg.GraphDuration, cfg.Retention)
	}

	exporter := metrics.New(r, metrics.Sources{
		Governor: gov,
		Hub:      h,
		Pipeline: pipeline,
		Writer:   writer,
		Sweeper:  sweeper,
		Mirror:   func() (mirror.Stats, bool) { return storage.MirrorStats(engine) },
	})
	exporter.SetRecords(tracker.Snapshot())
	pipeline.OnRound(exporter.ObserveRound)

	srv := server.New(server.Config{
		HTTP:        cfg.HTTP,
		MaxPayload:  cfg.Messages.MaxPayload,
		IngestToken: cfg.Ingest.Token,
	}, server.Deps{
		State:    state,
		Hub:      h,
		Governor: gov,
		Pipeline: pipeline,
		Exporter: exporter,
	})

	// =========================================================================
	// Run
	// =========================================================================

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return pipeline.Run(gctx) })
	if sweeper != nil {
		g.Go(func() error { return sweeper.Run(gctx) })
	} else {
		log.Info("retention sweeper disabled")
	}

	err = g.Wait()
	log.Info("shutting down")
	return err
}
