package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nvandessel/solirona/internal/config"
	"github.com/nvandessel/solirona/internal/logging"
	"github.com/nvandessel/solirona/internal/server"
	"github.com/nvandessel/solirona/internal/simulation"
	"github.com/nvandessel/solirona/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation with the web client and HTTP API",
		Long: `Start the engine, its automatic driver and the HTTP/WebSocket server.

Open the listen address in a browser for the live view. When storage is
enabled every collapse and a periodic snapshot are recorded in the history
database; --resume continues a recorded run from its latest snapshot.

Examples:
  solirona serve
  solirona serve --addr :8080 --paused
  solirona serve --resume 6f1c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			paused, _ := cmd.Flags().GetBool("paused")
			resume, _ := cmd.Flags().GetString("resume")
			noRecord, _ := cmd.Flags().GetBool("no-record")
			if noRecord {
				cfg.Storage.Enabled = false
			}
			if resume != "" && !cfg.Storage.Enabled {
				return fmt.Errorf("--resume requires storage to be enabled")
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return serve(ctx, cfg, serveOptions{paused: paused, resume: resume})
		},
	}

	cmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().Bool("paused", false, "Start with the automatic driver stopped")
	cmd.Flags().String("resume", "", "Continue a recorded run from its latest snapshot")
	cmd.Flags().Bool("no-record", false, "Do not record this session in the history database")
	return cmd
}

type serveOptions struct {
	paused bool
	resume string
}

// serve runs until ctx is cancelled or the HTTP server fails.
func serve(ctx context.Context, cfg *config.SolironaConfig, opts serveOptions) error {
	logger := newLogger(cfg)
	dataDir, err := cfg.ResolvedDataDir()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	events := logging.NewEventLogger(dataDir, cfg.Logging.Level)
	defer events.Close()

	engine, err := newEngine(cfg, logger,
		simulation.WithMetrics(simulation.NewMetrics(reg)),
		simulation.WithEventLogger(events))
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	var recorder *store.Recorder
	if cfg.Storage.Enabled {
		history, err := store.NewSQLiteHistoryStore(dataDir)
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer history.Close()

		runID, err := prepareRun(ctx, history, engine, cfg, opts.resume)
		if err != nil {
			return err
		}
		recorder = store.NewRecorder(history, engine, runID, cfg.Storage.SnapshotEvery, logger)
		defer recorder.Close()
		logger.Info("recording run", "run", runID, "db", history.Path())
	}

	srv := server.NewServer(engine, server.Config{
		Addr:         cfg.Server.Addr,
		TickInterval: cfg.Simulation.TickInterval,
		CommandRate:  cfg.Server.CommandRate,
		CommandBurst: cfg.Server.CommandBurst,
		Gatherer:     reg,
		Logger:       logger,
	})

	if !opts.paused {
		engine.Start(cfg.Simulation.TickInterval)
	}
	defer engine.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	if recorder != nil {
		g.Go(func() error {
			return recorder.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		engine.Stop()
		return nil
	})

	logger.Info("solirona serving", "addr", cfg.Server.Addr, "nodes", engine.Len(), "running", engine.Running())
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// prepareRun creates a new run, or loads the latest snapshot of an existing
// one into engine and returns its id.
func prepareRun(ctx context.Context, history store.HistoryStore, engine *simulation.Engine, cfg *config.SolironaConfig, resume string) (string, error) {
	if resume != "" {
		rec, err := history.LatestSnapshot(ctx, resume)
		if err != nil {
			return "", fmt.Errorf("resuming run %s: %w", resume, err)
		}
		if err := engine.Load(rec.Snapshot); err != nil {
			return "", fmt.Errorf("loading snapshot at tick %d: %w", rec.Tick, err)
		}
		return resume, nil
	}

	run, err := history.CreateRun(ctx, store.Run{
		StartedAt:      time.Now().UTC(),
		NodeCount:      engine.Len(),
		WaveformLength: engine.WaveformLength(),
		Seed:           cfg.Simulation.Seed,
		Params:         engine.Params(),
	})
	if err != nil {
		return "", fmt.Errorf("creating run: %w", err)
	}
	return run.ID, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	notifySignals(ch)
	go func() {
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			slog.Info("shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
