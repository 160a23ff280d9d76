package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/efebarandurmaz/bbsearch/internal/aggregate"
	"github.com/efebarandurmaz/bbsearch/internal/config"
	"github.com/efebarandurmaz/bbsearch/internal/observability"
	"github.com/efebarandurmaz/bbsearch/internal/report"
	"github.com/efebarandurmaz/bbsearch/internal/search"
	"github.com/efebarandurmaz/bbsearch/internal/server"
	"github.com/efebarandurmaz/bbsearch/internal/snapshot"
	"github.com/efebarandurmaz/bbsearch/internal/tui"
)

func runFull(ctx context.Context, configPath string, flags *pflag.FlagSet, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return err
	}

	logger, logCloser, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}, stderr)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	shutdown := server.NewShutdownHandler(&server.ShutdownConfig{Logger: logger})
	defer shutdown.Shutdown()
	ctx, stop := shutdown.NotifyContext(ctx)
	defer stop()

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    "cli",
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	shutdown.RegisterHook("tracing", server.PriorityTracing, tp.Shutdown)

	runID := uuid.NewString()
	journal, err := observability.NewJournal(&observability.JournalConfig{
		OutputPath: cfg.Report.Journal,
		RunID:      runID,
	})
	if err != nil {
		return err
	}
	shutdown.RegisterHook("journal", server.PriorityJournal, func(context.Context) error {
		return journal.Close()
	})

	sm := observability.NewSearchMetrics()
	s, err := search.New(search.Options{
		States:    cfg.Search.States,
		MaxSteps:  cfg.Search.MaxSteps,
		Workers:   cfg.Search.Workers,
		Generator: cfg.Generator(),
		RunID:     runID,
		Logger:    logger,
		Metrics:   sm,
		Journal:   journal,
	})
	if err != nil {
		return err
	}

	var status *server.StatusServer
	if cfg.Metrics.Addr != "" {
		status = server.NewStatusServer(server.StatusConfig{
			RunID:    runID,
			States:   cfg.Search.States,
			Progress: s.Progress(),
			Metrics:  sm.Handler(),
		})
		addr, err := status.Start(cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		logger.Info("status server listening", "addr", addr.String())
		shutdown.RegisterHook("status-server", server.PriorityHTTP, status.Shutdown)
		status.SetState(server.RunStateRunning)
	}

	var result *aggregate.Result
	if cfg.Report.Progress {
		result, err = tui.RunWithProgress(ctx, s, stderr)
	} else {
		result, err = s.Run(ctx)
	}
	if err != nil {
		if status != nil {
			if errors.Is(err, context.Canceled) {
				status.SetState(server.RunStateCancelled)
			} else {
				status.SetState(server.RunStateFailed)
			}
		}
		return err
	}
	if status != nil {
		status.SetState(server.RunStateFinished)
	}

	diff, err := saveSnapshot(cfg, s, result, logger)
	if err != nil {
		return err
	}

	if cfg.Report.JSON {
		return report.WriteJSON(stdout, report.NewDocument(s.Space(), cfg.Search.MaxSteps, result, s.Timing()))
	}

	if err := report.Print(stdout, result, report.Options{
		MaxSteps:        cfg.Search.MaxSteps,
		HistogramHeight: cfg.Report.HistogramHeight,
		HistogramCutoff: cfg.Report.HistogramCutoff,
		HideHistogram:   cfg.Report.HideHistogram,
		Space:           s.Space(),
	}); err != nil {
		return err
	}
	s.Timing().PrintSummary(stdout)
	if diff != nil {
		fmt.Fprintf(stdout, "\n▸ Compared with %s:\n%s", cfg.Report.Baseline, snapshot.FormatDiff(diff))
	}
	return nil
}

// saveSnapshot stores the result when a snapshot directory is configured and
// returns its diff against the baseline, if one was named.
func saveSnapshot(cfg *config.Config, s *search.Search, result *aggregate.Result, logger *slog.Logger) (*snapshot.SnapshotDiff, error) {
	if cfg.Report.SnapshotDir == "" {
		return nil, nil
	}
	store, err := snapshot.NewStore(cfg.Report.SnapshotDir)
	if err != nil {
		return nil, err
	}

	var base *snapshot.Snapshot
	if cfg.Report.Baseline != "" {
		if base, err = store.Resolve(cfg.Report.Baseline); err != nil {
			return nil, fmt.Errorf("baseline: %w", err)
		}
	}

	snap := snapshot.NewSnapshot(s.Space(), cfg.Search.MaxSteps, s.RunID(), result)
	snap.Tag = cfg.Report.Tag
	if err := store.Save(snap); err != nil {
		return nil, err
	}
	logger.Info("snapshot saved", "id", snap.ID, "tag", snap.Tag, "dir", cfg.Report.SnapshotDir)

	if base == nil {
		return nil, nil
	}
	return snapshot.Diff(base, snap), nil
}
