package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permitcheck/internal/fetcher"
	"github.com/sells-group/permitcheck/internal/metrics"
	"github.com/sells-group/permitcheck/internal/store"
)

// DefaultInterval is how long a successful refresh stays current.
const DefaultInterval = 12 * time.Hour

// Engine orchestrates source refreshes.
type Engine struct {
	store    store.Store
	fetcher  fetcher.Fetcher
	cache    *fetcher.Cache
	reg      *Registry
	interval time.Duration
	workers  int
	now      func() time.Time
}

// EngineConfig carries the Engine's tunables.
type EngineConfig struct {
	Interval time.Duration
	Workers  int
}

// RunOpts configures which sources to run and how.
type RunOpts struct {
	Sources []string // restrict to specific source names
	Force   bool     // ignore the refresh interval and the download cache
}

// RunSummary reports one engine pass.
type RunSummary struct {
	RunID   string             `json:"run_id"`
	Results map[string]*Result `json:"results"`
	Skipped []string           `json:"skipped,omitempty"`
	Failed  []string           `json:"failed,omitempty"`
}

// NewEngine creates a new ingest engine.
func NewEngine(st store.Store, f fetcher.Fetcher, cache *fetcher.Cache, reg *Registry, cfg EngineConfig) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Engine{
		store:    st,
		fetcher:  f,
		cache:    cache,
		reg:      reg,
		interval: cfg.Interval,
		workers:  cfg.Workers,
		now:      time.Now,
	}
}

// due reports whether a source last refreshed at last should run now.
func (e *Engine) due(last *time.Time) bool {
	return last == nil || e.now().Sub(*last) >= e.interval
}

// Run refreshes the selected sources in registration order. Only a store
// that cannot be reached is fatal; a failing source is logged and the
// next one still runs.
func (e *Engine) Run(ctx context.Context, opts RunOpts) (*RunSummary, error) {
	runID := uuid.NewString()
	log := zap.L().With(zap.String("component", "ingest.engine"), zap.String("run_id", runID))

	sources, err := e.reg.Select(opts.Sources)
	if err != nil {
		return nil, err
	}

	if err := e.store.Ping(ctx); err != nil {
		return nil, eris.Wrap(err, "ingest: store unavailable")
	}
	if err := e.store.EnsureState(ctx); err != nil {
		return nil, eris.Wrap(err, "ingest: ensure state")
	}
	state, err := e.store.GetState(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read state")
	}

	summary := &RunSummary{RunID: runID, Results: make(map[string]*Result)}
	log.Info("refresh starting", zap.Int("sources", len(sources)), zap.Bool("force", opts.Force))

	for _, s := range sources {
		if ctx.Err() != nil {
			return summary, eris.Wrap(ctx.Err(), "ingest: run cancelled")
		}
		sLog := log.With(zap.String("source", s.Name()))

		last := state.Get(s.StateField())
		if !opts.Force && !e.due(last) {
			sLog.Debug("skipping (not due)", zap.Timep("last_refresh", last))
			summary.Skipped = append(summary.Skipped, s.Name())
			continue
		}

		sLog.Info("source starting")
		done := metrics.TrackSourceRun(s.Name())
		start := time.Now()
		res, err := s.Run(ctx, Deps{
			Store:   e.store,
			Fetcher: e.fetcher,
			Cache:   e.cache,
			Workers: e.workers,
			Force:   opts.Force,
			Log:     sLog,
		})
		elapsed := time.Since(start)
		if err != nil {
			done("failure")
			sLog.Error("source failed", zap.Error(err), zap.Duration("elapsed", elapsed))
			summary.Failed = append(summary.Failed, s.Name())
			if res != nil {
				summary.Results[s.Name()] = res
			}
			continue
		}
		summary.Results[s.Name()] = res

		if res.NotRun {
			done("not_run")
			sLog.Info("source had nothing to do")
			continue
		}

		if err := e.store.TouchState(ctx, s.StateField(), e.now().UTC()); err != nil {
			sLog.Error("failed to record refresh", zap.Error(err))
		}
		done("success")
		sLog.Info("source complete",
			zap.Int64("processed", res.Processed),
			zap.Int64("created", res.Created),
			zap.Int64("updated", res.Updated),
			zap.Int64("skipped", res.Skipped),
			zap.Int64("failed", res.Failed),
			zap.Duration("elapsed", elapsed),
		)
	}

	log.Info("refresh complete",
		zap.Int("ran", len(summary.Results)),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Int("failed", len(summary.Failed)),
	)
	return summary, nil
}
