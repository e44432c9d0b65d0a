package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/permitcheck/internal/advisor"
	"github.com/sells-group/permitcheck/internal/config"
	"github.com/sells-group/permitcheck/internal/db"
	"github.com/sells-group/permitcheck/internal/fetcher"
	"github.com/sells-group/permitcheck/internal/ingest"
	"github.com/sells-group/permitcheck/internal/search"
	"github.com/sells-group/permitcheck/internal/store"
	"github.com/sells-group/permitcheck/pkg/anthropic"
)

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(c.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, db.PoolConfig{MaxConns: c.Store.MaxConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func newFetcher(c *config.Config) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  c.Sources.UserAgent,
		MaxRetries: 3,
	})
}

// buildRegistry registers the sources in refresh order.
func buildRegistry(c *config.Config, f fetcher.Fetcher) *ingest.Registry {
	reg := ingest.NewRegistry()
	reg.Register(&ingest.PermitsSource{URL: c.Sources.PermitsURL})
	reg.Register(&ingest.ContractorsSource{
		Client: ingest.NewRosterClient(f, c.Sources.RosterURL, c.Sources.RosterState, c.Sources.RosterMaxPages),
	})
	reg.Register(&ingest.PropertyValuesSource{URL: c.Sources.PropertyValuesURL})
	return reg
}

// newEngine wires the ingest engine around st.
func newEngine(c *config.Config, st store.Store) (*ingest.Engine, error) {
	if err := os.MkdirAll(c.Refresh.TempDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "create temp dir %s", c.Refresh.TempDir)
	}
	f := newFetcher(c)
	cache := fetcher.NewCache(f, c.Refresh.TempDir, c.Refresh.CacheTTL)
	return ingest.NewEngine(st, f, cache, buildRegistry(c, f), ingest.EngineConfig{
		Interval: c.Refresh.Interval,
		Workers:  c.Refresh.Workers,
	}), nil
}

// newAdvisor returns nil when no Anthropic key is configured.
func newAdvisor(c *config.Config) search.Advisor {
	if c.Anthropic.Key == "" {
		return nil
	}
	return advisor.New(anthropic.NewClient(c.Anthropic.Key), advisor.Config{
		Model:       c.Anthropic.Model,
		MaxTokens:   c.Anthropic.MaxTokens,
		Temperature: c.Anthropic.Temperature,
	})
}
