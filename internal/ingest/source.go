// Package ingest refreshes the permit, contractor and property-value
// tables from their upstream sources.
package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/permitcheck/internal/fetcher"
	"github.com/sells-group/permitcheck/internal/model"
	"github.com/sells-group/permitcheck/internal/store"
)

// Source names.
const (
	SourcePermits        = "permits"
	SourceContractors    = "contractors"
	SourcePropertyValues = "property_values"
)

// Deps are the collaborators handed to a Source run.
type Deps struct {
	Store   store.Store
	Fetcher fetcher.Fetcher
	Cache   *fetcher.Cache
	Workers int
	// Force bypasses the download cache.
	Force bool
	Log   *zap.Logger
}

// Result tallies one source run.
type Result struct {
	Processed int64 `json:"processed"`
	Created   int64 `json:"created"`
	Updated   int64 `json:"updated"`
	Skipped   int64 `json:"skipped"`
	Failed    int64 `json:"failed"`
	// NotRun marks a run that did no work, such as an unconfigured source.
	// The engine does not record a refresh for it.
	NotRun bool `json:"not_run,omitempty"`
}

// Source is one upstream data feed.
type Source interface {
	// Name returns the unique identifier (e.g., "permits").
	Name() string

	// StateField returns the State column recording the last refresh.
	StateField() model.StateField

	// Run downloads the source and reconciles every row.
	Run(ctx context.Context, deps Deps) (*Result, error)
}
