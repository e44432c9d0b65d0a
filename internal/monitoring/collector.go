// Package monitoring watches refresh freshness and posts alerts to a
// webhook when a source falls behind.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/permitcheck/internal/model"
	"github.com/sells-group/permitcheck/internal/store"
)

// Snapshot is a point-in-time view of the data.
type Snapshot struct {
	State       model.State  `json:"state"`
	Counts      store.Counts `json:"counts"`
	CollectedAt time.Time    `json:"collected_at"`
}

// StateReader is the part of store.Store the collector reads.
type StateReader interface {
	GetState(ctx context.Context) (*model.State, error)
	Counts(ctx context.Context) (*store.Counts, error)
}

// Collector gathers snapshots from the store.
type Collector struct {
	store StateReader
	now   func() time.Time
}

// NewCollector creates a new snapshot collector.
func NewCollector(st StateReader) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect reads the refresh state and table sizes.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	state, err := c.store.GetState(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: read state")
	}
	counts, err := c.store.Counts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count rows")
	}
	return &Snapshot{
		State:       *state,
		Counts:      *counts,
		CollectedAt: c.now().UTC(),
	}, nil
}
