package ingest

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/permitcheck/internal/metrics"
	"github.com/sells-group/permitcheck/internal/store"
)

// DefaultWorkers is the row worker count when Deps.Workers is unset.
const DefaultWorkers = 10

// outcome is what happened to one row.
type outcome int

const (
	outcomeCreated outcome = iota
	outcomeUpdated
	outcomeSkipped
)

// errSkipRow marks a malformed row. The row is counted as skipped and its
// transaction rolled back.
var errSkipRow = eris.New("ingest: row skipped")

// skipRow wraps reason as a skipped-row error.
func skipRow(reason string) error {
	return eris.Wrap(errSkipRow, reason)
}

// job is one queued row with its position for diagnostics.
type job[T any] struct {
	line int
	row  T
}

// rowFunc reconciles one row inside tx.
type rowFunc[T any] func(ctx context.Context, tx store.Tx, row T) (outcome, error)

// processRows drains rows through a fixed pool of workers. Every row runs
// in its own transaction, committed on success and rolled back on error.
// Row failures are logged and counted; only context cancellation stops
// the pool early.
func processRows[T any](ctx context.Context, deps Deps, source string, rows <-chan job[T], fn rowFunc[T]) (*Result, error) {
	workers := deps.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	log := deps.Log
	if log == nil {
		log = zap.L()
	}

	var processed, created, updated, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for j := range rows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			processed.Add(1)
			out, err := runRow(gctx, deps.Store, j.row, fn)
			switch {
			case err == nil:
			case errors.Is(err, errSkipRow):
				out = outcomeSkipped
				log.Debug("row skipped", zap.Int("line", j.line), zap.Error(err))
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				failed.Add(1)
				metrics.RecordRow(source, "failed")
				log.Warn("row failed", zap.Int("line", j.line), zap.Error(err))
				return nil
			}

			switch out {
			case outcomeCreated:
				created.Add(1)
				metrics.RecordRow(source, "created")
			case outcomeUpdated:
				updated.Add(1)
				metrics.RecordRow(source, "updated")
			case outcomeSkipped:
				skipped.Add(1)
				metrics.RecordRow(source, "skipped")
			}
			return nil
		})
	}

	err := g.Wait()
	res := &Result{
		Processed: processed.Load(),
		Created:   created.Load(),
		Updated:   updated.Load(),
		Skipped:   skipped.Load(),
		Failed:    failed.Load(),
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		// Unblock a producer still feeding rows.
		go func() {
			for range rows {
			}
		}()
		return res, eris.Wrap(err, "ingest: process rows")
	}
	return res, nil
}

func runRow[T any](ctx context.Context, st store.Store, row T, fn rowFunc[T]) (outcome, error) {
	tx, err := st.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "ingest: begin row")
	}
	out, err := fn(ctx, tx, row)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	if out == outcomeSkipped {
		_ = tx.Rollback(ctx)
		return out, nil
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return 0, eris.Wrap(err, "ingest: commit row")
	}
	return out, nil
}

func outcomeOf(created bool) outcome {
	if created {
		return outcomeCreated
	}
	return outcomeUpdated
}
