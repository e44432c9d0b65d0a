package ingest

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/permitcheck/internal/fetcher"
)

// fetchCSV resolves url to a local file through the download cache and
// streams its rows into process. A failed download, or a header missing
// one of the required columns, is returned as an error so the engine
// leaves State untouched.
func fetchCSV(ctx context.Context, deps Deps, url, file string, required []string, process func(ctx context.Context, rows <-chan job[fetcher.Record]) (*Result, error)) (*Result, error) {
	if deps.Cache == nil {
		return nil, eris.New("ingest: no download cache configured")
	}
	if deps.Force {
		if err := deps.Cache.Invalidate(file); err != nil {
			return nil, err
		}
	}
	path, err := deps.Cache.Fetch(ctx, url, file)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: download %s", file)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open download")
	}
	defer f.Close() //nolint:errcheck

	g, gctx := errgroup.WithContext(ctx)
	recCh, errCh := fetcher.StreamRecords(gctx, f)
	jobs := make(chan job[fetcher.Record], 64)

	g.Go(func() error {
		defer close(jobs)
		checked := false
		for rec := range recCh {
			if !checked {
				for _, col := range required {
					if !rec.Has(col) {
						return eris.Errorf("ingest: %s has no %q column", file, col)
					}
				}
				checked = true
			}
			select {
			case jobs <- job[fetcher.Record]{line: rec.Line, row: rec}:
			case <-gctx.Done():
				for range recCh {
				}
				return gctx.Err()
			}
		}
		return <-errCh
	})

	var res *Result
	g.Go(func() error {
		var perr error
		res, perr = process(gctx, jobs)
		return perr
	})

	if err := g.Wait(); err != nil {
		return res, eris.Wrapf(err, "ingest: read %s", file)
	}
	return res, nil
}
