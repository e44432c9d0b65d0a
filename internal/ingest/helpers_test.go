package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/permitcheck/internal/fetcher"
	"github.com/sells-group/permitcheck/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:   "test-agent",
		Timeout:     5 * time.Second,
		MaxRetries:  2,
		BaseBackoff: time.Millisecond,
	})
}

func testDeps(t *testing.T, st store.Store) Deps {
	t.Helper()
	f := newTestFetcher()
	return Deps{
		Store:   st,
		Fetcher: f,
		Cache:   fetcher.NewCache(f, t.TempDir(), time.Hour),
		Workers: 4,
		Log:     zap.NewNop(),
	}
}

// serveCSV starts a server returning body for every request.
func serveCSV(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(body)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv
}

// records parses a headed CSV into Records.
func records(t *testing.T, csv string) []fetcher.Record {
	t.Helper()
	recCh, errCh := fetcher.StreamRecords(context.Background(), strings.NewReader(csv))
	var out []fetcher.Record
	for r := range recCh {
		out = append(out, r)
	}
	require.NoError(t, <-errCh)
	return out
}
