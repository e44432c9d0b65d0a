package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/permitcheck/internal/model"
	"github.com/sells-group/permitcheck/internal/search"
	"github.com/sells-group/permitcheck/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeSearcher struct {
	query     string
	threshold float64
	out       []search.Match
	err       error
}

func (f *fakeSearcher) Search(_ context.Context, query string, threshold float64) ([]search.Match, error) {
	f.query, f.threshold = query, threshold
	return f.out, f.err
}

type fakeLookuper struct {
	req    search.LookupRequest
	detail *search.Detail
	err    error
}

func (f *fakeLookuper) Lookup(_ context.Context, req search.LookupRequest) (*search.Detail, error) {
	f.req = req
	return f.detail, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := New(&fakeSearcher{}, &fakeLookuper{}, fakePinger{}, Options{}).Handler()
	rec := do(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	h = New(&fakeSearcher{}, &fakeLookuper{}, fakePinger{err: errors.New("down")}, Options{}).Handler()
	rec = do(t, h, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFuzzyContractor(t *testing.T) {
	s := &fakeSearcher{out: []search.Match{{Name: "acme roofing", Score: 100}}}
	h := New(s, &fakeLookuper{}, nil, Options{Threshold: search.DefaultThreshold}).Handler()

	rec := do(t, h, "/api/fuzzy-contractor?contractor_name=Acme+Roofing")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `[{"name":"acme roofing","score":100}]`, rec.Body.String())
	assert.Equal(t, "Acme Roofing", s.query)
	assert.InDelta(t, search.DefaultThreshold, s.threshold, 0.001)

	rec = do(t, h, "/api/fuzzy-contractor?contractor_name=acme&fuzz_ratio=90")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 90.0, s.threshold, 0.001)
}

func TestFuzzyContractor_ConfiguredThreshold(t *testing.T) {
	s := &fakeSearcher{}
	h := New(s, &fakeLookuper{}, nil, Options{Threshold: 60}).Handler()
	do(t, h, "/api/fuzzy-contractor?contractor_name=acme")
	assert.InDelta(t, 60.0, s.threshold, 0.001)
}

func TestFuzzyContractor_ZeroThresholdKept(t *testing.T) {
	s := &fakeSearcher{threshold: -1}
	h := New(s, &fakeLookuper{}, nil, Options{Threshold: 0}).Handler()
	rec := do(t, h, "/api/fuzzy-contractor?contractor_name=acme")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.0, s.threshold, 0.001)
}

func TestFuzzyContractor_BadRatio(t *testing.T) {
	h := New(&fakeSearcher{}, &fakeLookuper{}, nil, Options{}).Handler()
	for _, v := range []string{"abc", "-1", "101"} {
		rec := do(t, h, "/api/fuzzy-contractor?contractor_name=acme&fuzz_ratio="+v)
		assert.Equal(t, http.StatusBadRequest, rec.Code, v)
	}
}

func TestFuzzyContractor_SearchError(t *testing.T) {
	h := New(&fakeSearcher{err: errors.New("db gone")}, &fakeLookuper{}, nil, Options{}).Handler()
	rec := do(t, h, "/api/fuzzy-contractor?contractor_name=acme+roofing")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDetailedContractor(t *testing.T) {
	total := 3000.0
	l := &fakeLookuper{detail: &search.Detail{
		Contractor:    model.Contractor{ID: 1, LicenseID: "hic-100", Name: "john doe"},
		PreviousWorks: []model.PermitRecord{},
		TotalAmount:   &total,
		Advice:        "Looks fine.",
	}}
	h := New(&fakeSearcher{}, l, nil, Options{}).Handler()

	rec := do(t, h, "/api/detailed-contractor?license_id=HIC-100")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIC-100", l.req.LicenseID)

	var got search.Detail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "john doe", got.Contractor.Name)
	assert.Empty(t, got.PreviousWorks)
	require.NotNil(t, got.TotalAmount)
	assert.InDelta(t, 3000.0, *got.TotalAmount, 0.001)
	assert.Equal(t, "Looks fine.", got.Advice)
}

func TestDetailedContractor_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"missing key", search.ErrNoLookupKey, http.StatusBadRequest},
		{"not found", eris.Wrap(store.ErrNotFound, "search: find contractor"), http.StatusNotFound},
		{"store failure", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(&fakeSearcher{}, &fakeLookuper{err: tt.err}, nil, Options{}).Handler()
			rec := do(t, h, "/api/detailed-contractor?contractor_name=nobody")
			assert.Equal(t, tt.code, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := New(&fakeSearcher{}, &fakeLookuper{}, nil, Options{CORSOrigins: []string{"https://app.example.com"}}).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/fuzzy-contractor", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := New(&fakeSearcher{}, &fakeLookuper{}, nil, Options{}).Handler()
	do(t, h, "/health")

	rec := do(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "permitcheck_http_request_duration_seconds")
}

func TestUnknownRoute(t *testing.T) {
	h := New(&fakeSearcher{}, &fakeLookuper{}, nil, Options{}).Handler()
	rec := do(t, h, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
