package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/permitcheck/internal/model"
)

const permitsCSV = "permitnumber,issued_date,declared_valuation,status,owner,applicant,description,comments,address,city,state,zip,occupancytype,y_latitude,x_longitude\n" +
	"A1001,2024-03-05 09:30:00,\"12,500.00\",Open,SMITH JOHN,Acme Roofing,Replace roof,  Tear off two layers  ,12 Main St,Boston,MA,02118,1-2FAM,42.34,-71.07\n" +
	"A1002,not a date,800,Closed,,Acme Roofing,Gutter repair,,,,,,,,\n" +
	",,,,,,,,5 Elm St,Boston,MA,02118,,,\n"

func TestPermitFromRecord(t *testing.T) {
	recs := records(t, permitsCSV)
	require.Len(t, recs, 3)

	in, err := PermitFromRecord(recs[0])
	require.NoError(t, err)
	assert.Equal(t, "A1001", in.PermitID)
	assert.Equal(t, "Acme Roofing", in.ContractorName)
	assert.Equal(t, "SMITH JOHN", in.OwnerName)
	require.NotNil(t, in.Amount)
	assert.InDelta(t, 12500.0, *in.Amount, 0.001)
	require.NotNil(t, in.Address)
	assert.Equal(t, "12", in.Address.StreetNumber)
	assert.Equal(t, "main st", in.Address.StreetName)
	assert.Equal(t, "Boston", in.Address.City)
	assert.Equal(t, "02118", in.Address.Zipcode)
	require.NotNil(t, in.Address.Latitude)
	assert.InDelta(t, 42.34, *in.Address.Latitude, 0.0001)

	in, err = PermitFromRecord(recs[1])
	require.NoError(t, err)
	assert.Nil(t, in.Address)

	_, err = PermitFromRecord(recs[2])
	assert.ErrorIs(t, err, errSkipRow)
}

func TestPermitsSource_Run(t *testing.T) {
	st := newTestStore(t)
	srv := serveCSV(t, permitsCSV)
	deps := testDeps(t, st)
	ctx := context.Background()

	src := &PermitsSource{URL: srv.URL + "/permits.csv"}
	res, err := src.Run(ctx, deps)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Processed)
	assert.Equal(t, int64(2), res.Created)
	assert.Equal(t, int64(1), res.Skipped)

	works, err := st.PermitsByContractor(ctx, "acme roofing")
	require.NoError(t, err)
	require.Len(t, works, 2)

	byID := map[string]model.PermitRecord{}
	for _, w := range works {
		byID[*w.PermitID] = w
	}
	first := byID["a1001"]
	require.NotNil(t, first.DateStarted)
	assert.Equal(t, "2024-03-05 09:30:00", *first.DateStarted)
	assert.Equal(t, "ongoing", *first.Status)
	assert.Equal(t, "Tear off two layers", *first.Comments)
	require.NotNil(t, first.Address)
	assert.Equal(t, "boston", *first.Address.City)

	second := byID["a1002"]
	assert.Nil(t, second.DateStarted)
	assert.Equal(t, "completed", *second.Status)
	assert.Nil(t, second.Address)

	total, err := st.TotalAmount(ctx, "acme roofing")
	require.NoError(t, err)
	require.NotNil(t, total)
	assert.InDelta(t, 13300.0, *total, 0.001)

	// A second pass updates in place.
	res, err = src.Run(ctx, deps)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Created)
	assert.Equal(t, int64(2), res.Updated)
}

func TestPermitsSource_ForceRedownloads(t *testing.T) {
	st := newTestStore(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(permitsCSV)) //nolint:errcheck
	}))
	defer srv.Close()

	deps := testDeps(t, st)
	src := &PermitsSource{URL: srv.URL}

	_, err := src.Run(context.Background(), deps)
	require.NoError(t, err)
	_, err = src.Run(context.Background(), deps)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "fresh cache is reused")

	deps.Force = true
	_, err = src.Run(context.Background(), deps)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestPermitsSource_DownloadFailure(t *testing.T) {
	st := newTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := (&PermitsSource{URL: srv.URL}).Run(context.Background(), testDeps(t, st))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download permits.csv")
}

func TestPermitsSource_Unconfigured(t *testing.T) {
	res, err := (&PermitsSource{}).Run(context.Background(), Deps{})
	require.NoError(t, err)
	assert.True(t, res.NotRun)
}

func TestPermitsSource_MissingColumn(t *testing.T) {
	st := newTestStore(t)
	srv := serveCSV(t, "permit_no,applicant,description,address\nA1,Acme,Roof,12 Main St\n")

	res, err := (&PermitsSource{URL: srv.URL}).Run(context.Background(), testDeps(t, st))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `permits.csv has no "permitnumber" column`)
	if res != nil {
		assert.Zero(t, res.Created)
	}

	counts, err := st.Counts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts.Permits)
}
