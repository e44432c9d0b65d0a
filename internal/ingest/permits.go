package ingest

import (
	"context"

	"github.com/sells-group/permitcheck/internal/fetcher"
	"github.com/sells-group/permitcheck/internal/model"
	"github.com/sells-group/permitcheck/internal/normalize"
	"github.com/sells-group/permitcheck/internal/reconcile"
	"github.com/sells-group/permitcheck/internal/store"
)

const permitsFile = "permits.csv"

// permitColumns must all be present in the permits header.
var permitColumns = []string{"permitnumber", "applicant", "description", "address"}

// PermitsSource imports the Boston approved building permits CSV.
type PermitsSource struct {
	URL string
}

// Name implements Source.
func (s *PermitsSource) Name() string { return SourcePermits }

// StateField implements Source.
func (s *PermitsSource) StateField() model.StateField { return model.StatePermits }

// Run implements Source.
func (s *PermitsSource) Run(ctx context.Context, deps Deps) (*Result, error) {
	if s.URL == "" {
		return &Result{NotRun: true}, nil
	}
	return fetchCSV(ctx, deps, s.URL, permitsFile, permitColumns, func(ctx context.Context, rows <-chan job[fetcher.Record]) (*Result, error) {
		return processRows(ctx, deps, SourcePermits, rows, reconcilePermit)
	})
}

// PermitFromRecord maps a permit CSV row onto a reconcile input.
func PermitFromRecord(rec fetcher.Record) (reconcile.PermitInput, error) {
	in := reconcile.PermitInput{
		PermitID:       rec.Get("permitnumber"),
		DateStarted:    rec.Get("issued_date"),
		Amount:         normalize.Float(rec.Get("declared_valuation")),
		Status:         rec.Get("status"),
		OwnerName:      rec.Get("owner"),
		ContractorName: rec.Get("applicant"),
		Description:    rec.Get("description"),
		Comments:       rec.Get("comments"),
	}
	if normalize.Text(in.PermitID) == nil && normalize.Text(in.ContractorName) == nil && normalize.Text(in.Description) == nil {
		return in, skipRow("permit row has no permit number, applicant or description")
	}

	number, name := normalize.SplitStreet(rec.Get("address"))
	addr := reconcile.AddressInput{
		StreetNumber:  deref(number),
		StreetName:    deref(name),
		City:          rec.Get("city"),
		State:         rec.Get("state"),
		Zipcode:       rec.Get("zip"),
		OccupancyType: rec.Get("occupancytype"),
		Latitude:      normalize.Float(rec.Get("y_latitude")),
		Longitude:     normalize.Float(rec.Get("x_longitude")),
	}
	if !addr.Key().Empty() {
		in.Address = &addr
	}
	return in, nil
}

func reconcilePermit(ctx context.Context, tx store.Tx, rec fetcher.Record) (outcome, error) {
	in, err := PermitFromRecord(rec)
	if err != nil {
		return outcomeSkipped, err
	}
	r, err := reconcile.UpsertPermit(ctx, tx, in)
	if err != nil {
		return 0, err
	}
	return outcomeOf(r.Created), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
