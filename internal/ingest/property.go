package ingest

import (
	"context"
	"errors"

	"github.com/sells-group/permitcheck/internal/fetcher"
	"github.com/sells-group/permitcheck/internal/model"
	"github.com/sells-group/permitcheck/internal/normalize"
	"github.com/sells-group/permitcheck/internal/reconcile"
	"github.com/sells-group/permitcheck/internal/store"
)

const (
	propertyValuesFile = "property_values.csv"
	// defaultPropertyState fills the state column the assessment file lacks.
	defaultPropertyState = "ma"
)

// assessmentColumns must all be present in the assessment header.
var assessmentColumns = []string{"st_num", "st_name", "city", "total_value"}

// PropertyValuesSource imports assessed house values and overlays them on
// known addresses, creating addresses it has not seen.
type PropertyValuesSource struct {
	URL string
}

// Name implements Source.
func (s *PropertyValuesSource) Name() string { return SourcePropertyValues }

// StateField implements Source.
func (s *PropertyValuesSource) StateField() model.StateField { return model.StatePropertyValues }

// Run implements Source.
func (s *PropertyValuesSource) Run(ctx context.Context, deps Deps) (*Result, error) {
	if s.URL == "" {
		return &Result{NotRun: true}, nil
	}
	return fetchCSV(ctx, deps, s.URL, propertyValuesFile, assessmentColumns, func(ctx context.Context, rows <-chan job[fetcher.Record]) (*Result, error) {
		return processRows(ctx, deps, SourcePropertyValues, rows, reconcilePropertyValue)
	})
}

// AddressFromAssessment maps an assessment CSV row onto an address input.
func AddressFromAssessment(rec fetcher.Record) reconcile.AddressInput {
	state := rec.Get("state")
	if normalize.Text(state) == nil {
		state = defaultPropertyState
	}
	return reconcile.AddressInput{
		StreetNumber:  rec.Get("st_num"),
		StreetName:    rec.Get("st_name"),
		City:          rec.Get("city"),
		State:         state,
		Zipcode:       rec.Get("zipcode"),
		OccupancyType: rec.Get("occupancy_type"),
		Longitude:     normalize.Float(rec.Get("longitude")),
		Latitude:      normalize.Float(rec.Get("latitude")),
		HouseValue:    normalize.Float(rec.Get("total_value")),
	}
}

func reconcilePropertyValue(ctx context.Context, tx store.Tx, rec fetcher.Record) (outcome, error) {
	_, created, err := reconcile.ReconcileAddress(ctx, tx, AddressFromAssessment(rec))
	if errors.Is(err, reconcile.ErrIncompleteAddress) {
		return outcomeSkipped, skipRow("assessment row has no city")
	}
	if err != nil {
		return 0, err
	}
	return outcomeOf(created), nil
}
