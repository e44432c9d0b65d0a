package search

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permitcheck/internal/model"
	"github.com/sells-group/permitcheck/internal/normalize"
)

// ErrNoLookupKey is returned when a lookup names neither a license nor a
// contractor name.
var ErrNoLookupKey = eris.New("search: contractor name or license id required")

// AdviceInput is the project history handed to an Advisor.
type AdviceInput struct {
	Contractor  model.Contractor
	Permits     []model.PermitRecord
	TotalAmount *float64
}

// Advisor turns a contractor's history into a short hiring recommendation.
type Advisor interface {
	Advise(ctx context.Context, in AdviceInput) (string, error)
}

// ContractorStore is the read side used by detailed lookups.
type ContractorStore interface {
	ContractorByLicense(ctx context.Context, licenseID string) (*model.Contractor, error)
	ContractorByName(ctx context.Context, name string) (*model.Contractor, error)
	PermitsByContractor(ctx context.Context, contractorName string) ([]model.PermitRecord, error)
	TotalAmount(ctx context.Context, contractorName string) (*float64, error)
}

// LookupRequest identifies a contractor. LicenseID wins when both are set.
type LookupRequest struct {
	Name      string
	LicenseID string
}

// Detail is the full record returned for one contractor.
type Detail struct {
	Contractor    model.Contractor     `json:"contractor"`
	PreviousWorks []model.PermitRecord `json:"previous_works"`
	TotalAmount   *float64             `json:"total_amount"`
	Advice        string               `json:"advice"`
}

// Lookuper assembles contractor details and optional advice.
type Lookuper struct {
	store   ContractorStore
	advisor Advisor
	log     *zap.Logger
}

// NewLookuper returns a Lookuper. A nil advisor disables advice.
func NewLookuper(st ContractorStore, advisor Advisor) *Lookuper {
	return &Lookuper{
		store:   st,
		advisor: advisor,
		log:     zap.L().With(zap.String("component", "lookup")),
	}
}

// Lookup resolves req to a contractor and returns its permit history,
// summed permit amount and advice. A missing contractor yields
// store.ErrNotFound. Advisor failures are logged and leave Advice empty.
func (l *Lookuper) Lookup(ctx context.Context, req LookupRequest) (*Detail, error) {
	license := normalize.TextValue(req.LicenseID)
	name := normalize.TextValue(req.Name)

	var (
		c   *model.Contractor
		err error
	)
	switch {
	case license != "":
		c, err = l.store.ContractorByLicense(ctx, license)
	case name != "":
		c, err = l.store.ContractorByName(ctx, name)
	default:
		return nil, ErrNoLookupKey
	}
	if err != nil {
		return nil, eris.Wrap(err, "search: find contractor")
	}

	works, err := l.store.PermitsByContractor(ctx, c.Name)
	if err != nil {
		return nil, eris.Wrap(err, "search: previous works")
	}
	if works == nil {
		works = []model.PermitRecord{}
	}

	total, err := l.store.TotalAmount(ctx, c.Name)
	if err != nil {
		return nil, eris.Wrap(err, "search: total amount")
	}

	d := &Detail{
		Contractor:    *c,
		PreviousWorks: works,
		TotalAmount:   total,
	}

	if l.advisor != nil {
		advice, aerr := l.advisor.Advise(ctx, AdviceInput{
			Contractor:  *c,
			Permits:     works,
			TotalAmount: total,
		})
		if aerr != nil {
			l.log.Warn("advice unavailable",
				zap.String("license_id", c.LicenseID),
				zap.Error(aerr),
			)
		} else {
			d.Advice = advice
		}
	}

	return d, nil
}
