package reconcile

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/permitcheck/internal/metrics"
	"github.com/sells-group/permitcheck/internal/model"
	"github.com/sells-group/permitcheck/internal/normalize"
	"github.com/sells-group/permitcheck/internal/store"
)

// ContractorInput is a raw roster entry. ExpireDate is already canonical
// (see normalize.ParseDate) or empty.
type ContractorInput struct {
	LicenseID  string
	Name       string
	Company    string
	Status     string
	ExpireDate *string
	Address    *AddressInput
}

// Result reports the outcome of one reconciliation.
type Result struct {
	ID      int64
	Created bool
}

// ReconcileContractor upserts the contractor keyed by license id. It
// returns nil, nil when the license id or name is missing. The address is
// resolved first; an incomplete address leaves address_id nil, which also
// clears any previous reference.
func ReconcileContractor(ctx context.Context, tx store.Tx, in ContractorInput) (*Result, error) {
	license := normalize.Text(in.LicenseID)
	name := normalize.Text(in.Name)
	if license == nil || name == nil {
		return nil, nil
	}

	c := model.Contractor{
		LicenseID:  *license,
		Name:       *name,
		Company:    normalize.Text(in.Company),
		Status:     normalize.Text(in.Status),
		ExpireDate: in.ExpireDate,
	}

	if in.Address != nil {
		id, _, err := ReconcileAddress(ctx, tx, *in.Address)
		switch {
		case err == nil:
			c.AddressID = &id
		case !errors.Is(err, ErrIncompleteAddress):
			return nil, err
		}
	}

	_, err := tx.FindContractorByLicense(ctx, c.LicenseID)
	switch {
	case err == nil:
		return updateContractor(ctx, tx, c)
	case !errors.Is(err, store.ErrNotFound):
		return nil, eris.Wrap(err, "reconcile: find contractor")
	}

	id, inserted, err := tx.InsertContractor(ctx, c)
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		return nil, eris.Wrap(err, "reconcile: insert contractor")
	}
	if inserted {
		metrics.RecordReconcile("contractor", true)
		return &Result{ID: id, Created: true}, nil
	}
	return updateContractor(ctx, tx, c)
}

func updateContractor(ctx context.Context, tx store.Tx, c model.Contractor) (*Result, error) {
	id, err := tx.UpdateContractor(ctx, c)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: update contractor")
	}
	metrics.RecordReconcile("contractor", false)
	return &Result{ID: id}, nil
}
