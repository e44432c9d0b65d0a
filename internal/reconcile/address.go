// Package reconcile maps normalized source rows onto durable address,
// contractor and permit rows. Every function works inside a caller-owned
// store.Tx and is idempotent per natural key.
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

// ErrIncompleteAddress is returned when city or state is missing.
var ErrIncompleteAddress = eris.New("reconcile: address requires city and state")

// AddressInput is a raw address as read from a source. Text fields are
// normalized before matching.
type AddressInput struct {
	StreetNumber  string
	StreetName    string
	City          string
	State         string
	Zipcode       string
	OccupancyType string
	Owner         string
	Longitude     *float64
	Latitude      *float64
	HouseValue    *float64
}

// Key returns the normalized natural key.
func (in AddressInput) Key() model.AddressKey {
	return model.AddressKey{
		StreetNumber: normalize.Text(in.StreetNumber),
		StreetName:   normalize.Text(in.StreetName),
		City:         normalize.Text(in.City),
		State:        normalize.Text(in.State),
		Zipcode:      normalize.Text(in.Zipcode),
	}
}

func (in AddressInput) address() model.Address {
	return model.Address{
		AddressKey:    in.Key(),
		Longitude:     in.Longitude,
		Latitude:      in.Latitude,
		OccupancyType: normalize.Text(in.OccupancyType),
		Owner:         normalize.Text(in.Owner),
		HouseValue:    in.HouseValue,
	}
}

// ReconcileAddress returns the id of the address matching in, creating it
// when absent. An existing address only has its house value overlaid, and
// only when in carries one.
func ReconcileAddress(ctx context.Context, tx store.Tx, in AddressInput) (int64, bool, error) {
	a := in.address()
	if !a.Complete() {
		return 0, false, ErrIncompleteAddress
	}

	id, err := tx.FindAddress(ctx, a.AddressKey)
	switch {
	case err == nil:
		if a.HouseValue != nil {
			if err := tx.UpdateHouseValue(ctx, id, a.HouseValue); err != nil {
				return 0, false, eris.Wrap(err, "reconcile: overlay house value")
			}
		}
		metrics.RecordReconcile("address", false)
		return id, false, nil
	case !errors.Is(err, store.ErrNotFound):
		return 0, false, eris.Wrap(err, "reconcile: find address")
	}

	id, inserted, err := tx.InsertAddress(ctx, a)
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		return 0, false, eris.Wrap(err, "reconcile: insert address")
	}
	if inserted {
		metrics.RecordReconcile("address", true)
		return id, true, nil
	}

	// Lost a race with a concurrent writer; the row exists now.
	id, err = tx.FindAddress(ctx, a.AddressKey)
	if err != nil {
		return 0, false, eris.Wrap(err, "reconcile: find address after conflict")
	}
	if a.HouseValue != nil {
		if err := tx.UpdateHouseValue(ctx, id, a.HouseValue); err != nil {
			return 0, false, eris.Wrap(err, "reconcile: overlay house value")
		}
	}
	metrics.RecordReconcile("address", false)
	return id, false, nil
}
