package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permitcheck/internal/metrics"
	"github.com/sells-group/permitcheck/internal/model"
	"github.com/sells-group/permitcheck/internal/normalize"
	"github.com/sells-group/permitcheck/internal/store"
)

// MaxCommentsLen caps project comments, in runes.
const MaxCommentsLen = 1000

// PermitInput is a raw permit row.
type PermitInput struct {
	PermitID       string
	DateStarted    string
	Amount         *float64
	Status         string
	OwnerName      string
	ContractorName string
	Description    string
	Comments       string
	Address        *AddressInput
}

// UpsertPermit inserts the permit on first sight and overwrites every
// mutable field on later sightings of the same permit id. Rows without a
// permit id are always inserted.
func UpsertPermit(ctx context.Context, tx store.Tx, in PermitInput) (*Result, error) {
	date, err := normalize.ParseDate(in.DateStarted)
	if err != nil {
		zap.L().Debug("reconcile: dropping unparseable date",
			zap.String("permit_id", in.PermitID),
			zap.String("date", in.DateStarted),
		)
	}

	p := model.Permit{
		PermitID:       normalize.Text(in.PermitID),
		DateStarted:    date,
		Amount:         in.Amount,
		Status:         normalize.PermitStatus(in.Status),
		OwnerName:      normalize.Text(in.OwnerName),
		ContractorName: normalize.Text(in.ContractorName),
		Description:    normalize.Text(in.Description),
		Comments:       normalize.TruncatePtr(nonEmpty(in.Comments), MaxCommentsLen),
	}

	if in.Address != nil {
		id, _, err := ReconcileAddress(ctx, tx, *in.Address)
		switch {
		case err == nil:
			p.AddressID = &id
		case !errors.Is(err, ErrIncompleteAddress):
			return nil, err
		}
	}

	id, inserted, err := tx.InsertPermit(ctx, p)
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		return nil, eris.Wrap(err, "reconcile: insert permit")
	}
	if inserted {
		metrics.RecordReconcile("permit", true)
		return &Result{ID: id, Created: true}, nil
	}

	id, err = tx.UpdatePermit(ctx, p)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: update permit")
	}
	metrics.RecordReconcile("permit", false)
	return &Result{ID: id}, nil
}

// nonEmpty keeps comments verbatim apart from trimming; they are free text
// shown back to users.
func nonEmpty(s string) *string {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	return &t
}
