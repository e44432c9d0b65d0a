package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/permitcheck/internal/model"
	"github.com/sells-group/permitcheck/internal/store"
)

func queue[T any](rows ...T) <-chan job[T] {
	ch := make(chan job[T], len(rows))
	for i, r := range rows {
		ch <- job[T]{line: i + 1, row: r}
	}
	close(ch)
	return ch
}

func TestProcessRows_Counts(t *testing.T) {
	st := newTestStore(t)
	deps := Deps{Store: st, Workers: 3, Log: zap.NewNop()}

	fn := func(ctx context.Context, tx store.Tx, license string) (outcome, error) {
		switch license {
		case "skip":
			return outcomeSkipped, skipRow("bad row")
		case "fail":
			return 0, errors.New("boom")
		}
		_, inserted, err := tx.InsertContractor(ctx, model.Contractor{LicenseID: license, Name: "n " + license})
		if err != nil {
			return 0, err
		}
		return outcomeOf(inserted), nil
	}

	res, err := processRows(context.Background(), deps, "test", queue("a", "b", "skip", "fail", "a"), fn)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Processed)
	assert.Equal(t, int64(2), res.Created)
	assert.Equal(t, int64(1), res.Updated)
	assert.Equal(t, int64(1), res.Skipped)
	assert.Equal(t, int64(1), res.Failed)
}

func TestProcessRows_RollsBackFailedRow(t *testing.T) {
	st := newTestStore(t)
	deps := Deps{Store: st, Workers: 1}

	fn := func(ctx context.Context, tx store.Tx, license string) (outcome, error) {
		if _, _, err := tx.InsertContractor(ctx, model.Contractor{LicenseID: license, Name: "someone"}); err != nil {
			return 0, err
		}
		if license == "bad" {
			return 0, errors.New("late failure")
		}
		return outcomeCreated, nil
	}

	res, err := processRows(context.Background(), deps, "test", queue("good", "bad"), fn)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Failed)

	_, err = st.ContractorByLicense(context.Background(), "bad")
	assert.ErrorIs(t, err, store.ErrNotFound)
	c, err := st.ContractorByLicense(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "someone", c.Name)
}

func TestProcessRows_SkipRollsBack(t *testing.T) {
	st := newTestStore(t)
	deps := Deps{Store: st, Workers: 1}

	fn := func(ctx context.Context, tx store.Tx, license string) (outcome, error) {
		if _, _, err := tx.InsertContractor(ctx, model.Contractor{LicenseID: license, Name: "someone"}); err != nil {
			return 0, err
		}
		return outcomeSkipped, nil
	}

	res, err := processRows(context.Background(), deps, "test", queue("x"), fn)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Skipped)

	_, err = st.ContractorByLicense(context.Background(), "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcessRows_Cancelled(t *testing.T) {
	st := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fn := func(context.Context, store.Tx, string) (outcome, error) { return outcomeCreated, nil }
	_, err := processRows(ctx, Deps{Store: st, Workers: 2}, "test", queue("a", "b"), fn)
	assert.ErrorIs(t, err, context.Canceled)
}
