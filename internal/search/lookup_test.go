package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/permitcheck/internal/model"
	"github.com/sells-group/permitcheck/internal/store"
)

type fakeContractors struct {
	byLicense map[string]model.Contractor
	byName    map[string]model.Contractor
	permits   map[string][]model.PermitRecord
	totals    map[string]float64

	licenseCalls []string
	nameCalls    []string
}

func (f *fakeContractors) ContractorByLicense(_ context.Context, licenseID string) (*model.Contractor, error) {
	f.licenseCalls = append(f.licenseCalls, licenseID)
	c, ok := f.byLicense[licenseID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (f *fakeContractors) ContractorByName(_ context.Context, name string) (*model.Contractor, error) {
	f.nameCalls = append(f.nameCalls, name)
	c, ok := f.byName[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (f *fakeContractors) PermitsByContractor(_ context.Context, name string) ([]model.PermitRecord, error) {
	return f.permits[name], nil
}

func (f *fakeContractors) TotalAmount(_ context.Context, name string) (*float64, error) {
	v, ok := f.totals[name]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

type fakeAdvisor struct {
	advice string
	err    error
	got    *AdviceInput
}

func (f *fakeAdvisor) Advise(_ context.Context, in AdviceInput) (string, error) {
	f.got = &in
	return f.advice, f.err
}

func newFakeContractors() *fakeContractors {
	jane := model.Contractor{ID: 1, LicenseID: "hic-100", Name: "jane doe"}
	pid := "p-1"
	amt := 1200.0
	return &fakeContractors{
		byLicense: map[string]model.Contractor{"hic-100": jane},
		byName:    map[string]model.Contractor{"jane doe": jane},
		permits: map[string][]model.PermitRecord{
			"jane doe": {{Permit: model.Permit{ProjectID: 9, PermitID: &pid, Amount: &amt}}},
		},
		totals: map[string]float64{"jane doe": 1200},
	}
}

func TestLookup_ByLicense(t *testing.T) {
	st := newFakeContractors()
	adv := &fakeAdvisor{advice: "hire"}

	d, err := NewLookuper(st, adv).Lookup(context.Background(), LookupRequest{LicenseID: " HIC-100 ", Name: "someone else"})
	require.NoError(t, err)
	assert.Equal(t, []string{"hic-100"}, st.licenseCalls)
	assert.Empty(t, st.nameCalls)
	assert.Equal(t, "jane doe", d.Contractor.Name)
	assert.Len(t, d.PreviousWorks, 1)
	require.NotNil(t, d.TotalAmount)
	assert.InDelta(t, 1200, *d.TotalAmount, 0.001)
	assert.Equal(t, "hire", d.Advice)

	require.NotNil(t, adv.got)
	assert.Equal(t, "hic-100", adv.got.Contractor.LicenseID)
	assert.Len(t, adv.got.Permits, 1)
}

func TestLookup_ByName(t *testing.T) {
	st := newFakeContractors()

	d, err := NewLookuper(st, nil).Lookup(context.Background(), LookupRequest{Name: "Jane  Doe"})
	require.NoError(t, err)
	assert.Equal(t, []string{"jane doe"}, st.nameCalls)
	assert.Equal(t, int64(1), d.Contractor.ID)
	assert.Empty(t, d.Advice)
}

func TestLookup_NoKey(t *testing.T) {
	_, err := NewLookuper(newFakeContractors(), nil).Lookup(context.Background(), LookupRequest{Name: "  "})
	assert.ErrorIs(t, err, ErrNoLookupKey)
}

func TestLookup_NotFound(t *testing.T) {
	_, err := NewLookuper(newFakeContractors(), nil).Lookup(context.Background(), LookupRequest{LicenseID: "nope"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLookup_NoPermits(t *testing.T) {
	st := newFakeContractors()
	st.byName["bob"] = model.Contractor{ID: 2, LicenseID: "hic-2", Name: "bob"}

	d, err := NewLookuper(st, nil).Lookup(context.Background(), LookupRequest{Name: "bob"})
	require.NoError(t, err)
	assert.NotNil(t, d.PreviousWorks)
	assert.Empty(t, d.PreviousWorks)
	assert.Nil(t, d.TotalAmount)
}

func TestLookup_AdvisorErrorLeavesAdviceEmpty(t *testing.T) {
	adv := &fakeAdvisor{err: errors.New("rate limited")}

	d, err := NewLookuper(newFakeContractors(), adv).Lookup(context.Background(), LookupRequest{Name: "jane doe"})
	require.NoError(t, err)
	assert.Empty(t, d.Advice)
}
