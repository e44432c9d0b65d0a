package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/permitcheck/internal/model"
)

type fakeSource struct {
	name  string
	field model.StateField
	res   *Result
	err   error
	runs  int
	deps  Deps
}

func (f *fakeSource) Name() string                 { return f.name }
func (f *fakeSource) StateField() model.StateField { return f.field }

func (f *fakeSource) Run(_ context.Context, deps Deps) (*Result, error) {
	f.runs++
	f.deps = deps
	if f.err != nil {
		return nil, f.err
	}
	if f.res == nil {
		return &Result{}, nil
	}
	return f.res, nil
}

func TestRegistry_OrderAndSelect(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeSource{name: SourcePermits})
	r.Register(&fakeSource{name: SourceContractors})
	r.Register(&fakeSource{name: SourcePropertyValues})

	assert.Equal(t, []string{SourcePermits, SourceContractors, SourcePropertyValues}, r.AllNames())

	sel, err := r.Select([]string{SourcePropertyValues, SourcePermits})
	require.NoError(t, err)
	require.Len(t, sel, 2)
	assert.Equal(t, SourcePermits, sel[0].Name())
	assert.Equal(t, SourcePropertyValues, sel[1].Name())

	all, err := r.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRegistry_UnknownSource(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeSource{name: "a"})
	r.Register(&fakeSource{name: "b"})
	_, err := r.Select([]string{"nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown source "nope" (known: a, b)`)
}

func TestRegistry_ReplaceKeepsPosition(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeSource{name: "a"})
	r.Register(&fakeSource{name: "b"})
	replacement := &fakeSource{name: "a", field: model.StatePermits}
	r.Register(replacement)

	assert.Equal(t, []string{"a", "b"}, r.AllNames())
	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Same(t, replacement, got)
}
