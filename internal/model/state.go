package model

import "time"

// StateField names a per-source refresh timestamp on the State row.
type StateField string

const (
	StatePermits        StateField = "permits_updated_at"
	StateContractors    StateField = "contractors_updated_at"
	StatePropertyValues StateField = "property_values_updated_at"
)

// Valid reports whether f is a known State column.
func (f StateField) Valid() bool {
	switch f {
	case StatePermits, StateContractors, StatePropertyValues:
		return true
	}
	return false
}

// State is the singleton row recording when each source last refreshed.
type State struct {
	PermitsUpdatedAt        *time.Time `json:"permits_updated_at,omitempty"`
	ContractorsUpdatedAt    *time.Time `json:"contractors_updated_at,omitempty"`
	PropertyValuesUpdatedAt *time.Time `json:"property_values_updated_at,omitempty"`
}

// Get returns the timestamp recorded for f.
func (s *State) Get(f StateField) *time.Time {
	if s == nil {
		return nil
	}
	switch f {
	case StatePermits:
		return s.PermitsUpdatedAt
	case StateContractors:
		return s.ContractorsUpdatedAt
	case StatePropertyValues:
		return s.PropertyValuesUpdatedAt
	}
	return nil
}
