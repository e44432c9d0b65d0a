package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/permitcheck/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrDuplicate is returned when an insert collides with a unique key.
	ErrDuplicate = eris.New("store: duplicate key")
)

// Counts summarizes table sizes for status reporting.
type Counts struct {
	Addresses   int64 `json:"addresses"`
	Contractors int64 `json:"contractors"`
	Permits     int64 `json:"permits"`
}

// Tx is a unit of work used by the reconcilers. Every imported row runs in
// its own Tx; a Tx must not be shared across goroutines.
type Tx interface {
	// Addresses
	FindAddress(ctx context.Context, key model.AddressKey) (int64, error)
	// InsertAddress returns inserted=false when the key already exists.
	InsertAddress(ctx context.Context, a model.Address) (id int64, inserted bool, err error)
	UpdateHouseValue(ctx context.Context, addressID int64, value *float64) error

	// Contractors
	FindContractorByLicense(ctx context.Context, licenseID string) (int64, error)
	InsertContractor(ctx context.Context, c model.Contractor) (id int64, inserted bool, err error)
	UpdateContractor(ctx context.Context, c model.Contractor) (int64, error)

	// Permits
	InsertPermit(ctx context.Context, p model.Permit) (id int64, inserted bool, err error)
	UpdatePermit(ctx context.Context, p model.Permit) (int64, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store defines the persistence interface for permit and contractor data.
type Store interface {
	// Begin starts a Tx for reconciling one source row.
	Begin(ctx context.Context) (Tx, error)

	// Search
	ContractorNamesLike(ctx context.Context, substr string, limit int) ([]string, error)
	PermitContractorNames(ctx context.Context, substr string, limit int) ([]string, error)

	// Lookup
	ContractorByLicense(ctx context.Context, licenseID string) (*model.Contractor, error)
	ContractorByName(ctx context.Context, name string) (*model.Contractor, error)
	// PermitsByContractor and TotalAmount normalize contractorName before
	// matching it exactly.
	PermitsByContractor(ctx context.Context, contractorName string) ([]model.PermitRecord, error)
	TotalAmount(ctx context.Context, contractorName string) (*float64, error)

	// Refresh state
	EnsureState(ctx context.Context) error
	GetState(ctx context.Context) (*model.State, error)
	TouchState(ctx context.Context, field model.StateField, at time.Time) error
	Counts(ctx context.Context) (*Counts, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
