package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/permitcheck/internal/db"
	"github.com/sells-group/permitcheck/internal/model"
	"github.com/sells-group/permitcheck/internal/normalize"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to Postgres and returns a PostgresStore.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin")
	}
	return &pgTx{tx: tx}, nil
}

const pgContractorCols = `id, license_id, name, company, status, expire_date, address_id`

func (s *PostgresStore) ContractorNamesLike(ctx context.Context, substr string, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name FROM contractor WHERE name ILIKE $1 ESCAPE '\' ORDER BY name LIMIT $2`,
		db.ContainsPattern(substr), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: contractor names like")
	}
	return collectStrings(rows, "postgres: contractor names like")
}

func (s *PostgresStore) PermitContractorNames(ctx context.Context, substr string, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT c.name FROM contractor c
		WHERE c.name ILIKE $1 ESCAPE '\'
		AND EXISTS (SELECT 1 FROM approved_permit p WHERE p.contractor_name = c.name)
		ORDER BY c.name LIMIT $2`,
		db.ContainsPattern(substr), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: permit contractor names")
	}
	return collectStrings(rows, "postgres: permit contractor names")
}

func (s *PostgresStore) ContractorByLicense(ctx context.Context, licenseID string) (*model.Contractor, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgContractorCols+` FROM contractor WHERE license_id = $1`, licenseID)
	c, err := scanContractor(row)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: contractor by license")
	}
	return c, nil
}

func (s *PostgresStore) ContractorByName(ctx context.Context, name string) (*model.Contractor, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgContractorCols+` FROM contractor WHERE name = $1 ORDER BY id LIMIT 1`, name)
	c, err := scanContractor(row)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: contractor by name")
	}
	return c, nil
}

func (s *PostgresStore) PermitsByContractor(ctx context.Context, contractorName string) ([]model.PermitRecord, error) {
	contractorName = normalize.TextValue(contractorName)
	rows, err := s.pool.Query(ctx, permitRecordQuery("$1"), contractorName)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: permits by contractor")
	}
	defer rows.Close()

	var out []model.PermitRecord
	for rows.Next() {
		rec, err := scanPermitRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan permit")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: permits by contractor")
}

func (s *PostgresStore) TotalAmount(ctx context.Context, contractorName string) (*float64, error) {
	contractorName = normalize.TextValue(contractorName)
	var total *float64
	err := s.pool.QueryRow(ctx,
		`SELECT SUM(project_amount) FROM approved_permit WHERE contractor_name = $1`,
		contractorName,
	).Scan(&total)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: total amount")
	}
	return total, nil
}

func (s *PostgresStore) EnsureState(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO state (id) VALUES (1) ON CONFLICT (id) DO NOTHING`)
	return eris.Wrap(err, "postgres: ensure state")
}

func (s *PostgresStore) GetState(ctx context.Context) (*model.State, error) {
	var st model.State
	err := s.pool.QueryRow(ctx,
		`SELECT permits_updated_at, contractors_updated_at, property_values_updated_at FROM state WHERE id = 1`,
	).Scan(&st.PermitsUpdatedAt, &st.ContractorsUpdatedAt, &st.PropertyValuesUpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.State{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get state")
	}
	return &st, nil
}

func (s *PostgresStore) TouchState(ctx context.Context, field model.StateField, at time.Time) error {
	if !field.Valid() {
		return eris.Errorf("postgres: unknown state field %q", field)
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO state (id, %[1]s) VALUES (1, $1) ON CONFLICT (id) DO UPDATE SET %[1]s = EXCLUDED.%[1]s`,
		field), at.UTC())
	return eris.Wrapf(err, "postgres: touch state %s", field)
}

func (s *PostgresStore) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := s.pool.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM address),
		(SELECT COUNT(*) FROM contractor),
		(SELECT COUNT(*) FROM approved_permit)`,
	).Scan(&c.Addresses, &c.Contractors, &c.Permits)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: counts")
	}
	return &c, nil
}

// pgTx implements Tx over a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error {
	return eris.Wrap(t.tx.Commit(ctx), "postgres: commit")
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return eris.Wrap(err, "postgres: rollback")
}

func (t *pgTx) FindAddress(ctx context.Context, key model.AddressKey) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`SELECT id FROM address
		WHERE street_number IS NOT DISTINCT FROM $1
		AND street_name IS NOT DISTINCT FROM $2
		AND city = $3 AND state = $4
		AND zipcode IS NOT DISTINCT FROM $5`,
		key.StreetNumber, key.StreetName, key.City, key.State, key.Zipcode,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, eris.Wrap(err, "postgres: find address")
	}
	return id, nil
}

func (t *pgTx) InsertAddress(ctx context.Context, a model.Address) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO address (street_number, street_name, city, state, zipcode,
			longitude, latitude, occupancy_type, address_owner, house_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (street_number, street_name, city, state, zipcode) DO NOTHING
		RETURNING id`,
		a.StreetNumber, a.StreetName, a.City, a.State, a.Zipcode,
		a.Longitude, a.Latitude, a.OccupancyType, a.Owner, a.HouseValue,
	).Scan(&id)
	return insertResult(id, err, "postgres: insert address")
}

func (t *pgTx) UpdateHouseValue(ctx context.Context, addressID int64, value *float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE address SET house_value = $2 WHERE id = $1`, addressID, value)
	return eris.Wrap(err, "postgres: update house value")
}

func (t *pgTx) FindContractorByLicense(ctx context.Context, licenseID string) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM contractor WHERE license_id = $1`, licenseID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, eris.Wrap(err, "postgres: find contractor")
	}
	return id, nil
}

func (t *pgTx) InsertContractor(ctx context.Context, c model.Contractor) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO contractor (license_id, name, company, status, expire_date, address_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (license_id) DO NOTHING
		RETURNING id`,
		c.LicenseID, c.Name, c.Company, c.Status, c.ExpireDate, c.AddressID,
	).Scan(&id)
	return insertResult(id, err, "postgres: insert contractor")
}

func (t *pgTx) UpdateContractor(ctx context.Context, c model.Contractor) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`UPDATE contractor SET name = $2, company = $3, status = $4, expire_date = $5, address_id = $6
		WHERE license_id = $1
		RETURNING id`,
		c.LicenseID, c.Name, c.Company, c.Status, c.ExpireDate, c.AddressID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, eris.Wrap(err, "postgres: update contractor")
	}
	return id, nil
}

func (t *pgTx) InsertPermit(ctx context.Context, p model.Permit) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO approved_permit (permit_id, date_started, project_address_id, project_amount,
			project_status, owner_name, contractor_name, project_description, project_comments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (permit_id) DO NOTHING
		RETURNING project_id`,
		p.PermitID, p.DateStarted, p.AddressID, p.Amount,
		p.Status, p.OwnerName, p.ContractorName, p.Description, p.Comments,
	).Scan(&id)
	return insertResult(id, err, "postgres: insert permit")
}

func (t *pgTx) UpdatePermit(ctx context.Context, p model.Permit) (int64, error) {
	if p.PermitID == nil {
		return 0, ErrNotFound
	}
	var id int64
	err := t.tx.QueryRow(ctx,
		`UPDATE approved_permit SET date_started = $2, project_address_id = $3, project_amount = $4,
			project_status = $5, owner_name = $6, contractor_name = $7,
			project_description = $8, project_comments = $9
		WHERE permit_id = $1
		RETURNING project_id`,
		p.PermitID, p.DateStarted, p.AddressID, p.Amount,
		p.Status, p.OwnerName, p.ContractorName, p.Description, p.Comments,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, eris.Wrap(err, "postgres: update permit")
	}
	return id, nil
}

// insertResult maps an INSERT ... ON CONFLICT DO NOTHING RETURNING scan
// onto (id, inserted, err).
func insertResult(id int64, err error, msg string) (int64, bool, error) {
	switch {
	case err == nil:
		return id, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return 0, false, nil
	case db.IsUniqueViolation(err):
		return 0, false, ErrDuplicate
	default:
		return 0, false, eris.Wrap(err, msg)
	}
}

func collectStrings(rows pgx.Rows, msg string) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, eris.Wrap(err, msg)
		}
		out = append(out, s)
	}
	return out, eris.Wrap(rows.Err(), msg)
}
