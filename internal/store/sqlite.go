package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/permitcheck/internal/db"
	"github.com/sells-group/permitcheck/internal/model"
	"github.com/sells-group/permitcheck/internal/normalize"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// Writers are serialized through a single connection.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS address (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	street_number  TEXT,
	street_name    TEXT,
	city           TEXT NOT NULL,
	state          TEXT NOT NULL,
	zipcode        TEXT,
	longitude      REAL,
	latitude       REAL,
	occupancy_type TEXT,
	address_owner  TEXT,
	house_value    REAL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_address ON address(
	IFNULL(street_number, ''), IFNULL(street_name, ''), city, state, IFNULL(zipcode, '')
);

CREATE TABLE IF NOT EXISTS contractor (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	license_id  TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	company     TEXT,
	status      TEXT,
	expire_date TEXT,
	address_id  INTEGER REFERENCES address(id)
);

CREATE INDEX IF NOT EXISTS idx_contractor_name ON contractor(name);

CREATE TABLE IF NOT EXISTS approved_permit (
	project_id          INTEGER PRIMARY KEY AUTOINCREMENT,
	permit_id           TEXT UNIQUE,
	date_started        TEXT,
	project_address_id  INTEGER REFERENCES address(id),
	project_amount      REAL,
	project_status      TEXT,
	owner_name          TEXT,
	contractor_name     TEXT,
	project_description TEXT,
	project_comments    TEXT
);

CREATE INDEX IF NOT EXISTS idx_approved_permit_contractor_name ON approved_permit(contractor_name);

CREATE TABLE IF NOT EXISTS state (
	id                         INTEGER PRIMARY KEY CHECK (id = 1),
	permits_updated_at         DATETIME,
	contractors_updated_at     DATETIME,
	property_values_updated_at DATETIME
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin")
	}
	return &sqliteTx{tx: tx}, nil
}

func (s *SQLiteStore) ContractorNamesLike(ctx context.Context, substr string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM contractor WHERE name LIKE ? ESCAPE '\' ORDER BY name LIMIT ?`,
		db.ContainsPattern(substr), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: contractor names like")
	}
	return collectSQLStrings(rows, "sqlite: contractor names like")
}

func (s *SQLiteStore) PermitContractorNames(ctx context.Context, substr string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT c.name FROM contractor c
		WHERE c.name LIKE ? ESCAPE '\'
		AND EXISTS (SELECT 1 FROM approved_permit p WHERE p.contractor_name = c.name)
		ORDER BY c.name LIMIT ?`,
		db.ContainsPattern(substr), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: permit contractor names")
	}
	return collectSQLStrings(rows, "sqlite: permit contractor names")
}

const sqliteContractorCols = `id, license_id, name, company, status, expire_date, address_id`

func (s *SQLiteStore) ContractorByLicense(ctx context.Context, licenseID string) (*model.Contractor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteContractorCols+` FROM contractor WHERE license_id = ?`, licenseID)
	c, err := scanContractor(row)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: contractor by license")
	}
	return c, nil
}

func (s *SQLiteStore) ContractorByName(ctx context.Context, name string) (*model.Contractor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteContractorCols+` FROM contractor WHERE name = ? ORDER BY id LIMIT 1`, name)
	c, err := scanContractor(row)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: contractor by name")
	}
	return c, nil
}

func (s *SQLiteStore) PermitsByContractor(ctx context.Context, contractorName string) ([]model.PermitRecord, error) {
	contractorName = normalize.TextValue(contractorName)
	rows, err := s.db.QueryContext(ctx, permitRecordQuery("?"), contractorName)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: permits by contractor")
	}
	defer rows.Close()

	var out []model.PermitRecord
	for rows.Next() {
		rec, err := scanPermitRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan permit")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: permits by contractor")
}

func (s *SQLiteStore) TotalAmount(ctx context.Context, contractorName string) (*float64, error) {
	contractorName = normalize.TextValue(contractorName)
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(project_amount) FROM approved_permit WHERE contractor_name = ?`,
		contractorName,
	).Scan(&total)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: total amount")
	}
	if !total.Valid {
		return nil, nil
	}
	return &total.Float64, nil
}

func (s *SQLiteStore) EnsureState(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO state (id) VALUES (1) ON CONFLICT (id) DO NOTHING`)
	return eris.Wrap(err, "sqlite: ensure state")
}

func (s *SQLiteStore) GetState(ctx context.Context) (*model.State, error) {
	var permits, contractors, values sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT permits_updated_at, contractors_updated_at, property_values_updated_at FROM state WHERE id = 1`,
	).Scan(&permits, &contractors, &values)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.State{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get state")
	}
	return &model.State{
		PermitsUpdatedAt:        nullTimePtr(permits),
		ContractorsUpdatedAt:    nullTimePtr(contractors),
		PropertyValuesUpdatedAt: nullTimePtr(values),
	}, nil
}

func (s *SQLiteStore) TouchState(ctx context.Context, field model.StateField, at time.Time) error {
	if !field.Valid() {
		return eris.Errorf("sqlite: unknown state field %q", field)
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO state (id, %[1]s) VALUES (1, ?) ON CONFLICT (id) DO UPDATE SET %[1]s = excluded.%[1]s`,
		field), at.UTC())
	return eris.Wrapf(err, "sqlite: touch state %s", field)
}

func (s *SQLiteStore) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM address),
		(SELECT COUNT(*) FROM contractor),
		(SELECT COUNT(*) FROM approved_permit)`,
	).Scan(&c.Addresses, &c.Contractors, &c.Permits)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: counts")
	}
	return &c, nil
}

// sqliteTx implements Tx over a database/sql transaction.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Commit(_ context.Context) error {
	return eris.Wrap(t.tx.Commit(), "sqlite: commit")
}

func (t *sqliteTx) Rollback(_ context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return eris.Wrap(err, "sqlite: rollback")
}

func (t *sqliteTx) FindAddress(ctx context.Context, key model.AddressKey) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM address
		WHERE street_number IS ? AND street_name IS ?
		AND city = ? AND state = ?
		AND zipcode IS ?`,
		key.StreetNumber, key.StreetName, key.City, key.State, key.Zipcode,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: find address")
	}
	return id, nil
}

func (t *sqliteTx) InsertAddress(ctx context.Context, a model.Address) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO address (street_number, street_name, city, state, zipcode,
			longitude, latitude, occupancy_type, address_owner, house_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
		RETURNING id`,
		a.StreetNumber, a.StreetName, a.City, a.State, a.Zipcode,
		a.Longitude, a.Latitude, a.OccupancyType, a.Owner, a.HouseValue,
	).Scan(&id)
	return sqliteInsertResult(id, err, "sqlite: insert address")
}

func (t *sqliteTx) UpdateHouseValue(ctx context.Context, addressID int64, value *float64) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE address SET house_value = ? WHERE id = ?`, value, addressID)
	return eris.Wrap(err, "sqlite: update house value")
}

func (t *sqliteTx) FindContractorByLicense(ctx context.Context, licenseID string) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM contractor WHERE license_id = ?`, licenseID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: find contractor")
	}
	return id, nil
}

func (t *sqliteTx) InsertContractor(ctx context.Context, c model.Contractor) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO contractor (license_id, name, company, status, expire_date, address_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (license_id) DO NOTHING
		RETURNING id`,
		c.LicenseID, c.Name, c.Company, c.Status, c.ExpireDate, c.AddressID,
	).Scan(&id)
	return sqliteInsertResult(id, err, "sqlite: insert contractor")
}

func (t *sqliteTx) UpdateContractor(ctx context.Context, c model.Contractor) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx,
		`UPDATE contractor SET name = ?, company = ?, status = ?, expire_date = ?, address_id = ?
		WHERE license_id = ?
		RETURNING id`,
		c.Name, c.Company, c.Status, c.ExpireDate, c.AddressID, c.LicenseID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: update contractor")
	}
	return id, nil
}

func (t *sqliteTx) InsertPermit(ctx context.Context, p model.Permit) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO approved_permit (permit_id, date_started, project_address_id, project_amount,
			project_status, owner_name, contractor_name, project_description, project_comments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (permit_id) DO NOTHING
		RETURNING project_id`,
		p.PermitID, p.DateStarted, p.AddressID, p.Amount,
		p.Status, p.OwnerName, p.ContractorName, p.Description, p.Comments,
	).Scan(&id)
	return sqliteInsertResult(id, err, "sqlite: insert permit")
}

func (t *sqliteTx) UpdatePermit(ctx context.Context, p model.Permit) (int64, error) {
	if p.PermitID == nil {
		return 0, ErrNotFound
	}
	var id int64
	err := t.tx.QueryRowContext(ctx,
		`UPDATE approved_permit SET date_started = ?, project_address_id = ?, project_amount = ?,
			project_status = ?, owner_name = ?, contractor_name = ?,
			project_description = ?, project_comments = ?
		WHERE permit_id = ?
		RETURNING project_id`,
		p.DateStarted, p.AddressID, p.Amount,
		p.Status, p.OwnerName, p.ContractorName, p.Description, p.Comments, p.PermitID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: update permit")
	}
	return id, nil
}

func sqliteInsertResult(id int64, err error, msg string) (int64, bool, error) {
	switch {
	case err == nil:
		return id, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case isSQLiteUnique(err):
		return 0, false, ErrDuplicate
	default:
		return 0, false, eris.Wrap(err, msg)
	}
}

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return strings.Contains(se.Error(), "UNIQUE constraint failed")
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func collectSQLStrings(rows *sql.Rows, msg string) ([]string, error) {
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
