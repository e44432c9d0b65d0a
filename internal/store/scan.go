package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/sells-group/permitcheck/internal/model"
)

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

func scanContractor(row rowScanner) (*model.Contractor, error) {
	var c model.Contractor
	err := row.Scan(&c.ID, &c.LicenseID, &c.Name, &c.Company, &c.Status, &c.ExpireDate, &c.AddressID)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// permitRecordQuery selects permits for one contractor name, newest first,
// with the project address when there is one.
func permitRecordQuery(param string) string {
	return `SELECT p.project_id, p.permit_id, p.date_started, p.project_address_id, p.project_amount,
		p.project_status, p.owner_name, p.contractor_name, p.project_description, p.project_comments,
		a.id, a.street_number, a.street_name, a.city, a.state, a.zipcode,
		a.longitude, a.latitude, a.occupancy_type, a.address_owner, a.house_value
	FROM approved_permit p
	LEFT JOIN address a ON a.id = p.project_address_id
	WHERE p.contractor_name = ` + param + `
	ORDER BY p.date_started DESC NULLS LAST, p.project_id DESC`
}

func scanPermitRecord(row rowScanner) (*model.PermitRecord, error) {
	var (
		rec    model.PermitRecord
		addrID *int64
		a      model.Address
	)
	err := row.Scan(
		&rec.ProjectID, &rec.PermitID, &rec.DateStarted, &rec.AddressID, &rec.Amount,
		&rec.Status, &rec.OwnerName, &rec.ContractorName, &rec.Description, &rec.Comments,
		&addrID, &a.StreetNumber, &a.StreetName, &a.City, &a.State, &a.Zipcode,
		&a.Longitude, &a.Latitude, &a.OccupancyType, &a.Owner, &a.HouseValue,
	)
	if err != nil {
		return nil, err
	}
	if addrID != nil {
		a.ID = *addrID
		rec.Address = &a
	}
	return &rec, nil
}
