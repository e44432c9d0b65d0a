package model

// Contractor is a licensed home-improvement contractor keyed by license id.
type Contractor struct {
	ID         int64   `json:"id"`
	LicenseID  string  `json:"license_id"`
	Name       string  `json:"name"`
	Company    *string `json:"company,omitempty"`
	Status     *string `json:"status,omitempty"`
	ExpireDate *string `json:"expire_date,omitempty"`
	AddressID  *int64  `json:"address_id,omitempty"`
}
