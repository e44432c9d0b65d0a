package model

// Permit is an approved building permit. PermitID is the upstream
// identifier; ProjectID is the local surrogate key.
type Permit struct {
	ProjectID      int64    `json:"project_id"`
	PermitID       *string  `json:"permit_id,omitempty"`
	DateStarted    *string  `json:"date_started,omitempty"`
	AddressID      *int64   `json:"project_address_id,omitempty"`
	Amount         *float64 `json:"project_amount,omitempty"`
	Status         *string  `json:"project_status,omitempty"`
	OwnerName      *string  `json:"owner_name,omitempty"`
	ContractorName *string  `json:"contractor_name,omitempty"`
	Description    *string  `json:"project_description,omitempty"`
	Comments       *string  `json:"project_comments,omitempty"`
}

// PermitRecord is a permit joined with its project address.
type PermitRecord struct {
	Permit
	Address *Address `json:"address,omitempty"`
}
