// Package model defines the persisted entities shared by the store,
// the reconcilers and the lookup API.
package model

// AddressKey is the natural key of an address. Nil components are
// compared as equal to each other, so (nil, "main st", ...) identifies
// exactly one row.
type AddressKey struct {
	StreetNumber *string `json:"street_number"`
	StreetName   *string `json:"street_name"`
	City         *string `json:"city"`
	State        *string `json:"state"`
	Zipcode      *string `json:"zipcode"`
}

// Complete reports whether the mandatory key components are present.
func (k AddressKey) Complete() bool {
	return k.City != nil && k.State != nil
}

// Empty reports whether no key component was supplied at all.
func (k AddressKey) Empty() bool {
	return k.StreetNumber == nil && k.StreetName == nil && k.City == nil &&
		k.State == nil && k.Zipcode == nil
}

// Address is a physical location referenced by contractors and permits.
type Address struct {
	ID int64 `json:"id"`
	AddressKey
	Longitude     *float64 `json:"longitude,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	OccupancyType *string  `json:"occupancy_type,omitempty"`
	Owner         *string  `json:"owner,omitempty"`
	HouseValue    *float64 `json:"house_value,omitempty"`
}
