package domain

// AddressQuery is the part of an address the geocoder is asked about.
type AddressQuery struct {
	StreetAddress string
	City          string
	State         string
	PostalCode    string
}

// HasCoordinates reports whether both latitude and longitude were supplied.
func (a AddressInput) HasCoordinates() bool {
	return a.Latitude != nil && a.Longitude != nil
}

// NeedsGeocoding reports whether coordinates or county are missing.
func (a AddressInput) NeedsGeocoding() bool {
	return !a.HasCoordinates() || a.County == ""
}

// Query returns the geocoder query of a submitted address.
func (a AddressInput) Query() AddressQuery {
	return AddressQuery{
		StreetAddress: a.StreetAddress,
		City:          a.City,
		State:         a.State,
		PostalCode:    a.PostalCode,
	}
}

// Location is what the geocoder knows about an address.
type Location struct {
	Latitude  float64
	Longitude float64
	County    string
}
