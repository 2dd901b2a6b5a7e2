package domain

import "testing"

func TestAddressInputNeedsGeocoding(t *testing.T) {
	lat, lon := 41.88, -87.63
	cases := []struct {
		name string
		addr AddressInput
		want bool
	}{
		{"nothing known", AddressInput{}, true},
		{"coordinates only", AddressInput{Latitude: &lat, Longitude: &lon}, true},
		{"county only", AddressInput{County: "Cook"}, true},
		{"latitude and county", AddressInput{Latitude: &lat, County: "Cook"}, true},
		{"complete", AddressInput{Latitude: &lat, Longitude: &lon, County: "Cook"}, false},
	}
	for _, tc := range cases {
		if got := tc.addr.NeedsGeocoding(); got != tc.want {
			t.Fatalf("%s: NeedsGeocoding() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestAddressInputQuery(t *testing.T) {
	addr := AddressInput{StreetAddress: "1 Main St", City: "Chicago", County: "Cook", State: "IL", PostalCode: "60601", Country: "US"}
	want := AddressQuery{StreetAddress: "1 Main St", City: "Chicago", State: "IL", PostalCode: "60601"}
	if got := addr.Query(); got != want {
		t.Fatalf("Query() = %+v, want %+v", got, want)
	}
}
