package geocode

import (
	"testing"

	"github.com/now-is/chicommons-maps/internal/domain"
)

func TestCleanStreetAddress(t *testing.T) {
	cases := map[string]string{
		"123 Main St Apt 4":        "123 Main St",
		"500 W Madison Suite #12":  "500 W Madison",
		"77 Elm Ave, Unit 3-4":     "77 Elm Ave",
		"1 Office Park Room 101":   "1 Park",
		"  9   Lake   Shore Dr  ":  "9 Lake Shore Dr",
		"440 N Wabash Ave, Apt 12": "440 N Wabash Ave",
	}
	for in, want := range cases {
		if got := CleanStreetAddress(in); got != want {
			t.Errorf("CleanStreetAddress(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeQuery(t *testing.T) {
	got := NormalizeQuery(domain.AddressQuery{
		StreetAddress: "2222 W Chicago Ave, Suite 5",
		City:          " Chicago ",
		State:         "IL",
		PostalCode:    "60622",
	})
	if got != "2222 W Chicago Ave, Chicago IL 60622" {
		t.Fatalf("unexpected query %q", got)
	}
}
