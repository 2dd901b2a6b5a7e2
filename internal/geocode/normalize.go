package geocode

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/now-is/chicommons-maps/internal/domain"
)

var unitNumber = regexp.MustCompile(`(?i)\b(?:apt|unit|suite|office|room)\b\s*[#\d-]*`)

// CleanStreetAddress drops unit designators such as "Suite 200" which the
// geocoder cannot resolve.
func CleanStreetAddress(street string) string {
	cleaned := unitNumber.ReplaceAllString(street, "")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return strings.TrimRight(cleaned, ", ")
}

// NormalizeQuery renders an address as the free-form query sent upstream. The
// result doubles as the cache key.
func NormalizeQuery(q domain.AddressQuery) string {
	query := fmt.Sprintf("%s, %s %s %s",
		CleanStreetAddress(q.StreetAddress),
		strings.TrimSpace(q.City),
		strings.TrimSpace(q.State),
		strings.TrimSpace(q.PostalCode),
	)
	return strings.Join(strings.Fields(query), " ")
}
