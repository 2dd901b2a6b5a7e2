package moderation

import (
	"context"

	"github.com/now-is/chicommons-maps/internal/domain"

	"go.uber.org/zap"
)

// AddressResolver looks up coordinates and county of an address.
type AddressResolver interface {
	Resolve(ctx context.Context, q domain.AddressQuery) (domain.Location, error)
}

// enrichAddresses fills in missing coordinates and county of every supplied
// address. It returns a copy of body; the input is left untouched.
func (s *IntakeService) enrichAddresses(ctx context.Context, body domain.EntryBody) (domain.EntryBody, error) {
	if s.resolver == nil || body.Addresses == nil || len(*body.Addresses) == 0 {
		return body, nil
	}

	if s.opts.GeocodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.GeocodeTimeout)
		defer cancel()
	}

	tags := make([]domain.AddressTagInput, len(*body.Addresses))
	copy(tags, *body.Addresses)

	for i := range tags {
		addr := &tags[i].Address
		if !addr.NeedsGeocoding() {
			continue
		}

		loc, err := s.resolver.Resolve(ctx, addr.Query())
		if err != nil {
			s.log.Warn("address enrichment failed",
				zap.String("street", addr.StreetAddress),
				zap.String("city", addr.City),
				zap.Error(err),
			)
			if _, classified := domain.KindOf(err); classified {
				return domain.EntryBody{}, err
			}
			return domain.EntryBody{}, domain.ExternalServicef("geocode address %d: %w", i, err)
		}

		if !addr.HasCoordinates() {
			lat, lon := loc.Latitude, loc.Longitude
			addr.Latitude = &lat
			addr.Longitude = &lon
		}
		if addr.County == "" {
			addr.County = loc.County
		}
	}

	body.Addresses = &tags
	return body, nil
}
