package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/now-is/chicommons-maps/internal/domain"
	"github.com/now-is/chicommons-maps/internal/repository/memstore"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func actorAt(name string, at time.Time) domain.ActorContext {
	return domain.ActorContext{Actor: name, Clock: domain.FixedClock(at)}
}

func ptr[T any](v T) *T { return &v }

type fakeResolver struct {
	mu    sync.Mutex
	calls []domain.AddressQuery
	loc   domain.Location
	err   error
}

func (f *fakeResolver) Resolve(_ context.Context, q domain.AddressQuery) (domain.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, q)
	if f.err != nil {
		return domain.Location{}, f.err
	}
	return f.loc, nil
}

func (f *fakeResolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var errGeocoderDown = errors.New("geocoder down")

type harness struct {
	store    *memstore.Store
	resolver *fakeResolver
	intake   *IntakeService
	review   *ReviewEngine
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	store := memstore.New()
	resolver := &fakeResolver{loc: domain.Location{Latitude: 41.88, Longitude: -87.63, County: "Cook"}}
	return &harness{
		store:    store,
		resolver: resolver,
		intake:   NewIntakeService(store, resolver, opts, nil, zap.NewNop()),
		review:   NewReviewEngine(store, opts, nil, zap.NewNop()),
	}
}

func (h *harness) submit(t *testing.T, sub domain.Submission) domain.Proposal {
	t.Helper()
	p, err := h.intake.Submit(context.Background(), actorAt("alice", testNow), sub)
	if err != nil {
		t.Fatalf("submit %s: %v", sub.Operation(), err)
	}
	return p
}

func (h *harness) approve(t *testing.T, id uuid.UUID) domain.Proposal {
	t.Helper()
	p, err := h.review.Review(context.Background(), actorAt("bob", testNow.Add(time.Hour)), id, domain.DecisionApproved, "looks good")
	if err != nil {
		t.Fatalf("approve %s: %v", id, err)
	}
	return p
}

func emailMethod(addr string) domain.ContactMethodInput {
	return domain.ContactMethodInput{Type: "EMAIL", Email: addr}
}

func phoneMethod(number string) domain.ContactMethodInput {
	return domain.ContactMethodInput{Type: "PHONE", Phone: number}
}

func address(street string) domain.AddressTagInput {
	return domain.AddressTagInput{
		Address: domain.AddressInput{
			StreetAddress: street,
			City:          "Chicago",
			State:         "IL",
			PostalCode:    "60622",
		},
	}
}

// createBody has 2 types, 2 contact methods, 2 people (Steve with 2 contact
// methods) and 2 addresses.
func createBody() domain.EntryBody {
	return domain.EntryBody{
		Name:        ptr("Test 9999"),
		Website:     ptr("https://example.org"),
		Description: ptr("Worker-owned bakery"),
		Scope:       ptr("Local"),
		Tags:        ptr("bread"),
		Vocabulary:  &[]string{"Type 1", "Type 2"},
		ContactMethods: &[]domain.ContactMethodInput{
			emailMethod("info@example.org"),
			phoneMethod("+13125550100"),
		},
		People: &[]domain.PersonInput{
			{
				FirstName: "Steve",
				LastName:  "Smith",
				ContactMethods: []domain.ContactMethodInput{
					emailMethod("steve@example.org"),
					phoneMethod("+13125550101"),
				},
			},
			{FirstName: "Ann", LastName: "Jones"},
		},
		Addresses: &[]domain.AddressTagInput{
			address("2222 W Chicago Ave"),
			address("1416 N Milwaukee Ave"),
		},
	}
}

// updateBody has 3 types, 4 contact methods, 4 people (with 0, 1, 1 and 2
// contact methods) and 3 addresses.
func updateBody() domain.EntryBody {
	return domain.EntryBody{
		Name:       ptr("Test 8888"),
		Vocabulary: &[]string{"Type 3", "Type 4", "Type 5"},
		ContactMethods: &[]domain.ContactMethodInput{
			emailMethod("a@example.org"),
			emailMethod("b@example.org"),
			phoneMethod("+13125550102"),
			phoneMethod("+13125550103"),
		},
		People: &[]domain.PersonInput{
			{FirstName: "Alan", LastName: "Ng"},
			{FirstName: "Bea", LastName: "Ortiz", ContactMethods: []domain.ContactMethodInput{emailMethod("bea@example.org")}},
			{FirstName: "Cy", LastName: "Park", ContactMethods: []domain.ContactMethodInput{phoneMethod("+13125550104")}},
			{FirstName: "Dee", LastName: "Quinn", ContactMethods: []domain.ContactMethodInput{
				emailMethod("dee@example.org"),
				phoneMethod("+13125550105"),
			}},
		},
		Addresses: &[]domain.AddressTagInput{
			address("100 N State St"),
			address("200 S Clark St"),
			address("300 W Lake St"),
		},
	}
}

func (h *harness) publish(t *testing.T) (identityID uuid.UUID, active domain.EntrySnapshot) {
	t.Helper()
	p := h.submit(t, domain.CreateSubmission{Body: createBody()})
	approved := h.approve(t, p.ID)
	if approved.PublicIdentityID == nil {
		t.Fatalf("approved CREATE has no public identity")
	}
	snap, err := h.store.Repos().Snapshots().GetByID(context.Background(), *p.SnapshotID)
	if err != nil {
		t.Fatalf("load published snapshot: %v", err)
	}
	return *approved.PublicIdentityID, snap
}
