package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/now-is/chicommons-maps/internal/domain"

	"github.com/google/uuid"
)

func TestSubmitCreateRecordsPendingProposalAndDraft(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	ctx := context.Background()

	p := h.submit(t, domain.CreateSubmission{Body: createBody()})

	if p.Status != domain.ProposalPending || p.Operation != domain.OperationCreate {
		t.Fatalf("unexpected proposal state %s/%s", p.Status, p.Operation)
	}
	if p.PublicIdentityID != nil {
		t.Fatalf("CREATE proposal must not reference an identity yet")
	}
	if p.RequestedBy != "alice" || !p.RequestedAt.Equal(testNow) {
		t.Fatalf("unexpected requester %q at %s", p.RequestedBy, p.RequestedAt)
	}
	if p.SnapshotID == nil {
		t.Fatalf("CREATE proposal must reference its draft")
	}

	draft, err := h.store.Repos().Snapshots().GetByID(ctx, *p.SnapshotID)
	if err != nil {
		t.Fatalf("load draft: %v", err)
	}
	if draft.Lifecycle != domain.SnapshotDraft || draft.PublicIdentityID != nil {
		t.Fatalf("expected unlinked DRAFT, got %s linked=%v", draft.Lifecycle, draft.PublicIdentityID != nil)
	}
	if draft.Name != "Test 9999" || len(draft.People) != 2 || len(draft.Addresses) != 2 {
		t.Fatalf("draft content not persisted: %+v", draft)
	}

	var summary map[string]any
	if err := json.Unmarshal(p.ChangeSummary, &summary); err != nil {
		t.Fatalf("change summary is not JSON: %v", err)
	}
	if summary["operation"] != "CREATE" {
		t.Fatalf("unexpected change summary %v", summary)
	}
}

func TestSubmitEnrichesAddressesMissingLocation(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	body := createBody()
	(*body.Addresses)[1].Address.Latitude = ptr(1.5)
	(*body.Addresses)[1].Address.Longitude = ptr(2.5)
	(*body.Addresses)[1].Address.County = "Lake"

	p := h.submit(t, domain.CreateSubmission{Body: body})

	if h.resolver.callCount() != 1 {
		t.Fatalf("expected only the incomplete address to be geocoded, got %d calls", h.resolver.callCount())
	}
	draft, err := h.store.Repos().Snapshots().GetByID(context.Background(), *p.SnapshotID)
	if err != nil {
		t.Fatalf("load draft: %v", err)
	}
	first := draft.Addresses[0].Address
	if first.Latitude == nil || *first.Latitude != 41.88 || first.County != "Cook" {
		t.Fatalf("address not enriched: %+v", first)
	}
	second := draft.Addresses[1].Address
	if *second.Latitude != 1.5 || second.County != "Lake" {
		t.Fatalf("supplied location overwritten: %+v", second)
	}
}

func TestSubmitGeocodingFailureWritesNothing(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.resolver.err = errGeocoderDown

	_, err := h.intake.Submit(context.Background(), actorAt("alice", testNow), domain.CreateSubmission{Body: createBody()})
	if !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
	if !errors.Is(err, errGeocoderDown) {
		t.Fatalf("expected the resolver error to be wrapped, got %v", err)
	}

	stats := h.store.Stats()
	if len(stats.Snapshots) != 0 || len(stats.Proposals) != 0 || stats.VocabularyTerms != 0 {
		t.Fatalf("expected nothing persisted, got %+v", stats)
	}
}

func TestSubmitValidationFailureHasNoSideEffects(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	body := createBody()
	(*body.ContactMethods)[0] = domain.ContactMethodInput{Type: "EMAIL", Email: "x@example.org", Phone: "+1"}

	_, err := h.intake.Submit(context.Background(), actorAt("alice", testNow), domain.CreateSubmission{Body: body})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h.resolver.callCount() != 0 {
		t.Fatalf("geocoder must not be called for invalid bodies")
	}
	if len(h.store.Stats().Proposals) != 0 {
		t.Fatalf("no proposal should be stored")
	}
}

func TestSubmitRequiresActor(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	_, err := h.intake.Submit(context.Background(), domain.ActorContext{}, domain.CreateSubmission{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitUpdateAgainstUnknownIdentity(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	_, err := h.intake.Submit(context.Background(), actorAt("alice", testNow), domain.UpdateSubmission{
		PublicIdentityID: uuid.New(),
		Body:             domain.EntryBody{Name: ptr("x")},
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestSubmitUpdateClonesActiveVersion(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	identityID, active := h.publish(t)

	p := h.submit(t, domain.UpdateSubmission{PublicIdentityID: identityID, Body: domain.EntryBody{Website: ptr("https://new.example.org")}})

	if p.PublicIdentityID == nil || *p.PublicIdentityID != identityID {
		t.Fatalf("UPDATE proposal must reference the identity")
	}
	if p.BaseSnapshotID == nil || *p.BaseSnapshotID != active.ID {
		t.Fatalf("UPDATE proposal must record the version it was prepared against")
	}
	draft, err := h.store.Repos().Snapshots().GetByID(context.Background(), *p.SnapshotID)
	if err != nil {
		t.Fatalf("load draft: %v", err)
	}
	if draft.Website != "https://new.example.org" || draft.Name != active.Name {
		t.Fatalf("unexpected merge result name=%q website=%q", draft.Name, draft.Website)
	}
	if len(draft.People) != len(active.People) {
		t.Fatalf("omitted people should be cloned")
	}
}

func TestSubmitDeleteCreatesNoSnapshot(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	identityID, active := h.publish(t)
	before := h.store.Stats().Snapshots

	p := h.submit(t, domain.DeleteSubmission{PublicIdentityID: identityID})

	if p.SnapshotID != nil {
		t.Fatalf("DELETE proposal must not reference a snapshot")
	}
	if p.BaseSnapshotID == nil || *p.BaseSnapshotID != active.ID {
		t.Fatalf("DELETE proposal must record the active version")
	}
	after := h.store.Stats().Snapshots
	if after[domain.SnapshotDraft] != before[domain.SnapshotDraft] {
		t.Fatalf("DELETE must not create a draft")
	}
}
