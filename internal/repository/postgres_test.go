package repository_test

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/now-is/chicommons-maps/internal/db"
	"github.com/now-is/chicommons-maps/internal/domain"
	"github.com/now-is/chicommons-maps/internal/moderation"
	"github.com/now-is/chicommons-maps/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testDatabaseEnv = "DIRECTORY_TEST_DATABASE_URL"

// openTestStore connects to the database named by DIRECTORY_TEST_DATABASE_URL,
// migrates it and empties every table.
func openTestStore(t *testing.T) *repository.PostgresStore {
	t.Helper()
	raw := os.Getenv(testDatabaseEnv)
	if raw == "" {
		t.Skipf("%s not set; skipping postgres tests", testDatabaseEnv)
	}
	cfg := configFromURL(t, raw)

	require.NoError(t, db.RunMigrations(cfg, db.MigrateUp, zap.NewNop()))

	ctx := context.Background()
	conn, err := db.NewConnection(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	_, err = conn.Pool.Exec(ctx, `TRUNCATE proposals, address_cache, addresses, address_tags, contact_methods,
		people, entry_snapshot_vocabulary, entry_snapshots, public_identities, vocabulary_terms CASCADE`)
	require.NoError(t, err)

	return repository.NewPostgresStore(conn)
}

func configFromURL(t *testing.T, raw string) db.Config {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)

	cfg := db.DefaultConfig()
	cfg.Host = u.Hostname()
	if port := u.Port(); port != "" {
		cfg.Port, err = strconv.Atoi(port)
		require.NoError(t, err)
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if mode := u.Query().Get("sslmode"); mode != "" {
		cfg.SSLMode = mode
	}
	return cfg
}

func ptr[T any](v T) *T { return &v }

func TestPostgresLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	opts := moderation.DefaultOptions()
	intake := moderation.NewIntakeService(store, nil, opts, nil, zap.NewNop())
	review := moderation.NewReviewEngine(store, opts, nil, zap.NewNop())

	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	alice := domain.ActorContext{Actor: "alice", Clock: domain.FixedClock(at)}
	bob := domain.ActorContext{Actor: "bob", Clock: domain.FixedClock(at.Add(time.Hour))}

	created, err := intake.Submit(ctx, alice, domain.CreateSubmission{Body: domain.EntryBody{
		Name:       ptr("Pilsen Food Co-op"),
		Vocabulary: &[]string{"Food", "Grocery"},
		ContactMethods: &[]domain.ContactMethodInput{
			{Type: "EMAIL", Email: "hello@pilsenfood.coop"},
			{Type: "PHONE", Phone: "312-555-0100"},
		},
		People: &[]domain.PersonInput{{
			FirstName:      "Ana",
			LastName:       "Diaz",
			ContactMethods: []domain.ContactMethodInput{{Type: "EMAIL", Email: "ana@pilsenfood.coop"}},
		}},
		Addresses: &[]domain.AddressTagInput{{Address: domain.AddressInput{
			StreetAddress: "1805 S Blue Island Ave", City: "Chicago", County: "Cook", State: "IL",
			PostalCode: "60608", Latitude: ptr(41.857), Longitude: ptr(-87.661),
		}}},
	}})
	require.NoError(t, err)
	require.NotNil(t, created.SnapshotID)

	draft, err := store.Repos().Snapshots().GetByID(ctx, *created.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, domain.SnapshotDraft, draft.Lifecycle)
	assert.Equal(t, []string{"Food", "Grocery"}, termNames(draft.Vocabulary))
	require.Len(t, draft.People, 1)
	require.Len(t, draft.People[0].ContactMethods, 1)
	require.Len(t, draft.Addresses, 1)
	assert.Equal(t, "Cook", draft.Addresses[0].Address.County)

	approved, err := review.Review(ctx, bob, created.ID, domain.DecisionApproved, "")
	require.NoError(t, err)
	require.NotNil(t, approved.PublicIdentityID)
	identityID := *approved.PublicIdentityID

	updated, err := intake.Submit(ctx, alice, domain.UpdateSubmission{
		PublicIdentityID: identityID,
		Body:             domain.EntryBody{Name: ptr("Pilsen Community Market"), Vocabulary: &[]string{"Food", "Market"}},
	})
	require.NoError(t, err)

	clone, err := store.Repos().Snapshots().GetByID(ctx, *updated.SnapshotID)
	require.NoError(t, err)
	assert.NotEqual(t, draft.People[0].ID, clone.People[0].ID)
	assert.Equal(t, draft.People[0].FirstName, clone.People[0].FirstName)
	assert.Equal(t, draft.Vocabulary[0].ID, clone.Vocabulary[0].ID)

	_, err = review.Review(ctx, bob, updated.ID, domain.DecisionApproved, "renamed")
	require.NoError(t, err)

	active, err := store.Repos().Snapshots().ListActiveByIdentity(ctx, identityID, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, *updated.SnapshotID, active[0].ID)

	original, err := store.Repos().Snapshots().GetByID(ctx, *created.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, domain.SnapshotArchived, original.Lifecycle)

	// A second ACTIVE row for the same identity trips the partial unique index.
	err = store.WithinTx(ctx, func(r repository.Repositories) error {
		return r.Snapshots().SetLifecycle(ctx, *created.SnapshotID, domain.SnapshotActive, &identityID)
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	terms, err := store.Repos().Vocabulary().List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Food", "Grocery", "Market"}, termNames(terms))

	pending, err := store.Repos().Proposals().ListByStatus(ctx, domain.ProposalPending, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPostgresRejectedDraftDeletion(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	opts := moderation.DefaultOptions()
	opts.RejectedDrafts = moderation.DeleteRejectedDrafts
	intake := moderation.NewIntakeService(store, nil, opts, nil, zap.NewNop())
	review := moderation.NewReviewEngine(store, opts, nil, zap.NewNop())
	actor := domain.ActorContext{Actor: "alice"}

	p, err := intake.Submit(ctx, actor, domain.CreateSubmission{Body: domain.EntryBody{
		Name:           ptr("Short Lived"),
		ContactMethods: &[]domain.ContactMethodInput{{Type: "EMAIL", Email: "x@example.org"}},
	}})
	require.NoError(t, err)

	rejected, err := review.Review(ctx, actor, p.ID, domain.DecisionRejected, "duplicate")
	require.NoError(t, err)
	assert.Nil(t, rejected.SnapshotID)

	_, err = store.Repos().Snapshots().GetByID(ctx, *p.SnapshotID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stored, err := store.Repos().Proposals().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalRejected, stored.Status)
	assert.Nil(t, stored.SnapshotID)
}

func TestPostgresAddressCache(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	cache := store.AddressCache()

	_, err := cache.Get(ctx, "1 main st, chicago il 60601")
	require.ErrorIs(t, err, domain.ErrNotFound)

	entry := domain.AddressCacheEntry{
		Query:    "1 main st, chicago il 60601",
		PlaceID:  "123",
		Response: json.RawMessage(`{"lat":"41.88","lon":"-87.63"}`),
	}
	require.NoError(t, cache.Put(ctx, entry))
	entry.PlaceID = "456"
	require.NoError(t, cache.Put(ctx, entry))

	got, err := cache.Get(ctx, entry.Query)
	require.NoError(t, err)
	assert.Equal(t, "456", got.PlaceID)
	assert.JSONEq(t, string(entry.Response), string(got.Response))
}

func TestPostgresProposalNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Repos().Proposals().GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func termNames(terms []domain.VocabularyTerm) []string {
	names := make([]string, 0, len(terms))
	for _, term := range terms {
		names = append(names, term.Name)
	}
	return names
}
