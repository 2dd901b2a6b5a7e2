package ingestion

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/now-is/chicommons-maps/internal/domain"
	"github.com/now-is/chicommons-maps/internal/moderation"
	"github.com/now-is/chicommons-maps/internal/repository/memstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var seedActor = domain.ActorContext{
	Actor: "seed",
	Clock: domain.FixedClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
}

func newTestImporter(t *testing.T) (*Importer, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	opts := moderation.DefaultOptions()
	intake := moderation.NewIntakeService(store, nil, opts, nil, zap.NewNop())
	review := moderation.NewReviewEngine(store, opts, nil, zap.NewNop())
	return NewImporter(intake, review, zap.NewNop()), store
}

const seedCSV = "\xEF\xBB\xBFName,Website,Categories,Email,Phone,Contact First Name,Contact Last Name,Contact Email,Street Address,City,State,Postal Code,Latitude,Longitude\n" +
	"Pilsen Food Co-op,https://pilsenfood.coop,Food;Grocery,hello@pilsenfood.coop,,Ana,Diaz,ana@pilsenfood.coop,1805 S Blue Island Ave,Chicago,IL,60608,41.857,-87.661\n" +
	"Dill Pickle,https://dillpickle.coop,Food,,773-252-2667,,,,2746 N Milwaukee Ave,Chicago,IL,60647,41.931,-87.711\n" +
	"Broken Row,,Housing,,,,,,123 Main St,Chicago,IL,,,\n"

func TestImportCSVPublishesValidRows(t *testing.T) {
	importer, store := newTestImporter(t)

	summary, err := importer.Import(context.Background(), Request{
		FileName: "seed.csv",
		Data:     strings.NewReader(seedCSV),
		Actor:    seedActor,
		Approve:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalRows)
	assert.Equal(t, 2, summary.Submitted)
	assert.Equal(t, 2, summary.Approved)
	assert.Equal(t, 1, summary.InvalidRows)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, 4, summary.Errors[0].Row)
	assert.Contains(t, summary.Errors[0].Message, "postalCode")

	stats := store.Stats()
	assert.Equal(t, 2, stats.Identities[domain.IdentityActive])
	assert.Equal(t, 2, stats.Snapshots[domain.SnapshotActive])
	assert.Equal(t, 2, stats.Proposals[domain.ProposalApproved])
	// Food is shared between both rows; Housing belonged to the rejected row.
	assert.Equal(t, 2, stats.VocabularyTerms)
	assert.Equal(t, 1, stats.People)
	assert.Equal(t, 3, stats.ContactMethods)
	assert.Equal(t, 2, stats.Addresses)
}

func TestImportXLSXQueuesProposals(t *testing.T) {
	importer, store := newTestImporter(t)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"name", "is_public", "street_address", "city", "state", "postal_code", "latitude", "longitude"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Co-op Ed", "no", "1 Half St", "Evanston", "IL", "60201", "42.04", "-87.68"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	summary, err := importer.Import(context.Background(), Request{
		FileName: "seed.xlsx",
		Data:     &buf,
		Actor:    seedActor,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Submitted)
	assert.Equal(t, 0, summary.Approved)
	require.Len(t, summary.ProposalIDs, 1)

	pending, err := store.Repos().Proposals().ListByStatus(context.Background(), domain.ProposalPending, 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, summary.ProposalIDs[0], pending[0].ID)

	draft, err := store.Repos().Snapshots().GetByID(context.Background(), *pending[0].SnapshotID)
	require.NoError(t, err)
	assert.False(t, draft.IsPublic)
	require.Len(t, draft.Addresses, 1)
	require.NotNil(t, draft.Addresses[0].Address.Latitude)
	assert.InDelta(t, 42.04, *draft.Addresses[0].Address.Latitude, 1e-9)
}

func TestImportRejectsUnreadableInput(t *testing.T) {
	importer, _ := newTestImporter(t)
	ctx := context.Background()

	_, err := importer.Import(ctx, Request{FileName: "seed.json", Data: strings.NewReader("{}"), Actor: seedActor})
	if !errors.Is(err, ErrUnsupportedFormat) || !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unsupported format validation error, got %v", err)
	}

	_, err = importer.Import(ctx, Request{FileName: "seed.csv", Data: strings.NewReader("website\nhttps://x.coop\n"), Actor: seedActor})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected missing name column to be a validation error, got %v", err)
	}

	_, err = importer.Import(ctx, Request{FileName: "seed.csv", Data: strings.NewReader(seedCSV)})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected missing actor to be a validation error, got %v", err)
	}

	queueOnly := NewImporter(importer.intake, nil, nil)
	if _, err := queueOnly.Import(ctx, Request{FileName: "seed.csv", Data: strings.NewReader(seedCSV), Actor: seedActor, Approve: true}); err == nil {
		t.Fatal("expected approval without a reviewer to fail")
	}
}

func TestImportStopsOnCancellation(t *testing.T) {
	importer, store := newTestImporter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := importer.Import(ctx, Request{FileName: "seed.csv", Data: strings.NewReader(seedCSV), Actor: seedActor})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := store.Stats().Proposals[domain.ProposalPending]; got != 0 {
		t.Fatalf("expected no proposals, got %d", got)
	}
}

func TestRowBody(t *testing.T) {
	headers := sanitizeHeaders([]string{"Name", "Is Public", "Categories", "Street Address", "City", "State", "Postal Code", "Latitude", "Longitude"})

	body, err := rowBody(headers, []string{"Co-op", "No", " Food | Art ;", "", "", "", "", "", ""})
	require.NoError(t, err)
	require.NotNil(t, body.IsPublic)
	assert.False(t, *body.IsPublic)
	assert.Equal(t, []string{"Food", "Art"}, *body.Vocabulary)
	assert.Empty(t, *body.Addresses)
	assert.Empty(t, *body.People)
	assert.Nil(t, body.Website)

	_, err = rowBody(headers, []string{"Co-op", "", "", "1 Main St", "Chicago", "IL", "60601", "north", "-87"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = rowBody(headers, []string{"", "", "", "", "", "", "", "", ""})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = rowBody(headers, []string{"Co-op", "maybe", "", "", "", "", "", "", ""})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSanitizeHeaders(t *testing.T) {
	got := sanitizeHeaders([]string{" Street Address ", "street-address", "", "Postal.Code"})
	assert.Equal(t, []string{"street_address", "street_address_2", "column_3", "postal_code"}, got)
}

func TestParseCSVKeepsSourceLineNumbers(t *testing.T) {
	payload := "name,email\n\nA,a@x.coop\n\n\nB,b@x.coop\n,\n\"C\nD\",c@x.coop\n"

	table, err := parseTable("x.csv", []byte(payload))
	require.NoError(t, err)
	require.Len(t, table.rows, 3)

	assert.Equal(t, 3, table.rows[0].line)
	assert.Equal(t, []string{"A", "a@x.coop"}, table.rows[0].cells)
	assert.Equal(t, 6, table.rows[1].line)
	// the all-blank ",", on line 7, is skipped; a quoted field spanning two
	// lines reports the line it starts on
	assert.Equal(t, 8, table.rows[2].line)
	assert.Equal(t, "C\nD", table.rows[2].cells[0])
}

func TestImportReportsSourceLineOfFailingRow(t *testing.T) {
	importer, _ := newTestImporter(t)
	payload := "name,street_address,city,state,postal_code\n\n" +
		"Good Co-op,1 Main St,Chicago,IL,60601\n\n\n" +
		"No Zip,2 Main St,Chicago,IL,\n"

	summary, err := importer.Import(context.Background(), Request{
		FileName: "seed.csv",
		Data:     strings.NewReader(payload),
		Actor:    seedActor,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalRows)
	assert.Equal(t, 1, summary.Submitted)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, 6, summary.Errors[0].Row)
}

func TestParseExcelUsesSheetRowNumbers(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"name"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"First"}))
	require.NoError(t, f.SetSheetRow(sheet, "A5", &[]any{"Second"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	table, err := parseTable("seed.xlsx", buf.Bytes())
	require.NoError(t, err)
	require.Len(t, table.rows, 2)
	assert.Equal(t, 3, table.rows[0].line)
	assert.Equal(t, 5, table.rows[1].line)
}

type failingReviewer struct {
	err error
}

func (f failingReviewer) Review(context.Context, domain.ActorContext, uuid.UUID, domain.Decision, string) (domain.Proposal, error) {
	return domain.Proposal{}, f.err
}

func TestImportCountsFailedApprovalsSeparately(t *testing.T) {
	store := memstore.New()
	intake := moderation.NewIntakeService(store, nil, moderation.DefaultOptions(), nil, zap.NewNop())
	importer := NewImporter(intake, failingReviewer{err: domain.Conflictf("busy")}, zap.NewNop())

	summary, err := importer.Import(context.Background(), Request{
		FileName: "seed.csv",
		Data:     strings.NewReader(seedCSV),
		Actor:    seedActor,
		Approve:  true,
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.Submitted != 2 || summary.Approved != 0 || summary.ApprovalFailed != 2 || summary.InvalidRows != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.Errors) != 3 {
		t.Fatalf("expected an error per failing row, got %+v", summary.Errors)
	}
	if !strings.Contains(summary.Errors[0].Message, "left pending") {
		t.Fatalf("expected the pending proposal to be named, got %q", summary.Errors[0].Message)
	}
	if got := store.Stats().Proposals[domain.ProposalPending]; got != 2 {
		t.Fatalf("expected 2 pending proposals, got %d", got)
	}
}
