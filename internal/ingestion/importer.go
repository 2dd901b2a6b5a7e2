// Package ingestion bulk-loads directory entries from CSV or XLSX files by
// submitting one CREATE proposal per row.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/now-is/chicommons-maps/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Submitter accepts proposals.
type Submitter interface {
	Submit(ctx context.Context, actor domain.ActorContext, sub domain.Submission) (domain.Proposal, error)
}

// Reviewer decides proposals.
type Reviewer interface {
	Review(ctx context.Context, actor domain.ActorContext, proposalID uuid.UUID, decision domain.Decision, notes string) (domain.Proposal, error)
}

// Importer turns tabular rows into CREATE proposals.
type Importer struct {
	intake Submitter
	review Reviewer
	log    *zap.Logger
}

// NewImporter creates an importer. review may be nil when rows are only
// queued for moderation.
func NewImporter(intake Submitter, review Reviewer, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{intake: intake, review: review, log: logger}
}

// Request describes one import.
type Request struct {
	FileName string
	Data     io.Reader
	Actor    domain.ActorContext
	// Approve publishes every submitted row right away, acting as Actor.
	Approve bool
}

// RowError reports a row that could not be imported.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Summary returns import level metrics. Every row ends up in exactly one of
// InvalidRows (nothing was submitted), Approved, ApprovalFailed (the proposal
// was submitted but its review failed, so it stays PENDING) or, without
// approval, just Submitted. Submitted counts every row that produced a
// proposal.
type Summary struct {
	TotalRows      int         `json:"totalRows"`
	Submitted      int         `json:"submitted"`
	Approved       int         `json:"approved"`
	ApprovalFailed int         `json:"approvalFailed"`
	InvalidRows    int         `json:"invalidRows"`
	ProposalIDs    []uuid.UUID `json:"proposalIds"`
	Errors         []RowError  `json:"errors"`
}

// Import reads the file and submits every row. A failing row is recorded in
// the summary and does not stop the rest; cancellation does.
func (i *Importer) Import(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{ProposalIDs: []uuid.UUID{}, Errors: []RowError{}}

	if strings.TrimSpace(req.Actor.Actor) == "" {
		return summary, domain.Validationf("actor is required")
	}
	if req.Approve && i.review == nil {
		return summary, errors.New("import: approval requested without a reviewer")
	}
	if req.Data == nil {
		return summary, domain.Validationf("data reader is required")
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, domain.Validationf("file is empty")
	}

	table, err := parseTable(req.FileName, payload)
	if err != nil {
		return summary, domain.Validationf("%s: %w", req.FileName, err)
	}
	if !hasColumn(table.headers, "name") {
		return summary, domain.Validationf("%s: a name column is required", req.FileName)
	}

	for _, row := range table.rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.TotalRows++
		rowNumber := row.line

		body, err := rowBody(table.headers, row.cells)
		if err != nil {
			summary.InvalidRows++
			i.rowFailed(&summary, req, rowNumber, err)
			continue
		}

		proposal, err := i.intake.Submit(ctx, req.Actor, domain.CreateSubmission{Body: body})
		if err != nil {
			summary.InvalidRows++
			i.rowFailed(&summary, req, rowNumber, err)
			continue
		}
		summary.Submitted++
		summary.ProposalIDs = append(summary.ProposalIDs, proposal.ID)

		if !req.Approve {
			continue
		}
		notes := fmt.Sprintf("imported from %s row %d", req.FileName, rowNumber)
		if _, err := i.review.Review(ctx, req.Actor, proposal.ID, domain.DecisionApproved, notes); err != nil {
			summary.ApprovalFailed++
			i.rowFailed(&summary, req, rowNumber, fmt.Errorf("proposal %s left pending: %w", proposal.ID, err))
			continue
		}
		summary.Approved++
	}

	i.log.Info("import finished",
		zap.String("file", req.FileName),
		zap.Int("rows", summary.TotalRows),
		zap.Int("submitted", summary.Submitted),
		zap.Int("approved", summary.Approved),
		zap.Int("approval_failed", summary.ApprovalFailed),
		zap.Int("invalid", summary.InvalidRows),
	)
	return summary, nil
}

func (i *Importer) rowFailed(summary *Summary, req Request, row int, err error) {
	summary.Errors = append(summary.Errors, RowError{Row: row, Message: err.Error()})
	i.log.Warn("import row rejected",
		zap.String("file", req.FileName),
		zap.Int("row", row),
		zap.Error(err),
	)
}

func hasColumn(headers []string, name string) bool {
	for _, h := range headers {
		if h == name {
			return true
		}
	}
	return false
}

// rowBody maps one row onto a full entry body. Recognised columns: name,
// website, description, is_public, scope, tags, categories (";" separated),
// email, phone, contact_first_name, contact_last_name, contact_email,
// contact_phone, street_address, city, county, state, postal_code, country,
// latitude, longitude. Unknown columns are ignored.
func rowBody(headers []string, row []string) (domain.EntryBody, error) {
	cells := make(map[string]string, len(headers))
	for idx, header := range headers {
		cells[header] = strings.TrimSpace(row[idx])
	}

	name := cells["name"]
	if name == "" {
		return domain.EntryBody{}, domain.Validationf("name is required")
	}

	body := domain.EntryBody{
		Name:        &name,
		Website:     stringPtr(cells["website"]),
		Description: stringPtr(cells["description"]),
		Scope:       stringPtr(cells["scope"]),
		Tags:        stringPtr(cells["tags"]),
	}

	if raw := cells["is_public"]; raw != "" {
		public, err := parseBool(raw)
		if err != nil {
			return domain.EntryBody{}, domain.Validationf("is_public: %w", err)
		}
		body.IsPublic = &public
	}

	vocabulary := splitTerms(cells["categories"])
	body.Vocabulary = &vocabulary

	methods := contactMethods(cells["email"], cells["phone"])
	body.ContactMethods = &methods

	people := []domain.PersonInput{}
	if first, last := cells["contact_first_name"], cells["contact_last_name"]; first != "" || last != "" {
		people = append(people, domain.PersonInput{
			FirstName:      first,
			LastName:       last,
			ContactMethods: contactMethods(cells["contact_email"], cells["contact_phone"]),
		})
	}
	body.People = &people

	addresses := []domain.AddressTagInput{}
	if cells["street_address"] != "" || cells["city"] != "" {
		address := domain.AddressInput{
			StreetAddress: cells["street_address"],
			City:          cells["city"],
			County:        cells["county"],
			State:         cells["state"],
			PostalCode:    cells["postal_code"],
			Country:       cells["country"],
		}
		var err error
		if address.Latitude, err = parseCoordinate("latitude", cells["latitude"]); err != nil {
			return domain.EntryBody{}, err
		}
		if address.Longitude, err = parseCoordinate("longitude", cells["longitude"]); err != nil {
			return domain.EntryBody{}, err
		}
		addresses = append(addresses, domain.AddressTagInput{Address: address})
	}
	body.Addresses = &addresses

	return body, nil
}

func stringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func splitTerms(raw string) []string {
	terms := []string{}
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == '|' }) {
		if term := strings.TrimSpace(part); term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

func contactMethods(email, phone string) []domain.ContactMethodInput {
	methods := []domain.ContactMethodInput{}
	if email != "" {
		methods = append(methods, domain.ContactMethodInput{Type: string(domain.ContactEmail), Email: email})
	}
	if phone != "" {
		methods = append(methods, domain.ContactMethodInput{Type: string(domain.ContactPhone), Phone: phone})
	}
	return methods
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func parseCoordinate(field, raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, domain.Validationf("%s: invalid number %q", field, raw)
	}
	return &v, nil
}
