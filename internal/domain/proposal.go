package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Operation is the kind of change a proposal requests.
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// ProposalStatus is the review state of a proposal. PENDING moves exactly once
// to APPROVED or REJECTED.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "PENDING"
	ProposalApproved ProposalStatus = "APPROVED"
	ProposalRejected ProposalStatus = "REJECTED"
)

// Decision is a reviewer's verdict.
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// ParseDecision accepts APPROVED or REJECTED case-insensitively.
func ParseDecision(raw string) (Decision, error) {
	switch Decision(strings.ToUpper(strings.TrimSpace(raw))) {
	case DecisionApproved:
		return DecisionApproved, nil
	case DecisionRejected:
		return DecisionRejected, nil
	default:
		return "", Validationf("unknown review decision %q", raw)
	}
}

// Proposal is a request to create, update or delete an entry.
type Proposal struct {
	ID               uuid.UUID       `json:"id"`
	Status           ProposalStatus  `json:"status"`
	Operation        Operation       `json:"operation"`
	ChangeSummary    json.RawMessage `json:"changeSummary,omitempty"`
	ReviewNotes      string          `json:"reviewNotes,omitempty"`
	RequestedBy      string          `json:"requestedBy"`
	RequestedAt      time.Time       `json:"requestedAt"`
	ReviewedBy       string          `json:"reviewedBy,omitempty"`
	ReviewedAt       *time.Time      `json:"reviewedAt,omitempty"`
	PublicIdentityID *uuid.UUID      `json:"publicIdentityId,omitempty"`
	SnapshotID       *uuid.UUID      `json:"snapshotId,omitempty"`
	BaseSnapshotID   *uuid.UUID      `json:"baseSnapshotId,omitempty"`
}

// Reviewable reports whether the proposal still awaits a decision.
func (p Proposal) Reviewable() bool {
	return p.Status == ProposalPending
}

// Submission is one of CreateSubmission, UpdateSubmission or DeleteSubmission.
type Submission interface {
	Operation() Operation
	isSubmission()
}

// CreateSubmission proposes a brand-new entry.
type CreateSubmission struct {
	Body EntryBody
}

// UpdateSubmission proposes changes on top of an entry's active version.
type UpdateSubmission struct {
	PublicIdentityID uuid.UUID
	Body             EntryBody
}

// DeleteSubmission proposes removing a published entry.
type DeleteSubmission struct {
	PublicIdentityID uuid.UUID
}

func (CreateSubmission) Operation() Operation { return OperationCreate }
func (UpdateSubmission) Operation() Operation { return OperationUpdate }
func (DeleteSubmission) Operation() Operation { return OperationDelete }

func (CreateSubmission) isSubmission() {}
func (UpdateSubmission) isSubmission() {}
func (DeleteSubmission) isSubmission() {}

// ParseSubmission builds a Submission from its wire shape.
func ParseSubmission(operation string, publicIdentityID *uuid.UUID, body *EntryBody) (Submission, error) {
	var entry EntryBody
	if body != nil {
		entry = *body
	}

	switch Operation(strings.ToUpper(strings.TrimSpace(operation))) {
	case OperationCreate:
		return CreateSubmission{Body: entry}, nil
	case OperationUpdate:
		if publicIdentityID == nil || *publicIdentityID == uuid.Nil {
			return nil, Validationf("publicIdentityId is required for UPDATE")
		}
		return UpdateSubmission{PublicIdentityID: *publicIdentityID, Body: entry}, nil
	case OperationDelete:
		if publicIdentityID == nil || *publicIdentityID == uuid.Nil {
			return nil, Validationf("publicIdentityId is required for DELETE")
		}
		return DeleteSubmission{PublicIdentityID: *publicIdentityID}, nil
	default:
		return nil, Validationf("incorrect operation type %q", operation)
	}
}

// changeSummary is the audit copy of a submission.
type changeSummary struct {
	Operation        Operation  `json:"operation"`
	PublicIdentityID *uuid.UUID `json:"publicIdentityId,omitempty"`
	Entry            *EntryBody `json:"entry,omitempty"`
}

// ChangeSummary serializes a submission for the audit trail.
func ChangeSummary(sub Submission) (json.RawMessage, error) {
	summary := changeSummary{Operation: sub.Operation()}
	switch s := sub.(type) {
	case CreateSubmission:
		summary.Entry = &s.Body
	case UpdateSubmission:
		id := s.PublicIdentityID
		summary.PublicIdentityID = &id
		summary.Entry = &s.Body
	case DeleteSubmission:
		id := s.PublicIdentityID
		summary.PublicIdentityID = &id
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
