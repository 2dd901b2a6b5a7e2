package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/now-is/chicommons-maps/internal/db"
	"github.com/now-is/chicommons-maps/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// proposalRepository implements ProposalRepository interface
type proposalRepository struct {
	db db.DBTX
}

// NewProposalRepository creates a new proposal repository
func NewProposalRepository(exec db.DBTX) ProposalRepository {
	return &proposalRepository{db: exec}
}

const proposalColumns = `id, status, operation, change_summary, review_notes, requested_by, requested_at,
	reviewed_by, reviewed_at, public_identity_id, snapshot_id, base_snapshot_id`

// Create inserts a new proposal
func (r *proposalRepository) Create(ctx context.Context, proposal domain.Proposal) (domain.Proposal, error) {
	if proposal.ID == uuid.Nil {
		proposal.ID = uuid.New()
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO proposals (`+proposalColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+proposalColumns,
		proposal.ID,
		proposal.Status,
		proposal.Operation,
		summaryParam(proposal.ChangeSummary),
		proposal.ReviewNotes,
		proposal.RequestedBy,
		proposal.RequestedAt,
		nullText(proposal.ReviewedBy),
		proposal.ReviewedAt,
		proposal.PublicIdentityID,
		proposal.SnapshotID,
		proposal.BaseSnapshotID,
	)
	created, err := scanProposal(row)
	if err != nil {
		return domain.Proposal{}, translateError("create proposal", err)
	}
	return created, nil
}

// GetByID retrieves a proposal by ID
func (r *proposalRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Proposal, error) {
	row := r.db.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id)
	proposal, err := scanProposal(row)
	if err != nil {
		return domain.Proposal{}, translateError("get proposal", err)
	}
	return proposal, nil
}

// GetForUpdate retrieves a proposal and holds its row lock
func (r *proposalRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Proposal, error) {
	row := r.db.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1 FOR UPDATE`, id)
	proposal, err := scanProposal(row)
	if err != nil {
		return domain.Proposal{}, translateError("lock proposal", err)
	}
	return proposal, nil
}

// Update persists the review outcome of a proposal
func (r *proposalRepository) Update(ctx context.Context, proposal domain.Proposal) (domain.Proposal, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE proposals
		 SET status = $2, review_notes = $3, reviewed_by = $4, reviewed_at = $5,
		     public_identity_id = $6, snapshot_id = $7
		 WHERE id = $1
		 RETURNING `+proposalColumns,
		proposal.ID,
		proposal.Status,
		proposal.ReviewNotes,
		nullText(proposal.ReviewedBy),
		proposal.ReviewedAt,
		proposal.PublicIdentityID,
		proposal.SnapshotID,
	)
	updated, err := scanProposal(row)
	if err != nil {
		return domain.Proposal{}, translateError("update proposal", err)
	}
	return updated, nil
}

// ListByStatus lists proposals in a status, oldest first
func (r *proposalRepository) ListByStatus(ctx context.Context, status domain.ProposalStatus, limit int, offset int) ([]domain.Proposal, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+proposalColumns+`
		 FROM proposals
		 WHERE status = $1
		 ORDER BY requested_at, id
		 LIMIT $2 OFFSET $3`,
		status, limit, offset,
	)
	if err != nil {
		return nil, translateError("list proposals", err)
	}
	defer rows.Close()

	proposals := []domain.Proposal{}
	for rows.Next() {
		proposal, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		proposals = append(proposals, proposal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate proposals: %w", err)
	}
	return proposals, nil
}

func scanProposal(row pgx.Row) (domain.Proposal, error) {
	var (
		proposal       domain.Proposal
		summary        []byte
		reviewedBy     pgtype.Text
		reviewedAt     pgtype.Timestamptz
		identityID     pgtype.UUID
		snapshotID     pgtype.UUID
		baseSnapshotID pgtype.UUID
	)
	if err := row.Scan(
		&proposal.ID,
		&proposal.Status,
		&proposal.Operation,
		&summary,
		&proposal.ReviewNotes,
		&proposal.RequestedBy,
		&proposal.RequestedAt,
		&reviewedBy,
		&reviewedAt,
		&identityID,
		&snapshotID,
		&baseSnapshotID,
	); err != nil {
		return domain.Proposal{}, err
	}
	if len(summary) > 0 {
		proposal.ChangeSummary = json.RawMessage(summary)
	}
	proposal.ReviewedBy = reviewedBy.String
	if reviewedAt.Valid {
		at := reviewedAt.Time
		proposal.ReviewedAt = &at
	}
	proposal.PublicIdentityID = optionalUUID(identityID)
	proposal.SnapshotID = optionalUUID(snapshotID)
	proposal.BaseSnapshotID = optionalUUID(baseSnapshotID)
	return proposal, nil
}

func optionalUUID(value pgtype.UUID) *uuid.UUID {
	if !value.Valid {
		return nil
	}
	id := uuid.UUID(value.Bytes)
	return &id
}

func summaryParam(summary json.RawMessage) any {
	if len(summary) == 0 {
		return nil
	}
	return string(summary)
}
