package moderation

import (
	"context"
	"strings"
	"time"

	"github.com/now-is/chicommons-maps/internal/domain"
	"github.com/now-is/chicommons-maps/internal/metrics"
	"github.com/now-is/chicommons-maps/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReviewEngine applies a reviewer's decision to a pending proposal.
type ReviewEngine struct {
	store   repository.Store
	lookup  PublicationLookup
	opts    Options
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewReviewEngine creates a review engine; m may be nil.
func NewReviewEngine(store repository.Store, opts Options, m *metrics.Metrics, logger *zap.Logger) *ReviewEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RejectedDrafts == "" {
		opts.RejectedDrafts = RetainRejectedDrafts
	}
	return &ReviewEngine{
		store:   store,
		lookup:  NewPublicationLookup(logger),
		opts:    opts,
		metrics: m,
		log:     logger,
	}
}

// Review closes a PENDING proposal. Approval publishes or retires snapshots and
// updates the public identity; rejection only closes the proposal. Everything
// happens in one transaction.
func (e *ReviewEngine) Review(ctx context.Context, actor domain.ActorContext, proposalID uuid.UUID, decision domain.Decision, notes string) (domain.Proposal, error) {
	if strings.TrimSpace(actor.Actor) == "" {
		return domain.Proposal{}, domain.Validationf("an actor is required to review a proposal")
	}
	if decision != domain.DecisionApproved && decision != domain.DecisionRejected {
		return domain.Proposal{}, domain.Validationf("unknown review decision %q", decision)
	}

	var reviewed domain.Proposal
	err := e.store.WithinTx(ctx, func(repos repository.Repositories) error {
		proposal, err := repos.Proposals().GetForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		if !proposal.Reviewable() {
			return domain.Conflictf("proposal %s is not reviewable: status is %s", proposal.ID, proposal.Status)
		}

		now := actor.Now()
		if decision == domain.DecisionRejected {
			err = e.reject(ctx, repos, &proposal)
		} else {
			err = e.approve(ctx, repos, actor, now, &proposal)
		}
		if err != nil {
			return err
		}

		proposal.ReviewNotes = notes
		proposal.ReviewedBy = actor.Actor
		proposal.ReviewedAt = &now
		reviewed, err = repos.Proposals().Update(ctx, proposal)
		return err
	})
	if err != nil {
		e.log.Debug("review failed",
			zap.String("proposal_id", proposalID.String()),
			zap.String("decision", string(decision)),
			zap.Error(err),
		)
		return domain.Proposal{}, err
	}

	e.metrics.IncReviewed(string(reviewed.Operation), string(decision))
	e.log.Info("proposal reviewed",
		zap.String("proposal_id", reviewed.ID.String()),
		zap.String("operation", string(reviewed.Operation)),
		zap.String("status", string(reviewed.Status)),
		zap.String("reviewed_by", reviewed.ReviewedBy),
	)
	return reviewed, nil
}

func (e *ReviewEngine) reject(ctx context.Context, repos repository.Repositories, proposal *domain.Proposal) error {
	proposal.Status = domain.ProposalRejected
	if e.opts.RejectedDrafts != DeleteRejectedDrafts || proposal.SnapshotID == nil {
		return nil
	}

	draft, err := repos.Snapshots().GetByID(ctx, *proposal.SnapshotID)
	if err != nil {
		return err
	}
	if draft.Lifecycle != domain.SnapshotDraft {
		return domain.Conflictf("snapshot %s of proposal %s is %s, not DRAFT", draft.ID, proposal.ID, draft.Lifecycle)
	}
	if err := repos.Snapshots().Delete(ctx, draft.ID); err != nil {
		return err
	}
	proposal.SnapshotID = nil
	return nil
}

func (e *ReviewEngine) approve(ctx context.Context, repos repository.Repositories, actor domain.ActorContext, now time.Time, proposal *domain.Proposal) error {
	proposal.Status = domain.ProposalApproved

	switch proposal.Operation {
	case domain.OperationCreate:
		draft, err := e.draftOf(ctx, repos, proposal)
		if err != nil {
			return err
		}
		identity := domain.NewPublicIdentity(proposal.RequestedBy, now)
		identity.LastModifiedBy = actor.Actor
		identity, err = repos.Identities().Create(ctx, identity)
		if err != nil {
			return err
		}
		if err := repos.Snapshots().SetLifecycle(ctx, draft.ID, domain.SnapshotActive, &identity.ID); err != nil {
			return err
		}
		id := identity.ID
		proposal.PublicIdentityID = &id
		return nil

	case domain.OperationUpdate:
		identity, active, err := e.current(ctx, repos, proposal)
		if err != nil {
			return err
		}
		draft, err := e.draftOf(ctx, repos, proposal)
		if err != nil {
			return err
		}
		if err := repos.Snapshots().SetLifecycle(ctx, active.ID, domain.SnapshotArchived, nil); err != nil {
			return err
		}
		if err := repos.Snapshots().SetLifecycle(ctx, draft.ID, domain.SnapshotActive, &identity.ID); err != nil {
			return err
		}
		return e.touch(ctx, repos, identity, domain.IdentityActive, actor, now)

	case domain.OperationDelete:
		identity, active, err := e.current(ctx, repos, proposal)
		if err != nil {
			return err
		}
		if err := repos.Snapshots().SetLifecycle(ctx, active.ID, domain.SnapshotArchived, nil); err != nil {
			return err
		}
		return e.touch(ctx, repos, identity, domain.IdentityRemoved, actor, now)

	default:
		return domain.Validationf("incorrect operation type %q", proposal.Operation)
	}
}

// current locks the identity an UPDATE or DELETE refers to, together with its
// single active snapshot.
func (e *ReviewEngine) current(ctx context.Context, repos repository.Repositories, proposal *domain.Proposal) (domain.PublicIdentity, domain.EntrySnapshot, error) {
	if proposal.PublicIdentityID == nil {
		return domain.PublicIdentity{}, domain.EntrySnapshot{}, domain.Conflictf("proposal %s has no public identity", proposal.ID)
	}
	identity, err := repos.Identities().GetForUpdate(ctx, *proposal.PublicIdentityID)
	if err != nil {
		return domain.PublicIdentity{}, domain.EntrySnapshot{}, err
	}
	if identity.Lifecycle == domain.IdentityRemoved {
		return domain.PublicIdentity{}, domain.EntrySnapshot{}, domain.Conflictf("entry %s has been removed", identity.ID)
	}

	active, err := e.lookup.ActiveSnapshotFor(ctx, repos.Snapshots(), identity.ID, true)
	if err != nil {
		if _, classified := domain.KindOf(err); classified {
			err = domain.Conflictf("proposal %s: %w", proposal.ID, err)
		}
		return domain.PublicIdentity{}, domain.EntrySnapshot{}, err
	}

	if e.opts.RejectStaleProposals && proposal.BaseSnapshotID != nil && *proposal.BaseSnapshotID != active.ID {
		return domain.PublicIdentity{}, domain.EntrySnapshot{}, domain.Conflictf(
			"stale proposal %s: prepared against %s but %s is active", proposal.ID, *proposal.BaseSnapshotID, active.ID)
	}
	return identity, active, nil
}

func (e *ReviewEngine) draftOf(ctx context.Context, repos repository.Repositories, proposal *domain.Proposal) (domain.EntrySnapshot, error) {
	if proposal.SnapshotID == nil {
		return domain.EntrySnapshot{}, domain.NotFoundf("proposal %s has no draft snapshot", proposal.ID)
	}
	draft, err := repos.Snapshots().GetByID(ctx, *proposal.SnapshotID)
	if err != nil {
		return domain.EntrySnapshot{}, err
	}
	if draft.Lifecycle != domain.SnapshotDraft {
		return domain.EntrySnapshot{}, domain.Conflictf("snapshot %s of proposal %s is %s, not DRAFT", draft.ID, proposal.ID, draft.Lifecycle)
	}
	return draft, nil
}

func (e *ReviewEngine) touch(ctx context.Context, repos repository.Repositories, identity domain.PublicIdentity, lifecycle domain.IdentityLifecycle, actor domain.ActorContext, now time.Time) error {
	identity.Lifecycle = lifecycle
	identity.LastModifiedBy = actor.Actor
	identity.LastModifiedAt = now
	_, err := repos.Identities().Update(ctx, identity)
	return err
}
