package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/now-is/chicommons-maps/internal/domain"
	"github.com/now-is/chicommons-maps/internal/metrics"
	"github.com/now-is/chicommons-maps/internal/repository"

	"go.uber.org/zap"
)

// IntakeService turns submissions into pending proposals.
type IntakeService struct {
	store    repository.Store
	resolver AddressResolver
	lookup   PublicationLookup
	opts     Options
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewIntakeService creates an intake service. resolver may be nil to skip
// address enrichment; m may be nil.
func NewIntakeService(store repository.Store, resolver AddressResolver, opts Options, m *metrics.Metrics, logger *zap.Logger) *IntakeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntakeService{
		store:    store,
		resolver: resolver,
		lookup:   NewPublicationLookup(logger),
		opts:     opts,
		metrics:  m,
		log:      logger,
	}
}

// Submit validates sub, enriches its addresses and records a PENDING proposal
// together with its draft snapshot in one transaction.
func (s *IntakeService) Submit(ctx context.Context, actor domain.ActorContext, sub domain.Submission) (domain.Proposal, error) {
	if strings.TrimSpace(actor.Actor) == "" {
		return domain.Proposal{}, domain.Validationf("an actor is required to submit a proposal")
	}
	if sub == nil {
		return domain.Proposal{}, domain.Validationf("incorrect operation type")
	}

	summary, err := domain.ChangeSummary(sub)
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("failed to encode change summary: %w", err)
	}

	var proposal domain.Proposal
	switch sub := sub.(type) {
	case domain.CreateSubmission:
		body, err := s.prepareBody(ctx, sub.Body)
		if err != nil {
			return domain.Proposal{}, err
		}
		err = s.store.WithinTx(ctx, func(repos repository.Repositories) error {
			now := actor.Now()
			draft, err := Persist(ctx, repos, Merge(domain.EntrySnapshot{}, body), now)
			if err != nil {
				return err
			}
			proposal, err = repos.Proposals().Create(ctx, s.pending(actor, domain.OperationCreate, summary, now, &draft, nil, nil))
			return err
		})
		if err != nil {
			return domain.Proposal{}, err
		}

	case domain.UpdateSubmission:
		body, err := s.prepareBody(ctx, sub.Body)
		if err != nil {
			return domain.Proposal{}, err
		}
		err = s.store.WithinTx(ctx, func(repos repository.Repositories) error {
			identity, err := repos.Identities().GetByID(ctx, sub.PublicIdentityID)
			if err != nil {
				return err
			}
			active, err := s.lookup.ActiveSnapshotFor(ctx, repos.Snapshots(), identity.ID, false)
			if err != nil {
				return err
			}
			source, err := repos.Snapshots().GetByID(ctx, active.ID)
			if err != nil {
				return err
			}
			now := actor.Now()
			draft, err := Persist(ctx, repos, Merge(source, body), now)
			if err != nil {
				return err
			}
			proposal, err = repos.Proposals().Create(ctx, s.pending(actor, domain.OperationUpdate, summary, now, &draft, &identity, &source))
			return err
		})
		if err != nil {
			return domain.Proposal{}, err
		}

	case domain.DeleteSubmission:
		err = s.store.WithinTx(ctx, func(repos repository.Repositories) error {
			identity, err := repos.Identities().GetByID(ctx, sub.PublicIdentityID)
			if err != nil {
				return err
			}
			if identity.Lifecycle != domain.IdentityActive {
				return domain.NotFoundf("entry %s is not active", identity.ID)
			}
			active, err := s.lookup.ActiveSnapshotFor(ctx, repos.Snapshots(), identity.ID, false)
			if err != nil {
				return err
			}
			proposal, err = repos.Proposals().Create(ctx, s.pending(actor, domain.OperationDelete, summary, actor.Now(), nil, &identity, &active))
			return err
		})
		if err != nil {
			return domain.Proposal{}, err
		}

	default:
		return domain.Proposal{}, domain.Validationf("incorrect operation type")
	}

	s.metrics.IncSubmitted(string(proposal.Operation))
	s.log.Info("proposal submitted",
		zap.String("proposal_id", proposal.ID.String()),
		zap.String("operation", string(proposal.Operation)),
		zap.String("requested_by", proposal.RequestedBy),
	)
	return proposal, nil
}

func (s *IntakeService) prepareBody(ctx context.Context, body domain.EntryBody) (domain.EntryBody, error) {
	if err := body.Validate(); err != nil {
		return domain.EntryBody{}, err
	}
	return s.enrichAddresses(ctx, body)
}

func (s *IntakeService) pending(actor domain.ActorContext, op domain.Operation, summary []byte, now time.Time, draft *domain.EntrySnapshot, identity *domain.PublicIdentity, base *domain.EntrySnapshot) domain.Proposal {
	p := domain.Proposal{
		Status:        domain.ProposalPending,
		Operation:     op,
		ChangeSummary: summary,
		RequestedBy:   actor.Actor,
		RequestedAt:   now,
	}
	if draft != nil {
		id := draft.ID
		p.SnapshotID = &id
	}
	if identity != nil {
		id := identity.ID
		p.PublicIdentityID = &id
	}
	if base != nil {
		id := base.ID
		p.BaseSnapshotID = &id
	}
	return p
}
