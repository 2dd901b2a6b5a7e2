package moderation

import (
	"context"

	"github.com/now-is/chicommons-maps/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActiveSnapshotLister is the part of the snapshot repository the lookup needs.
type ActiveSnapshotLister interface {
	ListActiveByIdentity(ctx context.Context, identityID uuid.UUID, lock bool) ([]domain.EntrySnapshot, error)
}

// PublicationLookup finds the single published version of an entry.
type PublicationLookup struct {
	log *zap.Logger
}

// NewPublicationLookup creates a lookup that reports invariant breaks to logger.
func NewPublicationLookup(logger *zap.Logger) PublicationLookup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return PublicationLookup{log: logger}
}

// ActiveSnapshotFor returns the ACTIVE snapshot header of identityID. It fails
// with NotFound when there is none and Conflict when there are several.
func (l PublicationLookup) ActiveSnapshotFor(ctx context.Context, lister ActiveSnapshotLister, identityID uuid.UUID, lock bool) (domain.EntrySnapshot, error) {
	active, err := lister.ListActiveByIdentity(ctx, identityID, lock)
	if err != nil {
		return domain.EntrySnapshot{}, err
	}
	switch len(active) {
	case 0:
		return domain.EntrySnapshot{}, domain.NotFoundf("entry %s has no active version", identityID)
	case 1:
		return active[0], nil
	default:
		if l.log != nil {
			l.log.Error("multiple active versions",
				zap.String("public_identity_id", identityID.String()),
				zap.Int("count", len(active)),
			)
		}
		return domain.EntrySnapshot{}, domain.Conflictf("entry %s: invariant violated: multiple active versions", identityID)
	}
}
