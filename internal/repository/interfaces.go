package repository

import (
	"context"

	"github.com/now-is/chicommons-maps/internal/domain"

	"github.com/google/uuid"
)

// IdentityRepository defines the interface for public identity operations
type IdentityRepository interface {
	Create(ctx context.Context, identity domain.PublicIdentity) (domain.PublicIdentity, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.PublicIdentity, error)
	// GetForUpdate reads the identity and locks it until the transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (domain.PublicIdentity, error)
	Update(ctx context.Context, identity domain.PublicIdentity) (domain.PublicIdentity, error)
}

// SnapshotRepository defines the interface for entry snapshot operations.
// Owned rows are written once, when the draft is built; afterwards only the
// lifecycle of a snapshot changes.
type SnapshotRepository interface {
	Create(ctx context.Context, snapshot domain.EntrySnapshot) (domain.EntrySnapshot, error)
	AttachVocabulary(ctx context.Context, snapshotID uuid.UUID, terms []domain.VocabularyTerm) error
	InsertContactMethods(ctx context.Context, snapshotID uuid.UUID, methods []domain.ContactMethod) ([]domain.ContactMethod, error)
	InsertPeople(ctx context.Context, snapshotID uuid.UUID, people []domain.Person) ([]domain.Person, error)
	InsertAddressTags(ctx context.Context, snapshotID uuid.UUID, tags []domain.AddressTag) ([]domain.AddressTag, error)

	// GetByID returns the snapshot with every relation loaded.
	GetByID(ctx context.Context, id uuid.UUID) (domain.EntrySnapshot, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.EntrySnapshot, error)
	// ListActiveByIdentity returns snapshot headers (no relations) with
	// lifecycle ACTIVE for the identity, row-locked when lock is set.
	ListActiveByIdentity(ctx context.Context, identityID uuid.UUID, lock bool) ([]domain.EntrySnapshot, error)
	SetLifecycle(ctx context.Context, id uuid.UUID, lifecycle domain.SnapshotLifecycle, identityID *uuid.UUID) error
	// Delete removes a snapshot and, by cascade, every row it owns.
	Delete(ctx context.Context, id uuid.UUID) error
}

// VocabularyRepository resolves shared vocabulary terms.
type VocabularyRepository interface {
	// Upsert returns the term with exactly this name, creating it if needed.
	Upsert(ctx context.Context, name string) (domain.VocabularyTerm, error)
	List(ctx context.Context) ([]domain.VocabularyTerm, error)
}

// ProposalRepository defines the interface for proposal operations
type ProposalRepository interface {
	Create(ctx context.Context, proposal domain.Proposal) (domain.Proposal, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Proposal, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Proposal, error)
	Update(ctx context.Context, proposal domain.Proposal) (domain.Proposal, error)
	ListByStatus(ctx context.Context, status domain.ProposalStatus, limit int, offset int) ([]domain.Proposal, error)
}

// AddressCacheRepository persists raw geocoder responses keyed by normalized query.
type AddressCacheRepository interface {
	Get(ctx context.Context, query string) (domain.AddressCacheEntry, error)
	Put(ctx context.Context, entry domain.AddressCacheEntry) error
}

// Repositories groups the repositories that share one unit of work.
type Repositories interface {
	Identities() IdentityRepository
	Snapshots() SnapshotRepository
	Vocabulary() VocabularyRepository
	Proposals() ProposalRepository
}

// Store hands out repositories, either bound to a transaction or not.
type Store interface {
	// WithinTx runs fn in one transaction, committing only if fn returns nil.
	WithinTx(ctx context.Context, fn func(Repositories) error) error
	// Repos returns repositories outside of any transaction, for reads.
	Repos() Repositories
	AddressCache() AddressCacheRepository
}
