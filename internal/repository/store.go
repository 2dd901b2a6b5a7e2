package repository

import (
	"context"

	"github.com/now-is/chicommons-maps/internal/db"

	"github.com/jackc/pgx/v5"
)

// pgRepositories binds every repository to one executor.
type pgRepositories struct {
	identities IdentityRepository
	snapshots  SnapshotRepository
	vocabulary VocabularyRepository
	proposals  ProposalRepository
}

func newRepositories(exec db.DBTX) *pgRepositories {
	return &pgRepositories{
		identities: NewIdentityRepository(exec),
		snapshots:  NewSnapshotRepository(exec),
		vocabulary: NewVocabularyRepository(exec),
		proposals:  NewProposalRepository(exec),
	}
}

func (r *pgRepositories) Identities() IdentityRepository   { return r.identities }
func (r *pgRepositories) Snapshots() SnapshotRepository    { return r.snapshots }
func (r *pgRepositories) Vocabulary() VocabularyRepository { return r.vocabulary }
func (r *pgRepositories) Proposals() ProposalRepository    { return r.proposals }

// PostgresStore implements Store on top of a pgx pool.
type PostgresStore struct {
	conn  *db.Connection
	repos *pgRepositories
	cache AddressCacheRepository
}

// NewPostgresStore creates a store backed by conn
func NewPostgresStore(conn *db.Connection) *PostgresStore {
	return &PostgresStore{
		conn:  conn,
		repos: newRepositories(conn.Pool),
		cache: NewAddressCacheRepository(conn.Pool),
	}
}

// WithinTx runs fn with repositories bound to a single transaction
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Repositories) error) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(newRepositories(tx))
	})
}

// Repos returns pool-backed repositories
func (s *PostgresStore) Repos() Repositories {
	return s.repos
}

// AddressCache returns the geocoder cache repository
func (s *PostgresStore) AddressCache() AddressCacheRepository {
	return s.cache
}

var _ Store = (*PostgresStore)(nil)
