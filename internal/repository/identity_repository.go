package repository

import (
	"context"

	"github.com/now-is/chicommons-maps/internal/db"
	"github.com/now-is/chicommons-maps/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// identityRepository implements IdentityRepository interface
type identityRepository struct {
	db db.DBTX
}

// NewIdentityRepository creates a new public identity repository
func NewIdentityRepository(exec db.DBTX) IdentityRepository {
	return &identityRepository{db: exec}
}

const identityColumns = `id, lifecycle, created_by, created_at, last_modified_by, last_modified_at`

// Create inserts a new public identity
func (r *identityRepository) Create(ctx context.Context, identity domain.PublicIdentity) (domain.PublicIdentity, error) {
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO public_identities (`+identityColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+identityColumns,
		identity.ID,
		identity.Lifecycle,
		identity.CreatedBy,
		identity.CreatedAt,
		identity.LastModifiedBy,
		identity.LastModifiedAt,
	)
	created, err := scanIdentity(row)
	if err != nil {
		return domain.PublicIdentity{}, translateError("create public identity", err)
	}
	return created, nil
}

// GetByID retrieves a public identity by ID
func (r *identityRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.PublicIdentity, error) {
	row := r.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM public_identities WHERE id = $1`, id)
	identity, err := scanIdentity(row)
	if err != nil {
		return domain.PublicIdentity{}, translateError("get public identity", err)
	}
	return identity, nil
}

// GetForUpdate retrieves a public identity and holds its row lock
func (r *identityRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.PublicIdentity, error) {
	row := r.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM public_identities WHERE id = $1 FOR UPDATE`, id)
	identity, err := scanIdentity(row)
	if err != nil {
		return domain.PublicIdentity{}, translateError("lock public identity", err)
	}
	return identity, nil
}

// Update persists lifecycle and bookkeeping changes
func (r *identityRepository) Update(ctx context.Context, identity domain.PublicIdentity) (domain.PublicIdentity, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE public_identities
		 SET lifecycle = $2, last_modified_by = $3, last_modified_at = $4
		 WHERE id = $1
		 RETURNING `+identityColumns,
		identity.ID,
		identity.Lifecycle,
		identity.LastModifiedBy,
		identity.LastModifiedAt,
	)
	updated, err := scanIdentity(row)
	if err != nil {
		return domain.PublicIdentity{}, translateError("update public identity", err)
	}
	return updated, nil
}

func scanIdentity(row pgx.Row) (domain.PublicIdentity, error) {
	var identity domain.PublicIdentity
	err := row.Scan(
		&identity.ID,
		&identity.Lifecycle,
		&identity.CreatedBy,
		&identity.CreatedAt,
		&identity.LastModifiedBy,
		&identity.LastModifiedAt,
	)
	return identity, err
}
