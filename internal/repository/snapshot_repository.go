package repository

import (
	"context"
	"fmt"

	"github.com/now-is/chicommons-maps/internal/db"
	"github.com/now-is/chicommons-maps/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// snapshotRepository implements SnapshotRepository interface
type snapshotRepository struct {
	db db.DBTX
}

// NewSnapshotRepository creates a new entry snapshot repository
func NewSnapshotRepository(exec db.DBTX) SnapshotRepository {
	return &snapshotRepository{db: exec}
}

const snapshotColumns = `id, lifecycle, public_identity_id, name, website, description, is_public, scope, tags, created_at`

// Create inserts the snapshot row without any relations
func (r *snapshotRepository) Create(ctx context.Context, snapshot domain.EntrySnapshot) (domain.EntrySnapshot, error) {
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO entry_snapshots (`+snapshotColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+snapshotColumns,
		snapshot.ID,
		snapshot.Lifecycle,
		snapshot.PublicIdentityID,
		snapshot.Name,
		snapshot.Website,
		snapshot.Description,
		snapshot.IsPublic,
		snapshot.Scope,
		snapshot.Tags,
		snapshot.CreatedAt,
	)
	created, err := scanSnapshot(row)
	if err != nil {
		return domain.EntrySnapshot{}, translateError("create entry snapshot", err)
	}
	return created, nil
}

// AttachVocabulary links existing vocabulary terms to the snapshot in order
func (r *snapshotRepository) AttachVocabulary(ctx context.Context, snapshotID uuid.UUID, terms []domain.VocabularyTerm) error {
	for i, term := range terms {
		if _, err := r.db.Exec(ctx,
			`INSERT INTO entry_snapshot_vocabulary (snapshot_id, term_id, position)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (snapshot_id, term_id) DO NOTHING`,
			snapshotID, term.ID, i,
		); err != nil {
			return translateError("attach vocabulary term", err)
		}
	}
	return nil
}

// InsertContactMethods creates contact methods owned directly by the snapshot
func (r *snapshotRepository) InsertContactMethods(ctx context.Context, snapshotID uuid.UUID, methods []domain.ContactMethod) ([]domain.ContactMethod, error) {
	return r.insertContactMethods(ctx, &snapshotID, nil, methods)
}

func (r *snapshotRepository) insertContactMethods(ctx context.Context, snapshotID, personID *uuid.UUID, methods []domain.ContactMethod) ([]domain.ContactMethod, error) {
	created := make([]domain.ContactMethod, 0, len(methods))
	for i, cm := range methods {
		cm.ID = uuid.New()
		if _, err := r.db.Exec(ctx,
			`INSERT INTO contact_methods (id, snapshot_id, person_id, type, is_public, email, phone, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			cm.ID, snapshotID, personID, cm.Type, cm.IsPublic, nullText(cm.Email), nullText(cm.Phone), i,
		); err != nil {
			return nil, translateError("create contact method", err)
		}
		created = append(created, cm)
	}
	return created, nil
}

// InsertPeople creates people and their contact methods
func (r *snapshotRepository) InsertPeople(ctx context.Context, snapshotID uuid.UUID, people []domain.Person) ([]domain.Person, error) {
	created := make([]domain.Person, 0, len(people))
	for i, person := range people {
		person.ID = uuid.New()
		if _, err := r.db.Exec(ctx,
			`INSERT INTO people (id, snapshot_id, first_name, last_name, is_public, position)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			person.ID, snapshotID, person.FirstName, person.LastName, person.IsPublic, i,
		); err != nil {
			return nil, translateError("create person", err)
		}
		personID := person.ID
		methods, err := r.insertContactMethods(ctx, nil, &personID, person.ContactMethods)
		if err != nil {
			return nil, err
		}
		person.ContactMethods = methods
		created = append(created, person)
	}
	return created, nil
}

// InsertAddressTags creates address tags, each with its own address row
func (r *snapshotRepository) InsertAddressTags(ctx context.Context, snapshotID uuid.UUID, tags []domain.AddressTag) ([]domain.AddressTag, error) {
	created := make([]domain.AddressTag, 0, len(tags))
	for i, tag := range tags {
		tag.ID = uuid.New()
		if _, err := r.db.Exec(ctx,
			`INSERT INTO address_tags (id, snapshot_id, is_public, position) VALUES ($1, $2, $3, $4)`,
			tag.ID, snapshotID, tag.IsPublic, i,
		); err != nil {
			return nil, translateError("create address tag", err)
		}
		addr := tag.Address
		addr.ID = uuid.New()
		if _, err := r.db.Exec(ctx,
			`INSERT INTO addresses (id, address_tag_id, street_address, city, county, state, postal_code, country, latitude, longitude)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			addr.ID, tag.ID, addr.StreetAddress, addr.City, nullText(addr.County), addr.State,
			addr.PostalCode, addr.Country, addr.Latitude, addr.Longitude,
		); err != nil {
			return nil, translateError("create address", err)
		}
		tag.Address = addr
		created = append(created, tag)
	}
	return created, nil
}

// GetByID retrieves a snapshot with all of its relations
func (r *snapshotRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.EntrySnapshot, error) {
	snapshots, err := r.GetByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return domain.EntrySnapshot{}, err
	}
	if len(snapshots) == 0 {
		return domain.EntrySnapshot{}, domain.NotFoundf("entry snapshot %s not found", id)
	}
	return snapshots[0], nil
}

// GetByIDs retrieves multiple snapshots with their relations. Unknown IDs are skipped.
func (r *snapshotRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.EntrySnapshot, error) {
	if len(ids) == 0 {
		return []domain.EntrySnapshot{}, nil
	}

	rows, err := r.db.Query(ctx, `SELECT `+snapshotColumns+` FROM entry_snapshots WHERE id = ANY($1) ORDER BY created_at, id`, ids)
	if err != nil {
		return nil, translateError("get entry snapshots", err)
	}
	snapshots, err := collectSnapshots(rows)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return snapshots, nil
	}

	index := make(map[uuid.UUID]*domain.EntrySnapshot, len(snapshots))
	found := make([]uuid.UUID, 0, len(snapshots))
	for i := range snapshots {
		index[snapshots[i].ID] = &snapshots[i]
		found = append(found, snapshots[i].ID)
	}

	if err := r.loadVocabulary(ctx, found, index); err != nil {
		return nil, err
	}
	if err := r.loadContactMethods(ctx, found, index); err != nil {
		return nil, err
	}
	if err := r.loadPeople(ctx, found, index); err != nil {
		return nil, err
	}
	if err := r.loadAddresses(ctx, found, index); err != nil {
		return nil, err
	}

	return snapshots, nil
}

func (r *snapshotRepository) loadVocabulary(ctx context.Context, ids []uuid.UUID, index map[uuid.UUID]*domain.EntrySnapshot) error {
	rows, err := r.db.Query(ctx,
		`SELECT v.snapshot_id, t.id, t.name
		 FROM entry_snapshot_vocabulary v
		 JOIN vocabulary_terms t ON t.id = v.term_id
		 WHERE v.snapshot_id = ANY($1)
		 ORDER BY v.snapshot_id, v.position`, ids)
	if err != nil {
		return translateError("load snapshot vocabulary", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			snapshotID uuid.UUID
			term       domain.VocabularyTerm
		)
		if err := rows.Scan(&snapshotID, &term.ID, &term.Name); err != nil {
			return fmt.Errorf("failed to scan vocabulary term: %w", err)
		}
		s := index[snapshotID]
		s.Vocabulary = append(s.Vocabulary, term)
	}
	return rows.Err()
}

func (r *snapshotRepository) loadContactMethods(ctx context.Context, ids []uuid.UUID, index map[uuid.UUID]*domain.EntrySnapshot) error {
	rows, err := r.db.Query(ctx,
		`SELECT snapshot_id, id, type, is_public, email, phone
		 FROM contact_methods
		 WHERE snapshot_id = ANY($1)
		 ORDER BY snapshot_id, position`, ids)
	if err != nil {
		return translateError("load contact methods", err)
	}
	defer rows.Close()

	for rows.Next() {
		var snapshotID uuid.UUID
		cm, err := scanContactMethod(rows, &snapshotID)
		if err != nil {
			return err
		}
		s := index[snapshotID]
		s.ContactMethods = append(s.ContactMethods, cm)
	}
	return rows.Err()
}

func (r *snapshotRepository) loadPeople(ctx context.Context, ids []uuid.UUID, index map[uuid.UUID]*domain.EntrySnapshot) error {
	rows, err := r.db.Query(ctx,
		`SELECT snapshot_id, id, first_name, last_name, is_public
		 FROM people
		 WHERE snapshot_id = ANY($1)
		 ORDER BY snapshot_id, position`, ids)
	if err != nil {
		return translateError("load people", err)
	}

	type personRef struct {
		snapshotID uuid.UUID
		position   int
	}
	refs := map[uuid.UUID]personRef{}
	personIDs := []uuid.UUID{}

	for rows.Next() {
		var (
			snapshotID uuid.UUID
			person     domain.Person
		)
		if err := rows.Scan(&snapshotID, &person.ID, &person.FirstName, &person.LastName, &person.IsPublic); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan person: %w", err)
		}
		person.ContactMethods = []domain.ContactMethod{}
		s := index[snapshotID]
		refs[person.ID] = personRef{snapshotID: snapshotID, position: len(s.People)}
		personIDs = append(personIDs, person.ID)
		s.People = append(s.People, person)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate people: %w", err)
	}
	if len(personIDs) == 0 {
		return nil
	}

	cmRows, err := r.db.Query(ctx,
		`SELECT person_id, id, type, is_public, email, phone
		 FROM contact_methods
		 WHERE person_id = ANY($1)
		 ORDER BY person_id, position`, personIDs)
	if err != nil {
		return translateError("load person contact methods", err)
	}
	defer cmRows.Close()

	for cmRows.Next() {
		var personID uuid.UUID
		cm, err := scanContactMethod(cmRows, &personID)
		if err != nil {
			return err
		}
		ref := refs[personID]
		p := &index[ref.snapshotID].People[ref.position]
		p.ContactMethods = append(p.ContactMethods, cm)
	}
	return cmRows.Err()
}

func (r *snapshotRepository) loadAddresses(ctx context.Context, ids []uuid.UUID, index map[uuid.UUID]*domain.EntrySnapshot) error {
	rows, err := r.db.Query(ctx,
		`SELECT t.snapshot_id, t.id, t.is_public,
		        a.id, a.street_address, a.city, a.county, a.state, a.postal_code, a.country, a.latitude, a.longitude
		 FROM address_tags t
		 JOIN addresses a ON a.address_tag_id = t.id
		 WHERE t.snapshot_id = ANY($1)
		 ORDER BY t.snapshot_id, t.position`, ids)
	if err != nil {
		return translateError("load addresses", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			snapshotID uuid.UUID
			tag        domain.AddressTag
			county     pgtype.Text
		)
		if err := rows.Scan(
			&snapshotID, &tag.ID, &tag.IsPublic,
			&tag.Address.ID, &tag.Address.StreetAddress, &tag.Address.City, &county,
			&tag.Address.State, &tag.Address.PostalCode, &tag.Address.Country,
			&tag.Address.Latitude, &tag.Address.Longitude,
		); err != nil {
			return fmt.Errorf("failed to scan address: %w", err)
		}
		tag.Address.County = county.String
		s := index[snapshotID]
		s.Addresses = append(s.Addresses, tag)
	}
	return rows.Err()
}

// ListActiveByIdentity returns the ACTIVE snapshot headers of an identity
func (r *snapshotRepository) ListActiveByIdentity(ctx context.Context, identityID uuid.UUID, lock bool) ([]domain.EntrySnapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM entry_snapshots
		WHERE public_identity_id = $1 AND lifecycle = $2
		ORDER BY created_at, id`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := r.db.Query(ctx, query, identityID, domain.SnapshotActive)
	if err != nil {
		return nil, translateError("list active snapshots", err)
	}
	return collectSnapshots(rows)
}

// SetLifecycle moves a snapshot to a new lifecycle, optionally linking it to an identity
func (r *snapshotRepository) SetLifecycle(ctx context.Context, id uuid.UUID, lifecycle domain.SnapshotLifecycle, identityID *uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE entry_snapshots
		 SET lifecycle = $2, public_identity_id = COALESCE($3, public_identity_id)
		 WHERE id = $1`,
		id, lifecycle, identityID,
	)
	if err != nil {
		return translateError("set snapshot lifecycle", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("entry snapshot %s not found", id)
	}
	return nil
}

// Delete removes a snapshot; owned rows follow by cascade
func (r *snapshotRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM entry_snapshots WHERE id = $1`, id)
	if err != nil {
		return translateError("delete entry snapshot", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("entry snapshot %s not found", id)
	}
	return nil
}

func scanSnapshot(row pgx.Row) (domain.EntrySnapshot, error) {
	var (
		snapshot   domain.EntrySnapshot
		identityID pgtype.UUID
	)
	if err := row.Scan(
		&snapshot.ID,
		&snapshot.Lifecycle,
		&identityID,
		&snapshot.Name,
		&snapshot.Website,
		&snapshot.Description,
		&snapshot.IsPublic,
		&snapshot.Scope,
		&snapshot.Tags,
		&snapshot.CreatedAt,
	); err != nil {
		return domain.EntrySnapshot{}, err
	}
	if identityID.Valid {
		id := uuid.UUID(identityID.Bytes)
		snapshot.PublicIdentityID = &id
	}
	snapshot.Vocabulary = []domain.VocabularyTerm{}
	snapshot.ContactMethods = []domain.ContactMethod{}
	snapshot.People = []domain.Person{}
	snapshot.Addresses = []domain.AddressTag{}
	return snapshot, nil
}

func collectSnapshots(rows pgx.Rows) ([]domain.EntrySnapshot, error) {
	defer rows.Close()

	snapshots := []domain.EntrySnapshot{}
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entry snapshots: %w", err)
	}
	return snapshots, nil
}

func scanContactMethod(rows pgx.Rows, ownerID *uuid.UUID) (domain.ContactMethod, error) {
	var (
		cm    domain.ContactMethod
		email pgtype.Text
		phone pgtype.Text
	)
	if err := rows.Scan(ownerID, &cm.ID, &cm.Type, &cm.IsPublic, &email, &phone); err != nil {
		return domain.ContactMethod{}, fmt.Errorf("failed to scan contact method: %w", err)
	}
	cm.Email = email.String
	cm.Phone = phone.String
	return cm, nil
}

func nullText(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}
