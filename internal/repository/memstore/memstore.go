// Package memstore provides an in-memory transactional implementation of
// repository.Store. A transaction works on a private copy of the state which
// replaces the committed state only when the callback succeeds.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/now-is/chicommons-maps/internal/domain"
	"github.com/now-is/chicommons-maps/internal/repository"

	"github.com/google/uuid"
)

type snapshotRow struct {
	header         domain.EntrySnapshot
	vocabulary     []uuid.UUID
	contactMethods []domain.ContactMethod
	people         []domain.Person
	addresses      []domain.AddressTag
}

type memoryState struct {
	identities  map[uuid.UUID]domain.PublicIdentity
	snapshots   map[uuid.UUID]snapshotRow
	terms       map[uuid.UUID]domain.VocabularyTerm
	termsByName map[string]uuid.UUID
	proposals   map[uuid.UUID]domain.Proposal
	cache       map[string]domain.AddressCacheEntry
}

func newMemoryState() *memoryState {
	return &memoryState{
		identities:  map[uuid.UUID]domain.PublicIdentity{},
		snapshots:   map[uuid.UUID]snapshotRow{},
		terms:       map[uuid.UUID]domain.VocabularyTerm{},
		termsByName: map[string]uuid.UUID{},
		proposals:   map[uuid.UUID]domain.Proposal{},
		cache:       map[string]domain.AddressCacheEntry{},
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		identities:  make(map[uuid.UUID]domain.PublicIdentity, len(s.identities)),
		snapshots:   make(map[uuid.UUID]snapshotRow, len(s.snapshots)),
		terms:       make(map[uuid.UUID]domain.VocabularyTerm, len(s.terms)),
		termsByName: make(map[string]uuid.UUID, len(s.termsByName)),
		proposals:   make(map[uuid.UUID]domain.Proposal, len(s.proposals)),
		cache:       make(map[string]domain.AddressCacheEntry, len(s.cache)),
	}
	for k, v := range s.identities {
		c.identities[k] = v
	}
	for k, v := range s.snapshots {
		c.snapshots[k] = cloneSnapshotRow(v)
	}
	for k, v := range s.terms {
		c.terms[k] = v
	}
	for k, v := range s.termsByName {
		c.termsByName[k] = v
	}
	for k, v := range s.proposals {
		c.proposals[k] = cloneProposal(v)
	}
	for k, v := range s.cache {
		v.Response = slices.Clone(v.Response)
		c.cache[k] = v
	}
	return c
}

// Store is an in-memory repository.Store. Transactions are serialized.
type Store struct {
	mu    sync.Mutex
	state *memoryState
	now   func() time.Time
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		state: newMemoryState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithinTx runs fn against a copy of the state and commits it if fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(&repos{tx: working, now: s.now}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// Repos returns repositories that operate on committed state, one call at a time.
func (s *Store) Repos() repository.Repositories {
	return &repos{store: s, now: s.now}
}

// AddressCache returns the cache repository.
func (s *Store) AddressCache() repository.AddressCacheRepository {
	return &addressCache{repos: &repos{store: s, now: s.now}}
}

// Stats counts stored rows.
type Stats struct {
	Identities          map[domain.IdentityLifecycle]int
	Snapshots           map[domain.SnapshotLifecycle]int
	VocabularyTerms     int
	ContactMethods      int
	People              int
	AddressTags         int
	Addresses           int
	Proposals           map[domain.ProposalStatus]int
	CachedAddressLookup int
}

// Stats returns row counts of the committed state.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Identities:          map[domain.IdentityLifecycle]int{},
		Snapshots:           map[domain.SnapshotLifecycle]int{},
		Proposals:           map[domain.ProposalStatus]int{},
		VocabularyTerms:     len(s.state.terms),
		CachedAddressLookup: len(s.state.cache),
	}
	for _, identity := range s.state.identities {
		st.Identities[identity.Lifecycle]++
	}
	for _, row := range s.state.snapshots {
		st.Snapshots[row.header.Lifecycle]++
		st.ContactMethods += len(row.contactMethods)
		st.People += len(row.people)
		for _, p := range row.people {
			st.ContactMethods += len(p.ContactMethods)
		}
		st.AddressTags += len(row.addresses)
		st.Addresses += len(row.addresses)
	}
	for _, p := range s.state.proposals {
		st.Proposals[p.Status]++
	}
	return st
}

// repos binds repositories either to a transaction's working state (tx) or to
// the store's committed state, which is locked per call.
type repos struct {
	store *Store
	tx    *memoryState
	now   func() time.Time
}

func (r *repos) with(fn func(st *memoryState) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.state)
}

func (r *repos) Identities() repository.IdentityRepository   { return &identities{r} }
func (r *repos) Snapshots() repository.SnapshotRepository    { return &snapshots{r} }
func (r *repos) Vocabulary() repository.VocabularyRepository { return &vocabulary{r} }
func (r *repos) Proposals() repository.ProposalRepository    { return &proposals{r} }

type identities struct{ *repos }

func (r *identities) Create(_ context.Context, identity domain.PublicIdentity) (domain.PublicIdentity, error) {
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	err := r.with(func(st *memoryState) error {
		if _, exists := st.identities[identity.ID]; exists {
			return domain.Conflictf("public identity %s already exists", identity.ID)
		}
		st.identities[identity.ID] = identity
		return nil
	})
	return identity, err
}

func (r *identities) GetByID(_ context.Context, id uuid.UUID) (domain.PublicIdentity, error) {
	var identity domain.PublicIdentity
	err := r.with(func(st *memoryState) error {
		found, ok := st.identities[id]
		if !ok {
			return domain.NotFoundf("public identity %s not found", id)
		}
		identity = found
		return nil
	})
	return identity, err
}

// GetForUpdate needs no extra locking: transactions already run one at a time.
func (r *identities) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.PublicIdentity, error) {
	return r.GetByID(ctx, id)
}

func (r *identities) Update(_ context.Context, identity domain.PublicIdentity) (domain.PublicIdentity, error) {
	var updated domain.PublicIdentity
	err := r.with(func(st *memoryState) error {
		current, ok := st.identities[identity.ID]
		if !ok {
			return domain.NotFoundf("public identity %s not found", identity.ID)
		}
		current.Lifecycle = identity.Lifecycle
		current.LastModifiedBy = identity.LastModifiedBy
		current.LastModifiedAt = identity.LastModifiedAt
		st.identities[identity.ID] = current
		updated = current
		return nil
	})
	return updated, err
}

type snapshots struct{ *repos }

func (r *snapshots) Create(_ context.Context, snapshot domain.EntrySnapshot) (domain.EntrySnapshot, error) {
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}
	header := headerOf(snapshot)
	err := r.with(func(st *memoryState) error {
		if _, exists := st.snapshots[header.ID]; exists {
			return domain.Conflictf("entry snapshot %s already exists", header.ID)
		}
		if header.Lifecycle == domain.SnapshotActive {
			if err := checkSingleActive(st, header.ID, header.PublicIdentityID); err != nil {
				return err
			}
		}
		st.snapshots[header.ID] = snapshotRow{header: header}
		return nil
	})
	return header, err
}

func (r *snapshots) AttachVocabulary(_ context.Context, snapshotID uuid.UUID, terms []domain.VocabularyTerm) error {
	return r.with(func(st *memoryState) error {
		row, ok := st.snapshots[snapshotID]
		if !ok {
			return domain.NotFoundf("entry snapshot %s not found", snapshotID)
		}
		for _, term := range terms {
			if _, ok := st.terms[term.ID]; !ok {
				return domain.NotFoundf("vocabulary term %s not found", term.ID)
			}
			if !slices.Contains(row.vocabulary, term.ID) {
				row.vocabulary = append(row.vocabulary, term.ID)
			}
		}
		st.snapshots[snapshotID] = row
		return nil
	})
}

func (r *snapshots) InsertContactMethods(_ context.Context, snapshotID uuid.UUID, methods []domain.ContactMethod) ([]domain.ContactMethod, error) {
	created := freshContactMethods(methods)
	err := r.with(func(st *memoryState) error {
		row, ok := st.snapshots[snapshotID]
		if !ok {
			return domain.NotFoundf("entry snapshot %s not found", snapshotID)
		}
		row.contactMethods = append(row.contactMethods, created...)
		st.snapshots[snapshotID] = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(created), nil
}

func (r *snapshots) InsertPeople(_ context.Context, snapshotID uuid.UUID, people []domain.Person) ([]domain.Person, error) {
	created := make([]domain.Person, 0, len(people))
	for _, p := range people {
		p.ID = uuid.New()
		p.ContactMethods = freshContactMethods(p.ContactMethods)
		created = append(created, p)
	}
	err := r.with(func(st *memoryState) error {
		row, ok := st.snapshots[snapshotID]
		if !ok {
			return domain.NotFoundf("entry snapshot %s not found", snapshotID)
		}
		row.people = append(row.people, clonePeople(created)...)
		st.snapshots[snapshotID] = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *snapshots) InsertAddressTags(_ context.Context, snapshotID uuid.UUID, tags []domain.AddressTag) ([]domain.AddressTag, error) {
	created := make([]domain.AddressTag, 0, len(tags))
	for _, tag := range tags {
		tag.ID = uuid.New()
		tag.Address = cloneAddress(tag.Address)
		tag.Address.ID = uuid.New()
		created = append(created, tag)
	}
	err := r.with(func(st *memoryState) error {
		row, ok := st.snapshots[snapshotID]
		if !ok {
			return domain.NotFoundf("entry snapshot %s not found", snapshotID)
		}
		row.addresses = append(row.addresses, cloneAddressTags(created)...)
		st.snapshots[snapshotID] = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *snapshots) GetByID(ctx context.Context, id uuid.UUID) (domain.EntrySnapshot, error) {
	found, err := r.GetByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return domain.EntrySnapshot{}, err
	}
	if len(found) == 0 {
		return domain.EntrySnapshot{}, domain.NotFoundf("entry snapshot %s not found", id)
	}
	return found[0], nil
}

func (r *snapshots) GetByIDs(_ context.Context, ids []uuid.UUID) ([]domain.EntrySnapshot, error) {
	result := []domain.EntrySnapshot{}
	err := r.with(func(st *memoryState) error {
		seen := map[uuid.UUID]bool{}
		for _, id := range ids {
			row, ok := st.snapshots[id]
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			result = append(result, hydrate(st, row))
		}
		return nil
	})
	sortSnapshots(result)
	return result, err
}

func (r *snapshots) ListActiveByIdentity(_ context.Context, identityID uuid.UUID, _ bool) ([]domain.EntrySnapshot, error) {
	result := []domain.EntrySnapshot{}
	err := r.with(func(st *memoryState) error {
		for _, row := range st.snapshots {
			h := row.header
			if h.Lifecycle == domain.SnapshotActive && h.PublicIdentityID != nil && *h.PublicIdentityID == identityID {
				result = append(result, headerOf(h))
			}
		}
		return nil
	})
	sortSnapshots(result)
	return result, err
}

func (r *snapshots) SetLifecycle(_ context.Context, id uuid.UUID, lifecycle domain.SnapshotLifecycle, identityID *uuid.UUID) error {
	return r.with(func(st *memoryState) error {
		row, ok := st.snapshots[id]
		if !ok {
			return domain.NotFoundf("entry snapshot %s not found", id)
		}
		if identityID != nil {
			linked := *identityID
			row.header.PublicIdentityID = &linked
		}
		if lifecycle == domain.SnapshotActive {
			if err := checkSingleActive(st, id, row.header.PublicIdentityID); err != nil {
				return err
			}
		}
		row.header.Lifecycle = lifecycle
		st.snapshots[id] = row
		return nil
	})
}

func (r *snapshots) Delete(_ context.Context, id uuid.UUID) error {
	return r.with(func(st *memoryState) error {
		if _, ok := st.snapshots[id]; !ok {
			return domain.NotFoundf("entry snapshot %s not found", id)
		}
		delete(st.snapshots, id)
		for pid, p := range st.proposals {
			if p.SnapshotID != nil && *p.SnapshotID == id {
				p.SnapshotID = nil
				st.proposals[pid] = p
			}
		}
		return nil
	})
}

// checkSingleActive mirrors the partial unique index on active snapshots.
func checkSingleActive(st *memoryState, id uuid.UUID, identityID *uuid.UUID) error {
	if identityID == nil {
		return nil
	}
	for otherID, other := range st.snapshots {
		h := other.header
		if otherID != id && h.Lifecycle == domain.SnapshotActive && h.PublicIdentityID != nil && *h.PublicIdentityID == *identityID {
			return domain.Conflictf("set snapshot lifecycle: invariant violated: multiple active versions")
		}
	}
	return nil
}

type vocabulary struct{ *repos }

func (r *vocabulary) Upsert(_ context.Context, name string) (domain.VocabularyTerm, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.VocabularyTerm{}, domain.Validationf("vocabulary term name is required")
	}
	var term domain.VocabularyTerm
	err := r.with(func(st *memoryState) error {
		if id, ok := st.termsByName[name]; ok {
			term = st.terms[id]
			return nil
		}
		term = domain.VocabularyTerm{ID: uuid.New(), Name: name}
		st.terms[term.ID] = term
		st.termsByName[name] = term.ID
		return nil
	})
	return term, err
}

func (r *vocabulary) List(_ context.Context) ([]domain.VocabularyTerm, error) {
	terms := []domain.VocabularyTerm{}
	err := r.with(func(st *memoryState) error {
		for _, term := range st.terms {
			terms = append(terms, term)
		}
		return nil
	})
	slices.SortFunc(terms, func(a, b domain.VocabularyTerm) int { return strings.Compare(a.Name, b.Name) })
	return terms, err
}

type proposals struct{ *repos }

func (r *proposals) Create(_ context.Context, proposal domain.Proposal) (domain.Proposal, error) {
	if proposal.ID == uuid.Nil {
		proposal.ID = uuid.New()
	}
	err := r.with(func(st *memoryState) error {
		if _, exists := st.proposals[proposal.ID]; exists {
			return domain.Conflictf("proposal %s already exists", proposal.ID)
		}
		st.proposals[proposal.ID] = cloneProposal(proposal)
		return nil
	})
	return proposal, err
}

func (r *proposals) GetByID(_ context.Context, id uuid.UUID) (domain.Proposal, error) {
	var proposal domain.Proposal
	err := r.with(func(st *memoryState) error {
		found, ok := st.proposals[id]
		if !ok {
			return domain.NotFoundf("proposal %s not found", id)
		}
		proposal = cloneProposal(found)
		return nil
	})
	return proposal, err
}

func (r *proposals) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Proposal, error) {
	return r.GetByID(ctx, id)
}

func (r *proposals) Update(_ context.Context, proposal domain.Proposal) (domain.Proposal, error) {
	var updated domain.Proposal
	err := r.with(func(st *memoryState) error {
		current, ok := st.proposals[proposal.ID]
		if !ok {
			return domain.NotFoundf("proposal %s not found", proposal.ID)
		}
		current.Status = proposal.Status
		current.ReviewNotes = proposal.ReviewNotes
		current.ReviewedBy = proposal.ReviewedBy
		current.ReviewedAt = proposal.ReviewedAt
		current.PublicIdentityID = proposal.PublicIdentityID
		current.SnapshotID = proposal.SnapshotID
		current = cloneProposal(current)
		st.proposals[proposal.ID] = current
		updated = cloneProposal(current)
		return nil
	})
	return updated, err
}

func (r *proposals) ListByStatus(_ context.Context, status domain.ProposalStatus, limit int, offset int) ([]domain.Proposal, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	matched := []domain.Proposal{}
	err := r.with(func(st *memoryState) error {
		for _, p := range st.proposals {
			if p.Status == status {
				matched = append(matched, cloneProposal(p))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(matched, func(a, b domain.Proposal) int {
		if c := a.RequestedAt.Compare(b.RequestedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	if offset >= len(matched) {
		return []domain.Proposal{}, nil
	}
	end := min(offset+limit, len(matched))
	return matched[offset:end], nil
}

type addressCache struct{ *repos }

func (r *addressCache) Get(_ context.Context, query string) (domain.AddressCacheEntry, error) {
	var entry domain.AddressCacheEntry
	err := r.with(func(st *memoryState) error {
		found, ok := st.cache[query]
		if !ok {
			return domain.NotFoundf("no cached address for %q", query)
		}
		entry = found
		entry.Response = slices.Clone(found.Response)
		return nil
	})
	return entry, err
}

func (r *addressCache) Put(_ context.Context, entry domain.AddressCacheEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	entry.Response = slices.Clone(entry.Response)
	return r.with(func(st *memoryState) error {
		st.cache[entry.Query] = entry
		return nil
	})
}
