package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/now-is/chicommons-maps/internal/domain"
	"github.com/now-is/chicommons-maps/internal/repository"

	"github.com/google/uuid"
)

// Merge builds an unsaved draft from source with body applied on top.
//
// A scalar present in body replaces the source value. A relation present in
// body (even empty) replaces the source relation entirely; an omitted one is
// inherited. Inherited vocabulary keeps the source term IDs; replaced
// vocabulary carries names only and is resolved by Persist. Owned rows never
// keep an ID, so persisting always creates fresh copies.
func Merge(source domain.EntrySnapshot, body domain.EntryBody) domain.EntrySnapshot {
	draft := domain.EntrySnapshot{
		Lifecycle:   domain.SnapshotDraft,
		Name:        stringOr(body.Name, source.Name),
		Website:     stringOr(body.Website, source.Website),
		Description: stringOr(body.Description, source.Description),
		IsPublic:    source.IsPublic,
		Scope:       stringOr(body.Scope, source.Scope),
		Tags:        stringOr(body.Tags, source.Tags),
	}
	if source.ID == uuid.Nil {
		draft.IsPublic = true
	}
	if body.IsPublic != nil {
		draft.IsPublic = *body.IsPublic
	}
	if source.PublicIdentityID != nil {
		id := *source.PublicIdentityID
		draft.PublicIdentityID = &id
	}

	if body.Vocabulary != nil {
		draft.Vocabulary = make([]domain.VocabularyTerm, 0, len(*body.Vocabulary))
		for _, name := range *body.Vocabulary {
			draft.Vocabulary = append(draft.Vocabulary, domain.VocabularyTerm{Name: name})
		}
	} else {
		draft.Vocabulary = append([]domain.VocabularyTerm{}, source.Vocabulary...)
	}

	if body.ContactMethods != nil {
		draft.ContactMethods = make([]domain.ContactMethod, 0, len(*body.ContactMethods))
		for _, cm := range *body.ContactMethods {
			draft.ContactMethods = append(draft.ContactMethods, cm.ContactMethod())
		}
	} else {
		draft.ContactMethods = copyContactMethods(source.ContactMethods)
	}

	if body.People != nil {
		draft.People = make([]domain.Person, 0, len(*body.People))
		for _, p := range *body.People {
			draft.People = append(draft.People, p.Person())
		}
	} else {
		draft.People = make([]domain.Person, 0, len(source.People))
		for _, p := range source.People {
			p.ID = uuid.Nil
			p.ContactMethods = copyContactMethods(p.ContactMethods)
			draft.People = append(draft.People, p)
		}
	}

	if body.Addresses != nil {
		draft.Addresses = make([]domain.AddressTag, 0, len(*body.Addresses))
		for _, tag := range *body.Addresses {
			draft.Addresses = append(draft.Addresses, tag.AddressTag())
		}
	} else {
		draft.Addresses = make([]domain.AddressTag, 0, len(source.Addresses))
		for _, tag := range source.Addresses {
			tag.ID = uuid.Nil
			tag.Address.ID = uuid.Nil
			tag.Address.Latitude = copyFloat(tag.Address.Latitude)
			tag.Address.Longitude = copyFloat(tag.Address.Longitude)
			draft.Addresses = append(draft.Addresses, tag)
		}
	}

	return draft
}

// Persist writes a merged draft: the snapshot row, its vocabulary links and
// freshly created owned rows. It returns the saved snapshot with new IDs.
func Persist(ctx context.Context, repos repository.Repositories, draft domain.EntrySnapshot, at time.Time) (domain.EntrySnapshot, error) {
	header := draft
	header.ID = uuid.Nil
	header.Lifecycle = domain.SnapshotDraft
	header.CreatedAt = at

	saved, err := repos.Snapshots().Create(ctx, header)
	if err != nil {
		return domain.EntrySnapshot{}, err
	}

	terms := make([]domain.VocabularyTerm, 0, len(draft.Vocabulary))
	seen := make(map[uuid.UUID]bool, len(draft.Vocabulary))
	for _, term := range draft.Vocabulary {
		if term.ID == uuid.Nil {
			term, err = repos.Vocabulary().Upsert(ctx, term.Name)
			if err != nil {
				return domain.EntrySnapshot{}, fmt.Errorf("failed to resolve vocabulary term: %w", err)
			}
		}
		if seen[term.ID] {
			continue
		}
		seen[term.ID] = true
		terms = append(terms, term)
	}
	if err := repos.Snapshots().AttachVocabulary(ctx, saved.ID, terms); err != nil {
		return domain.EntrySnapshot{}, err
	}
	saved.Vocabulary = terms

	if saved.ContactMethods, err = repos.Snapshots().InsertContactMethods(ctx, saved.ID, draft.ContactMethods); err != nil {
		return domain.EntrySnapshot{}, err
	}
	if saved.People, err = repos.Snapshots().InsertPeople(ctx, saved.ID, draft.People); err != nil {
		return domain.EntrySnapshot{}, err
	}
	if saved.Addresses, err = repos.Snapshots().InsertAddressTags(ctx, saved.ID, draft.Addresses); err != nil {
		return domain.EntrySnapshot{}, err
	}
	return saved, nil
}

func stringOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}

func copyContactMethods(methods []domain.ContactMethod) []domain.ContactMethod {
	out := make([]domain.ContactMethod, 0, len(methods))
	for _, cm := range methods {
		cm.ID = uuid.Nil
		out = append(out, cm)
	}
	return out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
