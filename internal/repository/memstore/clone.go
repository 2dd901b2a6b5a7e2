package memstore

import (
	"slices"
	"strings"

	"github.com/now-is/chicommons-maps/internal/domain"

	"github.com/google/uuid"
)

func headerOf(s domain.EntrySnapshot) domain.EntrySnapshot {
	h := s
	if s.PublicIdentityID != nil {
		id := *s.PublicIdentityID
		h.PublicIdentityID = &id
	}
	h.Vocabulary = []domain.VocabularyTerm{}
	h.ContactMethods = []domain.ContactMethod{}
	h.People = []domain.Person{}
	h.Addresses = []domain.AddressTag{}
	return h
}

func hydrate(st *memoryState, row snapshotRow) domain.EntrySnapshot {
	s := headerOf(row.header)
	for _, id := range row.vocabulary {
		s.Vocabulary = append(s.Vocabulary, st.terms[id])
	}
	s.ContactMethods = append(s.ContactMethods, row.contactMethods...)
	s.People = append(s.People, clonePeople(row.people)...)
	s.Addresses = append(s.Addresses, cloneAddressTags(row.addresses)...)
	return s
}

func sortSnapshots(list []domain.EntrySnapshot) {
	slices.SortFunc(list, func(a, b domain.EntrySnapshot) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}

func freshContactMethods(methods []domain.ContactMethod) []domain.ContactMethod {
	out := make([]domain.ContactMethod, 0, len(methods))
	for _, cm := range methods {
		cm.ID = uuid.New()
		out = append(out, cm)
	}
	return out
}

func cloneSnapshotRow(row snapshotRow) snapshotRow {
	return snapshotRow{
		header:         headerOf(row.header),
		vocabulary:     slices.Clone(row.vocabulary),
		contactMethods: slices.Clone(row.contactMethods),
		people:         clonePeople(row.people),
		addresses:      cloneAddressTags(row.addresses),
	}
}

func clonePeople(people []domain.Person) []domain.Person {
	out := make([]domain.Person, 0, len(people))
	for _, p := range people {
		p.ContactMethods = slices.Clone(p.ContactMethods)
		if p.ContactMethods == nil {
			p.ContactMethods = []domain.ContactMethod{}
		}
		out = append(out, p)
	}
	return out
}

func cloneAddressTags(tags []domain.AddressTag) []domain.AddressTag {
	out := make([]domain.AddressTag, 0, len(tags))
	for _, t := range tags {
		t.Address = cloneAddress(t.Address)
		out = append(out, t)
	}
	return out
}

func cloneAddress(a domain.Address) domain.Address {
	if a.Latitude != nil {
		lat := *a.Latitude
		a.Latitude = &lat
	}
	if a.Longitude != nil {
		lon := *a.Longitude
		a.Longitude = &lon
	}
	return a
}

func cloneProposal(p domain.Proposal) domain.Proposal {
	p.ChangeSummary = slices.Clone(p.ChangeSummary)
	p.PublicIdentityID = cloneID(p.PublicIdentityID)
	p.SnapshotID = cloneID(p.SnapshotID)
	p.BaseSnapshotID = cloneID(p.BaseSnapshotID)
	if p.ReviewedAt != nil {
		at := *p.ReviewedAt
		p.ReviewedAt = &at
	}
	return p
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
