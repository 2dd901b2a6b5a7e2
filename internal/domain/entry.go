package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdentityLifecycle is the lifecycle of a published directory entry.
type IdentityLifecycle string

const (
	IdentityActive  IdentityLifecycle = "ACTIVE"
	IdentityRemoved IdentityLifecycle = "REMOVED"
)

// SnapshotLifecycle is the lifecycle of one content version of an entry.
type SnapshotLifecycle string

const (
	SnapshotDraft    SnapshotLifecycle = "DRAFT"
	SnapshotActive   SnapshotLifecycle = "ACTIVE"
	SnapshotArchived SnapshotLifecycle = "ARCHIVED"
)

// ContactType distinguishes email and phone contact methods.
type ContactType string

const (
	ContactEmail ContactType = "EMAIL"
	ContactPhone ContactType = "PHONE"
)

// PublicIdentity is the stable public record of a directory entry. It is
// created when a CREATE proposal is approved and never reused once REMOVED.
type PublicIdentity struct {
	ID             uuid.UUID         `json:"id"`
	Lifecycle      IdentityLifecycle `json:"lifecycle"`
	CreatedBy      string            `json:"createdBy"`
	CreatedAt      time.Time         `json:"createdAt"`
	LastModifiedBy string            `json:"lastModifiedBy"`
	LastModifiedAt time.Time         `json:"lastModifiedAt"`
}

// NewPublicIdentity creates an ACTIVE identity owned by creator.
func NewPublicIdentity(creator string, at time.Time) PublicIdentity {
	return PublicIdentity{
		ID:             uuid.New(),
		Lifecycle:      IdentityActive,
		CreatedBy:      creator,
		CreatedAt:      at,
		LastModifiedBy: creator,
		LastModifiedAt: at,
	}
}

// VocabularyTerm is a shared, de-duplicated tag value such as a category name.
type VocabularyTerm struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ContactMethod is an email address or a phone number. Exactly one of Email
// and Phone is set, matching Type.
type ContactMethod struct {
	ID       uuid.UUID   `json:"id"`
	Type     ContactType `json:"type"`
	IsPublic bool        `json:"isPublic"`
	Email    string      `json:"email,omitempty"`
	Phone    string      `json:"phone,omitempty"`
}

// Person is a contact person owned by one snapshot.
type Person struct {
	ID             uuid.UUID       `json:"id"`
	FirstName      string          `json:"firstName"`
	LastName       string          `json:"lastName"`
	IsPublic       bool            `json:"isPublic"`
	ContactMethods []ContactMethod `json:"contactMethods"`
}

// Address is a postal address, optionally annotated by the geocoder.
type Address struct {
	ID            uuid.UUID `json:"id"`
	StreetAddress string    `json:"streetAddress"`
	City          string    `json:"city"`
	County        string    `json:"county,omitempty"`
	State         string    `json:"state"`
	PostalCode    string    `json:"postalCode"`
	Country       string    `json:"country"`
	Latitude      *float64  `json:"latitude,omitempty"`
	Longitude     *float64  `json:"longitude,omitempty"`
}

// AddressTag attaches exactly one owned address to a snapshot.
type AddressTag struct {
	ID       uuid.UUID `json:"id"`
	IsPublic bool      `json:"isPublic"`
	Address  Address   `json:"address"`
}

// EntrySnapshot is one version of an entry's full content. Snapshots are never
// overwritten; only their lifecycle moves.
type EntrySnapshot struct {
	ID               uuid.UUID         `json:"id"`
	Lifecycle        SnapshotLifecycle `json:"lifecycle"`
	PublicIdentityID *uuid.UUID        `json:"publicIdentityId,omitempty"`
	Name             string            `json:"name"`
	Website          string            `json:"website"`
	Description      string            `json:"description"`
	IsPublic         bool              `json:"isPublic"`
	Scope            string            `json:"scope"`
	Tags             string            `json:"tags"`
	CreatedAt        time.Time         `json:"createdAt"`

	Vocabulary     []VocabularyTerm `json:"vocabulary"`
	ContactMethods []ContactMethod  `json:"contactMethods"`
	People         []Person         `json:"people"`
	Addresses      []AddressTag     `json:"addresses"`
}

// ActorContext supplies who performs an operation and the clock it runs on.
type ActorContext struct {
	Actor string
	Clock Clock
}

// Now returns the current time of the actor's clock.
func (a ActorContext) Now() time.Time {
	if a.Clock == nil {
		return SystemClock{}.Now()
	}
	return a.Clock.Now()
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time {
	return time.Time(c)
}
