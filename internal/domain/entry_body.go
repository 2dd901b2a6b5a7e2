package domain

import (
	"strings"
)

// EntryBody is a partial entry payload. A nil pointer means the key was
// omitted (or null) and the value is inherited; a non-nil pointer to an empty
// slice means the relation is explicitly cleared.
type EntryBody struct {
	Name        *string `json:"name,omitempty"`
	Website     *string `json:"website,omitempty"`
	Description *string `json:"description,omitempty"`
	IsPublic    *bool   `json:"isPublic,omitempty"`
	Scope       *string `json:"scope,omitempty"`
	Tags        *string `json:"tags,omitempty"`

	Vocabulary     *[]string             `json:"vocabulary,omitempty"`
	ContactMethods *[]ContactMethodInput `json:"contactMethods,omitempty"`
	People         *[]PersonInput        `json:"people,omitempty"`
	Addresses      *[]AddressTagInput    `json:"addresses,omitempty"`
}

// ContactMethodInput is one submitted contact method.
type ContactMethodInput struct {
	Type     string `json:"type"`
	IsPublic *bool  `json:"isPublic,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// PersonInput is one submitted person with its own contact methods.
type PersonInput struct {
	FirstName      string               `json:"firstName"`
	LastName       string               `json:"lastName"`
	IsPublic       *bool                `json:"isPublic,omitempty"`
	ContactMethods []ContactMethodInput `json:"contactMethods"`
}

// AddressTagInput is one submitted address attachment.
type AddressTagInput struct {
	IsPublic *bool        `json:"isPublic,omitempty"`
	Address  AddressInput `json:"address"`
}

// AddressInput is a submitted postal address. Coordinates and county may be
// supplied to skip geocoding.
type AddressInput struct {
	StreetAddress string   `json:"streetAddress"`
	City          string   `json:"city"`
	County        string   `json:"county,omitempty"`
	State         string   `json:"state"`
	PostalCode    string   `json:"postalCode"`
	Country       string   `json:"country,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
}

const defaultCountry = "US"

// Validate checks every supplied relation row.
func (b EntryBody) Validate() error {
	if b.Vocabulary != nil {
		for i, name := range *b.Vocabulary {
			if strings.TrimSpace(name) == "" {
				return Validationf("vocabulary[%d]: name is required", i)
			}
		}
	}
	if b.ContactMethods != nil {
		for i, cm := range *b.ContactMethods {
			if err := cm.validate(); err != nil {
				return Validationf("contactMethods[%d]: %s", i, err.Error())
			}
		}
	}
	if b.People != nil {
		for i, p := range *b.People {
			if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
				return Validationf("people[%d]: firstName and lastName are required", i)
			}
			for j, cm := range p.ContactMethods {
				if err := cm.validate(); err != nil {
					return Validationf("people[%d].contactMethods[%d]: %s", i, j, err.Error())
				}
			}
		}
	}
	if b.Addresses != nil {
		for i, tag := range *b.Addresses {
			if err := tag.Address.validate(); err != nil {
				return Validationf("addresses[%d].address: %s", i, err.Error())
			}
		}
	}
	return nil
}

func (c ContactMethodInput) validate() error {
	email := strings.TrimSpace(c.Email)
	phone := strings.TrimSpace(c.Phone)
	if (email == "") == (phone == "") {
		return Validationf("either an email or a phone number must be provided")
	}
	switch ContactType(strings.ToUpper(c.Type)) {
	case ContactEmail:
		if email == "" {
			return Validationf("type EMAIL requires an email")
		}
	case ContactPhone:
		if phone == "" {
			return Validationf("type PHONE requires a phone")
		}
	default:
		return Validationf("unknown contact type %q", c.Type)
	}
	return nil
}

func (a AddressInput) validate() error {
	missing := []string{}
	if strings.TrimSpace(a.StreetAddress) == "" {
		missing = append(missing, "streetAddress")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(a.State) == "" {
		missing = append(missing, "state")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		missing = append(missing, "postalCode")
	}
	if len(missing) > 0 {
		return Validationf("missing %s", strings.Join(missing, ", "))
	}
	if (a.Latitude == nil) != (a.Longitude == nil) {
		return Validationf("latitude and longitude must be supplied together")
	}
	return nil
}

// ContactMethod converts the input to an unsaved row.
func (c ContactMethodInput) ContactMethod() ContactMethod {
	return ContactMethod{
		Type:     ContactType(strings.ToUpper(c.Type)),
		IsPublic: boolOr(c.IsPublic, true),
		Email:    strings.TrimSpace(c.Email),
		Phone:    strings.TrimSpace(c.Phone),
	}
}

// Person converts the input to an unsaved row with its contact methods.
func (p PersonInput) Person() Person {
	methods := make([]ContactMethod, 0, len(p.ContactMethods))
	for _, cm := range p.ContactMethods {
		methods = append(methods, cm.ContactMethod())
	}
	return Person{
		FirstName:      strings.TrimSpace(p.FirstName),
		LastName:       strings.TrimSpace(p.LastName),
		IsPublic:       boolOr(p.IsPublic, true),
		ContactMethods: methods,
	}
}

// AddressTag converts the input to an unsaved tag and address.
func (t AddressTagInput) AddressTag() AddressTag {
	country := strings.ToUpper(strings.TrimSpace(t.Address.Country))
	if country == "" {
		country = defaultCountry
	}
	return AddressTag{
		IsPublic: boolOr(t.IsPublic, true),
		Address: Address{
			StreetAddress: strings.TrimSpace(t.Address.StreetAddress),
			City:          strings.TrimSpace(t.Address.City),
			County:        strings.TrimSpace(t.Address.County),
			State:         strings.TrimSpace(t.Address.State),
			PostalCode:    strings.TrimSpace(t.Address.PostalCode),
			Country:       country,
			Latitude:      t.Address.Latitude,
			Longitude:     t.Address.Longitude,
		},
	}
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
