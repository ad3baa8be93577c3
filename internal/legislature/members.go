package legislature

import (
	"fmt"

	"github.com/JakeFAU/malegislature-crawler/internal/entity"
)

// LegislativeMember is a sitting or former member of the General Court.
type LegislativeMember struct {
	GeneralCourtNumber int    `json:"GeneralCourtNumber"`
	MemberCode         string `json:"MemberCode"`
	Details            string `json:"Details,omitempty"`

	Name               entity.Field[string]                  `json:"Name,omitzero"`
	LeadershipPosition entity.Field[string]                  `json:"LeadershipPosition,omitzero"`
	Branch             entity.Field[string]                  `json:"Branch,omitzero"`
	District           entity.Field[string]                  `json:"District,omitzero"`
	Party              entity.Field[string]                  `json:"Party,omitzero"`
	EmailAddress       entity.Field[string]                  `json:"EmailAddress,omitzero"`
	RoomNumber         entity.Field[string]                  `json:"RoomNumber,omitzero"`
	PhoneNumber        entity.Field[string]                  `json:"PhoneNumber,omitzero"`
	FaxNumber          entity.Field[string]                  `json:"FaxNumber,omitzero"`
	SponsoredBills     entity.Field[entity.List[*Document]]  `json:"SponsoredBills,omitzero"`
	CoSponsoredBills   entity.Field[entity.List[*Document]]  `json:"CoSponsoredBills,omitzero"`
	Committees         entity.Field[entity.List[*Committee]] `json:"Committees,omitzero"`
}

func (m *LegislativeMember) Kind() string { return KindLegislativeMember }

func (m *LegislativeMember) Identity() (string, error) {
	if m.MemberCode == "" {
		return "", unavailable(KindLegislativeMember, "has no member code")
	}
	return m.MemberCode, nil
}

func (m *LegislativeMember) DetailURL() string { return detailURL(m.Details) }

func (m *LegislativeMember) Fields() entity.Fields {
	return entity.Fields{
		"Name":               &m.Name,
		"LeadershipPosition": &m.LeadershipPosition,
		"Branch":             &m.Branch,
		"District":           &m.District,
		"Party":              &m.Party,
		"EmailAddress":       &m.EmailAddress,
		"RoomNumber":         &m.RoomNumber,
		"PhoneNumber":        &m.PhoneNumber,
		"FaxNumber":          &m.FaxNumber,
		"SponsoredBills":     &m.SponsoredBills,
		"CoSponsoredBills":   &m.CoSponsoredBills,
		"Committees":         &m.Committees,
	}
}

func (m *LegislativeMember) Children() []entity.Entity {
	return children(nil).lazy(&m.SponsoredBills, &m.CoSponsoredBills, &m.Committees)
}

// Committee is a joint, House or Senate committee.
type Committee struct {
	GeneralCourtNumber int    `json:"GeneralCourtNumber,omitempty"`
	CommitteeCode      string `json:"CommitteeCode,omitempty"`
	Details            string `json:"Details,omitempty"`

	FullName                 entity.Field[string]                 `json:"FullName,omitzero"`
	ShortName                entity.Field[string]                 `json:"ShortName,omitzero"`
	Description              entity.Field[string]                 `json:"Description,omitzero"`
	Branch                   entity.Field[string]                 `json:"Branch,omitzero"`
	SenateChairperson        entity.Field[*LegislativeMember]     `json:"SenateChairperson,omitzero"`
	HouseChairperson         entity.Field[*LegislativeMember]     `json:"HouseChairperson,omitzero"`
	DocumentsBeforeCommittee entity.Field[entity.List[*Document]] `json:"DocumentsBeforeCommittee,omitzero"`
	ReportedOutDocuments     entity.Field[entity.List[*Document]] `json:"ReportedOutDocuments,omitzero"`
	Hearings                 entity.Field[entity.List[*Hearing]]  `json:"Hearings,omitzero"`
}

func (c *Committee) Kind() string { return KindCommittee }

// Identity prefers the Details link, then a court-scoped code or name. Names
// are lazy, so they only count once both are resolved; a later resolution
// could otherwise switch the identity from FullName to ShortName.
func (c *Committee) Identity() (string, error) {
	if c.Details != "" {
		return c.Details, nil
	}
	if c.CommitteeCode != "" {
		return courtScoped(c.GeneralCourtNumber, c.CommitteeCode), nil
	}
	if !c.ShortName.Resolved() || !c.FullName.Resolved() {
		return "", unavailable(KindCommittee, "has no details link, code or resolved names")
	}
	name := firstNonEmpty(c.ShortName.OrZero(), c.FullName.OrZero())
	if name == "" {
		return "", unavailable(KindCommittee, "has no details link, code or name")
	}
	return courtScoped(c.GeneralCourtNumber, name), nil
}

func (c *Committee) DetailURL() string { return detailURL(c.Details) }

func (c *Committee) Fields() entity.Fields {
	return entity.Fields{
		"FullName":                 &c.FullName,
		"ShortName":                &c.ShortName,
		"Description":              &c.Description,
		"Branch":                   &c.Branch,
		"SenateChairperson":        &c.SenateChairperson,
		"HouseChairperson":         &c.HouseChairperson,
		"DocumentsBeforeCommittee": &c.DocumentsBeforeCommittee,
		"ReportedOutDocuments":     &c.ReportedOutDocuments,
		"Hearings":                 &c.Hearings,
	}
}

func (c *Committee) Children() []entity.Entity {
	return children(nil).lazy(
		&c.SenateChairperson,
		&c.HouseChairperson,
		&c.DocumentsBeforeCommittee,
		&c.ReportedOutDocuments,
		&c.Hearings,
	)
}

// Leadership is a leadership position in one branch.
type Leadership struct {
	Position string             `json:"Position"`
	Member   *LegislativeMember `json:"Member"`
}

func (l *Leadership) Kind() string { return KindLeadership }

func (l *Leadership) Identity() (string, error) {
	if l.Position == "" {
		return "", unavailable(KindLeadership, "has no position")
	}
	return l.Position, nil
}

func (l *Leadership) Fields() entity.Fields { return entity.Fields{} }

func (l *Leadership) Children() []entity.Entity {
	return children(nil).add(l.Member, l.Member != nil)
}

// Validate requires the position every leadership listing carries.
func (l *Leadership) Validate() error {
	if l.Position == "" {
		return fmt.Errorf("leadership entry without position")
	}
	return nil
}
