package legislature

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// zonelessLayout is the API's timestamp format for local legislative times.
const zonelessLayout = "2006-01-02T15:04:05"

// Timestamp is an API time. The API mixes RFC 3339 values with zone-less
// ones, some with fractional seconds. Decoded values keep the received text
// so records round-trip byte for byte.
type Timestamp struct {
	time.Time
	raw string
}

// NewTimestamp returns a zone-less Timestamp for t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// ISO formats the timestamp the way it was received. Timestamps built with
// NewTimestamp use the zone-less layout.
func (t Timestamp) ISO() string {
	if t.raw != "" {
		return t.raw
	}
	return t.Format(zonelessLayout)
}

// Date returns the calendar date as YYYY-MM-DD.
func (t Timestamp) Date() string {
	return t.Format(time.DateOnly)
}

// MarshalJSON encodes t in its original form.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return jsonNull, nil
	}
	return json.Marshal(t.ISO())
}

// UnmarshalJSON accepts RFC 3339 and zone-less timestamps.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		*t = Timestamp{Time: parsed, raw: s}
		return nil
	}
	// Fractional seconds are accepted by Parse even though the layout omits them.
	parsed, err := time.Parse(zonelessLayout, s)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	*t = Timestamp{Time: parsed, raw: s}
	return nil
}

var jsonNull = []byte("null")

// OneOrMany decodes either a single JSON object or an array of them. It
// always encodes as an array.
type OneOrMany[T any] []T

// UnmarshalJSON accepts an object, an array or null.
func (o *OneOrMany[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(trimmed, jsonNull):
		*o = nil
		return nil
	case len(trimmed) > 0 && trimmed[0] == '[':
		var many []T
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return fmt.Errorf("decode list: %w", err)
		}
		*o = many
		return nil
	default:
		var one T
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return fmt.Errorf("decode item: %w", err)
		}
		*o = OneOrMany[T]{one}
		return nil
	}
}

// SponsorType classifies the filer of a document.
type SponsorType int

// Sponsor types as numbered by the API.
const (
	SponsorLegislativeMember SponsorType = 1
	SponsorCommittee         SponsorType = 2
	SponsorPublicRequest     SponsorType = 3
	SponsorSpecialRequest    SponsorType = 4
)

func (t SponsorType) String() string {
	switch t {
	case SponsorLegislativeMember:
		return "legislative_member"
	case SponsorCommittee:
		return "committee"
	case SponsorPublicRequest:
		return "public_request"
	case SponsorSpecialRequest:
		return "special_request"
	default:
		return fmt.Sprintf("sponsor_type(%d)", int(t))
	}
}

// UnmarshalJSON rejects sponsor types the API does not define.
func (t *SponsorType) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("sponsor type: %w", err)
	}
	if n < int(SponsorLegislativeMember) || n > int(SponsorSpecialRequest) {
		return fmt.Errorf("sponsor type %d out of range", n)
	}
	*t = SponsorType(n)
	return nil
}

// BillSponsorSummary names who filed a document.
type BillSponsorSummary struct {
	Details      string      `json:"Details,omitempty"`
	ID           *string     `json:"Id"`
	Name         string      `json:"Name"`
	Type         SponsorType `json:"Type"`
	ResponseDate *Timestamp  `json:"ResponseDate"`
}

// Attachment is a downloadable file attached to a document.
type Attachment struct {
	Description *string `json:"Description"`
	DownloadURL *string `json:"DownloadUrl"`
}

// FiscalAmount is a cost attached to a committee recommendation.
type FiscalAmount struct {
	FiscalType *string `json:"FiscalType"`
	Amount     *string `json:"Amount"`
}

// CommitteeVoteRecord groups members by how they voted in committee.
type CommitteeVoteRecord struct {
	Favorable      []*LegislativeMember `json:"Favorable"`
	Adverse        []*LegislativeMember `json:"Adverse"`
	ReserveRight   []*LegislativeMember `json:"ReserveRight"`
	NoVoteRecorded []*LegislativeMember `json:"NoVoteRecorded"`
}

// CommitteeRecommendation is a committee's action on a document.
type CommitteeRecommendation struct {
	Action        *string          `json:"Action"`
	FiscalAmounts []FiscalAmount   `json:"FiscalAmounts"`
	Committee     *Committee       `json:"Committee"`
	Votes         []*CommitteeVote `json:"Votes"`
}

// AgendaItem is one topic on a hearing agenda.
type AgendaItem struct {
	Topic             *string     `json:"Topic"`
	StartTime         *Timestamp  `json:"StartTime"`
	EndTime           *Timestamp  `json:"EndTime"`
	DocumentsInAgenda []*Document `json:"DocumentsInAgenda"`
}

// Location is where an event takes place.
type Location struct {
	LocationName *string `json:"LocationName"`
	AddressLine1 *string `json:"AddressLine1"`
	AddressLine2 *string `json:"AddressLine2"`
	City         *string `json:"City"`
	State        *string `json:"State"`
	ZipCode      *string `json:"ZipCode"`
}

// HearingRescheduled records a change to a hearing's schedule.
type HearingRescheduled struct {
	Status    *string    `json:"Status"`
	EventDate *Timestamp `json:"EventDate"`
	StartTime *Timestamp `json:"StartTime"`
	Location  *Location  `json:"Location"`
}

// DocumentHistoryAction is one step in a document's legislative history.
type DocumentHistoryAction struct {
	Date   Timestamp `json:"Date"`
	Branch *string   `json:"Branch"`
	Action *string   `json:"Action"`
}
