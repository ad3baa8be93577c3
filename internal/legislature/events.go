package legislature

import (
	"context"
	"fmt"
	"strconv"

	"github.com/JakeFAU/malegislature-crawler/internal/crawl"
	"github.com/JakeFAU/malegislature-crawler/internal/entity"
	"github.com/JakeFAU/malegislature-crawler/internal/fetcher"
)

// HearingDocumentsSelector finds the testimony and document links in the
// first column of a hearing page's agenda table.
const HearingDocumentsSelector = "#documentsSection table.agendaTable tbody tr td:first-child a[href]"

// Hearing is a committee hearing.
type Hearing struct {
	EventID int    `json:"EventId"`
	Details string `json:"Details,omitempty"`

	Name               entity.Field[string]                        `json:"Name,omitzero"`
	Status             entity.Field[string]                        `json:"Status,omitzero"`
	EventDate          entity.Field[Timestamp]                     `json:"EventDate,omitzero"`
	StartTime          entity.Field[Timestamp]                     `json:"StartTime,omitzero"`
	Description        entity.Field[string]                        `json:"Description,omitzero"`
	HearingHost        entity.Field[*Committee]                    `json:"HearingHost,omitzero"`
	HearingAgendas     entity.Field[[]AgendaItem]                  `json:"HearingAgendas,omitzero"`
	RescheduledHearing entity.Field[OneOrMany[HearingRescheduled]] `json:"RescheduledHearing,omitzero"`
	Location           entity.Field[OneOrMany[Location]]           `json:"Location,omitzero"`

	// Scraped from the hearing's HTML page.
	DocumentURLs entity.Field[[]string] `json:"document_urls,omitzero"`
}

func (h *Hearing) Kind() string { return KindHearing }

func (h *Hearing) Identity() (string, error) {
	if h.EventID == 0 {
		return "", unavailable(KindHearing, "has no event id")
	}
	return strconv.Itoa(h.EventID), nil
}

func (h *Hearing) DetailURL() string { return detailURL(h.Details) }

func (h *Hearing) Fields() entity.Fields {
	return entity.Fields{
		"Name":               &h.Name,
		"Status":             &h.Status,
		"EventDate":          &h.EventDate,
		"StartTime":          &h.StartTime,
		"Description":        &h.Description,
		"HearingHost":        &h.HearingHost,
		"HearingAgendas":     &h.HearingAgendas,
		"RescheduledHearing": &h.RescheduledHearing,
		"Location":           &h.Location,
		"document_urls":      &h.DocumentURLs,
	}
}

func (h *Hearing) Children() []entity.Entity {
	return children(nil).lazy(&h.HearingHost)
}

// PageURL is the public HTML page of the hearing.
func (h *Hearing) PageURL() string {
	return fmt.Sprintf("/Events/Hearings/Detail/%d", h.EventID)
}

// fetchHearingDocuments scrapes the document links off the hearing page. A
// page that is gone, or that has no documents section, yields no links.
func fetchHearingDocuments(ctx context.Context, env *crawl.Env, h *Hearing) error {
	if env.Pages == nil {
		return fmt.Errorf("hearing %d: no page scraper configured", h.EventID)
	}
	identity, _ := h.Identity()
	links, err := env.Pages.Links(ctx, fetcher.Request{
		URL:      env.URL(h.PageURL()),
		Kind:     KindHearing,
		Identity: identity,
	}, HearingDocumentsSelector)
	if err != nil {
		status, ok := fetcher.StatusOf(err)
		if !ok || fetcher.Classify(status, nil) != fetcher.ClassPermanent {
			return err
		}
		links = []string{}
	}
	h.DocumentURLs.Set(links)
	return nil
}

// Event holds the fields shared by scheduled legislative events.
type Event struct {
	EventID     int        `json:"EventId"`
	Name        *string    `json:"Name"`
	Status      *string    `json:"Status"`
	EventDate   *Timestamp `json:"EventDate"`
	StartTime   *Timestamp `json:"StartTime"`
	Description *string    `json:"Description"`
}

func (e *Event) identity(kind string) (string, error) {
	if e.EventID == 0 {
		return "", unavailable(kind, "has no event id")
	}
	return strconv.Itoa(e.EventID), nil
}

// SpecialEvent is a ceremony or other non-session event.
type SpecialEvent struct {
	Event
	Location *Location `json:"Location"`
}

func (s *SpecialEvent) Kind() string              { return KindSpecialEvent }
func (s *SpecialEvent) Identity() (string, error) { return s.identity(KindSpecialEvent) }
func (s *SpecialEvent) Fields() entity.Fields     { return entity.Fields{} }

// Session is a formal or informal session of one branch.
type Session struct {
	Event
	GeneralCourtNumber int     `json:"GeneralCourtNumber"`
	LocationName       *string `json:"LocationName"`
}

func (s *Session) Kind() string              { return KindSession }
func (s *Session) Identity() (string, error) { return s.identity(KindSession) }
func (s *Session) Fields() entity.Fields     { return entity.Fields{} }
