package legislature

import (
	"net/http"

	"github.com/JakeFAU/malegislature-crawler/internal/crawl"
	"github.com/JakeFAU/malegislature-crawler/internal/entity"
)

// LeadershipEndpoints list the leadership of each branch. Leadership has no
// collection endpoint of its own, so each is reconciled as an override.
var LeadershipEndpoints = []string{
	"/api/Branches/House/Leadership",
	"/api/Branches/Senate/Leadership",
}

// journalDegradable are the list statuses the journal endpoints return while
// the clerks' systems are down.
var journalDegradable = []int{http.StatusInternalServerError}

// Types returns the capability table of every entity type. Types with a
// list endpoint come first, in crawl order.
func Types() []*crawl.Type {
	return []*crawl.Type{
		{
			Name:         KindCity,
			New:          func() entity.Entity { return &City{} },
			ListEndpoint: "/api/Documents/SupportedCities",
			Decode:       decodeCity,
			Fetchers:     []crawl.FieldFetcher{crawl.FetcherFor("documents", fetchCityDocuments)},
			Prune:        true,
		},
		{
			Name:         KindCommittee,
			New:          func() entity.Entity { return &Committee{} },
			ListEndpoint: "/api/Committees",
			Prune:        true,
		},
		{
			Name:         KindDocument,
			New:          func() entity.Entity { return &Document{} },
			ListEndpoint: "/api/Documents",
			Fetchers: []crawl.FieldFetcher{
				crawl.FetcherFor("similar", fetchSimilar),
				crawl.FetcherFor("document_history", fetchDocumentHistory),
			},
			Prune: true,
		},
		{
			Name:         KindGeneralLawChapter,
			New:          func() entity.Entity { return &GeneralLawChapter{} },
			ListEndpoint: "/api/Chapters",
			Prune:        true,
		},
		{
			Name:         KindGeneralLawPart,
			New:          func() entity.Entity { return &GeneralLawPart{} },
			ListEndpoint: "/api/Parts",
			Prune:        true,
		},
		{
			Name:         KindHearing,
			New:          func() entity.Entity { return &Hearing{} },
			ListEndpoint: "/api/Hearings",
			Fetchers:     []crawl.FieldFetcher{crawl.FetcherFor("document_urls", fetchHearingDocuments)},
			Prune:        true,
		},
		{
			Name:         KindHouseJournal,
			New:          func() entity.Entity { return &HouseJournal{} },
			ListEndpoint: "/api/HouseJournals",
			Degradable:   journalDegradable,
			Prune:        true,
		},
		{
			Name:         KindLegislativeMember,
			New:          func() entity.Entity { return &LegislativeMember{} },
			ListEndpoint: "/api/LegislativeMembers",
			Prune:        true,
		},
		{
			Name:         KindReport,
			New:          func() entity.Entity { return &Report{} },
			ListEndpoint: "/api/Reports",
			Prune:        true,
		},
		{
			Name:         KindSenateJournal,
			New:          func() entity.Entity { return &SenateJournal{} },
			ListEndpoint: "/api/SenateJournals",
			Degradable:   journalDegradable,
			Prune:        true,
		},
		{
			Name:         KindSession,
			New:          func() entity.Entity { return &Session{} },
			ListEndpoint: "/api/Sessions",
			Prune:        true,
		},
		{
			Name:         KindSessionLaw,
			New:          func() entity.Entity { return &SessionLaw{} },
			ListEndpoint: "/api/SessionLaws",
			Prune:        true,
		},
		{
			Name:         KindSpecialEvent,
			New:          func() entity.Entity { return &SpecialEvent{} },
			ListEndpoint: "/api/SpecialEvents",
			Prune:        true,
		},
		{Name: KindRollCall, New: func() entity.Entity { return &RollCall{} }},
		{Name: KindAmendment, New: func() entity.Entity { return &Amendment{} }},
		{Name: KindGeneralLawSection, New: func() entity.Entity { return &GeneralLawSection{} }},
		{Name: KindLeadership, New: func() entity.Entity { return &Leadership{} }},
		{Name: KindCommitteeVote, New: func() entity.Entity { return &CommitteeVote{} }},
	}
}

// NewRegistry returns a registry holding every entity type.
func NewRegistry() *crawl.Registry {
	return crawl.NewRegistry().MustRegister(Types()...)
}

// Listed returns the kinds that have a collection endpoint, in crawl order.
func Listed(r *crawl.Registry) []string {
	var out []string
	for _, t := range r.Types() {
		if t.ListEndpoint != "" {
			out = append(out, t.Name)
		}
	}
	return out
}
