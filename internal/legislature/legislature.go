// Package legislature defines the Massachusetts Legislature API entities and
// the capability table the crawl engine uses to walk them.
package legislature

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/malegislature-crawler/internal/entity"
)

// DefaultBaseURL is the public API host.
const DefaultBaseURL = "https://malegislature.gov"

// Entity kinds. Each is also the cache namespace of its records.
const (
	KindLegislativeMember = "legislative-member"
	KindCommittee         = "committee"
	KindDocument          = "document"
	KindHearing           = "hearing"
	KindRollCall          = "roll-call"
	KindAmendment         = "amendment"
	KindGeneralLawPart    = "general-law-part"
	KindGeneralLawChapter = "general-law-chapter"
	KindGeneralLawSection = "general-law-section"
	KindHouseJournal      = "house-journal"
	KindSenateJournal     = "senate-journal"
	KindSpecialEvent      = "special-event"
	KindSession           = "session"
	KindReport            = "report"
	KindSessionLaw        = "session-law"
	KindLeadership        = "leadership"
	KindCity              = "city"
	KindCommitteeVote     = "committee-vote"
)

// detailURL normalizes a Details link. The API still hands out http links
// that redirect.
func detailURL(details string) string {
	if rest, ok := strings.CutPrefix(details, "http://"); ok {
		return "https://" + rest
	}
	return details
}

func unavailable(kind, why string) error {
	return fmt.Errorf("%s %s: %w", kind, why, entity.ErrIdentityUnavailable)
}

// courtScoped prefixes id with the general court number when it is known.
func courtScoped(court int, id string) string {
	if court == 0 {
		return id
	}
	return strconv.Itoa(court) + "-" + id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// children collects the non-nil entities held directly by eager fields.
type children []entity.Entity

func (c children) add(e entity.Entity, present bool) children {
	if !present {
		return c
	}
	return append(c, e)
}

func (c children) lazy(fields ...entity.Lazy) children {
	return append(c, entity.Collect(fields...)...)
}
