package legislature

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/JakeFAU/malegislature-crawler/internal/crawl"
	"github.com/JakeFAU/malegislature-crawler/internal/entity"
	"github.com/JakeFAU/malegislature-crawler/internal/fetcher"
)

// Document is a bill, docket or other filed document.
type Document struct {
	GeneralCourtNumber int    `json:"GeneralCourtNumber"`
	BillNumber         string `json:"BillNumber,omitempty"`
	DocketNumber       string `json:"DocketNumber,omitempty"`
	IsDocketBookOnly   bool   `json:"IsDocketBookOnly"`
	Title              string `json:"Title,omitempty"`
	Details            string `json:"Details,omitempty"`

	PrimarySponsor           entity.Field[*BillSponsorSummary]       `json:"PrimarySponsor,omitzero"`
	Cosponsors               entity.Field[[]BillSponsorSummary]      `json:"Cosponsors,omitzero"`
	JointSponsor             entity.Field[*BillSponsorSummary]       `json:"JointSponsor,omitzero"`
	LegislationTypeName      entity.Field[string]                    `json:"LegislationTypeName,omitzero"`
	Pinslip                  entity.Field[string]                    `json:"Pinslip,omitzero"`
	DocumentText             entity.Field[string]                    `json:"DocumentText,omitzero"`
	EmergencyPreamble        entity.Field[string]                    `json:"EmergencyPreamble,omitzero"`
	RollCalls                entity.Field[entity.List[*RollCall]]    `json:"RollCalls,omitzero"`
	Attachments              entity.Field[[]Attachment]              `json:"Attachments,omitzero"`
	CommitteeRecommendations entity.Field[[]CommitteeRecommendation] `json:"CommitteeRecommendations,omitzero"`
	Amendments               entity.Field[entity.List[*Amendment]]   `json:"Amendments,omitzero"`
	Similar                  entity.Field[entity.List[*Document]]    `json:"similar,omitzero"`
	DocumentHistory          entity.Field[[]DocumentHistoryAction]   `json:"document_history,omitzero"`
}

func (d *Document) Kind() string { return KindDocument }

// Identity prefers the Details link, then the court-scoped bill number,
// docket number or title.
func (d *Document) Identity() (string, error) {
	if d.Details != "" {
		return d.Details, nil
	}
	id := firstNonEmpty(d.BillNumber, d.DocketNumber, d.Title)
	if id == "" {
		return "", unavailable(KindDocument, "has no details link, number or title")
	}
	return courtScoped(d.GeneralCourtNumber, id), nil
}

func (d *Document) DetailURL() string { return detailURL(d.Details) }

func (d *Document) Fields() entity.Fields {
	return entity.Fields{
		"PrimarySponsor":           &d.PrimarySponsor,
		"Cosponsors":               &d.Cosponsors,
		"JointSponsor":             &d.JointSponsor,
		"LegislationTypeName":      &d.LegislationTypeName,
		"Pinslip":                  &d.Pinslip,
		"DocumentText":             &d.DocumentText,
		"EmergencyPreamble":        &d.EmergencyPreamble,
		"RollCalls":                &d.RollCalls,
		"Attachments":              &d.Attachments,
		"CommitteeRecommendations": &d.CommitteeRecommendations,
		"Amendments":               &d.Amendments,
		"similar":                  &d.Similar,
		"document_history":         &d.DocumentHistory,
	}
}

func (d *Document) Children() []entity.Entity {
	return children(nil).lazy(&d.RollCalls, &d.Amendments, &d.Similar)
}

// RollCall is a recorded floor vote.
type RollCall struct {
	GeneralCourtNumber int    `json:"GeneralCourtNumber"`
	RollCallNumber     int    `json:"RollCallNumber"`
	Details            string `json:"Details,omitempty"`

	Branch         entity.Field[string]                          `json:"Branch,omitzero"`
	QuestionMotion entity.Field[string]                          `json:"QuestionMotion,omitzero"`
	Yeas           entity.Field[entity.List[*LegislativeMember]] `json:"Yeas,omitzero"`
	Nays           entity.Field[entity.List[*LegislativeMember]] `json:"Nays,omitzero"`
	Absent         entity.Field[entity.List[*LegislativeMember]] `json:"Absent,omitzero"`
	DownloadURL    entity.Field[string]                          `json:"DownloadUrl,omitzero"`
}

func (r *RollCall) Kind() string { return KindRollCall }

func (r *RollCall) Identity() (string, error) {
	if r.RollCallNumber == 0 {
		return "", unavailable(KindRollCall, "has no roll call number")
	}
	return fmt.Sprintf("%d-%d", r.GeneralCourtNumber, r.RollCallNumber), nil
}

func (r *RollCall) DetailURL() string { return detailURL(r.Details) }

func (r *RollCall) Fields() entity.Fields {
	return entity.Fields{
		"Branch":         &r.Branch,
		"QuestionMotion": &r.QuestionMotion,
		"Yeas":           &r.Yeas,
		"Nays":           &r.Nays,
		"Absent":         &r.Absent,
		"DownloadUrl":    &r.DownloadURL,
	}
}

func (r *RollCall) Children() []entity.Entity {
	return children(nil).lazy(&r.Yeas, &r.Nays, &r.Absent)
}

// Amendment is an amendment offered to a bill in one branch.
type Amendment struct {
	GeneralCourtNumber int    `json:"GeneralCourtNumber"`
	AmendmentNumber    string `json:"AmendmentNumber,omitempty"`
	ParentBillNumber   string `json:"ParentBillNumber,omitempty"`
	Branch             string `json:"Branch,omitempty"`
	Details            string `json:"Details,omitempty"`

	Bill          entity.Field[*Document]              `json:"Bill,omitzero"`
	Sponsor       entity.Field[*BillSponsorSummary]    `json:"Sponsor,omitzero"`
	Category      entity.Field[string]                 `json:"Category,omitzero"`
	Action        entity.Field[string]                 `json:"Action,omitzero"`
	RollCall      entity.Field[entity.List[*RollCall]] `json:"RollCall,omitzero"`
	Title         entity.Field[string]                 `json:"Title,omitzero"`
	RedraftNumber entity.Field[int]                    `json:"RedraftNumber,omitzero"`
	IsFurther     entity.Field[bool]                   `json:"IsFurther,omitzero"`
	Text          entity.Field[string]                 `json:"Text,omitzero"`
}

func (a *Amendment) Kind() string { return KindAmendment }

func (a *Amendment) located() bool {
	return a.ParentBillNumber != "" && a.Branch != "" && a.AmendmentNumber != ""
}

func (a *Amendment) Identity() (string, error) {
	if a.Details != "" {
		return a.Details, nil
	}
	if !a.located() {
		return "", unavailable(KindAmendment, "has no details link or bill, branch and number")
	}
	return fmt.Sprintf("%d-%s-%s-%s", a.GeneralCourtNumber, a.ParentBillNumber, a.Branch, a.AmendmentNumber), nil
}

// DetailURL is computed from the amendment's location; the listing never
// carries a usable link. The path is relative to the API base URL.
func (a *Amendment) DetailURL() string {
	if !a.located() {
		return ""
	}
	return fmt.Sprintf("/api/GeneralCourts/%d/Documents/%s/Branches/%s/Amendments/%s",
		a.GeneralCourtNumber,
		url.PathEscape(a.ParentBillNumber),
		url.PathEscape(a.Branch),
		url.PathEscape(a.AmendmentNumber),
	)
}

func (a *Amendment) Fields() entity.Fields {
	return entity.Fields{
		"Bill":          &a.Bill,
		"Sponsor":       &a.Sponsor,
		"Category":      &a.Category,
		"Action":        &a.Action,
		"RollCall":      &a.RollCall,
		"Title":         &a.Title,
		"RedraftNumber": &a.RedraftNumber,
		"IsFurther":     &a.IsFurther,
		"Text":          &a.Text,
	}
}

func (a *Amendment) Children() []entity.Entity {
	return children(nil).lazy(&a.Bill, &a.RollCall)
}

// CommitteeVote is a committee's recorded vote on a bill.
type CommitteeVote struct {
	Date      Timestamp             `json:"Date"`
	Question  *string               `json:"Question"`
	Bill      *Document             `json:"Bill"`
	Committee *Committee            `json:"Committee"`
	Vote      []CommitteeVoteRecord `json:"Vote"`
}

func (v *CommitteeVote) Kind() string { return KindCommitteeVote }

// Identity is the bill identity and the vote time.
func (v *CommitteeVote) Identity() (string, error) {
	if v.Bill == nil {
		return "", unavailable(KindCommitteeVote, "has no bill")
	}
	bill, err := v.Bill.Identity()
	if err != nil {
		return "", fmt.Errorf("committee vote bill: %w", err)
	}
	return bill + "-" + v.Date.ISO(), nil
}

func (v *CommitteeVote) Fields() entity.Fields { return entity.Fields{} }

func (v *CommitteeVote) Children() []entity.Entity {
	return children(nil).
		add(v.Bill, v.Bill != nil).
		add(v.Committee, v.Committee != nil)
}

// Validate requires the vote date.
func (v *CommitteeVote) Validate() error {
	if v.Date.IsZero() {
		return fmt.Errorf("committee vote without date")
	}
	return nil
}

// errNoDocumentKey reports a document with neither a bill nor a docket number.
var errNoDocumentKey = errors.New("document has no bill or docket number")

// getByBillOrDocket fetches /api/Documents/{key}/{resource}, trying the bill
// number first and the docket number once if that fails with a status. It
// reports false when neither key yields the resource; the failure has been
// logged by then.
func getByBillOrDocket(ctx context.Context, env *crawl.Env, d *Document, resource string, v any) (bool, error) {
	identity, _ := d.Identity()
	resourceURL := func(key string) string {
		return env.URL(fmt.Sprintf("/api/Documents/%s/%s", url.PathEscape(key), resource))
	}

	if d.BillNumber == "" && d.DocketNumber == "" {
		env.Record(fetcher.Entry{
			Kind:     KindDocument,
			Identity: identity,
			URL:      resourceURL(""),
			Message:  errNoDocumentKey.Error(),
		})
		return false, nil
	}

	keys := make([]string, 0, 2)
	if d.BillNumber != "" {
		keys = append(keys, d.BillNumber)
	}
	if d.DocketNumber != "" {
		keys = append(keys, d.DocketNumber)
	}
	for i, key := range keys {
		err := env.Upstream.GetJSON(ctx, fetcher.Request{
			URL:      resourceURL(key),
			Kind:     KindDocument,
			Identity: identity,
			// Only the last attempt is logged.
			Silent: i < len(keys)-1,
		}, v)
		if err == nil {
			return true, nil
		}
		if _, ok := fetcher.StatusOf(err); !ok {
			return false, err
		}
	}
	return false, nil
}

func fetchSimilar(ctx context.Context, env *crawl.Env, d *Document) error {
	var similar entity.List[*Document]
	found, err := getByBillOrDocket(ctx, env, d, "Similar", &similar)
	if err != nil {
		return err
	}
	if !found || similar == nil {
		similar = entity.List[*Document]{}
	}
	d.Similar.Set(similar)
	return nil
}

func fetchDocumentHistory(ctx context.Context, env *crawl.Env, d *Document) error {
	var history []DocumentHistoryAction
	found, err := getByBillOrDocket(ctx, env, d, "DocumentHistoryActions", &history)
	if err != nil {
		return err
	}
	if !found || history == nil {
		history = []DocumentHistoryAction{}
	}
	d.DocumentHistory.Set(history)
	return nil
}
