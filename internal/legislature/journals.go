package legislature

import (
	"fmt"

	"github.com/JakeFAU/malegislature-crawler/internal/entity"
)

// journalIdentity prefers the Details link, then court, session date and the
// joint-session flag.
func journalIdentity(kind, details string, court int, sessionDate string, joint bool) (string, error) {
	if details != "" {
		return details, nil
	}
	if sessionDate == "" {
		return "", unavailable(kind, "has no details link or session date")
	}
	flag := "0"
	if joint {
		flag = "1"
	}
	return fmt.Sprintf("%d-%s-%s", court, sessionDate, flag), nil
}

// HouseJournal is one day's House journal. Listings carry every field.
type HouseJournal struct {
	GeneralCourtNumber int        `json:"GeneralCourtNumber"`
	JournalSessionDate string     `json:"JournalSessionDate,omitempty"`
	IsJoint            bool       `json:"IsJoint"`
	Details            string     `json:"Details,omitempty"`
	DownloadURL        *string    `json:"DownloadUrl"`
	SessionDate        *Timestamp `json:"SessionDate"`
	RollCallRange      *string    `json:"RollCallRange"`
}

func (j *HouseJournal) Kind() string { return KindHouseJournal }

func (j *HouseJournal) Identity() (string, error) {
	return journalIdentity(KindHouseJournal, j.Details, j.GeneralCourtNumber, j.JournalSessionDate, j.IsJoint)
}

func (j *HouseJournal) Fields() entity.Fields { return entity.Fields{} }

// SenateJournal is one day's Senate journal. The download link and session
// date come from the detail endpoint.
type SenateJournal struct {
	GeneralCourtNumber int    `json:"GeneralCourtNumber"`
	JournalSessionDate string `json:"JournalSessionDate,omitempty"`
	IsJoint            bool   `json:"IsJoint"`
	Details            string `json:"Details,omitempty"`

	DownloadURL entity.Field[string]    `json:"DownloadUrl,omitzero"`
	SessionDate entity.Field[Timestamp] `json:"SessionDate,omitzero"`
}

func (j *SenateJournal) Kind() string { return KindSenateJournal }

func (j *SenateJournal) Identity() (string, error) {
	return journalIdentity(KindSenateJournal, j.Details, j.GeneralCourtNumber, j.JournalSessionDate, j.IsJoint)
}

func (j *SenateJournal) DetailURL() string { return detailURL(j.Details) }

func (j *SenateJournal) Fields() entity.Fields {
	return entity.Fields{"DownloadUrl": &j.DownloadURL, "SessionDate": &j.SessionDate}
}

// Report is a report filed with the clerks.
type Report struct {
	Date        Timestamp `json:"Date"`
	Name        *string   `json:"Name"`
	SubmittedBy *string   `json:"SubmittedBy"`
	DownloadURL *string   `json:"DownloadUrl"`
}

func (r *Report) Kind() string { return KindReport }

// Identity is the filing date. Reports filed the same day share a record.
func (r *Report) Identity() (string, error) {
	if r.Date.IsZero() {
		return "", unavailable(KindReport, "has no date")
	}
	return r.Date.Date(), nil
}

func (r *Report) Fields() entity.Fields { return entity.Fields{} }

// Validate requires the filing date.
func (r *Report) Validate() error {
	if r.Date.IsZero() {
		return fmt.Errorf("report without date")
	}
	return nil
}
