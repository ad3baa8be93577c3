package legislature

import (
	"strconv"

	"github.com/JakeFAU/malegislature-crawler/internal/entity"
)

// lawCode identifies a General Laws part, chapter or section by its code,
// falling back to the Details link.
func lawCode(kind, code, details string) (string, error) {
	if id := firstNonEmpty(code, details); id != "" {
		return id, nil
	}
	return "", unavailable(kind, "has no code or details link")
}

// GeneralLawPart is one of the five parts of the General Laws.
type GeneralLawPart struct {
	Code    string `json:"Code,omitempty"`
	Details string `json:"Details,omitempty"`

	Name         entity.Field[string]                          `json:"Name,omitzero"`
	FirstChapter entity.Field[int]                             `json:"FirstChapter,omitzero"`
	LastChapter  entity.Field[int]                             `json:"LastChapter,omitzero"`
	Chapters     entity.Field[entity.List[*GeneralLawChapter]] `json:"Chapters,omitzero"`
}

func (p *GeneralLawPart) Kind() string              { return KindGeneralLawPart }
func (p *GeneralLawPart) Identity() (string, error) { return lawCode(KindGeneralLawPart, p.Code, p.Details) }
func (p *GeneralLawPart) DetailURL() string         { return detailURL(p.Details) }

func (p *GeneralLawPart) Fields() entity.Fields {
	return entity.Fields{
		"Name":         &p.Name,
		"FirstChapter": &p.FirstChapter,
		"LastChapter":  &p.LastChapter,
		"Chapters":     &p.Chapters,
	}
}

func (p *GeneralLawPart) Children() []entity.Entity {
	return children(nil).lazy(&p.Chapters)
}

// GeneralLawChapter is a chapter of the General Laws.
type GeneralLawChapter struct {
	Code    string `json:"Code,omitempty"`
	Details string `json:"Details,omitempty"`

	Name         entity.Field[string]                          `json:"Name,omitzero"`
	IsRepealed   entity.Field[bool]                            `json:"IsRepealed,omitzero"`
	StrickenText entity.Field[string]                          `json:"StrickenText,omitzero"`
	Part         entity.Field[*GeneralLawPart]                 `json:"Part,omitzero"`
	Sections     entity.Field[entity.List[*GeneralLawSection]] `json:"Sections,omitzero"`
}

func (c *GeneralLawChapter) Kind() string { return KindGeneralLawChapter }

func (c *GeneralLawChapter) Identity() (string, error) {
	return lawCode(KindGeneralLawChapter, c.Code, c.Details)
}

func (c *GeneralLawChapter) DetailURL() string { return detailURL(c.Details) }

func (c *GeneralLawChapter) Fields() entity.Fields {
	return entity.Fields{
		"Name":         &c.Name,
		"IsRepealed":   &c.IsRepealed,
		"StrickenText": &c.StrickenText,
		"Part":         &c.Part,
		"Sections":     &c.Sections,
	}
}

func (c *GeneralLawChapter) Children() []entity.Entity {
	return children(nil).lazy(&c.Part, &c.Sections)
}

// GeneralLawSection is a section of a General Laws chapter.
type GeneralLawSection struct {
	Code        string `json:"Code,omitempty"`
	ChapterCode string `json:"ChapterCode,omitempty"`
	Details     string `json:"Details,omitempty"`

	Name       entity.Field[string]             `json:"Name,omitzero"`
	IsRepealed entity.Field[bool]               `json:"IsRepealed,omitzero"`
	Text       entity.Field[string]             `json:"Text,omitzero"`
	Chapter    entity.Field[*GeneralLawChapter] `json:"Chapter,omitzero"`
	Part       entity.Field[*GeneralLawPart]    `json:"Part,omitzero"`
}

func (s *GeneralLawSection) Kind() string { return KindGeneralLawSection }

func (s *GeneralLawSection) Identity() (string, error) {
	return lawCode(KindGeneralLawSection, s.Code, s.Details)
}

func (s *GeneralLawSection) DetailURL() string { return detailURL(s.Details) }

func (s *GeneralLawSection) Fields() entity.Fields {
	return entity.Fields{
		"Name":       &s.Name,
		"IsRepealed": &s.IsRepealed,
		"Text":       &s.Text,
		"Chapter":    &s.Chapter,
		"Part":       &s.Part,
	}
}

func (s *GeneralLawSection) Children() []entity.Entity {
	return children(nil).lazy(&s.Chapter, &s.Part)
}

// SessionLaw is an act or resolve passed in a given year.
type SessionLaw struct {
	Year          int       `json:"Year"`
	ChapterNumber string    `json:"ChapterNumber,omitempty"`
	Type          *string   `json:"Type"`
	ApprovalType  *string   `json:"ApprovalType"`
	Title         string    `json:"Title,omitempty"`
	Status        *string   `json:"Status"`
	ApprovedDate  *string   `json:"ApprovedDate"`
	ChapterText   *string   `json:"ChapterText"`
	OriginBill    *Document `json:"OriginBill"`
}

func (s *SessionLaw) Kind() string { return KindSessionLaw }

// Identity is the year and chapter number, or the title when unnumbered.
func (s *SessionLaw) Identity() (string, error) {
	if s.ChapterNumber != "" {
		return strconv.Itoa(s.Year) + "-" + s.ChapterNumber, nil
	}
	if s.Title != "" {
		return s.Title, nil
	}
	return "", unavailable(KindSessionLaw, "has no chapter number or title")
}

func (s *SessionLaw) Fields() entity.Fields { return entity.Fields{} }

func (s *SessionLaw) Children() []entity.Entity {
	return children(nil).add(s.OriginBill, s.OriginBill != nil)
}
