package legislature

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/JakeFAU/malegislature-crawler/internal/crawl"
	"github.com/JakeFAU/malegislature-crawler/internal/entity"
	"github.com/JakeFAU/malegislature-crawler/internal/fetcher"
)

// City is a municipality with legislation filed on its behalf.
type City struct {
	Name      string                               `json:"name"`
	Documents entity.Field[entity.List[*Document]] `json:"documents,omitzero"`
}

func (c *City) Kind() string { return KindCity }

func (c *City) Identity() (string, error) {
	if c.Name == "" {
		return "", unavailable(KindCity, "has no name")
	}
	return c.Name, nil
}

func (c *City) Fields() entity.Fields { return entity.Fields{"documents": &c.Documents} }

func (c *City) Children() []entity.Entity {
	return children(nil).lazy(&c.Documents)
}

// decodeCity builds a City from one element of the supported cities list,
// which is a bare string.
func decodeCity(raw json.RawMessage) (entity.Entity, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return nil, fmt.Errorf("city name: %w", err)
	}
	return &City{Name: name}, nil
}

// fetchCityDocuments lists the documents filed for the city. Cities the API
// rejects or does not know get an empty list.
func fetchCityDocuments(ctx context.Context, env *crawl.Env, c *City) error {
	var docs entity.List[*Document]
	err := env.Upstream.GetJSON(ctx, fetcher.Request{
		URL:      env.URL("/api/Cities/" + url.PathEscape(c.Name) + "/Documents"),
		Kind:     KindCity,
		Identity: c.Name,
	}, &docs)
	if status, ok := fetcher.StatusOf(err); ok && (status == http.StatusBadRequest || status == http.StatusNotFound) {
		docs, err = nil, nil
	}
	if err != nil {
		return err
	}
	if docs == nil {
		docs = entity.List[*Document]{}
	}
	c.Documents.Set(docs)
	return nil
}
