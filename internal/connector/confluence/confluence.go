package confluence

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"intelbrief.app/brief/core/config"
	"intelbrief.app/brief/internal/connector"
	"intelbrief.app/brief/internal/model"
)

const (
	searchPageSize = 25
	cqlTimeLayout  = "2006-01-02 15:04"
)

type Connector struct {
	client     *client
	spaces     []string
	maxResults int
	setupErr   error
}

// New builds a connector against the Confluence Cloud site at cfg.BaseURL.
// httpClient may be nil.
func New(cfg config.ConfluenceConfig, httpClient *http.Client) *Connector {
	if !cfg.Enabled() {
		return &Connector{setupErr: errors.New("ATLASSIAN_BASE_URL, ATLASSIAN_EMAIL and CONFLUENCE_API_TOKEN must be set")}
	}
	return &Connector{
		client:     newClient(httpClient, cfg.BaseURL, cfg.Email, cfg.APIToken),
		spaces:     cfg.Spaces,
		maxResults: cfg.MaxResults,
	}
}

func (c *Connector) Source() model.Source {
	return model.SourceConfluence
}

// FetchUpdates searches each space for pages modified inside the window and
// fetches their rendered bodies. A failing space or page is skipped, but
// rejected credentials fail the connector.
func (c *Connector) FetchUpdates(ctx context.Context, window model.Window) ([]model.Update, error) {
	if c.setupErr != nil {
		return nil, connector.MissingConfig(model.SourceConfluence, c.setupErr)
	}

	updates := []model.Update{}
	since := window.Since.UTC().Format(cqlTimeLayout)

	for _, space := range c.spaces {
		cql := fmt.Sprintf("space = %q AND lastModified >= %q ORDER BY lastModified DESC", space, since)

		ids, err := c.searchSpace(ctx, cql)
		if err != nil {
			if unauthorized(err) {
				return nil, connector.Fail(model.SourceConfluence, "search", err)
			}
			connector.Skip(ctx, model.SourceConfluence, "search", err, "space", space)
			continue
		}

		for _, id := range ids {
			p, err := c.client.page(ctx, id)
			if err != nil {
				if unauthorized(err) {
					return nil, connector.Fail(model.SourceConfluence, "get_page", err)
				}
				connector.Skip(ctx, model.SourceConfluence, "get_page", err, "space", space, "page_id", id)
				continue
			}
			updates = append(updates, c.normalize(space, p))
		}
	}

	return updates, nil
}

// searchSpace returns matching page IDs, following next links until the
// per-space cap.
func (c *Connector) searchSpace(ctx context.Context, cql string) ([]string, error) {
	var ids []string
	next := c.client.searchURL(cql, min(searchPageSize, c.maxResults))

	for next != "" && len(ids) < c.maxResults {
		resp, err := c.client.search(ctx, next)
		if err != nil {
			// A later page failing keeps what earlier pages found.
			if len(ids) > 0 && !unauthorized(err) {
				connector.Skip(ctx, model.SourceConfluence, "search_page", err)
				break
			}
			return nil, err
		}

		for _, r := range resp.Results {
			if r.Content.ID == "" {
				continue
			}
			ids = append(ids, r.Content.ID)
		}

		next = ""
		if resp.Links.Next != "" {
			next = c.client.resolve(resp.Links.Next)
		}
	}

	if len(ids) > c.maxResults {
		ids = ids[:c.maxResults]
	}
	return ids, nil
}

func (c *Connector) normalize(space string, p *page) model.Update {
	url := ""
	if p.Links.WebUI != "" {
		url = c.client.resolve(p.Links.WebUI)
	}
	return model.NewUpdate(model.SourceConfluence, map[string]any{
		"space":      space,
		"title":      p.Title,
		"author":     p.Version.By.DisplayName,
		"updated_at": p.Version.When,
		"url":        url,
		"content":    connector.Truncate(connector.StripMarkup(p.Body.View.Value), connector.PageBodyLimit),
	})
}

func unauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Unauthorized()
}
