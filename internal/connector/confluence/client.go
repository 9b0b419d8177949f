package confluence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxBodyBytes = 10 * 1024 * 1024

type searchResponse struct {
	Results []struct {
		Content struct {
			ID    string `json:"id"`
			Type  string `json:"type"`
			Title string `json:"title"`
		} `json:"content"`
	} `json:"results"`
	Links struct {
		Next string `json:"next"`
	} `json:"_links"`
}

type page struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Version struct {
		By struct {
			DisplayName string `json:"displayName"`
		} `json:"by"`
		When string `json:"when"`
	} `json:"version"`
	Body struct {
		View struct {
			Value string `json:"value"`
		} `json:"view"`
	} `json:"body"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

// StatusError is a non-2xx response from the REST API.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("confluence: http %d from %s", e.StatusCode, e.URL)
}

// Unauthorized reports whether the credentials were rejected.
func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// client talks to the Confluence Cloud REST API rooted at wikiRoot
// (https://<site>/wiki).
type client struct {
	http     *http.Client
	wikiRoot string
	email    string
	token    string
}

func newClient(httpClient *http.Client, baseURL, email, token string) *client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	root := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(root, "/wiki") {
		root += "/wiki"
	}
	return &client{http: httpClient, wikiRoot: root, email: email, token: token}
}

func (c *client) searchURL(cql string, limit int) string {
	q := url.Values{}
	q.Set("cql", cql)
	q.Set("limit", fmt.Sprint(limit))
	return c.wikiRoot + "/rest/api/search?" + q.Encode()
}

// resolve turns a _links path into an absolute URL under the wiki root.
func (c *client) resolve(link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return c.wikiRoot + link
}

func (c *client) search(ctx context.Context, rawURL string) (*searchResponse, error) {
	var resp searchResponse
	if err := c.getJSON(ctx, rawURL, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *client) page(ctx context.Context, id string) (*page, error) {
	q := url.Values{}
	q.Set("expand", "body.view,version")
	var p page
	if err := c.getJSON(ctx, c.wikiRoot+"/rest/api/content/"+url.PathEscape(id)+"?"+q.Encode(), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *client) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("confluence: new request: %w", err)
	}
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("confluence: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, URL: req.URL.Path}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("confluence: json decode: %w", err)
	}
	return nil
}
