package jira

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andygrunwald/go-jira"

	"intelbrief.app/brief/core/config"
	"intelbrief.app/brief/internal/connector"
	"intelbrief.app/brief/internal/model"
)

const (
	pageSize       = 50
	recentComments = 3
	jqlTimeLayout  = "2006-01-02 15:04"
)

var searchFields = []string{
	"summary", "status", "priority", "assignee", "reporter",
	"updated", "labels", "comment",
}

// Searcher is the subset of *jira.IssueService the connector uses.
type Searcher interface {
	SearchWithContext(ctx context.Context, jql string, options *jira.SearchOptions) ([]jira.Issue, *jira.Response, error)
}

type Connector struct {
	search     Searcher
	baseURL    string
	projects   []string
	maxResults int
	setupErr   error
}

// New builds a connector for Jira Cloud using basic auth with an API token.
func New(cfg config.JiraConfig) *Connector {
	if !cfg.Enabled() {
		return &Connector{setupErr: errors.New("ATLASSIAN_BASE_URL, ATLASSIAN_EMAIL and ATLASSIAN_API_TOKEN must be set")}
	}

	tp := jira.BasicAuthTransport{Username: cfg.Email, Password: cfg.APIToken}
	client, err := jira.NewClient(tp.Client(), cfg.BaseURL)
	if err != nil {
		return &Connector{setupErr: fmt.Errorf("creating jira client: %w", err)}
	}
	return NewWithSearcher(client.Issue, cfg)
}

func NewWithSearcher(search Searcher, cfg config.JiraConfig) *Connector {
	return &Connector{
		search:     search,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		projects:   cfg.Projects,
		maxResults: cfg.MaxResults,
	}
}

func (c *Connector) Source() model.Source {
	return model.SourceJira
}

func (c *Connector) FetchUpdates(ctx context.Context, window model.Window) ([]model.Update, error) {
	if c.setupErr != nil {
		return nil, connector.MissingConfig(model.SourceJira, c.setupErr)
	}
	if len(c.projects) == 0 {
		return nil, connector.MissingConfig(model.SourceJira, errors.New("no jira projects configured"))
	}

	jql := buildJQL(c.projects, window.Since)
	updates := []model.Update{}
	startAt := 0

	for {
		limit := min(pageSize, connector.Remaining(c.maxResults, len(updates)))
		if limit == 0 {
			break
		}

		issues, resp, err := c.search.SearchWithContext(ctx, jql, &jira.SearchOptions{
			StartAt:    startAt,
			MaxResults: limit,
			Fields:     searchFields,
		})
		if err != nil {
			return nil, connector.Fail(model.SourceJira, "search", err)
		}

		for _, issue := range issues {
			updates = append(updates, c.normalize(issue))
		}

		startAt += len(issues)
		if len(issues) == 0 || resp == nil || startAt >= resp.Total {
			break
		}
	}

	if len(updates) > c.maxResults {
		updates = updates[:c.maxResults]
	}
	return updates, nil
}

func buildJQL(projects []string, since time.Time) string {
	quoted := make([]string, len(projects))
	for i, p := range projects {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	return fmt.Sprintf("project in (%s) AND updated >= %q ORDER BY updated DESC",
		strings.Join(quoted, ", "), since.UTC().Format(jqlTimeLayout))
}

func (c *Connector) normalize(issue jira.Issue) model.Update {
	fields := map[string]any{
		"key":             issue.Key,
		"summary":         "",
		"status":          "",
		"priority":        "",
		"assignee":        "Unassigned",
		"reporter":        "",
		"updated":         "",
		"labels":          []string{},
		"url":             fmt.Sprintf("%s/browse/%s", c.baseURL, issue.Key),
		"recent_comments": []map[string]any{},
	}

	f := issue.Fields
	if f == nil {
		return model.NewUpdate(model.SourceJira, fields)
	}

	fields["summary"] = f.Summary
	if f.Status != nil {
		fields["status"] = f.Status.Name
	}
	if f.Priority != nil {
		fields["priority"] = f.Priority.Name
	}
	if f.Assignee != nil && f.Assignee.DisplayName != "" {
		fields["assignee"] = f.Assignee.DisplayName
	}
	if f.Reporter != nil {
		fields["reporter"] = f.Reporter.DisplayName
	}
	if updated := time.Time(f.Updated); !updated.IsZero() {
		fields["updated"] = updated.Format(time.RFC3339)
	}
	if f.Labels != nil {
		fields["labels"] = f.Labels
	}
	if f.Comments != nil {
		fields["recent_comments"] = lastComments(f.Comments.Comments)
	}

	return model.NewUpdate(model.SourceJira, fields)
}

func lastComments(comments []*jira.Comment) []map[string]any {
	if len(comments) > recentComments {
		comments = comments[len(comments)-recentComments:]
	}
	out := make([]map[string]any, 0, len(comments))
	for _, cm := range comments {
		if cm == nil {
			continue
		}
		out = append(out, map[string]any{
			"author":  cm.Author.DisplayName,
			"body":    connector.Truncate(cm.Body, connector.CommentBodyLimit),
			"updated": connector.FirstNonEmpty(cm.Updated, cm.Created),
		})
	}
	return out
}
