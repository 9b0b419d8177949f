package gitlab

import (
	"context"
	"errors"
	"fmt"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"intelbrief.app/brief/core/config"
	"intelbrief.app/brief/internal/connector"
	"intelbrief.app/brief/internal/model"
)

const (
	pageSize       = 100
	notesPageSize  = 20
	recentComments = 3
)

type Connector struct {
	client     *gitlab.Client
	projects   []string
	maxResults int
	setupErr   error
}

// New builds a connector for a GitLab instance. An empty base URL targets
// gitlab.com.
func New(cfg config.GitLabConfig) *Connector {
	if !cfg.Enabled() {
		return &Connector{setupErr: errors.New("GITLAB_TOKEN is not set")}
	}

	var opts []gitlab.ClientOptionFunc
	if cfg.BaseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(cfg.BaseURL))
	}
	client, err := gitlab.NewClient(cfg.Token, opts...)
	if err != nil {
		return &Connector{setupErr: fmt.Errorf("creating gitlab client: %w", err)}
	}
	return NewWithClient(client, cfg)
}

func NewWithClient(client *gitlab.Client, cfg config.GitLabConfig) *Connector {
	return &Connector{
		client:     client,
		projects:   cfg.Projects,
		maxResults: cfg.MaxResults,
	}
}

func (c *Connector) Source() model.Source {
	return model.SourceGitLab
}

// FetchUpdates lists issues updated inside the window across every project.
// A failing project is skipped; the connector only fails when all do.
func (c *Connector) FetchUpdates(ctx context.Context, window model.Window) ([]model.Update, error) {
	if c.setupErr != nil {
		return nil, connector.MissingConfig(model.SourceGitLab, c.setupErr)
	}
	if len(c.projects) == 0 {
		return nil, connector.MissingConfig(model.SourceGitLab, errors.New("no gitlab projects configured"))
	}

	updates := []model.Update{}
	var lastErr error
	failed := 0

	for _, project := range c.projects {
		remaining := connector.Remaining(c.maxResults, len(updates))
		if remaining == 0 {
			break
		}

		issues, err := c.listIssues(ctx, project, window.Since, remaining)
		if err != nil {
			connector.Skip(ctx, model.SourceGitLab, "list_issues", err, "project", project)
			lastErr = err
			failed++
			continue
		}

		for _, issue := range issues {
			updates = append(updates, c.normalize(ctx, project, issue))
		}
	}

	if failed == len(c.projects) {
		return nil, connector.Fail(model.SourceGitLab, "list_issues", lastErr)
	}
	return updates, nil
}

func (c *Connector) listIssues(ctx context.Context, project string, since time.Time, limit int) ([]*gitlab.Issue, error) {
	opt := &gitlab.ListProjectIssuesOptions{
		UpdatedAfter: gitlab.Ptr(since),
		OrderBy:      gitlab.Ptr("updated_at"),
		Sort:         gitlab.Ptr("desc"),
	}
	opt.PerPage = pageSize

	var issues []*gitlab.Issue
	for {
		page, resp, err := c.client.Issues.ListProjectIssues(project, opt, gitlab.WithContext(ctx))
		if err != nil {
			if len(issues) == 0 {
				return nil, err
			}
			connector.Skip(ctx, model.SourceGitLab, "list_issues_page", err, "project", project, "page", opt.Page)
			break
		}
		issues = append(issues, page...)

		if len(issues) >= limit || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	if len(issues) > limit {
		issues = issues[:limit]
	}
	return issues, nil
}

func (c *Connector) normalize(ctx context.Context, project string, issue *gitlab.Issue) model.Update {
	fields := map[string]any{
		"key":             fmt.Sprintf("%s#%d", project, issue.IID),
		"summary":         issue.Title,
		"status":          issue.State,
		"assignee":        "Unassigned",
		"reporter":        "",
		"updated":         "",
		"labels":          []string{},
		"url":             issue.WebURL,
		"recent_comments": []map[string]any{},
	}
	if issue.Assignee != nil && issue.Assignee.Name != "" {
		fields["assignee"] = issue.Assignee.Name
	}
	if issue.Author != nil {
		fields["reporter"] = issue.Author.Name
	}
	if issue.UpdatedAt != nil {
		fields["updated"] = issue.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if len(issue.Labels) > 0 {
		fields["labels"] = []string(issue.Labels)
	}

	comments, err := c.recentNotes(ctx, project, issue)
	if err != nil {
		connector.Skip(ctx, model.SourceGitLab, "list_notes", err, "issue", fields["key"])
	} else {
		fields["recent_comments"] = comments
	}

	return model.NewUpdate(model.SourceGitLab, fields)
}

// recentNotes returns the last few human-written notes, oldest first. It
// pages past system notes until enough are found or the notes run out.
func (c *Connector) recentNotes(ctx context.Context, project string, issue *gitlab.Issue) ([]map[string]any, error) {
	opt := &gitlab.ListIssueNotesOptions{
		OrderBy: gitlab.Ptr("created_at"),
		Sort:    gitlab.Ptr("desc"),
	}
	opt.PerPage = notesPageSize

	var picked []*gitlab.Note
	for len(picked) < recentComments {
		notes, resp, err := c.client.Notes.ListIssueNotes(project, issue.IID, opt, gitlab.WithContext(ctx))
		if err != nil {
			if len(picked) == 0 {
				return nil, err
			}
			connector.Skip(ctx, model.SourceGitLab, "list_notes_page", err, "issue", issue.IID, "page", opt.Page)
			break
		}
		for _, n := range notes {
			if n.System {
				continue
			}
			picked = append(picked, n)
			if len(picked) == recentComments {
				break
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	out := make([]map[string]any, 0, len(picked))
	for i := len(picked) - 1; i >= 0; i-- {
		n := picked[i]
		updated := ""
		switch {
		case n.UpdatedAt != nil:
			updated = n.UpdatedAt.UTC().Format(time.RFC3339)
		case n.CreatedAt != nil:
			updated = n.CreatedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, map[string]any{
			"author":  n.Author.Name,
			"body":    connector.Truncate(n.Body, connector.CommentBodyLimit),
			"updated": updated,
		})
	}
	return out, nil
}
