package gmail

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"intelbrief.app/brief/core/config"
	"intelbrief.app/brief/internal/connector"
	"intelbrief.app/brief/internal/model"
)

const (
	user        = "me"
	maxPageSize = 500
	baseQuery   = "-category:promotions -category:social"
)

var metadataHeaders = []string{"Subject", "From", "Date", "To"}

type Connector struct {
	creds      connector.Credentials
	query      string
	maxResults int
	opts       []option.ClientOption
}

func New(cfg config.GmailConfig, creds connector.Credentials, opts ...option.ClientOption) *Connector {
	return &Connector{
		creds:      creds,
		query:      cfg.Query,
		maxResults: cfg.MaxResults,
		opts:       opts,
	}
}

func (c *Connector) Source() model.Source {
	return model.SourceGmail
}

// FetchUpdates lists messages received since the window start, skipping
// promotions and social mail, and fetches each one's headers. A message
// whose headers cannot be fetched is skipped.
func (c *Connector) FetchUpdates(ctx context.Context, window model.Window) ([]model.Update, error) {
	ts, err := c.creds.TokenSource(ctx)
	if err != nil {
		return nil, err
	}

	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, c.opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, connector.Fail(model.SourceGmail, "new_service", err)
	}

	ids, err := c.listMessages(ctx, svc, buildQuery(window.Since, c.query))
	if err != nil {
		return nil, connector.Fail(model.SourceGmail, "list_messages", err)
	}

	updates := make([]model.Update, 0, len(ids))
	for _, id := range ids {
		msg, err := svc.Users.Messages.Get(user, id).
			Format("metadata").
			MetadataHeaders(metadataHeaders...).
			Context(ctx).
			Do()
		if err != nil {
			connector.Skip(ctx, model.SourceGmail, "get_message", err, "message_id", id)
			continue
		}
		updates = append(updates, normalize(msg))
	}
	return updates, nil
}

func buildQuery(since time.Time, extra string) string {
	q := fmt.Sprintf("after:%d %s", since.Unix(), baseQuery)
	if extra = strings.TrimSpace(extra); extra != "" {
		q += " " + extra
	}
	return q
}

func (c *Connector) listMessages(ctx context.Context, svc *gmail.Service, query string) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		limit := min(maxPageSize, connector.Remaining(c.maxResults, len(ids)))
		if limit == 0 {
			break
		}

		call := svc.Users.Messages.List(user).Q(query).MaxResults(int64(limit)).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, err
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	if len(ids) > c.maxResults {
		ids = ids[:c.maxResults]
	}
	return ids, nil
}

func normalize(msg *gmail.Message) model.Update {
	headers := map[string]string{}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			headers[h.Name] = h.Value
		}
	}

	return model.NewUpdate(model.SourceGmail, map[string]any{
		"subject": connector.FirstNonEmpty(headers["Subject"], "(No subject)"),
		"from":    headers["From"],
		"to":      headers["To"],
		"date":    headers["Date"],
		"snippet": connector.Truncate(html.UnescapeString(msg.Snippet), connector.EmailSnippetLimit),
	})
}
