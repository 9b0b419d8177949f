package calendar

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"intelbrief.app/brief/core/config"
	"intelbrief.app/brief/internal/connector"
	"intelbrief.app/brief/internal/model"
)

const maxPageSize = 250

type Connector struct {
	creds      connector.Credentials
	calendarID string
	horizon    model.Horizon
	maxResults int
	opts       []option.ClientOption
}

// New builds a calendar connector. opts are appended to the client options
// after the token source.
func New(cfg config.CalendarConfig, creds connector.Credentials, opts ...option.ClientOption) *Connector {
	return &Connector{
		creds:      creds,
		calendarID: cfg.CalendarID,
		horizon:    model.Horizon(cfg.Horizon),
		maxResults: cfg.MaxResults,
		opts:       opts,
	}
}

func (c *Connector) Source() model.Source {
	return model.SourceCalendar
}

// FetchUpdates lists upcoming events. The calendar looks forward from the
// end of the run window rather than back over it.
func (c *Connector) FetchUpdates(ctx context.Context, window model.Window) ([]model.Update, error) {
	ahead, err := model.ForwardWindow(window.Until, c.horizon)
	if err != nil {
		return nil, connector.MissingConfig(model.SourceCalendar, err)
	}

	ts, err := c.creds.TokenSource(ctx)
	if err != nil {
		return nil, err
	}

	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, c.opts...)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, connector.Fail(model.SourceCalendar, "new_service", err)
	}

	events, err := c.listEvents(ctx, svc, ahead)
	if err != nil {
		return nil, connector.Fail(model.SourceCalendar, "list_events", err)
	}

	updates := make([]model.Update, 0, len(events))
	for _, ev := range events {
		updates = append(updates, normalize(ev))
	}
	return updates, nil
}

func (c *Connector) listEvents(ctx context.Context, svc *calendar.Service, ahead model.Window) ([]*calendar.Event, error) {
	var events []*calendar.Event
	pageToken := ""
	for {
		limit := min(maxPageSize, connector.Remaining(c.maxResults, len(events)))
		if limit == 0 {
			break
		}

		call := svc.Events.List(c.calendarID).
			TimeMin(ahead.Since.Format(time.RFC3339)).
			TimeMax(ahead.Until.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(int64(limit)).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("listing events: %w", err)
		}
		events = append(events, resp.Items...)

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	if len(events) > c.maxResults {
		events = events[:c.maxResults]
	}
	return events, nil
}

func normalize(ev *calendar.Event) model.Update {
	attendees := []string{}
	for _, a := range ev.Attendees {
		if a == nil || a.Self {
			continue
		}
		attendees = append(attendees, connector.FirstNonEmpty(a.DisplayName, a.Email))
	}

	organizer := ""
	if ev.Organizer != nil {
		organizer = connector.FirstNonEmpty(ev.Organizer.DisplayName, ev.Organizer.Email)
	}

	return model.NewUpdate(model.SourceCalendar, map[string]any{
		"title":       connector.FirstNonEmpty(ev.Summary, "(No title)"),
		"start":       eventTime(ev.Start),
		"end":         eventTime(ev.End),
		"attendees":   attendees,
		"location":    ev.Location,
		"description": connector.Truncate(connector.StripMarkup(ev.Description), connector.CalendarDescriptionLimit),
		"organizer":   organizer,
	})
}

// eventTime prefers the timed value and falls back to the all-day date.
func eventTime(t *calendar.EventDateTime) string {
	if t == nil {
		return ""
	}
	return connector.FirstNonEmpty(t.DateTime, t.Date)
}
