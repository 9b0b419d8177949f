package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"intelbrief.app/brief/core/config"
	"intelbrief.app/brief/internal/connector"
	"intelbrief.app/brief/internal/model"
	"intelbrief.app/brief/internal/store"
)

const (
	listPageSize    = 200
	historyPageSize = 200
)

// API is the subset of *slack.Client the connector uses.
type API interface {
	GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
}

type Connector struct {
	api        API
	channels   []string
	maxResults int
	retries    int

	// channelIDs maps channel name to ID; users maps user ID to display name.
	// Both persist across runs.
	channelIDs *store.LookupCache
	users      *store.LookupCache
}

// New builds a connector backed by the Slack Web API. Without a token the
// connector fails every fetch with a setup error.
func New(cfg config.SlackConfig, channelIDs, users *store.LookupCache) *Connector {
	var api API
	if cfg.Enabled() {
		api = slack.New(cfg.Token)
	}
	return NewWithAPI(api, cfg, channelIDs, users)
}

func NewWithAPI(api API, cfg config.SlackConfig, channelIDs, users *store.LookupCache) *Connector {
	if channelIDs == nil {
		channelIDs = store.NewMemoryCache(nil)
	}
	if users == nil {
		users = store.NewMemoryCache(nil)
	}
	return &Connector{
		api:        api,
		channels:   cfg.Channels,
		maxResults: cfg.MaxResults,
		retries:    connector.DefaultRateLimitRetries,
		channelIDs: channelIDs,
		users:      users,
	}
}

func (c *Connector) Source() model.Source {
	return model.SourceSlack
}

func (c *Connector) FetchUpdates(ctx context.Context, window model.Window) ([]model.Update, error) {
	if c.api == nil {
		return nil, connector.MissingConfig(model.SourceSlack, errors.New("SLACK_USER_TOKEN is not set"))
	}
	if len(c.channels) == 0 {
		slog.InfoContext(ctx, "no slack channels configured")
		return []model.Update{}, nil
	}
	defer c.saveCaches(ctx)

	channelIDs, err := c.resolveChannels(ctx, c.channels)
	if err != nil {
		return nil, connector.Fail(model.SourceSlack, "list_channels", err)
	}

	oldest := formatTS(window.Since)
	updates := []model.Update{}

	for _, name := range c.channels {
		channelID, ok := channelIDs[name]
		if !ok {
			slog.WarnContext(ctx, "slack channel not found, removing from cache", "channel", name)
			c.channelIDs.Evict(name)
			continue
		}

		messages, err := c.history(ctx, channelID, oldest)
		if err != nil {
			if isStaleChannel(err) {
				c.channelIDs.Evict(name)
			}
			connector.Skip(ctx, model.SourceSlack, "history", err, "channel", name)
			continue
		}

		for _, msg := range messages {
			if msg.Type != "message" || msg.SubType != "" {
				continue
			}
			updates = append(updates, model.NewUpdate(model.SourceSlack, map[string]any{
				"channel":            "#" + name,
				"author":             c.username(ctx, msg.User),
				"text":               msg.Text,
				"timestamp":          parseTS(msg.Timestamp),
				"thread_reply_count": msg.ReplyCount,
			}))
		}
	}

	return updates, nil
}

// resolveChannels maps channel names to IDs. Cached names never hit the API;
// misses page through the channel list only until every one is found.
func (c *Connector) resolveChannels(ctx context.Context, names []string) (map[string]string, error) {
	found := make(map[string]string, len(names))
	missing := make(map[string]struct{})
	for _, name := range names {
		if id, ok := c.channelIDs.Get(name); ok {
			found[name] = id
			continue
		}
		missing[name] = struct{}{}
	}

	cursor := ""
	for len(missing) > 0 {
		params := &slack.GetConversationsParameters{
			Types:           []string{"public_channel", "private_channel"},
			Limit:           listPageSize,
			ExcludeArchived: true,
			Cursor:          cursor,
		}
		type page struct {
			channels []slack.Channel
			next     string
		}
		p, err := connector.CallWithRetry(ctx, c.retries, rateLimited, func() (page, error) {
			channels, next, err := c.api.GetConversationsContext(ctx, params)
			return page{channels: channels, next: next}, err
		})
		if err != nil {
			return nil, err
		}

		for _, ch := range p.channels {
			if _, want := missing[ch.Name]; want {
				found[ch.Name] = ch.ID
				c.channelIDs.Put(ch.Name, ch.ID)
				delete(missing, ch.Name)
			}
		}

		cursor = p.next
		if cursor == "" {
			break
		}
	}

	return found, nil
}

func (c *Connector) history(ctx context.Context, channelID, oldest string) ([]slack.Message, error) {
	var messages []slack.Message
	cursor := ""
	for {
		limit := min(historyPageSize, connector.Remaining(c.maxResults, len(messages)))
		if limit == 0 {
			break
		}
		params := &slack.GetConversationHistoryParameters{
			ChannelID: channelID,
			Oldest:    oldest,
			Limit:     limit,
			Cursor:    cursor,
		}
		resp, err := connector.CallWithRetry(ctx, c.retries, rateLimited, func() (*slack.GetConversationHistoryResponse, error) {
			return c.api.GetConversationHistoryContext(ctx, params)
		})
		if err != nil {
			// Keep what earlier pages returned; only a first-page failure
			// skips the channel.
			if len(messages) > 0 {
				connector.Skip(ctx, model.SourceSlack, "history_page", err, "channel_id", channelID)
				break
			}
			return nil, err
		}

		messages = append(messages, resp.Messages...)
		cursor = resp.ResponseMetaData.NextCursor
		if !resp.HasMore || cursor == "" {
			break
		}
	}

	if len(messages) > c.maxResults {
		messages = messages[:c.maxResults]
	}
	return messages, nil
}

// username resolves a user ID to a display name, consulting the persistent
// cache first. Failed lookups fall back to the ID and are not cached.
func (c *Connector) username(ctx context.Context, userID string) string {
	if userID == "" {
		return "unknown"
	}
	if name, ok := c.users.Get(userID); ok {
		return name
	}

	user, err := connector.CallWithRetry(ctx, c.retries, rateLimited, func() (*slack.User, error) {
		return c.api.GetUserInfoContext(ctx, userID)
	})
	if err != nil || user == nil {
		slog.DebugContext(ctx, "slack user lookup failed", "user_id", userID, "error", err)
		return userID
	}

	name := connector.FirstNonEmpty(user.Profile.DisplayName, user.RealName, userID)
	c.users.Put(userID, name)
	return name
}

func (c *Connector) saveCaches(ctx context.Context) {
	if err := c.channelIDs.Save(); err != nil {
		slog.WarnContext(ctx, "failed to save slack channel cache", "error", err)
	}
	if err := c.users.Save(); err != nil {
		slog.WarnContext(ctx, "failed to save slack user cache", "error", err)
	}
}

func rateLimited(err error) (time.Duration, bool) {
	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// isStaleChannel reports errors proving a cached channel ID no longer
// resolves for this token.
func isStaleChannel(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "channel_not_found") || strings.Contains(msg, "not_in_channel")
}

func formatTS(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}

// parseTS converts a Slack message ts ("1712345678.000200") to RFC 3339.
// Unparseable values are passed through.
func parseTS(ts string) string {
	secStr, fracStr, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return ts
	}
	var usec int64
	if fracStr != "" {
		fracStr = (fracStr + "000000")[:6]
		usec, _ = strconv.ParseInt(fracStr, 10, 64)
	}
	return time.Unix(sec, usec*1000).UTC().Format(time.RFC3339)
}
