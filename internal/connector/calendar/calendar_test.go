package calendar_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"intelbrief.app/brief/core/config"
	"intelbrief.app/brief/internal/connector/calendar"
	"intelbrief.app/brief/internal/domain"
	"intelbrief.app/brief/internal/model"
)

type fakeCreds struct {
	err error
}

func (f fakeCreds) TokenSource(context.Context) (oauth2.TokenSource, error) {
	if f.err != nil {
		return nil, f.err
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "ya29"}), nil
}

const eventsJSON = `{"items": [
	{
		"summary": "Standup",
		"start": {"dateTime": "2024-04-05T19:00:00Z"},
		"end": {"dateTime": "2024-04-05T19:15:00Z"},
		"attendees": [
			{"email": "me@acme.io", "self": true},
			{"email": "grace@acme.io", "displayName": "Grace"},
			{"email": "ada@acme.io"}
		],
		"location": "Room 1",
		"description": "<b>Agenda</b> below",
		"organizer": {"email": "grace@acme.io", "displayName": "Grace"}
	},
	{
		"start": {"date": "2024-04-05"},
		"end": {"date": "2024-04-06"}
	}
]}`

var _ = Describe("Connector", func() {
	var (
		ctx     context.Context
		server  *httptest.Server
		handler http.HandlerFunc
		cfg     config.CalendarConfig
		window  model.Window
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
		DeferCleanup(server.Close)

		cfg = config.CalendarConfig{MaxResults: 20, Horizon: "work_week", CalendarID: "primary"}
		friday := time.Date(2024, 4, 5, 18, 0, 0, 0, time.UTC)
		window = model.NewWindow(friday.Add(-24*time.Hour), friday)
	})

	newConnector := func(creds fakeCreds) *calendar.Connector {
		return calendar.New(cfg, creds,
			option.WithEndpoint(server.URL+"/"),
			option.WithHTTPClient(server.Client()))
	}

	It("lists events until the end of the work week", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/calendars/primary/events"))
			q := r.URL.Query()
			Expect(q.Get("timeMin")).To(Equal("2024-04-05T18:00:00Z"))
			Expect(q.Get("timeMax")).To(Equal("2024-04-05T23:59:59Z"))
			Expect(q.Get("singleEvents")).To(Equal("true"))
			Expect(q.Get("orderBy")).To(Equal("startTime"))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, eventsJSON)
		}

		updates, err := newConnector(fakeCreds{}).FetchUpdates(ctx, window)
		Expect(err).NotTo(HaveOccurred())
		Expect(updates).To(HaveLen(2))

		Expect(updates[0].Fields).To(Equal(map[string]any{
			"title":       "Standup",
			"start":       "2024-04-05T19:00:00Z",
			"end":         "2024-04-05T19:15:00Z",
			"attendees":   []string{"Grace", "ada@acme.io"},
			"location":    "Room 1",
			"description": "Agenda below",
			"organizer":   "Grace",
		}))
		Expect(updates[1].Get("title")).To(Equal("(No title)"))
		Expect(updates[1].Get("start")).To(Equal("2024-04-05"))
	})

	It("looks 24 hours ahead with the next_24h horizon", func() {
		cfg.Horizon = "next_24h"
		handler = func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Query().Get("timeMax")).To(Equal("2024-04-06T18:00:00Z"))
			fmt.Fprint(w, `{"items": []}`)
		}

		updates, err := newConnector(fakeCreds{}).FetchUpdates(ctx, window)
		Expect(err).NotTo(HaveOccurred())
		Expect(updates).To(BeEmpty())
	})

	It("follows page tokens up to the cap", func() {
		cfg.MaxResults = 3
		handler = func(w http.ResponseWriter, r *http.Request) {
			next := `, "nextPageToken": "p2"`
			if r.URL.Query().Get("pageToken") == "p2" {
				Expect(r.URL.Query().Get("maxResults")).To(Equal("1"))
				next = ""
			}
			fmt.Fprintf(w, `{"items": [{"summary": "a"}, {"summary": "b"}]%s}`, next)
		}

		updates, err := newConnector(fakeCreds{}).FetchUpdates(ctx, window)
		Expect(err).NotTo(HaveOccurred())
		Expect(updates).To(HaveLen(3))
	})

	It("passes credential errors through unchanged", func() {
		setup := domain.NewSetupError("google", domain.ErrSetupRequired)
		_, err := newConnector(fakeCreds{err: setup}).FetchUpdates(ctx, window)
		Expect(err).To(MatchError(domain.ErrSetupRequired))
		Expect(domain.KindOf(err)).To(Equal(domain.KindSetup))
	})

	It("fails as a whole when listing fails", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}

		_, err := newConnector(fakeCreds{}).FetchUpdates(ctx, window)
		Expect(domain.KindOf(err)).To(Equal(domain.KindConnector))
	})
})
