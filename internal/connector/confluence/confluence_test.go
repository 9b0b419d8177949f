package confluence_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"intelbrief.app/brief/core/config"
	"intelbrief.app/brief/internal/connector/confluence"
	"intelbrief.app/brief/internal/domain"
	"intelbrief.app/brief/internal/model"
)

func pageJSON(id, title string) string {
	return fmt.Sprintf(`{
		"id": %q, "title": %q,
		"version": {"by": {"displayName": "Grace"}, "when": "2024-04-05T08:00:00.000Z"},
		"body": {"view": {"value": "<h1>Plan</h1><p>Ship &amp; measure</p>"}},
		"_links": {"webui": "/spaces/ENG/pages/%s"}
	}`, id, title, id)
}

var _ = Describe("Connector", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		handler  http.HandlerFunc
		cfg      config.ConfluenceConfig
		window   model.Window
		searches []string
	)

	BeforeEach(func() {
		ctx = context.Background()
		searches = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/rest/api/search") {
				searches = append(searches, r.URL.Query().Get("cql"))
			}
			handler(w, r)
		}))
		DeferCleanup(server.Close)

		cfg = config.ConfluenceConfig{
			Spaces:     []string{"ENG"},
			MaxResults: 50,
			BaseURL:    server.URL,
			Email:      "me@acme.io",
			APIToken:   "token",
		}
		now := time.Date(2024, 4, 5, 12, 0, 0, 0, time.UTC)
		window = model.NewWindow(now.Add(-24*time.Hour), now)
	})

	fetch := func() ([]model.Update, error) {
		return confluence.New(cfg, server.Client()).FetchUpdates(ctx, window)
	}

	It("formats the window start in UTC", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"results": [], "_links": {}}`)
		}
		local := time.FixedZone("CEST", 2*60*60)
		window = model.NewWindow(window.Since.In(local), window.Until.In(local))

		_, err := fetch()
		Expect(err).NotTo(HaveOccurred())
		Expect(searches).To(ConsistOf(ContainSubstring(`lastModified >= "2024-04-04 12:00"`)))
	})

	It("searches each space and normalizes page bodies", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			Expect(ok).To(BeTrue())
			Expect(user).To(Equal("me@acme.io"))
			Expect(pass).To(Equal("token"))

			switch r.URL.Path {
			case "/wiki/rest/api/search":
				fmt.Fprint(w, `{"results": [{"content": {"id": "42", "type": "page"}}], "_links": {}}`)
			case "/wiki/rest/api/content/42":
				Expect(r.URL.Query().Get("expand")).To(Equal("body.view,version"))
				fmt.Fprint(w, pageJSON("42", "Roadmap"))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}

		updates, err := fetch()
		Expect(err).NotTo(HaveOccurred())
		Expect(searches).To(ConsistOf(`space = "ENG" AND lastModified >= "2024-04-04 12:00" ORDER BY lastModified DESC`))
		Expect(updates).To(HaveLen(1))
		Expect(updates[0].Fields).To(Equal(map[string]any{
			"space":      "ENG",
			"title":      "Roadmap",
			"author":     "Grace",
			"updated_at": "2024-04-05T08:00:00.000Z",
			"url":        server.URL + "/wiki/spaces/ENG/pages/42",
			"content":    "Plan Ship & measure",
		}))
	})

	It("follows next links until the cap", func() {
		cfg.MaxResults = 3
		handler = func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/wiki/rest/api/search" && r.URL.Query().Get("cursor") == "":
				fmt.Fprint(w, `{"results": [{"content": {"id": "1"}}, {"content": {"id": "2"}}],
					"_links": {"next": "/rest/api/search?cursor=abc"}}`)
			case r.URL.Path == "/wiki/rest/api/search":
				fmt.Fprint(w, `{"results": [{"content": {"id": "3"}}, {"content": {"id": "4"}}],
					"_links": {"next": "/rest/api/search?cursor=def"}}`)
			case strings.HasPrefix(r.URL.Path, "/wiki/rest/api/content/"):
				id := strings.TrimPrefix(r.URL.Path, "/wiki/rest/api/content/")
				fmt.Fprint(w, pageJSON(id, "Page "+id))
			}
		}

		updates, err := fetch()
		Expect(err).NotTo(HaveOccurred())
		Expect(updates).To(HaveLen(3))
		Expect(searches).To(HaveLen(2))
	})

	It("skips a page whose detail fetch fails", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/wiki/rest/api/search":
				fmt.Fprint(w, `{"results": [{"content": {"id": "1"}}, {"content": {"id": "2"}}]}`)
			case "/wiki/rest/api/content/1":
				w.WriteHeader(http.StatusInternalServerError)
			default:
				fmt.Fprint(w, pageJSON("2", "Survivor"))
			}
		}

		updates, err := fetch()
		Expect(err).NotTo(HaveOccurred())
		Expect(updates).To(HaveLen(1))
		Expect(updates[0].Get("title")).To(Equal("Survivor"))
	})

	It("skips a failing space and continues with the next", func() {
		cfg.Spaces = []string{"GONE", "ENG"}
		handler = func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/wiki/rest/api/search" {
				if strings.Contains(r.URL.Query().Get("cql"), "GONE") {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				fmt.Fprint(w, `{"results": [{"content": {"id": "7"}}]}`)
				return
			}
			fmt.Fprint(w, pageJSON("7", "Kept"))
		}

		updates, err := fetch()
		Expect(err).NotTo(HaveOccurred())
		Expect(updates).To(HaveLen(1))
	})

	It("fails as a whole when credentials are rejected", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}

		updates, err := fetch()
		Expect(updates).To(BeNil())
		Expect(domain.KindOf(err)).To(Equal(domain.KindConnector))
	})

	It("reports a setup error without credentials", func() {
		cfg.APIToken = ""
		_, err := fetch()
		Expect(domain.KindOf(err)).To(Equal(domain.KindSetup))
	})
})
