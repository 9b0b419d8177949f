package brief_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	"intelbrief.app/brief/internal/brief"
	"intelbrief.app/brief/internal/domain"
	"intelbrief.app/brief/internal/model"
)

func sampleResults() model.Results {
	return model.Results{
		{Source: model.SourceSlack, Updates: []model.Update{
			model.NewUpdate(model.SourceSlack, map[string]any{"channel": "#eng", "text": "deploy done"}),
		}},
		{Source: model.SourceJira, Err: errors.New("401")},
		{Source: model.SourceCalendar, Updates: []model.Update{}},
	}
}

func frontmatterOf(doc string) map[string]any {
	ExpectWithOffset(1, doc).To(HavePrefix("---\n"))
	raw, _, ok := strings.Cut(strings.TrimPrefix(doc, "---\n"), "\n---\n")
	ExpectWithOffset(1, ok).To(BeTrue())
	var fm map[string]any
	ExpectWithOffset(1, yaml.Unmarshal([]byte(raw), &fm)).To(Succeed())
	return fm
}

var _ = Describe("Writer", func() {
	var (
		ctx context.Context
		dir string
		now time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = filepath.Join(GinkgoT().TempDir(), "Intel Briefs")
		now = time.Date(2024, 4, 5, 9, 30, 0, 0, time.Local)
	})

	newWriter := func(layout string) *brief.Writer {
		return brief.NewWriter(dir, layout).WithClock(func() time.Time { return now })
	}

	read := func(path string) string {
		raw, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		return string(raw)
	}

	It("writes the full layout with frontmatter and raw data", func() {
		path, err := newWriter(brief.LayoutFull).Write(ctx, "## Priorities\n- ship", sampleResults(), 42)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(filepath.Join(dir, "2024-04-05.md")))

		doc := read(path)
		fm := frontmatterOf(doc)
		Expect(fm["generated_at"]).To(Equal("09:30"))
		Expect(fm["sources"]).To(Equal([]any{"slack", "jira", "google_cal"}))
		Expect(fm["run_id"]).To(Equal(42))

		Expect(doc).To(ContainSubstring("# Intel Brief — 2024-04-05\n\n## Priorities\n- ship\n\n---\n\n## Raw Data"))
		Expect(doc).To(ContainSubstring("totals: slack 1, jira 0, google_cal 0"))
		Expect(doc).To(ContainSubstring("<summary>Slack (1 items)</summary>"))
		Expect(doc).To(ContainSubstring("<summary>Google Cal (0 items)</summary>"))
		Expect(doc).To(ContainSubstring(`"text": "deploy done"`))
		Expect(doc).To(ContainSubstring("```json\n[]\n```"))
	})

	It("writes only the summary in the summary layout and drops an echoed title", func() {
		path, err := newWriter(brief.LayoutSummary).Write(ctx, "# Daily Brief\n\n## Priorities\n- ship", sampleResults(), 1)
		Expect(err).NotTo(HaveOccurred())

		doc := read(path)
		Expect(doc).To(HaveSuffix("# Intel Brief — 2024-04-05\n\n## Priorities\n- ship\n"))
		Expect(doc).NotTo(ContainSubstring("Daily Brief"))
		Expect(doc).NotTo(ContainSubstring("Raw Data"))
	})

	It("overwrites an earlier brief for the same day", func() {
		w := newWriter(brief.LayoutSummary)
		_, err := w.Write(ctx, "first", sampleResults(), 1)
		Expect(err).NotTo(HaveOccurred())
		path, err := w.Write(ctx, "second", sampleResults(), 2)
		Expect(err).NotTo(HaveOccurred())

		doc := read(path)
		Expect(doc).To(ContainSubstring("second"))
		Expect(doc).NotTo(ContainSubstring("first"))

		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
	})

	It("reports write errors", func() {
		blocker := filepath.Join(GinkgoT().TempDir(), "file")
		Expect(os.WriteFile(blocker, []byte("x"), 0o644)).To(Succeed())

		_, err := brief.NewWriter(filepath.Join(blocker, "sub"), brief.LayoutFull).Write(ctx, "s", sampleResults(), 1)
		Expect(domain.KindOf(err)).To(Equal(domain.KindWrite))
		Expect(domain.IsFatal(err)).To(BeTrue())
	})
})

var _ = Describe("LoadRecentContext", func() {
	var (
		ctx context.Context
		dir string
		now time.Time
		w   *brief.Writer
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		now = time.Date(2024, 4, 5, 9, 30, 0, 0, time.Local)
		w = brief.NewWriter(dir, brief.LayoutFull).WithClock(func() time.Time { return now })
	})

	writeDay := func(day time.Time, summary string) {
		_, err := brief.NewWriter(dir, brief.LayoutFull).
			WithClock(func() time.Time { return day }).
			Write(ctx, summary, sampleResults(), 1)
		Expect(err).NotTo(HaveOccurred())
	}

	It("returns nothing when disabled", func() {
		writeDay(now.AddDate(0, 0, -1), "yesterday")
		Expect(w.LoadRecentContext(ctx, 0)).To(BeEmpty())
	})

	It("returns prior summaries oldest first without raw data or today", func() {
		writeDay(now.AddDate(0, 0, -2), "two days ago")
		writeDay(now.AddDate(0, 0, -1), "yesterday")
		writeDay(now, "today")

		got := w.LoadRecentContext(ctx, 3)
		Expect(got).To(Equal("### 2024-04-03\ntwo days ago\n\n### 2024-04-04\nyesterday"))
		Expect(got).NotTo(ContainSubstring("Raw Data"))
		Expect(got).NotTo(ContainSubstring("deploy done"))
	})

	It("skips missing and malformed briefs", func() {
		writeDay(now.AddDate(0, 0, -1), "yesterday")
		Expect(os.WriteFile(filepath.Join(dir, "2024-04-03.md"), []byte("no frontmatter here"), 0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "2024-04-02.md"), []byte("---\ndate: [unclosed\n---\n\n# Intel Brief\n\nbody"), 0o644)).To(Succeed())

		Expect(w.LoadRecentContext(ctx, 5)).To(Equal("### 2024-04-04\nyesterday"))
	})

	It("reads briefs written in the summary layout", func() {
		_, err := brief.NewWriter(dir, brief.LayoutSummary).
			WithClock(func() time.Time { return now.AddDate(0, 0, -1) }).
			Write(ctx, "short form", sampleResults(), 1)
		Expect(err).NotTo(HaveOccurred())

		Expect(w.LoadRecentContext(ctx, 1)).To(Equal("### 2024-04-04\nshort form"))
	})
})
