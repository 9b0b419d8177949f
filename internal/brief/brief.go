// Package brief renders the daily Markdown brief into the Obsidian vault and
// reads recent briefs back as context.
package brief

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"intelbrief.app/brief/internal/domain"
	"intelbrief.app/brief/internal/model"
)

const (
	LayoutFull    = "full"
	LayoutSummary = "summary"

	dateLayout = "2006-01-02"
	timeLayout = "15:04"

	rawDataHeading = "## Raw Data"
)

type frontmatter struct {
	Date        string   `yaml:"date"`
	GeneratedAt string   `yaml:"generated_at"`
	Sources     []string `yaml:"sources"`
	RunID       int64    `yaml:"run_id,omitempty"`
}

type Writer struct {
	dir    string
	layout string
	now    func() time.Time
}

func NewWriter(dir, layout string) *Writer {
	if layout == "" {
		layout = LayoutFull
	}
	return &Writer{dir: dir, layout: layout, now: time.Now}
}

func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

// Path returns the brief file for the given day.
func (w *Writer) Path(day time.Time) string {
	return filepath.Join(w.dir, day.Format(dateLayout)+".md")
}

// Write renders today's brief and atomically replaces any earlier one for
// the same date.
func (w *Writer) Write(ctx context.Context, summary string, results model.Results, runID int64) (string, error) {
	now := w.now()
	path := w.Path(now)

	content, err := w.render(now, summary, results, runID)
	if err != nil {
		return "", domain.NewWriteError("render_brief", err)
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", domain.NewWriteError("create_output_dir", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(content)); err != nil {
		return "", domain.NewWriteError("write_brief", err)
	}

	slog.InfoContext(ctx, "brief written", "path", path, "layout", w.layout, "bytes", len(content))
	return path, nil
}

func (w *Writer) render(now time.Time, summary string, results model.Results, runID int64) ([]byte, error) {
	date := now.Format(dateLayout)
	clock := now.Format(timeLayout)

	sources := make([]string, 0, len(results))
	for _, s := range results.Sources() {
		sources = append(sources, string(s))
	}

	fm, err := yaml.Marshal(frontmatter{
		Date:        date,
		GeneratedAt: clock,
		Sources:     sources,
		RunID:       runID,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# Intel Brief — %s\n\n", date)

	if w.layout == LayoutSummary {
		b.WriteString(stripLeadingH1(summary))
		b.WriteString("\n")
		return []byte(b.String()), nil
	}

	b.WriteString(strings.TrimSpace(summary))
	b.WriteString("\n\n---\n\n")
	b.WriteString(rawDataHeading + "\n\n")
	fmt.Fprintf(&b, "*Fetched at %s, totals: %s*\n", clock, totals(results))

	for _, sr := range results {
		block, err := rawBlock(sr)
		if err != nil {
			return nil, err
		}
		b.WriteString("\n")
		b.WriteString(block)
	}

	return []byte(b.String()), nil
}

func totals(results model.Results) string {
	parts := make([]string, 0, len(results))
	for _, sr := range results {
		parts = append(parts, fmt.Sprintf("%s %d", sr.Source, len(sr.Updates)))
	}
	return strings.Join(parts, ", ")
}

func rawBlock(sr model.SourceResult) (string, error) {
	updates := sr.Updates
	if updates == nil {
		updates = []model.Update{}
	}
	data, err := json.MarshalIndent(updates, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding %s updates: %w", sr.Source, err)
	}
	return fmt.Sprintf("<details>\n<summary>%s (%d items)</summary>\n\n```json\n%s\n```\n\n</details>\n",
		label(sr.Source), len(sr.Updates), data), nil
}

// label turns a source name into a display label ("google_cal" -> "Google Cal").
func label(source model.Source) string {
	words := strings.Split(string(source), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// stripLeadingH1 drops a top-level heading the model echoed despite being
// told not to.
func stripLeadingH1(summary string) string {
	s := strings.TrimSpace(summary)
	if strings.HasPrefix(s, "# ") {
		_, rest, _ := strings.Cut(s, "\n")
		s = strings.TrimSpace(rest)
	}
	return s
}
