package brief

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadRecentContext returns the summaries of the previous days' briefs,
// oldest first, each under a "### <date>" heading. Today is excluded.
// Missing or malformed briefs are skipped.
func (w *Writer) LoadRecentContext(ctx context.Context, days int) string {
	if days <= 0 {
		return ""
	}

	today := w.now()
	var sections []string
	for i := days; i >= 1; i-- {
		day := today.AddDate(0, 0, -i)
		path := w.Path(day)

		raw, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				slog.WarnContext(ctx, "failed to read prior brief", "path", path, "error", err)
			}
			continue
		}

		summary, err := extractSummary(string(raw))
		if err != nil {
			slog.WarnContext(ctx, "skipping malformed prior brief", "path", path, "error", err)
			continue
		}
		sections = append(sections, fmt.Sprintf("### %s\n%s", day.Format(dateLayout), summary))
	}

	return strings.Join(sections, "\n\n")
}

// extractSummary strips the frontmatter, the title heading and the raw data
// appendix from a rendered brief.
func extractSummary(doc string) (string, error) {
	doc = strings.ReplaceAll(doc, "\r\n", "\n")
	if !strings.HasPrefix(doc, "---\n") {
		return "", errors.New("missing frontmatter")
	}

	fmRaw, body, ok := strings.Cut(strings.TrimPrefix(doc, "---\n"), "\n---\n")
	if !ok {
		return "", errors.New("unterminated frontmatter")
	}
	var fm frontmatter
	if err := yaml.Unmarshal([]byte(fmRaw), &fm); err != nil {
		return "", fmt.Errorf("parsing frontmatter: %w", err)
	}

	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "# ") {
		_, rest, _ := strings.Cut(body, "\n")
		body = rest
	}

	if idx := strings.Index(body, rawDataHeading); idx >= 0 {
		body = body[:idx]
		body = strings.TrimSpace(body)
		body = strings.TrimSuffix(body, "---")
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return "", errors.New("empty summary")
	}
	return body, nil
}
