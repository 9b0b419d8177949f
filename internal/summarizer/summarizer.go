package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"intelbrief.app/brief/common/llm"
	"intelbrief.app/brief/common/logger"
	"intelbrief.app/brief/internal/domain"
	"intelbrief.app/brief/internal/model"
)

const (
	// MaxPayloadChars bounds the serialized update data sent to the model.
	MaxPayloadChars = 150_000
	truncatedMarker = "\n\n[... truncated due to volume ...]"
)

type Summarizer struct {
	client    llm.Client
	maxTokens int
}

func New(client llm.Client, maxTokens int) *Summarizer {
	return &Summarizer{client: client, maxTokens: maxTokens}
}

// Summarize turns the run's updates into brief prose. Every failure is a
// summarization error and ends the run.
func (s *Summarizer) Summarize(ctx context.Context, results model.Results, windowHours float64, priorContext string) (string, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "summarizer"})

	payload, err := BuildPayload(results)
	if err != nil {
		return "", domain.NewSummarizationError(fmt.Errorf("encoding updates: %w", err))
	}

	req := llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   BuildUserPrompt(payload, windowHours, priorContext),
		MaxTokens:    s.maxTokens,
	}

	slog.InfoContext(ctx, "requesting summary",
		"model", s.client.Model(),
		"updates", results.Total(),
		"payload_chars", utf8.RuneCountInString(payload))

	resp, err := s.client.Complete(ctx, req)
	if err != nil {
		return "", domain.NewSummarizationError(err)
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", domain.NewSummarizationError(llm.ErrEmptyResponse)
	}
	if resp.FinishReason == "length" {
		slog.WarnContext(ctx, "summary hit the token limit", "max_tokens", s.maxTokens)
	}

	slog.InfoContext(ctx, "summary received",
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens)

	return summary, nil
}

// BuildPayload serializes updates grouped by source as indented JSON,
// truncated to MaxPayloadChars characters plus a marker.
func BuildPayload(results model.Results) (string, error) {
	raw, err := json.MarshalIndent(results.BySource(), "", "  ")
	if err != nil {
		return "", err
	}
	return truncatePayload(string(raw)), nil
}

func truncatePayload(s string) string {
	if utf8.RuneCountInString(s) <= MaxPayloadChars {
		return s
	}
	return string([]rune(s)[:MaxPayloadChars]) + truncatedMarker
}

func BuildUserPrompt(payload string, windowHours float64, priorContext string) string {
	prior := ""
	if strings.TrimSpace(priorContext) != "" {
		prior = fmt.Sprintf(priorContextTemplate, priorContext)
	}
	return fmt.Sprintf(userPromptTemplate, strconv.FormatFloat(windowHours, 'f', 1, 64), prior, payload)
}
