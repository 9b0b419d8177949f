package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"intelbrief.app/brief/common/llm"
	"intelbrief.app/brief/core/config"
	"intelbrief.app/brief/internal/auth"
	"intelbrief.app/brief/internal/brief"
	"intelbrief.app/brief/internal/connector"
	"intelbrief.app/brief/internal/connector/calendar"
	"intelbrief.app/brief/internal/connector/confluence"
	"intelbrief.app/brief/internal/connector/gitlab"
	"intelbrief.app/brief/internal/connector/gmail"
	"intelbrief.app/brief/internal/connector/jira"
	"intelbrief.app/brief/internal/connector/slack"
	"intelbrief.app/brief/internal/domain"
	"intelbrief.app/brief/internal/pipeline"
	"intelbrief.app/brief/internal/store"
	"intelbrief.app/brief/internal/summarizer"
)

func runBrief(ctx context.Context, configPath string) error {
	ctx, stop := signalContext(ctx)
	defer stop()

	cfg, cleanup, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if !cfg.Summarizer.Enabled() {
		return domain.NewSetupError("summarizer", errors.New("ANTHROPIC_API_KEY (or OPENAI_API_KEY with provider openai) is not set"))
	}
	client, err := llm.New(llm.Config{
		Provider: cfg.Summarizer.Provider,
		APIKey:   cfg.Summarizer.APIKey,
		BaseURL:  cfg.Summarizer.BaseURL,
		Model:    cfg.Summarizer.Model,
	})
	if err != nil {
		return domain.NewSetupError("summarizer", err)
	}

	slog.InfoContext(ctx, "intel brief starting",
		"env", cfg.Env,
		"issue_tracker", cfg.IssueTracker,
		"model", client.Model(),
		"output_dir", cfg.OutputDir())

	writer := brief.NewWriter(cfg.OutputDir(), cfg.BriefLayout)
	runState := store.NewRunStateStore(cfg.StatePath(), time.Duration(cfg.LookbackHours)*time.Hour)

	orchestrator := pipeline.New(
		pipeline.Config{
			ContextDays:      cfg.ContextDays,
			ConnectorTimeout: cfg.ConnectorTimeout(),
		},
		buildConnectors(ctx, cfg, auth.NewProvider(cfg.Google)),
		summarizer.New(client, cfg.Summarizer.MaxTokens),
		writer,
		runState,
	)

	outcome, err := orchestrator.Run(ctx)
	if err != nil {
		return fmt.Errorf("run %d: %w", outcome.RunID, err)
	}

	slog.InfoContext(ctx, "run finished",
		"run_id", outcome.RunID,
		"state", outcome.State(),
		"updates", outcome.Results.Total(),
		"brief", outcome.BriefPath)
	return nil
}

// buildConnectors returns the connectors in the order they run: chat, issue
// tracker, wiki, calendar, email.
func buildConnectors(ctx context.Context, cfg config.Config, google connector.Credentials) []connector.Connector {
	channelIDs := store.LoadLookupCache(ctx, cfg.ChannelCachePath())
	users := store.LoadLookupCache(ctx, cfg.UserCachePath())

	var tracker connector.Connector
	switch cfg.IssueTracker {
	case "gitlab":
		tracker = gitlab.New(cfg.GitLab)
	default:
		tracker = jira.New(cfg.Jira)
	}

	return []connector.Connector{
		slack.New(cfg.Slack, channelIDs, users),
		tracker,
		confluence.New(cfg.Confluence, nil),
		calendar.New(cfg.Calendar, google),
		gmail.New(cfg.Gmail, google),
	}
}
