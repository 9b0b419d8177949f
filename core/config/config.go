package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env      string `yaml:"-"`
	LogLevel string `yaml:"-"`
	StateDir string `yaml:"-"`

	LookbackHours           int    `yaml:"lookback_hours" validate:"gte=1"`
	ObsidianVaultPath       string `yaml:"obsidian_vault_path" validate:"required"`
	ObsidianOutputFolder    string `yaml:"obsidian_output_folder" validate:"required"`
	BriefLayout             string `yaml:"brief_layout" validate:"oneof=full summary"`
	ContextDays             int    `yaml:"context_days" validate:"gte=0,lte=31"`
	ConnectorTimeoutSeconds int    `yaml:"connector_timeout_seconds" validate:"gte=0"`
	IssueTracker            string `yaml:"issue_tracker" validate:"oneof=jira gitlab"`

	Slack      SlackConfig      `yaml:"slack"`
	Jira       JiraConfig       `yaml:"jira"`
	GitLab     GitLabConfig     `yaml:"gitlab"`
	Confluence ConfluenceConfig `yaml:"confluence"`
	Calendar   CalendarConfig   `yaml:"google_cal"`
	Gmail      GmailConfig      `yaml:"gmail"`
	Google     GoogleConfig     `yaml:"google"`
	Summarizer LLMConfig        `yaml:"summarizer"`

	OTel OTelConfig `yaml:"-"`
}

type SlackConfig struct {
	Channels   []string `yaml:"channels"`
	MaxResults int      `yaml:"max_results" validate:"gte=1"`
	Token      string   `yaml:"-"`
}

type JiraConfig struct {
	Projects   []string `yaml:"projects"`
	MaxResults int      `yaml:"max_results" validate:"gte=1"`
	BaseURL    string   `yaml:"-"`
	Email      string   `yaml:"-"`
	APIToken   string   `yaml:"-"`
}

type GitLabConfig struct {
	Projects   []string `yaml:"projects"`
	MaxResults int      `yaml:"max_results" validate:"gte=1"`
	BaseURL    string   `yaml:"-"`
	Token      string   `yaml:"-"`
}

type ConfluenceConfig struct {
	Spaces     []string `yaml:"spaces"`
	MaxResults int      `yaml:"max_results" validate:"gte=1"`
	BaseURL    string   `yaml:"-"`
	Email      string   `yaml:"-"`
	APIToken   string   `yaml:"-"`
}

type CalendarConfig struct {
	MaxResults int    `yaml:"max_results" validate:"gte=1"`
	Horizon    string `yaml:"horizon" validate:"oneof=work_week next_24h"`
	CalendarID string `yaml:"calendar_id"`
}

type GmailConfig struct {
	MaxResults int    `yaml:"max_results" validate:"gte=1"`
	Query      string `yaml:"query"`
}

// GoogleConfig locates the OAuth files shared by the calendar and gmail
// connectors.
type GoogleConfig struct {
	TokenPath       string `yaml:"token_path"`
	CredentialsPath string `yaml:"credentials_path"`
	Interactive     bool   `yaml:"interactive"`
}

type LLMConfig struct {
	Provider  string `yaml:"provider" validate:"oneof=anthropic openai"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens" validate:"gte=1"`
	APIKey    string `yaml:"-"`
	BaseURL   string `yaml:"-"`
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

const (
	LayoutFull    = "full"
	LayoutSummary = "summary"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the YAML config at path and overlays secrets from the
// environment. In development, a .env file in the working directory is
// loaded first.
func Load(path string) (Config, error) {
	if getEnv("INTEL_BRIEF_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config file not found at %s (copy config.example.yaml to get started)", path)
		}
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	return Parse(raw)
}

// Parse builds a Config from YAML bytes plus the environment.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	for _, path := range []*string{
		&cfg.ObsidianVaultPath,
		&cfg.Google.TokenPath,
		&cfg.Google.CredentialsPath,
	} {
		expanded, err := expandHome(*path)
		if err != nil {
			return Config{}, err
		}
		*path = expanded
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.LookbackHours, 24)
	setDefaultString(&c.ObsidianVaultPath, "~/Documents/ObsidianVault")
	setDefaultString(&c.ObsidianOutputFolder, "Intel Briefs")
	setDefaultString(&c.BriefLayout, LayoutFull)
	setDefaultString(&c.IssueTracker, "jira")

	setDefault(&c.Slack.MaxResults, 200)
	setDefault(&c.Jira.MaxResults, 100)
	setDefault(&c.GitLab.MaxResults, 100)
	setDefault(&c.Confluence.MaxResults, 50)
	setDefault(&c.Calendar.MaxResults, 20)
	setDefaultString(&c.Calendar.Horizon, "work_week")
	setDefaultString(&c.Calendar.CalendarID, "primary")
	setDefault(&c.Gmail.MaxResults, 50)

	setDefaultString(&c.Summarizer.Provider, "anthropic")
	setDefault(&c.Summarizer.MaxTokens, 4096)
}

func (c *Config) applyEnv() {
	c.Env = getEnv("INTEL_BRIEF_ENV", "development")
	c.LogLevel = getEnv("LOG_LEVEL", "")
	c.StateDir = getEnv("INTEL_BRIEF_STATE_DIR", defaultStateDir())

	c.Slack.Token = getEnv("SLACK_USER_TOKEN", "")

	atlassianURL := getEnv("ATLASSIAN_BASE_URL", "")
	atlassianEmail := getEnv("ATLASSIAN_EMAIL", "")
	jiraToken := getEnv("ATLASSIAN_API_TOKEN", "")

	c.Jira.BaseURL = atlassianURL
	c.Jira.Email = atlassianEmail
	c.Jira.APIToken = jiraToken

	c.Confluence.BaseURL = atlassianURL
	c.Confluence.Email = atlassianEmail
	c.Confluence.APIToken = getEnv("CONFLUENCE_API_TOKEN", jiraToken)

	c.GitLab.BaseURL = getEnv("GITLAB_BASE_URL", "")
	c.GitLab.Token = getEnv("GITLAB_TOKEN", "")

	if c.Google.TokenPath == "" {
		c.Google.TokenPath = filepath.Join(c.StateDir, "google_token.json")
	}
	if c.Google.CredentialsPath == "" {
		c.Google.CredentialsPath = filepath.Join(c.StateDir, "google_credentials.json")
	}

	switch c.Summarizer.Provider {
	case "openai":
		c.Summarizer.APIKey = getEnv("OPENAI_API_KEY", "")
	default:
		c.Summarizer.APIKey = getEnv("ANTHROPIC_API_KEY", "")
	}
	c.Summarizer.BaseURL = getEnv("LLM_BASE_URL", "")
	if model, ok := os.LookupEnv("LLM_MODEL"); ok {
		c.Summarizer.Model = model
	}
	if hours := getEnvInt("LOOKBACK_HOURS", 0); hours > 0 {
		c.LookbackHours = hours
	}

	c.OTel = OTelConfig{
		Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		ServiceName:    getEnv("OTEL_SERVICE_NAME", "intel-brief"),
		ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
	}
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c Config) StatePath() string {
	return filepath.Join(c.StateDir, "state.json")
}

func (c Config) ChannelCachePath() string {
	return filepath.Join(c.StateDir, "slack_channel_cache.json")
}

func (c Config) UserCachePath() string {
	return filepath.Join(c.StateDir, "slack_user_cache.json")
}

func (c Config) OutputDir() string {
	return filepath.Join(c.ObsidianVaultPath, c.ObsidianOutputFolder)
}

func (c Config) ConnectorTimeout() time.Duration {
	return time.Duration(c.ConnectorTimeoutSeconds) * time.Second
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c SlackConfig) Enabled() bool {
	return c.Token != ""
}

func (c JiraConfig) Enabled() bool {
	return c.BaseURL != "" && c.Email != "" && c.APIToken != ""
}

func (c ConfluenceConfig) Enabled() bool {
	return c.BaseURL != "" && c.Email != "" && c.APIToken != ""
}

func (c GitLabConfig) Enabled() bool {
	return c.Token != ""
}

func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && (c.Provider == "openai" || c.Provider == "anthropic")
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".intel-brief")
	}
	return filepath.Join(dir, "intel-brief")
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func setDefault(v *int, fallback int) {
	if *v == 0 {
		*v = fallback
	}
}

func setDefaultString(v *string, fallback string) {
	if *v == "" {
		*v = fallback
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
