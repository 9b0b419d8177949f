package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"intelbrief.app/brief/core/config"
)

func setEnv(key, value string) {
	prev, had := os.LookupEnv(key)
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(func() {
		if had {
			_ = os.Setenv(key, prev)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

var _ = Describe("Config", func() {
	BeforeEach(func() {
		setEnv("INTEL_BRIEF_STATE_DIR", "/tmp/intel-brief-test")
		setEnv("INTEL_BRIEF_ENV", "test")
	})

	Describe("Parse", func() {
		It("applies defaults for omitted options", func() {
			cfg, err := config.Parse([]byte("obsidian_vault_path: /vault\n"))
			Expect(err).NotTo(HaveOccurred())

			Expect(cfg.LookbackHours).To(Equal(24))
			Expect(cfg.ObsidianOutputFolder).To(Equal("Intel Briefs"))
			Expect(cfg.BriefLayout).To(Equal(config.LayoutFull))
			Expect(cfg.IssueTracker).To(Equal("jira"))
			Expect(cfg.Slack.MaxResults).To(Equal(200))
			Expect(cfg.Jira.MaxResults).To(Equal(100))
			Expect(cfg.Confluence.MaxResults).To(Equal(50))
			Expect(cfg.Calendar.MaxResults).To(Equal(20))
			Expect(cfg.Calendar.Horizon).To(Equal("work_week"))
			Expect(cfg.Gmail.MaxResults).To(Equal(50))
			Expect(cfg.Summarizer.Provider).To(Equal("anthropic"))
			Expect(cfg.Summarizer.MaxTokens).To(Equal(4096))
		})

		It("reads connector scopes from the document", func() {
			cfg, err := config.Parse([]byte(`
lookback_hours: 48
obsidian_vault_path: /vault
slack:
  channels: [eng, data]
jira:
  projects: [DATA]
  max_results: 25
confluence:
  spaces: [ENG]
google_cal:
  horizon: next_24h
connector_timeout_seconds: 30
`))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.LookbackHours).To(Equal(48))
			Expect(cfg.Slack.Channels).To(Equal([]string{"eng", "data"}))
			Expect(cfg.Jira.Projects).To(Equal([]string{"DATA"}))
			Expect(cfg.Jira.MaxResults).To(Equal(25))
			Expect(cfg.Confluence.Spaces).To(Equal([]string{"ENG"}))
			Expect(cfg.Calendar.Horizon).To(Equal("next_24h"))
			Expect(cfg.ConnectorTimeout()).To(Equal(30 * time.Second))
		})

		It("overlays secrets from the environment", func() {
			setEnv("SLACK_USER_TOKEN", "xoxp-1")
			setEnv("ATLASSIAN_BASE_URL", "https://acme.atlassian.net")
			setEnv("ATLASSIAN_EMAIL", "me@acme.io")
			setEnv("ATLASSIAN_API_TOKEN", "jira-token")
			setEnv("ANTHROPIC_API_KEY", "sk-ant")

			cfg, err := config.Parse([]byte("obsidian_vault_path: /vault\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Slack.Enabled()).To(BeTrue())
			Expect(cfg.Jira.Enabled()).To(BeTrue())
			Expect(cfg.Confluence.APIToken).To(Equal("jira-token"))
			Expect(cfg.Summarizer.Enabled()).To(BeTrue())
		})

		It("places persisted files under the state dir", func() {
			cfg, err := config.Parse([]byte("obsidian_vault_path: /vault\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.StatePath()).To(Equal(filepath.Join("/tmp/intel-brief-test", "state.json")))
			Expect(cfg.Google.TokenPath).To(Equal(filepath.Join("/tmp/intel-brief-test", "google_token.json")))
			Expect(cfg.OutputDir()).To(Equal(filepath.Join("/vault", "Intel Briefs")))
		})

		It("expands a home-relative vault path", func() {
			home, err := os.UserHomeDir()
			Expect(err).NotTo(HaveOccurred())

			cfg, err := config.Parse([]byte("obsidian_vault_path: ~/Notes\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.ObsidianVaultPath).To(Equal(filepath.Join(home, "Notes")))
		})

		It("expands home-relative google credential paths", func() {
			home, err := os.UserHomeDir()
			Expect(err).NotTo(HaveOccurred())

			cfg, err := config.Parse([]byte(
				"google:\n  token_path: ~/.config/intel-brief/google_token.json\n" +
					"  credentials_path: ~/.config/intel-brief/google_credentials.json\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Google.TokenPath).To(Equal(filepath.Join(home, ".config/intel-brief/google_token.json")))
			Expect(cfg.Google.CredentialsPath).To(Equal(filepath.Join(home, ".config/intel-brief/google_credentials.json")))
		})

		DescribeTable("rejects invalid options",
			func(doc string) {
				_, err := config.Parse([]byte(doc))
				Expect(err).To(MatchError(ContainSubstring("invalid config")))
			},
			Entry("unknown layout", "brief_layout: poster\n"),
			Entry("unknown horizon", "google_cal:\n  horizon: fortnight\n"),
			Entry("unknown issue tracker", "issue_tracker: trello\n"),
			Entry("negative context days", "context_days: -1\n"),
		)

		It("rejects malformed YAML", func() {
			_, err := config.Parse([]byte("slack: [unterminated"))
			Expect(err).To(MatchError(ContainSubstring("parsing config")))
		})
	})

	Describe("Load", func() {
		It("explains a missing config file", func() {
			_, err := config.Load(filepath.Join(GinkgoT().TempDir(), "config.yaml"))
			Expect(err).To(MatchError(ContainSubstring("config file not found")))
		})
	})
})
