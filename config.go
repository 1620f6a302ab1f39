package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/its-the-vibe/JiraBolt/internal/pipeline"
)

const (
	eventSourceSocketMode = "socketmode"
	eventSourceRedis      = "redis"
)

type Config struct {
	Env                      string
	EventSource              string
	RedisAddr                string
	RedisPassword            string
	RedisReactionChannel     string
	RedisMemberJoinedChannel string
	SlackBotToken            string
	SlackAppToken            string
	SlackWorkspace           string
	LaaSBaseURL              string
	LaaSPresetPath           string
	LaaSProject              string
	LaaSAPIKey               string
	LaaSPresetHash           string
	LaaSTimeout              time.Duration
	AtlassianBaseURL         string
	AtlassianUser            string
	AtlassianAPIKey          string
	SentryDSN                string
	SentryEnvironment        string
	RosterTTL                time.Duration
	MaxWorkers               int
	ShutdownTimeout          time.Duration
	HealthAddr               string
	Timezone                 string
	SettingsFile             string
	LogLevel                 string
}

func loadConfig() Config {
	if getEnv("JIRABOLT_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	return Config{
		Env:                      getEnv("JIRABOLT_ENV", "development"),
		EventSource:              getEnv("EVENT_SOURCE", eventSourceSocketMode),
		RedisAddr:                getEnv("REDIS_ADDR", "host.docker.internal:6379"),
		RedisPassword:            getEnv("REDIS_PASSWORD", ""),
		RedisReactionChannel:     getEnv("REDIS_REACTION_CHANNEL", "slack-relay-reaction-added"),
		RedisMemberJoinedChannel: getEnv("REDIS_MEMBER_JOINED_CHANNEL", "slack-relay-member-joined-channel"),
		SlackBotToken:            getEnv("SLACK_BOT_TOKEN", ""),
		SlackAppToken:            getEnv("SLACK_APP_TOKEN", ""),
		SlackWorkspace:           getEnv("SLACK_WORKSPACE", "wantedx.slack.com"),
		LaaSBaseURL:              getEnv("LAAS_BASE_URL", "https://api-laas.wanted.co.kr"),
		LaaSPresetPath:           getEnv("LAAS_PRESET_PATH", "/api/preset/chat/completions"),
		LaaSProject:              getEnv("LAAS_PROJECT", ""),
		LaaSAPIKey:               getEnv("LAAS_API_KEY", ""),
		LaaSPresetHash:           getEnv("LAAS_JIRA_HASH", ""),
		LaaSTimeout:              getEnvAsDuration("LAAS_TIMEOUT", "0"),
		AtlassianBaseURL:         getEnv("ATLASSIAN_BASE_URL", "https://wantedlab.atlassian.net"),
		AtlassianUser:            getEnv("ATLASSIAN_USER", ""),
		AtlassianAPIKey:          getEnv("ATLASSIAN_API_KEY", ""),
		SentryDSN:                getEnv("SENTRY_DSN", ""),
		SentryEnvironment:        getEnv("SENTRY_ENVIRONMENT", "production"),
		RosterTTL:                getEnvAsDuration("ROSTER_TTL", "24h"),
		MaxWorkers:               getEnvAsInt("MAX_WORKERS", "0"),
		ShutdownTimeout:          getEnvAsDuration("SHUTDOWN_TIMEOUT", "0"),
		HealthAddr:               getEnv("HEALTH_ADDR", ":8080"),
		Timezone:                 getEnv("TIMEZONE", "Asia/Seoul"),
		SettingsFile:             getEnv("BOT_SETTINGS_FILE", ""),
		LogLevel:                 getEnv("LOG_LEVEL", "INFO"),
	}
}

// missingRequired lists required variables that are unset.
func (c Config) missingRequired() []string {
	required := []struct {
		name  string
		value string
	}{
		{"SLACK_BOT_TOKEN", c.SlackBotToken},
		{"LAAS_PROJECT", c.LaaSProject},
		{"LAAS_API_KEY", c.LaaSAPIKey},
		{"LAAS_JIRA_HASH", c.LaaSPresetHash},
		{"ATLASSIAN_USER", c.AtlassianUser},
		{"ATLASSIAN_API_KEY", c.AtlassianAPIKey},
		{"SENTRY_DSN", c.SentryDSN},
	}
	if c.EventSource == eventSourceSocketMode {
		required = append(required, struct {
			name  string
			value string
		}{"SLACK_APP_TOKEN", c.SlackAppToken})
	}

	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}
	return missing
}

// BotSettings holds the non-secret tables of a deployment. Fields left
// empty in the settings file keep their built-in defaults.
type BotSettings struct {
	Triggers          []pipeline.Trigger `yaml:"triggers"`
	LoadingEmoji      string             `yaml:"loading_emoji"`
	ProjectKey        string             `yaml:"project_key"`
	EnvironmentField  string             `yaml:"environment_field"`
	BugPropertyField  string             `yaml:"bug_property_field"`
	IdentityOverrides map[string]string  `yaml:"identity_overrides"`
	DefaultAccountID  string             `yaml:"default_account_id"`
	GuideURL          string             `yaml:"guide_url"`
}

func defaultSettings() BotSettings {
	return BotSettings{
		Triggers:         []pipeline.Trigger{{Emoji: "pi_jira_gen", WholeThread: true}},
		LoadingEmoji:     "loading",
		ProjectKey:       "PI",
		EnvironmentField: "customfield_10106",
		BugPropertyField: "customfield_10177",
		IdentityOverrides: map[string]string{
			"U015NAVJQTF": "5b08578531fcef2607e2a842",
		},
		DefaultAccountID: "557058:f58131cb-b67d-43c7-b30d-6b58d40bd077",
		GuideURL:         "https://wantedlab.atlassian.net/wiki/spaces/QA/pages/82576189",
	}
}

func loadSettings(path string) (BotSettings, error) {
	if path == "" {
		return defaultSettings(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return BotSettings{}, fmt.Errorf("reading settings file: %w", err)
	}
	return parseSettings(data)
}

func parseSettings(data []byte) (BotSettings, error) {
	var s BotSettings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return BotSettings{}, fmt.Errorf("parsing settings file: %w", err)
	}

	d := defaultSettings()
	if len(s.Triggers) == 0 {
		s.Triggers = d.Triggers
	}
	if s.LoadingEmoji == "" {
		s.LoadingEmoji = d.LoadingEmoji
	}
	if s.ProjectKey == "" {
		s.ProjectKey = d.ProjectKey
	}
	if s.EnvironmentField == "" {
		s.EnvironmentField = d.EnvironmentField
	}
	if s.BugPropertyField == "" {
		s.BugPropertyField = d.BugPropertyField
	}
	if s.IdentityOverrides == nil {
		s.IdentityOverrides = d.IdentityOverrides
	}
	if s.DefaultAccountID == "" {
		s.DefaultAccountID = d.DefaultAccountID
	}
	if s.GuideURL == "" {
		s.GuideURL = d.GuideURL
	}
	for i, t := range s.Triggers {
		if t.Emoji == "" {
			return BotSettings{}, fmt.Errorf("trigger %d has no emoji", i)
		}
	}
	return s, nil
}

func getEnvAsDuration(key, defaultValue string) time.Duration {
	val := getEnv(key, defaultValue)
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	d, err := time.ParseDuration(defaultValue)
	if err != nil {
		log.Printf("Unable to parse %s=%q as duration; defaulting to 0", key, val)
		return 0
	}
	log.Printf("Unable to parse %s=%q as duration; using default %s", key, val, d)
	return d
}

func getEnvAsInt(key, defaultValue string) int {
	val := os.Getenv(key)
	if val == "" {
		val = defaultValue
	}
	if i, err := strconv.Atoi(val); err == nil {
		return i
	}
	// If parsing fails, try to parse the default value
	if i, err := strconv.Atoi(defaultValue); err == nil {
		log.Printf("Unable to parse %s=%q as int; using default %d", key, val, i)
		return i
	}
	log.Printf("Unable to parse %s=%q as int; defaulting to 0", key, val)
	return 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
