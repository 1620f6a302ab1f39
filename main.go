package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/its-the-vibe/JiraBolt/internal/collector"
	"github.com/its-the-vibe/JiraBolt/internal/logger"
	"github.com/its-the-vibe/JiraBolt/internal/pipeline"
	"github.com/its-the-vibe/JiraBolt/internal/slackapi"
	"github.com/its-the-vibe/JiraBolt/internal/summarizer"
	"github.com/its-the-vibe/JiraBolt/internal/telemetry"
	"github.com/its-the-vibe/JiraBolt/internal/tracker"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

// run returns the process exit status: 128+signal after a signal-driven
// shutdown, 1 when the event source fails.
func run() int {
	config := loadConfig()

	// Initialize logger with configured level
	logger.Setup(os.Stdout, config.Env == "production")
	SetLogLevel(config.LogLevel)

	if missing := config.missingRequired(); len(missing) > 0 {
		Fatal("Missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if config.EventSource != eventSourceSocketMode && config.EventSource != eventSourceRedis {
		Fatal("EVENT_SOURCE must be %q or %q, got %q", eventSourceSocketMode, eventSourceRedis, config.EventSource)
	}

	settings, err := loadSettings(config.SettingsFile)
	if err != nil {
		Fatal("Failed to load bot settings: %v", err)
	}

	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		Warn("Unknown TIMEZONE %q, using UTC: %v", config.Timezone, err)
		loc = time.UTC
	}

	reporter, err := telemetry.NewSentry(telemetry.Config{
		DSN:         config.SentryDSN,
		Environment: config.SentryEnvironment,
		Release:     version,
	})
	if err != nil {
		Fatal("Failed to initialise Sentry: %v", err)
	}

	// Setup Slack client
	slackOpts := []slack.Option{}
	if config.SlackAppToken != "" {
		slackOpts = append(slackOpts, slack.OptionAppLevelToken(config.SlackAppToken))
	}
	slackClient := slack.New(config.SlackBotToken, slackOpts...)
	chat := slackapi.New(slackClient)
	roster := slackapi.NewRoster(chat, config.RosterTTL)

	jira, err := tracker.New(tracker.Config{
		BaseURL:  config.AtlassianBaseURL,
		Username: config.AtlassianUser,
		APIKey:   config.AtlassianAPIKey,
	})
	if err != nil {
		Fatal("Failed to create Jira client: %v", err)
	}

	p := pipeline.New(pipeline.Deps{
		Chat:      chat,
		Collector: collector.New(chat, roster),
		Summarizer: summarizer.New(summarizer.Config{
			BaseURL:    config.LaaSBaseURL,
			Path:       config.LaaSPresetPath,
			Project:    config.LaaSProject,
			APIKey:     config.LaaSAPIKey,
			PresetHash: config.LaaSPresetHash,
			Timeout:    config.LaaSTimeout,
		}),
		Resolver: tracker.NewResolver(roster, chat, jira, tracker.IdentityMap{
			Overrides: settings.IdentityOverrides,
			Default:   settings.DefaultAccountID,
		}),
		Tracker:  jira,
		Reporter: reporter,
	}, pipeline.Settings{
		Triggers:     settings.Triggers,
		LoadingEmoji: settings.LoadingEmoji,
		Workspace:    config.SlackWorkspace,
		GuideURL:     settings.GuideURL,
		Fields: tracker.FieldConfig{
			ProjectKey:       settings.ProjectKey,
			EnvironmentField: settings.EnvironmentField,
			BugPropertyField: settings.BugPropertyField,
		},
		Location: loc,
	})
	workers := pipeline.NewWorkers(p, reporter, config.MaxWorkers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := roster.RefreshAll(ctx); err != nil {
			Warn("Initial roster load failed, will retry on first lookup: %v", err)
			return
		}
		Info("Loaded %d Slack users", roster.Len())
	}()

	var health *http.Server
	if config.HealthAddr != "" {
		health = newHealthServer(config.HealthAddr, workers, roster)
		go func() {
			if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				Error("Health server stopped: %v", err)
			}
		}()
	}

	sourceErr := make(chan error, 1)
	switch config.EventSource {
	case eventSourceRedis:
		// Setup Redis client
		rdb := redis.NewClient(&redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       0,
		})
		defer rdb.Close()

		// Test Redis connection
		if err := rdb.Ping(ctx).Err(); err != nil {
			Fatal("Failed to connect to Redis: %v", err)
		}
		Info("Connected to Redis")

		go subscribeToReactions(ctx, rdb, workers, config)
		go subscribeToMemberJoins(ctx, rdb, roster, config)
	default:
		sm := socketmode.New(slackClient)
		go func() { sourceErr <- runSocketMode(ctx, sm, workers, roster) }()
	}

	Info("JiraBolt %s started (event source: %s)", version, config.EventSource)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		Info("Received %s, draining %d in-flight runs...", sig, workers.InFlight())
		if s, ok := sig.(syscall.Signal); ok {
			exitCode = 128 + int(s)
		}
	case err := <-sourceErr:
		Error("Event source stopped: %v", err)
		exitCode = 1
	}

	// Drain before closing the chat connection so runs can still post.
	// Without SHUTDOWN_TIMEOUT the drain waits for every run.
	drainCtx := context.Background()
	if config.ShutdownTimeout > 0 {
		var cancelDrain context.CancelFunc
		drainCtx, cancelDrain = context.WithTimeout(drainCtx, config.ShutdownTimeout)
		defer cancelDrain()
	}
	if err := workers.Shutdown(drainCtx); err != nil {
		Warn("Shutdown deadline reached: %v", err)
	}
	cancel()

	if health != nil {
		healthCtx, cancelHealth := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelHealth()
		if err := health.Shutdown(healthCtx); err != nil {
			Warn("Health server shutdown: %v", err)
		}
	}
	reporter.Flush(5 * time.Second)

	Info("Shutting down...")
	return exitCode
}
