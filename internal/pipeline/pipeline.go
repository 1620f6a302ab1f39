package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"

	"github.com/its-the-vibe/JiraBolt/internal/collector"
	"github.com/its-the-vibe/JiraBolt/internal/logger"
	"github.com/its-the-vibe/JiraBolt/internal/summarizer"
	"github.com/its-the-vibe/JiraBolt/internal/telemetry"
	"github.com/its-the-vibe/JiraBolt/internal/tracker"
)

// Chat is the chat platform surface a run talks to.
type Chat interface {
	ReactionCount(ctx context.Context, channel, ts, name string) (int, error)
	AddReaction(ctx context.Context, channel, ts, name string) error
	RemoveReaction(ctx context.Context, channel, ts, name string) error
	PostThreadReply(ctx context.Context, channel, threadTS, fallback string, blocks []slack.Block) error
	PostDirect(ctx context.Context, userID, fallback string, blocks []slack.Block) error
}

type ThreadCollector interface {
	Collect(ctx context.Context, channel, ts string, wholeThread bool) (collector.Transcript, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, t collector.Transcript, loc *time.Location) (summarizer.IssueDraft, error)
}

type Resolver interface {
	Resolve(ctx context.Context, reporterChatID, assigneeChatID string) tracker.Participants
}

type Tracker interface {
	CreateIssue(ctx context.Context, fields map[string]any) (tracker.CreatedIssue, error)
	AddAttachment(ctx context.Context, issueKey, name string, data []byte) error
	BrowseURL(key string) string
}

// Settings are the deployment-specific knobs of a run.
type Settings struct {
	Triggers     []Trigger
	LoadingEmoji string
	Workspace    string
	GuideURL     string
	Fields       tracker.FieldConfig
	Location     *time.Location
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Chat       Chat
	Collector  ThreadCollector
	Summarizer Summarizer
	Resolver   Resolver
	Tracker    Tracker
	Reporter   telemetry.Reporter
}

type Pipeline struct {
	deps     Deps
	settings Settings
}

func New(deps Deps, settings Settings) *Pipeline {
	if deps.Reporter == nil {
		deps.Reporter = telemetry.Nop{}
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &Pipeline{deps: deps, settings: settings}
}

// Wants reports whether ev names a configured trigger. Events it rejects
// cause no further calls.
func (p *Pipeline) Wants(ev ReactionEvent) bool {
	_, ok := MatchTrigger(p.settings.Triggers, ev.Reaction)
	return ok
}

// Handle runs one event to completion. A nil error means either the issue
// was filed or the event was not a trigger. Every abort has already been
// explained to the reacting user.
func (p *Pipeline) Handle(ctx context.Context, ev ReactionEvent) error {
	trig, ok := MatchTrigger(p.settings.Triggers, ev.Reaction)
	if !ok {
		return nil
	}

	log := logger.With("run_id", uuid.NewString(), "channel", ev.Channel, "ts", ev.TS, "user", ev.UserID)
	log.Info("Handling trigger reaction", "reaction", ev.Reaction, "whole_thread", trig.WholeThread)
	start := time.Now()

	if p.settings.LoadingEmoji != "" {
		if err := p.deps.Chat.AddReaction(ctx, ev.Channel, ev.TS, p.settings.LoadingEmoji); err != nil {
			log.Warn("Failed to add loading reaction", "error", err)
		}
		defer func() {
			// Clean up even when the run was cancelled.
			cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := p.deps.Chat.RemoveReaction(cleanup, ev.Channel, ev.TS, p.settings.LoadingEmoji); err != nil {
				log.Debug("Failed to remove loading reaction", "error", err)
			}
		}()
	}

	key, err := p.run(ctx, log, ev, trig)
	p.report(log, ev, err)
	if err == nil {
		log.Info("Issue created", "issue", key, "elapsed", time.Since(start).Round(time.Millisecond))
	}
	return err
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, ev ReactionEvent, trig Trigger) (string, error) {
	link := ThreadLink(p.settings.Workspace, ev.Channel, ev.TS)

	count, err := p.deps.Chat.ReactionCount(ctx, ev.Channel, ev.TS, trig.Emoji)
	if err != nil {
		log.Warn("Duplicate check failed, continuing", "error", err)
	} else if count > 1 {
		p.notify(ctx, log, ev.UserID, duplicateHeader, duplicateNotice(trig.Emoji, link))
		return "", abort(KindPolicy, "trigger", fmt.Errorf("%s already has %d %s reactions", ev.TS, count, trig.Emoji))
	}

	transcript, err := p.deps.Collector.Collect(ctx, ev.Channel, ev.TS, trig.WholeThread)
	if errors.Is(err, collector.ErrWrongLocation) {
		p.notify(ctx, log, ev.UserID, failureHeader, wrongLocationNotice(trig.Emoji, link))
		return "", abort(KindPolicy, "collect", err)
	}
	if err != nil {
		p.notify(ctx, log, ev.UserID, failureHeader, collectFailedNotice(link, err))
		return "", abort(KindDependency, "collect", err)
	}
	link = ThreadLink(p.settings.Workspace, ev.Channel, transcript.RootTS)
	log.Debug("Thread collected", "messages", len(transcript.Entries), "images", transcript.ImageCount())

	draft, err := p.deps.Summarizer.Summarize(ctx, transcript, p.settings.Location)
	if err != nil {
		return "", p.summarizeFailed(ctx, log, ev, link, err)
	}

	participants := p.deps.Resolver.Resolve(ctx, ev.ItemUserID, ev.UserID)
	linked := tracker.WithBacklink(draft, link)
	fields := tracker.BuildFields(linked, participants, p.settings.Fields)

	created, err := p.deps.Tracker.CreateIssue(ctx, fields)
	if err != nil {
		p.notify(ctx, log, ev.UserID, failureHeader, createFailedNotice(link, err))
		return "", abort(KindDependency, "create", err)
	}
	log = log.With("issue", created.Key)

	failed := 0
	for _, f := range transcript.Files {
		if err := p.deps.Tracker.AddAttachment(ctx, created.Key, f.Name, f.Data); err != nil {
			failed++
			log.Warn("Attachment upload failed", "file", f.Name, "error", err)
			p.deps.Reporter.CaptureError(fmt.Errorf("attach %s to %s: %w", f.Name, created.Key, err), map[string]string{
				"stage": "attach",
				"issue": created.Key,
			})
		}
	}

	c := confirmation{
		Key:               created.Key,
		URL:               p.deps.Tracker.BrowseURL(created.Key),
		Draft:             linked,
		ReporterChatID:    ev.ItemUserID,
		AssigneeChatID:    ev.UserID,
		GuideURL:          p.settings.GuideURL,
		FailedAttachments: failed,
	}
	if err := p.deps.Chat.PostThreadReply(ctx, ev.Channel, transcript.RootTS, c.fallback(), c.blocks()); err != nil {
		return created.Key, abort(KindDependency, "confirm", fmt.Errorf("issue %s created: %w", created.Key, err))
	}
	return created.Key, nil
}

func (p *Pipeline) summarizeFailed(ctx context.Context, log *slog.Logger, ev ReactionEvent, link string, err error) error {
	var (
		reqErr      *summarizer.RequestError
		envelopeErr *summarizer.EnvelopeError
		parseErr    *summarizer.ParseError
		validErr    *summarizer.ValidationError
	)
	switch {
	case errors.As(err, &reqErr):
		p.notify(ctx, log, ev.UserID, failureHeader, summarizerUnavailableNotice(link, err))
		return abort(KindDependency, "summarize", err)
	case errors.As(err, &envelopeErr):
		p.notify(ctx, log, ev.UserID, failureHeader, tooLongNotice(link, envelopeErr.Raw))
		return abort(KindContent, "summarize", err)
	case errors.As(err, &parseErr):
		p.notify(ctx, log, ev.UserID, failureHeader, unusableDraftNotice(link, parseErr.Raw, nil))
		return abort(KindContent, "summarize", err)
	case errors.As(err, &validErr):
		p.notify(ctx, log, ev.UserID, failureHeader, unusableDraftNotice(link, validErr.Raw, validErr.Problems))
		return abort(KindContent, "summarize", err)
	default:
		p.notify(ctx, log, ev.UserID, failureHeader, summarizerUnavailableNotice(link, err))
		return abort(KindDependency, "summarize", err)
	}
}

func (p *Pipeline) notify(ctx context.Context, log *slog.Logger, userID, fallback string, blocks []slack.Block) {
	if err := p.deps.Chat.PostDirect(ctx, userID, fallback, blocks); err != nil {
		log.Error("Failed to notify user", "error", err)
	}
}

// report logs the outcome of a run and forwards dependency failures to
// telemetry.
func (p *Pipeline) report(log *slog.Logger, ev ReactionEvent, err error) {
	if err == nil {
		return
	}
	var ae *AbortError
	if !errors.As(err, &ae) {
		log.Error("Run failed", "error", err)
		p.deps.Reporter.CaptureError(err, map[string]string{"channel": ev.Channel})
		return
	}
	switch ae.Kind {
	case KindPolicy:
		log.Info("Run stopped", "stage", ae.Stage, "reason", ae.Err)
	case KindContent:
		log.Warn("Run aborted on summarizer output", "stage", ae.Stage, "error", ae.Err)
	default:
		log.Error("Run aborted", "stage", ae.Stage, "error", ae.Err)
		p.deps.Reporter.CaptureError(err, map[string]string{
			"stage":   ae.Stage,
			"channel": ev.Channel,
		})
	}
}
