package pipeline_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/its-the-vibe/JiraBolt/internal/collector"
	"github.com/its-the-vibe/JiraBolt/internal/pipeline"
	"github.com/its-the-vibe/JiraBolt/internal/summarizer"
	"github.com/its-the-vibe/JiraBolt/internal/tracker"
)

type post struct {
	Channel  string
	ThreadTS string
	Fallback string
	Blocks   []slack.Block
}

// JSON renders the blocks the way they go over the wire.
func (p post) JSON() string {
	data, _ := json.Marshal(p.Blocks)
	return string(data)
}

type mockChat struct {
	mu sync.Mutex

	reactionCount   int
	reactionCountFn func() (int, error)
	threadReplyErr  error

	calls   []string
	added   []string
	removed []string
	replies []post
	directs []post
}

func (m *mockChat) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockChat) ReactionCount(_ context.Context, _, _, _ string) (int, error) {
	m.record("reactions.get")
	if m.reactionCountFn != nil {
		return m.reactionCountFn()
	}
	return m.reactionCount, nil
}

func (m *mockChat) AddReaction(_ context.Context, _, _, name string) error {
	m.record("reactions.add")
	m.added = append(m.added, name)
	return nil
}

func (m *mockChat) RemoveReaction(_ context.Context, _, _, name string) error {
	m.record("reactions.remove")
	m.removed = append(m.removed, name)
	return nil
}

func (m *mockChat) PostThreadReply(_ context.Context, channel, threadTS, fallback string, blocks []slack.Block) error {
	m.record("chat.postMessage")
	if m.threadReplyErr != nil {
		return m.threadReplyErr
	}
	m.replies = append(m.replies, post{Channel: channel, ThreadTS: threadTS, Fallback: fallback, Blocks: blocks})
	return nil
}

func (m *mockChat) PostDirect(_ context.Context, userID, fallback string, blocks []slack.Block) error {
	m.record("chat.postMessage")
	m.directs = append(m.directs, post{Channel: userID, Fallback: fallback, Blocks: blocks})
	return nil
}

type mockCollector struct {
	collectFn func(ctx context.Context, channel, ts string, wholeThread bool) (collector.Transcript, error)
	calls     int
}

func (m *mockCollector) Collect(ctx context.Context, channel, ts string, wholeThread bool) (collector.Transcript, error) {
	m.calls++
	return m.collectFn(ctx, channel, ts, wholeThread)
}

type mockSummarizer struct {
	summarizeFn func() (summarizer.IssueDraft, error)
	calls       int
}

func (m *mockSummarizer) Summarize(_ context.Context, _ collector.Transcript, _ *time.Location) (summarizer.IssueDraft, error) {
	m.calls++
	return m.summarizeFn()
}

type mockResolver struct {
	reporter, assignee string
}

func (m *mockResolver) Resolve(_ context.Context, reporterChatID, assigneeChatID string) tracker.Participants {
	m.reporter, m.assignee = reporterChatID, assigneeChatID
	return tracker.Participants{ReporterID: "acc-" + reporterChatID, AssigneeID: "acc-" + assigneeChatID}
}

type mockTracker struct {
	createErr  error
	attachErrs map[string]error

	created  []map[string]any
	attached []string
}

func (m *mockTracker) CreateIssue(_ context.Context, fields map[string]any) (tracker.CreatedIssue, error) {
	if m.createErr != nil {
		return tracker.CreatedIssue{}, m.createErr
	}
	m.created = append(m.created, fields)
	return tracker.CreatedIssue{ID: "10007", Key: "PI-7"}, nil
}

func (m *mockTracker) AddAttachment(_ context.Context, _ string, name string, _ []byte) error {
	if err := m.attachErrs[name]; err != nil {
		return err
	}
	m.attached = append(m.attached, name)
	return nil
}

func (m *mockTracker) BrowseURL(key string) string {
	return "https://jira.example/browse/" + key
}

type mockReporter struct {
	mu     sync.Mutex
	errors []error
	panics []any
}

func (m *mockReporter) CaptureError(err error, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, err)
}

func (m *mockReporter) CapturePanic(recovered any, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics = append(m.panics, recovered)
}

func (m *mockReporter) Flush(time.Duration) bool { return true }

func (m *mockReporter) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors), len(m.panics)
}

// mockHandler lets worker tests control when a run finishes.
type mockHandler struct {
	handleFn func(ctx context.Context, ev pipeline.ReactionEvent) error
}

func (m *mockHandler) Wants(ev pipeline.ReactionEvent) bool {
	return ev.Reaction == "pi_jira_gen"
}

func (m *mockHandler) Handle(ctx context.Context, ev pipeline.ReactionEvent) error {
	return m.handleFn(ctx, ev)
}
