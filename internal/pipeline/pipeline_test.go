package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/its-the-vibe/JiraBolt/internal/collector"
	"github.com/its-the-vibe/JiraBolt/internal/pipeline"
	"github.com/its-the-vibe/JiraBolt/internal/summarizer"
	"github.com/its-the-vibe/JiraBolt/internal/tracker"
)

const rootTS = "1700000000.000100"

func abortKind(err error) pipeline.Kind {
	var ae *pipeline.AbortError
	Expect(errors.As(err, &ae)).To(BeTrue(), "expected AbortError, got %v", err)
	return ae.Kind
}

func taskDraft() summarizer.IssueDraft {
	return summarizer.IssueDraft{
		Summary:     "Login button does nothing",
		IssueType:   summarizer.IssueTypeTask,
		Description: "Clicking login has no effect on Safari.",
	}
}

var _ = Describe("Pipeline", func() {
	var (
		ctx        context.Context
		chat       *mockChat
		coll       *mockCollector
		summ       *mockSummarizer
		resolver   *mockResolver
		jira       *mockTracker
		reporter   *mockReporter
		p          *pipeline.Pipeline
		ev         pipeline.ReactionEvent
		transcript collector.Transcript
	)

	BeforeEach(func() {
		ctx = context.Background()
		transcript = collector.Transcript{
			RootTS: rootTS,
			Entries: []collector.Entry{
				{Timestamp: time.Unix(1700000000, 0), Author: "alice", Text: "login is broken"},
				{Timestamp: time.Unix(1700000060, 0), Author: "bob", Text: "screenshot attached"},
			},
			Files: []collector.File{{Name: "shot.png", MediaType: "image/png", Data: []byte("png")}},
		}
		chat = &mockChat{reactionCount: 1}
		coll = &mockCollector{collectFn: func(context.Context, string, string, bool) (collector.Transcript, error) {
			return transcript, nil
		}}
		summ = &mockSummarizer{summarizeFn: func() (summarizer.IssueDraft, error) { return taskDraft(), nil }}
		resolver = &mockResolver{}
		jira = &mockTracker{}
		reporter = &mockReporter{}

		p = pipeline.New(pipeline.Deps{
			Chat:       chat,
			Collector:  coll,
			Summarizer: summ,
			Resolver:   resolver,
			Tracker:    jira,
			Reporter:   reporter,
		}, pipeline.Settings{
			Triggers:     []pipeline.Trigger{{Emoji: "pi_jira_gen", WholeThread: true}},
			LoadingEmoji: "loading",
			Workspace:    "wantedx.slack.com",
			GuideURL:     "https://wantedlab.atlassian.net/wiki/spaces/QA/pages/82576189",
			Fields: tracker.FieldConfig{
				ProjectKey:       "PI",
				EnvironmentField: "customfield_10106",
				BugPropertyField: "customfield_10177",
			},
		})

		ev = pipeline.ReactionEvent{
			Reaction:   "pi_jira_gen",
			UserID:     "UASSIGNEE",
			ItemUserID: "UREPORTER",
			Channel:    "C123",
			TS:         rootTS,
		}
	})

	Describe("trigger filter", func() {
		It("makes no calls for reactions that are not triggers", func() {
			ev.Reaction = "thumbsup"

			Expect(p.Wants(ev)).To(BeFalse())
			Expect(p.Handle(ctx, ev)).To(Succeed())
			Expect(chat.calls).To(BeEmpty())
			Expect(coll.calls).To(BeZero())
			Expect(jira.created).To(BeEmpty())
		})

		It("accepts skin-tone variants of a trigger", func() {
			ev.Reaction = "pi_jira_gen::skin-tone-3"
			Expect(p.Wants(ev)).To(BeTrue())
		})

		It("refuses to create a duplicate when the trigger is already present", func() {
			chat.reactionCount = 2

			err := p.Handle(ctx, ev)

			Expect(abortKind(err)).To(Equal(pipeline.KindPolicy))
			Expect(coll.calls).To(BeZero())
			Expect(jira.created).To(BeEmpty())
			Expect(chat.directs).To(HaveLen(1))
			Expect(chat.directs[0].Channel).To(Equal("UASSIGNEE"))
			Expect(chat.directs[0].Fallback).To(Equal("이미 지라 이슈가 생성되었습니다."))
			errs, _ := reporter.counts()
			Expect(errs).To(BeZero())
		})

		It("continues when the duplicate check itself fails", func() {
			chat.reactionCountFn = func() (int, error) { return 0, errors.New("ratelimited") }

			Expect(p.Handle(ctx, ev)).To(Succeed())
			Expect(jira.created).To(HaveLen(1))
		})
	})

	Describe("loading indicator", func() {
		It("is added and removed on success", func() {
			Expect(p.Handle(ctx, ev)).To(Succeed())
			Expect(chat.added).To(Equal([]string{"loading"}))
			Expect(chat.removed).To(Equal([]string{"loading"}))
		})

		It("is removed when the run aborts", func() {
			summ.summarizeFn = func() (summarizer.IssueDraft, error) {
				return summarizer.ParseDraft("not json")
			}
			Expect(p.Handle(ctx, ev)).NotTo(Succeed())
			Expect(chat.removed).To(Equal([]string{"loading"}))
		})
	})

	Describe("collection", func() {
		It("asks the user to move a whole-thread trigger placed on a reply", func() {
			coll.collectFn = func(_ context.Context, _, _ string, wholeThread bool) (collector.Transcript, error) {
				Expect(wholeThread).To(BeTrue())
				return collector.Transcript{}, collector.ErrWrongLocation
			}

			err := p.Handle(ctx, ev)

			Expect(abortKind(err)).To(Equal(pipeline.KindPolicy))
			Expect(summ.calls).To(BeZero())
			Expect(chat.directs).To(HaveLen(1))
			Expect(chat.directs[0].JSON()).To(ContainSubstring("스레드 최상단"))
		})

		It("reports chat failures as dependency errors", func() {
			coll.collectFn = func(context.Context, string, string, bool) (collector.Transcript, error) {
				return collector.Transcript{}, errors.New("channel_not_found")
			}

			err := p.Handle(ctx, ev)

			Expect(abortKind(err)).To(Equal(pipeline.KindDependency))
			errs, _ := reporter.counts()
			Expect(errs).To(Equal(1))
		})
	})

	Describe("summarizer failures", func() {
		It("echoes non-JSON output and never calls the tracker", func() {
			summ.summarizeFn = func() (summarizer.IssueDraft, error) {
				return summarizer.ParseDraft("Sorry, I cannot summarise this thread")
			}

			err := p.Handle(ctx, ev)

			Expect(abortKind(err)).To(Equal(pipeline.KindContent))
			Expect(jira.created).To(BeEmpty())
			Expect(chat.directs).To(HaveLen(1))
			Expect(chat.directs[0].JSON()).To(ContainSubstring("Sorry, I cannot summarise this thread"))
			errs, _ := reporter.counts()
			Expect(errs).To(BeZero())
		})

		It("rejects a bug draft missing its required fields", func() {
			summ.summarizeFn = func() (summarizer.IssueDraft, error) {
				return summarizer.ParseDraft(`{"summary":"Crash on checkout","issue_type":"버그"}`)
			}

			err := p.Handle(ctx, ev)

			Expect(abortKind(err)).To(Equal(pipeline.KindContent))
			Expect(jira.created).To(BeEmpty())
			Expect(chat.directs[0].JSON()).To(ContainSubstring("Crash on checkout"))
			Expect(chat.directs[0].JSON()).To(ContainSubstring("environment"))
		})

		It("tells the user the thread was probably too long on an empty envelope", func() {
			summ.summarizeFn = func() (summarizer.IssueDraft, error) {
				return summarizer.IssueDraft{}, &summarizer.EnvelopeError{Raw: `{"detail":"context_length_exceeded"}`}
			}

			err := p.Handle(ctx, ev)

			Expect(abortKind(err)).To(Equal(pipeline.KindContent))
			Expect(chat.directs[0].JSON()).To(ContainSubstring("context_length_exceeded"))
		})

		It("suggests a retry and reports transport failures", func() {
			summ.summarizeFn = func() (summarizer.IssueDraft, error) {
				return summarizer.IssueDraft{}, &summarizer.RequestError{Err: errors.New("502 Bad Gateway")}
			}

			err := p.Handle(ctx, ev)

			Expect(abortKind(err)).To(Equal(pipeline.KindDependency))
			Expect(jira.created).To(BeEmpty())
			Expect(chat.directs[0].JSON()).To(ContainSubstring("502 Bad Gateway"))
			errs, _ := reporter.counts()
			Expect(errs).To(Equal(1))
		})
	})

	Describe("publishing", func() {
		It("files a task with one create call and a threaded confirmation", func() {
			Expect(p.Handle(ctx, ev)).To(Succeed())

			Expect(jira.created).To(HaveLen(1))
			fields := jira.created[0]
			Expect(fields["issuetype"]).To(Equal(map[string]any{"name": summarizer.IssueTypeTask}))
			Expect(fields).NotTo(HaveKey("customfield_10106"))
			Expect(fields).NotTo(HaveKey("customfield_10177"))
			Expect(fields["reporter"]).To(Equal(map[string]any{"accountId": "acc-UREPORTER"}))
			Expect(fields["assignee"]).To(Equal(map[string]any{"accountId": "acc-UASSIGNEE"}))
			Expect(resolver.reporter).To(Equal("UREPORTER"))
			Expect(resolver.assignee).To(Equal("UASSIGNEE"))

			Expect(chat.replies).To(HaveLen(1))
			reply := chat.replies[0]
			Expect(reply.Channel).To(Equal("C123"))
			Expect(reply.ThreadTS).To(Equal(rootTS))
			Expect(reply.JSON()).To(ContainSubstring("https://jira.example/browse/PI-7"))
			Expect(reply.JSON()).NotTo(ContainSubstring("Environment"))
			Expect(chat.directs).To(BeEmpty())
			Expect(jira.attached).To(Equal([]string{"shot.png"}))
		})

		It("appends the thread back-link to the description exactly once", func() {
			Expect(p.Handle(ctx, ev)).To(Succeed())

			description := jira.created[0]["description"].(string)
			Expect(strings.Count(description, "*Slack Link*")).To(Equal(1))
			Expect(description).To(ContainSubstring("https://wantedx.slack.com/archives/C123/p1700000000000100"))
		})

		It("fills the bug custom fields and links the filing guide", func() {
			summ.summarizeFn = func() (summarizer.IssueDraft, error) {
				return summarizer.ParseDraft(`{"summary":"Checkout crash","issue_type":"버그","environment":"wwwtest",` +
					`"priority":"p1","bug_property":["` + summarizer.BugProperties[0] + `"]}`)
			}

			Expect(p.Handle(ctx, ev)).To(Succeed())

			fields := jira.created[0]
			Expect(fields["customfield_10106"]).To(Equal(map[string]any{"value": summarizer.EnvStaging}))
			Expect(fields["customfield_10177"]).To(Equal([]map[string]any{{"value": summarizer.BugProperties[0]}}))
			Expect(fields["priority"]).To(Equal(map[string]any{"name": "P1"}))
			Expect(chat.replies[0].JSON()).To(ContainSubstring("82576189"))
		})

		It("explains a rejected create call and reports it", func() {
			jira.createErr = errors.New("customfield_10106: Environment is required")

			err := p.Handle(ctx, ev)

			Expect(abortKind(err)).To(Equal(pipeline.KindDependency))
			Expect(chat.replies).To(BeEmpty())
			Expect(chat.directs).To(HaveLen(1))
			Expect(chat.directs[0].JSON()).To(ContainSubstring("Environment is required"))
			errs, _ := reporter.counts()
			Expect(errs).To(Equal(1))
		})

		It("still confirms when an attachment upload fails", func() {
			jira.attachErrs = map[string]error{"shot.png": errors.New("413")}

			Expect(p.Handle(ctx, ev)).To(Succeed())

			Expect(chat.replies).To(HaveLen(1))
			Expect(chat.replies[0].JSON()).To(ContainSubstring("첨부파일 1개"))
			errs, _ := reporter.counts()
			Expect(errs).To(Equal(1))
		})
	})
})

var _ = Describe("ThreadLink", func() {
	It("drops the dot from the timestamp", func() {
		Expect(pipeline.ThreadLink("wantedx.slack.com", "C1", "1700000000.000100")).
			To(Equal("https://wantedx.slack.com/archives/C1/p1700000000000100"))
	})
})
