package pipeline_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/its-the-vibe/JiraBolt/internal/pipeline"
)

var _ = Describe("Workers", func() {
	var (
		handler  *mockHandler
		reporter *mockReporter
		trigger  pipeline.ReactionEvent
	)

	BeforeEach(func() {
		handler = &mockHandler{handleFn: func(context.Context, pipeline.ReactionEvent) error { return nil }}
		reporter = &mockReporter{}
		trigger = pipeline.ReactionEvent{Reaction: "pi_jira_gen", Channel: "C1", TS: "1.2", UserID: "U1"}
	})

	It("ignores events the handler does not want", func() {
		w := pipeline.NewWorkers(handler, reporter, 0)
		Expect(w.Dispatch(pipeline.ReactionEvent{Reaction: "eyes"})).To(BeFalse())
		Expect(w.Shutdown(context.Background())).To(Succeed())
	})

	It("waits for in-flight runs before shutting down", func() {
		release := make(chan struct{})
		started := make(chan struct{})
		finished := make(chan struct{})
		handler.handleFn = func(context.Context, pipeline.ReactionEvent) error {
			close(started)
			<-release
			close(finished)
			return nil
		}

		w := pipeline.NewWorkers(handler, reporter, 0)
		Expect(w.Dispatch(trigger)).To(BeTrue())
		Eventually(started).Should(BeClosed())
		Expect(w.InFlight()).To(Equal(int64(1)))

		shutdown := make(chan error, 1)
		go func() { shutdown <- w.Shutdown(context.Background()) }()

		Eventually(w.Draining).Should(BeTrue())
		Consistently(shutdown, 50*time.Millisecond).ShouldNot(Receive())
		Expect(w.Dispatch(trigger)).To(BeFalse())

		close(release)
		Eventually(shutdown).Should(Receive(BeNil()))
		Expect(finished).To(BeClosed())
		Expect(w.InFlight()).To(BeZero())
	})

	It("cancels runs that outlive the shutdown deadline", func() {
		cancelled := make(chan struct{})
		handler.handleFn = func(ctx context.Context, _ pipeline.ReactionEvent) error {
			<-ctx.Done()
			close(cancelled)
			return ctx.Err()
		}

		w := pipeline.NewWorkers(handler, reporter, 0)
		Expect(w.Dispatch(trigger)).To(BeTrue())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		Expect(w.Shutdown(ctx)).To(MatchError(context.DeadlineExceeded))
		Eventually(cancelled).Should(BeClosed())
	})

	It("recovers panics and reports them", func() {
		handler.handleFn = func(context.Context, pipeline.ReactionEvent) error {
			panic("nil map")
		}

		w := pipeline.NewWorkers(handler, reporter, 2)
		Expect(w.Dispatch(trigger)).To(BeTrue())
		Expect(w.Shutdown(context.Background())).To(Succeed())

		_, panics := reporter.counts()
		Expect(panics).To(Equal(1))
	})

	It("bounds concurrency when a limit is set", func() {
		release := make(chan struct{})
		handler.handleFn = func(context.Context, pipeline.ReactionEvent) error {
			<-release
			return nil
		}

		w := pipeline.NewWorkers(handler, reporter, 1)
		Expect(w.Dispatch(trigger)).To(BeTrue())

		second := make(chan bool, 1)
		go func() { second <- w.Dispatch(trigger) }()
		Consistently(second, 50*time.Millisecond).ShouldNot(Receive())

		close(release)
		Eventually(second).Should(Receive(BeTrue()))
		Expect(w.Shutdown(context.Background())).To(Succeed())
	})

	It("honours the shutdown deadline while a dispatch waits for a slot", func() {
		handler.handleFn = func(ctx context.Context, _ pipeline.ReactionEvent) error {
			<-ctx.Done()
			return ctx.Err()
		}

		w := pipeline.NewWorkers(handler, reporter, 1)
		Expect(w.Dispatch(trigger)).To(BeTrue())

		second := make(chan bool, 1)
		go func() { second <- w.Dispatch(trigger) }()
		Consistently(second, 50*time.Millisecond).ShouldNot(Receive())

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		shutdown := make(chan error, 1)
		go func() { shutdown <- w.Shutdown(ctx) }()

		Eventually(shutdown, time.Second).Should(Receive(MatchError(context.DeadlineExceeded)))
		Eventually(second).Should(Receive(BeFalse()))
	})
})
