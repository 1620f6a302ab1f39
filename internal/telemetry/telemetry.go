// Package telemetry forwards unexpected failures to the error-reporting sink.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter receives errors that should reach a human through the error
// tracker. Tags are attached as searchable key/value pairs.
type Reporter interface {
	CaptureError(err error, tags map[string]string)
	CapturePanic(recovered any, tags map[string]string)
	Flush(timeout time.Duration) bool
}

type Config struct {
	DSN         string
	Environment string
	Release     string
}

type sentryReporter struct{}

// NewSentry initialises the global Sentry client and returns a Reporter
// backed by it.
func NewSentry(cfg Config) (Reporter, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		AttachStacktrace: true,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry init: %w", err)
	}
	return sentryReporter{}, nil
}

func (sentryReporter) CaptureError(err error, tags map[string]string) {
	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}

func (sentryReporter) CapturePanic(recovered any, tags map[string]string) {
	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		hub.Recover(recovered)
	})
}

func (sentryReporter) Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// Nop discards everything. Used in tests and when no DSN is configured.
type Nop struct{}

func (Nop) CaptureError(error, map[string]string) {}
func (Nop) CapturePanic(any, map[string]string)   {}
func (Nop) Flush(time.Duration) bool              { return true }
