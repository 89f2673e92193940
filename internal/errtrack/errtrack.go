// Package errtrack reports handler failures to Sentry when a DSN is configured.
package errtrack

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/chatdesk/chatdesk/internal/config"
)

// Tracker forwards errors to Sentry. A zero-value or nil Tracker is a no-op,
// so callers never need to guard Capture calls.
type Tracker struct {
	enabled bool
	logger  *slog.Logger
}

// Init configures the Sentry client from config. Reporting stays disabled
// when the DSN is empty.
func Init(log *slog.Logger, cfg config.SentryConfig) (*Tracker, error) {
	if cfg.DSN == "" {
		return &Tracker{logger: log}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry init: %w", err)
	}
	return &Tracker{enabled: true, logger: log}, nil
}

// Capture reports err with contextual tags. Safe on a nil Tracker.
func (t *Tracker) Capture(err error, tags map[string]string) {
	if t == nil || !t.enabled || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Close flushes buffered events before shutdown.
func (t *Tracker) Close() {
	if t == nil || !t.enabled {
		return
	}
	sentry.Flush(2 * time.Second)
}
