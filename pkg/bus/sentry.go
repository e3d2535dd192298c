package bus

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// FatalReporter is the shape OnFatal expects: a sink for errors
// surfaced by a registered fatal source.
type FatalReporter = func(error)

// NewSentryFatalReporter initializes the default sentry-go client with
// dsn and returns a FatalReporter that captures every fatal error it
// receives, flushing with a two-second budget so a reporter call never
// blocks a Context's fatal-fanout indefinitely. Pass the result to
// OnFatal to have fatal transport errors reported in addition to
// whatever else OnFatal's other registered sinks do (e.g. rejecting
// pending invoke calls).
func NewSentryFatalReporter(dsn string) (FatalReporter, error) {
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
		return nil, err
	}
	return func(err error) {
		sentry.CaptureException(err)
		sentry.Flush(2 * time.Second)
	}, nil
}
