package session

import (
	"context"
	"time"
)

// ActivityEventType enumerates session lifecycle events.
type ActivityEventType string

const (
	ActivityEventHydrated      ActivityEventType = "session.hydrated"
	ActivityEventLoginSuccess  ActivityEventType = "session.login.success"
	ActivityEventLoginFailure  ActivityEventType = "session.login.failure"
	ActivityEventTokenInjected ActivityEventType = "session.token.injected"
	ActivityEventLogout        ActivityEventType = "session.logout"
	ActivityEventExpired       ActivityEventType = "session.expired"
	ActivityEventResynced      ActivityEventType = "session.resynced"
)

// ActivityEvent captures audit-friendly information about a transition.
type ActivityEvent struct {
	EventType   ActivityEventType
	PrincipalID string
	Generation  uint64
	Metadata    map[string]any
	OccurredAt  time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
// Sinks run best-effort: errors are logged and never block a transition.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
