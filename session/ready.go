package session

import (
	"context"
	"time"

	"github.com/hairizuanbinnoorazman/forum-autofill/logger"
)

// ReadyEvent is emitted once, on the first successful connection.
type ReadyEvent struct {
	SessionID string    `json:"session_id"`
	Endpoint  string    `json:"endpoint"`
	At        time.Time `json:"at"`
}

// ReadySink receives the readiness event.
type ReadySink interface {
	Ready(ctx context.Context, ev ReadyEvent)
}

// ReadySinkFunc adapts a function to ReadySink.
type ReadySinkFunc func(ctx context.Context, ev ReadyEvent)

func (f ReadySinkFunc) Ready(ctx context.Context, ev ReadyEvent) {
	f(ctx, ev)
}

// LogSink writes the readiness event to a logger.
type LogSink struct {
	Logger logger.Logger
}

func (s LogSink) Ready(ctx context.Context, ev ReadyEvent) {
	logger.OrNop(s.Logger).Info(ctx, "automation endpoint connected", map[string]interface{}{
		"session_id": ev.SessionID,
		"endpoint":   ev.Endpoint,
		"at":         ev.At.Format(time.RFC3339),
	})
}
