package formfill

import (
	"context"
	"time"

	"github.com/hairizuanbinnoorazman/forum-autofill/content"
)

// FillResult is surfaced verbatim to the caller.
type FillResult struct {
	RunID   string `json:"run_id"`
	Success bool   `json:"success"`
	// SnapshotID is the snapshot at which the fields were confirmed filled.
	SnapshotID string     `json:"snapshot_id,omitempty"`
	Message    string     `json:"message"`
	Error      ErrorClass `json:"error,omitempty"`
	// Descriptor names the control that failed to resolve.
	Descriptor string `json:"descriptor,omitempty"`
	// LastState is the last state that completed successfully.
	LastState      State   `json:"last_state"`
	LastSnapshotID string  `json:"last_snapshot_id,omitempty"`
	States         []State `json:"states"`
	DurationMS     int64   `json:"duration_ms"`
}

// RunInfo describes a started operation.
type RunInfo struct {
	RunID     string
	ForumURL  string
	Title     string
	StartedAt time.Time
}

// Recorder persists operations. Its errors are logged and never change
// the result.
type Recorder interface {
	Started(ctx context.Context, info RunInfo) error
	Finished(ctx context.Context, res FillResult) error
}

// Filler is anything that runs fill operations.
type Filler interface {
	Fill(ctx context.Context, post content.Post, forumURL string) FillResult
}
