package fillrun

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hairizuanbinnoorazman/forum-autofill/formfill"
)

// Recorder persists engine runs through a Store.
type Recorder struct {
	store Store
}

// NewRecorder adapts store to formfill.Recorder.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

var _ formfill.Recorder = (*Recorder)(nil)

func (r *Recorder) Started(ctx context.Context, info formfill.RunInfo) error {
	id, err := uuid.Parse(info.RunID)
	if err != nil {
		return fmt.Errorf("parse run id %q: %w", info.RunID, err)
	}
	return r.store.Create(ctx, &Run{
		ID:        id,
		ForumURL:  info.ForumURL,
		Title:     info.Title,
		Status:    StatusRunning,
		StartTime: info.StartedAt,
	})
}

func (r *Recorder) Finished(ctx context.Context, res formfill.FillResult) error {
	id, err := uuid.Parse(res.RunID)
	if err != nil {
		return fmt.Errorf("parse run id %q: %w", res.RunID, err)
	}
	return r.store.Finish(ctx, id, res)
}
