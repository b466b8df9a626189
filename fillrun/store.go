package fillrun

import (
	"context"

	"github.com/google/uuid"

	"github.com/hairizuanbinnoorazman/forum-autofill/formfill"
)

type Store interface {
	Create(ctx context.Context, run *Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)
	Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error
	// List returns runs newest first. An empty status lists all.
	List(ctx context.Context, status Status, limit, offset int) ([]*Run, error)
	Count(ctx context.Context, status Status) (int, error)
	Finish(ctx context.Context, id uuid.UUID, res formfill.FillResult) error
}

type UpdateSetter func(*Run) error
