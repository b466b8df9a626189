package fillrun

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hairizuanbinnoorazman/forum-autofill/formfill"
	"github.com/hairizuanbinnoorazman/forum-autofill/logger"
)

// MySQLStore implements Store with GORM. It runs on mysql and sqlite.
type MySQLStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewMySQLStore creates a gorm-backed run store.
func NewMySQLStore(db *gorm.DB, log logger.Logger) *MySQLStore {
	return &MySQLStore{
		db:     db,
		logger: logger.OrNop(log),
	}
}

var _ Store = (*MySQLStore)(nil)

// Create inserts a new run.
func (s *MySQLStore) Create(ctx context.Context, r *Run) error {
	if err := r.Validate(); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		s.logger.Error(ctx, "failed to create fill run", map[string]interface{}{
			"error":     err.Error(),
			"forum_url": r.ForumURL,
		})
		return err
	}

	s.logger.Debug(ctx, "fill run created", map[string]interface{}{
		"run_id": r.ID.String(),
	})
	return nil
}

// GetByID retrieves a run by its ID.
func (s *MySQLStore) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	var r Run
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&r).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		s.logger.Error(ctx, "failed to get fill run by ID", map[string]interface{}{
			"error":  err.Error(),
			"run_id": id.String(),
		})
		return nil, err
	}

	return &r, nil
}

// Update applies setters to a stored run.
func (s *MySQLStore) Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error {
	r, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	for _, setter := range setters {
		if err := setter(r); err != nil {
			return err
		}
	}

	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		s.logger.Error(ctx, "failed to update fill run", map[string]interface{}{
			"error":  err.Error(),
			"run_id": id.String(),
		})
		return err
	}
	return nil
}

func (s *MySQLStore) filtered(ctx context.Context, status Status) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&Run{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return q
}

// List retrieves a page of runs, newest first.
func (s *MySQLStore) List(ctx context.Context, status Status, limit, offset int) ([]*Run, error) {
	if status != "" && !status.IsValid() {
		return nil, ErrInvalidStatus
	}

	var runs []*Run
	err := s.filtered(ctx, status).
		Order("start_time DESC").
		Limit(limit).
		Offset(offset).
		Find(&runs).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list fill runs", map[string]interface{}{
			"error":  err.Error(),
			"status": string(status),
			"limit":  limit,
			"offset": offset,
		})
		return nil, err
	}

	return runs, nil
}

// Count returns how many runs have status. An empty status counts all.
func (s *MySQLStore) Count(ctx context.Context, status Status) (int, error) {
	if status != "" && !status.IsValid() {
		return 0, ErrInvalidStatus
	}

	var count int64
	if err := s.filtered(ctx, status).Count(&count).Error; err != nil {
		s.logger.Error(ctx, "failed to count fill runs", map[string]interface{}{
			"error":  err.Error(),
			"status": string(status),
		})
		return 0, err
	}

	return int(count), nil
}

// Finish records the outcome of a running run.
func (s *MySQLStore) Finish(ctx context.Context, id uuid.UUID, res formfill.FillResult) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r Run
		if err := tx.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRunNotFound
			}
			return err
		}

		if err := r.Finish(res); err != nil {
			return err
		}

		return tx.WithContext(ctx).Save(&r).Error
	})

	if err != nil {
		if !errors.Is(err, ErrRunNotFound) && !errors.Is(err, ErrRunNotRunning) {
			s.logger.Error(ctx, "failed to finish fill run", map[string]interface{}{
				"error":  err.Error(),
				"run_id": id.String(),
			})
		}
		return err
	}

	s.logger.Info(ctx, "fill run finished", map[string]interface{}{
		"run_id":  id.String(),
		"success": res.Success,
	})
	return nil
}
