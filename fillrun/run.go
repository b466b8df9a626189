// Package fillrun keeps the history of fill operations.
package fillrun

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hairizuanbinnoorazman/forum-autofill/formfill"
)

var (
	ErrRunNotFound     = errors.New("fill run not found")
	ErrInvalidForumURL = errors.New("forum_url is required")
	ErrInvalidStatus   = errors.New("invalid run status")
	ErrRunNotRunning   = errors.New("fill run is not running")
	ErrRunIDMismatch   = errors.New("result belongs to a different run")
)

type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusRunning, StatusDone, StatusFailed:
		return true
	}
	return false
}

// States is the visited state sequence, stored as a JSON array.
type States []string

func (s States) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal([]string(s))
}

func (s *States) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*s = States{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to scan States: unsupported type %T", value)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*s = out
	return nil
}

// Run is one recorded fill operation.
type Run struct {
	ID         uuid.UUID  `json:"id" gorm:"type:char(36);primaryKey"`
	ForumURL   string     `json:"forum_url" gorm:"type:varchar(2048);not null"`
	Title      string     `json:"title" gorm:"type:varchar(512)"`
	Status     Status     `json:"status" gorm:"type:varchar(20);not null;default:'running';index:idx_fill_runs_status"`
	ErrorClass string     `json:"error_class,omitempty" gorm:"type:varchar(50)"`
	LastState  string     `json:"last_state,omitempty" gorm:"type:varchar(50)"`
	SnapshotID string     `json:"snapshot_id,omitempty" gorm:"type:varchar(64)"`
	Message    string     `json:"message,omitempty" gorm:"type:text"`
	States     States     `json:"states" gorm:"type:json"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	DurationMS *int64     `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Run) TableName() string {
	return "fill_runs"
}

func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusRunning
	}
	if r.StartTime.IsZero() {
		r.StartTime = time.Now()
	}
	return nil
}

func (r *Run) Validate() error {
	if r.ForumURL == "" {
		return ErrInvalidForumURL
	}
	if r.Status != "" && !r.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// Finish copies the outcome of res into the run.
func (r *Run) Finish(res formfill.FillResult) error {
	if r.Status != StatusRunning {
		return ErrRunNotRunning
	}
	if res.RunID != "" && res.RunID != r.ID.String() {
		return ErrRunIDMismatch
	}

	now := time.Now()
	r.Status = StatusFailed
	if res.Success {
		r.Status = StatusDone
	}
	r.ErrorClass = string(res.Error)
	r.LastState = string(res.LastState)
	r.SnapshotID = res.SnapshotID
	if r.SnapshotID == "" {
		r.SnapshotID = res.LastSnapshotID
	}
	r.Message = res.Message
	r.States = make(States, 0, len(res.States))
	for _, s := range res.States {
		r.States = append(r.States, string(s))
	}
	r.EndTime = &now
	duration := res.DurationMS
	if duration == 0 {
		duration = now.Sub(r.StartTime).Milliseconds()
	}
	r.DurationMS = &duration
	return nil
}
