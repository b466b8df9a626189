package snapshot

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/hairizuanbinnoorazman/forum-autofill/logger"
	"github.com/hairizuanbinnoorazman/forum-autofill/storage"
)

// Source takes one snapshot per call. A protocol session implements it.
type Source interface {
	ID() string
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Resolver takes snapshots from a source and optionally archives their raw
// captures.
type Resolver struct {
	archive storage.BlobStorage
	logger  logger.Logger
}

// NewResolver creates a resolver. archive may be nil.
func NewResolver(archive storage.BlobStorage, log logger.Logger) *Resolver {
	return &Resolver{archive: archive, logger: logger.OrNop(log)}
}

// Take issues exactly one snapshot on src. Archive failures are logged and
// do not fail the call.
func (r *Resolver) Take(ctx context.Context, src Source) (*Snapshot, error) {
	snap, err := src.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	r.logger.Debug(ctx, "snapshot taken", map[string]interface{}{
		"session_id":  src.ID(),
		"snapshot_id": snap.ID,
		"elements":    snap.Len(),
	})

	if r.archive != nil {
		key := ArchiveKey(src.ID(), snap.ID)
		if err := r.archive.Upload(ctx, key, strings.NewReader(snap.Raw())); err != nil {
			r.logger.Warn(ctx, "failed to archive snapshot", map[string]interface{}{
				"error":       err.Error(),
				"snapshot_id": snap.ID,
				"key":         key,
			})
		}
	}

	return snap, nil
}

// Find resolves d against snap.
func (r *Resolver) Find(ctx context.Context, snap *Snapshot, d Descriptor) (Handle, bool) {
	m, ok := Resolve(snap, d)
	if !ok {
		r.logger.Debug(ctx, "descriptor not resolved", map[string]interface{}{
			"descriptor":  d.String(),
			"snapshot_id": snapshotID(snap),
		})
		return Handle{}, false
	}
	r.logger.Debug(ctx, "descriptor resolved", map[string]interface{}{
		"descriptor":  d.String(),
		"snapshot_id": snap.ID,
		"ref":         m.Handle.Ref,
		"tier":        m.Tier.String(),
	})
	return m.Handle, true
}

// ArchiveKey is the blob path for a snapshot's raw capture.
func ArchiveKey(sessionID, snapshotID string) string {
	return path.Join("snapshots", sessionID, fmt.Sprintf("%s.txt", snapshotID))
}

func snapshotID(s *Snapshot) string {
	if s == nil {
		return ""
	}
	return s.ID
}
