package fillrun

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuanbinnoorazman/forum-autofill/formfill"
)

func TestRecorder(t *testing.T) {
	_, store := setupTestStore(t)
	rec := NewRecorder(store)
	ctx := context.Background()

	id := uuid.New()
	started := time.Now().Add(-time.Second)
	require.NoError(t, rec.Started(ctx, formfill.RunInfo{
		RunID:     id.String(),
		ForumURL:  testForumURL,
		Title:     "Understanding RAG",
		StartedAt: started,
	}))

	got, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, "Understanding RAG", got.Title)

	require.NoError(t, rec.Finished(ctx, formfill.FillResult{
		RunID:     id.String(),
		Success:   true,
		LastState: formfill.StateDone,
	}))

	got, err = store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)

	t.Run("rejects malformed run ids", func(t *testing.T) {
		assert.Error(t, rec.Started(ctx, formfill.RunInfo{RunID: "nope", ForumURL: testForumURL}))
		assert.Error(t, rec.Finished(ctx, formfill.FillResult{RunID: "nope"}))
	})
}
