package fillrun

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuanbinnoorazman/forum-autofill/formfill"
	"github.com/hairizuanbinnoorazman/forum-autofill/testutil"
)

const testForumURL = "https://moodle.example.edu/mod/forum/view.php?id=42"

func TestMySQLStore_Create(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	t.Run("successfully create run", func(t *testing.T) {
		r := &Run{ForumURL: testForumURL, Title: "Understanding RAG"}
		require.NoError(t, store.Create(ctx, r))
		assert.NotEqual(t, uuid.Nil, r.ID)
		assert.Equal(t, StatusRunning, r.Status)
		assert.False(t, r.StartTime.IsZero())
	})

	t.Run("keeps a caller supplied id", func(t *testing.T) {
		id := uuid.New()
		r := &Run{ID: id, ForumURL: testForumURL}
		require.NoError(t, store.Create(ctx, r))
		assert.Equal(t, id, r.ID)
	})

	t.Run("missing forum url returns error", func(t *testing.T) {
		err := store.Create(ctx, &Run{Title: "x"})
		assert.ErrorIs(t, err, ErrInvalidForumURL)
	})

	t.Run("invalid status returns error", func(t *testing.T) {
		err := store.Create(ctx, &Run{ForumURL: testForumURL, Status: Status("paused")})
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})
}

func TestMySQLStore_GetByID(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	t.Run("retrieve existing run", func(t *testing.T) {
		r := &Run{ForumURL: testForumURL, Title: "Understanding RAG"}
		require.NoError(t, store.Create(ctx, r))

		got, err := store.GetByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, got.ID)
		assert.Equal(t, "Understanding RAG", got.Title)
		assert.Equal(t, StatusRunning, got.Status)
	})

	t.Run("non-existent run returns error", func(t *testing.T) {
		_, err := store.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrRunNotFound)
	})
}

func TestMySQLStore_Update(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	r := &Run{ForumURL: testForumURL}
	require.NoError(t, store.Create(ctx, r))

	t.Run("update message and snapshot", func(t *testing.T) {
		require.NoError(t, store.Update(ctx, r.ID, SetMessage("waiting"), SetSnapshotID("snap-1")))

		got, err := store.GetByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, "waiting", got.Message)
		assert.Equal(t, "snap-1", got.SnapshotID)
	})

	t.Run("update with invalid status returns error", func(t *testing.T) {
		err := store.Update(ctx, r.ID, SetStatus(Status("bogus")))
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("update non-existent returns error", func(t *testing.T) {
		err := store.Update(ctx, uuid.New(), SetMessage("x"))
		assert.ErrorIs(t, err, ErrRunNotFound)
	})
}

func TestMySQLStore_ListAndCount(t *testing.T) {
	db, store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		status := StatusDone
		if i%2 == 1 {
			status = StatusFailed
		}
		testutil.CreateFixture(t, db, &Run{
			ForumURL:  testForumURL,
			Title:     "run",
			Status:    status,
			StartTime: base.Add(time.Duration(i) * time.Minute),
		})
	}

	t.Run("list newest first", func(t *testing.T) {
		runs, err := store.List(ctx, "", 10, 0)
		require.NoError(t, err)
		require.Len(t, runs, 5)
		for i := 1; i < len(runs); i++ {
			assert.True(t, runs[i-1].StartTime.After(runs[i].StartTime))
		}
	})

	t.Run("list with pagination", func(t *testing.T) {
		page1, err := store.List(ctx, "", 2, 0)
		require.NoError(t, err)
		page2, err := store.List(ctx, "", 2, 2)
		require.NoError(t, err)
		require.Len(t, page1, 2)
		require.Len(t, page2, 2)
		assert.NotEqual(t, page1[0].ID, page2[0].ID)
	})

	t.Run("filter by status", func(t *testing.T) {
		runs, err := store.List(ctx, StatusFailed, 10, 0)
		require.NoError(t, err)
		assert.Len(t, runs, 2)
		for _, r := range runs {
			assert.Equal(t, StatusFailed, r.Status)
		}
	})

	t.Run("count", func(t *testing.T) {
		all, err := store.Count(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 5, all)

		done, err := store.Count(ctx, StatusDone)
		require.NoError(t, err)
		assert.Equal(t, 3, done)
	})

	t.Run("invalid status filter", func(t *testing.T) {
		_, err := store.List(ctx, Status("x"), 10, 0)
		assert.ErrorIs(t, err, ErrInvalidStatus)
		_, err = store.Count(ctx, Status("x"))
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})
}

func TestMySQLStore_Finish(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	t.Run("finish running run with success", func(t *testing.T) {
		r := &Run{ForumURL: testForumURL}
		require.NoError(t, store.Create(ctx, r))

		res := formfill.FillResult{
			RunID:      r.ID.String(),
			Success:    true,
			SnapshotID: "snap-9",
			LastState:  formfill.StateDone,
			States:     []formfill.State{formfill.StateIdle, formfill.StateNavigating, formfill.StateDone},
			DurationMS: 1200,
			Message:    "filled",
		}
		require.NoError(t, store.Finish(ctx, r.ID, res))

		got, err := store.GetByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusDone, got.Status)
		assert.Equal(t, "snap-9", got.SnapshotID)
		assert.Equal(t, "done", got.LastState)
		assert.Equal(t, States{"idle", "navigating", "done"}, got.States)
		require.NotNil(t, got.EndTime)
		require.NotNil(t, got.DurationMS)
		assert.Equal(t, int64(1200), *got.DurationMS)
	})

	t.Run("finish with failure keeps the class", func(t *testing.T) {
		r := &Run{ForumURL: testForumURL}
		require.NoError(t, store.Create(ctx, r))

		res := formfill.FillResult{
			RunID:          r.ID.String(),
			Error:          formfill.ClassNotFound,
			LastState:      formfill.StateAwaitingFormLoad,
			LastSnapshotID: "snap-3",
		}
		require.NoError(t, store.Finish(ctx, r.ID, res))

		got, err := store.GetByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, got.Status)
		assert.Equal(t, "element_not_found", got.ErrorClass)
		assert.Equal(t, "snap-3", got.SnapshotID)
	})

	t.Run("finish twice returns error", func(t *testing.T) {
		r := &Run{ForumURL: testForumURL}
		require.NoError(t, store.Create(ctx, r))
		require.NoError(t, store.Finish(ctx, r.ID, formfill.FillResult{Success: true}))

		err := store.Finish(ctx, r.ID, formfill.FillResult{Success: true})
		assert.ErrorIs(t, err, ErrRunNotRunning)
	})

	t.Run("finish with another run's result returns error", func(t *testing.T) {
		r := &Run{ForumURL: testForumURL}
		require.NoError(t, store.Create(ctx, r))

		err := store.Finish(ctx, r.ID, formfill.FillResult{RunID: uuid.New().String()})
		assert.ErrorIs(t, err, ErrRunIDMismatch)
	})

	t.Run("finish non-existent run returns error", func(t *testing.T) {
		err := store.Finish(ctx, uuid.New(), formfill.FillResult{})
		assert.ErrorIs(t, err, ErrRunNotFound)
	})
}
