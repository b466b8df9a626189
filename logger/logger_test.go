package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestLogger_SharedBuffer(t *testing.T) {
	ctx := context.Background()
	root := NewTestLogger()
	child := root.WithField("run_id", "r1")

	root.Info(ctx, "root entry", nil)
	child.Warn(ctx, "child entry", map[string]interface{}{"state": "navigating"})

	entries := root.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "child entry", entries[1].Message)
	assert.Equal(t, "r1", entries[1].Fields["run_id"])
	assert.Equal(t, "navigating", entries[1].Fields["state"])
	assert.NotContains(t, entries[0].Fields, "run_id")

	assert.Equal(t, []string{"child entry"}, root.Messages("warn"))

	root.Reset()
	assert.Empty(t, child.(*TestLogger).Entries())
}

func TestLogrusLogger_Format(t *testing.T) {
	ctx := context.Background()

	t.Run("json output carries fields", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogrusLogger("debug", "json", &buf)
		log.WithField("session_id", "s1").Debug(ctx, "round trip", map[string]interface{}{"op": "snapshot"})

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "round trip", decoded["msg"])
		assert.Equal(t, "s1", decoded["session_id"])
		assert.Equal(t, "snapshot", decoded["op"])
	})

	t.Run("level filters entries", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogrusLogger("warn", "text", &buf)
		log.Info(ctx, "dropped", nil)
		assert.Zero(t, buf.Len())
		log.Error(ctx, "kept", nil)
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogrusLogger("loud", "json", &buf)
		log.Debug(ctx, "dropped", nil)
		assert.Zero(t, buf.Len())
		log.Info(ctx, "kept", nil)
		assert.Contains(t, buf.String(), "kept")
	})
}

func TestOrNop(t *testing.T) {
	assert.IsType(t, NopLogger{}, OrNop(nil))
	tl := NewTestLogger()
	assert.Same(t, tl, OrNop(tl))
}
