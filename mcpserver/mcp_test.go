package mcpserver

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuanbinnoorazman/forum-autofill/browser/browsertest"
	"github.com/hairizuanbinnoorazman/forum-autofill/content"
	"github.com/hairizuanbinnoorazman/forum-autofill/formfill"
	"github.com/hairizuanbinnoorazman/forum-autofill/retry"
	"github.com/hairizuanbinnoorazman/forum-autofill/session"
)

var testImpl = &mcp.Implementation{Name: "forumfill-test", Version: "0.1.0"}

type fakeFiller struct {
	mu     sync.Mutex
	posts  []content.Post
	urls   []string
	result formfill.FillResult
}

func (f *fakeFiller) Fill(ctx context.Context, post content.Post, forumURL string) formfill.FillResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, post)
	f.urls = append(f.urls, forumURL)
	return f.result
}

func mcpSession(t *testing.T, filler formfill.Filler) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testImpl, nil)
	Register(srv, filler, nil)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testImpl, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func callFill(t *testing.T, cs *mcp.ClientSession, args any) (formfill.FillResult, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: ToolName, Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected TextContent")

	var out formfill.FillResult
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &out))
	return out, res.IsError
}

func TestToolListed(t *testing.T) {
	cs := mcpSession(t, &fakeFiller{})

	tools, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, ToolName, tools.Tools[0].Name)
	assert.Contains(t, tools.Tools[0].Description, "never submitted")
}

func TestFillTool(t *testing.T) {
	t.Run("structured sections", func(t *testing.T) {
		filler := &fakeFiller{result: formfill.FillResult{RunID: "r1", Success: true, LastState: formfill.StateDone}}
		cs := mcpSession(t, filler)

		out, isErr := callFill(t, cs, map[string]any{
			"title":     "Understanding RAG",
			"sections":  []map[string]any{{"name": "understood", "text": "RAG combines retrieval"}},
			"forum_url": "https://moodle.example.edu/mod/forum/view.php?id=1",
		})

		assert.False(t, isErr)
		assert.True(t, out.Success)
		assert.Equal(t, "r1", out.RunID)
		require.Len(t, filler.posts, 1)
		assert.Equal(t, "Understanding RAG", filler.posts[0].Title)
		assert.Equal(t, "understood", filler.posts[0].Sections[0].Name)
		assert.Equal(t, "https://moodle.example.edu/mod/forum/view.php?id=1", filler.urls[0])
	})

	t.Run("markdown draft", func(t *testing.T) {
		filler := &fakeFiller{result: formfill.FillResult{Success: true}}
		cs := mcpSession(t, filler)

		_, isErr := callFill(t, cs, map[string]any{
			"draft": "# Understanding RAG\n\n## What I Understand\n\nRAG combines retrieval\n",
		})

		assert.False(t, isErr)
		require.Len(t, filler.posts, 1)
		assert.Equal(t, "Understanding RAG", filler.posts[0].Title)
		assert.Equal(t, "", filler.urls[0])
	})

	t.Run("failure is surfaced verbatim", func(t *testing.T) {
		want := formfill.FillResult{
			RunID:      "r2",
			Error:      formfill.ClassNotFound,
			LastState:  formfill.StateAwaitingFormLoad,
			Descriptor: "body editor",
			Message:    "element_not_found after awaiting_form_load: body editor not found",
		}
		cs := mcpSession(t, &fakeFiller{result: want})

		out, isErr := callFill(t, cs, map[string]any{
			"title":    "t",
			"sections": []map[string]any{{"name": "understood", "text": "x"}},
		})

		assert.True(t, isErr)
		assert.Equal(t, want.Message, out.Message)
		assert.Equal(t, want.Descriptor, out.Descriptor)
		assert.Equal(t, formfill.ClassNotFound, out.Error)
	})

	t.Run("draft and sections together are rejected", func(t *testing.T) {
		filler := &fakeFiller{}
		cs := mcpSession(t, filler)

		out, isErr := callFill(t, cs, map[string]any{
			"title": "t",
			"draft": "# t\n\n## What I Understand\n\nx",
		})

		assert.True(t, isErr)
		assert.Equal(t, formfill.ClassInvalid, out.Error)
		assert.Empty(t, filler.posts)
	})
}

func TestFillTool_WithEngine(t *testing.T) {
	forum := browsertest.NewForum(browsertest.Options{})
	mgr := session.NewManager(browsertest.NewDialer(forum), session.Config{}, nil)
	defer mgr.Close()

	cfg := formfill.DefaultConfig()
	cfg.ForumURL = "https://moodle.example.edu/mod/forum/view.php?id=42"
	fast := retry.Policy{Attempts: 3, Initial: time.Millisecond, Max: time.Millisecond}
	cfg.Budgets = formfill.Budgets{PageLoad: fast, Locate: fast, FormLoad: fast, Verify: fast}
	cs := mcpSession(t, formfill.NewEngine(mgr, cfg, nil))

	out, isErr := callFill(t, cs, map[string]any{
		"title":    "Understanding RAG",
		"sections": []map[string]any{{"name": "understood", "text": "RAG combines retrieval"}},
	})

	require.False(t, isErr, out.Message)
	assert.Equal(t, formfill.StateDone, out.LastState)
	assert.Equal(t, "Understanding RAG", forum.Subject())
	assert.False(t, forum.Submitted())

	out, isErr = callFill(t, cs, map[string]any{"title": "no sections"})
	assert.True(t, isErr)
	assert.Equal(t, formfill.ClassInvalid, out.Error)
}
