package devtools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuanbinnoorazman/forum-autofill/browser"
	"github.com/hairizuanbinnoorazman/forum-autofill/browser/browsertest"
	"github.com/hairizuanbinnoorazman/forum-autofill/content"
	"github.com/hairizuanbinnoorazman/forum-autofill/formfill"
	"github.com/hairizuanbinnoorazman/forum-autofill/logger"
	"github.com/hairizuanbinnoorazman/forum-autofill/retry"
	"github.com/hairizuanbinnoorazman/forum-autofill/session"
)

const testForumURL = "https://moodle.example.edu/mod/forum/view.php?id=42"

func dial(t *testing.T, forum *browsertest.Forum, cfg Config) (*Driver, *fakeServer) {
	t.Helper()
	fake := newFakeServer(t, forum, cfg.ToolPrefix)
	d := NewDialerWithTransport(cfg, fake.transport(context.Background()), nil)

	drv, err := d.Dial(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })
	return drv.(*Driver), fake
}

func TestDriver_Operations(t *testing.T) {
	forum := browsertest.NewForum(browsertest.Options{LoadPolls: 1})
	drv, fake := dial(t, forum, Config{NavigationTimeout: 30 * time.Second})
	ctx := context.Background()

	require.NoError(t, drv.Navigate(ctx, testForumURL))
	assert.Equal(t, testForumURL, forum.URL())
	args := fake.lastNavArgs()
	assert.Equal(t, "url", args["type"])
	assert.EqualValues(t, 30000, args["timeout"])

	state, err := drv.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, browser.LoadLoading, state)
	state, err = drv.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, browser.LoadComplete, state)

	capture, err := drv.Snapshot(ctx)
	require.NoError(t, err)
	assert.Contains(t, capture.Raw, "Latest page snapshot")
	var create browser.Node
	for _, n := range capture.Nodes {
		if n.Name == browsertest.CreateLabel {
			create = n
		}
	}
	require.NotEmpty(t, create.Ref)
	assert.Equal(t, "button", create.Role)

	require.NoError(t, drv.Click(ctx, create.Ref))
	capture, err = drv.Snapshot(ctx)
	require.NoError(t, err)

	refs := map[string]browser.Node{}
	for _, n := range capture.Nodes {
		refs[n.Name] = n
	}
	subject := refs[browsertest.SubjectLabel]
	body := refs[browsertest.BodyLabel]
	require.NotEmpty(t, subject.Ref)
	require.NotEmpty(t, body.Ref)
	assert.Equal(t, "id_subject", subject.Attr("id"))
	assert.Equal(t, "true", body.Attr("multiline"))

	require.NoError(t, drv.Fill(ctx, subject.Ref, `Quotes "inside" the title`))
	assert.Equal(t, `Quotes "inside" the title`, forum.Subject())

	markup := "<h2>What I Understand</h2>\n<p>RAG</p>"
	require.NoError(t, drv.InsertRich(ctx, body.Ref, markup))
	assert.Equal(t, markup, forum.Body())

	capture, err = drv.Snapshot(ctx)
	require.NoError(t, err)
	for _, n := range capture.Nodes {
		switch n.Name {
		case browsertest.SubjectLabel:
			assert.Equal(t, `Quotes "inside" the title`, n.Value)
		case browsertest.BodyLabel:
			assert.Equal(t, markup, n.Value)
		}
	}
	assert.False(t, forum.Submitted())
}

func TestDriver_ErrorMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown uid", func(t *testing.T) {
		drv, _ := dial(t, browsertest.NewForum(browsertest.Options{}), Config{})
		err := drv.Click(ctx, "e99")
		assert.ErrorIs(t, err, browser.ErrUnknownRef)
		assert.False(t, browser.IsFatal(err))
	})

	t.Run("rejected navigation", func(t *testing.T) {
		drv, _ := dial(t, browsertest.NewForum(browsertest.Options{RejectNavigate: true}), Config{})
		err := drv.Navigate(ctx, testForumURL)
		assert.ErrorIs(t, err, browser.ErrRejected)
	})

	t.Run("closed session is fatal", func(t *testing.T) {
		drv, fake := dial(t, browsertest.NewForum(browsertest.Options{}), Config{})
		fake.closeSessions()
		require.NoError(t, drv.Close())
		_, err := drv.Snapshot(ctx)
		assert.True(t, browser.IsFatal(err), "got %v", err)
	})

	t.Run("cancelled context is not fatal", func(t *testing.T) {
		drv, _ := dial(t, browsertest.NewForum(browsertest.Options{}), Config{})
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := drv.Snapshot(cctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, browser.IsFatal(err))
	})
}

func TestDialer(t *testing.T) {
	ctx := context.Background()

	t.Run("tool prefix", func(t *testing.T) {
		forum := browsertest.NewForum(browsertest.Options{})
		drv, _ := dial(t, forum, Config{ToolPrefix: "chrome_"})
		require.NoError(t, drv.Navigate(ctx, testForumURL))
		assert.Equal(t, testForumURL, forum.URL())
	})

	t.Run("missing tools", func(t *testing.T) {
		fake := newFakeServer(t, browsertest.NewForum(browsertest.Options{}), "", ToolFill)
		d := NewDialerWithTransport(Config{}, fake.transport(ctx), nil)
		_, err := d.Dial(ctx)
		assert.ErrorIs(t, err, browser.ErrUnreachable)
		assert.Contains(t, err.Error(), ToolFill)
	})

	t.Run("no command or url", func(t *testing.T) {
		_, err := NewDialer(Config{}, nil).Dial(ctx)
		assert.ErrorIs(t, err, browser.ErrUnreachable)
	})

	t.Run("endpoint description", func(t *testing.T) {
		assert.Equal(t, "http://127.0.0.1:3000/mcp", NewDialer(Config{URL: "http://127.0.0.1:3000/mcp", Command: "npx"}, nil).Endpoint())
		assert.Equal(t, "npx -y chrome-devtools-mcp@latest --browserUrl=http://127.0.0.1:9222", NewDialer(DefaultConfig(), nil).Endpoint())
	})
}

func TestScriptResult(t *testing.T) {
	assert.Equal(t, `"complete"`, string(scriptResult("Script ran on page and returned:\n```json\n\"complete\"\n```")))
	assert.Equal(t, `{"ok":true}`, string(scriptResult(`  {"ok":true} `)))
}

func TestEngineOverDevtools(t *testing.T) {
	forum := browsertest.NewForum(browsertest.Options{LoadPolls: 1, FormDelay: 1})
	fake := newFakeServer(t, forum, "")
	log := logger.NewTestLogger()
	dialer := NewDialerWithTransport(Config{}, fake.transport(context.Background()), log)
	mgr := session.NewManager(dialer, session.Config{RoundTripTimeout: 5 * time.Second}, log)
	defer mgr.Close()

	cfg := formfill.DefaultConfig()
	cfg.ForumURL = testForumURL
	fast := retry.Policy{Attempts: 4, Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2}
	cfg.Budgets = formfill.Budgets{PageLoad: fast, Locate: fast, FormLoad: fast, Verify: fast}
	engine := formfill.NewEngine(mgr, cfg, log)

	post := content.Post{
		Title: "Understanding RAG",
		Sections: []content.Section{
			{Name: "understood", Text: "RAG combines **retrieval** and generation", Citations: []string{"Lewis et al. 2020"}},
			{Name: "confused", Text: "- chunk sizes\n- reranking"},
		},
	}
	res := engine.Fill(context.Background(), post, "")

	require.True(t, res.Success, res.Message)
	assert.Equal(t, formfill.StateDone, res.LastState)
	assert.Equal(t, "Understanding RAG", forum.Subject())
	assert.Contains(t, forum.Body(), "<strong>retrieval</strong>")
	assert.Contains(t, forum.Body(), "<h2>References</h2>")
	assert.False(t, forum.Submitted())
	assert.Contains(t, log.Messages("info"), "devtools MCP server connected")
}
