package devtools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hairizuanbinnoorazman/forum-autofill/browser/browsertest"
)

var fakeMarkupLine = regexp.MustCompile(`const markup = (.*);`)

// fakeServer is a chrome-devtools MCP server backed by a scripted forum.
type fakeServer struct {
	forum  *browsertest.Forum
	srv    *mcp.Server
	prefix string

	mu       sync.Mutex
	navArgs  []map[string]any
	sessions []*mcp.ServerSession
}

func newFakeServer(t *testing.T, forum *browsertest.Forum, prefix string, skip ...string) *fakeServer {
	t.Helper()
	f := &fakeServer{
		forum:  forum,
		srv:    mcp.NewServer(&mcp.Implementation{Name: "fake-devtools", Version: "0.0.1"}, nil),
		prefix: prefix,
	}
	skipped := map[string]bool{}
	for _, s := range skip {
		skipped[s] = true
	}
	handlers := map[string]mcp.ToolHandler{
		ToolNavigate: f.navigate,
		ToolSnapshot: f.snapshot,
		ToolClick:    f.click,
		ToolFill:     f.fill,
		ToolEvaluate: f.evaluate,
	}
	for name, h := range handlers {
		if skipped[name] {
			continue
		}
		f.srv.AddTool(&mcp.Tool{
			Name:        prefix + name,
			Description: "fake " + name,
			InputSchema: map[string]any{"type": "object"},
		}, h)
	}
	return f
}

func (f *fakeServer) transport(ctx context.Context) func() (mcp.Transport, error) {
	return func() (mcp.Transport, error) {
		serverT, clientT := mcp.NewInMemoryTransports()
		ss, err := f.srv.Connect(ctx, serverT, nil)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.sessions = append(f.sessions, ss)
		f.mu.Unlock()
		return clientT, nil
	}
}

func (f *fakeServer) closeSessions() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ss := range f.sessions {
		ss.Close()
	}
}

func (f *fakeServer) lastNavArgs() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.navArgs) == 0 {
		return nil
	}
	return f.navArgs[len(f.navArgs)-1]
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func errorResult(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}

func scriptReply(v any) *mcp.CallToolResult {
	b, _ := json.Marshal(v)
	return textResult("Script ran on page and returned:\n```json\n" + string(b) + "\n```")
}

func decode(req *mcp.CallToolRequest) (map[string]any, error) {
	args := map[string]any{}
	if len(req.Params.Arguments) == 0 {
		return args, nil
	}
	err := json.Unmarshal(req.Params.Arguments, &args)
	return args, err
}

func (f *fakeServer) navigate(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode(req)
	if err != nil {
		return errorResult(err), nil
	}
	f.mu.Lock()
	f.navArgs = append(f.navArgs, args)
	f.mu.Unlock()

	url, _ := args["url"].(string)
	if err := f.forum.Navigate(ctx, url); err != nil {
		return errorResult(err), nil
	}
	return textResult("Successfully navigated to " + url), nil
}

func (f *fakeServer) snapshot(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	capture, err := f.forum.Snapshot(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	var b strings.Builder
	b.WriteString("## Latest page snapshot\n")
	b.WriteString(`uid=root RootWebArea "Course forum" url="https://moodle.example.edu/"` + "\n")
	for _, n := range capture.Nodes {
		fmt.Fprintf(&b, "  uid=%s %s %s", n.Ref, n.Role, strconv.Quote(n.Name))
		keys := make([]string, 0, len(n.Attrs))
		for k := range n.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if n.Attrs[k] == "true" {
				fmt.Fprintf(&b, " %s", k)
				continue
			}
			fmt.Fprintf(&b, " %s=%s", k, strconv.Quote(n.Attrs[k]))
		}
		if n.Value != "" {
			fmt.Fprintf(&b, " value=%s", strconv.Quote(n.Value))
		}
		b.WriteString("\n")
	}
	return textResult(b.String()), nil
}

func (f *fakeServer) click(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode(req)
	if err != nil {
		return errorResult(err), nil
	}
	uid, _ := args["uid"].(string)
	if err := f.forum.Click(ctx, uid); err != nil {
		return errorResult(err), nil
	}
	return textResult("Successfully clicked on the element"), nil
}

func (f *fakeServer) fill(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode(req)
	if err != nil {
		return errorResult(err), nil
	}
	uid, _ := args["uid"].(string)
	value, _ := args["value"].(string)
	if err := f.forum.Fill(ctx, uid, value); err != nil {
		return errorResult(err), nil
	}
	return textResult("Successfully filled out the element"), nil
}

func (f *fakeServer) evaluate(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Function string `json:"function"`
		Args     []struct {
			UID string `json:"uid"`
		} `json:"args"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return errorResult(err), nil
	}

	if strings.Contains(args.Function, "document.readyState") {
		state, err := f.forum.LoadState(ctx)
		if err != nil {
			return errorResult(err), nil
		}
		return scriptReply(string(state)), nil
	}

	m := fakeMarkupLine.FindStringSubmatch(args.Function)
	if m == nil || len(args.Args) != 1 {
		return errorResult(fmt.Errorf("unsupported script")), nil
	}
	var markup string
	if err := json.Unmarshal([]byte(m[1]), &markup); err != nil {
		return errorResult(err), nil
	}
	if err := f.forum.InsertRich(ctx, args.Args[0].UID, markup); err != nil {
		return errorResult(err), nil
	}
	return scriptReply(map[string]any{"ok": true, "mode": "tinymce"}), nil
}
