// Package devtools drives a browser through a chrome-devtools MCP server.
// The server is attached to a browser the user already started and logged
// into; this package never launches one.
package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hairizuanbinnoorazman/forum-autofill/browser"
	"github.com/hairizuanbinnoorazman/forum-autofill/logger"
)

// Tool names exposed by chrome-devtools-mcp.
const (
	ToolNavigate = "navigate_page"
	ToolSnapshot = "take_snapshot"
	ToolClick    = "click"
	ToolFill     = "fill"
	ToolEvaluate = "evaluate_script"
)

// RequiredTools must all be listed by the server for Dial to succeed.
var RequiredTools = []string{ToolNavigate, ToolSnapshot, ToolClick, ToolFill, ToolEvaluate}

// Driver is one MCP client session. It implements browser.Driver.
type Driver struct {
	cs         *mcp.ClientSession
	prefix     string
	navTimeout time.Duration
	logger     logger.Logger
}

var _ browser.Driver = (*Driver)(nil)

func (d *Driver) tool(name string) string {
	return d.prefix + name
}

// call runs one tool and returns its text content. ref, when set, is the
// element uid the tool targets.
func (d *Driver) call(ctx context.Context, tool, ref string, args map[string]any) (string, error) {
	res, err := d.cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      d.tool(tool),
		Arguments: args,
	})
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return "", fmt.Errorf("%s: %w", tool, cerr)
		}
		return "", fmt.Errorf("%w: %s: %v", browser.ErrDisconnected, tool, err)
	}

	text := textOf(res)
	if res.IsError {
		if ref != "" && strings.Contains(text, ref) {
			return "", fmt.Errorf("%w: %s: %s", browser.ErrUnknownRef, tool, text)
		}
		return "", fmt.Errorf("%w: %s: %s", browser.ErrRejected, tool, text)
	}
	return text, nil
}

func textOf(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	args := map[string]any{"type": "url", "url": url}
	timeout := d.navTimeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	if timeout > 0 {
		args["timeout"] = timeout.Milliseconds()
	}
	_, err := d.call(ctx, ToolNavigate, "", args)
	return err
}

func (d *Driver) LoadState(ctx context.Context) (browser.LoadState, error) {
	text, err := d.call(ctx, ToolEvaluate, "", map[string]any{"function": browser.ReadyStateScript})
	if err != nil {
		return "", err
	}
	var state string
	if err := json.Unmarshal(scriptResult(text), &state); err != nil {
		return "", fmt.Errorf("%w: readyState result %q: %v", browser.ErrRejected, text, err)
	}
	return browser.LoadState(state), nil
}

func (d *Driver) Snapshot(ctx context.Context) (*browser.Capture, error) {
	text, err := d.call(ctx, ToolSnapshot, "", map[string]any{})
	if err != nil {
		return nil, err
	}
	return &browser.Capture{Raw: text, Nodes: ParseSnapshot(text)}, nil
}

func (d *Driver) Click(ctx context.Context, ref string) error {
	_, err := d.call(ctx, ToolClick, ref, map[string]any{"uid": ref})
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(browser.ErrAmbiguous, err)
	}
	return err
}

func (d *Driver) Fill(ctx context.Context, ref, value string) error {
	_, err := d.call(ctx, ToolFill, ref, map[string]any{"uid": ref, "value": value})
	return err
}

func (d *Driver) InsertRich(ctx context.Context, ref, markup string) error {
	text, err := d.call(ctx, ToolEvaluate, ref, map[string]any{
		"function": browser.InsertRichScript(markup),
		"args":     []map[string]any{{"uid": ref}},
	})
	if err != nil {
		return err
	}
	var out browser.InsertOutcome
	if err := json.Unmarshal(scriptResult(text), &out); err != nil {
		return fmt.Errorf("%w: insert result %q: %v", browser.ErrRejected, text, err)
	}
	if !out.OK {
		return fmt.Errorf("%w: insert: %s", browser.ErrRejected, out.Reason)
	}
	d.logger.Debug(ctx, "rich content inserted", map[string]interface{}{
		"uid":  ref,
		"mode": out.Mode,
	})
	return nil
}

func (d *Driver) Close() error {
	return d.cs.Close()
}

// scriptResult extracts the JSON value from an evaluate_script reply, which
// wraps it in a fenced json block after a line of prose.
func scriptResult(text string) []byte {
	const fence = "```"
	if i := strings.Index(text, fence+"json"); i >= 0 {
		body := text[i+len(fence)+len("json"):]
		if j := strings.Index(body, fence); j >= 0 {
			body = body[:j]
		}
		return []byte(strings.TrimSpace(body))
	}
	return []byte(strings.TrimSpace(text))
}
