// Package mcpserver exposes the form-fill engine as an MCP tool.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hairizuanbinnoorazman/forum-autofill/content"
	"github.com/hairizuanbinnoorazman/forum-autofill/formfill"
	"github.com/hairizuanbinnoorazman/forum-autofill/logger"
)

const ToolName = "fill_forum_form"

const toolDescription = "Open the forum's new-discussion form in the user's browser and fill in the subject and body. " +
	"The post is never submitted: the user reviews it and presses the forum's own post button. " +
	"Pass either structured sections or a draft (JSON or Markdown with # Title and ## section headings)."

// FillRequest is the tool input.
type FillRequest struct {
	Title     string            `json:"title,omitempty"`
	Sections  []content.Section `json:"sections,omitempty"`
	Citations []string          `json:"citations,omitempty"`
	Draft     string            `json:"draft,omitempty"`
	ForumURL  string            `json:"forum_url,omitempty"`
}

// Post builds the post from the draft when one is given, else from the
// structured fields.
func (r FillRequest) Post() (content.Post, error) {
	if strings.TrimSpace(r.Draft) != "" {
		if r.Title != "" || len(r.Sections) > 0 {
			return content.Post{}, fmt.Errorf("%w: give either draft or title and sections, not both", content.ErrInvalidPost)
		}
		return content.ParseDraft(r.Draft)
	}
	return content.Post{Title: r.Title, Sections: r.Sections, Citations: r.Citations}, nil
}

func inputSchema() map[string]any {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	list := func(desc string) map[string]any {
		return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": str("Discussion subject"),
			"sections": map[string]any{
				"type":        "array",
				"description": "Body sections in order",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name": map[string]any{
							"type": "string",
							"enum": []string{
								content.SectionUnderstood, content.SectionConfused, content.SectionSummary,
								content.SectionAISummary, content.SectionQuestions,
							},
						},
						"text":      str("Section text, Markdown subset. {{cite:k}} references the k-th citation"),
						"citations": list("Sources for this section"),
					},
					"required": []string{"name", "text"},
				},
			},
			"citations": list("Sources listed only in the reference list"),
			"draft":     str("Whole post as JSON or Markdown, instead of title and sections"),
			"forum_url": str("Forum page URL. Defaults to the configured forum"),
		},
	}
}

// Register adds the fill tool to srv.
func Register(srv *mcp.Server, filler formfill.Filler, log logger.Logger) {
	log = logger.OrNop(log)
	tool := &mcp.Tool{
		Name:        ToolName,
		Description: toolDescription,
		InputSchema: inputSchema(),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var in FillRequest
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &in); err != nil {
				return invalid(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}
		post, err := in.Post()
		if err != nil {
			return invalid(err), nil
		}

		res := filler.Fill(ctx, post, in.ForumURL)
		log.Info(ctx, "fill tool called", map[string]interface{}{
			"run_id":  res.RunID,
			"success": res.Success,
		})

		data, err := json.Marshal(res)
		if err != nil {
			var out mcp.CallToolResult
			out.SetError(fmt.Errorf("marshal: %w", err))
			return &out, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
			IsError: !res.Success,
		}, nil
	})
}

// invalid reports a payload rejected before the engine ran, in the same
// shape the engine reports failures.
func invalid(err error) *mcp.CallToolResult {
	res := formfill.FillResult{
		Error:     formfill.ClassInvalid,
		LastState: formfill.StateIdle,
		States:    []formfill.State{formfill.StateIdle, formfill.StateFailed},
		Message:   fmt.Sprintf("%s: %v", formfill.ClassInvalid, err),
	}
	data, _ := json.Marshal(res)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		IsError: true,
	}
}
