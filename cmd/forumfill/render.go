package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hairizuanbinnoorazman/forum-autofill/content"
)

var (
	renderDraftPath string
	renderMarkdown  bool
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the body markup a draft would produce, without touching the browser",
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderDraftPath, "draft", "d", "", "draft file (JSON or Markdown)")
	renderCmd.Flags().BoolVarP(&renderMarkdown, "markdown", "m", false, "print a Markdown preview instead of markup")
	renderCmd.MarkFlagRequired("draft")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	post, err := readDraft(renderDraftPath)
	if err != nil {
		return err
	}

	markup, err := content.ToMarkup(post)
	if err != nil {
		return err
	}

	out := markup
	if renderMarkdown {
		if out, err = content.Preview(markup); err != nil {
			return fmt.Errorf("failed to render preview: %w", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Subject: %s\n\n%s\n", post.Title, out)
	return nil
}
