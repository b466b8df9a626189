package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hairizuanbinnoorazman/forum-autofill/content"
)

var (
	fillDraftPath string
	fillURL       string
)

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Fill the forum form once from a draft file",
	RunE:  runFill,
}

func init() {
	fillCmd.Flags().StringVarP(&fillDraftPath, "draft", "d", "", "draft file (JSON or Markdown)")
	fillCmd.Flags().StringVarP(&fillURL, "url", "u", "", "forum URL (defaults to forum.url)")
	fillCmd.MarkFlagRequired("draft")
	rootCmd.AddCommand(fillCmd)
}

func runFill(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	post, err := readDraft(fillDraftPath)
	if err != nil {
		return err
	}

	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := newLogger(cfg)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.engine.Fill(ctx, post, fillURL)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("fill failed: %s", res.Error)
	}
	return nil
}

func readDraft(path string) (content.Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return content.Post{}, fmt.Errorf("failed to read draft: %w", err)
	}
	post, err := content.ParseDraft(string(data))
	if err != nil {
		return content.Post{}, fmt.Errorf("failed to parse draft: %w", err)
	}
	return post, nil
}
