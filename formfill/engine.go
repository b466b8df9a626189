// Package formfill sequences navigation, snapshots, element resolution and
// field interaction into one fill operation. It never submits the form.
package formfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hairizuanbinnoorazman/forum-autofill/content"
	"github.com/hairizuanbinnoorazman/forum-autofill/logger"
	"github.com/hairizuanbinnoorazman/forum-autofill/session"
	"github.com/hairizuanbinnoorazman/forum-autofill/snapshot"
)

// ConnectionHint is appended to connection failures.
const ConnectionHint = "start Chrome with --remote-debugging-port=9222 and the chrome-devtools MCP server, then retry"

// Engine runs fill operations against the managed session.
type Engine struct {
	sessions    *session.Manager
	resolver    *snapshot.Resolver
	transformer *content.Transformer
	recorder    Recorder
	cfg         Config
	logger      logger.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithResolver sets the snapshot resolver, e.g. one that archives captures.
func WithResolver(r *snapshot.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithRecorder persists every operation.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithTransformer replaces the content transformer.
func WithTransformer(t *content.Transformer) Option {
	return func(e *Engine) { e.transformer = t }
}

// NewEngine creates an engine over sessions.
func NewEngine(sessions *session.Manager, cfg Config, log logger.Logger, opts ...Option) *Engine {
	log = logger.OrNop(log)
	e := &Engine{
		sessions: sessions,
		cfg:      cfg,
		logger:   log,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.resolver == nil {
		e.resolver = snapshot.NewResolver(nil, log)
	}
	if e.transformer == nil {
		e.transformer = content.NewTransformer()
	}
	return e
}

var _ Filler = (*Engine)(nil)

// Fill runs one operation. An empty forumURL uses the configured one. It
// always returns a result and never panics.
func (e *Engine) Fill(ctx context.Context, post content.Post, forumURL string) (res FillResult) {
	if forumURL == "" {
		forumURL = e.cfg.ForumURL
	}
	r := newRun(e, forumURL, post)

	defer func() {
		if p := recover(); p != nil {
			r.log.Error(ctx, "fill operation panicked", map[string]interface{}{
				"panic": fmt.Sprint(p),
			})
			res = r.fail(ctx, ClassProtocol, fmt.Errorf("internal error: %v", p))
		}
		res.DurationMS = time.Since(r.started).Milliseconds()
		e.finish(ctx, res)
	}()

	e.start(ctx, r)

	if err := post.Validate(); err != nil {
		return r.fail(ctx, ClassInvalid, err)
	}
	// Rendering is pure, so doing it first surfaces payload errors before
	// any browser action.
	markup, err := e.transformer.ToMarkup(post)
	if err != nil {
		return r.fail(ctx, ClassInvalid, err)
	}
	if _, err := e.cfg.ValidateURL(forumURL); err != nil {
		return r.fail(ctx, ClassNavigation, err)
	}

	res, err = session.WithSession(ctx, e.sessions, func(ctx context.Context, s *session.Session) (FillResult, error) {
		r.log = r.log.WithField("session_id", s.ID())
		return r.execute(ctx, s, markup), nil
	})
	if err != nil {
		return r.fail(ctx, Classify(err), err)
	}
	return res
}

func (e *Engine) start(ctx context.Context, r *run) {
	r.log.Info(ctx, "fill operation started", map[string]interface{}{
		"forum_url": r.forumURL,
	})
	if e.recorder == nil {
		return
	}
	info := RunInfo{RunID: r.id, ForumURL: r.forumURL, Title: r.post.Title, StartedAt: r.started}
	if err := e.recorder.Started(ctx, info); err != nil {
		r.log.Warn(ctx, "failed to record fill start", map[string]interface{}{"error": err.Error()})
	}
}

func (e *Engine) finish(ctx context.Context, res FillResult) {
	fields := map[string]interface{}{
		"run_id":      res.RunID,
		"success":     res.Success,
		"last_state":  string(res.LastState),
		"snapshot_id": res.SnapshotID,
		"duration_ms": res.DurationMS,
	}
	if res.Error != "" {
		fields["error_class"] = string(res.Error)
	}
	e.logger.Info(ctx, "fill operation finished", fields)

	if e.recorder == nil {
		return
	}
	// The caller's context may be cancelled; the record still gets written.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.recorder.Finished(rctx, res); err != nil {
		e.logger.Warn(ctx, "failed to record fill result", map[string]interface{}{
			"run_id": res.RunID,
			"error":  err.Error(),
		})
	}
}

// notFoundError carries the descriptor that failed to resolve.
type notFoundError struct {
	descriptor snapshot.Descriptor
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("%s not found in snapshot (names %q, roles %q)",
		e.descriptor.String(), e.descriptor.Names, e.descriptor.Roles)
}

func (e *notFoundError) Unwrap() error { return ErrElementNotFound }

func descriptorOf(err error) string {
	var nf *notFoundError
	if errors.As(err, &nf) {
		return nf.descriptor.String()
	}
	return ""
}

func newRunID() string {
	return uuid.New().String()
}
