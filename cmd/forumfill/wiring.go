package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/hairizuanbinnoorazman/forum-autofill/browser"
	"github.com/hairizuanbinnoorazman/forum-autofill/browser/cdp"
	"github.com/hairizuanbinnoorazman/forum-autofill/browser/devtools"
	"github.com/hairizuanbinnoorazman/forum-autofill/database"
	"github.com/hairizuanbinnoorazman/forum-autofill/fillrun"
	"github.com/hairizuanbinnoorazman/forum-autofill/formfill"
	"github.com/hairizuanbinnoorazman/forum-autofill/logger"
	"github.com/hairizuanbinnoorazman/forum-autofill/session"
	"github.com/hairizuanbinnoorazman/forum-autofill/snapshot"
	"github.com/hairizuanbinnoorazman/forum-autofill/storage"
)

const (
	driverDevtools = "devtools-mcp"
	driverRod      = "rod"
)

// writeSlack is the room left after a fill's deadline to encode the result.
const writeSlack = 10 * time.Second

// app is the assembled engine and its optional run history.
type app struct {
	engine   *formfill.Engine
	sessions *session.Manager
	runs     fillrun.Store
	db       *gorm.DB
	logger   logger.Logger
}

func newLogger(cfg *Config) logger.Logger {
	return logger.NewLogrusLogger(cfg.Log.Level, cfg.Log.Format, nil)
}

// newApp wires every component from cfg. Nothing dials the browser until
// the first fill.
func newApp(ctx context.Context, cfg *Config, log logger.Logger) (*app, error) {
	dialer, err := newDialer(cfg, log)
	if err != nil {
		return nil, err
	}

	policy, err := session.ParseBusyPolicy(cfg.Session.BusyPolicy)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(dialer, session.Config{
		ConnectTimeout:    cfg.Browser.ConnectTimeout,
		RoundTripTimeout:  cfg.Budgets.RoundTripTimeout,
		NavigationTimeout: cfg.Budgets.NavigationTimeout,
		Policy:            policy,
		Sink:              session.LogSink{Logger: log},
	}, log)

	archive, err := storage.New(ctx, storage.Config{
		Type:    cfg.Storage.Type,
		BaseDir: cfg.Storage.BaseDir,
		Bucket:  cfg.Storage.S3Bucket,
		Region:  cfg.Storage.S3Region,
		Prefix:  cfg.Storage.S3Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &app{sessions: sessions, logger: log}

	opts := []formfill.Option{
		formfill.WithResolver(snapshot.NewResolver(archive, log)),
	}

	db, err := openHistory(cfg, log)
	if err != nil {
		return nil, err
	}
	if db != nil {
		a.db = db
		a.runs = fillrun.NewMySQLStore(db, log)
		opts = append(opts, formfill.WithRecorder(fillrun.NewRecorder(a.runs)))
	}

	a.engine = formfill.NewEngine(sessions, engineConfig(cfg), log, opts...)

	log.Info(ctx, "engine initialized", map[string]interface{}{
		"driver":      cfg.Browser.Driver,
		"endpoint":    dialer.Endpoint(),
		"busy_policy": string(policy),
		"storage":     cfg.Storage.Type,
		"history":     a.runs != nil,
	})
	return a, nil
}

// Close releases the browser connection and the database.
func (a *app) Close() error {
	err := a.sessions.Close()
	if a.db != nil {
		if sqlDB, dbErr := a.db.DB(); dbErr == nil {
			sqlDB.Close()
		}
	}
	return err
}

func newDialer(cfg *Config, log logger.Logger) (browser.Dialer, error) {
	switch strings.ToLower(cfg.Browser.Driver) {
	case "", driverDevtools:
		return devtools.NewDialer(devtools.Config{
			Command:           cfg.Browser.MCPCommand,
			Args:              cfg.Browser.MCPArgs,
			URL:               cfg.Browser.MCPURL,
			ToolPrefix:        cfg.Browser.ToolPrefix,
			NavigationTimeout: cfg.Budgets.NavigationTimeout,
			Version:           Version,
		}, log), nil
	case driverRod:
		return cdp.NewDialer(cfg.Browser.ControlURL, log), nil
	}
	return nil, fmt.Errorf("unknown browser driver %q", cfg.Browser.Driver)
}

// openHistory connects the run history database. It returns nil when
// history is disabled.
func openHistory(cfg *Config, log logger.Logger) (*gorm.DB, error) {
	driver := strings.ToLower(cfg.Database.Driver)
	if driver == "none" {
		return nil, nil
	}

	db, err := database.Connect(databaseConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// mysql schemas come from the migrate command.
	if driver == database.DriverSQLite {
		if err := database.AutoMigrate(db, &fillrun.Run{}); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	log.Info(context.Background(), "database connected", map[string]interface{}{
		"driver":   cfg.Database.Driver,
		"database": cfg.Database.Database,
		"path":     cfg.Database.Path,
	})
	return db, nil
}

func databaseConfig(cfg *Config) database.Config {
	return database.Config{
		Driver:       strings.ToLower(cfg.Database.Driver),
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		Path:         cfg.Database.Path,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	}
}

func engineConfig(cfg *Config) formfill.Config {
	ec := formfill.DefaultConfig()
	ec.ForumURL = cfg.Forum.URL
	ec.AllowedHosts = cfg.Forum.AllowedHosts
	ec.RequireHTTPS = cfg.Forum.RequireHTTPS
	ec.PathContains = cfg.Forum.PathContains

	ec.Form.CreateControl = descriptor(ec.Form.CreateControl.Label, cfg.Forum.CreateControl)
	ec.Form.SubjectField = descriptor(ec.Form.SubjectField.Label, cfg.Forum.SubjectField)
	ec.Form.BodyEditor = descriptor(ec.Form.BodyEditor.Label, cfg.Forum.BodyEditor)
	if len(cfg.Forum.SubmitLabels) > 0 {
		ec.Form.SubmitLabels = cfg.Forum.SubmitLabels
	}

	ec.Budgets = formfill.Budgets{
		PageLoad: cfg.Budgets.PageLoad,
		Locate:   cfg.Budgets.Locate,
		FormLoad: cfg.Budgets.FormLoad,
		Verify:   cfg.Budgets.Verify,
	}
	return ec
}

func descriptor(label string, dc DescriptorConfig) snapshot.Descriptor {
	d := snapshot.Descriptor{
		Label:    label,
		Names:    dc.Names,
		Roles:    dc.Roles,
		Contains: dc.Contains,
	}
	if len(dc.Attrs) > 0 {
		d.Attrs = dc.Attrs
	}
	return d
}

// fillBound is the longest one fill runs once it holds the session: a dial,
// the navigation, every retry budget at its worst, and the one-shot click,
// fill and insert calls.
func fillBound(cfg *Config) time.Duration {
	b := cfg.Budgets
	rt := b.RoundTripTimeout
	return cfg.Browser.ConnectTimeout +
		b.NavigationTimeout +
		b.PageLoad.Bound(rt) + // readiness polls
		b.Locate.Bound(rt) + // create control
		rt + // click
		b.FormLoad.Bound(2*rt) + // readiness poll and snapshot
		b.Locate.Bound(rt) + // fields
		2*rt + // subject and body
		b.Verify.Bound(rt)
}

// serverWriteTimeout is the configured write timeout, raised when needed so
// a synchronous fill that runs to its deadline can still deliver its result.
func serverWriteTimeout(cfg *Config) time.Duration {
	if need := fillBound(cfg) + writeSlack; cfg.Server.WriteTimeout < need {
		return need
	}
	return cfg.Server.WriteTimeout
}
