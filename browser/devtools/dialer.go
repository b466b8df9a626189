package devtools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hairizuanbinnoorazman/forum-autofill/browser"
	"github.com/hairizuanbinnoorazman/forum-autofill/logger"
)

// Config selects how the MCP server is reached. URL wins over Command.
type Config struct {
	// Command and Args start the server as a subprocess speaking stdio.
	Command string
	Args    []string
	// URL is a streamable HTTP MCP endpoint.
	URL string
	// ToolPrefix is prepended to every tool name.
	ToolPrefix string
	// NavigationTimeout is passed to navigate_page.
	NavigationTimeout time.Duration
	// Version is reported to the server.
	Version string
}

// DefaultConfig starts chrome-devtools-mcp with npx against a Chrome
// debugging on port 9222.
func DefaultConfig() Config {
	return Config{
		Command: "npx",
		Args:    []string{"-y", "chrome-devtools-mcp@latest", "--browserUrl=http://127.0.0.1:9222"},
		Version: "dev",
	}
}

// Dialer connects MCP client sessions. It implements browser.Dialer.
type Dialer struct {
	cfg       Config
	transport func() (mcp.Transport, error)
	logger    logger.Logger
}

var _ browser.Dialer = (*Dialer)(nil)

// NewDialer dials the server described by cfg.
func NewDialer(cfg Config, log logger.Logger) *Dialer {
	d := &Dialer{cfg: cfg, logger: logger.OrNop(log)}
	d.transport = d.configuredTransport
	return d
}

// NewDialerWithTransport dials through transports built by newTransport,
// e.g. in-memory ones.
func NewDialerWithTransport(cfg Config, newTransport func() (mcp.Transport, error), log logger.Logger) *Dialer {
	return &Dialer{cfg: cfg, transport: newTransport, logger: logger.OrNop(log)}
}

func (d *Dialer) configuredTransport() (mcp.Transport, error) {
	if d.cfg.URL != "" {
		return &mcp.StreamableClientTransport{Endpoint: d.cfg.URL}, nil
	}
	if d.cfg.Command == "" {
		return nil, fmt.Errorf("no MCP command or URL configured")
	}
	return &mcp.CommandTransport{Command: exec.Command(d.cfg.Command, d.cfg.Args...)}, nil
}

func (d *Dialer) Endpoint() string {
	if d.cfg.URL != "" {
		return d.cfg.URL
	}
	return strings.TrimSpace(d.cfg.Command + " " + strings.Join(d.cfg.Args, " "))
}

// Dial connects and checks that every required tool is available.
func (d *Dialer) Dial(ctx context.Context) (browser.Driver, error) {
	transport, err := d.transport()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", browser.ErrUnreachable, err)
	}

	version := d.cfg.Version
	if version == "" {
		version = "dev"
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "forum-autofill", Version: version}, nil)
	cs, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", browser.ErrUnreachable, d.Endpoint(), err)
	}

	tools, err := cs.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		cs.Close()
		return nil, fmt.Errorf("%w: list tools: %v", browser.ErrUnreachable, err)
	}
	have := make(map[string]bool, len(tools.Tools))
	for _, t := range tools.Tools {
		have[t.Name] = true
	}
	var missing []string
	for _, name := range RequiredTools {
		if !have[d.cfg.ToolPrefix+name] {
			missing = append(missing, d.cfg.ToolPrefix+name)
		}
	}
	if len(missing) > 0 {
		cs.Close()
		return nil, fmt.Errorf("%w: server at %s lacks tools %s", browser.ErrUnreachable, d.Endpoint(), strings.Join(missing, ", "))
	}

	d.logger.Info(ctx, "devtools MCP server connected", map[string]interface{}{
		"endpoint":   d.Endpoint(),
		"tool_count": len(tools.Tools),
	})
	return &Driver{
		cs:         cs,
		prefix:     d.cfg.ToolPrefix,
		navTimeout: d.cfg.NavigationTimeout,
		logger:     d.logger,
	}, nil
}
