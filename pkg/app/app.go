// Package app wires configuration, the Strava client and the tool catalogue
// into one MCP server and runs it on the selected transport.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sameehj/strava-mcp/pkg/config"
	"github.com/sameehj/strava-mcp/pkg/mcp"
	"github.com/sameehj/strava-mcp/pkg/strava"
	"github.com/sameehj/strava-mcp/pkg/stravatools"
	"github.com/sameehj/strava-mcp/pkg/telemetry"
	"github.com/sameehj/strava-mcp/pkg/tokenstore"
	"github.com/sameehj/strava-mcp/pkg/tool"
	"github.com/sameehj/strava-mcp/pkg/version"
)

type State int

const (
	Unstarted State = iota
	StdioRunning
	HTTPRunning
	Failed
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case StdioRunning:
		return "stdio_running"
	case HTTPRunning:
		return "http_running"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// App owns every long-lived component of the server.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     tokenstore.Store
	client    *strava.Client
	registry  *tool.Registry
	handler   *mcp.Handler
	telemetry *telemetry.Provider

	stdin  io.Reader
	stdout io.Writer

	mu       sync.Mutex
	state    State
	httpAddr string
}

// Build assembles the server from cfg. Failures are STARTUP_FAILURE errors.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store, err := tokenstore.Open(cfg.TokenStore)
	if err != nil {
		return nil, fmt.Errorf("%w: open token store: %v", tool.ErrStartup, err)
	}
	seed := tokenstore.Token{
		AccessToken:  cfg.Strava.AccessToken,
		RefreshToken: cfg.Strava.RefreshToken,
	}
	token, err := tokenstore.Resolve(ctx, store, seed)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("%w: load token: %v", tool.ErrStartup, err)
	}
	if token.Empty() {
		logger.Warn("strava_credentials_missing", "hint", "set STRAVA_ACCESS_TOKEN or STRAVA_REFRESH_TOKEN")
	}

	timeout, _ := cfg.StravaTimeout()
	window, _ := cfg.StravaWindow()
	client := strava.New(strava.Config{
		BaseURL:           cfg.Strava.BaseURL,
		OAuthURL:          cfg.Strava.OAuthURL,
		ClientID:          cfg.Strava.ClientID,
		ClientSecret:      cfg.Strava.ClientSecret,
		Timeout:           timeout,
		RequestsPerWindow: cfg.Strava.RequestsPerWindow,
		Window:            window,
		Burst:             cfg.Strava.Burst,
	}, store, token)
	client.SetLogger(logger)

	registry := tool.NewRegistry()
	if err := stravatools.Register(registry, client, stravatools.Options{
		ExportDir: cfg.Export.Dir,
		Logger:    logger,
	}); err != nil {
		store.Close()
		return nil, fmt.Errorf("%w: register tools: %v", tool.ErrStartup, err)
	}

	provider, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("%w: telemetry: %v", tool.ErrStartup, err)
	}
	observer, err := telemetry.NewDispatchObserver(provider.Meter(), provider.Tracer())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("%w: telemetry observer: %v", tool.ErrStartup, err)
	}

	dispatcher := tool.NewDispatcher(registry)
	dispatcher.SetLogger(logger)
	dispatcher.SetObserver(observer)

	handler := mcp.NewHandler(dispatcher, mcp.ServerInfo{Name: version.Name, Version: version.Version})
	handler.SetLogger(logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		client:    client,
		registry:  registry,
		handler:   handler,
		telemetry: provider,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
	}, nil
}

// SetStdio replaces the streams used by the stdio transport.
func (a *App) SetStdio(r io.Reader, w io.Writer) {
	a.stdin = r
	a.stdout = w
}

func (a *App) Registry() *tool.Registry {
	return a.registry
}

func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// HTTPAddr is the bound listen address once the HTTP transport is running.
func (a *App) HTTPAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.httpAddr
}

// Run serves on the configured transport until ctx is cancelled or, for
// stdio, the input ends. Any failure moves the app to Failed.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.state != Unstarted {
		a.mu.Unlock()
		return fmt.Errorf("%w: app already started (%s)", tool.ErrStartup, a.state)
	}
	a.mu.Unlock()

	a.watchTokens(ctx)
	defer a.reportUsage()

	var err error
	if a.cfg.Transport.HTTP {
		err = a.runHTTP(ctx)
	} else {
		err = a.runStdio(ctx)
	}
	if err != nil {
		a.setState(Failed)
		a.logger.Error("server_failed", "error", err)
		return err
	}
	return nil
}

func (a *App) runHTTP(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("%w: listen %s: %v", tool.ErrStartup, a.cfg.Addr(), err)
	}
	srv := mcp.NewHTTPServer(a.cfg.Addr(), a.handler)
	srv.SetLogger(a.logger)
	srv.SetAuthorizer(mcp.AllowlistAuthorizer{Allowed: a.cfg.Transport.AllowedAddrs})

	a.mu.Lock()
	a.state = HTTPRunning
	a.httpAddr = ln.Addr().String()
	a.mu.Unlock()

	a.logger.Info("server_started", "transport", mcp.TransportName, "addr", ln.Addr().String(), "tools", a.registry.Len())
	if err := srv.Serve(ctx, ln); err != nil {
		return fmt.Errorf("%w: http: %v", tool.ErrStartup, err)
	}
	return nil
}

func (a *App) runStdio(ctx context.Context) error {
	srv := mcp.NewStdioServer(a.handler)
	srv.SetLogger(a.logger)
	a.setState(StdioRunning)
	a.logger.Info("server_started", "transport", "stdio", "tools", a.registry.Len())
	return srv.Serve(ctx, a.stdin, a.stdout)
}

// watchTokens reloads the client token when a file store is edited on disk.
func (a *App) watchTokens(ctx context.Context) {
	file, ok := a.store.(*tokenstore.File)
	if !ok {
		return
	}
	watcher := tokenstore.NewWatcher(file, a.client.SetToken)
	watcher.SetLogger(a.logger)
	if err := watcher.Start(ctx); err != nil {
		a.logger.Warn("token_watch_failed", "path", file.Path(), "error", err)
	}
}

func (a *App) reportUsage() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	summary, err := a.telemetry.Summary(ctx)
	if err != nil {
		a.logger.Warn("tool_usage_unavailable", "error", err)
		return
	}
	for _, s := range summary {
		a.logger.Info("tool_usage", "tool", s.Tool, "invocations", s.Invocations, "failures", s.Failures)
	}
}

func (a *App) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Close releases the token store and flushes telemetry.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry_shutdown_failed", "error", err)
	}
	return a.store.Close()
}
