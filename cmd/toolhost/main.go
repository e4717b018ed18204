// Command toolhost serves MCP tools over stdio or HTTP+SSE.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joeshaw/envdecode"
	"github.com/spf13/cobra"

	"github.com/ggoodman/mcp-toolhost-go/examples/calculator"
	"github.com/ggoodman/mcp-toolhost-go/examples/echo"
	"github.com/ggoodman/mcp-toolhost-go/internal/logctx"
	"github.com/ggoodman/mcp-toolhost-go/mcp"
	"github.com/ggoodman/mcp-toolhost-go/mcpservice"
	"github.com/ggoodman/mcp-toolhost-go/toolfile"
)

// Set via ldflags at build time.
var version = "dev"

// Config is the process configuration. Flags override the environment.
type Config struct {
	Name      string `env:"TOOLHOST_NAME,default=toolhost"`
	ToolsDir  string `env:"TOOLHOST_TOOLS_DIR"`
	ToolsGlob string `env:"TOOLHOST_TOOLS_GLOB,default=**/*.tool.yaml"`
	LogLevel  string `env:"TOOLHOST_LOG_LEVEL,default=info"`
	Redis     bool   `env:"TOOLHOST_REDIS,default=false"`
	Addr      string `env:"TOOLHOST_ADDR,default=:3000"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&cfg).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:          "toolhost",
		Short:        "Serve MCP tools over stdio or HTTP+SSE",
		SilenceUsage: true,
		Version:      version,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.Name, "name", cfg.Name, "Server name reported during initialize")
	pf.StringVar(&cfg.ToolsDir, "tools-dir", cfg.ToolsDir, "Directory of YAML tool files to load and watch")
	pf.StringVar(&cfg.ToolsGlob, "tools-glob", cfg.ToolsGlob, "Pattern selecting tool files under --tools-dir")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	pf.BoolVar(&cfg.Redis, "redis", cfg.Redis, "Keep SSE sessions in Redis (configured through REDIS_ADDR)")

	root.AddCommand(newStdioCmd(cfg))
	root.AddCommand(newSSECmd(cfg))
	return root
}

// newLogger writes JSON records to stderr; stdout belongs to the stdio
// transport.
func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return logctx.New(h), nil
}

// buildServer assembles the calculator and echo tools and, when a tools directory is
// configured, the tools declared there. The directory is then watched until
// ctx is done.
func buildServer(ctx context.Context, cfg *Config, log *slog.Logger) (*mcpservice.Server, error) {
	srv := calculator.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: cfg.Name, Version: version}),
		mcpservice.WithLogger(log),
		mcpservice.WithTools(echo.Tool),
	)
	if cfg.ToolsDir == "" {
		return srv, nil
	}

	fi, err := os.Stat(cfg.ToolsDir)
	if err != nil {
		return nil, fmt.Errorf("tools dir: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("tools dir: %s is not a directory", cfg.ToolsDir)
	}

	// Watch performs the initial load; the server is returned once it is
	// registered.
	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- toolfile.Watch(ctx, srv.Registry(), cfg.ToolsDir, cfg.ToolsGlob,
			toolfile.WithWatchLogger(log),
			toolfile.WithReady(func() { close(ready) }),
		)
	}()

	select {
	case <-ready:
	case err := <-errCh:
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("watch tools dir: %w", err)
	}

	go func() {
		if err := <-errCh; err != nil {
			log.ErrorContext(ctx, "toolfile.watch.fail", slog.String("err", err.Error()))
		}
	}()
	return srv, nil
}
