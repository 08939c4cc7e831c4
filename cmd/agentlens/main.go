// Copyright 2025 The AgentLens Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command agentlens is the web inspector for A2A agents.
//
// Usage:
//
//	agentlens serve
//	agentlens serve --config agentlens.yaml --port 5001
//	agentlens card http://localhost:9999
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/agentlens/agentlens/pkg/bridge"
	"github.com/agentlens/agentlens/pkg/config"
	"github.com/agentlens/agentlens/pkg/config/provider"
	"github.com/agentlens/agentlens/pkg/observability"
	"github.com/agentlens/agentlens/pkg/server"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the inspector server."`
	Card    CardCmd    `cmd:"" help:"Fetch and validate an agent card."`
	Schema  SchemaCmd  `cmd:"" help:"Generate JSON Schema for the configuration."`

	Config    string `short:"c" help:"Config file path or provider URL (consul://, etcd://, zk://)."`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("AgentLens version %s\n", version)
	return nil
}

// ServeCmd starts the inspector server.
type ServeCmd struct {
	Host  string `help:"Host to bind to (overrides config)."`
	Port  int    `help:"Port to listen on (overrides config)."`
	Watch bool   `help:"Watch the config source and reload on changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, loader, err := c.loadConfig(ctx, cli)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	// Re-apply logging now that the config file's logging section is
	// known. Flags and env vars still win over it.
	cleanup, err := initLogger(cli.LogLevel, cli.LogFile, cli.LogFormat, &cfg.Logging)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	obs := observability.NoopManager()
	if cfg.Observability != nil {
		obs = observability.NewManager(*cfg.Observability)
		if err := obs.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize observability: %w", err)
		}
		defer func() {
			if err := obs.Shutdown(context.Background()); err != nil {
				slog.Warn("Observability shutdown failed", "error", err)
			}
		}()
	}

	b := bridge.New(bridge.NewStore(), bridge.Config{
		CallTimeout:         cfg.Agent.CallTimeout,
		AcceptedOutputModes: cfg.Agent.AcceptedOutputModes,
	}, obs)

	srv := server.New(cfg, b, server.WithObservability(obs))

	printServeInfo(cfg, srv.Address(), obs)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(ctx)
	})
	if c.Watch && loader != nil {
		g.Go(func() error {
			// Watch reports the cancellation that ends it; a clean
			// shutdown is not a watch failure.
			if err := loader.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("config watch failed: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// loadConfig loads configuration from the given source, or defaults when
// no source is set. The source is a file path or a provider URL.
func (c *ServeCmd) loadConfig(ctx context.Context, cli *CLI) (*config.Config, *config.Loader, error) {
	if cli.Config == "" {
		slog.Info("No config source given, using defaults")
		return config.Default(), nil, nil
	}

	providerCfg, err := provider.ParseURL(cli.Config)
	if err != nil {
		return nil, nil, err
	}
	if providerCfg.Type == provider.TypeFile {
		_ = config.LoadDotEnvForConfig(providerCfg.Path)
	}

	p, err := provider.New(providerCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create config provider: %w", err)
	}

	loader := config.NewLoader(p, config.WithOnChange(func(next *config.Config) {
		// Only the logging section applies live; listener settings
		// take effect on restart.
		if _, err := initLogger(cli.LogLevel, cli.LogFile, cli.LogFormat, &next.Logging); err != nil {
			slog.Warn("Failed to apply reloaded logging settings", "error", err)
		}
	}))
	cfg, err := loader.Load(ctx)
	if err != nil {
		loader.Close()
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.Info("Loaded configuration", "source", cli.Config, "provider", p.Type())
	return cfg, loader, nil
}

// printServeInfo prints the endpoints the running server exposes.
func printServeInfo(cfg *config.Config, addr string, obs *observability.Manager) {
	greenColor := "\033[38;2;16;185;129m"
	resetColor := "\033[0m"
	fmt.Printf("\n%sAgentLens inspector ready!%s\n", greenColor, resetColor)
	fmt.Printf("   Web UI:      http://%s\n", addr)
	fmt.Printf("   WebSocket:   ws://%s/ws\n", addr)
	fmt.Printf("   Agent Card:  http://%s/agent-card\n", addr)
	fmt.Printf("   Health:      http://%s/health\n", addr)
	if cfg.Observability != nil && cfg.Observability.Tracing.Enabled {
		fmt.Printf("   Tracing:     %s (%s)\n", cfg.Observability.Tracing.Exporter, cfg.Observability.Tracing.Endpoint)
		fmt.Printf("   Spans:       http://%s/debug/spans\n", addr)
	}
	if obs.MetricsEnabled() {
		fmt.Printf("   Metrics:     http://%s%s\n", addr, obs.MetricsEndpoint())
	}
	fmt.Println("\nPress Ctrl+C to stop")
}

func main() {
	_ = config.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("agentlens"),
		kong.Description("AgentLens - interactive web inspector for A2A agents"),
		kong.UsageOnError(),
	)

	// Logger from flags and env vars; serve re-applies the config
	// file's logging section later for anything left unset.
	cleanup, err := initLogger(cli.LogLevel, cli.LogFile, cli.LogFormat, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
