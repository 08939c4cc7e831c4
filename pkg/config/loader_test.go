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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentlens/agentlens/pkg/config/provider"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}
	return path
}

func TestLoader_File_Load(t *testing.T) {
	configYAML := `
server:
  host: 0.0.0.0
  port: 8080
  cors:
    allowed_origins:
      - https://inspector.example.com
agent:
  card_timeout: 45s
  call_timeout: 2m
  accepted_output_modes:
    - text/plain
logging:
  level: debug
  format: json
`
	path := writeConfigFile(t, "test.yaml", configYAML)

	cfg, loader, err := LoadConfigFile(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	defer loader.Close()

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if len(cfg.Server.CORS.AllowedOrigins) != 1 || cfg.Server.CORS.AllowedOrigins[0] != "https://inspector.example.com" {
		t.Errorf("unexpected CORS origins: %v", cfg.Server.CORS.AllowedOrigins)
	}
	if cfg.Agent.CardTimeout != 45*time.Second {
		t.Errorf("expected card timeout 45s, got %v", cfg.Agent.CardTimeout)
	}
	if cfg.Agent.CallTimeout != 2*time.Minute {
		t.Errorf("expected call timeout 2m, got %v", cfg.Agent.CallTimeout)
	}
	if len(cfg.Agent.AcceptedOutputModes) != 1 || cfg.Agent.AcceptedOutputModes[0] != "text/plain" {
		t.Errorf("unexpected output modes: %v", cfg.Agent.AcceptedOutputModes)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected log format json, got %s", cfg.Logging.Format)
	}
}

func TestLoader_File_DefaultsApplied(t *testing.T) {
	// A sparse file still produces a fully defaulted config.
	path := writeConfigFile(t, "sparse.yaml", "server:\n  port: 6006\n")

	cfg, loader, err := LoadConfigFile(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	defer loader.Close()

	if cfg.Server.Port != 6006 {
		t.Errorf("expected port 6006, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected default host, got %s", cfg.Server.Host)
	}
	if cfg.Agent.CardTimeout != 30*time.Second {
		t.Errorf("expected default card timeout, got %v", cfg.Agent.CardTimeout)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level, got %s", cfg.Logging.Level)
	}
}

func TestLoader_File_JSON(t *testing.T) {
	configJSON := `{"server": {"host": "localhost", "port": 7000}, "logging": {"level": "warn"}}`
	path := writeConfigFile(t, "test.json", configJSON)

	cfg, loader, err := LoadConfigFile(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	defer loader.Close()

	if cfg.Server.Port != 7000 {
		t.Errorf("expected port 7000, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
}

func TestLoader_File_NotFound(t *testing.T) {
	_, _, err := LoadConfigFile(context.Background(), "/nonexistent/agentlens.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestLoader_File_InvalidContent(t *testing.T) {
	path := writeConfigFile(t, "invalid.yaml", "server:\n  - host: [unclosed\n")

	_, _, err := LoadConfigFile(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for invalid content")
	}
}

func TestLoader_File_ValidationFailure(t *testing.T) {
	path := writeConfigFile(t, "bad.yaml", "logging:\n  level: shouting\n")

	_, _, err := LoadConfigFile(context.Background(), path)
	if err == nil {
		t.Fatal("expected validation error for bad log level")
	}
}

func TestLoader_EnvVarExpansion(t *testing.T) {
	t.Setenv("AGENTLENS_TEST_HOST", "192.168.1.10")

	configYAML := `
server:
  host: ${AGENTLENS_TEST_HOST}
  port: ${AGENTLENS_TEST_PORT:-5002}
`
	path := writeConfigFile(t, "env.yaml", configYAML)

	cfg, loader, err := LoadConfigFile(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	defer loader.Close()

	if cfg.Server.Host != "192.168.1.10" {
		t.Errorf("expected host from env, got %s", cfg.Server.Host)
	}
	// AGENTLENS_TEST_PORT is unset, so the default applies.
	if cfg.Server.Port != 5002 {
		t.Errorf("expected default port 5002, got %d", cfg.Server.Port)
	}
}

func TestLoader_File_Watch(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "watch.yaml")
	if err := os.WriteFile(configFile, []byte("server:\n  port: 5001\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	p, err := provider.NewFileProvider(configFile)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	reloaded := make(chan *Config, 4)
	loader := NewLoader(p, WithOnChange(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}))
	defer loader.Close()

	cfg, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Server.Port != 5001 {
		t.Errorf("expected initial port 5001, got %d", cfg.Server.Port)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- loader.Watch(ctx)
	}()

	// Give the watcher time to start before touching the file.
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("server:\n  port: 5009\n"), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Server.Port != 5009 {
			t.Errorf("expected reloaded port 5009, got %d", cfg.Server.Port)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("expected reload to be triggered, but it wasn't")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after context cancellation")
	}
}
