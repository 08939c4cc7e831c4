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

// Package config defines the inspector's configuration tree and the
// loader that reads it from a file or a remote key-value store.
package config

import (
	"fmt"
	"time"

	"github.com/agentlens/agentlens/pkg/observability"
	"github.com/agentlens/agentlens/pkg/protocol"
)

// Config is the root configuration for the inspector service.
type Config struct {
	// Server configures the HTTP listener and its middleware.
	Server ServerConfig `yaml:"server,omitempty"`

	// Agent configures how remote agents are contacted.
	Agent AgentConfig `yaml:"agent,omitempty"`

	// Logging configures the process-wide logger.
	Logging LoggerConfig `yaml:"logging,omitempty"`

	// Observability configures tracing and metrics.
	// An absent section disables both entirely.
	Observability *observability.Config `yaml:"observability,omitempty"`
}

// SetDefaults applies default values to Config.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Agent.SetDefaults()
	c.Logging.SetDefaults()
	if c.Observability != nil {
		c.Observability.SetDefaults()
	}
}

// Validate checks the Config for errors.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Observability != nil {
		if err := c.Observability.Validate(); err != nil {
			return fmt.Errorf("observability: %w", err)
		}
	}
	return nil
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host to bind to.
	// Default: 127.0.0.1
	Host string `yaml:"host,omitempty"`

	// Port to listen on.
	// Default: 5001
	Port int `yaml:"port,omitempty"`

	// CORS configuration.
	CORS *CORSConfig `yaml:"cors,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// Address returns the host:port pair the server binds to.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SetDefaults applies default values to ServerConfig.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}

	if c.Port == 0 {
		c.Port = 5001
	}

	// Default CORS for development
	if c.CORS == nil {
		c.CORS = &CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		}
	}

	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Validate checks ServerConfig for errors.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// CORSConfig configures cross-origin access to the HTTP endpoints.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	AllowedMethods []string `yaml:"allowed_methods,omitempty"`
	AllowedHeaders []string `yaml:"allowed_headers,omitempty"`
}

// AgentConfig configures how remote agents are contacted.
type AgentConfig struct {
	// CardTimeout bounds standalone agent card fetches made outside a
	// session.
	// Default: 30s
	CardTimeout time.Duration `yaml:"card_timeout,omitempty"`

	// CallTimeout bounds non-streaming RPC calls made on behalf of a
	// session, and the card fetch that opens one. Streaming calls run
	// without a deadline so long tasks can finish.
	// Default: 10m
	CallTimeout time.Duration `yaml:"call_timeout,omitempty"`

	// AcceptedOutputModes is the content-mode list declared with every
	// outgoing message.
	// Default: text/plain, video/mp4
	AcceptedOutputModes []string `yaml:"accepted_output_modes,omitempty"`
}

// SetDefaults applies default values to AgentConfig.
func (c *AgentConfig) SetDefaults() {
	if c.CardTimeout == 0 {
		c.CardTimeout = 30 * time.Second
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 10 * time.Minute
	}
	if len(c.AcceptedOutputModes) == 0 {
		c.AcceptedOutputModes = append([]string(nil), protocol.DefaultOutputModes...)
	}
}

// Validate checks AgentConfig for errors.
func (c *AgentConfig) Validate() error {
	if c.CardTimeout < 0 {
		return fmt.Errorf("card_timeout must not be negative")
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call_timeout must not be negative")
	}
	return nil
}
