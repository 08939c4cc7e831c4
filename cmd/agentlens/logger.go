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

package main

import (
	"fmt"
	"os"

	"github.com/agentlens/agentlens/pkg/config"
	"github.com/agentlens/agentlens/pkg/logger"
)

const (
	// LogLevelEnvVar is the environment variable name for log level
	LogLevelEnvVar = "LOG_LEVEL"
	// LogFileEnvVar is the environment variable name for log file path
	LogFileEnvVar = "LOG_FILE"
	// LogFormatEnvVar is the environment variable name for log format
	LogFormatEnvVar = "LOG_FORMAT"
)

// initLogger installs the process-wide logger. Each setting resolves
// independently: CLI flag > env var > config file > default. The config
// layer is nil before a config source has been loaded.
//
// The returned cleanup closes the log file when one was opened; it may
// be nil.
func initLogger(flagLevel, flagFile, flagFormat string, cfg *config.LoggerConfig) (func(), error) {
	var cfgLevel, cfgFile, cfgFormat string
	if cfg != nil {
		cfgLevel = cfg.Level
		cfgFile = cfg.File
		cfgFormat = cfg.Format
	}

	logLevel := firstNonEmpty(flagLevel, os.Getenv(LogLevelEnvVar), cfgLevel, "info")
	logFile := firstNonEmpty(flagFile, os.Getenv(LogFileEnvVar), cfgFile)
	logFormat := firstNonEmpty(flagFormat, os.Getenv(LogFormatEnvVar), cfgFormat, "simple")

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	output := os.Stderr
	var cleanup func()
	if logFile != "" {
		file, closeFile, err := logger.OpenLogFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = closeFile
	}

	logger.Init(level, output, logFormat)
	return cleanup, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
