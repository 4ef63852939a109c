// Copyright 2025 Kadir Pekel
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
	"fmt"
	"os"

	"github.com/go-conductor/conductor/pkg/logger"
)

// LoggerConfig configures the process-wide slog handler: level, destination
// file (empty means stderr), and text format ("simple" or "verbose").
// CLI flags and environment variables, where a caller supports them, take
// priority over whatever LoggerConfig a caller constructs.
type LoggerConfig struct {
	// Level specifies the log level (debug, info, warn, error).
	// Default: info
	Level string

	// File specifies the log file path.
	// If empty, logs go to stderr.
	// Default: empty (stderr)
	File string

	// Format specifies the log format.
	// Values: "simple" (level + message), "verbose" (time + level + message), or custom.
	// Default: simple
	Format string
}

// SetDefaults applies default values to LoggerConfig.
func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
	// File defaults to empty (stderr) - no need to set
}

// Validate checks the logger configuration.
func (c *LoggerConfig) Validate() error {
	if c.Level != "" {
		validLevels := map[string]bool{
			"debug":   true,
			"info":    true,
			"warn":    true,
			"warning": true,
			"error":   true,
		}
		if !validLevels[c.Level] {
			return fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", c.Level)
		}
	}

	// Format can be "simple", "verbose", or any custom value
	// No validation needed - custom formats are allowed
	_ = c.Format

	return nil
}

// Apply parses Level, opens File if set, and installs the resulting handler
// as the process-wide logger. The returned closer flushes and closes the log
// file, if one was opened; it is a no-op when logging to stderr.
func (c LoggerConfig) Apply() (closer func(), err error) {
	level, err := logger.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	output := os.Stderr
	closer = func() {}
	if c.File != "" {
		f, close, err := logger.OpenLogFile(c.File)
		if err != nil {
			return nil, err
		}
		output, closer = f, close
	}

	logger.Init(level, output, c.Format)
	return closer, nil
}
