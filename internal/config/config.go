// Package config loads the core's tunables from a configuration file,
// environment variables and command-line flags, in that order of
// increasing precedence — the same layering dtail's internal/config
// uses for its client/server configuration, scaled down to the knobs
// this library actually needs.
//
// Configuration precedence (highest to lowest):
//  1. Command-line flags
//  2. Environment variables (LNAVCORE_ prefix)
//  3. Configuration file (TOML)
//  4. Built-in defaults
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"github.com/mimecast/lnavcore/internal/constants"
)

// TimestampMode mirrors piper.TimestampMode without importing it, so
// config has no dependency on the packages it configures.
type TimestampMode string

const (
	TimestampOff    TimestampMode = "off"
	TimestampPrefix TimestampMode = "prepend-iso8601-ms"
)

// Core holds the line buffer, piper and grep worker tunables loaded at
// startup.
type Core struct {
	// MaxBufferBytes bounds a LineBuffer's ByteWindow (spec's MAX_BUFFER).
	MaxBufferBytes int `toml:"max_buffer_bytes"`
	// MaxDispatchIterations is loaded but not passed to the grep worker,
	// whose Poll is bounded by constants.MaxDispatchIterations.
	MaxDispatchIterations int `toml:"max_dispatch_iterations"`
	// FlushEveryLines is loaded but not read by any package.
	FlushEveryLines int `toml:"flush_every_lines"`
	// TimestampMode controls whether piper prefixes drained lines.
	TimestampMode TimestampMode `toml:"timestamp_mode"`
	// ScratchDir overrides TMPDIR for piper's scratch files; empty means
	// use the OS default.
	ScratchDir string `toml:"scratch_dir"`
	// LogLevel is one of error, warn, info, debug.
	LogLevel string `toml:"log_level"`
}

// Default returns the built-in configuration before any file, env or
// flag overrides are applied.
func Default() *Core {
	return &Core{
		MaxBufferBytes:        constants.MaxBuffer,
		MaxDispatchIterations: constants.MaxDispatchIterations,
		FlushEveryLines:       constants.ChildFlushEveryLines,
		TimestampMode:         TimestampOff,
		LogLevel:              "info",
	}
}

// Load builds a Core by applying, in order, a TOML file (if path is
// non-empty and exists), LNAVCORE_-prefixed environment variables, and
// finally args (nil is fine — same as parsing with no flags set).
func Load(path string, args *Args) (*Core, error) {
	cfg := Default()

	if path != "" {
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
	}
	mergeEnv(cfg)
	if args != nil {
		mergeArgs(cfg, args)
	}
	if cfg.MaxBufferBytes <= 0 {
		return nil, fmt.Errorf("config: max_buffer_bytes must be positive, got %d", cfg.MaxBufferBytes)
	}
	return cfg, nil
}

func mergeFile(cfg *Core, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func mergeEnv(cfg *Core) {
	if v := os.Getenv("LNAVCORE_MAX_BUFFER_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxBufferBytes = n
		}
	}
	if v := os.Getenv("LNAVCORE_TIMESTAMP_MODE"); v != "" {
		cfg.TimestampMode = TimestampMode(v)
	}
	if v := os.Getenv("LNAVCORE_SCRATCH_DIR"); v != "" {
		cfg.ScratchDir = v
	}
	if v := os.Getenv("LNAVCORE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func mergeArgs(cfg *Core, args *Args) {
	if args.MaxBufferBytes != 0 {
		cfg.MaxBufferBytes = args.MaxBufferBytes
	}
	if args.TimestampMode != "" {
		cfg.TimestampMode = TimestampMode(args.TimestampMode)
	}
	if args.ScratchDir != "" {
		cfg.ScratchDir = args.ScratchDir
	}
	if args.LogLevel != "" {
		cfg.LogLevel = args.LogLevel
	}
}
