// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/gymlink/gymlink/lib/channel"
	"github.com/gymlink/gymlink/lib/statefile"
	"github.com/gymlink/gymlink/lib/supervisor"
	"github.com/gymlink/gymlink/lib/trace"
)

// EnvironmentVariable names the configuration file for Load.
const EnvironmentVariable = "GYMLINK_CONFIG"

// Config is the complete gymlink configuration.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Channel    channel.Config   `yaml:"channel"`
	Session    SessionConfig    `yaml:"session"`
	Trace      TraceConfig      `yaml:"trace"`
}

// SimulationConfig describes the simulator to launch.
type SimulationConfig struct {
	// WorkingDir is the simulator checkout. The executable is resolved
	// relative to it and its build/lib directory is put on
	// LD_LIBRARY_PATH.
	WorkingDir string `yaml:"working_dir"`

	// Executable is the launcher inside WorkingDir.
	// Default: ns3
	Executable string `yaml:"executable"`

	// Target is the simulation program to run.
	Target string `yaml:"target"`

	// Settings become --key=value arguments in file order.
	Settings supervisor.Settings `yaml:"settings"`

	// Environment adds to (and overrides) the inherited environment.
	Environment map[string]string `yaml:"environment"`

	// ShowOutput passes simulator output through instead of capturing
	// it for diagnostics.
	ShowOutput bool `yaml:"show_output"`
}

// Spec returns the launch description for the supervisor.
func (s SimulationConfig) Spec() supervisor.Spec {
	return supervisor.Spec{
		WorkingDir:  s.WorkingDir,
		Executable:  s.Executable,
		Target:      s.Target,
		Settings:    s.Settings,
		Environment: s.Environment,
		ShowOutput:  s.ShowOutput,
	}
}

// SessionConfig tunes process supervision.
type SessionConfig struct {
	// LaunchGrace is how long a launched simulator must stay up before
	// it is considered started.
	// Default: 500ms
	LaunchGrace time.Duration `yaml:"launch_grace"`

	// TerminateTimeout bounds the wait for a killed process tree.
	// Default: 5s
	TerminateTimeout time.Duration `yaml:"terminate_timeout"`

	// ExitGrace is how long a simulator that was asked to stop may
	// take before it is killed.
	// Default: 1s
	ExitGrace time.Duration `yaml:"exit_grace"`

	// StateDir holds the state file that lets a later run reap a
	// simulator left behind by a crashed controller. Empty disables the
	// state file.
	// Default: ${XDG_RUNTIME_DIR:-/tmp}/gymlink
	StateDir string `yaml:"state_dir"`
}

// TraceConfig configures episode recording.
type TraceConfig struct {
	// Path is the trace file. Empty disables tracing.
	Path string `yaml:"path"`

	// Compression is none, lz4 or zstd.
	// Default: zstd
	Compression string `yaml:"compression"`
}

// Default returns the configuration that a loaded file is merged
// into. Simulation.WorkingDir and Simulation.Target have no defaults.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Executable: "ns3",
		},
		Channel: channel.DefaultConfig(),
		Session: SessionConfig{
			LaunchGrace:      supervisor.DefaultLaunchGrace,
			TerminateTimeout: 5 * time.Second,
			ExitGrace:        time.Second,
			StateDir:         "${XDG_RUNTIME_DIR:-/tmp}/gymlink",
		},
		Trace: TraceConfig{
			Compression: "zstd",
		},
	}
}

// Load loads the file named by GYMLINK_CONFIG. It fails when the
// variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your gymlink.yaml config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path over the defaults and expands
// variables. It does not validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is YAML, so one decoder serves both once comments and
		// trailing commas are gone.
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

// Parse decodes YAML configuration from data over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Simulation.WorkingDir = expandVars(c.Simulation.WorkingDir, vars)
	c.Session.StateDir = expandVars(c.Session.StateDir, vars)
	c.Trace.Path = expandVars(c.Trace.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, preferring vars over
// the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// StateFile returns the state file path for the configured channel
// segment, or "" when the state file is disabled.
func (c *Config) StateFile() string {
	if c.Session.StateDir == "" {
		return ""
	}
	return statefile.Path(c.Session.StateDir, c.Channel.SegmentName)
}

// TraceCompression returns the parsed trace compression.
func (c *Config) TraceCompression() (trace.Compression, error) {
	return trace.ParseCompression(c.Trace.Compression)
}

// Validate reports every problem with the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Simulation.WorkingDir == "" {
		errs = append(errs, errors.New("simulation.working_dir is required"))
	}
	if c.Simulation.Executable == "" {
		errs = append(errs, errors.New("simulation.executable is required"))
	}
	if c.Simulation.Target == "" {
		errs = append(errs, errors.New("simulation.target is required"))
	}
	for _, setting := range c.Simulation.Settings {
		if setting.Key == "" || strings.ContainsAny(setting.Key, "= \t") {
			errs = append(errs, fmt.Errorf("simulation.settings: invalid key %q", setting.Key))
		}
	}
	if err := c.Channel.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Session.LaunchGrace <= 0 {
		errs = append(errs, fmt.Errorf("session.launch_grace must be positive, got %s", c.Session.LaunchGrace))
	}
	if c.Session.TerminateTimeout <= 0 {
		errs = append(errs, fmt.Errorf("session.terminate_timeout must be positive, got %s", c.Session.TerminateTimeout))
	}
	if c.Session.ExitGrace <= 0 {
		errs = append(errs, fmt.Errorf("session.exit_grace must be positive, got %s", c.Session.ExitGrace))
	}
	if _, err := c.TraceCompression(); err != nil {
		errs = append(errs, fmt.Errorf("trace.compression: %w", err))
	}
	return errors.Join(errs...)
}
