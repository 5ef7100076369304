// Package config holds the process configuration for the frame
// processor: runtime limits, the control endpoint, and the initial
// pipeline layout loaded at startup.
package config

import (
	"fmt"
	"time"
)

// DefaultCtlAddr is the default listen address for the control API.
const DefaultCtlAddr = "127.0.0.1:8888"

// PluginLoad names one plugin instance to create at startup.
type PluginLoad struct {
	Name  string
	Index string
}

// Connection wires one edge of the pipeline graph. Source may be the
// reserved entry name "ingest".
type Connection struct {
	Source      string
	Destination string
}

// ParamDoc carries one configuration document addressed to a plugin
// instance, applied in order after the graph is built.
type ParamDoc struct {
	Target string
	Params map[string]interface{}
}

type Config struct {
	LogLevel string

	PoolLimitBytes   int64
	IngestQueueDepth int

	CtlAddr         string
	ShutdownTimeout time.Duration

	Plugins     []PluginLoad
	Connections []Connection
	Params      []ParamDoc
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		LogLevel:         "info",
		PoolLimitBytes:   0,
		IngestQueueDepth: 128,
		CtlAddr:          DefaultCtlAddr,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.IngestQueueDepth <= 0 {
		return fmt.Errorf("ingest queue depth must be positive")
	}
	if c.PoolLimitBytes < 0 {
		return fmt.Errorf("pool limit must not be negative")
	}
	if c.CtlAddr == "" {
		c.CtlAddr = DefaultCtlAddr
	}

	seen := make(map[string]bool, len(c.Plugins))
	for _, p := range c.Plugins {
		if p.Name == "" || p.Index == "" {
			return fmt.Errorf("plugin load requires both name and index")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate plugin name %q", p.Name)
		}
		seen[p.Name] = true
	}

	for _, conn := range c.Connections {
		if conn.Source == "" || conn.Destination == "" {
			return fmt.Errorf("connection requires both source and destination")
		}
	}

	for _, doc := range c.Params {
		if doc.Target == "" {
			return fmt.Errorf("configure document requires a target")
		}
	}

	return nil
}

// configSetter applies configuration values while respecting flag
// precedence: a value is skipped when its flag was set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}
