package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make
// TOML friendly.
type FileConfig struct {
	LogLevel         string `toml:"log_level"`
	PoolLimitBytes   int64  `toml:"pool_limit_bytes"`
	IngestQueueDepth int    `toml:"ingest_queue_depth"`
	CtlAddr          string `toml:"ctl_addr"`
	ShutdownTimeout  string `toml:"shutdown_timeout"`

	Plugins     []filePluginLoad `toml:"plugin"`
	Connections []fileConnection `toml:"connection"`
	Params      []fileParamDoc   `toml:"configure"`
}

type filePluginLoad struct {
	Name  string `toml:"name"`
	Index string `toml:"index"`
}

type fileConnection struct {
	Source      string `toml:"source"`
	Destination string `toml:"destination"`
}

type fileParamDoc struct {
	Target string                 `toml:"target"`
	Params map[string]interface{} `toml:"params"`
}

// LoadFileConfig reads and parses a TOML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.odin-data/config.toml if the user home
// directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".odin-data", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config
// struct. It respects flags that have been explicitly set (changed
// map). The pipeline layout sections always come from the file; no
// flags cover them.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("ctl-addr", fc.CtlAddr, &cfg.CtlAddr)
	s.setInt64("pool-limit", fc.PoolLimitBytes, &cfg.PoolLimitBytes)
	s.setInt("queue-depth", fc.IngestQueueDepth, &cfg.IngestQueueDepth)
	if err := s.setDuration("shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}

	if len(fc.Plugins) > 0 {
		cfg.Plugins = cfg.Plugins[:0]
		for _, p := range fc.Plugins {
			cfg.Plugins = append(cfg.Plugins, PluginLoad{Name: p.Name, Index: p.Index})
		}
	}
	if len(fc.Connections) > 0 {
		cfg.Connections = cfg.Connections[:0]
		for _, c := range fc.Connections {
			cfg.Connections = append(cfg.Connections, Connection{Source: c.Source, Destination: c.Destination})
		}
	}
	if len(fc.Params) > 0 {
		cfg.Params = cfg.Params[:0]
		for _, d := range fc.Params {
			cfg.Params = append(cfg.Params, ParamDoc{Target: d.Target, Params: d.Params})
		}
	}

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
