package config

import (
	"fmt"
	"os"
	"strconv"
)

// ApplyEnvConfig applies configuration from environment variables
// (ODIN_DATA_*). It respects flags that have been explicitly set
// (changed map). Returns error if a variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("log-level", os.Getenv("ODIN_DATA_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("ctl-addr", os.Getenv("ODIN_DATA_CTL_ADDR"), &cfg.CtlAddr)

	if err := s.setIntFromString("queue-depth", os.Getenv("ODIN_DATA_QUEUE_DEPTH"), &cfg.IngestQueueDepth); err != nil {
		return err
	}
	if err := s.setInt64FromString("pool-limit", os.Getenv("ODIN_DATA_POOL_LIMIT_BYTES"), &cfg.PoolLimitBytes); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", os.Getenv("ODIN_DATA_SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout); err != nil {
		return err
	}

	return nil
}

func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}
