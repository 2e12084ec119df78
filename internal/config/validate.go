package config

import (
	"fmt"
	"strings"

	"github.com/forgellm/forge/internal/errors"
)

// Output formats understood by the echo formatter.
var validFormats = map[string]bool{
	"training":    true,
	"passthrough": true,
}

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.ErrConfig,
			"Config is nil",
			"This is unexpected - try reloading the configuration.")
	}

	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but forge only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade forge or lower the version in "+describePath(cfg))
	}

	if strings.TrimSpace(cfg.SessionsDir) == "" {
		return errors.New(errors.ErrConfig,
			"sessions_dir is empty",
			"Set sessions_dir in "+describePath(cfg)+", for example models/cpt")
	}

	checks := []func(*Config) error{
		func(c *Config) error { return validateTrainer(c.Trainer) },
		func(c *Config) error { return validateSupervisor(c.Supervisor) },
		func(c *Config) error { return validateMonitor(c.Monitor) },
		func(c *Config) error { return validateLock(c.Lock) },
		func(c *Config) error { return validateServer(c.Server) },
		func(c *Config) error { return validateOutput(c.Output) },
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig, err.Error(),
				"Check "+describePath(cfg))
		}
	}
	return nil
}

func validateTrainer(t TrainerConfig) error {
	if len(t.Command) == 0 || strings.TrimSpace(t.Command[0]) == "" {
		return fmt.Errorf("trainer.command needs at least an executable, like [python, -m, mlx_lm, lora]")
	}
	for i, a := range t.Command {
		if a == "" {
			return fmt.Errorf("trainer.command has an empty entry at position %d", i)
		}
	}
	for _, kv := range t.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			return fmt.Errorf("trainer.env entry %q must look like KEY=VALUE", kv)
		}
	}
	return nil
}

func validateSupervisor(s SupervisorConfig) error {
	if s.GracePeriod <= 0 {
		return fmt.Errorf("supervisor.grace_period must be positive, got %s", s.GracePeriod)
	}
	if s.WriteRetries < 1 {
		return fmt.Errorf("supervisor.write_retries must be at least 1, got %d", s.WriteRetries)
	}
	if s.WriteBackoff < 0 {
		return fmt.Errorf("supervisor.write_backoff can't be negative")
	}
	if s.DrainTimeout < 0 {
		return fmt.Errorf("supervisor.drain_timeout can't be negative")
	}
	return nil
}

func validateMonitor(m MonitorConfig) error {
	if m.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive, got %s", m.Interval)
	}
	if m.Freshness <= 0 {
		return fmt.Errorf("monitor.freshness must be positive, got %s", m.Freshness)
	}
	if len(m.ProcessPatterns) == 0 {
		return fmt.Errorf("monitor.process_patterns needs at least one pattern")
	}
	for i, p := range m.ProcessPatterns {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("monitor.process_patterns has an empty entry at position %d", i)
		}
	}
	return nil
}

func validateLock(lock LockConfig) error {
	if lock.Stale < 0 {
		return fmt.Errorf("lock.stale can't be negative")
	}
	return nil
}

func validateServer(s ServerConfig) error {
	if strings.TrimSpace(s.Addr) == "" {
		return fmt.Errorf("server.addr is empty")
	}
	if !strings.Contains(s.Addr, ":") {
		return fmt.Errorf("server.addr %q needs a port, like 127.0.0.1:5002", s.Addr)
	}
	return nil
}

func validateOutput(out OutputConfig) error {
	switch out.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("output.color must be auto, always, or never, got %q", out.Color)
	}
	if !validFormats[out.Format] {
		return fmt.Errorf("output.format must be training or passthrough, got %q", out.Format)
	}
	return nil
}

func describePath(cfg *Config) string {
	if cfg.Path == "" {
		return ConfigFileName
	}
	return cfg.Path
}
