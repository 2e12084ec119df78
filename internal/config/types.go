package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete .forge.yaml configuration file.
type Config struct {
	Version int `yaml:"version" mapstructure:"version"`

	// SessionsDir holds one directory per run. Relative paths resolve
	// against the directory of the config file that set them.
	SessionsDir string           `yaml:"sessions_dir" mapstructure:"sessions_dir"`
	Trainer     TrainerConfig    `yaml:"trainer" mapstructure:"trainer"`
	Supervisor  SupervisorConfig `yaml:"supervisor" mapstructure:"supervisor"`
	Monitor     MonitorConfig    `yaml:"monitor" mapstructure:"monitor"`
	Lock        LockConfig       `yaml:"lock" mapstructure:"lock"`
	Server      ServerConfig     `yaml:"server" mapstructure:"server"`
	Output      OutputConfig     `yaml:"output" mapstructure:"output"`

	// Path is the file this config was loaded from, empty for defaults.
	Path string `yaml:"-" mapstructure:"-"`
}

// TrainerConfig describes how the trainer process is invoked.
type TrainerConfig struct {
	// Command is the executable and its leading arguments.
	Command []string `yaml:"command" mapstructure:"command"`

	// Args follow Command. {config} and {output_dir} are substituted.
	Args []string `yaml:"args" mapstructure:"args"`

	// Env holds extra KEY=VALUE environment entries for the trainer. A list
	// keeps key case, which viper folds in maps.
	Env []string `yaml:"env" mapstructure:"env"`

	// Dir is the trainer's working directory. Empty means the current one.
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// SupervisorConfig controls process supervision and session persistence.
type SupervisorConfig struct {
	// GracePeriod is the wait between SIGTERM and SIGKILL on stop.
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period"`

	// WriteRetries is how many times a session write is attempted.
	WriteRetries int `yaml:"write_retries" mapstructure:"write_retries"`

	// WriteBackoff is the first delay between write attempts. It doubles.
	WriteBackoff time.Duration `yaml:"write_backoff" mapstructure:"write_backoff"`

	// DrainTimeout bounds how long output is read after the trainer exits.
	DrainTimeout time.Duration `yaml:"drain_timeout" mapstructure:"drain_timeout"`
}

// MonitorConfig controls the liveness monitor.
type MonitorConfig struct {
	// Interval between liveness checks.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// Freshness is how recently a session file must have been written for
	// its run to count as active.
	Freshness time.Duration `yaml:"freshness" mapstructure:"freshness"`

	// ProcessPatterns are substrings matched against process command lines.
	ProcessPatterns []string `yaml:"process_patterns" mapstructure:"process_patterns"`
}

// LockConfig controls run directory ownership locks.
type LockConfig struct {
	// Stale is when to reclaim a lock whose holder is unreachable.
	Stale time.Duration `yaml:"stale" mapstructure:"stale"`
}

// ServerConfig controls `forge serve`.
type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// OutputConfig controls terminal output formatting.
type OutputConfig struct {
	// Color mode: "auto", "always", or "never".
	Color string `yaml:"color" mapstructure:"color"`

	// Format for echoed trainer output: "training" or "passthrough".
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version:     CurrentConfigVersion,
		SessionsDir: "models/cpt",
		Trainer: TrainerConfig{
			Command: []string{"python", "-m", "mlx_lm", "lora"},
			Args:    []string{"--config", "{config}"},
		},
		Supervisor: SupervisorConfig{
			GracePeriod:  10 * time.Second,
			WriteRetries: 3,
			WriteBackoff: 50 * time.Millisecond,
			DrainTimeout: 5 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval:        2 * time.Second,
			Freshness:       60 * time.Second,
			ProcessPatterns: []string{"mlx_lm"},
		},
		Lock: LockConfig{
			Stale: 12 * time.Hour,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:5002",
			ShutdownTimeout: 5 * time.Second,
		},
		Output: OutputConfig{
			Color:  "auto",
			Format: "training",
		},
	}
}
