package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/forgellm/forge/internal/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = ".forge.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/forge"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes environment overrides, e.g. FORGE_SESSIONS_DIR.
	EnvPrefix = "FORGE"
)

// Load reads config from the specified path. Environment variables override
// file values.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found",
				"Run 'forge init' to create a config file, or specify one with --config")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file exists and is valid YAML")
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. .forge.yaml in current directory
// 3. .forge.yaml in parent directories (stops at git root or home)
// 4. ~/.config/forge/config.yaml (global defaults)
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	home, _ := os.UserHomeDir()
	dir := cwd
	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		if isGitRoot(dir) {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir || (home != "" && parent == home) {
			break
		}
		dir = parent
	}

	if home != "" {
		globalConfig := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// LoadOrDefault loads the config Find locates, or defaults (still subject
// to environment overrides) when there is none.
func LoadOrDefault(explicit string) (*Config, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return parseConfig(newViper(), "")
	}
	return Load(path)
}

// Write saves cfg as YAML at path. It refuses to overwrite an existing file.
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't encode config", "")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return errors.New(errors.ErrConfig,
				path+" already exists",
				"Edit it directly or remove it first")
		}
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't create "+path, "Check directory permissions")
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't write "+path, "")
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		where := "the environment"
		if path != "" {
			where = path
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+where)
	}

	cfg.Path = path
	cfg.SessionsDir = resolveDir(ExpandTilde(Expand(cfg.SessionsDir)), configDir(path))
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("sessions_dir", d.SessionsDir)
	v.SetDefault("trainer.command", d.Trainer.Command)
	v.SetDefault("trainer.args", d.Trainer.Args)
	v.SetDefault("trainer.env", d.Trainer.Env)
	v.SetDefault("trainer.dir", d.Trainer.Dir)
	v.SetDefault("supervisor.grace_period", d.Supervisor.GracePeriod)
	v.SetDefault("supervisor.write_retries", d.Supervisor.WriteRetries)
	v.SetDefault("supervisor.write_backoff", d.Supervisor.WriteBackoff)
	v.SetDefault("supervisor.drain_timeout", d.Supervisor.DrainTimeout)
	v.SetDefault("monitor.interval", d.Monitor.Interval)
	v.SetDefault("monitor.freshness", d.Monitor.Freshness)
	v.SetDefault("monitor.process_patterns", d.Monitor.ProcessPatterns)
	v.SetDefault("lock.stale", d.Lock.Stale)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("output.color", d.Output.Color)
	v.SetDefault("output.format", d.Output.Format)
}

// configDir returns the directory containing the config file.
func configDir(configPath string) string {
	if configPath == "" {
		cwd, _ := os.Getwd()
		return cwd
	}
	return filepath.Dir(configPath)
}

func resolveDir(dir, base string) string {
	if dir == "" || filepath.IsAbs(dir) || base == "" {
		return dir
	}
	return filepath.Join(base, dir)
}

// isGitRoot checks if a directory is a git repository root.
func isGitRoot(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	if err != nil {
		return false
	}
	return info.IsDir()
}
