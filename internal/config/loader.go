package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "MOLFORGE"

var (
	// ErrConfigFileNotFound is returned by Load when the path does not exist.
	ErrConfigFileNotFound = errors.New("config: file not found")
	// ErrConfigParseError is returned by Load when the file is not valid YAML.
	ErrConfigParseError = errors.New("config: parse error")
)

// newViper builds a viper instance with YAML file type, MOLFORGE_ env prefix,
// automatic env binding and a "." → "_" key replacer so that "database.host"
// resolves to MOLFORGE_DATABASE_HOST.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	registerDefaults(v)
	return v
}

// Load reads the YAML file at configPath, merges MOLFORGE_* overrides,
// applies defaults and validates the result.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrConfigFileNotFound, configPath)
	}

	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrConfigParseError, configPath, err)
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from MOLFORGE_* environment variables only.
//
//	MOLFORGE_<SECTION>_<FIELD>   e.g. MOLFORGE_DATABASE_HOST, MOLFORGE_UPSTREAM_API_KEY
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// LoadAuto loads configPath when it is non-empty and falls back to the
// environment otherwise.
func LoadAuto(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	return Load(configPath)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// Watch monitors configPath and calls onChange with the re-parsed Config
// whenever the file changes on disk.  Invalid revisions are reported through
// onError (when non-nil) and never reach onChange.  Callers apply only the
// settings that are safe to change at runtime, such as the log level.
func Watch(configPath string, onChange func(*Config), onError func(error)) error {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrConfigParseError, configPath, err)
	}

	v.OnConfigChange(func(ev fsnotify.Event) {
		if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// MustLoad wraps Load and panics on error.  For use in main() only.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
