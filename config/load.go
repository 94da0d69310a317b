package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/outflowhq/outflow/errors"
)

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the Outflow configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return globalConfig, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config populated purely from defaults, useful for tests.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Unmarshal from defaults cannot fail; defaults are well-typed.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	// Environment variables override file config: OUTFLOW_QUEUE_BATCH_LIMIT etc.
	v.SetEnvPrefix("OUTFLOW")
	v.SetEnvKeyReplacer(envKeyReplacer())
	v.AutomaticEnv()

	SetDefaults(v)

	// Project config file is optional
	v.SetConfigName("outflow")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.outflow")
	_ = v.ReadInConfig()

	viperInstance = v
	return v
}

// envKeyReplacer maps nested config keys to environment variable form,
// e.g. queue.batch_limit -> QUEUE_BATCH_LIMIT.
func envKeyReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}
