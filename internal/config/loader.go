package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".oxidize"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for oxidize settings.
const envPrefix = "OXIDIZE"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("oracle.api_key", "")
	viperCfg.SetDefault("oracle.base_url", "")
	viperCfg.SetDefault("oracle.model", DefaultOracleModel)

	viperCfg.SetDefault("run.consecutive_failure_threshold", DefaultConsecutiveFailureThreshold)
	viperCfg.SetDefault("run.function_retries", DefaultFunctionRetries)
	viperCfg.SetDefault("run.llm_retries", DefaultLLMRetries)
	viperCfg.SetDefault("run.build_timeout_seconds", DefaultBuildTimeoutSeconds)
	viperCfg.SetDefault("run.checkpoint_interval", DefaultCheckpointInterval)
	viperCfg.SetDefault("run.crate_dir", "")
	viperCfg.SetDefault("run.metrics_addr", "")

	viperCfg.SetDefault("scan.include", []string{})
	viperCfg.SetDefault("scan.exclude", []string{})
	viperCfg.SetDefault("scan.max_files", 0)
}
