package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// TerminalConfig configures the terminal runtime (POS or kitchen display)
type TerminalConfig struct {
	Environment       string        `mapstructure:"environment"`
	APIURL            string        `mapstructure:"api_url"`
	StateDir          string        `mapstructure:"state_dir"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// LoadTerminal reads terminal.yaml (optional) and VELOPOS_* environment variables.
// configPath may be empty to search the default locations.
func LoadTerminal(configPath string) (*TerminalConfig, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("terminal")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("VELOPOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setTerminalDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// An explicit path must exist; the default search may find nothing.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg TerminalConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setTerminalDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("api_url", "http://localhost:8080")
	v.SetDefault("state_dir", defaultStateDir())
	v.SetDefault("heartbeat_interval", "30s")
	v.SetDefault("request_timeout", "10s")
}

func (c *TerminalConfig) validate() error {
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	return nil
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".velopos"
	}
	return filepath.Join(home, ".velopos")
}
