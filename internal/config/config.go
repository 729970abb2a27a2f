// Package config loads daemon configuration from a yaml file, environment
// variables, and flags, in that order of increasing precedence. Environment
// variables use the TMINUS_ prefix (TMINUS_LISTEN_ADDR, TMINUS_MASTER_KEY,
// and so on).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the daemon's startup configuration.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	DataDir    string `mapstructure:"data_dir" yaml:"data_dir"`
	NATSURL    string `mapstructure:"nats_url" yaml:"nats_url"`
	EmbedNATS  bool   `mapstructure:"embed_nats" yaml:"embed_nats"`
	MasterKey  string `mapstructure:"master_key" yaml:"master_key"`
	BlobRoot   string `mapstructure:"blob_root" yaml:"blob_root"`
	AuthToken  string `mapstructure:"auth_token" yaml:"auth_token"`
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	RegistryDB string `mapstructure:"registry_db" yaml:"registry_db"`
}

// Defaults mirror a single-node development setup.
func defaults(v *viper.Viper) {
	v.SetDefault("listen_addr", "127.0.0.1:4470")
	v.SetDefault("data_dir", "./data/actors")
	v.SetDefault("nats_url", "")
	v.SetDefault("embed_nats", true)
	v.SetDefault("blob_root", "./data/blobs")
	v.SetDefault("registry_db", "./data/registry.db")
}

// Load reads configuration from path (optional; empty means no file) plus
// the environment. A missing file at an explicit path is an error; viper's
// key precedence handles the rest.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("TMINUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise fail deep in startup.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if !c.EmbedNATS && c.NATSURL == "" {
		return fmt.Errorf("nats_url is required when embed_nats is false")
	}
	return nil
}
