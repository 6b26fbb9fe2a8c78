package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// serverConfig is the daemon's configuration, read from config.yaml and
// CLIPJOBS_-prefixed environment variables.
type serverConfig struct {
	Listen string `mapstructure:"listen"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Redis struct {
		Address  string `mapstructure:"address"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Worker struct {
		BaseURL string        `mapstructure:"base_url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"worker"`

	Jobs struct {
		TTL              time.Duration `mapstructure:"ttl"`
		ExpirationWindow time.Duration `mapstructure:"expiration_window"`
		SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	} `mapstructure:"jobs"`
}

func loadConfig() (*serverConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/clipjobs")

	v.SetEnvPrefix("CLIPJOBS")
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("worker.base_url", "http://localhost:8000")
	v.SetDefault("worker.timeout", 30*time.Second)
	v.SetDefault("jobs.ttl", 7*24*time.Hour)
	v.SetDefault("jobs.expiration_window", 7*24*time.Hour)
	v.SetDefault("jobs.sweep_interval", time.Hour)

	if err := v.ReadInConfig(); err != nil {
		// Running on defaults and env vars alone is fine.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg serverConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
