package main

import (
	"fmt"
	"strings"
	"time"

	"UD_milestone_rewards/internal/lock"
	"UD_milestone_rewards/internal/model"
	"UD_milestone_rewards/internal/repository"
	"UD_milestone_rewards/pkg/logger"

	"github.com/spf13/viper"
)

const (
	configPath   = "./"
	configName   = "config"
	configFormat = "yaml"
)

type Config struct {
	Database  repository.Config `yaml:"database"`
	Server    ServerConfig      `yaml:"server"`
	Redis     lock.Config       `yaml:"redis"`
	Scheduler SchedulerConfig   `yaml:"scheduler"`

	// Wallets maps a milestone type to the wallet field it credits.
	Wallets map[string]string `yaml:"wallets"`

	LogLevel string            `yaml:"logLevel"`
	Log      logger.FileConfig `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`

	// APIToken guards /api/v1. Empty leaves it open.
	APIToken string `yaml:"apiToken"`
}

type SchedulerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	RunOnStart bool          `yaml:"runOnStart"`
	LeaseTTL   time.Duration `yaml:"leaseTTL"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName(configName)
	viper.AddConfigPath(configPath)
	viper.SetConfigType(configFormat)

	viper.AutomaticEnv()
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("scheduler.interval", "24h")
	viper.SetDefault("scheduler.leaseTTL", "1m")
	viper.SetDefault("logLevel", "info")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// WalletFields resolves the wallets section. Viper lowercases map keys, so
// types are matched case-insensitively. Unset types keep their default.
func (c *Config) WalletFields() (map[model.MilestoneType]model.WalletField, error) {
	fields := make(map[model.MilestoneType]model.WalletField, len(model.MilestoneTypes))
	for t, f := range model.DefaultWalletFields {
		fields[t] = f
	}

	for key, value := range c.Wallets {
		matched := false
		for _, t := range model.MilestoneTypes {
			if strings.EqualFold(key, string(t)) {
				fields[t] = model.WalletField(value)
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("unknown milestone type %q in wallets", key)
		}
	}

	return fields, nil
}
