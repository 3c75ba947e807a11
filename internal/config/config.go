package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`

	DatabasePath string `mapstructure:"database_path"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	GuestKillTimeout  time.Duration `mapstructure:"guest_kill_timeout"`
	SweepDelay        time.Duration `mapstructure:"sweep_delay"`
	WorkerConcurrency int           `mapstructure:"worker_concurrency"`

	FederationTimeout  time.Duration `mapstructure:"federation_timeout"`
	FederationInsecure bool          `mapstructure:"federation_insecure"`

	BreakoutRoomsEnabled bool `mapstructure:"breakout_rooms_enabled"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("database_path", "huddle.db")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("guest_kill_timeout", "100s")
	v.SetDefault("sweep_delay", "30s")
	v.SetDefault("worker_concurrency", 10)
	v.SetDefault("federation_timeout", "10s")
	v.SetDefault("breakout_rooms_enabled", true)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
