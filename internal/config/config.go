package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL         string
	Factory        string
	DeployBlock    uint64
	BatchSize      uint64
	MaxRetries     int
	RetryBackoff   time.Duration
	CallTimeout    time.Duration
	PollInterval   time.Duration
	ListenAddr     string
	JournalPath    string
	JournalEnabled bool
	PgDSN          string
	LogLevel       string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("call-timeout", 10*time.Second)
	v.SetDefault("poll-interval", 5*time.Second)
	v.SetDefault("listen", ":8080")
	v.SetDefault("journal", "./data/events.jsonl")
	v.SetDefault("journal-enabled", true)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:         v.GetString("rpc"),
		Factory:        v.GetString("factory"),
		DeployBlock:    v.GetUint64("deploy-block"),
		BatchSize:      v.GetUint64("batch-size"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		CallTimeout:    v.GetDuration("call-timeout"),
		PollInterval:   v.GetDuration("poll-interval"),
		ListenAddr:     v.GetString("listen"),
		JournalPath:    v.GetString("journal"),
		JournalEnabled: v.GetBool("journal-enabled"),
		PgDSN:          v.GetString("pg-dsn"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
}
