package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/arzzra/web_phone/pkg/history"
	"github.com/arzzra/web_phone/pkg/transport"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	SIP     transport.Config `mapstructure:"sip"`
	History HistoryConfig    `mapstructure:"history"`
	Metrics MetricsConfig    `mapstructure:"metrics"`
	Log     LogConfig        `mapstructure:"log"`
	SIPUA   SIPUAConfig      `mapstructure:"sipua"`
}

type HistoryConfig struct {
	Persist  bool   `mapstructure:"persist"`
	Key      string `mapstructure:"key"`
	MaxItems int    `mapstructure:"max_items"`
	// Backend: memory, file или sqlite
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type MetricsConfig struct {
	// Listen адрес HTTP для /metrics, пусто - не слушать
	Listen string `mapstructure:"listen"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SIPUAConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	RegisterExpiry time.Duration `mapstructure:"register_expiry"`
	MediaHost      string        `mapstructure:"media_host"`
}

// LoadConfig читает конфигурацию из файла (если path не пуст) и
// переменных окружения WEBPHONE_*, например WEBPHONE_SIP_PASSWORD
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("sip.transport_address", "")
	v.SetDefault("sip.identity_uri", "")
	v.SetDefault("sip.password", "")
	v.SetDefault("sip.registrar", "")
	v.SetDefault("sip.display_name", "")
	v.SetDefault("sip.auth_user", "")
	v.SetDefault("history.persist", true)
	v.SetDefault("history.key", history.DefaultKey)
	v.SetDefault("history.max_items", history.DefaultMaxItems)
	v.SetDefault("history.backend", "file")
	v.SetDefault("history.path", "./data")
	v.SetDefault("metrics.listen", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("sipua.user_agent", "WebPhone/1.0")
	v.SetDefault("sipua.register_expiry", "600s")
	v.SetDefault("sipua.media_host", "")

	v.SetEnvPrefix("WEBPHONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.History.Backend {
	case "memory", "file", "sqlite":
	default:
		return fmt.Errorf("history.backend: unknown backend %q", c.History.Backend)
	}
	if c.History.Backend != "memory" && c.History.Path == "" {
		return fmt.Errorf("history.path is required for %s backend", c.History.Backend)
	}
	if c.History.MaxItems < 0 {
		return fmt.Errorf("history.max_items must not be negative")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}
