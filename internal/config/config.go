package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Auth       AuthConfig  `mapstructure:"auth"`
	Hub        HubConfig   `mapstructure:"hub"`
	Calls      CallsConfig `mapstructure:"calls"`
	Store      StoreConfig `mapstructure:"store"`
	ICEServers []ICEServer `mapstructure:"ice_servers"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`

	// ServiceToken authenticates other services on the notify endpoint.
	// Empty disables notify.
	ServiceToken string `mapstructure:"service_token"`
}

type HubConfig struct {
	SendBuffer    int           `mapstructure:"send_buffer"`
	RateLimit     int           `mapstructure:"rate_limit"`
	RateInterval  time.Duration `mapstructure:"rate_interval"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`

	// Backpressure is "kick" or "drop".
	Backpressure string `mapstructure:"backpressure"`
}

type CallsConfig struct {
	ConcurrentPolicy string        `mapstructure:"concurrent_policy"` // "allow" or "reject"
	RingTimeout      time.Duration `mapstructure:"ring_timeout"`
	Retention        time.Duration `mapstructure:"retention"`
}

// StoreConfig enables the call history recorder when Path is set.
type StoreConfig struct {
	Path   string `mapstructure:"path"`
	Buffer int    `mapstructure:"buffer"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls" json:"urls"`
	Username   string   `mapstructure:"username" json:"username,omitempty"`
	Credential string   `mapstructure:"credential" json:"credential,omitempty"`
}

func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName on top of the defaults. A missing file is not an
// error; FANHUB_* environment variables override both.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("FANHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "fanhub-dev-secret")
	v.SetDefault("log_level", "info")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.service_token", "")

	v.SetDefault("hub.send_buffer", 32)
	v.SetDefault("hub.rate_limit", 50)
	v.SetDefault("hub.rate_interval", "1s")
	v.SetDefault("hub.prune_interval", "1m")
	v.SetDefault("hub.backpressure", "kick")

	v.SetDefault("calls.concurrent_policy", "allow")
	v.SetDefault("calls.ring_timeout", "0s")
	v.SetDefault("calls.retention", "10m")

	v.SetDefault("store.path", "")
	v.SetDefault("store.buffer", 256)
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.enabled requires auth.jwt_secret")
	}
	switch c.Hub.Backpressure {
	case "kick", "drop":
	default:
		return fmt.Errorf("unknown hub.backpressure %q", c.Hub.Backpressure)
	}
	if c.Hub.SendBuffer <= 0 {
		return fmt.Errorf("hub.send_buffer must be positive")
	}
	switch c.Calls.ConcurrentPolicy {
	case "", "allow", "reject":
	default:
		return fmt.Errorf("unknown calls.concurrent_policy %q", c.Calls.ConcurrentPolicy)
	}
	if c.Calls.RingTimeout < 0 {
		return fmt.Errorf("calls.ring_timeout must not be negative")
	}
	return nil
}
