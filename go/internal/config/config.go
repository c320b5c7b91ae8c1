package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort       = 45045
	DefaultMDNSName   = "aeroduel.local"
	DefaultConfigFile = "config.yaml"
)

var ErrMissingServerToken = errors.New("SERVER_TOKEN is required")

// Config is the server configuration. Values come from defaults, then an
// optional YAML file, then the environment.
type Config struct {
	Port        int    `yaml:"port"`
	ServerToken string `yaml:"server_token"`
	MDNSName    string `yaml:"mdns_name"`
	PublicHost  string `yaml:"public_host"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Game struct {
		GracePeriod time.Duration `yaml:"grace_period"`
	} `yaml:"game"`

	Gateway struct {
		HelloTimeout   time.Duration `yaml:"hello_timeout"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		SendBufferSize int           `yaml:"send_buffer_size"`
	} `yaml:"gateway"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	RateLimit struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.Port = DefaultPort
	c.MDNSName = DefaultMDNSName
	c.Log.Level = "info"
	c.Log.Format = "console"
	c.Game.GracePeriod = 20 * time.Second
	c.Gateway.HelloTimeout = 5 * time.Second
	c.Gateway.PingInterval = 30 * time.Second
	c.Gateway.SendBufferSize = 256
	c.NATS.SubjectPrefix = "aeroduel.events"
	c.RateLimit.RequestsPerSecond = 20
	c.RateLimit.Burst = 40
	return c
}

// Load reads the given .env files (or ./.env when none are given), the YAML
// file named by CONFIG_FILE and finally the environment.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := Default()

	path := os.Getenv("CONFIG_FILE")
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if err := cfg.LoadFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile merges a YAML file over c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvAsInt("PORT", c.Port)
	c.ServerToken = getEnv("SERVER_TOKEN", c.ServerToken)
	c.MDNSName = getEnv("MDNS_NAME", c.MDNSName)
	c.PublicHost = getEnv("PUBLIC_HOST", c.PublicHost)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Game.GracePeriod = getEnvAsDuration("GRACE_PERIOD", c.Game.GracePeriod)
	c.Gateway.HelloTimeout = getEnvAsDuration("HELLO_TIMEOUT", c.Gateway.HelloTimeout)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)
}

// Validate reports the first setting the server cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServerToken) == "" {
		return ErrMissingServerToken
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Game.GracePeriod <= 0 {
		return fmt.Errorf("invalid grace period %s", c.Game.GracePeriod)
	}
	if c.Gateway.HelloTimeout <= 0 {
		return fmt.Errorf("invalid hello timeout %s", c.Gateway.HelloTimeout)
	}
	if c.Gateway.PingInterval <= 0 || c.Gateway.SendBufferSize <= 0 {
		return fmt.Errorf("invalid gateway settings: ping interval %s, send buffer %d",
			c.Gateway.PingInterval, c.Gateway.SendBufferSize)
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("invalid rate limit: %g/s burst %d", c.RateLimit.RequestsPerSecond, c.RateLimit.Burst)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses the configured zerolog level.
func (c Config) LogLevel() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return level, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
