package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "SERVER_TOKEN", "MDNS_NAME", "PUBLIC_HOST", "LOG_LEVEL", "LOG_FORMAT",
	"GRACE_PERIOD", "HELLO_TIMEOUT", "NATS_URL", "NATS_SUBJECT_PREFIX", "CONFIG_FILE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_TOKEN", "referee")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, ":45045", cfg.Addr())
	assert.Equal(t, "referee", cfg.ServerToken)
	assert.Equal(t, DefaultMDNSName, cfg.MDNSName)
	assert.Empty(t, cfg.PublicHost)
	assert.Empty(t, cfg.NATS.URL)
	assert.Equal(t, "aeroduel.events", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 20*time.Second, cfg.Game.GracePeriod)
	assert.Equal(t, 5*time.Second, cfg.Gateway.HelloTimeout)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, level)
}

func TestLoad_RequiresServerToken(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorIs(t, err, ErrMissingServerToken)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_TOKEN", "referee")
	t.Setenv("PORT", "8088")
	t.Setenv("PUBLIC_HOST", "192.168.4.1")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("GRACE_PERIOD", "45s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Port)
	assert.Equal(t, "192.168.4.1", cfg.PublicHost)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, 45*time.Second, cfg.Game.GracePeriod)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, level)
}

func TestLoad_IgnoresMalformedNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_TOKEN", "referee")
	t.Setenv("PORT", "not-a-port")
	t.Setenv("HELLO_TIMEOUT", "soon")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Gateway.HelloTimeout)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", `
port: 9000
server_token: from-file
mdns_name: hangar.local
game:
  grace_period: 30s
gateway:
  hello_timeout: 2s
nats:
  url: nats://broker:4222
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port, "environment wins over the file")
	assert.Equal(t, "from-file", cfg.ServerToken)
	assert.Equal(t, "hangar.local", cfg.MDNSName)
	assert.Equal(t, 30*time.Second, cfg.Game.GracePeriod)
	assert.Equal(t, 2*time.Second, cfg.Gateway.HelloTimeout)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, 256, cfg.Gateway.SendBufferSize, "unset keys keep defaults")
}

func TestLoad_ExplicitConfigFileMustExist(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_TOKEN", "referee")
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", writeFile(t, "config.yaml", "port: [unterminated"))

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides variables that are already present.
	require.NoError(t, os.Unsetenv("SERVER_TOKEN"))
	require.NoError(t, os.Unsetenv("MDNS_NAME"))

	envFile := writeFile(t, ".env", "SERVER_TOKEN=dotenv-secret\nMDNS_NAME=field.local\n")

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-secret", cfg.ServerToken)
	assert.Equal(t, "field.local", cfg.MDNSName)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Port = 70000 }},
		{"zero grace period", func(c *Config) { c.Game.GracePeriod = 0 }},
		{"zero hello timeout", func(c *Config) { c.Gateway.HelloTimeout = 0 }},
		{"unknown log level", func(c *Config) { c.Log.Level = "chatty" }},
		{"blank token", func(c *Config) { c.ServerToken = "   " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ServerToken = "referee"
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
