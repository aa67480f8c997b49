package config

import (
	"flag"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LENDKEEPER_JWT_KEY", "secret")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, ":8443", cfg.Addr)
	require.Equal(t, StoragePostgres, cfg.Storage)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, 5, cfg.LoginMaxFails)
	require.Equal(t, 64, cfg.EventBuffer)
	require.Equal(t, time.Hour, cfg.OverdueEvery)
	require.Empty(t, cfg.KafkaBrokers)
	require.False(t, cfg.TLS())
}

func TestLoad_EnvThenFlags(t *testing.T) {
	t.Setenv("LENDKEEPER_JWT_KEY", "from-env")
	t.Setenv("LENDKEEPER_STORAGE", "memory")
	t.Setenv("LENDKEEPER_ACCESS_TTL", "1h")
	t.Setenv("LENDKEEPER_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load([]string{"-jwt-key", "from-flag", "-addr", ":9000", "-kafka-brokers", " k3:9092 , ,k4:9092"})
	require.NoError(t, err)
	require.Equal(t, "from-flag", cfg.JWTKey)
	require.Equal(t, ":9000", cfg.Addr)
	require.Equal(t, StorageMemory, cfg.Storage)
	require.Equal(t, time.Hour, cfg.AccessTTL)
	require.Equal(t, []string{"k3:9092", "k4:9092"}, cfg.KafkaBrokers)
}

func TestLoad_EnvBrokersWithoutFlag(t *testing.T) {
	t.Setenv("LENDKEEPER_JWT_KEY", "k")
	t.Setenv("LENDKEEPER_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("LENDKEEPER_ACCESS_TTL", "soon")
	_, err := Load(nil)
	require.ErrorContains(t, err, "parse env")

	t.Setenv("LENDKEEPER_ACCESS_TTL", "1m")
	_, err = Load(nil)
	require.ErrorContains(t, err, "jwt signing key")

	_, err = Load([]string{"-jwt-key", "k", "-no-such-flag"})
	require.ErrorContains(t, err, "parse flags")
}

func TestValidate(t *testing.T) {
	t.Parallel()
	valid := func() Config {
		return Config{
			Storage: StorageMemory, JWTKey: "k", AccessTTL: time.Minute, EventBuffer: 1,
			LoginWindow: time.Minute, LoginMaxFails: 3, LoginBlockFor: time.Minute,
			KafkaTopic: "t", RedisChannel: "c",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"unknown storage", func(c *Config) { c.Storage = "sqlite" }, `unknown storage "sqlite"`},
		{"postgres without dsn", func(c *Config) { c.Storage = StoragePostgres }, "needs a dsn"},
		{"zero ttl", func(c *Config) { c.AccessTTL = 0 }, "access ttl"},
		{"zero buffer", func(c *Config) { c.EventBuffer = 0 }, "event buffer"},
		{"negative fails", func(c *Config) { c.LoginMaxFails = -1 }, "must not be negative"},
		{"limiter off ignores window", func(c *Config) { c.LoginMaxFails = 0; c.LoginWindow = 0 }, ""},
		{"limiter on needs window", func(c *Config) { c.LoginWindow = 0 }, "login window"},
		{"half tls", func(c *Config) { c.TLSCert = "cert.pem" }, "tls cert and key"},
		{"kafka without topic", func(c *Config) { c.KafkaBrokers = []string{"k"}; c.KafkaTopic = "" }, "kafka topic"},
		{"redis without channel", func(c *Config) { c.RedisURL = "redis://x"; c.RedisChannel = "" }, "redis channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	t.Parallel()
	c := Config{Storage: StorageMemory}
	err := c.Validate()
	require.ErrorContains(t, err, "jwt signing key")
	require.ErrorContains(t, err, "access ttl")
	require.ErrorContains(t, err, "event buffer")
}

func TestBindFlags_DefaultsFromConfig(t *testing.T) {
	t.Parallel()
	cfg := &Config{Addr: ":1", KafkaBrokers: []string{"a"}}
	fs := flag.NewFlagSet("x", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	BindFlags(fs, cfg)
	require.NoError(t, fs.Parse(nil))
	require.Equal(t, ":1", cfg.Addr)
	require.Equal(t, []string{"a"}, cfg.KafkaBrokers)
	require.Equal(t, ":1", fs.Lookup("addr").DefValue)
}
