package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const goodSecret = "0123456789abcdef0123456789abcdef"

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", goodSecret)

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "data/db.json", cfg.DataFile)
	require.Equal(t, time.Hour, cfg.AccessTTL())
	require.Equal(t, time.Hour, cfg.ResetTTL())
	require.Equal(t, 12, cfg.BcryptCost)
	require.Equal(t, "local", cfg.AuthProvider)
	require.Equal(t, 15*time.Minute, cfg.SweepInterval)
	require.Equal(t, "localhost:6379", cfg.Redis.Address())
	require.True(t, cfg.RateLimit.Enabled)
	require.Equal(t, 20, cfg.RateLimit.Capacity)
}

func TestFromEnv_RejectsWeakSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	_, err := FromEnv()
	require.ErrorContains(t, err, "JWT_SECRET")
}

func TestValidate(t *testing.T) {
	base := Config{
		JWTSecret:        goodSecret,
		AccessTTLSeconds: 3600,
		ResetTTLSeconds:  3600,
		BcryptCost:       12,
		AuthProvider:     "local",
		DataFile:         "db.json",
	}
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"cost too low":       func(c *Config) { c.BcryptCost = 9 },
		"cost too high":      func(c *Config) { c.BcryptCost = 16 },
		"zero access ttl":    func(c *Config) { c.AccessTTLSeconds = 0 },
		"negative reset ttl": func(c *Config) { c.ResetTTLSeconds = -1 },
		"unknown provider":   func(c *Config) { c.AuthProvider = "ldap" },
		"federated no url":   func(c *Config) { c.AuthProvider = "federated" },
		"consumer no broker": func(c *Config) { c.MailConsumerEnabled = true },
		"empty data file":    func(c *Config) { c.DataFile = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			require.Error(t, c.Validate())
		})
	}

	fed := base
	fed.AuthProvider = "federated"
	fed.IdentityProviderURL = "http://idp.local"
	require.NoError(t, fed.Validate())
}

func TestRateLimitConfig_Normalize(t *testing.T) {
	c := RateLimitConfig{Burst: 5, RefillEvery: 2 * time.Second, TTL: time.Second}.normalize()
	require.Equal(t, 5, c.Capacity)
	require.Equal(t, 1, c.RefillTokens)
	require.Equal(t, 2*time.Second, c.RefillInterval)
	require.Equal(t, 10*time.Second, c.TTL)
	require.Equal(t, "rl", c.Prefix)
}

func TestRedisConfig_Address(t *testing.T) {
	require.Equal(t, "redis:6380", RedisConfig{Addr: "x:1", Host: "redis", Port: "6380"}.Address())
	require.Equal(t, "x:1", RedisConfig{Addr: "x:1", Host: "redis"}.Address())
}
