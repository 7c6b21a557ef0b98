package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_ReadsPrefixedEnv(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("CITIZENCHAT_JWT_SECRET", "s3cr3t")
	t.Setenv("CITIZENCHAT_PORT", "9090")
	t.Setenv("CITIZENCHAT_MAX_PAGE_SIZE", "20")
	t.Setenv("CITIZENCHAT_DEFAULT_PAGE_SIZE", "10")
	t.Setenv("CITIZENCHAT_PRESENCE_TTL", "45s")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "s3cr3t", c.JWTSecret)
	require.Equal(t, 9090, c.Port)
	require.Equal(t, 20, c.MaxPageSize)
	require.Equal(t, 10, c.DefaultPageSize)
	require.Equal(t, 45*time.Second, c.PresenceTTL)
	require.Equal(t, 5000, c.MaxMessageLength)
	require.Equal(t, 10*time.Second, c.RequestTimeout)
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("CITIZENCHAT_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate_RejectsInconsistentPaging(t *testing.T) {
	c := Default()
	c.DefaultPageSize = 200
	require.Error(t, c.Validate())

	c = Default()
	c.MaxPresenceBatch = 0
	require.Error(t, c.Validate())

	require.NoError(t, Default().Validate())
}

func TestValidate_RejectsNonPositiveTimings(t *testing.T) {
	cases := map[string]func(*Config){
		"sweep interval":  func(c *Config) { c.PresenceSweepInterval = 0 },
		"negative sweep":  func(c *Config) { c.PresenceSweepInterval = -time.Second },
		"presence ttl":    func(c *Config) { c.PresenceTTL = 0 },
		"rate limit":      func(c *Config) { c.RateLimitPerSecond = 0 },
		"request timeout": func(c *Config) { c.RequestTimeout = 0 },
		"realtime ttl":    func(c *Config) { c.RealtimeTokenTTL = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(c)
			require.Error(t, c.Validate())
		})
	}
}
