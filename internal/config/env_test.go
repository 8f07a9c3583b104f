package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, lookupFrom(map[string]string{
		"MCPGATE_HOST":               "0.0.0.0",
		"MCPGATE_PORT":               " 8443 ",
		"MCPGATE_AUTH_PROBE_UNKNOWN": "true",
		"MCPGATE_AUTH_REFRESH_RATE":  "0.5",
		"MCPGATE_CACHE_TOKEN_TTL":    "15m",
		"MCPGATE_OAUTH_SCOPES":       "tools, , offline_access",
		"MCPGATE_VALKEY_TLS":         "1",
		"MCPGATE_STORE_BACKEND":      "dynamodb",
	}))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8443, cfg.Server.Port)
	assert.True(t, cfg.Auth.ProbeUnknown)
	assert.Equal(t, 0.5, cfg.Auth.RefreshRate)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TokenTTL)
	assert.Equal(t, []string{"tools", "offline_access"}, cfg.OAuth.Scopes)
	assert.True(t, cfg.Cache.Valkey.TLS)
	assert.Equal(t, StoreBackendDynamoDB, cfg.Store.Backend)
}

func TestApplyEnv_Errors(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, lookupFrom(map[string]string{
		"MCPGATE_PORT":              "eighty",
		"MCPGATE_AUTH_CACHE_TTL":    "soon",
		"MCPGATE_AUTH_REFRESH_RATE": "fast",
	}))
	require.Error(t, err)

	var errs *ConfigurationErrorCollection
	require.True(t, errors.As(err, &errs))
	assert.Len(t, errs.Errors, 3)
	for _, e := range errs.Errors {
		assert.Equal(t, "env", e.ErrorType)
		assert.True(t, strings.HasPrefix(e.Field, EnvPrefix))
	}
	assert.Equal(t, 8090, cfg.Server.Port, "invalid values leave the field untouched")
}

func TestEnvNames(t *testing.T) {
	names := EnvNames()
	assert.Contains(t, names, "MCPGATE_PORT")
	assert.Contains(t, names, "MCPGATE_VALKEY_ADDRESS")
	assert.Contains(t, names, "MCPGATE_DYNAMODB_TABLE")

	seen := make(map[string]bool)
	for _, n := range names {
		assert.False(t, seen[n], "duplicate binding %s", n)
		seen[n] = true
	}
}
