package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MCPGATE_"

type envBinding struct {
	name  string
	apply func(c *Config, value string) error
}

func stringVar(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%q is not an integer", v)
		}
		*field(c) = n
		return nil
	}
}

func floatVar(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%q is not a number", v)
		}
		*field(c) = f
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%q is not a boolean", v)
		}
		*field(c) = b
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%q is not a duration", v)
		}
		*field(c) = d
		return nil
	}
}

func listVar(field func(*Config) *[]string) func(*Config, string) error {
	return func(c *Config, v string) error {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*field(c) = out
		return nil
	}
}

var envBindings = []envBinding{
	{"HOST", stringVar(func(c *Config) *string { return &c.Server.Host })},
	{"PORT", intVar(func(c *Config) *int { return &c.Server.Port })},
	{"PUBLIC_URL", stringVar(func(c *Config) *string { return &c.Server.PublicURL })},
	{"CALLBACK_PATH", stringVar(func(c *Config) *string { return &c.Server.CallbackPath })},
	{"SHUTDOWN_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Server.ShutdownTimeout })},

	{"AUTH_PROBE_UNKNOWN", boolVar(func(c *Config) *bool { return &c.Auth.ProbeUnknown })},
	{"AUTH_REFRESH_WINDOW", durationVar(func(c *Config) *time.Duration { return &c.Auth.RefreshWindow })},
	{"AUTH_REQUEST_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Auth.RequestTimeout })},
	{"AUTH_CACHE_TTL", durationVar(func(c *Config) *time.Duration { return &c.Auth.CacheTTL })},
	{"AUTH_CACHE_SIZE", intVar(func(c *Config) *int { return &c.Auth.CacheSize })},
	{"AUTH_REFRESH_RATE", floatVar(func(c *Config) *float64 { return &c.Auth.RefreshRate })},
	{"AUTH_REFRESH_BURST", intVar(func(c *Config) *int { return &c.Auth.RefreshBurst })},

	{"OAUTH_CLIENT_ID", stringVar(func(c *Config) *string { return &c.OAuth.ClientID })},
	{"OAUTH_ALTERNATE_CLIENT_ID", stringVar(func(c *Config) *string { return &c.OAuth.AlternateClientID })},
	{"OAUTH_SCOPES", listVar(func(c *Config) *[]string { return &c.OAuth.Scopes })},
	{"OAUTH_METADATA_CACHE_TTL", durationVar(func(c *Config) *time.Duration { return &c.OAuth.MetadataCacheTTL })},

	{"CACHE_BACKEND", stringVar(func(c *Config) *string { return &c.Cache.Backend })},
	{"CACHE_PREFIX", stringVar(func(c *Config) *string { return &c.Cache.Prefix })},
	{"CACHE_TOKEN_TTL", durationVar(func(c *Config) *time.Duration { return &c.Cache.TokenTTL })},
	{"CACHE_CAPABILITY_TTL", durationVar(func(c *Config) *time.Duration { return &c.Cache.CapabilityTTL })},
	{"CACHE_VERIFIER_TTL", durationVar(func(c *Config) *time.Duration { return &c.Cache.VerifierTTL })},
	{"VALKEY_ADDRESS", stringVar(func(c *Config) *string { return &c.Cache.Valkey.Address })},
	{"VALKEY_USERNAME", stringVar(func(c *Config) *string { return &c.Cache.Valkey.Username })},
	{"VALKEY_PASSWORD", stringVar(func(c *Config) *string { return &c.Cache.Valkey.Password })},
	{"VALKEY_DB", intVar(func(c *Config) *int { return &c.Cache.Valkey.DB })},
	{"VALKEY_TLS", boolVar(func(c *Config) *bool { return &c.Cache.Valkey.TLS })},

	{"STORE_BACKEND", stringVar(func(c *Config) *string { return &c.Store.Backend })},
	{"DYNAMODB_TABLE", stringVar(func(c *Config) *string { return &c.Store.DynamoDB.Table })},
	{"DYNAMODB_REGION", stringVar(func(c *Config) *string { return &c.Store.DynamoDB.Region })},
	{"DYNAMODB_ENDPOINT", stringVar(func(c *Config) *string { return &c.Store.DynamoDB.Endpoint })},

	{"CATALOG_FETCH_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Catalog.FetchTimeout })},

	{"LOG_LEVEL", stringVar(func(c *Config) *string { return &c.Logging.Level })},
	{"LOG_FORMAT", stringVar(func(c *Config) *string { return &c.Logging.Format })},
}

// EnvNames lists every supported environment variable.
func EnvNames() []string {
	names := make([]string, len(envBindings))
	for i, b := range envBindings {
		names[i] = EnvPrefix + b.name
	}
	return names
}

// applyEnv overrides c with every set MCPGATE_* variable.
func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	var errs ConfigurationErrorCollection
	for _, b := range envBindings {
		name := EnvPrefix + b.name
		value, ok := lookup(name)
		if !ok {
			continue
		}
		if err := b.apply(c, strings.TrimSpace(value)); err != nil {
			errs.Add(ConfigurationError{
				Field:     name,
				ErrorType: "env",
				Message:   err.Error(),
			})
		}
	}
	return errs.errOrNil()
}
