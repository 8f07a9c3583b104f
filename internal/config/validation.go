package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"mcpgate/pkg/logging"
)

// Validate checks the configuration and reports every problem found.
func (c Config) Validate() error {
	var errs ConfigurationErrorCollection
	add := func(field, message string, suggestions ...string) {
		errs.Add(ConfigurationError{
			Field:       field,
			ErrorType:   "validation",
			Message:     message,
			Suggestions: suggestions,
		})
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", fmt.Sprintf("port %d is out of range", c.Server.Port))
	}
	if c.Server.PublicURL != "" {
		u, err := url.Parse(c.Server.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			add("server.publicURL", fmt.Sprintf("%q is not an absolute URL", c.Server.PublicURL),
				"use the form https://gate.example.com")
		}
	}
	if !strings.HasPrefix(c.Server.CallbackPath, "/") {
		add("server.callbackPath", "must start with /")
	}

	positive := []struct {
		field string
		value time.Duration
	}{
		{"server.shutdownTimeout", c.Server.ShutdownTimeout},
		{"auth.refreshWindow", c.Auth.RefreshWindow},
		{"auth.requestTimeout", c.Auth.RequestTimeout},
		{"auth.cacheTTL", c.Auth.CacheTTL},
		{"oauth.metadataCacheTTL", c.OAuth.MetadataCacheTTL},
		{"cache.tokenTTL", c.Cache.TokenTTL},
		{"cache.capabilityTTL", c.Cache.CapabilityTTL},
		{"cache.verifierTTL", c.Cache.VerifierTTL},
		{"catalog.fetchTimeout", c.Catalog.FetchTimeout},
	}
	for _, p := range positive {
		if p.value <= 0 {
			add(p.field, "must be a positive duration")
		}
	}

	if c.Auth.CacheSize < 1 {
		add("auth.cacheSize", "must be at least 1")
	}
	if c.Auth.RefreshRate <= 0 {
		add("auth.refreshRate", "must be positive")
	}
	if c.Auth.RefreshBurst < 1 {
		add("auth.refreshBurst", "must be at least 1")
	}
	if strings.TrimSpace(c.OAuth.ClientID) == "" {
		add("oauth.clientID", "is required")
	}

	switch c.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendValkey:
		if c.Cache.Valkey.Address == "" {
			add("cache.valkey.address", "is required for the valkey backend", "set MCPGATE_VALKEY_ADDRESS")
		}
	default:
		add("cache.backend", fmt.Sprintf("unknown backend %q", c.Cache.Backend),
			"use memory or valkey")
	}

	switch c.Store.Backend {
	case StoreBackendMemory:
	case StoreBackendDynamoDB:
		if c.Store.DynamoDB.Table == "" {
			add("store.dynamodb.table", "is required for the dynamodb backend")
		}
		if c.Store.DynamoDB.Region == "" {
			add("store.dynamodb.region", "is required for the dynamodb backend")
		}
	default:
		add("store.backend", fmt.Sprintf("unknown backend %q", c.Store.Backend),
			"use memory or dynamodb")
	}

	if _, ok := logging.ParseLevel(c.Logging.Level); !ok {
		add("logging.level", fmt.Sprintf("unknown level %q", c.Logging.Level),
			"use debug, info, warn or error")
	}
	switch logging.Format(c.Logging.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		add("logging.format", fmt.Sprintf("unknown format %q", c.Logging.Format), "use text or json")
	}

	return errs.errOrNil()
}
