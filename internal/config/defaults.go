package config

import "time"

const (
	// DefaultOAuthCallbackPath is the default path for OAuth callbacks
	DefaultOAuthCallbackPath = "/oauth/callback"

	// DefaultOAuthClientID is the client id presented to authorization servers
	DefaultOAuthClientID = "mcpgate"

	// DefaultAlternateClientID is the Client ID Metadata Document URL tried
	// when the primary client id is rejected
	DefaultAlternateClientID = "https://mcpgate.dev/oauth/client-metadata.json"
)

// Default returns the configuration used when nothing is configured.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8090,
			CallbackPath:    DefaultOAuthCallbackPath,
			ShutdownTimeout: 15 * time.Second,
		},
		Auth: AuthConfig{
			RefreshWindow:  10 * time.Minute,
			RequestTimeout: 30 * time.Second,
			CacheTTL:       5 * time.Minute,
			CacheSize:      1024,
			RefreshRate:    0.1,
			RefreshBurst:   3,
		},
		OAuth: OAuthConfig{
			ClientID:          DefaultOAuthClientID,
			AlternateClientID: DefaultAlternateClientID,
			MetadataCacheTTL:  30 * time.Minute,
		},
		Cache: CacheConfig{
			Backend:       CacheBackendMemory,
			Prefix:        "mcpgate:",
			TokenTTL:      30 * time.Minute,
			CapabilityTTL: 2 * time.Hour,
			VerifierTTL:   10 * time.Minute,
		},
		Store: StoreConfig{
			Backend: StoreBackendMemory,
		},
		Catalog: CatalogConfig{
			FetchTimeout: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
