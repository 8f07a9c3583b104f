package config

import "time"

// Config is the top-level configuration of mcpgate.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	OAuth   OAuthConfig   `yaml:"oauth"`
	Cache   CacheConfig   `yaml:"cache"`
	Store   StoreConfig   `yaml:"store"`
	Catalog CatalogConfig `yaml:"catalog"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	// PublicURL is the externally reachable base URL, used for authorize
	// links and the OAuth redirect URI. Without it no authorize link is
	// offered.
	PublicURL       string        `yaml:"publicURL,omitempty"`
	CallbackPath    string        `yaml:"callbackPath,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout,omitempty"`
}

// AuthConfig tunes the authorization state machine.
type AuthConfig struct {
	// ProbeUnknown sends an unauthenticated request to servers in the
	// unknown state instead of assuming they need authorization.
	ProbeUnknown   bool          `yaml:"probeUnknown,omitempty"`
	RefreshWindow  time.Duration `yaml:"refreshWindow,omitempty"`
	RequestTimeout time.Duration `yaml:"requestTimeout,omitempty"`
	CacheTTL       time.Duration `yaml:"cacheTTL,omitempty"`
	CacheSize      int           `yaml:"cacheSize,omitempty"`
	// RefreshRate is the sustained number of refresh attempts per second
	// allowed for one server.
	RefreshRate  float64 `yaml:"refreshRate,omitempty"`
	RefreshBurst int     `yaml:"refreshBurst,omitempty"`
}

// OAuthConfig identifies this service to authorization servers.
type OAuthConfig struct {
	ClientID          string        `yaml:"clientID,omitempty"`
	AlternateClientID string        `yaml:"alternateClientID,omitempty"`
	Scopes            []string      `yaml:"scopes,omitempty"`
	MetadataCacheTTL  time.Duration `yaml:"metadataCacheTTL,omitempty"`
}

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendValkey = "valkey"
)

// CacheConfig configures the durable KV and its TTL domains.
type CacheConfig struct {
	Backend       string        `yaml:"backend,omitempty"`
	Prefix        string        `yaml:"prefix,omitempty"`
	TokenTTL      time.Duration `yaml:"tokenTTL,omitempty"`
	CapabilityTTL time.Duration `yaml:"capabilityTTL,omitempty"`
	VerifierTTL   time.Duration `yaml:"verifierTTL,omitempty"`
	Valkey        ValkeyConfig  `yaml:"valkey,omitempty"`
}

// ValkeyConfig holds the Valkey connection settings.
type ValkeyConfig struct {
	Address  string `yaml:"address,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	TLS      bool   `yaml:"tls,omitempty"`
}

// Store backends.
const (
	StoreBackendMemory   = "memory"
	StoreBackendDynamoDB = "dynamodb"
)

// StoreConfig selects where server records live.
type StoreConfig struct {
	Backend  string         `yaml:"backend,omitempty"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb,omitempty"`
}

// DynamoDBConfig holds the DynamoDB table settings.
type DynamoDBConfig struct {
	Table    string `yaml:"table,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// CatalogConfig tunes catalog fetches.
type CatalogConfig struct {
	FetchTimeout time.Duration `yaml:"fetchTimeout,omitempty"`
}

// LoggingConfig sets the log output.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}
