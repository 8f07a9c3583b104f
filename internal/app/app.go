package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/time/rate"

	"mcpgate/internal/auth"
	"mcpgate/internal/cache"
	"mcpgate/internal/catalog"
	"mcpgate/internal/config"
	"mcpgate/internal/connection"
	"mcpgate/internal/server"
	"mcpgate/internal/store"
	"mcpgate/pkg/logging"
	"mcpgate/pkg/oauth"
)

// Application owns the long-lived components built from a config.Config.
type Application struct {
	Config config.Config

	Store       store.ServerStore
	Cache       *cache.DualCache
	Verifiers   *cache.VerifierStore
	Connections *connection.Manager
	Auth        *auth.Manager
	Catalog     *catalog.Service
	Server      *server.Server

	closers []func()
}

// InitLogging configures the global logger from cfg. Unknown levels fall
// back to info; Validate rejects them before this is reached.
func InitLogging(cfg config.LoggingConfig, w io.Writer) {
	level, _ := logging.ParseLevel(cfg.Level)
	logging.Init(level, logging.Format(cfg.Format), w)
}

// New builds every component. The caller must Close the Application.
func New(ctx context.Context, cfg config.Config, version string) (*Application, error) {
	a := &Application{Config: cfg}

	kv, err := a.newKV(cfg.Cache)
	if err != nil {
		return nil, err
	}
	st, err := newStore(ctx, cfg.Store)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = st

	a.Cache = cache.NewDualCache(kv, cache.DualCacheConfig{
		Prefix:        cfg.Cache.Prefix,
		TokenTTL:      cfg.Cache.TokenTTL,
		CapabilityTTL: cfg.Cache.CapabilityTTL,
	})
	a.Verifiers = cache.NewVerifierStore(kv, cfg.Cache.Prefix, cfg.Cache.VerifierTTL)

	httpClient := &http.Client{Timeout: cfg.Auth.RequestTimeout}
	a.Connections = connection.NewManager(
		connection.WithHTTPClient(httpClient),
		connection.WithClientInfo("mcpgate", version),
	)
	oauthClient := oauth.NewClient(
		oauth.WithHTTPClient(httpClient),
		oauth.WithLogger(logging.Logger("OAuth")),
		oauth.WithMetadataCacheTTL(cfg.OAuth.MetadataCacheTTL),
	)

	a.Auth = auth.NewManager(auth.ManagerConfig{
		Store:             st,
		Cache:             a.Cache,
		Verifiers:         a.Verifiers,
		OAuthClient:       oauthClient,
		Connections:       a.Connections,
		PublicURL:         PublicURL(cfg.Server),
		CallbackPath:      cfg.Server.CallbackPath,
		ClientID:          cfg.OAuth.ClientID,
		AlternateClientID: cfg.OAuth.AlternateClientID,
		Scopes:            cfg.OAuth.Scopes,
		RefreshWindow:     cfg.Auth.RefreshWindow,
		RequestTimeout:    cfg.Auth.RequestTimeout,
		AuthCacheTTL:      cfg.Auth.CacheTTL,
		AuthCacheSize:     cfg.Auth.CacheSize,
		RefreshRate:       rate.Limit(cfg.Auth.RefreshRate),
		RefreshBurst:      cfg.Auth.RefreshBurst,
		ProbeUnknown:      cfg.Auth.ProbeUnknown,
	})

	a.Catalog = catalog.NewService(catalog.ServiceConfig{
		Store:        st,
		Cache:        a.Cache,
		Connections:  a.Connections,
		Auth:         a.Auth,
		FetchTimeout: cfg.Catalog.FetchTimeout,
	})

	a.Server = server.New(server.Config{
		Addr:         ListenAddr(cfg.Server),
		CallbackPath: cfg.Server.CallbackPath,
	}, server.Deps{
		Store:   st,
		Cache:   a.Cache,
		Auth:    a.Auth,
		Catalog: a.Catalog,
	})

	logging.Info("Bootstrap", "Using %s cache and %s store", cfg.Cache.Backend, cfg.Store.Backend)
	return a, nil
}

func (a *Application) newKV(cfg config.CacheConfig) (cache.KV, error) {
	switch cfg.Backend {
	case config.CacheBackendValkey:
		kv, err := cache.NewValkeyKV(cache.ValkeyConfig{
			Address:  cfg.Valkey.Address,
			Username: cfg.Valkey.Username,
			Password: cfg.Valkey.Password,
			DB:       cfg.Valkey.DB,
			TLS:      cfg.Valkey.TLS,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to valkey at %s: %w", cfg.Valkey.Address, err)
		}
		a.closers = append(a.closers, kv.Close)
		return kv, nil
	case config.CacheBackendMemory, "":
		return cache.NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func newStore(ctx context.Context, cfg config.StoreConfig) (store.ServerStore, error) {
	switch cfg.Backend {
	case config.StoreBackendDynamoDB:
		st, err := store.NewDynamoStoreFromConfig(ctx, store.DynamoConfig{
			TableName: cfg.DynamoDB.Table,
			Region:    cfg.DynamoDB.Region,
			Endpoint:  cfg.DynamoDB.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create dynamodb store: %w", err)
		}
		return st, nil
	case config.StoreBackendMemory, "":
		logging.Warn("Bootstrap", "Using the in-memory store; registrations are lost on restart")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// ListenAddr returns host:port for the HTTP listener.
func ListenAddr(cfg config.ServerConfig) string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// PublicURL returns the configured public URL, or one derived from the
// listen address.
func PublicURL(cfg config.ServerConfig) string {
	if cfg.PublicURL != "" {
		return cfg.PublicURL
	}
	return "http://" + ListenAddr(cfg)
}

// Run serves HTTP until ctx is cancelled, then shuts down within the
// configured timeout.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Server.Start(); err != nil {
		return err
	}
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logging.Warn("Bootstrap", "Failed to notify systemd: %v", err)
	} else if sent {
		logging.Debug("Bootstrap", "Notified systemd of readiness")
	}
	logging.Info("Bootstrap", "mcpgate ready, OAuth redirect URI %s", a.Auth.RedirectURI())

	<-ctx.Done()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	logging.Info("Bootstrap", "Shutting down")
	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return a.Server.Shutdown(sctx)
}

// Close releases backend connections.
func (a *Application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
