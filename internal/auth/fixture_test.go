package auth

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mcpgate/internal/cache"
	"mcpgate/internal/connection"
	"mcpgate/internal/store"
	"mcpgate/internal/testing/mock"
	"mcpgate/pkg/oauth"
)

const (
	testUser          = "user-1"
	testClientID      = "mcpgate"
	testAlternateID   = "https://mcpgate.example.com/oauth/client.json"
	testPublicURL     = "https://gate.example.com"
	testServerID      = "srv-1"
	testServerName    = "docs"
	testTokenLifetime = time.Hour
)

// countingTransport counts every outbound HTTP request.
type countingTransport struct {
	requests int64
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	atomic.AddInt64(&c.requests, 1)
	return http.DefaultTransport.RoundTrip(r)
}

func (c *countingTransport) count() int64 {
	return atomic.LoadInt64(&c.requests)
}

type fixture struct {
	clock     *mock.MockClock
	store     store.ServerStore
	kv        *cache.MemoryKV
	cache     *cache.DualCache
	conns     *connection.Manager
	transport *countingTransport
	manager   *Manager
}

type fixtureOption func(*ManagerConfig)

func withProbe() fixtureOption {
	return func(c *ManagerConfig) { c.ProbeUnknown = true }
}

func withClientIDs(primary, alternate string) fixtureOption {
	return func(c *ManagerConfig) {
		c.ClientID = primary
		c.AlternateClientID = alternate
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	clock := mock.NewMockClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	kv := cache.NewMemoryKV(cache.WithClock(clock.Now))
	f := &fixture{
		clock: clock,
		store: store.NewMemoryStore(),
		kv:    kv,
		cache: cache.NewDualCache(kv, cache.DualCacheConfig{}),
		conns: connection.NewManager(connection.WithNow(clock.Now)),
	}
	f.manager = f.newManager(f.store, opts...)
	return f
}

// newManager builds a Manager over the fixture's durable state, as a fresh
// process would.
func (f *fixture) newManager(s store.ServerStore, opts ...fixtureOption) *Manager {
	f.transport = &countingTransport{}
	hc := &http.Client{Transport: f.transport, Timeout: 5 * time.Second}

	cfg := ManagerConfig{
		Store:             s,
		Cache:             f.cache,
		Verifiers:         cache.NewVerifierStore(f.kv, "", 0),
		Connections:       f.conns,
		PublicURL:         testPublicURL,
		ClientID:          testClientID,
		AlternateClientID: testAlternateID,
		RequestTimeout:    5 * time.Second,
		Now:               f.clock.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.OAuthClient = oauth.NewClient(oauth.WithHTTPClient(hc), oauth.WithNow(f.clock.Now))
	cfg.Validator = NewValidator(ValidatorConfig{
		HTTPClient:        hc,
		OAuthClient:       cfg.OAuthClient,
		Store:             s,
		ClientID:          cfg.ClientID,
		AlternateClientID: cfg.AlternateClientID,
		RequestTimeout:    cfg.RequestTimeout,
		Now:               f.clock.Now,
	})
	return NewManager(cfg)
}

func (f *fixture) put(t *testing.T, rec store.ServerRecord) {
	t.Helper()
	if rec.ID == "" {
		rec.ID = testServerID
	}
	if rec.UserID == "" {
		rec.UserID = testUser
	}
	if rec.Name == "" {
		rec.Name = testServerName
	}
	require.NoError(t, f.store.Put(context.Background(), &rec))
}

func (f *fixture) get(t *testing.T) *store.ServerRecord {
	t.Helper()
	rec, err := f.store.Get(context.Background(), testServerID, testUser)
	require.NoError(t, err)
	return rec
}

func (f *fixture) ensure(t *testing.T) Result {
	t.Helper()
	res, err := f.manager.EnsureAuthenticated(context.Background(), testServerID, testUser)
	require.NoError(t, err)
	return res
}

// protectedServer starts an OAuth server and an MCP server that trusts it.
func (f *fixture) protectedServer(t *testing.T, oauthCfg mock.OAuthServerConfig, location mock.MetadataLocation) (*mock.OAuthServer, *mock.ComplianceServer) {
	t.Helper()
	oauthCfg.Clock = f.clock
	if oauthCfg.TokenLifetime == 0 {
		oauthCfg.TokenLifetime = testTokenLifetime
	}
	oauthSrv := mock.NewOAuthServer(oauthCfg)
	t.Cleanup(oauthSrv.Close)

	mcpSrv := mock.NewComplianceServer(mock.ComplianceConfig{OAuth: oauthSrv, MetadataLocation: location})
	t.Cleanup(mcpSrv.Close)
	return oauthSrv, mcpSrv
}

// authorizedRecord returns a record holding tok, expiring at expiresAt.
func authorizedRecord(url string, tok *mock.TokenResponse, expiresAt time.Time) store.ServerRecord {
	return store.ServerRecord{
		URL:            url,
		Enabled:        true,
		AuthStatus:     store.AuthStatusAuthorized,
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		TokenExpiresAt: &expiresAt,
	}
}
