package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpgate/internal/testing/mock"
)

func TestManager_LiveStatusUnknownUntilObserved(t *testing.T) {
	m := NewManager()
	assert.Nil(t, m.LiveStatus("srv-1"))

	var nilManager *Manager
	assert.Nil(t, nilManager.LiveStatus("srv-1"))
	nilManager.Record("srv-1", StateConnected, nil)
}

func TestManager_Connect(t *testing.T) {
	srv := mock.NewComplianceServer(mock.ComplianceConfig{Name: "docs"})
	defer srv.Close()

	clock := mock.NewMockClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	m := NewManager(WithNow(clock.Now), WithClientInfo("mcpgate-test", "1.2.3"))

	session, err := m.Connect(context.Background(), "srv-1", srv.URL(), "")
	require.NoError(t, err)
	defer session.Close()

	assert.Equal(t, "srv-1", session.ServerID())
	require.NotNil(t, session.InitializeResult())
	assert.Equal(t, "docs", session.InitializeResult().ServerInfo.Name)

	status := m.LiveStatus("srv-1")
	require.NotNil(t, status)
	assert.Equal(t, StateConnected, status.State)
	assert.Equal(t, clock.Now(), status.CheckedAt)
	assert.Empty(t, status.LastError)

	tools, err := session.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)

	result, err := session.CallTool(context.Background(), "echo", map[string]interface{}{"message": "hello"})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	supported, err := session.Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, supported)

	m.Forget("srv-1")
	assert.Nil(t, m.LiveStatus("srv-1"))
}

func TestManager_ConnectUnauthorized(t *testing.T) {
	srv := mock.NewComplianceServer(mock.ComplianceConfig{AcceptedTokens: []string{"good"}})
	defer srv.Close()

	m := NewManager()
	session, err := m.Connect(context.Background(), "srv-1", srv.URL(), "stale")
	assert.Nil(t, session)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOAuthRequired))

	var authErr *OAuthRequiredError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "srv-1", authErr.ServerID)
	assert.Equal(t, srv.URL(), authErr.URL)

	status := m.LiveStatus("srv-1")
	require.NotNil(t, status)
	assert.Equal(t, StateUnauthorized, status.State)
	assert.NotEmpty(t, status.LastError)

	session, err = m.Connect(context.Background(), "srv-1", srv.URL(), "good")
	require.NoError(t, err)
	defer session.Close()
	assert.Equal(t, StateConnected, m.LiveStatus("srv-1").State)
}

func TestManager_ConnectOffline(t *testing.T) {
	srv := mock.NewComplianceServer(mock.ComplianceConfig{})
	url := srv.URL()
	srv.Close()

	m := NewManager()
	_, err := m.Connect(context.Background(), "srv-1", url, "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrOAuthRequired))

	status := m.LiveStatus("srv-1")
	require.NotNil(t, status)
	assert.Equal(t, StateOffline, status.State)
}

func TestSession_OptionalMethods(t *testing.T) {
	srv := mock.NewComplianceServer(mock.ComplianceConfig{
		DisablePing:      true,
		DisableResources: true,
		DisablePrompts:   true,
	})
	defer srv.Close()

	m := NewManager()
	session, err := m.Connect(context.Background(), "srv-1", srv.URL(), "")
	require.NoError(t, err)
	defer session.Close()

	supported, err := session.Ping(context.Background())
	require.NoError(t, err)
	assert.False(t, supported)

	resources, err := session.ListResources(context.Background())
	require.NoError(t, err)
	assert.Empty(t, resources)

	prompts, err := session.ListPrompts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, prompts)

	assert.Equal(t, StateConnected, m.LiveStatus("srv-1").State)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	srv := mock.NewComplianceServer(mock.ComplianceConfig{})
	defer srv.Close()

	session, err := NewManager().Connect(context.Background(), "srv-1", srv.URL(), "")
	require.NoError(t, err)

	assert.NoError(t, session.Close())
	assert.NoError(t, session.Close())

	_, err = session.ListTools(context.Background())
	assert.Error(t, err)
}

func TestSession_TokenRevokedMidSession(t *testing.T) {
	srv := mock.NewComplianceServer(mock.ComplianceConfig{AcceptedTokens: []string{"good"}})
	defer srv.Close()

	m := NewManager()
	session, err := m.Connect(context.Background(), "srv-1", srv.URL(), "good")
	require.NoError(t, err)
	defer session.Close()

	srv.RejectToken("good")
	_, err = session.ListTools(context.Background())
	assert.True(t, errors.Is(err, ErrOAuthRequired))
	assert.Equal(t, StateUnauthorized, m.LiveStatus("srv-1").State)
}
