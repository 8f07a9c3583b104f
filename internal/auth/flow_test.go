package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpgate/internal/store"
	"mcpgate/internal/testing/mock"
)

// followAuthorize visits authURL like a browser whose user approves, and
// returns the callback query the authorization server redirected to.
func followAuthorize(t *testing.T, authURL string) url.Values {
	t.Helper()
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		Timeout:       5 * time.Second,
	}
	resp, err := client.Get(authURL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, testPublicURL+DefaultCallbackPath, location.Scheme+"://"+location.Host+location.Path)
	return location.Query()
}

func TestAuthorizationCodeFlow(t *testing.T) {
	ctx := context.Background()

	for _, initial := range []store.AuthStatus{store.AuthStatusRequired, store.AuthStatusFailed} {
		t.Run("from "+string(initial), func(t *testing.T) {
			f := newFixture(t)
			oauthSrv, mcpSrv := f.protectedServer(t, mock.OAuthServerConfig{}, mock.MetadataColocated)
			f.put(t, store.ServerRecord{URL: mcpSrv.URL(), AuthStatus: initial})

			authURL, err := f.manager.BeginAuthorization(ctx, testServerID, testUser)
			require.NoError(t, err)

			parsed, err := url.Parse(authURL)
			require.NoError(t, err)
			q := parsed.Query()
			assert.Equal(t, oauthSrv.Metadata().AuthorizationEndpoint, parsed.Scheme+"://"+parsed.Host+parsed.Path)
			assert.Equal(t, "code", q.Get("response_type"))
			assert.Equal(t, testClientID, q.Get("client_id"))
			assert.Equal(t, "S256", q.Get("code_challenge_method"))
			assert.NotEmpty(t, q.Get("code_challenge"))
			assert.Equal(t, mcpSrv.URL(), q.Get("resource"))
			assert.Equal(t, testPublicURL+DefaultCallbackPath, q.Get("redirect_uri"))

			callback := followAuthorize(t, authURL)
			assert.Equal(t, q.Get("state"), callback.Get("state"))

			res, err := f.manager.CompleteAuthorization(ctx, callback.Get("state"), callback.Get("code"))
			require.NoError(t, err)
			require.Equal(t, StatusAuthenticated, res.Status, res.Error)

			rec := f.get(t)
			assert.Equal(t, store.AuthStatusAuthorized, rec.AuthStatus)
			assert.True(t, rec.Enabled)
			assert.True(t, oauthSrv.ValidateToken(rec.AccessToken))
			assert.NotEmpty(t, rec.RefreshToken)
			assert.Equal(t, testClientID, rec.ClientID)
			require.NotNil(t, rec.TokenExpiresAt)
			assert.Equal(t, f.clock.In(testTokenLifetime), *rec.TokenExpiresAt)

			forms := oauthSrv.TokenRequests()
			require.Len(t, forms, 1)
			assert.Equal(t, "authorization_code", forms[0].Get("grant_type"))
			assert.NotEmpty(t, forms[0].Get("code_verifier"))

			before := f.transport.count()
			assert.Equal(t, StatusAuthenticated, f.ensure(t).Status)
			assert.Equal(t, before, f.transport.count())

			_, err = f.manager.CompleteAuthorization(ctx, callback.Get("state"), callback.Get("code"))
			assert.True(t, errors.Is(err, ErrInvalidState), "a state can only be used once")
		})
	}
}

func TestCompleteAuthorization_ExchangeRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, mcpSrv := f.protectedServer(t, mock.OAuthServerConfig{}, mock.MetadataColocated)
	f.put(t, store.ServerRecord{URL: mcpSrv.URL(), Enabled: true, AuthStatus: store.AuthStatusRequired})

	authURL, err := f.manager.BeginAuthorization(ctx, testServerID, testUser)
	require.NoError(t, err)
	callback := followAuthorize(t, authURL)

	res, err := f.manager.CompleteAuthorization(ctx, callback.Get("state"), "not-the-code")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)

	rec := f.get(t)
	assert.Equal(t, store.AuthStatusFailed, rec.AuthStatus)
	assert.Empty(t, rec.AccessToken)

	res = f.ensure(t)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestCompleteAuthorization_InvalidState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.CompleteAuthorization(ctx, "not base64 !", "code")
	assert.True(t, errors.Is(err, ErrInvalidState))

	forged, err := encodeState(flowState{Nonce: "n", ServerID: testServerID, UserID: testUser})
	require.NoError(t, err)
	_, err = f.manager.CompleteAuthorization(ctx, forged, "code")
	assert.True(t, errors.Is(err, ErrInvalidState), "a state without a stored verifier is rejected")
}

func TestBeginAuthorization_NoMetadata(t *testing.T) {
	f := newFixture(t)
	mcpSrv := mock.NewComplianceServer(mock.ComplianceConfig{AcceptedTokens: []string{"x"}})
	defer mcpSrv.Close()
	f.put(t, store.ServerRecord{URL: mcpSrv.URL(), AuthStatus: store.AuthStatusRequired})

	_, err := f.manager.BeginAuthorization(context.Background(), testServerID, testUser)
	assert.Error(t, err)
}

func TestFlowState(t *testing.T) {
	encoded, err := encodeState(flowState{Nonce: "abc", ServerID: "srv", UserID: "u"})
	require.NoError(t, err)

	decoded, err := decodeState(encoded)
	require.NoError(t, err)
	assert.Equal(t, flowState{Nonce: "abc", ServerID: "srv", UserID: "u"}, decoded)

	incomplete, err := encodeState(flowState{ServerID: "srv"})
	require.NoError(t, err)
	_, err = decodeState(incomplete)
	assert.Error(t, err)
}
