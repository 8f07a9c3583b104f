package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"mcpgate/internal/cache"
	"mcpgate/internal/connection"
	"mcpgate/pkg/logging"
	"mcpgate/pkg/oauth"
)

// flowState is carried through the authorization server in the state parameter.
type flowState struct {
	Nonce    string `json:"n"`
	ServerID string `json:"s"`
	UserID   string `json:"u"`
}

func encodeState(s flowState) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeState(state string) (flowState, error) {
	var s flowState
	raw, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, err
	}
	if s.Nonce == "" || s.ServerID == "" || s.UserID == "" {
		return s, errors.New("incomplete state")
	}
	return s, nil
}

// RedirectURI is the callback URL registered with authorization servers.
func (m *Manager) RedirectURI() string {
	return m.publicURL + m.callbackPath
}

// BeginAuthorization starts the authorization-code flow with PKCE for
// serverID and returns the URL the user must visit.
func (m *Manager) BeginAuthorization(ctx context.Context, serverID, userID string) (string, error) {
	if m.verifiers == nil {
		return "", errors.New("authorization flow is not configured: no verifier store")
	}

	rec, err := m.store.Get(ctx, serverID, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load server %s: %w", serverID, err)
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.requestTimeout)
	defer cancel()

	metadata, err := m.oauthClient.DiscoverForServer(dctx, rec.URL)
	if err != nil {
		return "", fmt.Errorf("failed to discover authorization server for %s: %w", serverID, err)
	}
	if metadata.AuthorizationEndpoint == "" {
		return "", fmt.Errorf("authorization server for %s has no authorization endpoint", serverID)
	}
	if !metadata.SupportsPKCE() {
		return "", fmt.Errorf("authorization server for %s does not support S256 PKCE", serverID)
	}

	nonce, err := oauth.GenerateState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	state, err := encodeState(flowState{Nonce: nonce, ServerID: serverID, UserID: userID})
	if err != nil {
		return "", fmt.Errorf("failed to encode state: %w", err)
	}

	pkce := oauth.GeneratePKCE()
	if err := m.verifiers.StoreVerifier(ctx, state, pkce.CodeVerifier); err != nil {
		return "", fmt.Errorf("failed to store PKCE verifier: %w", err)
	}

	clientID := clientIDCandidates(rec.ClientID, m.clientID, m.alternateClientID)[0]
	cfg := m.oauth2Config(metadata, clientID)
	authURL := cfg.AuthCodeURL(state,
		oauth2.S256ChallengeOption(pkce.CodeVerifier),
		oauth2.SetAuthURLParam("resource", rec.URL),
	)

	logging.Info("AuthManager", "Started authorization for server %s (user %s)", serverID, userID)
	return authURL, nil
}

func (m *Manager) oauth2Config(metadata *oauth.Metadata, clientID string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: clientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   metadata.AuthorizationEndpoint,
			TokenURL:  metadata.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: m.RedirectURI(),
		Scopes:      m.scopes,
	}
}

// CompleteAuthorization finishes the flow started by BeginAuthorization.
// It works from both the required and failed states. ErrInvalidState is
// returned for a state this service did not issue or already consumed.
func (m *Manager) CompleteAuthorization(ctx context.Context, state, code string) (Result, error) {
	fs, err := decodeState(state)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if m.verifiers == nil {
		return Result{}, errors.New("authorization flow is not configured: no verifier store")
	}

	verifier, err := m.verifiers.RetrieveVerifier(ctx, state)
	if err != nil {
		if errors.Is(err, cache.ErrVerifierNotFound) {
			return Result{}, ErrInvalidState
		}
		return Result{}, fmt.Errorf("failed to load PKCE verifier: %w", err)
	}

	rec, err := m.store.Get(ctx, fs.ServerID, fs.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load server %s: %w", fs.ServerID, err)
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.requestTimeout)
	defer cancel()

	metadata, err := m.oauthClient.DiscoverForServer(dctx, rec.URL)
	if err != nil {
		if oauth.IsTransportError(err) {
			return m.unreachable(rec.ID, err), nil
		}
		return m.failAuthorization(ctx, fs, err)
	}

	token, err := m.validator.requestWithFallback(rec.ClientID, rec.ID, func(clientID string) (*oauth.Token, error) {
		return m.oauthClient.ExchangeCode(dctx, metadata.TokenEndpoint, code, m.RedirectURI(), clientID, verifier)
	})
	if err != nil {
		if oauth.IsTransportError(err) {
			return m.unreachable(rec.ID, err), nil
		}
		return m.failAuthorization(ctx, fs, err)
	}

	if err := m.TransitionToAuthorized(ctx, fs.ServerID, fs.UserID, token); err != nil {
		return Result{}, err
	}
	m.connections.Forget(fs.ServerID)
	return authenticatedResult(), nil
}

func (m *Manager) failAuthorization(ctx context.Context, fs flowState, cause error) (Result, error) {
	if err := m.TransitionToFailed(ctx, fs.ServerID, fs.UserID, cause); err != nil {
		return Result{}, err
	}
	return failedResult(fmt.Sprintf("authorization for server %s failed: %v", fs.ServerID, cause)), nil
}

// LiveStatus exposes the connection manager's view of serverID.
func (m *Manager) LiveStatus(serverID string) *connection.Status {
	return m.connections.LiveStatus(serverID)
}
