package mock

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

func connect(t *testing.T, url, token string) (*client.Client, error) {
	t.Helper()
	var opts []transport.StreamableHTTPCOption
	if token != "" {
		opts = append(opts, transport.WithHTTPHeaders(map[string]string{"Authorization": "Bearer " + token}))
	}
	c, err := client.NewStreamableHttpClient(url, opts...)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	_, err = c.Initialize(context.Background(), mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcp.Implementation{Name: "mock-test", Version: "1.0.0"},
		},
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func TestComplianceServer_Handshake(t *testing.T) {
	srv := NewComplianceServer(ComplianceConfig{})
	defer srv.Close()

	c, err := connect(t, srv.URL(), "")
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	tools, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		t.Fatalf("tools/list failed: %v", err)
	}
	if len(tools.Tools) == 0 || tools.Tools[0].Name != "echo" {
		t.Fatalf("expected the echo tool, got %+v", tools.Tools)
	}

	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: "echo", Arguments: map[string]interface{}{"message": "hi"}},
	})
	if err != nil {
		t.Fatalf("tools/call failed: %v", err)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content in tools/call result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok || !strings.Contains(text.Text, "hi") {
		t.Errorf("expected echoed text, got %+v", result.Content[0])
	}

	resources, err := c.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		t.Fatalf("resources/list failed: %v", err)
	}
	if len(resources.Resources) != 1 || resources.Resources[0].MIMEType != "text/markdown" {
		t.Errorf("unexpected resources: %+v", resources.Resources)
	}

	if err := c.Ping(ctx); err != nil {
		t.Errorf("ping should be supported by default: %v", err)
	}

	if srv.RequestCount("initialize") != 1 || srv.RequestCount("tools/list") != 1 || srv.RequestCount("tools/call") != 1 {
		t.Errorf("unexpected per-method counts: init=%d list=%d call=%d",
			srv.RequestCount("initialize"), srv.RequestCount("tools/list"), srv.RequestCount("tools/call"))
	}
}

func TestComplianceServer_DisablePing(t *testing.T) {
	srv := NewComplianceServer(ComplianceConfig{DisablePing: true, DisablePrompts: true})
	defer srv.Close()

	c, err := connect(t, srv.URL(), "")
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	defer c.Close()

	err = c.Ping(context.Background())
	if !errors.Is(err, mcp.ErrMethodNotFound) {
		t.Errorf("expected METHOD_NOT_FOUND for ping, got %v", err)
	}
	_, err = c.ListPrompts(context.Background(), mcp.ListPromptsRequest{})
	if !errors.Is(err, mcp.ErrMethodNotFound) {
		t.Errorf("expected METHOD_NOT_FOUND for prompts/list, got %v", err)
	}
	if srv.RequestCount("ping") != 1 {
		t.Errorf("expected ping to be counted once, got %d", srv.RequestCount("ping"))
	}
}

func TestComplianceServer_InjectError(t *testing.T) {
	srv := NewComplianceServer(ComplianceConfig{})
	defer srv.Close()
	srv.InjectError("tools/list", mcp.INTERNAL_ERROR, "boom")

	c, err := connect(t, srv.URL(), "")
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	defer c.Close()

	_, err = c.ListTools(context.Background(), mcp.ListToolsRequest{})
	if err == nil {
		t.Fatal("expected injected error")
	}

	srv.ClearErrors()
	if _, err := c.ListTools(context.Background(), mcp.ListToolsRequest{}); err != nil {
		t.Errorf("expected success after clearing errors: %v", err)
	}
}

func TestComplianceServer_RequiresBearerToken(t *testing.T) {
	srv := NewComplianceServer(ComplianceConfig{AcceptedTokens: []string{"good"}})
	defer srv.Close()

	if _, err := connect(t, srv.URL(), ""); err == nil {
		t.Fatal("expected initialize without token to fail")
	}
	if _, err := connect(t, srv.URL(), "bad"); err == nil {
		t.Fatal("expected initialize with a wrong token to fail")
	}
	if srv.UnauthorizedCount() != 2 {
		t.Errorf("expected 2 rejected requests, got %d", srv.UnauthorizedCount())
	}

	c, err := connect(t, srv.URL(), "good")
	if err != nil {
		t.Fatalf("initialize with accepted token failed: %v", err)
	}
	c.Close()
}

func TestComplianceServer_RejectedLastTokenStaysProtected(t *testing.T) {
	srv := NewComplianceServer(ComplianceConfig{AcceptedTokens: []string{"good"}})
	defer srv.Close()

	c, err := connect(t, srv.URL(), "good")
	if err != nil {
		t.Fatalf("initialize with accepted token failed: %v", err)
	}
	defer c.Close()

	srv.RejectToken("good")
	if _, err := c.ListTools(context.Background(), mcp.ListToolsRequest{}); err == nil {
		t.Fatal("expected tools/list with a revoked token to fail")
	}
	if _, err := connect(t, srv.URL(), ""); err == nil {
		t.Fatal("expected initialize without token to fail after every token was revoked")
	}
	if srv.UnauthorizedCount() < 2 {
		t.Errorf("expected at least 2 rejected requests, got %d", srv.UnauthorizedCount())
	}
}

func TestComplianceServer_ChallengeHeader(t *testing.T) {
	oauthSrv := NewOAuthServer(OAuthServerConfig{})
	defer oauthSrv.Close()
	srv := NewComplianceServer(ComplianceConfig{OAuth: oauthSrv})
	defer srv.Close()

	resp, err := http.Post(srv.URL(), "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	header := resp.Header.Get("WWW-Authenticate")
	if !strings.Contains(header, "resource_metadata=") || !strings.Contains(header, oauthSrv.URL()) {
		t.Errorf("unexpected challenge: %s", header)
	}

	tok := oauthSrv.IssueToken("client")
	c, err := connect(t, srv.URL(), tok.AccessToken)
	if err != nil {
		t.Fatalf("token issued by the OAuth server should be accepted: %v", err)
	}
	c.Close()
}

func TestComplianceServer_MetadataLocations(t *testing.T) {
	oauthSrv := NewOAuthServer(OAuthServerConfig{})
	defer oauthSrv.Close()

	tests := []struct {
		location MetadataLocation
		path     string
	}{
		{MetadataColocated, "/mcp/.well-known/oauth-authorization-server"},
		{MetadataRoot, "/.well-known/oauth-authorization-server"},
		{MetadataProtectedResource, "/.well-known/oauth-protected-resource"},
	}

	for _, tt := range tests {
		t.Run(string(tt.location), func(t *testing.T) {
			srv := NewComplianceServer(ComplianceConfig{OAuth: oauthSrv, MetadataLocation: tt.location})
			defer srv.Close()

			for _, path := range []string{
				"/mcp/.well-known/oauth-authorization-server",
				"/.well-known/oauth-authorization-server",
				"/.well-known/oauth-protected-resource",
			} {
				resp, err := http.Get(srv.BaseURL() + path)
				if err != nil {
					t.Fatalf("GET %s failed: %v", path, err)
				}
				resp.Body.Close()

				want := http.StatusNotFound
				if path == tt.path {
					want = http.StatusOK
				}
				if resp.StatusCode != want {
					t.Errorf("GET %s: expected %d, got %d", path, want, resp.StatusCode)
				}
			}
		})
	}
}
