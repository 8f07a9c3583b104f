package recovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpgate/internal/connection"
	"mcpgate/pkg/oauth"
)

func rpcError(code int, msg string) error {
	d := mcp.JSONRPCErrorDetails{Code: code, Message: msg}
	return fmt.Errorf("tools/list failed for server docs: %w", d.AsError())
}

func TestFromError(t *testing.T) {
	dialErr := &url.Error{Op: "Post", URL: "http://127.0.0.1:1/mcp", Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}

	tests := []struct {
		name     string
		err      error
		wantNil  bool
		wantCode int
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "own error", err: fmt.Errorf("wrapped: %w", New(-32050, "custom")), wantCode: -32050},
		{name: "method not found", err: rpcError(mcp.METHOD_NOT_FOUND, "no ping"), wantCode: mcp.METHOD_NOT_FOUND},
		{name: "internal error", err: rpcError(mcp.INTERNAL_ERROR, "boom"), wantCode: mcp.INTERNAL_ERROR},
		{name: "resource not found", err: rpcError(mcp.RESOURCE_NOT_FOUND, "gone"), wantCode: mcp.RESOURCE_NOT_FOUND},
		{name: "interrupted", err: rpcError(mcp.REQUEST_INTERRUPTED, "cancelled"), wantCode: mcp.REQUEST_INTERRUPTED},
		{name: "oauth required", err: &connection.OAuthRequiredError{ServerID: "docs", Err: errors.New("status 401")}, wantCode: CodeUnauthorized},
		{name: "http 401 text", err: errors.New("transport error: request failed with status 401: "), wantCode: CodeUnauthorized},
		{name: "http 403 text", err: errors.New("request failed with status 403: forbidden"), wantCode: CodeUnauthorized},
		{name: "http 404 text", err: errors.New("request failed with status 404: "), wantCode: mcp.INVALID_REQUEST},
		{name: "http 502 text", err: errors.New("request failed with status 502: "), wantCode: mcp.INTERNAL_ERROR},
		{name: "unknown", err: errors.New("something odd"), wantCode: mcp.INTERNAL_ERROR},
		{name: "dial failure", err: fmt.Errorf("failed to send request: %w", dialErr), wantNil: true},
		{name: "oauth transport error", err: &oauth.TransportError{Op: "POST", Err: errors.New("reset")}, wantNil: true},
		{name: "deadline", err: context.DeadlineExceeded, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError(tt.err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
		})
	}
}

func TestError_Error(t *testing.T) {
	err := New(mcp.INVALID_PARAMS, "missing name")
	assert.Equal(t, "json-rpc error -32602: missing name", err.Error())

	d := FromDetails(mcp.JSONRPCErrorDetails{Code: -32010, Message: "quota", Data: map[string]any{"retryAfter": 5}})
	assert.Equal(t, -32010, d.Code)
	assert.NotNil(t, d.Data)
}

func TestClassifiers(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		is401    bool
		protocol bool
		client   bool
		server   bool
	}{
		{name: "unauthorized", err: New(CodeUnauthorized, "auth"), is401: true, protocol: true},
		{name: "parse", err: New(mcp.PARSE_ERROR, ""), protocol: true, client: true},
		{name: "invalid request", err: New(mcp.INVALID_REQUEST, ""), protocol: true, client: true},
		{name: "method not found", err: New(mcp.METHOD_NOT_FOUND, ""), protocol: true, client: true},
		{name: "invalid params", err: New(mcp.INVALID_PARAMS, ""), protocol: true, client: true},
		{name: "resource not found", err: New(mcp.RESOURCE_NOT_FOUND, ""), protocol: true, client: true},
		{name: "internal", err: New(mcp.INTERNAL_ERROR, ""), protocol: true, server: true},
		{name: "implementation defined", err: New(-32050, ""), protocol: true, server: true},
		{name: "interrupted", err: New(mcp.REQUEST_INTERRUPTED, ""), protocol: true, server: true},
		{name: "application code", err: New(42, "")},
		{name: "transport", err: &oauth.TransportError{Op: "GET", Err: errors.New("refused")}},
		{name: "nil", err: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.is401, Is401Error(tt.err), "Is401Error")
			assert.Equal(t, tt.protocol, IsMCPProtocolError(tt.err), "IsMCPProtocolError")
			assert.Equal(t, tt.client, IsClientError(tt.err), "IsClientError")
			assert.Equal(t, tt.server, IsServerError(tt.err), "IsServerError")
		})
	}
}

func TestIsTransportError(t *testing.T) {
	assert.True(t, IsTransportError(&url.Error{Op: "Get", URL: "http://x", Err: errors.New("eof")}))
	assert.True(t, IsTransportError(fmt.Errorf("probe: %w", context.DeadlineExceeded)))
	assert.False(t, IsTransportError(errors.New("request failed with status 500")))
	assert.False(t, IsTransportError(nil))
}
