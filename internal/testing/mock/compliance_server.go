package mock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"mcpgate/pkg/logging"
	"mcpgate/pkg/oauth"
)

// MetadataLocation selects where a ComplianceServer advertises its
// authorization server.
type MetadataLocation string

const (
	// MetadataNone serves no discovery document at all.
	MetadataNone MetadataLocation = "none"
	// MetadataColocated serves RFC 8414 metadata under the MCP endpoint path.
	MetadataColocated MetadataLocation = "colocated"
	// MetadataRoot serves RFC 8414 metadata at the origin root.
	MetadataRoot MetadataLocation = "root"
	// MetadataProtectedResource serves only RFC 9728 protected resource metadata.
	MetadataProtectedResource MetadataLocation = "protected-resource"
)

// MCPPath is the path of the MCP endpoint on a ComplianceServer.
const MCPPath = "/mcp"

// RPCError is a JSON-RPC error injected for a method.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ComplianceConfig configures a ComplianceServer.
type ComplianceConfig struct {
	Name string

	// Tools defaults to a single echo tool. Every tool echoes its arguments.
	Tools []mcp.Tool

	// Resources defaults to one markdown resource carrying a MIME type and
	// annotations.
	Resources []mcp.Resource

	// Prompts defaults to a single summarize prompt.
	Prompts []mcp.Prompt

	DisableResources bool
	DisablePrompts   bool
	DisablePing      bool

	// AcceptedTokens are bearer tokens accepted in addition to tokens issued
	// by OAuth. When both are empty the server is open.
	AcceptedTokens []string

	// OAuth validates bearer tokens and is advertised for discovery.
	OAuth *OAuthServer

	// MetadataLocation defaults to MetadataColocated when OAuth is set.
	MetadataLocation MetadataLocation
}

// ComplianceServer is a minimal MCP server for exercising clients without
// a real network dependency.
type ComplianceServer struct {
	config ComplianceConfig
	server *httptest.Server

	// protected is fixed at construction; revoking every token keeps the
	// server closed.
	protected bool

	mu           sync.Mutex
	tokens       map[string]bool
	errors       map[string]RPCError
	counts       map[string]int
	unauthorized int
}

// NewComplianceServer creates and starts a ComplianceServer.
func NewComplianceServer(config ComplianceConfig) *ComplianceServer {
	if config.Name == "" {
		config.Name = "compliance"
	}
	if config.Tools == nil {
		config.Tools = []mcp.Tool{DefaultTool()}
	}
	if config.Resources == nil {
		config.Resources = []mcp.Resource{DefaultResource()}
	}
	if config.Prompts == nil {
		config.Prompts = []mcp.Prompt{
			mcp.NewPrompt("summarize", mcp.WithPromptDescription("Summarize a document")),
		}
	}
	if config.MetadataLocation == "" {
		config.MetadataLocation = MetadataNone
		if config.OAuth != nil {
			config.MetadataLocation = MetadataColocated
		}
	}

	s := &ComplianceServer{
		config:    config,
		protected: len(config.AcceptedTokens) > 0 || config.OAuth != nil,
		tokens:    make(map[string]bool),
		errors:    make(map[string]RPCError),
		counts:    make(map[string]int),
	}
	for _, t := range config.AcceptedTokens {
		s.tokens[t] = true
	}

	mux := http.NewServeMux()
	mux.Handle(MCPPath, s.middleware(server.NewStreamableHTTPServer(s.newMCPServer())))
	switch config.MetadataLocation {
	case MetadataColocated:
		mux.HandleFunc(MCPPath+"/.well-known/oauth-authorization-server", s.handleASMetadata)
	case MetadataRoot:
		mux.HandleFunc("/.well-known/oauth-authorization-server", s.handleASMetadata)
	case MetadataProtectedResource:
		mux.HandleFunc("/.well-known/oauth-protected-resource", s.handleProtectedResource)
	}
	s.server = httptest.NewServer(mux)
	return s
}

// DefaultTool is the echo tool served when no tools are configured.
func DefaultTool() mcp.Tool {
	return mcp.NewTool("echo",
		mcp.WithDescription("Echo the message back"),
		mcp.WithString("message", mcp.Required(), mcp.Description("Text to echo")),
	)
}

// DefaultResource carries provider-specific fields that catalog stripping removes.
func DefaultResource() mcp.Resource {
	res := mcp.NewResource("file:///docs/readme.md", "readme",
		mcp.WithResourceDescription("Project readme"),
		mcp.WithMIMEType("text/markdown"),
	)
	res.Annotations = &mcp.Annotations{Audience: []mcp.Role{mcp.RoleUser}}
	return res
}

func (s *ComplianceServer) newMCPServer() *server.MCPServer {
	srv := server.NewMCPServer(s.config.Name, "1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)

	for _, tool := range s.config.Tools {
		name := tool.Name
		srv.AddTool(tool, func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, err := json.Marshal(req.GetArguments())
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("%s: %s", name, args)), nil
		})
	}
	for _, res := range s.config.Resources {
		res := res
		srv.AddResource(res, func(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return []mcp.ResourceContents{
				mcp.TextResourceContents{URI: res.URI, MIMEType: res.MIMEType, Text: "# " + res.Name},
			}, nil
		})
	}
	for _, prompt := range s.config.Prompts {
		srv.AddPrompt(prompt, func(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			return mcp.NewGetPromptResult(req.Params.Name, []mcp.PromptMessage{
				mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent("Summarize the input.")),
			}), nil
		})
	}
	return srv
}

// Close stops the server.
func (s *ComplianceServer) Close() {
	s.server.Close()
}

// BaseURL returns the origin of the server.
func (s *ComplianceServer) BaseURL() string {
	return s.server.URL
}

// URL returns the MCP endpoint.
func (s *ComplianceServer) URL() string {
	return s.server.URL + MCPPath
}

// AcceptToken adds a bearer token the server accepts.
func (s *ComplianceServer) AcceptToken(token string) {
	s.mu.Lock()
	s.tokens[token] = true
	s.mu.Unlock()
}

// RejectToken removes a previously accepted bearer token.
func (s *ComplianceServer) RejectToken(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// InjectError makes every request for method fail with the given JSON-RPC error.
func (s *ComplianceServer) InjectError(method string, code int, message string) {
	s.mu.Lock()
	s.errors[method] = RPCError{Code: code, Message: message}
	s.mu.Unlock()
}

// ClearErrors removes every injected error.
func (s *ComplianceServer) ClearErrors() {
	s.mu.Lock()
	s.errors = make(map[string]RPCError)
	s.mu.Unlock()
}

// RequestCount returns how many requests for method reached the server,
// including rejected ones.
func (s *ComplianceServer) RequestCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[method]
}

// TotalRequests returns the number of JSON-RPC requests received.
func (s *ComplianceServer) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.counts {
		total += n
	}
	return total
}

// UnauthorizedCount returns how many requests were rejected with 401.
func (s *ComplianceServer) UnauthorizedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unauthorized
}

// ResetCounts zeroes every counter.
func (s *ComplianceServer) ResetCounts() {
	s.mu.Lock()
	s.counts = make(map[string]int)
	s.unauthorized = 0
	s.mu.Unlock()
}

func (s *ComplianceServer) tokenAccepted(token string) bool {
	if s.tokens[token] {
		return true
	}
	return s.config.OAuth != nil && s.config.OAuth.ValidateToken(token)
}

// rpcEnvelope is the part of a JSON-RPC message the middleware inspects.
type rpcEnvelope struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
}

// middleware enforces auth, injects errors and counts requests in front of
// the MCP handler.
func (s *ComplianceServer) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg rpcEnvelope
		if r.Method == http.MethodPost && r.Body != nil {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "failed to read body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			_ = json.Unmarshal(body, &msg)
		}

		s.mu.Lock()
		if msg.Method != "" {
			s.counts[msg.Method]++
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		authorized := !s.protected || (token != "" && s.tokenAccepted(token))
		if !authorized {
			s.unauthorized++
		}
		injected, inject := s.errors[msg.Method]
		s.mu.Unlock()

		if !authorized {
			logging.Debug("MockMCP", "Rejecting %s request without a valid bearer token", msg.Method)
			s.sendAuthChallenge(w)
			return
		}

		switch {
		case inject:
			writeRPCError(w, msg.ID, injected.Code, injected.Message)
			return
		case s.config.DisablePing && msg.Method == string(mcp.MethodPing):
			writeRPCError(w, msg.ID, mcp.METHOD_NOT_FOUND, "Method not found")
			return
		case s.config.DisableResources && strings.HasPrefix(msg.Method, "resources/"):
			writeRPCError(w, msg.ID, mcp.METHOD_NOT_FOUND, "Method not found")
			return
		case s.config.DisablePrompts && strings.HasPrefix(msg.Method, "prompts/"):
			writeRPCError(w, msg.ID, mcp.METHOD_NOT_FOUND, "Method not found")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *ComplianceServer) sendAuthChallenge(w http.ResponseWriter) {
	challenge := fmt.Sprintf(`Bearer resource_metadata="%s/.well-known/oauth-protected-resource"`, s.server.URL)
	if s.config.OAuth != nil {
		challenge += fmt.Sprintf(`, realm="%s"`, s.config.OAuth.URL())
	}
	w.Header().Set("WWW-Authenticate", challenge)
	w.WriteHeader(http.StatusUnauthorized)
}

func (s *ComplianceServer) handleASMetadata(w http.ResponseWriter, r *http.Request) {
	if s.config.OAuth == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.config.OAuth.Metadata())
}

func (s *ComplianceServer) handleProtectedResource(w http.ResponseWriter, r *http.Request) {
	if s.config.OAuth == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, oauth.ProtectedResourceMetadata{
		Resource:             s.URL(),
		AuthorizationServers: []string{s.config.OAuth.URL()},
	})
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": mcp.JSONRPC_VERSION,
		"id":      id,
		"error": RPCError{
			Code:    code,
			Message: message,
		},
	})
}
