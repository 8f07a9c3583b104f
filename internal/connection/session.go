package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Session is one initialized connection to a capability server.
type Session struct {
	serverID string
	url      string
	manager  *Manager
	init     *mcp.InitializeResult

	mu     sync.Mutex
	client *client.Client
}

// ServerID returns the id the session was opened for.
func (s *Session) ServerID() string { return s.serverID }

// InitializeResult returns the server's answer to initialize.
func (s *Session) InitializeResult() *mcp.InitializeResult { return s.init }

func (s *Session) mcpClient() (*client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, fmt.Errorf("session for %s is closed", s.serverID)
	}
	return s.client, nil
}

// ListTools returns the server's tools.
func (s *Session) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	c, err := s.mcpClient()
	if err != nil {
		return nil, err
	}
	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, s.manager.classify(s.serverID, s.url, "tools/list", err)
	}
	return result.Tools, nil
}

// ListResources returns the server's resources. A server that does not
// implement resources yields an empty list.
func (s *Session) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	c, err := s.mcpClient()
	if err != nil {
		return nil, err
	}
	result, err := c.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		if errors.Is(err, mcp.ErrMethodNotFound) {
			return []mcp.Resource{}, nil
		}
		return nil, s.manager.classify(s.serverID, s.url, "resources/list", err)
	}
	return result.Resources, nil
}

// ListPrompts returns the server's prompts. A server that does not
// implement prompts yields an empty list.
func (s *Session) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	c, err := s.mcpClient()
	if err != nil {
		return nil, err
	}
	result, err := c.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		if errors.Is(err, mcp.ErrMethodNotFound) {
			return []mcp.Prompt{}, nil
		}
		return nil, s.manager.classify(s.serverID, s.url, "prompts/list", err)
	}
	return result.Prompts, nil
}

// CallTool invokes a tool by its original (server-side) name.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	c, err := s.mcpClient()
	if err != nil {
		return nil, err
	}
	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, s.manager.classify(s.serverID, s.url, "tools/call", err)
	}
	return result, nil
}

// Ping checks liveness. A server answering METHOD_NOT_FOUND does not
// implement ping; that is reported as supported=false with no error.
func (s *Session) Ping(ctx context.Context) (supported bool, err error) {
	c, err := s.mcpClient()
	if err != nil {
		return false, err
	}
	if err := c.Ping(ctx); err != nil {
		if errors.Is(err, mcp.ErrMethodNotFound) {
			return false, nil
		}
		return false, s.manager.classify(s.serverID, s.url, "ping", err)
	}
	return true, nil
}

// Close shuts the session down. Calling it twice is safe.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// isTransportFailure reports errors raised before any HTTP response arrived.
func isTransportFailure(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
