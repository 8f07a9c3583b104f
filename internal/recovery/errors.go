package recovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"mcpgate/internal/connection"
	"mcpgate/pkg/oauth"
)

// CodeUnauthorized is the implementation-defined code for a request that
// needs (new) user authorization.
const CodeUnauthorized = -32001

// Reserved JSON-RPC ranges.
const (
	reservedMin       = -32768
	reservedMax       = -32000
	implementationMin = -32099
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// New creates an Error.
func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// FromDetails converts an mcp-go error object.
func FromDetails(d mcp.JSONRPCErrorDetails) *Error {
	return &Error{Code: d.Code, Message: d.Message, Data: d.Data}
}

var sentinelCodes = []struct {
	err  error
	code int
}{
	{mcp.ErrParseError, mcp.PARSE_ERROR},
	{mcp.ErrInvalidRequest, mcp.INVALID_REQUEST},
	{mcp.ErrMethodNotFound, mcp.METHOD_NOT_FOUND},
	{mcp.ErrInvalidParams, mcp.INVALID_PARAMS},
	{mcp.ErrInternalError, mcp.INTERNAL_ERROR},
	{mcp.ErrRequestInterrupted, mcp.REQUEST_INTERRUPTED},
	{mcp.ErrResourceNotFound, mcp.RESOURCE_NOT_FOUND},
}

var httpStatusPattern = regexp.MustCompile(`status (\d{3})`)

// FromError maps an error returned by the MCP client or this module to a
// JSON-RPC error. Transport failures, which have no JSON-RPC meaning,
// return nil, as does a nil err.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if errors.Is(err, connection.ErrOAuthRequired) {
		return New(CodeUnauthorized, err.Error())
	}
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return New(s.code, err.Error())
		}
	}
	if IsTransportError(err) {
		return nil
	}
	if oauth.Is401Error(err) {
		return New(CodeUnauthorized, err.Error())
	}
	if m := httpStatusPattern.FindStringSubmatch(err.Error()); m != nil {
		status, _ := strconv.Atoi(m[1])
		switch {
		case status == 403:
			return New(CodeUnauthorized, err.Error())
		case status >= 400 && status < 500:
			return New(mcp.INVALID_REQUEST, err.Error())
		}
	}
	return New(mcp.INTERNAL_ERROR, err.Error())
}

// IsTransportError reports failures that happened before any response was
// received.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	if oauth.IsTransportError(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func codeOf(err error) (int, bool) {
	e := FromError(err)
	if e == nil {
		return 0, false
	}
	return e.Code, true
}

// Is401Error reports whether err means the caller must (re)authorize.
func Is401Error(err error) bool {
	code, ok := codeOf(err)
	return ok && code == CodeUnauthorized
}

// IsMCPProtocolError reports whether err carries a code from the reserved
// JSON-RPC range.
func IsMCPProtocolError(err error) bool {
	code, ok := codeOf(err)
	if !ok {
		return false
	}
	return (code >= reservedMin && code <= reservedMax) || code == mcp.REQUEST_INTERRUPTED
}

// IsClientError reports errors the caller cannot fix by retrying the same
// request.
func IsClientError(err error) bool {
	code, ok := codeOf(err)
	if !ok {
		return false
	}
	switch code {
	case mcp.PARSE_ERROR, mcp.INVALID_REQUEST, mcp.METHOD_NOT_FOUND, mcp.INVALID_PARAMS, mcp.RESOURCE_NOT_FOUND:
		return true
	default:
		return false
	}
}

// IsServerError reports errors on the server side that a retry may fix.
func IsServerError(err error) bool {
	code, ok := codeOf(err)
	if !ok {
		return false
	}
	switch code {
	case mcp.INTERNAL_ERROR, mcp.REQUEST_INTERRUPTED:
		return true
	case CodeUnauthorized, mcp.RESOURCE_NOT_FOUND:
		return false
	}
	return code >= implementationMin && code <= reservedMax
}
