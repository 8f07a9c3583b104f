package recovery

import (
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"

	"mcpgate/pkg/oauth"
)

func TestRecommend(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		ctx           Context
		wantAction    Action
		wantAutomated bool
		wantDelay     time.Duration
	}{
		{
			name:       "unauthorized needs the user",
			err:        New(CodeUnauthorized, "token rejected"),
			wantAction: ActionReauth,
		},
		{
			name:       "401 from transport text",
			err:        errors.New("transport error: request failed with status 401: "),
			wantAction: ActionReauth,
		},
		{
			name:       "method not found is fatal",
			err:        rpcError(mcp.METHOD_NOT_FOUND, "no such method"),
			wantAction: ActionFatal,
		},
		{
			name:          "internal error is retried",
			err:           rpcError(mcp.INTERNAL_ERROR, "boom"),
			ctx:           Context{Attempt: 1, MaxAttempts: 3},
			wantAction:    ActionRetry,
			wantAutomated: true,
			wantDelay:     500 * time.Millisecond,
		},
		{
			name:          "backoff grows with attempts",
			err:           New(-32050, "overloaded"),
			ctx:           Context{Attempt: 3, MaxAttempts: 5},
			wantAction:    ActionRetry,
			wantAutomated: true,
			wantDelay:     2 * time.Second,
		},
		{
			name:       "exhausted retries are fatal",
			err:        rpcError(mcp.INTERNAL_ERROR, "boom"),
			ctx:        Context{Attempt: 3, MaxAttempts: 3},
			wantAction: ActionFatal,
		},
		{
			name:       "invalid params is fatal",
			err:        rpcError(mcp.INVALID_PARAMS, "bad args"),
			wantAction: ActionFatal,
		},
		{
			name:          "unreachable server is retried",
			err:           &oauth.TransportError{Op: "POST", Err: errors.New("connection refused")},
			ctx:           Context{Attempt: 2},
			wantAction:    ActionRetry,
			wantAutomated: true,
			wantDelay:     time.Second,
		},
		{
			name:       "unknown application code",
			err:        New(7, "app specific"),
			wantAction: ActionFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Recommend(tt.err, tt.ctx)
			assert.Equal(t, tt.wantAction, got.Action)
			assert.Equal(t, tt.wantAutomated, got.Automated)
			assert.Equal(t, tt.wantDelay, got.Delay)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestRecommend_ExhaustedReason(t *testing.T) {
	got := Recommend(New(mcp.INTERNAL_ERROR, "boom"), Context{Attempt: 4, MaxAttempts: 2})
	assert.Contains(t, got.Reason, "gave up after 4 attempts")
	assert.False(t, got.Automated)
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{4, 4 * time.Second},
		{7, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.attempt), "attempt %d", tt.attempt)
	}

	p := Policy{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second}
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(4))
}
