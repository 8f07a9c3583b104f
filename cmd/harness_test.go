package cmd

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpgate/internal/testing/mock"
)

func TestStartHarness_Protected(t *testing.T) {
	h, err := startHarness(&harnessOptions{metadata: string(mock.MetadataColocated)})
	require.NoError(t, err)
	defer h.Close()

	require.NotNil(t, h.oauth)
	assert.True(t, h.oauth.ValidateToken(h.token.AccessToken))

	resp, err := http.Post(h.mcp.URL(), "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var buf bytes.Buffer
	h.Print(&buf)
	assert.Contains(t, buf.String(), h.mcp.URL())
	assert.Contains(t, buf.String(), h.oauth.URL())
	assert.Contains(t, buf.String(), h.id)
}

func TestStartHarness_Open(t *testing.T) {
	h, err := startHarness(&harnessOptions{open: true, metadata: string(mock.MetadataColocated)})
	require.NoError(t, err)
	defer h.Close()

	assert.Nil(t, h.oauth)
	var buf bytes.Buffer
	h.Print(&buf)
	assert.Contains(t, buf.String(), "disabled")
}

func TestStartHarness_UnknownMetadataLocation(t *testing.T) {
	_, err := startHarness(&harnessOptions{metadata: "somewhere"})
	assert.ErrorContains(t, err, "unknown metadata location")
}
