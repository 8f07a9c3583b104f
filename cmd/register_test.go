package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpgate/internal/server"
)

func TestRegister(t *testing.T) {
	var (
		gotUser string
		gotBody map[string]string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/servers/docs", r.URL.Path)
		gotUser = r.Header.Get(server.UserIDHeader)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	cmd := newRegisterCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"docs", "https://docs.example.com/mcp", "--url", ts.URL, "--user", "alice", "--name", "Docs"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, map[string]string{"name": "Docs", "url": "https://docs.example.com/mcp"}, gotBody)
	assert.Contains(t, buf.String(), "Registered docs")
}

func TestRegister_Rejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"url must be an absolute http(s) URL, got \"x\""}`))
	}))
	defer ts.Close()

	cmd := newRegisterCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"docs", "x", "--url", ts.URL, "--user", "alice"})
	err := cmd.Execute()
	assert.ErrorContains(t, err, "absolute http(s) URL")
}
