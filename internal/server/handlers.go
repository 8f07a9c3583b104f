package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"mcpgate/internal/auth"
	"mcpgate/internal/catalog"
	"mcpgate/internal/connection"
	"mcpgate/internal/recovery"
	"mcpgate/internal/store"
	"mcpgate/pkg/logging"
)

const maxRequestBody = 1 << 20

type errorBody struct {
	Error     string                   `json:"error"`
	RequestID string                   `json:"requestId,omitempty"`
	AuthURL   string                   `json:"authUrl,omitempty"`
	Recovery  *recovery.Recommendation `json:"recovery,omitempty"`
}

type serverRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type serverView struct {
	*store.ServerRecord
	Connection *connection.Status `json:"connection"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("HTTP", "Failed to encode response: %v", err)
	}
}

// writeError maps err onto a status code. fallback is used for errors that
// are neither a missing record, an authorization problem nor a transport
// failure.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, serverID string, fallback int, err error) {
	body := errorBody{Error: err.Error(), RequestID: requestIDFrom(r.Context())}
	status := fallback

	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, catalog.ErrNotAuthorized):
		status = http.StatusConflict
		body.AuthURL = s.auth.AuthorizeURL(serverID)
	case errors.Is(err, connection.ErrOAuthRequired):
		status = http.StatusUnauthorized
		body.AuthURL = s.auth.AuthorizeURL(serverID)
	case recovery.IsTransportError(err):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusUnauthorized || status >= http.StatusInternalServerError {
		rec := recovery.Recommend(err, recovery.Context{ServerID: serverID, Operation: r.Method + " " + r.URL.Path})
		body.Recovery = &rec
	}
	if status >= http.StatusInternalServerError {
		logging.Error("HTTP", err, "%s %s failed [%s]", r.Method, r.URL.Path, body.RequestID)
	}
	writeJSON(w, status, body)
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.store.Get(r.Context(), id, userIDFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, id, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, serverView{ServerRecord: rec, Connection: s.auth.LiveStatus(id)})
}

// handlePutServer registers a server for the caller. Registering again
// replaces the record, so authorization starts over.
func (s *Server) handlePutServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	userID := userIDFrom(r.Context())

	var req serverRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error(), RequestID: requestIDFrom(r.Context())})
		return
	}
	if err := validateServerURL(req.URL); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), RequestID: requestIDFrom(r.Context())})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		req.Name = id
	}

	rec := &store.ServerRecord{
		ID:         id,
		UserID:     userID,
		Name:       req.Name,
		URL:        req.URL,
		AuthStatus: store.AuthStatusUnknown,
	}
	if err := s.store.Put(r.Context(), rec); err != nil {
		s.writeError(w, r, id, http.StatusInternalServerError, err)
		return
	}
	s.invalidate(r, id)
	logging.Info("HTTP", "Registered server %s (%s) for user %s", id, req.URL, userID)
	writeJSON(w, http.StatusCreated, serverView{ServerRecord: rec, Connection: s.auth.LiveStatus(id)})
}

func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	userID := userIDFrom(r.Context())

	rec, err := s.store.Get(r.Context(), id, userID)
	if err != nil {
		s.writeError(w, r, id, http.StatusInternalServerError, err)
		return
	}
	if err := s.store.Delete(r.Context(), id, userID); err != nil {
		s.writeError(w, r, id, http.StatusInternalServerError, err)
		return
	}
	s.invalidate(r, id)
	s.catalog.Registry().RemoveRecord(rec.ID, rec.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) invalidate(r *http.Request, serverID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateToken(r.Context(), serverID); err != nil {
		logging.Warn("HTTP", "Failed to invalidate token cache for server %s: %v", serverID, err)
	}
	if err := s.cache.InvalidateServer(r.Context(), serverID); err != nil {
		logging.Warn("HTTP", "Failed to invalidate capability cache for server %s: %v", serverID, err)
	}
}

func validateServerURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.auth.EnsureAuthenticated(r.Context(), id, userIDFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, id, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	userID := userIDFrom(r.Context())

	refresh := false
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid refresh parameter", RequestID: requestIDFrom(r.Context())})
			return
		}
		refresh = v
	}

	var (
		info *catalog.ServerInfo
		err  error
	)
	if refresh {
		info, err = s.catalog.Refresh(r.Context(), id, userID)
	} else {
		info, err = s.catalog.GetServerInfo(r.Context(), id, userID)
	}
	if err != nil {
		s.writeError(w, r, id, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"serverId": id,
		"status":   s.auth.LiveStatus(id),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.auth.TransitionToRequired(r.Context(), id, userIDFrom(r.Context())); err != nil {
		s.writeError(w, r, id, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, auth.Result{Status: auth.StatusRequiresAuth, AuthURL: s.auth.AuthorizeURL(id)})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tools": s.catalog.Registry().EntriesForUser(userIDFrom(r.Context()), r.URL.Query().Get("server")),
	})
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	entry, ok := s.catalog.Registry().GetOriginal(name)
	if !ok || entry.UserID != userIDFrom(r.Context()) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown tool " + name, RequestID: requestIDFrom(r.Context())})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleAuthorize sends the browser to the server's authorization endpoint.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	serverID := r.URL.Query().Get("server_id")
	userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if serverID == "" || userID == "" {
		renderErrorPage(w, http.StatusBadRequest, "Missing server or user. Start the connection again from your client.")
		return
	}

	authURL, err := s.auth.BeginAuthorization(r.Context(), serverID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			renderErrorPage(w, http.StatusNotFound, fmt.Sprintf("Server %s is not registered.", serverID))
			return
		}
		logging.Error("HTTP", err, "Failed to start authorization for server %s", serverID)
		renderErrorPage(w, http.StatusBadGateway, fmt.Sprintf("Could not start authorization for server %s.", serverID))
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleCallback finishes the authorization-code flow.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		desc := q.Get("error_description")
		logging.Warn("HTTP", "Authorization denied: %s %s", errParam, desc)
		message := "Authorization was denied: " + errParam
		if desc != "" {
			message += " (" + desc + ")"
		}
		renderErrorPage(w, http.StatusBadRequest, message)
		return
	}

	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		renderErrorPage(w, http.StatusBadRequest, "Invalid callback: missing state or code.")
		return
	}

	res, err := s.auth.CompleteAuthorization(r.Context(), state, code)
	switch {
	case errors.Is(err, auth.ErrInvalidState):
		renderErrorPage(w, http.StatusBadRequest, "Authorization session expired or was already used. Please try again.")
	case errors.Is(err, store.ErrNotFound):
		renderErrorPage(w, http.StatusNotFound, "The server is no longer registered.")
	case err != nil:
		logging.Error("HTTP", err, "Failed to complete authorization")
		renderErrorPage(w, http.StatusInternalServerError, "Authorization could not be completed.")
	case res.Status != auth.StatusAuthenticated:
		renderErrorPage(w, http.StatusBadGateway, res.Error)
	default:
		renderSuccessPage(w)
	}
}
