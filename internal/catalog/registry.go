package catalog

import (
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// Entry maps a normalized tool name back to the server tool it exposes.
// ServerID and UserID identify the server record the tool was fetched
// from; they are empty for tools registered by display name only.
type Entry struct {
	Name         string   `json:"name"`
	ServerName   string   `json:"serverName"`
	OriginalName string   `json:"originalName"`
	ServerID     string   `json:"serverId,omitempty"`
	UserID       string   `json:"userId,omitempty"`
	Tool         mcp.Tool `json:"tool"`
}

type origin struct {
	owner string
	name  string
}

// OwnerKey identifies one server record as the owner of registry
// mappings. Two records sharing a display name never share an owner.
func OwnerKey(serverID, userID string) string {
	return userID + "/" + serverID
}

// Registry is the bidirectional map between normalized tool names and
// (owner, original name) pairs. It lives in memory only and is rebuilt
// from the catalog on every refresh.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Entry
	byOrigin map[origin]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]Entry),
		byOrigin: make(map[origin]string),
	}
}

// Register returns the normalized name for a server tool, allocating one
// if needed. The server name is both the name prefix and the owner.
// Registering the same pair again keeps its name and replaces the stored
// tool definition.
func (r *Registry) Register(serverName, originalName string, tool mcp.Tool) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.register(serverName, Entry{ServerName: serverName, OriginalName: originalName, Tool: tool})
}

// ReplaceServer drops every mapping owned by the record (serverID, userID)
// and registers tools under serverName in one step. The returned entries
// follow the order of tools.
func (r *Registry) ReplaceServer(serverID, userID, serverName string, tools []mcp.Tool) []Entry {
	owner := OwnerKey(serverID, userID)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeOwner(owner)
	entries := make([]Entry, 0, len(tools))
	for _, t := range tools {
		name := r.register(owner, Entry{
			ServerName:   serverName,
			OriginalName: t.Name,
			ServerID:     serverID,
			UserID:       userID,
			Tool:         t,
		})
		entries = append(entries, r.byName[name])
	}
	return entries
}

// register must be called with mu held.
func (r *Registry) register(owner string, e Entry) string {
	key := origin{owner: owner, name: e.OriginalName}
	if name, ok := r.byOrigin[key]; ok {
		existing := r.byName[name]
		existing.Tool = e.Tool
		r.byName[name] = existing
		return name
	}

	base := sanitize(e.ServerName + "_" + e.OriginalName)
	name := truncateMiddle(base, MaxNameLength)
	for n := 1; r.taken(name); n++ {
		name = withSuffix(base, n)
	}

	e.Name = name
	r.byName[name] = e
	r.byOrigin[key] = name
	return name
}

func (r *Registry) taken(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// GetOriginal resolves a normalized name.
func (r *Registry) GetOriginal(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	return e, ok
}

// GetNormalized returns the name allocated for a server tool.
func (r *Registry) GetNormalized(serverName, originalName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byOrigin[origin{owner: serverName, name: originalName}]
	return name, ok
}

// GetNormalizedForRecord returns the name allocated for a tool fetched
// from the record (serverID, userID).
func (r *Registry) GetNormalizedForRecord(serverID, userID, originalName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byOrigin[origin{owner: OwnerKey(serverID, userID), name: originalName}]
	return name, ok
}

// RemoveServer drops every mapping registered with Register under
// serverName and returns how many were removed.
func (r *Registry) RemoveServer(serverName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeOwner(serverName)
}

// RemoveRecord drops every mapping owned by the record (serverID, userID).
func (r *Registry) RemoveRecord(serverID, userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeOwner(OwnerKey(serverID, userID))
}

func (r *Registry) removeOwner(owner string) int {
	removed := 0
	for key, name := range r.byOrigin {
		if key.owner != owner {
			continue
		}
		delete(r.byOrigin, key)
		delete(r.byName, name)
		removed++
	}
	return removed
}

// Entries lists the mappings of serverName, or all mappings when
// serverName is empty, sorted by normalized name.
func (r *Registry) Entries(serverName string) []Entry {
	return r.filter(func(e Entry) bool {
		return serverName == "" || e.ServerName == serverName
	})
}

// EntriesForUser is Entries restricted to tools fetched for userID.
func (r *Registry) EntriesForUser(userID, serverName string) []Entry {
	return r.filter(func(e Entry) bool {
		return e.UserID == userID && (serverName == "" || e.ServerName == serverName)
	})
}

func (r *Registry) filter(keep func(Entry) bool) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.byName))
	for _, e := range r.byName {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
