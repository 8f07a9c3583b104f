package catalog

import (
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"mcpgate/internal/cache"
	"mcpgate/pkg/logging"
)

// StripResources keeps only uri, name and description of each resource.
// Entries without a URI are dropped.
func StripResources(in []mcp.Resource) []cache.Resource {
	out := make([]cache.Resource, 0, len(in))
	for _, r := range in {
		if r.URI == "" {
			logging.Debug("Catalog", "Dropping resource %q without uri", r.Name)
			continue
		}
		out = append(out, cache.Resource{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
		})
	}
	return out
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseDate(s string) (time.Time, bool) {
	if len(s) < 10 || s[4] != '-' || s[7] != '-' {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeDates returns a copy of v in which every ISO-8601 date string,
// at any depth of maps and slices, is replaced by a time.Time. Strings
// that fail to parse are kept as they are.
func NormalizeDates(v any) any {
	switch x := v.(type) {
	case string:
		if t, ok := parseDate(x); ok {
			return t
		}
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = NormalizeDates(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = NormalizeDates(e)
		}
		return out
	default:
		return v
	}
}

func normalizeMeta(m *mcp.Meta) *mcp.Meta {
	if m == nil || len(m.AdditionalFields) == 0 {
		return m
	}
	fields, _ := NormalizeDates(m.AdditionalFields).(map[string]any)
	return &mcp.Meta{ProgressToken: m.ProgressToken, AdditionalFields: fields}
}

func normalizeTools(tools []mcp.Tool) []mcp.Tool {
	out := make([]mcp.Tool, len(tools))
	for i, t := range tools {
		t.Meta = normalizeMeta(t.Meta)
		out[i] = t
	}
	return out
}

func normalizePrompts(prompts []mcp.Prompt) []mcp.Prompt {
	out := make([]mcp.Prompt, len(prompts))
	for i, p := range prompts {
		p.Meta = normalizeMeta(p.Meta)
		out[i] = p
	}
	return out
}

func normalizeCapabilities(c mcp.ServerCapabilities) mcp.ServerCapabilities {
	if len(c.Experimental) > 0 {
		c.Experimental, _ = NormalizeDates(c.Experimental).(map[string]any)
	}
	return c
}
