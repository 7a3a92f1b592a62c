package backend

import (
	"fmt"
	"strings"
)

// Registry routes a data-source identifier to its client. Unknown or empty
// identifiers resolve to the default client; that fallback is deliberate,
// a mistyped source selector should degrade to the default backend rather
// than fail the request.
type Registry struct {
	fallback *Client
	clients  map[string]*Client
}

func NewRegistry(fallback *Client) *Registry {
	return &Registry{
		fallback: fallback,
		clients:  map[string]*Client{},
	}
}

func (r *Registry) Register(name string, client *Client) {
	r.clients[name] = client
}

// Lookup never returns nil as long as the registry was built with a
// non-nil fallback.
func (r *Registry) Lookup(name string) *Client {
	if client, ok := r.clients[strings.TrimSpace(name)]; ok {
		return client
	}
	return r.fallback
}

func (r *Registry) Default() *Client {
	return r.fallback
}

// ParseSources parses the "name=url,name=url" data-source listing from
// configuration.
func ParseSources(spec string) (map[string]string, error) {
	sources := map[string]string{}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return sources, nil
	}

	entries := strings.Split(spec, ",")
	for _, entry := range entries {
		parts := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid data source entry %q: expected name=url", entry)
		}
		name := strings.TrimSpace(parts[0])
		endpoint := strings.TrimSpace(parts[1])
		if name == "" || endpoint == "" {
			return nil, fmt.Errorf("invalid data source entry %q: empty name/url", entry)
		}
		if _, exists := sources[name]; exists {
			return nil, fmt.Errorf("duplicate data source %q", name)
		}
		sources[name] = endpoint
	}
	return sources, nil
}
