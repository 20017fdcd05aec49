package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/harpou/ai-gateway/internal/infrastructure/config"
)

// Backend is the immutable descriptor of one upstream LLM endpoint, with the
// base URL already normalized for the OpenAI-compatible wire surface.
type Backend struct {
	Name         string
	Type         string
	BaseURL      string
	APIKey       string
	DefaultModel string
	AutoLoad     bool
	Timeout      time.Duration
}

// OllamaCompatible reports whether the backend speaks the Ollama flavor of
// the OpenAI API (served under /v1).
func (b Backend) OllamaCompatible() bool {
	return strings.Contains(b.Type, "ollama")
}

// Registry is the boot-time list of configured backends. Read-only after
// construction; lookup by name and registry-order iteration for failover.
type Registry struct {
	backends []Backend
	byName   map[string]Backend
	primary  string
}

// NewRegistry builds the registry from config, normalizing URLs and
// timeouts. defaultTimeout applies to backends without their own.
func NewRegistry(cfgs []config.BackendConfig, primaryName string, defaultTimeout time.Duration) (*Registry, error) {
	r := &Registry{
		byName:  make(map[string]Backend, len(cfgs)),
		primary: primaryName,
	}

	for _, c := range cfgs {
		if c.Name == "" {
			return nil, fmt.Errorf("backend with empty name in configuration")
		}
		if _, dup := r.byName[c.Name]; dup {
			return nil, fmt.Errorf("duplicate backend name %q", c.Name)
		}

		b := Backend{
			Name:         c.Name,
			Type:         c.Type,
			BaseURL:      normalizeBaseURL(c.BaseURL, c.Type),
			APIKey:       c.APIKey,
			DefaultModel: c.DefaultModel,
			AutoLoad:     c.AutoLoad,
			Timeout:      defaultTimeout,
		}
		if c.TimeoutSeconds > 0 {
			b.Timeout = time.Duration(c.TimeoutSeconds) * time.Second
		}
		// The OpenAI client contract requires a bearer token even when the
		// backend ignores it.
		if b.APIKey == "" {
			b.APIKey = "NA"
		}

		r.backends = append(r.backends, b)
		r.byName[b.Name] = b
	}

	if r.primary == "" && len(r.backends) > 0 {
		r.primary = r.backends[0].Name
	}

	return r, nil
}

// normalizeBaseURL trims trailing slashes and appends /v1 for Ollama-style
// backends that expose the OpenAI-compatible API under that path.
func normalizeBaseURL(baseURL, backendType string) string {
	u := strings.TrimRight(baseURL, "/")
	if strings.Contains(backendType, "ollama") && !strings.HasSuffix(u, "/v1") {
		u += "/v1"
	}
	return u
}

// Get returns the backend with the given name.
func (r *Registry) Get(name string) (Backend, bool) {
	b, ok := r.byName[name]
	return b, ok
}

// Primary returns the primary backend name (empty if no backends exist).
func (r *Registry) Primary() string {
	return r.primary
}

// InOrder returns all backends in registry order.
func (r *Registry) InOrder() []Backend {
	out := make([]Backend, len(r.backends))
	copy(out, r.backends)
	return out
}

// NextUntried returns the first backend in registry order whose name is not
// in tried, or "" when the registry is exhausted.
func (r *Registry) NextUntried(tried map[string]bool) string {
	for _, b := range r.backends {
		if !tried[b.Name] {
			return b.Name
		}
	}
	return ""
}

// Len returns the number of configured backends.
func (r *Registry) Len() int {
	return len(r.backends)
}
