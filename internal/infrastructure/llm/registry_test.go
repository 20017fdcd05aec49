package llm

import (
	"fmt"
	"testing"
	"time"

	"github.com/harpou/ai-gateway/internal/infrastructure/config"
)

// Lookups stay correct however many backends were appended after the one
// being fetched.
func TestRegistry_GetReturnsStableValues(t *testing.T) {
	var cfgs []config.BackendConfig
	for i := 0; i < 8; i++ {
		cfgs = append(cfgs, config.BackendConfig{
			Name:         fmt.Sprintf("backend-%d", i),
			Type:         "openai-compatible",
			BaseURL:      fmt.Sprintf("http://backend-%d", i),
			DefaultModel: fmt.Sprintf("model-%d", i),
		})
	}

	reg, err := NewRegistry(cfgs, "backend-0", 30*time.Second)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("backend-%d", i)
		b, ok := reg.Get(name)
		if !ok {
			t.Fatalf("missing %s", name)
		}
		if b.BaseURL != fmt.Sprintf("http://backend-%d", i) {
			t.Fatalf("%s BaseURL = %q", name, b.BaseURL)
		}
		if b.DefaultModel != fmt.Sprintf("model-%d", i) {
			t.Fatalf("%s DefaultModel = %q", name, b.DefaultModel)
		}
	}
}

func TestRegistry_DuplicateNameRejected(t *testing.T) {
	_, err := NewRegistry([]config.BackendConfig{
		{Name: "a", Type: "openai-compatible", BaseURL: "http://one"},
		{Name: "a", Type: "openai-compatible", BaseURL: "http://two"},
	}, "", 30*time.Second)
	if err == nil {
		t.Fatal("duplicate backend name accepted")
	}
}

func TestRegistry_PrimaryDefaultsToFirst(t *testing.T) {
	reg, err := NewRegistry([]config.BackendConfig{
		{Name: "first", Type: "openai-compatible", BaseURL: "http://one"},
		{Name: "second", Type: "openai-compatible", BaseURL: "http://two"},
	}, "", 30*time.Second)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if reg.Primary() != "first" {
		t.Fatalf("primary = %q", reg.Primary())
	}
}
