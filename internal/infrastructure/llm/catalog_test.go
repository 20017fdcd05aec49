package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/harpou/ai-gateway/internal/domain/entity"
	"github.com/harpou/ai-gateway/internal/infrastructure/config"
)

func modelsServer(ids ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[`))
		for i, id := range ids {
			if i > 0 {
				w.Write([]byte(","))
			}
			w.Write([]byte(`{"id":"` + id + `","object":"model","created":1,"owned_by":"test"}`))
		}
		w.Write([]byte(`]}`))
	}))
}

func TestCatalog_ReplaceIsAtomicSnapshot(t *testing.T) {
	cat := NewCatalog()
	cat.Replace(map[string]entity.Model{
		"a/m1": {ID: "a/m1"},
		"a/m2": {ID: "a/m2"},
	})

	snapshot := cat.List()
	cat.Replace(map[string]entity.Model{"b/x": {ID: "b/x"}})

	// The earlier read keeps observing the old snapshot.
	if len(snapshot) != 2 {
		t.Fatalf("snapshot len = %d", len(snapshot))
	}
	if cat.Len() != 1 {
		t.Fatalf("catalog len after replace = %d", cat.Len())
	}
}

func TestCatalog_ConcurrentReadersDuringReplace(t *testing.T) {
	cat := NewCatalog()
	cat.Replace(map[string]entity.Model{"a/m1": {ID: "a/m1", BackendName: "a"}})

	var stop atomic.Bool
	errs := make(chan string, 1)
	go func() {
		for !stop.Load() {
			// Every observed snapshot is internally consistent: either the
			// "a" map or the "b" map, never a mix.
			models := cat.List()
			if len(models) != 1 {
				select {
				case errs <- "saw a partial snapshot":
				default:
				}
				return
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		cat.Replace(map[string]entity.Model{"a/m1": {ID: "a/m1", BackendName: "a"}})
		cat.Replace(map[string]entity.Model{"b/m2": {ID: "b/m2", BackendName: "b"}})
	}
	stop.Store(true)

	select {
	case msg := <-errs:
		t.Fatal(msg)
	default:
	}
}

func TestRefresh_CompositeIDsAndSyntheticEntries(t *testing.T) {
	auto := modelsServer("llama3", "mistral")
	defer auto.Close()

	reg := testRegistry(t,
		config.BackendConfig{Name: "auto", Type: "openai-compatible", BaseURL: auto.URL, AutoLoad: true},
		config.BackendConfig{Name: "manual", Type: "openai-compatible", BaseURL: "http://manual",
			AutoLoad: false, DefaultModel: "gpt-x"},
		config.BackendConfig{Name: "skipped", Type: "openai-compatible", BaseURL: "http://skipped",
			AutoLoad: false},
	)
	connector := NewConnector(reg, "none", zap.NewNop())
	cat := NewCatalog()
	refresher := NewCatalogRefresher(connector, cat, zap.NewNop())

	refresher.Refresh(context.Background())

	if _, ok := cat.Get("auto/llama3"); !ok {
		t.Fatal("missing auto/llama3")
	}
	if _, ok := cat.Get("auto/mistral"); !ok {
		t.Fatal("missing auto/mistral")
	}
	m, ok := cat.Get("manual/gpt-x")
	if !ok {
		t.Fatal("missing synthetic manual/gpt-x entry")
	}
	if m.BackendName != "manual" {
		t.Fatalf("BackendName = %q", m.BackendName)
	}
	// auto_load=false without a default model contributes nothing.
	if cat.Len() != 3 {
		t.Fatalf("catalog len = %d, want 3", cat.Len())
	}
}

func TestRefresh_OneDeadBackendDoesNotPoisonOthers(t *testing.T) {
	live := modelsServer("llama3")
	defer live.Close()

	reg := testRegistry(t,
		config.BackendConfig{Name: "dead", Type: "openai-compatible", BaseURL: deadBackendURL(t), AutoLoad: true},
		config.BackendConfig{Name: "live", Type: "openai-compatible", BaseURL: live.URL, AutoLoad: true},
	)
	connector := NewConnector(reg, "none", zap.NewNop())
	cat := NewCatalog()
	refresher := NewCatalogRefresher(connector, cat, zap.NewNop())

	refresher.Refresh(context.Background())

	if _, ok := cat.Get("live/llama3"); !ok {
		t.Fatal("live backend models must survive a dead sibling")
	}
	if cat.Len() != 1 {
		t.Fatalf("catalog len = %d, want 1", cat.Len())
	}
}

// A restored backend shows up on the next tick.
func TestRefresh_RecoveredBackendRepopulates(t *testing.T) {
	var down atomic.Bool
	down.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"object":"list","data":[{"id":"m1","object":"model","created":1,"owned_by":"t"}]}`))
	}))
	defer srv.Close()

	reg := testRegistry(t,
		config.BackendConfig{Name: "flaky", Type: "openai-compatible", BaseURL: srv.URL, AutoLoad: true},
	)
	connector := NewConnector(reg, "none", zap.NewNop())
	cat := NewCatalog()
	refresher := NewCatalogRefresher(connector, cat, zap.NewNop())

	refresher.Refresh(context.Background())
	if cat.Len() != 0 {
		t.Fatalf("catalog len = %d while backend is down", cat.Len())
	}

	down.Store(false)
	refresher.Refresh(context.Background())
	if _, ok := cat.Get("flaky/m1"); !ok {
		t.Fatal("restored backend should repopulate the catalog")
	}
}
