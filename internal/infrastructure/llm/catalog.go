package llm

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harpou/ai-gateway/internal/domain/entity"
)

// Catalog is the process-wide model catalog cache. The whole map is
// replaced atomically on refresh, so readers always see a consistent
// snapshot and never block the writer.
type Catalog struct {
	v atomic.Value // map[string]entity.Model
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	c := &Catalog{}
	c.v.Store(map[string]entity.Model{})
	return c
}

// Replace swaps in a new catalog snapshot.
func (c *Catalog) Replace(models map[string]entity.Model) {
	c.v.Store(models)
}

// Get looks up one model by composite id.
func (c *Catalog) Get(id string) (entity.Model, bool) {
	m, ok := c.v.Load().(map[string]entity.Model)[id]
	return m, ok
}

// List returns the catalog sorted by model id.
func (c *Catalog) List() []entity.Model {
	snapshot := c.v.Load().(map[string]entity.Model)
	out := make([]entity.Model, 0, len(snapshot))
	for _, m := range snapshot {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of cached models.
func (c *Catalog) Len() int {
	return len(c.v.Load().(map[string]entity.Model))
}

// CatalogRefresher aggregates models from every configured backend into the
// catalog. Backends are queried in parallel; one backend's failure never
// prevents others from populating.
type CatalogRefresher struct {
	connector *Connector
	catalog   *Catalog
	logger    *zap.Logger
}

// NewCatalogRefresher wires the refresher to a connector and catalog.
func NewCatalogRefresher(connector *Connector, catalog *Catalog, logger *zap.Logger) *CatalogRefresher {
	return &CatalogRefresher{
		connector: connector,
		catalog:   catalog,
		logger:    logger.With(zap.String("component", "catalog-refresher")),
	}
}

// Refresh re-aggregates the catalog and swaps it in atomically.
func (r *CatalogRefresher) Refresh(ctx context.Context) {
	r.logger.Info("Refreshing model catalog")

	var mu sync.Mutex
	models := make(map[string]entity.Model)

	g, gctx := errgroup.WithContext(ctx)

	for _, backend := range r.connector.Registry().InOrder() {
		backend := backend

		if !backend.AutoLoad {
			if backend.DefaultModel == "" {
				r.logger.Warn("Backend has auto_load disabled and no default model, skipping",
					zap.String("backend", backend.Name),
				)
				continue
			}
			id := backend.Name + "/" + backend.DefaultModel
			mu.Lock()
			models[id] = entity.Model{
				ID:          id,
				Object:      "model",
				Created:     time.Now().Unix(),
				OwnedBy:     "gateway",
				BackendName: backend.Name,
			}
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			discovered, err := r.connector.ListBackendModels(gctx, backend.Name)
			if err != nil {
				// Isolated failure: log and keep the other backends.
				r.logger.Warn("Model discovery failed for backend",
					zap.String("backend", backend.Name),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			for _, m := range discovered {
				m.ID = backend.Name + "/" + m.ID
				models[m.ID] = m
			}
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	r.catalog.Replace(models)
	r.logger.Info("Model catalog updated", zap.Int("models", len(models)))
}
