package handlers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harpou/ai-gateway/internal/infrastructure/llm"
)

// ModelsHandler serves GET /v1/models from the catalog cache.
type ModelsHandler struct {
	catalog   *llm.Catalog
	refresher *llm.CatalogRefresher
	bootOnce  sync.Once
	logger    *zap.Logger
}

// NewModelsHandler wires the handler.
func NewModelsHandler(catalog *llm.Catalog, refresher *llm.CatalogRefresher, logger *zap.Logger) *ModelsHandler {
	return &ModelsHandler{
		catalog:   catalog,
		refresher: refresher,
		logger:    logger.With(zap.String("component", "models-handler")),
	}
}

// List returns the aggregated model catalog. An empty cache triggers one
// synchronous refresh, covering the window before the first scheduled tick.
func (h *ModelsHandler) List(c *gin.Context) {
	if h.catalog.Len() == 0 {
		h.bootOnce.Do(func() {
			h.logger.Info("Catalog empty, forcing synchronous refresh")
			h.refresher.Refresh(c.Request.Context())
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   h.catalog.List(),
	})
}
