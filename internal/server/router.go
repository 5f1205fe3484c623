package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/menthalabs/facet/internal/catalog"
	"github.com/menthalabs/facet/internal/ordering"
	"github.com/menthalabs/facet/internal/record"
	"github.com/menthalabs/facet/internal/store"
	"go.uber.org/zap"
)

const requestedWithHeader = "X-Requested-With"

var errMissingCatalog = errors.New("catalog dependency required")

// Dependencies lists what the HTTP layer needs to run.
type Dependencies struct {
	Catalog *catalog.Catalog
	Logger  *zap.Logger
}

// NewHTTPHandler builds the catalog API router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Catalog == nil {
		return nil, errMissingCatalog
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", requestedWithHeader},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{catalog: deps.Catalog, logger: logger}

	router.GET("/catalog/categories", handler.handleListCategories)
	router.POST("/catalog/categories", handler.handleCreateCategory)
	router.POST("/catalog/categories/reorder", handler.handleReorderCategories)
	router.POST("/catalog/items", handler.handleCreateItem)
	router.GET("/catalog/items/:id", handler.handleGetItem)
	router.PATCH("/catalog/items/:id", handler.handleUpdateItem)
	router.DELETE("/catalog/items/:id", handler.handleDeleteItem)
	router.DELETE("/catalog/items", handler.handleDeleteItemsByCategory)

	return router, nil
}

type httpHandler struct {
	catalog *catalog.Catalog
	logger  *zap.Logger
}

type categoryPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Position int64  `json:"position"`
}

type itemPayload struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id"`
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	Slug       string `json:"slug"`
}

func asString(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}

func asInt64(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func categoryFromRecord(rec *record.Record) categoryPayload {
	return categoryPayload{
		ID:       asString(rec.Key()),
		Name:     asString(rec.Get("name")),
		Slug:     asString(rec.Get("slug")),
		Position: asInt64(rec.Get("position")),
	}
}

func itemFromRecord(rec *record.Record) itemPayload {
	return itemPayload{
		ID:         asString(rec.Key()),
		CategoryID: asString(rec.Get("category_id")),
		Title:      asString(rec.Get("title")),
		Summary:    asString(rec.Get("summary")),
		Slug:       asString(rec.Get("slug")),
	}
}

func (h *httpHandler) handleListCategories(c *gin.Context) {
	records, err := h.catalog.ListCategoriesOrdered(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list categories", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	payload := make([]categoryPayload, 0, len(records))
	for _, rec := range records {
		payload = append(payload, categoryFromRecord(rec))
	}
	c.JSON(http.StatusOK, gin.H{"categories": payload})
}

type createCategoryRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (h *httpHandler) handleCreateCategory(c *gin.Context) {
	var request createCategoryRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	rec, err := h.catalog.CreateCategory(c.Request.Context(), request.Name, request.Slug)
	if err != nil {
		h.respondWriteError(c, err, "failed to create category")
		return
	}
	c.JSON(http.StatusCreated, categoryFromRecord(rec))
}

type reorderRequest struct {
	Order []string `json:"order"`
}

// handleReorderCategories accepts the drag-and-drop submission. Requests
// missing the XMLHttpRequest marker or the order list get a 404, matching the
// behaviour admin frontends expect from this endpoint. Valid submissions that
// fail in storage surface the failure instead of pretending success.
func (h *httpHandler) handleReorderCategories(c *gin.Context) {
	if !strings.EqualFold(c.GetHeader(requestedWithHeader), "XMLHttpRequest") {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	var request reorderRequest
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Order) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	err := h.catalog.ReorderCategories(c.Request.Context(), request.Order)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, true)
	case errors.Is(err, ordering.ErrDuplicateID), errors.Is(err, ordering.ErrUnknownID), errors.Is(err, ordering.ErrEmptyList):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_order"})
	default:
		h.logger.Error("failed to reorder categories", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reorder_failed"})
	}
}

type itemRequest struct {
	CategoryID *string `json:"category_id"`
	Title      *string `json:"title"`
	Summary    *string `json:"summary"`
	Slug       *string `json:"slug"`
}

func (r itemRequest) params() catalog.ItemParams {
	return catalog.ItemParams{
		CategoryID: r.CategoryID,
		Title:      r.Title,
		Summary:    r.Summary,
		Slug:       r.Slug,
	}
}

func (h *httpHandler) handleCreateItem(c *gin.Context) {
	var request itemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	rec, err := h.catalog.CreateItem(c.Request.Context(), request.params())
	if err != nil {
		h.respondWriteError(c, err, "failed to create item")
		return
	}
	c.JSON(http.StatusCreated, itemFromRecord(rec))
}

func (h *httpHandler) handleGetItem(c *gin.Context) {
	rec, err := h.catalog.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondWriteError(c, err, "failed to load item")
		return
	}
	c.JSON(http.StatusOK, itemFromRecord(rec))
}

func (h *httpHandler) handleUpdateItem(c *gin.Context) {
	var request itemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	rec, err := h.catalog.UpdateItem(c.Request.Context(), c.Param("id"), request.params())
	if err != nil {
		h.respondWriteError(c, err, "failed to update item")
		return
	}
	c.JSON(http.StatusOK, itemFromRecord(rec))
}

func (h *httpHandler) handleDeleteItem(c *gin.Context) {
	if err := h.catalog.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		h.respondWriteError(c, err, "failed to delete item")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDeleteItemsByCategory(c *gin.Context) {
	categoryID := strings.TrimSpace(c.Query("category"))
	if categoryID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.catalog.DeleteItemsByCategory(c.Request.Context(), categoryID); err != nil {
		h.respondWriteError(c, err, "failed to delete items")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) respondWriteError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, catalog.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case store.IsConstraintViolation(err):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict"})
	default:
		h.logger.Error(message, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
