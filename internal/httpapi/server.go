// Package httpapi exposes the search service over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vecsearch/internal/domain"
	"vecsearch/internal/service"
)

// Service is the subset of the search service the HTTP layer drives.
type Service interface {
	Insert(ctx context.Context, req service.InsertRequest) error
	InsertBatch(ctx context.Context, reqs []service.InsertRequest) (int, error)
	Retrieve(ctx context.Context, req service.RetrieveRequest) ([]domain.Hit, error)
	ClearAll(ctx context.Context) error
	Provision(ctx context.Context) error
	Health() service.Health
	Ready() bool
}

// BatchRequest is the body of POST /insert/batch.
type BatchRequest struct {
	Records []service.InsertRequest `json:"records"`
}

type handler struct {
	svc    Service
	logger *slog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(svc Service, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{svc: svc, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), allowAllOrigins())

	router.GET("/", h.health)
	router.GET("/healthz", h.health)
	router.GET("/readyz", h.ready)
	router.POST("/insert", h.insert)
	router.POST("/insert/batch", h.insertBatch)
	router.POST("/retrieve", h.retrieve)
	router.POST("/clear-all", h.clearAll)
	router.POST("/provision", h.provision)
	return router
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health())
}

func (h *handler) ready(c *gin.Context) {
	if !h.svc.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (h *handler) insert(c *gin.Context) {
	var req service.InsertRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	if err := h.svc.Insert(c.Request.Context(), req); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Inserted record " + req.ID + " into namespace " + req.Namespace,
	})
}

func (h *handler) insertBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	n, err := h.svc.InsertBatch(c.Request.Context(), req.Records)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "count": n})
}

func (h *handler) retrieve(c *gin.Context) {
	var req service.RetrieveRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	hits, err := h.svc.Retrieve(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, hits)
}

func (h *handler) clearAll(c *gin.Context) {
	if err := h.svc.ClearAll(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Index deleted"})
}

func (h *handler) provision(c *gin.Context) {
	if err := h.svc.Provision(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *handler) fail(c *gin.Context, err error) {
	code := StatusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "status", code, "error", err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

// StatusFor maps the domain error taxonomy onto HTTP status codes.
// Provisioning and store failures win over a wrapped ErrIndexNotFound.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrProvisioning), errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrIndexNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func allowAllOrigins() gin.HandlerFunc {
	return func(c *gin.Context) {
		hdr := c.Writer.Header()
		hdr.Set("Access-Control-Allow-Origin", "*")
		hdr.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		hdr.Set("Access-Control-Allow-Headers", "*")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
