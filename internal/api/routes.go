package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/internal/retrieval"
	"github.com/satriahrh/suara/internal/websocket"
)

// KnowledgeBase is the retrieval surface exposed over HTTP.
type KnowledgeBase interface {
	Ingest(ctx context.Context, docs []entities.Document) error
	Query(ctx context.Context, question string) (*entities.Answer, error)
	Stats() (documents, chunks int)
}

// Dependencies are the services the routes are wired to.
type Dependencies struct {
	Hub       *websocket.Hub
	Auth      websocket.WidgetAuthenticator
	Knowledge KnowledgeBase
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies) {
	logger := deps.Logger

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "suara",
		})
	})

	if deps.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// Media-stream and widget legs
	if deps.Hub != nil {
		e.GET("/media-stream", deps.Hub.ServeTelephony)
		e.GET("/widget", func(c echo.Context) error {
			return deps.Hub.ServeWidget(c, deps.Auth)
		})
	}

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/knowledge/documents", func(c echo.Context) error {
		return ingestDocuments(c, deps.Knowledge, logger)
	})
	v1.POST("/knowledge/query", func(c echo.Context) error {
		return queryKnowledge(c, deps.Knowledge, logger)
	})
}

func ingestDocuments(c echo.Context, knowledge KnowledgeBase, logger *zap.Logger) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		logger.Warn("Failed to bind ingest request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	docs := make([]entities.Document, 0, len(req.Documents))
	for _, doc := range req.Documents {
		if strings.TrimSpace(doc.Text) != "" {
			docs = append(docs, doc)
		}
	}
	if len(docs) == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_documents",
			Message: "At least one document with text is required",
		})
	}

	if err := knowledge.Ingest(c.Request().Context(), docs); err != nil {
		logger.Error("Failed to ingest documents", zap.Int("documents", len(docs)), zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "ingestion_failed",
			Message: "Failed to ingest documents",
		})
	}

	documents, chunks := knowledge.Stats()
	logger.Info("Documents ingested",
		zap.Int("received", len(docs)),
		zap.Int("documents", documents),
		zap.Int("chunks", chunks))

	return c.JSON(http.StatusOK, IngestResponse{Documents: documents, Chunks: chunks})
}

func queryKnowledge(c echo.Context, knowledge KnowledgeBase, logger *zap.Logger) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		logger.Warn("Failed to bind query request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if strings.TrimSpace(req.Question) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_question",
			Message: "Question is required",
		})
	}

	answer, err := knowledge.Query(c.Request().Context(), req.Question)
	if errors.Is(err, retrieval.ErrNotInitialized) {
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "not_initialized",
			Message: "No documents have been ingested yet",
		})
	}
	if err != nil {
		logger.Error("Knowledge query failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "query_failed",
			Message: "Failed to answer the question",
		})
	}

	return c.JSON(http.StatusOK, answer)
}
