// Package api exposes the printing core over HTTP and WebSocket for
// local UI collaborators.
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/marciojunior91/food-safe-sync-sub001/internal/diag"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/printer"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/queue"
	"github.com/marciojunior91/food-safe-sync-sub001/pkg/labelformat"
)

// Server is the API server
type Server struct {
	router   *gin.Engine
	manager  *printer.Manager
	queue    *queue.Manager
	log      *diag.Log
	upgrader websocket.Upgrader
}

// NewServer creates a new API server and wires queue progress updates
// into the WebSocket broadcast.
func NewServer(manager *printer.Manager, q *queue.Manager, log *diag.Log) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()
	router.Use(corsMiddleware())

	server := &Server{
		router:  router,
		manager: manager,
		queue:   q,
		log:     log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local agent, UI runs on another port
			},
		},
	}

	q.OnProgress = server.BroadcastProgress

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	// Printer
	s.router.GET("/printer/status", s.handleStatus)
	s.router.GET("/printer/settings", s.handleGetSettings)
	s.router.POST("/printer/settings", s.handleUpdateSettings)
	s.router.POST("/printer/connect", s.handleConnect)
	s.router.POST("/printer/disconnect", s.handleDisconnect)
	s.router.POST("/printer/test", s.handlePrintTest)
	s.router.POST("/print", s.handlePrint)

	// Queue
	s.router.GET("/queue", s.handleGetQueue)
	s.router.POST("/queue", s.handleAddToQueue)
	s.router.DELETE("/queue", s.handleClearQueue)
	s.router.DELETE("/queue/:id", s.handleRemoveFromQueue)
	s.router.POST("/queue/:id/quantity", s.handleUpdateQuantity)
	s.router.POST("/queue/print", s.handlePrintAll)
	s.router.POST("/queue/retry", s.handleRetryFailed)

	// Diagnostics
	s.router.GET("/diagnostics", s.handleGetDiagnostics)
	s.router.GET("/diagnostics/summary", s.handleDiagnosticsSummary)
	s.router.GET("/diagnostics/export", s.handleDiagnosticsExport)
	s.router.DELETE("/diagnostics", s.handleClearDiagnostics)

	// WebSocket
	s.router.GET("/ws", s.handleWebSocket)

	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(200, s.manager.Status())
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(200, s.manager.Active().Settings())
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var req printer.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if err := s.manager.UpdateSettings(req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	c.JSON(200, gin.H{"success": true, "settings": s.manager.Active().Settings()})
}

func (s *Server) handleConnect(c *gin.Context) {
	if err := s.manager.Active().Connect(c.Request.Context()); err != nil {
		c.JSON(502, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": true, "status": s.manager.Status()})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	if err := s.manager.Active().Disconnect(); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": true})
}

func (s *Server) handlePrintTest(c *gin.Context) {
	if err := s.manager.PrintTest(c.Request.Context()); err != nil {
		c.JSON(502, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": true})
}

// handlePrint prints one label immediately, bypassing the queue
func (s *Server) handlePrint(c *gin.Context) {
	var req struct {
		Label  labelformat.LabelData `json:"labelData" binding:"required"`
		Copies int                   `json:"copies"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if req.Copies == 0 {
		req.Copies = 1
	}

	if err := s.manager.Active().PrintCopies(c.Request.Context(), &req.Label, req.Copies); err != nil {
		var verr *labelformat.ValidationError
		if errors.As(err, &verr) {
			c.JSON(400, gin.H{"error": err.Error(), "field": verr.Field})
			return
		}
		c.JSON(502, gin.H{"error": err.Error()})
		return
	}

	c.JSON(200, gin.H{"success": true, "labelId": req.Label.LabelID})
}

func (s *Server) handleGetQueue(c *gin.Context) {
	c.JSON(200, gin.H{
		"items":    s.queue.Items(),
		"progress": s.queue.Progress(),
	})
}

func (s *Server) handleAddToQueue(c *gin.Context) {
	var req struct {
		Label    labelformat.LabelData `json:"labelData" binding:"required"`
		Quantity int                   `json:"quantity"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	item, err := s.queue.Add(c.Request.Context(), &req.Label, req.Quantity)
	if err != nil {
		c.JSON(queueStatusCode(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(200, gin.H{"success": true, "item": item})
}

func (s *Server) handleRemoveFromQueue(c *gin.Context) {
	if err := s.queue.Remove(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(queueStatusCode(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": true})
}

func (s *Server) handleUpdateQuantity(c *gin.Context) {
	var req struct {
		Quantity int `json:"quantity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "quantity is required"})
		return
	}

	if err := s.queue.UpdateQuantity(c.Request.Context(), c.Param("id"), req.Quantity); err != nil {
		c.JSON(queueStatusCode(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": true})
}

func (s *Server) handleClearQueue(c *gin.Context) {
	if err := s.queue.Clear(c.Request.Context()); err != nil {
		c.JSON(queueStatusCode(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": true})
}

func (s *Server) handlePrintAll(c *gin.Context) {
	result, err := s.queue.PrintAll(c.Request.Context(), s.manager.Active())
	if err != nil {
		c.JSON(queueStatusCode(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": result.Success(), "result": result})
}

func (s *Server) handleRetryFailed(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "ids is required"})
		return
	}

	result, err := s.queue.RetryFailed(c.Request.Context(), s.manager.Active(), req.IDs)
	if err != nil {
		c.JSON(queueStatusCode(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": result.Success(), "result": result})
}

func (s *Server) handleGetDiagnostics(c *gin.Context) {
	c.JSON(200, gin.H{"entries": s.log.Entries()})
}

func (s *Server) handleDiagnosticsSummary(c *gin.Context) {
	c.JSON(200, s.log.Summarize())
}

func (s *Server) handleDiagnosticsExport(c *gin.Context) {
	c.Header("Content-Disposition", "attachment; filename=diagnostics.txt")
	c.Data(200, "text/plain; charset=utf-8", []byte(s.log.Export()))
}

func (s *Server) handleClearDiagnostics(c *gin.Context) {
	s.log.Clear()
	c.JSON(200, gin.H{"success": true})
}

// queueStatusCode maps queue errors onto HTTP status codes
func queueStatusCode(err error) int {
	switch {
	case errors.Is(err, queue.ErrItemNotFound):
		return 404
	case errors.Is(err, queue.ErrPrintInProgress):
		return 409
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrQueueEmpty):
		return 400
	default:
		return 500
	}
}

// Run starts the API server
func (s *Server) Run(addr string) error {
	fmt.Printf("Label print agent listening on %s\n", addr)
	return s.router.Run(addr)
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
