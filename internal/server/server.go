// Package server exposes the facade over HTTP+JSON.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bankflowhq/workflow-engine/internal/bankerr"
	"github.com/bankflowhq/workflow-engine/internal/facade"
)

// Server holds the router and its dependencies.
type Server struct {
	facade *facade.Facade
	logger *slog.Logger
	router *gin.Engine
}

// New builds the router with every route registered.
func New(f *facade.Facade, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{facade: f, logger: logger, router: gin.New()}
	s.router.Use(gin.Recovery(), s.requestLog())
	s.routes()
	return s
}

// Handler returns the underlying http.Handler, for tests and for embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until the listener fails.
func (s *Server) Run(addr string) error { return s.router.Run(addr) }

func (s *Server) routes() {
	s.router.POST("/chat", s.handleChat)
	s.router.POST("/workflow/:session_id/approve", s.handleApprove)
	s.router.GET("/workflow/:session_id/status", s.handleStatus)
	s.router.GET("/workflow/:session_id/checkpoints", s.handleCheckpoints)
	s.router.GET("/approvals/pending", s.handlePendingApprovals)
	s.router.GET("/sessions", s.handleSessions)
	s.router.GET("/health", s.handleHealth)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if s.logger != nil {
			s.logger.Info("request",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"status", c.Writer.Status(),
				"duration", time.Since(start),
			)
		}
	}
}

// httpStatus maps the error kind taxonomy to response codes.
func httpStatus(err error) int {
	kind, ok := bankerr.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case bankerr.KindValidation:
		return http.StatusBadRequest
	case bankerr.KindNotFound:
		return http.StatusNotFound
	case bankerr.KindConflict:
		return http.StatusConflict
	case bankerr.KindDownstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": err.Error()})
}

func (s *Server) handleChat(c *gin.Context) {
	var req facade.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	res, err := s.facade.Chat(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}

	if res.Status == "pending_approval" {
		c.JSON(http.StatusOK, gin.H{
			"reply":      res.Reply,
			"session_id": res.SessionID,
			"status":     "PENDING_APPROVAL",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reply":             res.Reply,
		"session_id":        res.SessionID,
		"status":            res.Status,
		"execution_history": res.ExecutionHistory,
	})
}

type approveBody struct {
	ApproverID string `json:"approver_id" binding:"required"`
	Approved   *bool  `json:"approved" binding:"required"`
	Reason     string `json:"reason"`
}

func (s *Server) handleApprove(c *gin.Context) {
	var body approveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	res, err := s.facade.Decide(c.Request.Context(), facade.DecideRequest{
		SessionID:  c.Param("session_id"),
		ApproverID: body.ApproverID,
		Approved:   *body.Approved,
		Reason:     body.Reason,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	if res.Status == "rejected" {
		c.JSON(http.StatusOK, gin.H{
			"status":      "rejected",
			"session_id":  res.SessionID,
			"reason":      res.Reason,
			"rejected_by": res.RejectedBy,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            "approved",
		"session_id":        res.SessionID,
		"result":            res.Reply,
		"execution_history": res.ExecutionHistory,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	res, err := s.facade.Status(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleCheckpoints(c *gin.Context) {
	res, err := s.facade.Checkpoints(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": c.Param("session_id"), "checkpoints": res})
}

func (s *Server) handlePendingApprovals(c *gin.Context) {
	res, err := s.facade.PendingApprovals(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": res})
}

func (s *Server) handleSessions(c *gin.Context) {
	res, err := s.facade.Sessions(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": res})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
