package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vulnverified/nophish/internal/engine"
	"github.com/vulnverified/nophish/internal/logger"
	"github.com/vulnverified/nophish/internal/output"
)

type analyzeRequest struct {
	URL string `json:"url"`
}

type failureResponse struct {
	Error  string         `json:"error"`
	Report *engine.Report `json:"report,omitempty"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": output.Version})
}

func (s *Server) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, failureResponse{Error: "invalid request body"})
		return
	}
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, failureResponse{Error: output.MsgInvalidURL})
		return
	}

	report, err := s.analyzer.Analyze(c.Request.Context(), rawURL)
	s.metrics.Observe(report)

	switch {
	case err == nil:
		c.PureJSON(http.StatusOK, report)
	case errors.Is(err, engine.ErrAnalysisFailed):
		s.log.Warn("Analysis failed",
			logger.String("url", rawURL),
			logger.String(requestIDKey, c.GetString(requestIDKey)),
			logger.Error(err),
		)
		c.PureJSON(http.StatusUnprocessableEntity, failureResponse{Error: "analysis failed", Report: report})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, failureResponse{Error: output.MsgAnalysisFailed})
	}
}
