// Copyright 2024 OpsPilot Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the resolution pipeline over HTTP.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/opspilot/internal/health"
	"github.com/your-org/opspilot/internal/orchestrator"
	"github.com/your-org/opspilot/internal/resilience"
	"github.com/your-org/opspilot/internal/trace"
)

// ResolveRequest is the inbound chat payload. Images carry base64 strings,
// with or without data URI prefixes.
type ResolveRequest struct {
	Message string   `json:"message" binding:"required"`
	Images  []string `json:"images"`
}

// Server wires HTTP routes to the orchestrator.
type Server struct {
	orchestrator *orchestrator.Orchestrator
	health       *health.Manager
	logger       *zap.Logger
}

// New creates the HTTP server. The logger may be nil.
func New(o *orchestrator.Orchestrator, h *health.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		orchestrator: o,
		health:       h,
		logger:       logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/resolve", s.handleResolve)
	router.GET("/resolve", s.handleGetTrace)
	router.GET("/health", s.handleHealth)

	return router
}

// handleResolve runs a message through the tier chain. The pipeline always
// yields a response body; a 500 here means a programming error, not an
// upstream failure.
func (s *Server) handleResolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, resilience.NewErrorResponse("message is required", err))
		return
	}

	body, err := s.orchestrator.Resolve(c.Request.Context(), orchestrator.Request{
		Message: req.Message,
		Images:  req.Images,
	})
	if err != nil {
		s.logger.Error("resolution pipeline failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, resilience.NewErrorResponse("Failed to process request", nil))
		return
	}

	c.Data(http.StatusOK, "application/json", body)
}

// handleGetTrace returns a stored trace by trace_id query parameter.
func (s *Server) handleGetTrace(c *gin.Context) {
	traceID := c.Query("trace_id")
	if traceID == "" {
		c.JSON(http.StatusBadRequest, resilience.NewErrorResponse("trace_id is required", nil))
		return
	}

	t, err := s.orchestrator.LookupTrace(c.Request.Context(), traceID)
	if err != nil {
		if errors.Is(err, trace.ErrNotFound) {
			c.JSON(http.StatusNotFound, resilience.NewErrorResponse("Trace not found: "+traceID, nil))
			return
		}
		s.logger.Error("trace lookup failed",
			zap.String("trace_id", traceID),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, resilience.NewErrorResponse("Failed to retrieve trace: "+traceID, err))
		return
	}

	c.JSON(http.StatusOK, t)
}

// handleHealth reports service and dependency health.
func (s *Server) handleHealth(c *gin.Context) {
	resp := s.health.Check(c.Request.Context())

	status := http.StatusOK
	if resp.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
