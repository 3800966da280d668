// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Package status serves the state of a running session over HTTP.
//
// Routes:
//
//	GET /healthz  liveness
//	GET /status   the engine.Status of the session as JSON
//	GET /metrics  Prometheus metrics, when the prometheus exporter is on
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/testsynth/services/engine"
)

// Source reports the current session state.
type Source interface {
	Status() engine.Status
}

// Server is the status HTTP server.
//
// Thread Safety: Start and Shutdown are called from one goroutine. Handlers
// are safe for concurrent use.
type Server struct {
	source  Source
	metrics http.Handler
	logger  *slog.Logger
	router  *gin.Engine
	srv     *http.Server
	addr    net.Addr
}

// NewServer builds the router.
//
// Inputs:
//
//	source - The running engine.
//	metrics - The /metrics handler. Nil leaves the route unregistered.
//	logger - Request and lifecycle logging. Nil uses slog.Default().
func NewServer(source Source, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{source: source, metrics: metrics, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("testsynth-status"))
	router.GET("/healthz", s.health)
	router.GET("/status", s.status)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	s.router = router
	return s
}

// Router returns the gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.source.Status())
}

// Start listens on addr and serves in the background.
//
// Outputs:
//
//	error - The address could not be bound.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.addr = ln.Addr()
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("status server listening", "addr", s.addr.String())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Shutdown stops the server gracefully. It is a no-op before Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
