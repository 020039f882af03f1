// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package helpdesk

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers all helpdesk routes with the router.
//
// Description:
//
//	Registers all /v1/helpdesk/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/helpdesk/answer - Answer one query
//	POST /v1/helpdesk/search - Ranked candidates without thresholds
//	GET  /v1/helpdesk/categories - Knowledge base categories and tags
//	POST /v1/helpdesk/feedback - Record a reaction to an answer
//	GET  /v1/helpdesk/feedback - Recent reactions, newest first
//	GET  /v1/helpdesk/health - Health check
//	GET  /v1/helpdesk/ready - Readiness check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	helpdesk := rg.Group("/helpdesk")
	{
		helpdesk.POST("/answer", handlers.HandleAnswer)
		helpdesk.POST("/search", handlers.HandleSearch)
		helpdesk.GET("/categories", handlers.HandleCategories)

		helpdesk.POST("/feedback", handlers.HandleRecordFeedback)
		helpdesk.GET("/feedback", handlers.HandleListFeedback)

		helpdesk.GET("/health", handlers.HandleHealth)
		helpdesk.GET("/ready", handlers.HandleReady)
	}
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// ServiceName is the otelgin server name.
	ServiceName string

	// RateLimit is requests per second per client IP. Zero disables it.
	RateLimit float64

	// RateBurst is the bucket size per client.
	RateBurst int

	// AccessLog enables gin's request logger.
	AccessLog bool
}

// DefaultRouterConfig returns the settings used by `helpdesk serve`.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		ServiceName: "helpdesk",
		RateLimit:   10,
		RateBurst:   20,
	}
}

// NewRouter builds the gin engine: recovery, tracing, request ids, rate
// limiting on the API group, /metrics, and the helpdesk routes.
func NewRouter(handlers *Handlers, cfg RouterConfig) *gin.Engine {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "helpdesk"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(RequestIDMiddleware())
	if cfg.AccessLog {
		router.Use(gin.Logger())
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(RateLimitMiddleware(NewClientLimiter(cfg.RateLimit, cfg.RateBurst)))
	RegisterRoutes(v1, handlers)
	return router
}
