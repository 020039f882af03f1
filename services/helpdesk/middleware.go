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
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// =============================================================================
// Request ID
// =============================================================================

// RequestIDMiddleware reuses the caller's X-Request-ID or assigns a new UUID,
// stores it on the context and echoes it in the response header.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// getOrCreateRequestID returns the id set by RequestIDMiddleware, creating
// one when the middleware is not installed.
func getOrCreateRequestID(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	id := uuid.NewString()
	c.Set(requestIDKey, id)
	return id
}

// =============================================================================
// Rate limiting
// =============================================================================

// ClientLimiter keeps one token bucket per client key.
//
// # Description
//
// Buckets idle for longer than the eviction window are dropped during the
// next sweep, so the map tracks only active clients.
//
// # Thread Safety
//
// Safe for concurrent use.
type ClientLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientBucket
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter allows perSecond requests per client with the given burst.
// A perSecond <= 0 disables limiting.
func NewClientLimiter(perSecond float64, burst int) *ClientLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &ClientLimiter{
		clients: make(map[string]*clientBucket),
		limit:   limit,
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
	}
}

// Allow consumes one token for key.
func (l *ClientLimiter) Allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.idle {
		for k, b := range l.clients {
			if now.Sub(b.lastSeen) > l.idle {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// RateLimitMiddleware rejects requests over the client's budget with 429.
// Clients are keyed by gin's ClientIP.
func RateLimitMiddleware(l *ClientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		slog.Warn("Request rate limited",
			slog.String("request_id", getOrCreateRequestID(c)),
			slog.String("client_ip", c.ClientIP()),
			slog.String("path", c.Request.URL.Path),
		)
		retry := 1
		if l.limit > 0 && l.limit < 1 {
			retry = int(1/float64(l.limit)) + 1
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
			Error: "too many requests",
			Code:  CodeRateLimited,
		})
	}
}
