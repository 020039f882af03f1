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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware_Generates(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	var seen string
	router.GET("/", func(c *gin.Context) {
		seen = getOrCreateRequestID(c)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
}

func TestGetOrCreateRequestID_WithoutMiddleware(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	first := getOrCreateRequestID(c)
	assert.NotEmpty(t, first)
	assert.Equal(t, first, getOrCreateRequestID(c))
}

func TestClientLimiter(t *testing.T) {
	l := NewClientLimiter(1, 2)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"), "burst exhausted")
	assert.True(t, l.Allow("b"), "clients have separate buckets")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a"), "one token refilled")

	now = now.Add(time.Hour)
	assert.True(t, l.Allow("c"))
	assert.Equal(t, 1, l.Len(), "idle clients are evicted")
}

func TestClientLimiter_Disabled(t *testing.T) {
	l := NewClientLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("a"))
	}
	assert.Zero(t, l.Len())
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewClientLimiter(0.5, 1)
	router := gin.New()
	router.Use(RateLimitMiddleware(l))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), CodeRateLimited)
}
