// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package helpdesk exposes the FAQ resolver over HTTP.
package helpdesk

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/helpdesk/services/helpdesk/embedding"
	"github.com/AleutianAI/helpdesk/services/helpdesk/feedback"
	"github.com/AleutianAI/helpdesk/services/helpdesk/resolver"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeMissingParameter = "MISSING_PARAMETER"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeRateLimited      = "RATE_LIMITED"
	CodeNotReady         = "NOT_READY"
	CodeInternalError    = "INTERNAL_ERROR"
)

// MaxSearchTopK bounds SearchRequest.TopK.
const MaxSearchTopK = 50

// =============================================================================
// Request / Response types
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// AnswerRequest is the body of POST /v1/helpdesk/answer.
//
// Query is a pointer so that a missing field can be told apart from an
// empty string, which is answered as gibberish.
type AnswerRequest struct {
	Query *string `json:"query"`
}

// AnswerResponse is a MatchResult plus the request id.
type AnswerResponse struct {
	resolver.MatchResult
	RequestID string `json:"request_id"`
}

// SearchRequest is the body of POST /v1/helpdesk/search.
type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k"`
}

// SearchResponse lists ranked candidates without thresholds applied.
type SearchResponse struct {
	Query     string               `json:"query"`
	Results   []resolver.Candidate `json:"results"`
	RequestID string               `json:"request_id"`
}

// CategoriesResponse describes the loaded knowledge base.
type CategoriesResponse struct {
	Source     string   `json:"source"`
	Entries    int      `json:"entries"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
}

// FeedbackRequest is the body of POST /v1/helpdesk/feedback. Kind accepts a
// kind name or its button emoji.
type FeedbackRequest struct {
	Kind   string  `json:"kind" binding:"required"`
	Query  string  `json:"query"`
	Answer string  `json:"answer"`
	Method string  `json:"method"`
	Score  float64 `json:"score"`
}

// FeedbackResponse echoes the stored record and the reply to show the user.
type FeedbackResponse struct {
	Record  feedback.Record `json:"record"`
	Message string          `json:"message"`
}

// FeedbackListResponse is the body of GET /v1/helpdesk/feedback.
type FeedbackListResponse struct {
	Records []feedback.Record `json:"records"`
}

// ReadyResponse is the body of GET /v1/helpdesk/ready.
type ReadyResponse struct {
	Status     string `json:"status"`
	Entries    int    `json:"entries"`
	Mode       string `json:"mode"`
	Semantic   bool   `json:"semantic"`
	CorpusHash string `json:"corpus_hash,omitempty"`
}

// =============================================================================
// Handlers
// =============================================================================

// Handlers serves the helpdesk endpoints.
//
// Thread Safety: Safe for concurrent use. The resolver is read through the
// holder on every request.
type Handlers struct {
	holder   *ResolverHolder
	feedback *feedback.Store
	logger   *slog.Logger
}

// NewHandlers creates handlers over holder. store may be nil, in which case
// the feedback endpoints answer 503. A nil logger uses slog.Default().
func NewHandlers(holder *ResolverHolder, store *feedback.Store, logger *slog.Logger) *Handlers {
	if holder == nil {
		holder = NewResolverHolder(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{holder: holder, feedback: store, logger: logger}
}

// activeResolver returns the current resolver or writes a 503.
func (h *Handlers) activeResolver(c *gin.Context) (*resolver.Resolver, bool) {
	r := h.holder.Load()
	if r == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "knowledge base is not loaded",
			Code:  CodeNotReady,
		})
		return nil, false
	}
	return r, true
}

// HandleAnswer handles POST /v1/helpdesk/answer.
//
// Description:
//
//	Classifies and answers one query. Every outcome, including gibberish
//	and no match, is a 200 with the MatchResult in the body.
//
// Response:
//
//	200 OK: AnswerResponse
//	400 Bad Request: Malformed JSON or missing query
//	503 Service Unavailable: No resolver loaded
func (h *Handlers) HandleAnswer(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleAnswer")

	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  CodeInvalidRequest,
		})
		return
	}
	if req.Query == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "query is required",
			Code:  CodeMissingParameter,
		})
		return
	}

	r, ok := h.activeResolver(c)
	if !ok {
		return
	}

	result := r.Answer(c.Request.Context(), *req.Query)
	logger.Info("Answered query",
		slog.String("method", string(result.Method)),
		slog.Float64("score", result.Score),
		slog.Int("row", result.Row),
	)
	c.JSON(http.StatusOK, AnswerResponse{MatchResult: result, RequestID: requestID})
}

// HandleSearch handles POST /v1/helpdesk/search.
//
// Response:
//
//	200 OK: SearchResponse
//	400 Bad Request: Missing query or top_k out of range
//	503 Service Unavailable: No resolver loaded
func (h *Handlers) HandleSearch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		code := CodeInvalidRequest
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			code = CodeMissingParameter
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  code,
		})
		return
	}
	if req.TopK < 0 || req.TopK > MaxSearchTopK {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "top_k must be between 0 and " + strconv.Itoa(MaxSearchTopK),
			Code:  CodeInvalidRequest,
		})
		return
	}

	r, ok := h.activeResolver(c)
	if !ok {
		return
	}

	results := r.Search(c.Request.Context(), req.Query, req.TopK)
	if results == nil {
		results = []resolver.Candidate{}
	}
	c.JSON(http.StatusOK, SearchResponse{Query: req.Query, Results: results, RequestID: requestID})
}

// HandleCategories handles GET /v1/helpdesk/categories.
func (h *Handlers) HandleCategories(c *gin.Context) {
	r, ok := h.activeResolver(c)
	if !ok {
		return
	}
	base := r.Base()
	c.JSON(http.StatusOK, CategoriesResponse{
		Source:     base.Source(),
		Entries:    base.Len(),
		Categories: nonNil(base.Categories()),
		Tags:       nonNil(base.Tags()),
	})
}

// HandleRecordFeedback handles POST /v1/helpdesk/feedback.
//
// Response:
//
//	201 Created: FeedbackResponse
//	400 Bad Request: Missing or unknown kind
//	503 Service Unavailable: No feedback store configured
//	500 Internal Server Error: Storage failure
func (h *Handlers) HandleRecordFeedback(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleRecordFeedback")

	if h.feedback == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "feedback store is not configured",
			Code:  CodeNotReady,
		})
		return
	}

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		code := CodeInvalidRequest
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			code = CodeMissingParameter
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  code,
		})
		return
	}
	kind, err := feedback.ParseKind(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  CodeInvalidRequest,
		})
		return
	}

	rec, err := h.feedback.Record(c.Request.Context(), feedback.Record{
		Kind:   kind,
		Query:  req.Query,
		Answer: req.Answer,
		Method: req.Method,
		Score:  req.Score,
	})
	if err != nil {
		logger.Error("Failed to record feedback", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "failed to record feedback",
			Code:  CodeInternalError,
		})
		return
	}

	msg, _ := feedback.Acknowledgement(kind)
	c.JSON(http.StatusCreated, FeedbackResponse{Record: rec, Message: msg})
}

// HandleListFeedback handles GET /v1/helpdesk/feedback?limit=N.
func (h *Handlers) HandleListFeedback(c *gin.Context) {
	requestID := getOrCreateRequestID(c)

	if h.feedback == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "feedback store is not configured",
			Code:  CodeNotReady,
		})
		return
	}

	limit := feedback.DefaultListLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "limit must be a positive integer",
				Code:  CodeInvalidRequest,
			})
			return
		}
		limit = parsed
	}

	records, err := h.feedback.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list feedback",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "failed to list feedback",
			Code:  CodeInternalError,
		})
		return
	}
	if records == nil {
		records = []feedback.Record{}
	}
	c.JSON(http.StatusOK, FeedbackListResponse{Records: records})
}

// HandleHealth handles GET /v1/helpdesk/health. It reports liveness only.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// HandleReady handles GET /v1/helpdesk/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	r := h.holder.Load()
	if r == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "knowledge base is not loaded",
			Code:  CodeNotReady,
		})
		return
	}
	cfg := r.Config()
	resp := ReadyResponse{
		Status:   "ready",
		Entries:  r.Base().Len(),
		Mode:     cfg.Mode,
		Semantic: r.SemanticEnabled(),
	}
	if hash := r.CorpusHash(); hash != "" {
		resp.CorpusHash = embedding.ShortHash(hash)
	}
	c.JSON(http.StatusOK, resp)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
