// Package api - Thin, deterministic API layer
// The API is ONLY responsible for: input ingestion, engine orchestration,
// output serialization. The API NEVER performs cost logic.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quote-engine/core/determinism"
	"quote-engine/core/engine"
	"quote-engine/internal/errors"
	"quote-engine/internal/logging"
)

// Server is the API server
type Server struct {
	engine  *engine.Engine
	mux     *http.ServeMux
	version string
}

// NewServer creates a new API server around an estimation engine
func NewServer(eng *engine.Engine, version string) *Server {
	s := &Server{
		engine:  eng,
		mux:     http.NewServeMux(),
		version: version,
	}
	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /quote", s.handleQuote)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /version", s.handleVersion)
}

// handleQuote handles POST /quote
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &ErrorResponse{Code: "INVALID_JSON", Message: err.Error()}, http.StatusBadRequest)
		return
	}
	if req.Config == nil {
		s.writeError(w, &ErrorResponse{Code: string(errors.TypeSchema), Message: "config document is required", Field: "config"}, http.StatusBadRequest)
		return
	}
	if req.Inputs == nil {
		req.Inputs = map[string]interface{}{}
	}

	result, err := s.engine.Estimate(ctx, &engine.Request{
		Config:  req.Config,
		Inputs:  req.Inputs,
		Outputs: req.Outputs,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	quoteID := uuid.NewString()
	logging.Info("quote computed",
		zap.String("quote_id", quoteID),
		zap.Float64("total", result.Total),
		zap.Duration("duration", time.Since(start)))

	s.writeJSON(w, &QuoteResponse{
		QuoteID: quoteID,
		Result:  result,
		Metadata: &ResponseMetadata{
			InputHash:     computeInputHash(&req),
			EngineVersion: s.version,
			DurationMs:    time.Since(start).Milliseconds(),
		},
	}, http.StatusOK)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// handleVersion handles GET /version
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"version": s.version}, http.StatusOK)
}

// writeDomainError maps the error taxonomy onto HTTP statuses: structural
// and mapping problems are client errors, inference failures are not.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	resp := &ErrorResponse{Code: string(errors.TypeInternal), Message: err.Error()}
	status := http.StatusInternalServerError

	if domainErr, ok := err.(*errors.Error); ok {
		resp.Code = string(domainErr.Type)
		resp.Field = domainErr.Field()
		switch domainErr.Type {
		case errors.TypeSchema, errors.TypeMapping:
			status = http.StatusUnprocessableEntity
		case errors.TypeNotFound:
			status = http.StatusNotFound
		}
	}
	s.writeError(w, resp, status)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("response encoding failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, resp *ErrorResponse, status int) {
	logging.Warn("request failed",
		zap.String("code", resp.Code),
		zap.String("message", resp.Message))
	s.writeJSON(w, resp, status)
}

// computeInputHash produces a deterministic hash of the request documents;
// identical requests hash identically regardless of property order.
func computeInputHash(req *QuoteRequest) string {
	data, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	return determinism.ComputeHash(data).Hex()[:16]
}
