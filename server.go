package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Server handles incoming HTTP requests for the current inference results
// and device identity
type Server struct {
	Logger  *slog.Logger
	Gateway *Gateway
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /results", s.handleResults)
	mux.HandleFunc("GET /device", s.handleDevice)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// handleResults serves the latest inference result snapshot
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	snapshot := s.Gateway.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		s.Logger.Error("Failed to encode results", "error", err)
	}
}

// handleDevice serves the device identity fields
func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	identity, err := s.Gateway.Identity()
	if err != nil {
		s.Logger.Error("Failed to query device identity", "error", err)
		s.sendError(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(identity); err != nil {
		s.Logger.Error("Failed to encode identity", "error", err)
	}
}
