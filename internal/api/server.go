// SPDX-License-Identifier: MIT

// Package api is the local dashboard-facing HTTP surface: status queries,
// locally originated commands, config persistence and Prometheus metrics.
// Binding its port doubles as the single-instance guard.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/collect"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/command"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/config"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/health"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/log"
	"github.com/VuStudio-Labs/VuOs-WATCH-DOG/internal/stream"
)

// StatusSnapshot is the composite state returned on /api/status.
type StatusSnapshot struct {
	Telemetry collect.TelemetryRecord `json:"telemetry"`
	Health    health.Payload          `json:"health"`
	Stream    stream.State            `json:"stream"`
}

// Server is the local HTTP server.
type Server struct {
	addr       string
	processor  *command.Processor
	status     func() StatusSnapshot
	saveConfig func(*config.Config) error
	logger     zerolog.Logger
	acks       *ackBuffer
	srv        *http.Server
}

// New builds the server on the dashboard port.
func New(port int, processor *command.Processor, status func() StatusSnapshot, saveConfig func(*config.Config) error) *Server {
	s := &Server{
		addr:       fmt.Sprintf("127.0.0.1:%d", port),
		processor:  processor,
		status:     status,
		saveConfig: saveConfig,
		logger:     log.WithComponent("api"),
		acks:       newAckBuffer(),
	}
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// DeliverAck is the out-of-band ack callback hook: acks for locally
// originated commands are buffered for the HTTP caller.
func (s *Server) DeliverAck(clientID string, ack command.Ack) {
	if clientID != "local-api" {
		return
	}
	s.acks.put(ack)
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(httprate.LimitByIP(60, time.Minute))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/command", s.handleCommand)
	r.Post("/api/config", s.handleConfig)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	snap := s.status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"mode":   snap.Health.Mode,
		"wallId": snap.Health.WallID,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

type commandRequest struct {
	Type string          `json:"type"`
	Args json.RawMessage `json:"args,omitempty"`
}

// handleCommand synthesizes a local command envelope and runs it through the
// same path as bus commands. Handlers run synchronously, so the terminal ack
// is buffered by the time HandleLocal returns.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "type is required"})
		return
	}
	id := s.processor.HandleLocal(r.Context(), req.Type, req.Args)
	acks := s.acks.take(id)
	status := http.StatusOK
	if len(acks) > 0 {
		switch acks[len(acks)-1].Status {
		case command.AckRejected, command.AckExpired:
			status = http.StatusForbidden
		case command.AckFailed:
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, map[string]any{"commandId": id, "acks": acks})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	var cfg config.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if err := s.saveConfig(&cfg); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": true})
}

// Run serves until ctx is cancelled. A bind failure is fatal: it usually
// means another watchdog instance owns the port.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()

	s.logger.Info().
		Str("event", "api.listening").
		Str("addr", s.addr).
		Msg("local API listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// ProbeRunning reports whether another instance already answers on the
// dashboard port.
func ProbeRunning(port int) bool {
	client := &http.Client{Timeout: 750 * time.Millisecond}
	res, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/healthz", port))
	if err != nil {
		return false
	}
	res.Body.Close()
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
