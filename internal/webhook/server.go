// Copyright 2025 The Pollinate Authors
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

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/pollinate/internal/pipeline"
)

const (
	// DefaultMaxBodyBytes matches the largest payload GitHub sends (25 MB) with headroom
	DefaultMaxBodyBytes = 32 << 20
	// DefaultShutdownTimeout bounds graceful shutdown
	DefaultShutdownTimeout = 10 * time.Second

	headerEvent    = "X-GitHub-Event"
	headerDelivery = "X-GitHub-Delivery"
)

// Processor runs one delivery through the pipeline
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) pipeline.Result
}

// Config holds the HTTP server settings
type Config struct {
	Host            string
	Port            int
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
}

// Server handles GitHub webhook requests
type Server struct {
	addr            string
	port            int
	processor       Processor
	maxBodyBytes    int64
	shutdownTimeout time.Duration
	server          *http.Server

	gatherer prometheus.Gatherer
	requests *prometheus.CounterVec
}

// NewServer creates a new webhook server. When registry is non-nil the
// server records request metrics in it and serves it on /metrics.
func NewServer(cfg Config, processor Processor, registry *prometheus.Registry) *Server {
	s := &Server{
		addr:            cfg.Host,
		port:            cfg.Port,
		processor:       processor,
		maxBodyBytes:    cfg.MaxBodyBytes,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = DefaultMaxBodyBytes
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = DefaultShutdownTimeout
	}

	if registry != nil {
		s.gatherer = registry
		s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollinate",
			Subsystem: "webhook",
			Name:      "requests_total",
			Help:      "Webhook requests by event type and response code.",
		}, []string{"event", "code"})
		registry.MustRegister(s.requests)
	}

	return s
}

// Handler returns the HTTP routes served by the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start starts the webhook server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.addr, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Log.Info("Starting webhook server", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully stops the server, waiting for in-flight runs until ctx expires
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Log.Info("Shutting down webhook server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// response is the body returned for accepted deliveries
type response struct {
	Outcome     string `json:"outcome"`
	RunID       string `json:"run_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	PullRequest string `json:"pull_request,omitempty"`
}

// handleWebhook handles GitHub webhook requests
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	eventType := r.Header.Get(headerEvent)
	logger := log.FromContext(r.Context()).WithName("webhook")

	if r.Method != http.MethodPost {
		s.reply(w, eventType, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Info("Payload too large", "limit", tooLarge.Limit)
			s.reply(w, eventType, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		logger.Error(err, "Failed to read request body")
		s.reply(w, eventType, http.StatusBadRequest, "Failed to read body")
		return
	}
	defer r.Body.Close()

	// GitHub closes the connection after 10s; the run must outlive it
	ctx := log.IntoContext(context.WithoutCancel(r.Context()), logger)

	result := s.processor.Process(ctx, pipeline.Request{
		EventType:  eventType,
		DeliveryID: r.Header.Get(headerDelivery),
		Body:       payload,
		Signature:  r.Header.Get(SignatureHeader),
	})

	status, message := statusFor(result.Outcome)
	if status >= http.StatusBadRequest {
		s.reply(w, eventType, status, message)
		return
	}

	body := response{
		Outcome: result.Outcome.String(),
		RunID:   result.RunID,
		Reason:  result.Reason,
	}
	if result.PR != nil {
		body.PullRequest = result.PR.URL
	}

	s.observe(eventType, status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// statusFor maps a run outcome to the HTTP response sent to GitHub
func statusFor(outcome pipeline.Outcome) (int, string) {
	switch outcome {
	case pipeline.OutcomeHandled, pipeline.OutcomeIgnored:
		return http.StatusOK, ""
	case pipeline.OutcomeUnauthorized:
		return http.StatusUnauthorized, "Invalid signature"
	case pipeline.OutcomeBadRequest:
		return http.StatusBadRequest, "Invalid payload"
	case pipeline.OutcomeRateLimited:
		return http.StatusTooManyRequests, "Too many requests"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (s *Server) reply(w http.ResponseWriter, eventType string, status int, message string) {
	s.observe(eventType, status)
	http.Error(w, message, status)
}

func (s *Server) observe(eventType string, status int) {
	if s.requests == nil {
		return
	}
	// Unsigned requests choose the header; keep label values bounded
	switch eventType {
	case "issues", "issue_comment", "ping":
	default:
		eventType = "other"
	}
	s.requests.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
}
