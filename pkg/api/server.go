package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/airchainpay/relay/pkg/config"
	"github.com/airchainpay/relay/pkg/log"
	"github.com/airchainpay/relay/pkg/metrics"
	"github.com/airchainpay/relay/pkg/relay"
	"github.com/airchainpay/relay/pkg/types"
)

// Server is the HTTP transport adapter. It stays thin: parse, call the
// relay's in-process contract, map the error kind to a status code.
type Server struct {
	relay  *relay.Relay
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates the adapter bound to the relay core
func NewServer(r *relay.Relay) *Server {
	return &Server{
		relay:  r,
		logger: log.For(log.API),
	}
}

// routes assembles the adapter's handler stack
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/transactions", s.handleSubmit)
	mux.HandleFunc("GET /api/v1/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/v1/transactions/{id}", s.handleTransactionStatus)
	mux.HandleFunc("GET /api/v1/queue", s.handleQueueStats)
	mux.HandleFunc("GET /api/v1/circuits", s.handleCircuits)
	mux.HandleFunc("GET /api/v1/circuits/{name}", s.handleCircuit)
	mux.HandleFunc("GET /api/v1/config", s.handleConfigGet)
	mux.HandleFunc("PUT /api/v1/config", s.handleConfigUpdate)
	mux.HandleFunc("GET /api/v1/devices", s.handleDevices)
	mux.HandleFunc("GET /api/v1/audit", s.handleAudit)
	mux.HandleFunc("GET /api/v1/integrity", s.handleIntegrity)

	mux.HandleFunc("GET /health", metrics.HealthHandler())
	mux.HandleFunc("GET /health/live", metrics.LivenessHandler())
	mux.HandleFunc("GET /health/ready", metrics.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	return s.withLogging(s.withCORS(s.withAPIKey(mux)))
}

// Start serves HTTP on the configured port until Stop
func (s *Server) Start(port int) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Int("port", port).Msg("API server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) cfg() *config.Config {
	return s.relay.ConfigGet()
}

// withAPIKey enforces X-API-Key when configured. The health and metrics
// surfaces stay open for probes and scrapers.
func (s *Server) withAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := s.cfg()
		if !cfg.Security.EnableAPIKeyValidation || isOpenPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.Security.APIKey)) != 1 {
			s.relay.RecordIncident("invalid_api_key", map[string]interface{}{
				"path":   r.URL.Path,
				"remote": r.RemoteAddr,
			})
			writeJSON(w, http.StatusUnauthorized, map[string]string{"kind": "Unauthorized", "message": "missing or invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isOpenPath(path string) bool {
	return path == "/metrics" || path == "/health" || strings.HasPrefix(path, "/health/")
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := s.cfg()
		if cfg.Security.EnableCORS {
			w.Header().Set("Access-Control-Allow-Origin", cfg.Security.CORSOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg().Monitoring.LogRequests {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req types.SubmissionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 256*1024)).Decode(&req); err != nil {
		writeError(w, types.Wrap(types.KindInvalidInput, "malformed request body", err))
		return
	}

	accepted, err := s.relay.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, accepted)
}

func (s *Server) handleTransactionStatus(w http.ResponseWriter, r *http.Request) {
	view, ok := s.relay.Status(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"kind": "NotFound", "message": "unknown transaction"})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	txs, err := s.relay.Transactions(limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.relay.QueueStats())
}

func (s *Server) handleCircuits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.relay.CircuitStatuses())
}

func (s *Server) handleCircuit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.relay.CircuitStatus(r.PathValue("name")))
}

func (s *Server) handleConfigGet(w http.ResponseWriter, _ *http.Request) {
	cfg := *s.relay.ConfigGet()
	// Secrets never leave the process
	cfg.Security.APIKey = ""
	cfg.Security.JWTSecret = ""
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleConfigUpdate(w http.ResponseWriter, r *http.Request) {
	var next config.Config
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024*1024)).Decode(&next); err != nil {
		writeError(w, types.Wrap(types.KindInvalidInput, "malformed config body", err))
		return
	}
	if err := s.relay.ConfigUpdate(&next); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devices, err := s.relay.Devices()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.relay.AuditRecent(queryInt(r, "limit", 100)))
}

func (s *Server) handleIntegrity(w http.ResponseWriter, _ *http.Request) {
	violations, err := s.relay.Verify()
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if len(violations) > 0 {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]interface{}{"violations": violations})
}

func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}

// errorBody is the wire shape of a rejected request
type errorBody struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// writeError maps the relay error taxonomy onto HTTP status categories
func writeError(w http.ResponseWriter, err error) {
	kind := types.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case types.KindInvalidInput, types.KindInvalidTransaction, types.KindUnknownChain, types.KindConfigInvalid:
		status = http.StatusBadRequest
	case types.KindRateLimited:
		status = http.StatusTooManyRequests
	case types.KindDuplicate:
		status = http.StatusConflict
	case types.KindQueueFull:
		status = http.StatusServiceUnavailable
	case types.KindCircuitOpen:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "60")
	case types.KindNetwork, types.KindRpcTransient:
		status = http.StatusBadGateway
	}

	body := errorBody{Kind: string(kind), Message: err.Error()}
	var re *types.Error
	if errors.As(err, &re) {
		body.Message = re.Message
		body.Details = re.Details
	}
	if body.Kind == "" {
		body.Kind = "Internal"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
