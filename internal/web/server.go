package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dexter-zone/dexvault/internal/logger"
	"github.com/dexter-zone/dexvault/internal/state"
	"github.com/dexter-zone/dexvault/internal/vault"
	"github.com/dexter-zone/dexvault/internal/wallet"
)

var webLogger = logger.GetForComponent("web_server")

const requestIDHeader = "X-Request-ID"

// WebServer exposes the ledger messages and queries over HTTP.
type WebServer struct {
	router *mux.Router
	port   string
	server *http.Server

	vault       *vault.Vault
	bank        *wallet.Bank
	staking     *wallet.Staking
	faucet      bool
	gatherer    prometheus.Gatherer
	persistence bool
	started     time.Time
}

// Option configures optional server features.
type Option func(*WebServer)

// WithBank exposes balances of the in-memory bank. With faucet set, POST /api/bank/fund credits accounts.
func WithBank(b *wallet.Bank, faucet bool) Option {
	return func(ws *WebServer) {
		ws.bank = b
		ws.faucet = faucet
	}
}

// WithStaking exposes reward schedule registration on the in-memory staking collaborator.
func WithStaking(s *wallet.Staking) Option {
	return func(ws *WebServer) { ws.staking = s }
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(ws *WebServer) { ws.gatherer = g }
}

// WithPersistence enables the receipt and snapshot endpoints backed by the state package.
func WithPersistence() Option {
	return func(ws *WebServer) { ws.persistence = true }
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, v *vault.Vault, opts ...Option) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		vault:   v,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupRoutes()
	server.server = &http.Server{
		Addr:         ":" + port,
		Handler:      server.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if ws.gatherer != nil {
		ws.router.Handle("/metrics", promhttp.HandlerFor(ws.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Queries
	api.HandleFunc("/config", ws.handleGetConfig).Methods("GET")
	api.HandleFunc("/registry/{pool_type}", ws.handleGetRegistry).Methods("GET")
	api.HandleFunc("/pools", ws.handleListPools).Methods("GET")
	api.HandleFunc("/pools/by-address", ws.handleGetPoolByAddress).Methods("GET")
	api.HandleFunc("/pools/by-lp-token", ws.handleGetPoolByLpToken).Methods("GET")
	api.HandleFunc("/pools/{id:[0-9]+}", ws.handleGetPool).Methods("GET")
	api.HandleFunc("/pools/{id:[0-9]+}/summary", ws.handleGetPoolSummary).Methods("GET")
	api.HandleFunc("/pools/{id:[0-9]+}/cumulative-prices", ws.handleGetCumulativePrices).Methods("GET")
	api.HandleFunc("/pools/{id:[0-9]+}/amp", ws.handleGetAmpParams).Methods("GET")
	api.HandleFunc("/pools/{id:[0-9]+}/lp-balance/{user}", ws.handleGetLpBalance).Methods("GET")
	api.HandleFunc("/pools/{id:[0-9]+}/simulate/join", ws.handleSimulateJoin).Methods("POST")
	api.HandleFunc("/pools/{id:[0-9]+}/simulate/exit", ws.handleSimulateExit).Methods("POST")
	api.HandleFunc("/pools/{id:[0-9]+}/simulate/swap", ws.handleSimulateSwap).Methods("POST")
	api.HandleFunc("/defunct/{id:[0-9]+}", ws.handleGetDefunct).Methods("GET")
	api.HandleFunc("/defunct/{id:[0-9]+}/refunded/{user}", ws.handleIsRefunded).Methods("GET")
	api.HandleFunc("/ownership-proposal", ws.handleGetOwnershipProposal).Methods("GET")

	// Messages
	api.HandleFunc("/tx/{kind}", ws.handleTx).Methods("POST")

	if ws.bank != nil {
		api.HandleFunc("/bank/balances", ws.handleGetBalances).Methods("GET")
		if ws.faucet {
			api.HandleFunc("/bank/fund", ws.handleFund).Methods("POST")
		}
	}
	if ws.staking != nil && ws.faucet {
		api.HandleFunc("/staking/reward-schedules", ws.handleAddRewardSchedule).Methods("POST")
	}

	if ws.persistence {
		api.HandleFunc("/receipts", ws.handleGetReceipts).Methods("GET")
		api.HandleFunc("/receipts/{id}", ws.handleGetReceipt).Methods("GET")
		api.HandleFunc("/activity", ws.handleGetActivity).Methods("GET")
		api.HandleFunc("/snapshots", ws.handleGetSnapshots).Methods("GET")
		api.HandleFunc("/pools/{id:[0-9]+}/price-history", ws.handleGetPriceHistory).Methods("GET")
	}

	ws.router.Use(ws.requestIDMiddleware)
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler returns the routed handler, for tests and embedding.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start starts the web server. It returns http.ErrServerClosed after Shutdown.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")
	return ws.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	return ws.server.Shutdown(ctx)
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	dbHealthy := true
	if ws.persistence {
		if err := state.TestDBConnection(); err != nil {
			dbHealthy = false
			hasErrors = true
		}
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	cfg := ws.vault.Config()
	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "dexvault",
			"version": "1.0.0",
		},
		"ledger_status": map[string]interface{}{
			"database_enabled": ws.persistence,
			"database_healthy": dbHealthy,
			"pools":            len(ws.vault.ListPools()),
			"next_pool_id":     cfg.NextPoolID,
			"block_time":       ws.vault.BlockTime(),
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// writeLedgerError maps a ledger error to a status code and includes its category.
func (ws *WebServer) writeLedgerError(w http.ResponseWriter, err error) {
	category := vault.Category(err)
	status := statusFor(err)
	response := map[string]interface{}{
		"error":     true,
		"message":   err.Error(),
		"timestamp": time.Now().UTC(),
	}
	if category != nil {
		response["category"] = category.Error()
	}
	ws.writeJSONResponse(w, status, response)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, vault.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, vault.ErrPoolNotFound), errors.Is(err, vault.ErrPoolTypeNotFound),
		errors.Is(err, vault.ErrNoOwnershipProposal):
		return http.StatusNotFound
	case errors.Is(err, vault.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrPoolResponse), errors.Is(err, vault.ErrSlippage), errors.Is(err, vault.ErrLifecycle):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// requestIDMiddleware tags every request with an id, reusing one sent by the client.
func (ws *WebServer) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		r.Header.Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+requestIDHeader)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", r.Header.Get(requestIDHeader)).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
