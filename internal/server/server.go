// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/stablevault-keeper/internal/chain"
	"github.com/smartdevs17/stablevault-keeper/internal/indexer"
	"github.com/smartdevs17/stablevault-keeper/internal/keeper"
	"github.com/smartdevs17/stablevault-keeper/internal/metrics"
	"github.com/smartdevs17/stablevault-keeper/internal/models"
	"github.com/smartdevs17/stablevault-keeper/internal/storage"
	"github.com/smartdevs17/stablevault-keeper/pkg/utils"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          int           `json:"port"`
	Host          string        `json:"host"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	EnableMetrics bool          `json:"enable_metrics"`
	EnableHealth  bool          `json:"enable_health"`
}

// HTTPServer exposes the read API over the snapshot store and the chain
type HTTPServer struct {
	config         *ServerConfig
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	client         chain.Client
	indexer        *indexer.Indexer
	keeper         *keeper.Keeper
	metricsManager *metrics.Manager
	logger         *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	config *ServerConfig,
	store storage.Storage,
	client chain.Client,
	idx *indexer.Indexer,
	kpr *keeper.Keeper,
	metricsManager *metrics.Manager,
) (*HTTPServer, error) {

	server := &HTTPServer{
		config:         config,
		storage:        store,
		client:         client,
		indexer:        idx,
		keeper:         kpr,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
	}

	// Setup router
	server.setupRouter()

	// Create HTTP server
	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health check endpoint
	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
	}

	// Metrics endpoint
	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Protocol endpoints
	api.HandleFunc("/protocol/metrics", s.protocolMetricsHandler).Methods("GET")
	api.HandleFunc("/oracle/status", s.oracleStatusHandler).Methods("GET")

	// Vault endpoints
	api.HandleFunc("/vaults", s.listVaultsHandler).Methods("GET")
	api.HandleFunc("/vaults/{owner}", s.getVaultHandler).Methods("GET")

	// Liquidation endpoints
	api.HandleFunc("/liquidations", s.listLiquidationsHandler).Methods("GET")

	// Keeper endpoints
	api.HandleFunc("/keeper/status", s.keeperStatusHandler).Methods("GET")
	api.HandleFunc("/keeper/runs", s.listKeeperRunsHandler).Methods("GET")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.Info("Starting HTTP server", map[string]interface{}{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	})

	// Immediately update system metrics so they appear on first scrape
	if s.metricsManager != nil {
		s.metricsManager.UpdateSystemMetrics()
		s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("storage", s.storage.Ping() == nil)
		go s.systemMetricsUpdater()
	}

	// Create a channel to receive startup errors
	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", map[string]interface{}{"error": err})
			errChan <- err
		}
	}()

	// Give the server a moment to start and check for immediate binding errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		// Server started successfully
		return nil
	}
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.metricsManager.UpdateSystemMetrics()
		s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("storage", s.storage.Ping() == nil)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := s.client.LatestBlock(ctx)
		cancel()
		s.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("chain", err == nil)
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Middleware

// loggingMiddleware logs HTTP requests
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Call the next handler
		next.ServeHTTP(w, r)

		// Log the request
		s.logger.Info("HTTP request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"duration":   time.Since(start),
			"user_agent": r.UserAgent(),
			"remote_ip":  r.RemoteAddr,
		})
	})
}

// corsMiddleware handles CORS
func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Health Handlers

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"storage":         s.storage.Ping() == nil,
		"signer":          s.client.HasSigner(),
		"metrics_enabled": s.config.EnableMetrics,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStorageStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
		return
	}

	stats := map[string]interface{}{
		"timestamp":       time.Now(),
		"storage":         storageStats,
		"keeper":          s.keeper.State().Snapshot(),
		"metrics_enabled": s.config.EnableMetrics,
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// Protocol Handlers

// protocolMetricsHandler returns system-wide protocol figures from the chain
func (s *HTTPServer) protocolMetricsHandler(w http.ResponseWriter, r *http.Request) {
	badDebt, err := s.client.SystemBadDebt(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Failed to read system bad debt", err)
		return
	}
	reserve, err := s.client.ProtocolReserve(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Failed to read protocol reserve", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"system_bad_debt":      badDebt.String(),
		"protocol_reserve_stb": reserve.String(),
		"timestamp":            time.Now().UTC(),
	})
}

// oracleStatusHandler returns the on-chain price status and recent samples
func (s *HTTPServer) oracleStatusHandler(w http.ResponseWriter, r *http.Request) {
	status, err := s.client.PriceStatus(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Failed to read oracle status", err)
		return
	}

	resp := map[string]interface{}{
		"effective_price":   status.EffectivePrice.String(),
		"spot_price":        status.SpotPrice.String(),
		"twap_price":        status.TwapPrice.String(),
		"spot_updated_at":   status.SpotUpdatedAt,
		"twap_updated_at":   status.TwapUpdatedAt,
		"breaker_triggered": status.BreakerTriggered,
	}

	if latest, err := s.storage.LatestSample(r.Context(), models.SampleSourceSpot); err == nil && latest != nil {
		resp["latest_spot_sample"] = latest
	}
	if latest, err := s.storage.LatestSample(r.Context(), models.SampleSourceTwap); err == nil && latest != nil {
		resp["latest_twap_sample"] = latest
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// Vault Handlers

// listVaultsHandler lists position snapshots
func (s *HTTPServer) listVaultsHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r, 50)

	filter := models.SnapshotFilter{
		Limit:  limit,
		Offset: offset,
	}
	if healthStr := r.URL.Query().Get("health"); healthStr != "" {
		health := models.HealthLabel(healthStr)
		switch health {
		case models.HealthSafe, models.HealthWarning, models.HealthDanger:
			filter.Health = &health
		default:
			s.writeError(w, http.StatusBadRequest, "Invalid health filter", nil)
			return
		}
	}

	snapshots, err := s.storage.ListSnapshots(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve snapshots", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"vaults": snapshots,
		"limit":  limit,
		"offset": offset,
		"total":  len(snapshots),
	})
}

// getVaultHandler refreshes and returns a single position snapshot. The
// refresh keeps the response current even between indexer events; if the
// chain is unreachable the stored row is not trusted blindly.
func (s *HTTPServer) getVaultHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	owner := vars["owner"]

	if !utils.IsValidAddress(owner) {
		s.writeError(w, http.StatusBadRequest, "Invalid owner address", nil)
		return
	}

	if err := s.indexer.RefreshSnapshot(r.Context(), owner); err != nil {
		s.writeError(w, http.StatusBadGateway, "Failed to refresh position from chain", err)
		return
	}

	snapshot, err := s.storage.GetSnapshot(r.Context(), utils.NormalizeAddress(owner))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Vault not found", err)
		return
	}

	s.writeJSON(w, http.StatusOK, snapshot)
}

// Liquidation Handlers

// listLiquidationsHandler lists recorded liquidation events
func (s *HTTPServer) listLiquidationsHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r, 50)

	filter := models.LiquidationFilter{
		Limit:  limit,
		Offset: offset,
	}
	if owner := r.URL.Query().Get("owner"); owner != "" {
		if !utils.IsValidAddress(owner) {
			s.writeError(w, http.StatusBadRequest, "Invalid owner address", nil)
			return
		}
		normalized := utils.NormalizeAddress(owner)
		filter.Owner = &normalized
	}

	events, err := s.storage.ListLiquidations(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve liquidations", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"liquidations": events,
		"limit":        limit,
		"offset":       offset,
		"total":        len(events),
	})
}

// Keeper Handlers

// keeperStatusHandler returns the keeper's latest state snapshot
func (s *HTTPServer) keeperStatusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.keeper.State().Snapshot())
}

// listKeeperRunsHandler lists the keeper's audit log
func (s *HTTPServer) listKeeperRunsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := parsePagination(r, 20)

	runs, err := s.storage.ListKeeperRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve keeper runs", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"limit": limit,
		"total": len(runs),
	})
}

// Utility Methods

func parsePagination(r *http.Request, defaultLimit int) (int, int) {
	limit := defaultLimit
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", map[string]interface{}{"error": err})
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.Error("HTTP error", map[string]interface{}{
			"status":  status,
			"message": message,
			"error":   err,
		})
	}

	s.writeJSON(w, status, errorResponse)
}
