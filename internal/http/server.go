// Package http exposes the reserve map JSON API: district reference data,
// aggregated inventory and indicator views, report upload, and xlsx export.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"reservemap/internal/cache"
	"reservemap/internal/core"
	"reservemap/internal/report"
)

// Store is what the handlers need from storage beyond the aggregation
// engine: reference data, manual indicator entry, and the flat rows that
// back exports.
type Store interface {
	Districts(ctx context.Context) ([]core.District, error)
	FindDistrict(ctx context.Context, key string) (core.District, error)
	InsertIndicator(ctx context.Context, rec core.IndicatorRecord) (int64, error)
	QueryFacts(ctx context.Context, sel report.Selector, years report.YearRange) ([]core.FactRow, error)
}

// Ingester runs one uploaded report through parsing and storage.
type Ingester interface {
	Ingest(ctx context.Context, grid [][]string, year int, source string) (int, error)
}

// GridSource fetches a report grid from a remote spreadsheet.
type GridSource interface {
	FetchGrid(ctx context.Context, rng string) ([][]string, error)
}

type Server struct {
	http.Server
	mux         *http.ServeMux
	store       Store
	engine      *report.Engine
	ingester    Ingester
	maxUpload   int64
	sheetSource GridSource
	sheetRange  string
	rateLimiter *rateLimiter

	// Aggregated views are expensive to rebuild on every map click, so they
	// are cached and purged wholesale on any write.
	inventoryCache *cache.LRUCache[report.InventoryView]
	indicatorCache *cache.LRUCache[report.IndicatorView]
	cacheManager   *cache.Manager

	shutdownOnce sync.Once
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

// startCleanup runs periodic cleanup to remove stale client entries
func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// NewServer configures routes and caches, returning a ready-to-run server.
func NewServer(addr string, store Store, engine *report.Engine, ingester Ingester, maxUpload int64) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		mux:            mux,
		store:          store,
		engine:         engine,
		ingester:       ingester,
		maxUpload:      maxUpload,
		rateLimiter:    newRateLimiter(),
		inventoryCache: cache.NewLRUCache[report.InventoryView](200, 5*time.Minute),
		indicatorCache: cache.NewLRUCache[report.IndicatorView](200, 5*time.Minute),
		cacheManager:   cache.NewManager(),
	}

	s.cacheManager.Register(s.inventoryCache)
	s.cacheManager.Register(s.indicatorCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /api/districts", s.withSecurityHeaders(s.handleDistricts))
	mux.HandleFunc("GET /api/district/{id}", s.withSecurityHeaders(s.handleDistrict))
	mux.HandleFunc("GET /api/district/{id}/data", s.withSecurityHeaders(s.handleInventory))
	mux.HandleFunc("POST /api/district/{id}/data", s.withSecurityHeaders(s.handleCreateIndicator))
	mux.HandleFunc("GET /api/district/{id}/indicators", s.withSecurityHeaders(s.handleIndicators))
	mux.HandleFunc("GET /api/district/{id}/availability", s.withSecurityHeaders(s.handleAvailability))
	mux.HandleFunc("POST /api/upload", s.withSecurityHeaders(s.handleUpload))
	mux.HandleFunc("GET /api/export", s.withSecurityHeaders(s.handleExport))

	return s
}

// EnableSheetSync registers the on-demand pull from the remote spreadsheet
// source. Only called when the deployment has one configured.
func (s *Server) EnableSheetSync(src GridSource, rng string) {
	s.sheetSource = src
	s.sheetRange = rng
	s.mux.HandleFunc("POST /api/sync", s.withSecurityHeaders(s.handleSheetSync))
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, and request logging to responses
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		// Rate limit writes only, reads are cheap and cached.
		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
