// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/nbelghith/authwatch/internal/audit"
	"github.com/nbelghith/authwatch/internal/chainlog"
	"github.com/nbelghith/authwatch/internal/circuitbreaker"
	"github.com/nbelghith/authwatch/internal/classifier"
	"github.com/nbelghith/authwatch/internal/config"
	"github.com/nbelghith/authwatch/internal/events"
	"github.com/nbelghith/authwatch/internal/health"
	"github.com/nbelghith/authwatch/internal/logging"
	"github.com/nbelghith/authwatch/internal/login"
	"github.com/nbelghith/authwatch/internal/metrics"
	"github.com/nbelghith/authwatch/internal/ratelimit"
	"github.com/nbelghith/authwatch/internal/realtime"
	"github.com/nbelghith/authwatch/internal/security"
	"github.com/nbelghith/authwatch/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	eventStore   events.Store
	auditStore   audit.Store
	creds        login.CredentialStore
	ledger       *chainlog.Client
	cls          login.Classifier
	sink         *audit.Sink
	reconciler   *audit.Reconciler
	orch         *login.Orchestrator
	handler      *login.Handler
	realtimeHub  *realtime.Hub
	healthReg    *health.Registry
	rateLimiter  *ratelimit.Limiter
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithClassifier sets a custom classifier (for testing)
func WithClassifier(c login.Classifier) Option {
	return func(s *Server) {
		s.cls = c
	}
}

// WithLedger sets a custom ledger client (for testing)
func WithLedger(l *chainlog.Client) Option {
	return func(s *Server) {
		s.ledger = l
	}
}

// WithCredentials sets a custom credential store (for testing)
func WithCredentials(c login.CredentialStore) Option {
	return func(s *Server) {
		s.creds = c
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set classifier/ledger/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		eventStore := events.NewPostgresStore(db)
		if err := eventStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate event store", "error", err)
		}
		s.eventStore = eventStore

		auditStore := audit.NewPostgresStore(db)
		if err := auditStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate audit store", "error", err)
		}
		s.auditStore = auditStore

		if s.creds == nil {
			credStore := login.NewPostgresCredentials(db)
			if err := credStore.Migrate(ctx); err != nil {
				s.logger.Warn("failed to migrate credential store", "error", err)
			}
			s.creds = credStore
		}
	} else {
		s.eventStore = events.NewMemoryStore()
		s.auditStore = audit.NewMemoryStore()
		if s.creds == nil {
			s.creds = login.DemoCredentials()
			s.logger.Info("using demo credential set")
		}
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Ledger client. Partial configuration disables anchoring instead of
	// failing startup.
	if s.ledger == nil {
		ledger, err := chainlog.New(chainlog.Config{
			RPCURL:          cfg.RPCURL,
			PrivateKey:      cfg.PrivateKey,
			ChainID:         cfg.ChainID,
			ContractAddress: cfg.ContractAddress,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create ledger client: %w", err)
		}
		s.ledger = ledger
	}
	if s.ledger.Enabled() {
		s.logger.Info("ledger anchoring enabled",
			"contract", cfg.ContractAddress,
			"chain_id", cfg.ChainID,
		)
	} else {
		s.logger.Info("ledger anchoring disabled (incomplete configuration)")
	}

	// Classifier client
	if s.cls == nil {
		s.cls = classifier.NewClient(classifier.Config{
			URL:     cfg.ClassifierURL,
			Timeout: cfg.ClassifierTimeout,
		})
		s.logger.Info("classifier client configured", "url", cfg.ClassifierURL)
	}

	// Audit sink and anchor reconciler
	s.sink = audit.NewSink(s.eventStore, s.auditStore, s.ledger)
	s.reconciler = audit.NewReconciler(s.auditStore, s.ledger, s.logger)

	// Realtime hub for WebSocket verdict streaming
	s.realtimeHub = realtime.NewHub(s.logger)

	// Login pipeline
	s.orch = login.NewOrchestrator(s.eventStore, s.creds, s.cls, s.sink).
		WithNotifier(&hubNotifier{s.realtimeHub})
	s.handler = login.NewHandler(s.orch, s.eventStore, s.auditStore)

	// Health checks
	s.healthReg = health.NewRegistry()
	if s.db != nil {
		db := s.db
		s.healthReg.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}
	if cls, ok := s.cls.(*classifier.Client); ok {
		s.healthReg.Register("classifier", func(ctx context.Context) health.Status {
			// Fail-open keeps the service up; an open circuit is degraded,
			// not down.
			if cls.CircuitState() == circuitbreaker.StateOpen {
				return health.Status{Name: "classifier", Healthy: false, Detail: "circuit open"}
			}
			return health.Status{Name: "classifier", Healthy: true}
		})
	}
	s.healthReg.Register("ledger", func(ctx context.Context) health.Status {
		// Disabled anchoring is a valid deployment, not an unhealthy one.
		if !s.ledger.Enabled() {
			return health.Status{Name: "ledger", Healthy: true, Detail: "disabled"}
		}
		return health.Status{Name: "ledger", Healthy: true, Detail: "enabled"}
	})

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(security.CORSMiddleware(origins))

	// Request size limit
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limitCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		limitCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(limitCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time verdict streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	v1.POST("/login", s.handler.HandleLogin)
	v1.POST("/simulate/bruteforce", s.handler.SimulateBruteForce)
	v1.GET("/events", s.handler.ListEvents)
	v1.GET("/audit", s.handler.ListAuditRecords)
	v1.GET("/realtime/stats", s.realtimeStatsHandler)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, checks := s.healthReg.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Authwatch",
		"description": "Login risk evaluation with classifier-backed verdicts",
		"version":     "0.1.0",
		"ledger":      s.ledger.Enabled(),
	})
}

func (s *Server) realtimeStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.realtimeHub.Stats())
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start anchor reconciler (re-submits ledger anchors that failed inline)
	if s.reconciler != nil {
		go s.reconciler.Start(runCtx)
	}

	// Sample DB pool stats into Prometheus gauges
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, reconciler)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop anchor reconciler
	if s.reconciler != nil {
		s.reconciler.Stop()
		s.logger.Info("anchor reconciler stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close ledger RPC connection
	s.ledger.Close()

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// hubNotifier streams evaluated verdicts to WebSocket subscribers.
type hubNotifier struct {
	hub *realtime.Hub
}

func (n *hubNotifier) VerdictRecorded(ev *events.LoginEvent, result *login.Result) {
	n.hub.BroadcastVerdict(map[string]interface{}{
		"eventId":     ev.ID,
		"identity":    ev.Identity,
		"origin":      ev.Origin,
		"riskCode":    string(result.RiskCode),
		"disposition": string(result.Disposition),
	})

	if result.Rule.Triggered {
		n.hub.BroadcastRuleTrigger(map[string]interface{}{
			"eventId":  ev.ID,
			"identity": ev.Identity,
			"origin":   ev.Origin,
			"score":    result.Rule.Score,
			"factors":  result.Rule.Factors,
		})
	}

	if result.AuditRecord != nil && result.AuditRecord.LedgerTx != "" {
		n.hub.BroadcastLedgerAnchor(map[string]interface{}{
			"eventId":     ev.ID,
			"identity":    ev.Identity,
			"auditId":     result.AuditRecord.ID,
			"ledgerTx":    result.AuditRecord.LedgerTx,
			"contentHash": result.AuditRecord.ContentHash,
		})
	}
}
