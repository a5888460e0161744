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

	"github.com/mkalala/sokosettle/internal/account"
	"github.com/mkalala/sokosettle/internal/catalog"
	"github.com/mkalala/sokosettle/internal/config"
	"github.com/mkalala/sokosettle/internal/events"
	"github.com/mkalala/sokosettle/internal/freelance"
	"github.com/mkalala/sokosettle/internal/health"
	"github.com/mkalala/sokosettle/internal/logging"
	"github.com/mkalala/sokosettle/internal/loyalty"
	"github.com/mkalala/sokosettle/internal/metrics"
	"github.com/mkalala/sokosettle/internal/order"
	"github.com/mkalala/sokosettle/internal/payment"
	"github.com/mkalala/sokosettle/internal/ratelimit"
	"github.com/mkalala/sokosettle/internal/realtime"
	"github.com/mkalala/sokosettle/internal/revenue"
	"github.com/mkalala/sokosettle/internal/sale"
	"github.com/mkalala/sokosettle/internal/security"
	"github.com/mkalala/sokosettle/internal/traces"
	"github.com/mkalala/sokosettle/internal/validation"
	"github.com/mkalala/sokosettle/internal/wallet"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	accounts    *account.Service
	catalog     *catalog.Catalog
	ledger      *wallet.Ledger
	payments    *payment.Manager
	distributor *revenue.Distributor
	loyalty     *loyalty.Service
	orders      *order.Service
	sales       *sale.Service
	freelance   *freelance.Manager
	bus         *events.Bus
	realtimeHub *realtime.Hub
	rateLimiter *ratelimit.Limiter
	checks      *health.Registry
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger

	tracesShutdown func(context.Context) error
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run

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

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Domain event bus feeds the realtime stream
	s.bus = events.NewBus()
	emitter := events.NewEmitter(s.bus, s.logger)

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		accountStore   account.Store
		catalogStore   catalog.Store
		walletStore    wallet.Store
		paymentStore   payment.Store
		revenueStore   revenue.Store
		loyaltyStore   loyalty.Store
		orderStore     order.Store
		saleStore      sale.Store
		freelanceStore freelance.Store
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		stores := []interface {
			Migrate(ctx context.Context) error
		}{}

		accountPg := account.NewPostgresStore(db)
		catalogPg := catalog.NewPostgresStore(db)
		walletPg := wallet.NewPostgresStore(db)
		paymentPg := payment.NewPostgresStore(db)
		revenuePg := revenue.NewPostgresStore(db)
		loyaltyPg := loyalty.NewPostgresStore(db)
		orderPg := order.NewPostgresStore(db)
		salePg := sale.NewPostgresStore(db)
		freelancePg := freelance.NewPostgresStore(db)

		stores = append(stores, accountPg, catalogPg, walletPg, paymentPg,
			revenuePg, loyaltyPg, orderPg, salePg, freelancePg)
		for _, st := range stores {
			if err := st.Migrate(ctx); err != nil {
				s.logger.Warn("store migration failed", "error", err)
			}
		}

		accountStore = accountPg
		catalogStore = catalogPg
		walletStore = walletPg
		paymentStore = paymentPg
		revenueStore = revenuePg
		loyaltyStore = loyaltyPg
		orderStore = orderPg
		saleStore = salePg
		freelanceStore = freelancePg
	} else {
		s.logger.Info("using in-memory storage (set DATABASE_URL for persistence)")
		accountStore = account.NewMemoryStore()
		catalogStore = catalog.NewMemoryStore()
		walletStore = wallet.NewMemoryStore()
		paymentStore = payment.NewMemoryStore()
		revenueStore = revenue.NewMemoryStore()
		loyaltyStore = loyalty.NewMemoryStore()
		orderStore = order.NewMemoryStore()
		saleStore = sale.NewMemoryStore()
		freelanceStore = freelance.NewMemoryStore()
	}

	// Wire settlement services. The ledger is the leaf; payment sits on
	// top of it; order, sale and freelance orchestrate the rest.
	s.accounts = account.NewService(accountStore)
	s.catalog = catalog.New(catalogStore)
	s.ledger = wallet.New(walletStore)
	s.payments = payment.New(paymentStore, s.ledger, cfg.MobileMoneyPriority).WithEmitter(emitter)
	s.distributor = revenue.New(revenueStore, s.catalog, s.ledger, s.accounts,
		cfg.RepostCommissionBps, cfg.ProfitShareBps)
	s.loyalty = loyalty.New(loyaltyStore).WithEmitter(emitter)
	s.orders = order.New(orderStore, s.catalog, s.accounts, s.payments, s.ledger,
		s.distributor, s.loyalty).WithEmitter(emitter)
	s.sales = sale.New(saleStore, s.catalog, s.accounts, s.payments, s.ledger,
		s.distributor, s.loyalty).WithEmitter(emitter)
	s.freelance = freelance.New(freelanceStore, s.accounts, s.payments, s.ledger,
		cfg.DefaultCommissionPercent).WithEmitter(emitter)

	// Create realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	s.checks = health.NewRegistry()
	s.checks.Register("database", func(ctx context.Context) health.Status {
		if s.db == nil {
			return health.Status{Name: "database", Healthy: true, Detail: "in-memory"}
		}
		if err := s.db.PingContext(ctx); err != nil {
			return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
		}
		return health.Status{Name: "database", Healthy: true}
	})
	s.checks.Register("realtime", func(ctx context.Context) health.Status {
		return health.Status{Name: "realtime", Healthy: s.healthy.Load()}
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

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
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

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
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

	// WebSocket for real-time settlement streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})
	s.router.GET("/ws/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/api/v1")
	// Validate identifier URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.IDParamMiddleware("id", "clientId", "businessId", "accountId", "storeId"))

	account.NewHandlers(s.accounts).RegisterRoutes(v1)
	catalog.NewHandler(s.catalog).RegisterRoutes(v1)
	wallet.NewHandlers(s.ledger).RegisterRoutes(v1)
	payment.NewHandlers(s.payments).RegisterRoutes(v1)
	revenue.NewHandlers(s.distributor).RegisterRoutes(v1)
	loyalty.NewHandlers(s.loyalty).RegisterRoutes(v1)
	order.NewHandlers(s.orders).RegisterRoutes(v1)
	sale.NewHandlers(s.sales).RegisterRoutes(v1)
	freelance.NewHandlers(s.freelance).RegisterRoutes(v1)
}

// -----------------------------------------------------------------------------
// Info & health handlers
// -----------------------------------------------------------------------------

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
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
		"name":        "SokoSettle",
		"description": "Settlement core for marketplace, point-of-sale and freelance commerce",
		"version":     "0.1.0",
		"currency":    "FC",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing (no-op when no OTLP endpoint configured)
	shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.tracesShutdown = shutdown
	}

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
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub, relaying bus events to WebSocket clients
	go s.realtimeHub.Run(runCtx, s.bus)

	// Periodic runtime metrics (db pool stats when Postgres is in use)
	go metrics.CollectRuntime(runCtx, s.db, 15*time.Second)

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

	// Cancel the context for all background goroutines (hub, metrics)
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

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.tracesShutdown != nil {
		if err := s.tracesShutdown(ctx); err != nil {
			s.logger.Error("traces shutdown error", "error", err)
		}
	}

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

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
