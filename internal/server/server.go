// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/tmxauth/internal/circuitbreaker"
	"github.com/mbd888/tmxauth/internal/config"
	"github.com/mbd888/tmxauth/internal/health"
	"github.com/mbd888/tmxauth/internal/idgen"
	"github.com/mbd888/tmxauth/internal/journey"
	"github.com/mbd888/tmxauth/internal/logging"
	"github.com/mbd888/tmxauth/internal/metrics"
	"github.com/mbd888/tmxauth/internal/nodes"
	"github.com/mbd888/tmxauth/internal/ratelimit"
	"github.com/mbd888/tmxauth/internal/retry"
	"github.com/mbd888/tmxauth/internal/security"
	"github.com/mbd888/tmxauth/internal/tmx"
	"github.com/mbd888/tmxauth/internal/validation"
)

// Version is reported by /health.
const Version = "0.1.0"

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	client       nodes.RiskClient
	breaker      *circuitbreaker.Breaker // nil when disabled
	store        *journey.OpenedStore
	engine       *journey.Engine
	health       *health.Registry
	limiter      *ratelimit.Limiter // nil when disabled
	db           *sql.DB            // nil unless DATABASE_URL is set
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc
	drainDelay   time.Duration

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

// WithRiskClient replaces the remote risk service client (for testing)
func WithRiskClient(c nodes.RiskClient) Option {
	return func(s *Server) {
		s.client = c
	}
}

// New creates a new server instance: it opens the attempt store, loads and
// compiles the journeys file, and wires the routes.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		health:     health.NewRegistry(0),
		drainDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open database")
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := retry.Do(ctx, retry.Startup, pingWithTimeout(db.PingContext), s.logRetry("postgres")); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "failed to connect to database")
		}
		s.db = db
		s.logger.Info("connected to postgres", "dsn", maskDSN(cfg.DatabaseURL))
	}

	var store *journey.OpenedStore
	err := retry.Do(ctx, retry.Startup, func(ctx context.Context) error {
		var err error
		store, err = journey.OpenStore(ctx, journey.StoreConfig{
			Type:     journey.StoreType(cfg.AttemptStore),
			DB:       s.db,
			RedisURL: cfg.RedisURL,
		})
		if errors.Is(err, journey.ErrStoreConfig) {
			return retry.Permanent(err)
		}
		return err
	}, s.logRetry("attempt store"))
	if err != nil {
		s.closeDB()
		return nil, err
	}
	s.store = store
	s.logger.Info("attempt store ready", "type", cfg.AttemptStore, "ttl", cfg.AttemptTTL.String())

	if s.client == nil {
		clientOpts := []tmx.Option{tmx.WithTimeout(cfg.TMXTimeout)}
		if cfg.TMXBreakerThreshold > 0 {
			s.breaker = circuitbreaker.New(cfg.TMXBreakerThreshold, cfg.TMXBreakerCooldown)
			s.breaker.OnTransition(func(endpoint string, from, to circuitbreaker.State) {
				s.logger.Warn("risk service circuit changed", "endpoint", endpoint, "from", from.String(), "to", to.String())
			})
			clientOpts = append(clientOpts, tmx.WithBreaker(s.breaker))
		}
		s.client = tmx.NewClient(clientOpts...)
	}

	journeys, err := journey.LoadFile(cfg.JourneysFile, journey.NewFactory(s.client))
	if err != nil {
		s.closeStore()
		return nil, err
	}
	s.engine, err = journey.NewEngine(store.Store, journeys, journey.WithTTL(cfg.AttemptTTL))
	if err != nil {
		s.closeStore()
		return nil, err
	}
	for _, j := range journeys {
		s.logger.Info("journey loaded", "journey", j.Name, "start", j.Start, "nodes", len(j.Nodes()))
	}

	if store.Ping != nil {
		s.health.RegisterPing("attempt_store", store.Ping)
	}

	if rl := (ratelimit.Config{RequestsPerMinute: cfg.RateLimitRPM, Burst: cfg.RateLimitBurst}); rl.Enabled() {
		s.limiter = ratelimit.New(rl)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	// Client IPs drive rate limiting; only listed proxies may set X-Forwarded-For.
	if err := s.router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		s.closeStore()
		return nil, errors.Wrap(err, "invalid TRUSTED_PROXIES")
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// pingWithTimeout bounds each startup ping so a hung connect still retries.
func pingWithTimeout(ping func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return ping(ctx)
	}
}

func (s *Server) logRetry(dependency string) func(int, error, time.Duration) {
	return func(attempt int, err error, wait time.Duration) {
		s.logger.Warn("dependency not reachable, retrying",
			"dependency", dependency,
			"attempt", attempt,
			"retry_in", wait.String(),
			"error", err,
		)
	}
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
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.AllowedOrigins))

	maxBody := s.cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = validation.MaxRequestSize
	}
	s.router.Use(validation.RequestSizeMiddleware(maxBody))

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 128 {
			requestID = idgen.New()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	journeyName := validation.ParamMiddleware("name", validation.IsValidJourneyName,
		"journey name must be lowercase letters, digits, '-' or '_'")
	attemptID := validation.ParamMiddleware("id", validation.IsValidAttemptID,
		"attempt id is malformed")

	var limit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if s.limiter != nil {
		limit = s.limiter.Middleware()
	}

	v1 := s.router.Group("/v1")
	v1.GET("/journeys", s.listJourneys)
	v1.POST("/journeys/:name/attempts", limit, journeyName, s.startAttempt)
	v1.GET("/attempts/:id", attemptID, s.getAttempt)
	v1.POST("/attempts/:id/callbacks", limit, attemptID, s.continueAttempt)
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status       string          `json:"status"`
	Version      string          `json:"version"`
	Checks       []health.Status `json:"checks,omitempty"`
	OpenCircuits []string        `json:"open_circuits,omitempty"`
	Journeys     int             `json:"journeys"`
	Timestamp    string          `json:"timestamp"`
}

// healthHandler reports store health and any risk-service circuits that are
// not closed. An open circuit degrades the status but is not a 503: the
// service still answers and the breaker recovers on its own.
func (s *Server) healthHandler(c *gin.Context) {
	ok, checks := s.health.CheckAll(c.Request.Context())

	resp := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Checks:    checks,
		Journeys:  len(s.engine.Journeys()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if s.breaker != nil {
		resp.OpenCircuits = s.breaker.Open()
	}

	httpStatus := http.StatusOK
	switch {
	case !ok:
		resp.Status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	case len(resp.OpenCircuits) > 0:
		resp.Status = "degraded"
	}
	c.JSON(httpStatus, resp)
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
	if ok, checks := s.health.CheckAll(c.Request.Context()); !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// Continue may wait on the risk service.
		WriteTimeout: s.cfg.TMXTimeout + 20*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "store", s.cfg.AttemptStore)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.startExpiry(runCtx)
	if s.limiter != nil {
		go s.limiter.StartSweeper(runCtx, time.Minute)
	}
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return errors.Wrap(err, "server error")
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// startExpiry runs the store's expiry loop when it needs one. Redis expires
// keys itself.
func (s *Server) startExpiry(ctx context.Context) {
	interval := s.cfg.AttemptTTL / 2
	if interval < time.Second {
		interval = time.Second
	}

	switch st := s.store.Store.(type) {
	case *journey.MemoryStore:
		go st.StartSweeper(ctx, interval)
	case *journey.PostgresStore:
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					n, err := st.DeleteExpired(ctx)
					if err != nil {
						s.logger.Warn("expired attempt cleanup failed", "error", err)
					} else if n > 0 {
						s.logger.Debug("expired attempts deleted", "count", n)
					}
				}
			}
		}()
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(s.drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.closeStore()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) closeStore() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("attempt store close error", "error", err)
		}
		s.store = nil
	}
	s.closeDB()
}

func (s *Server) closeDB() {
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	} else {
		s.logger.Info("database connection closed")
	}
	s.db = nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
