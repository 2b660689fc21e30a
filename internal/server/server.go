// Package server wires the verification funnel and reviewer console into
// one HTTP server.
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
	"github.com/redis/go-redis/v9"

	"github.com/scamshield/scamshield/internal/ai"
	"github.com/scamshield/scamshield/internal/alerts"
	"github.com/scamshield/scamshield/internal/config"
	"github.com/scamshield/scamshield/internal/health"
	"github.com/scamshield/scamshield/internal/logging"
	"github.com/scamshield/scamshield/internal/metrics"
	"github.com/scamshield/scamshield/internal/notify"
	"github.com/scamshield/scamshield/internal/quiz"
	"github.com/scamshield/scamshield/internal/ratelimit"
	"github.com/scamshield/scamshield/internal/realtime"
	"github.com/scamshield/scamshield/internal/risk"
	"github.com/scamshield/scamshield/internal/security"
	"github.com/scamshield/scamshield/internal/session"
	"github.com/scamshield/scamshield/internal/traces"
	"github.com/scamshield/scamshield/internal/validation"
	"github.com/scamshield/scamshield/internal/velocity"
	"github.com/scamshield/scamshield/internal/watchlist"
	"github.com/scamshield/scamshield/internal/workflow"
)

// Server wraps the HTTP server and all funnel dependencies.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	sessions   session.Store
	states     workflow.Store
	engine     *workflow.Engine
	quizzes    *quiz.Engine
	alertSvc   *alerts.Service
	watchlist  watchlist.Store
	janitor    *session.Janitor
	hub        *realtime.Hub
	limiter    *ratelimit.Limiter
	healthReg  *health.Registry
	shutdownTr func(context.Context) error

	db      *sql.DB       // nil when running on memory stores
	rdb     *redis.Client // nil when running without Redis
	router  *gin.Engine
	httpSrv *http.Server

	cancelRunCtx context.CancelFunc

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a server, selecting Postgres-backed or in-memory stores and
// Redis-backed or in-memory velocity/watchlist state from configuration.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()
	s.healthReg = health.NewRegistry()

	var (
		riskStore  risk.Store
		quizStore  quiz.Store
		alertStore alerts.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		sessionStore := session.NewPostgresStore(db)
		stateStore := workflow.NewPostgresStore(db)
		rs := risk.NewPostgresStore(db)
		qs := quiz.NewPostgresStore(db)
		as := alerts.NewPostgresStore(db)
		for name, m := range map[string]interface {
			Migrate(context.Context) error
		}{
			"sessions": sessionStore,
			"workflow": stateStore,
			"risk":     rs,
			"quiz":     qs,
			"alerts":   as,
		} {
			if err := m.Migrate(ctx); err != nil {
				s.logger.Warn("store migration failed", "store", name, "error", err)
			}
		}
		s.sessions = sessionStore
		s.states = stateStore
		riskStore, quizStore, alertStore = rs, qs, as

		s.healthReg.Register("postgres", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Healthy: false, Detail: err.Error()}
			}
			return health.Status{Healthy: true}
		})
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		s.sessions = session.NewMemoryStore()
		s.states = workflow.NewMemoryStore()
		riskStore = risk.NewMemoryStore()
		quizStore = quiz.NewMemoryStore()
		alertStore = alerts.NewMemoryStore()
	}

	// Velocity window and watchlist ride on Redis when available so rule
	// signals survive restarts and are shared across replicas.
	velocityCfg := velocity.DefaultConfig()
	var window risk.VelocityWindow
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		s.rdb = redis.NewClient(redisOpts)
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		window = velocity.NewRedisWindow(s.rdb, velocityCfg)
		s.watchlist = watchlist.NewRedisStore(s.rdb)
		s.logger.Info("using Redis velocity window and watchlist")

		s.healthReg.Register("redis", func(ctx context.Context) health.Status {
			if err := s.rdb.Ping(ctx).Err(); err != nil {
				return health.Status{Healthy: false, Detail: err.Error()}
			}
			return health.Status{Healthy: true}
		})
	} else {
		window = velocity.NewMemoryWindow(velocityCfg)
		s.watchlist = watchlist.NewMemoryStore()
		s.logger.Info("using in-memory velocity window and watchlist")
	}

	policy := risk.Policy{
		WarnThreshold:      cfg.WarnThreshold,
		HoldThreshold:      cfg.HoldThreshold,
		WarnCooloffMinutes: cfg.WarnCooloffMinutes,
		HoldCooloffMinutes: cfg.HoldCooloffMinutes,
	}

	// The remote scoring model is preferred when configured; the local rule
	// scorer is both the default and the semantics the remote one mirrors.
	var scorer risk.Scorer
	if cfg.ScorerURL != "" {
		scorer = risk.NewRemoteScorer(cfg.ScorerURL, cfg.ScoreTimeout, policy).WithStore(riskStore)
		s.logger.Info("using remote risk scorer", "url", cfg.ScorerURL)
	} else {
		scorer = risk.NewRuleScorer(policy).
			WithCoP(risk.NewCoPChecker()).
			WithWatchlist(s.watchlist).
			WithVelocity(window).
			WithStore(riskStore)
		s.logger.Info("using local rule scorer")
	}

	s.hub = realtime.NewHub(s.logger)

	notifier := notify.NewEmitter(cfg.NotifyURL, s.logger)
	s.alertSvc = alerts.NewService(alertStore, s.logger).
		WithBroadcaster(s.hub).
		WithNotifier(notifier)

	s.quizzes = quiz.NewEngine(quizStore, s.logger)
	var advisor *ai.Client
	if cfg.AIGatewayURL != "" {
		advisor = ai.NewClient(cfg.AIGatewayURL, cfg.AITimeout, s.logger)
		s.quizzes = s.quizzes.WithIssuer(advisor).WithScorer(advisor)
		s.logger.Info("AI gateway enabled", "url", cfg.AIGatewayURL)
	}

	s.engine = workflow.NewEngine(s.sessions, s.states, scorer, policy, s.logger).
		WithQuiz(s.quizzes).
		WithAlerts(s.alertSvc).
		WithAdvisor(advisor).
		WithNotifier(notifier).
		WithScoreTimeout(cfg.ScoreTimeout)

	s.janitor = session.NewJanitor(s.sessions, cfg.SessionTTL, s.logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// maskDSN hides the password in a connection string for logging.
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
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.limiter = ratelimit.New(limiterCfg)
	s.router.Use(s.limiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
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
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

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

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Reviewer console (the human side of the funnel)
	s.router.GET("/", consoleHandler)

	// WebSocket feed for the console
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	s.router.GET("/api", s.infoHandler)

	v1 := s.router.Group("/v1")

	workflowHandler := workflow.NewHandler(s.engine)
	workflowHandler.RegisterRoutes(v1, s.limiter.PerTransaction("id"))

	alertHandler := alerts.NewHandler(s.alertSvc)
	alertHandler.RegisterRoutes(v1)

	watchlistHandler := watchlist.NewHandler(s.watchlist)
	watchlistHandler.RegisterRoutes(v1)

	v1.GET("/feed/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.hub.Stats())
	})
}

// HealthResponse for health check endpoints.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.healthReg.CheckAll(ctx)

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
		"name":        "ScamShield",
		"description": "Risk-adaptive payment verification",
		"version":     "0.1.0",
	})
}

// Run starts the HTTP server with graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("tracing disabled", "error", err)
	} else {
		s.shutdownTr = shutdownTraces
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.hub.Run(runCtx)
	go s.janitor.Start(runCtx)

	if s.db != nil {
		go metrics.CollectDBStats(runCtx, s.db, 15*time.Second)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

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

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.janitor.Stop()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.shutdownTr != nil {
		if err := s.shutdownTr(ctx); err != nil {
			s.logger.Warn("trace exporter shutdown error", "error", err)
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}
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

// Router returns the gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
