package server

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/latticehq/lattice/internal/api/http"
	"github.com/latticehq/lattice/internal/api/middleware"
	"github.com/latticehq/lattice/internal/broker"
	"github.com/latticehq/lattice/internal/caps"
	"github.com/latticehq/lattice/internal/infrastructure/config"
	"github.com/latticehq/lattice/internal/infrastructure/logging"
	"github.com/latticehq/lattice/internal/infrastructure/monitoring"
	"github.com/latticehq/lattice/internal/manifest"
	"github.com/latticehq/lattice/internal/modules"
	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/ws"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router    *gin.Engine
	store     store.Store
	loader    *modules.Loader
	factory   *broker.Factory
	hub       *ws.Hub
	scheduler *caps.Scheduler
	logger    *logging.Logger
	config    *config.Config
	metrics   *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("initializing lattice server",
		zap.String("port", cfg.Server.Port),
		zap.String("store_driver", cfg.Store.Driver),
	)

	metrics := monitoring.NewMetrics()

	st, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	loader := modules.NewLoader(cfg.Modules.Dir, cfg.Modules.CallTimeout).
		WithMetrics(metrics)

	hub := ws.NewHub(logger).WithMetrics(metrics)

	// The factory is wired below; the scheduler's runner closes over it
	// through the pointer so scheduled runs mint fresh bundles.
	var factory *broker.Factory
	runner := func(ctx context.Context, userID, appID, method string, params map[string]interface{}) error {
		sess := store.NewSession(st)
		bundle, err := factory.Create(ctx, sess, userID, appID)
		if err != nil {
			return err
		}
		_, err = bundle.Apps().Get(appID).Query(ctx, method, params)
		return err
	}
	scheduler := caps.NewScheduler(runner, logger).WithMetrics(metrics)

	builders := caps.Builders(caps.Deps{
		Hub:          hub,
		Scheduler:    scheduler,
		AI:           caps.NewAIClient(cfg.AI),
		Integrations: caps.NewIntegrationsClient(cfg.Integrations),
		Files:        cfg.Files,
	})

	factory = broker.NewFactory(loader, builders, logger).WithMetrics(metrics)

	// Seed app descriptors from manifests
	seeder := manifest.NewSeeder(st, cfg.Modules.Dir, logger)
	if err := seeder.Seed(context.Background()); err != nil {
		logger.Warn("manifest seeding failed", zap.Error(err))
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(st, factory, logger)
	wsHandler := ws.NewHandler(hub, logger)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Installation queries
	router.GET("/users/:user_id/apps", handlers.ListInstalled)
	router.GET("/users/:user_id/apps/:app_id", handlers.IsInstalled)

	// Invocation
	router.POST("/users/:user_id/apps/:app_id/invoke", handlers.Invoke)
	router.POST("/users/:user_id/apps/:app_id/proxy/:target_app_id/outputs/:output_id", handlers.ProxyOutput)
	router.POST("/users/:user_id/apps/:app_id/proxy/:target_app_id/query", handlers.ProxyQuery)

	// Dependencies
	router.GET("/apps/:app_id/dependencies", handlers.Dependencies)
	router.GET("/users/:user_id/apps/:app_id/dependencies/status", handlers.DependencyStatus)

	// Notification stream
	router.GET("/ws/:user_id", wsHandler.HandleConnection)

	logger.Info("server initialized")

	return &Server{
		router:    router,
		store:     st,
		loader:    loader,
		factory:   factory,
		hub:       hub,
		scheduler: scheduler,
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
	}, nil
}

// Factory exposes the context factory for platform-internal callers.
func (s *Server) Factory() *broker.Factory {
	return s.factory
}

// Loader exposes the module loader for native app registration.
func (s *Server) Loader() *modules.Loader {
	return s.loader
}

// Run starts the HTTP server
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port)
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close shuts down shared services in dependency order.
func (s *Server) Close() error {
	s.scheduler.Close()
	s.hub.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing store", zap.Error(err))
		return err
	}
	s.logger.Info("server closed")
	_ = s.logger.Sync()
	return nil
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return store.OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
