package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"junction/internal/api"
	"junction/internal/broker"
	"junction/internal/channel"
	"junction/internal/config"
	"junction/internal/constants"
	"junction/internal/forwarder"
	"junction/internal/logger"
	"junction/internal/plugin"
	"junction/internal/router"
	"junction/internal/sender"
	"junction/internal/store"
	"junction/internal/stores"
	"junction/internal/transport"
	"junction/internal/worker"
	"junction/pkg/bootstrap"
	"junction/pkg/health"
	"junction/pkg/logging"
	"junction/pkg/metrics"
	"junction/pkg/middleware"
	"junction/pkg/ratelimit"
	"junction/pkg/tracing"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const serviceName = "junction"

type App struct {
	config         *config.Config
	logger         logger.Logger
	connector      *bootstrap.Connector
	store          store.Store
	broker         broker.Broker
	supervisor     *worker.Supervisor
	plugins        *plugin.Manager
	channels       *channel.Service
	routers        *router.Service
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider

	// stopLimiter ends the rate limiter's cleanup loop.
	stopLimiter context.CancelFunc
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:    cfg,
		logger:    log,
		connector: bootstrap.NewConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.config.Tracing, a.config.Tracing.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterGatewayMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterStoreMetrics()
	metrics.RegisterCircuitBreakerMetrics()
	metrics.RegisterAPIMetrics()

	if err := a.initBackends(ctx); err != nil {
		return fmt.Errorf("failed to initialize backing services: %w", err)
	}

	if err := a.initServices(ctx); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := a.initRouter(ctx); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds,
	}

	return nil
}

func (a *App) initBackends(ctx context.Context) error {
	s, err := a.connector.InitStore(ctx)
	if err != nil {
		return err
	}
	a.store = s

	b, err := a.connector.InitBroker(ctx)
	if err != nil {
		return err
	}
	a.broker = b
	return nil
}

func (a *App) initServices(ctx context.Context) error {
	cfg := a.config

	messages := stores.NewMessageStore(a.store, cfg.Channels.InboundTTL(), cfg.Channels.OutboundTTL())
	rates := stores.NewRateStore(a.store, nil)
	statuses := stores.NewStatusStore(a.store)
	logs := logger.NewWorkerLogs(cfg.Logging.LoggingPath, cfg.Logging.MaxLogs)

	policies, err := router.DefaultRegistry()
	if err != nil {
		return err
	}

	a.supervisor = worker.NewSupervisor(a.logger)
	fwdDeps := forwarder.Deps{
		Broker:   a.broker,
		Messages: messages,
		Rates:    rates,
		Statuses: statuses,
		Poster:   forwarder.NewPoster(),
		Log:      a.logger,
	}
	a.supervisor.RegisterKind(constants.WorkerKindApplication, forwarder.ApplicationFactory(fwdDeps))
	a.supervisor.RegisterKind(constants.WorkerKindStatus, forwarder.StatusFactory(fwdDeps))
	a.supervisor.RegisterKind(constants.WorkerKindRouter, router.WorkerFactory(router.WorkerDeps{
		Broker:   a.broker,
		Messages: messages,
		Policies: policies,
		Logs:     logs,
		Log:      a.logger,
	}))

	transports := transport.DefaultRegistry()
	transports.RegisterWorkers(a.supervisor, transport.Deps{Broker: a.broker, Log: a.logger, Logs: logs})

	a.plugins = plugin.NewManager(a.logger)
	if err := a.plugins.Load(ctx, plugin.DefaultRegistry(), cfg); err != nil {
		return err
	}

	snd := sender.New(a.broker, messages, rates, cfg.Channels.AllowExpiredReplies, a.logger)

	a.channels = channel.NewService(cfg.Channels, channel.Deps{
		Store:      a.store,
		Supervisor: a.supervisor,
		Transports: transports,
		Plugins:    a.plugins,
		Sender:     snd,
		Messages:   messages,
		Rates:      rates,
		Statuses:   statuses,
		Logs:       logs,
		Log:        a.logger,
	})
	a.routers = router.NewService(cfg.Routers, cfg.Channels, router.Deps{
		Store:      a.store,
		Supervisor: a.supervisor,
		Policies:   policies,
		Channels:   a.channels,
		Sender:     snd,
		Messages:   messages,
		Logs:       logs,
		Log:        a.logger,
	})
	a.channels.SetClaims(a.routers)

	// Routers consume channel traffic, so channels come up first.
	if err := a.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start channels: %w", err)
	}
	if err := a.routers.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start routers: %w", err)
	}
	return nil
}

func (a *App) initRouter(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	if a.config.Tracing.Enabled {
		engine.Use(tracing.GinMiddleware(serviceName))
	}

	engine.Use(middleware.RecoveryMiddleware(a.logger))
	engine.Use(middleware.LoggerMiddleware(a.logger))
	engine.Use(middleware.RequestIDMiddleware())

	if a.config.API.RateLimit.Enabled {
		limiterCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.stopLimiter = cancel
		rateLimitConfig := ratelimit.FromConfig(a.config.API.RateLimit)
		engine.Use(ratelimit.RateLimitMiddleware(limiterCtx, rateLimitConfig))
		a.logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	handler := api.NewHandler(a.channels, a.routers, a.logger)
	handler.RegisterRoutes(engine)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewStoreChecker(a.store))
	if a.config.Broker.Type == "amqp" && a.config.Broker.AMQP.ManagementURL != "" {
		healthRegistry.Register(health.NewQueueChecker(a.config.Broker.AMQP))
	}

	engine.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = engine
	return nil
}

func (a *App) Run(ctx context.Context) error {
	ctx = logging.WithServiceName(ctx, serviceName)
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.InfowCtx(ctx, "HTTP server starting", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.WithoutCancel(ctx))
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.stopLimiter != nil {
		a.stopLimiter()
	}

	if a.routers != nil {
		if err := a.routers.StopAll(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("router shutdown error: %w", err))
		}
	}
	if a.channels != nil {
		if err := a.channels.StopAll(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("channel shutdown error: %w", err))
		}
	}
	if a.supervisor != nil {
		if err := a.supervisor.StopAll(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("worker shutdown error: %w", err))
		}
	}
	if a.plugins != nil {
		a.plugins.Stop(shutdownCtx)
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	errs = append(errs, a.connector.Shutdown(shutdownCtx, a.broker, a.store)...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Gateway exited successfully")
	return nil
}
