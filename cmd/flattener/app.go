package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"flattener/internal/config"
	"flattener/internal/config_handler"
	"flattener/internal/constants"
	"flattener/internal/logger"
	"flattener/internal/management"
	"flattener/internal/stage"
	"flattener/pkg/bootstrap"
	"flattener/pkg/health"
	"flattener/pkg/logging"
	"flattener/pkg/metrics"
	"flattener/pkg/middleware"
	"flattener/pkg/models"
	"flattener/pkg/ratelimit"
	"flattener/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redis          *redis.Client
	mongoClient    *mongo.Client
	mongoDB        *mongo.Database
	service        *stage.Service
	tracerProvider *tracing.TracerProvider
	server         *http.Server
	instanceID     string
	done           chan struct{}
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		instanceID:  instanceID(),
		done:        make(chan struct{}),
	}
}

func instanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}

func (a *App) Initialize(ctx context.Context) error {
	metrics.RegisterTransformMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterDatabaseMetrics()
	metrics.RegisterManagementMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	tp, err := tracing.Init(a.Config.Tracing, tracing.StageInfo{
		ServiceName: constants.ServiceName,
		InstanceID:  a.instanceID,
		Stage:       a.Config.Transform.Stage,
		Source:      a.Config.Transform.Source,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.initService(ctx); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	if err := a.InitBroker(constants.ServiceName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.InitConfigConsumer(constants.ServiceName, a.instanceID); err != nil {
		a.Logger.WarnwCtx(ctx, "Config event consumer unavailable, event-driven reload disabled",
			"error", err,
		)
	}

	a.initHTTPServer()
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := a.dbConnector.InitPostgreSQL(initCtx)
	if err != nil {
		return err
	}
	a.db = db

	rdb, err := a.dbConnector.InitRedis(initCtx)
	if err != nil {
		return err
	}
	a.redis = rdb

	client, mdb, err := a.dbConnector.InitMongoDB(initCtx)
	if err != nil {
		return err
	}
	a.mongoClient, a.mongoDB = client, mdb
	return nil
}

// initService builds the stage and loads its initial config. The stage must
// know its field name before it consumes anything.
func (a *App) initService(ctx context.Context) error {
	repo, err := stage.NewRepository(a.Config.Transform.Source, stage.Stores{
		Postgres: a.db,
		Redis:    a.redis,
		MongoDB:  a.mongoDB,
	})
	if err != nil {
		return err
	}

	svc, err := stage.NewService(a.Config.Transform, repo, a.Logger)
	if err != nil {
		return err
	}

	if err := svc.ReloadConfig(ctx, true); err != nil {
		return fmt.Errorf("failed to load transform config: %w", err)
	}
	if svc.FieldName() == "" {
		return fmt.Errorf("transform for stage %q has no field name", svc.Stage())
	}

	a.service = svc
	return nil
}

func (a *App) initHTTPServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName, "/health", "/metrics"))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())

	healthRegistry := a.healthRegistry()
	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	management.RegisterDocs(router)

	if a.Config.Management.Enabled {
		api := router.Group("/")
		if rl := a.Config.Management.RateLimit; rl.Enabled {
			api.Use(ratelimit.RateLimitMiddleware(ratelimit.RateLimitConfig{
				RPS:             rl.RPS,
				Burst:           rl.Burst,
				CleanupInterval: time.Duration(rl.CleanupInterval) * time.Second,
				MaxAge:          time.Duration(rl.MaxAge) * time.Second,
			}, a.done))
			a.Logger.Infow("Rate limiting enabled", "rps", rl.RPS, "burst", rl.Burst)
		}

		events := management.NewConfigEventProducer(a.Producer, a.Config.Broker.Kafka.ConfigUpdateTopic)
		management.NewHandler(a.service, events, a.Logger).RegisterRoutes(api)
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(a.Config.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(a.Config.Server.WriteTimeoutSeconds) * time.Second,
	}
}

func (a *App) healthRegistry() *health.CheckerRegistry {
	registry := health.NewCheckerRegistry()
	registry.Register(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers))
	if a.db != nil {
		registry.Register(health.NewPostgreSQLChecker(a.db))
	}
	if a.redis != nil {
		registry.Register(health.NewRedisChecker(a.redis))
	}
	if a.mongoClient != nil {
		registry.Register(health.NewMongoDBChecker(a.mongoClient))
	}
	registry.Register(health.NewFuncChecker("transform", func(ctx context.Context) error {
		if a.service.FieldName() == "" {
			return fmt.Errorf("transform is not configured")
		}
		return nil
	}))
	return registry
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if a.ConfigConsumer != nil {
		configEvents := config_handler.NewHandler(
			models.EventTypeTransformConfigUpdated,
			models.ServiceTypeFlattener,
			a.service.Stage(),
			a.Logger,
		).WithReloader(a.service).WithUpdater(a.service)

		configTopic := a.Config.Broker.Kafka.ConfigUpdateTopic
		g.Go(func() error {
			configCtx := logging.WithServiceName(gCtx, constants.ServiceName)
			a.Logger.InfowCtx(configCtx, "Starting config update event consumer", "topic", configTopic)
			return a.ConfigConsumer.Consume(gCtx, configTopic, configEvents.HandleConfigUpdateEvent)
		})
	}

	g.Go(func() error {
		return a.service.StartReloader(gCtx)
	})

	handler := stage.NewRecordHandler(a.service, a.Producer, a.Config.Broker.Kafka.OutputTopic, a.Logger)
	inputTopic := a.Config.Broker.Kafka.InputTopic
	g.Go(func() error {
		a.Logger.InfowCtx(gCtx, "Starting record consumer",
			"input_topic", inputTopic,
			"output_topic", a.Config.Broker.Kafka.OutputTopic,
			"field_name", a.service.FieldName(),
		)
		return a.Consumer.Consume(gCtx, inputTopic, handler.Handle)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down flattener stage")

	select {
	case <-a.done:
	default:
		close(a.done)
	}

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.service != nil {
			if err := a.service.Close(); err != nil {
				errs = append(errs, fmt.Errorf("stage close error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.db, a.mongoClient)...)
		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
