// Package app wires the worker's collaborators into a single Core,
// constructed once at startup and injected everywhere else, per the
// redesign note against module-level singletons.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brightleaf/certforge/internal/bus/amqp"
	"github.com/brightleaf/certforge/internal/certpdf"
	"github.com/brightleaf/certforge/internal/common"
	"github.com/brightleaf/certforge/internal/eventplane"
	"github.com/brightleaf/certforge/internal/gateway"
	"github.com/brightleaf/certforge/internal/orchestrator"
	"github.com/brightleaf/certforge/internal/pipeline"
	"github.com/brightleaf/certforge/internal/storage/redisstore"
	"github.com/brightleaf/certforge/internal/storage/templatecache"
)

// Core holds every initialized collaborator the worker needs: the Job
// Store, Template Cache, File Gateway, message bus, Batch Orchestrator,
// and Event Plane.
type Core struct {
	Config       *common.Config
	Logger       *common.Logger
	Redis        *redis.Client
	Bus          *amqp.Connection
	Store        *redisstore.JobStore
	TemplateLock *redisstore.Lock
	TemplateCache *templatecache.Cache
	Gateway      *gateway.Client
	Publisher    *amqp.Publisher
	Subscriber   *amqp.Subscriber
	Orchestrator *orchestrator.Orchestrator
	Plane        *eventplane.Plane

	StartupTime time.Time
}

// New initializes every collaborator from config and wires them into a
// Core. configPath may be empty, in which case defaults and environment
// overrides apply.
func New(configPath string) (*Core, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Store.Addr,
		Password: config.Store.Password,
		DB:       config.Store.DB,
	})

	store := redisstore.NewJobStore(redisClient, config.Store.Namespace, logger)
	dedupLock := redisstore.NewLock(redisClient, config.Store.Namespace, logger)

	cache, err := templatecache.New(config.Pipeline.TemplateCacheDir, config.Pipeline.GetTemplateCacheTTL(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize template cache: %w", err)
	}
	cache.WithDistLock(dedupLock, config.Gateway.GetDownloadTimeout())

	fileGateway := gateway.NewClient(
		config.Gateway.BaseURL,
		config.Gateway.AccessKey,
		config.Gateway.SecretKey,
		config.Gateway.ProjectID,
		gateway.WithLogger(logger),
		gateway.WithTimeout(config.Gateway.GetUploadTimeout()),
	)

	busConn, err := amqp.Dial(config.Bus.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to message bus: %w", err)
	}
	publisher := amqp.NewPublisher(busConn, logger)
	subscriber := amqp.NewSubscriber(busConn, logger)

	pipelineDeps := pipeline.Dependencies{
		Cache:   cache,
		Gateway: fileGateway,
		Editor:  certpdf.NewDefaultEditor(),
		QR:      certpdf.NewDefaultQRGenerator(),
		Logger:  logger,
	}

	orch := orchestrator.New(store, publisher, pipelineDeps, orchestrator.Config{
		Concurrency: config.Pipeline.GetConcurrency(),
		JobTTL:      config.Store.GetJobTTL(),
		ScratchDir:  config.Pipeline.ScratchDir,
		Source:      config.Bus.Source,
	}, logger)

	plane := eventplane.New(subscriber, publisher, store, orch, logger, config.Bus.Source)

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("core initialized")

	return &Core{
		Config:        config,
		Logger:        logger,
		Redis:         redisClient,
		Bus:           busConn,
		Store:         store,
		TemplateLock:  dedupLock,
		TemplateCache: cache,
		Gateway:       fileGateway,
		Publisher:     publisher,
		Subscriber:    subscriber,
		Orchestrator:  orch,
		Plane:         plane,
		StartupTime:   startupStart,
	}, nil
}

// Run starts the event plane and blocks until ctx is canceled, then stops
// the orchestrator's dispatch loops and waits for in-flight items.
func (c *Core) Run(ctx context.Context) {
	c.Plane.Start(ctx)
	c.Orchestrator.Close()
}

// Close releases every collaborator's resources. Shutdown order: close the
// bus (stops new deliveries), then the store client.
func (c *Core) Close() {
	if c.Bus != nil {
		if err := c.Bus.Close(); err != nil {
			c.Logger.Warn().Err(err).Msg("failed to close message bus connection")
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn().Err(err).Msg("failed to close redis client")
		}
	}
}

// HealthCheck reports whether the bus connection is alive. Used by the
// worker's /healthz endpoint.
func (c *Core) HealthCheck() bool {
	return c.Bus.HealthCheck()
}
