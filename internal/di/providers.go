package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"InsiderSignals/internal/domain/models"
	domrepo "InsiderSignals/internal/domain/repository"
	"InsiderSignals/internal/handler/api"
	"InsiderSignals/internal/handler/ws"
	mid "InsiderSignals/internal/middleware"
	internalrepo "InsiderSignals/internal/repository"
	"InsiderSignals/internal/scheduler"
	"InsiderSignals/internal/service/ratelimit"
	"InsiderSignals/internal/services/marketdata"
	"InsiderSignals/internal/usecase"
	pkgcache "InsiderSignals/pkg/cache"
	pkgch "InsiderSignals/pkg/clickhouse"
	"InsiderSignals/pkg/config"
	pkgkafka "InsiderSignals/pkg/kafka"
	applogger "InsiderSignals/pkg/logger"
	"InsiderSignals/pkg/metrics"
	pkgpg "InsiderSignals/pkg/postgres"
	"InsiderSignals/pkg/queue"
	"InsiderSignals/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideKafkaProducer creates a Kafka producer. Returns nil when Kafka is disabled.
// Aggregated error logs are shipped through the same producer when collection is on.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	if cfg.Log.Collect.Enabled {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collect.Interval,
			CountThreshold: cfg.Log.Collect.Threshold,
			Topic:          cfg.Log.Collect.Topic,
			Publisher:      internalrepo.NewKafkaLogPublisher(producer),
			IncludeWarn:    cfg.Log.Collect.IncludeWarn,
		})
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the trades consumer. Returns nil when consuming is off.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.Offset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRedisCache connects to Redis. Returns nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, 2, 5*time.Second),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideCache returns the shared cache: Redis when configured, otherwise in-process.
// The store lock lives here too, so multi-instance deployments need Redis.
func ProvideCache(rc *pkgcache.RedisCache) pkgcache.Service {
	if rc != nil {
		return rc
	}
	return pkgcache.NewMemoryCache(
		pkgcache.WithMemoryMaxSize(10000),
		pkgcache.WithMemoryCleanup(time.Minute),
	)
}

// ProvideStore opens the trade and signal store selected by store.backend.
func ProvideStore(cfg *config.Config, l *applogger.Logger) (domrepo.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return internalrepo.NewMemoryStore(), nil
	case "postgres":
		client, err := pkgpg.NewClient(
			pkgpg.WithDSN(cfg.Postgres.DSN),
			pkgpg.WithPool(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns, cfg.Postgres.ConnMaxLifetime, cfg.Postgres.ConnMaxIdleTime),
			pkgpg.WithLogLevel(cfg.Postgres.LogLevel),
		)
		if err != nil {
			return nil, fmt.Errorf("postgres client: %w", err)
		}
		store := internalrepo.NewGormStore(client)
		store.SetLogger(l)
		if cfg.Postgres.AutoMigrate {
			if err := store.Migrate(); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("postgres migrate: %w", err)
			}
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// ProvideStoreLock guards the trade store between ingestion and generation.
func ProvideStoreLock(cfg *config.Config, c pkgcache.Service) *usecase.StoreLock {
	return usecase.NewStoreLock(c, cfg.Ingest.LockTTL, cfg.Ingest.LockWait)
}

// ProvideRunConfig builds the default run configuration from the engine section.
func ProvideRunConfig(cfg *config.Config) (models.RunConfig, error) {
	return usecase.RunConfigFromEngine(cfg.Engine)
}

// ProvideClickHouseClient creates a ClickHouse client. Returns nil when the archive is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithCreateDatabase(true),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.ArchiveSchema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideArchive wraps the ClickHouse client. Returns nil without a client.
func ProvideArchive(ch *pkgch.Client, l *applogger.Logger) *internalrepo.CHArchive {
	if ch == nil {
		return nil
	}
	a := internalrepo.NewCHArchive(ch)
	a.SetLogger(l)
	return a
}

// ProvideEventPublisher publishes committed runs to the signals topic.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) *internalrepo.KafkaEventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.SignalsTopic)
}

// ProvideHub creates the WebSocket hub for live signal updates.
func ProvideHub(l *applogger.Logger) *ws.Hub {
	return ws.NewHub(l)
}

// ProvideResolver creates the market data resolver. Profiles go through a
// layered cache when Redis is available.
func ProvideResolver(cfg *config.Config, rc *pkgcache.RedisCache, c pkgcache.Service, l *applogger.Logger) *marketdata.FinnhubResolver {
	if !cfg.MarketData.Enabled {
		return nil
	}
	r := marketdata.NewFinnhubResolver(cfg.MarketData.BaseURL, cfg.MarketData.APIKey, cfg.MarketData.Timeout)
	if rc != nil {
		r.SetCache(pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredMemorySize(2000)), cfg.MarketData.CacheTTL)
	} else {
		r.SetCache(c, cfg.MarketData.CacheTTL)
	}
	r.SetLogger(l)
	return r
}

// ProvideGenerateSignals creates the generation use case with its sinks.
func ProvideGenerateSignals(
	store domrepo.Store,
	lock *usecase.StoreLock,
	m domrepo.Metrics,
	c pkgcache.Service,
	l *applogger.Logger,
	resolver *marketdata.FinnhubResolver,
	pub *internalrepo.KafkaEventPublisher,
	archive *internalrepo.CHArchive,
	hub *ws.Hub,
) *usecase.GenerateSignals {
	g := usecase.NewGenerateSignals(store, lock, m)
	g.SetLogger(l)
	g.SetCache(c)
	g.SetNotifier(hub)
	// typed nils must not reach the interface setters
	if resolver != nil {
		g.SetResolver(resolver)
	}
	if pub != nil {
		g.SetPublisher(pub)
	}
	if archive != nil {
		g.SetArchive(archive)
	}
	return g
}

// ProvideIngestTrades creates the ingestion use case.
func ProvideIngestTrades(
	store domrepo.Store,
	lock *usecase.StoreLock,
	m domrepo.Metrics,
	archive *internalrepo.CHArchive,
	l *applogger.Logger,
) *usecase.IngestTrades {
	ing := usecase.NewIngestTrades(store, lock, m)
	ing.SetLogger(l)
	if archive != nil {
		ing.SetArchive(archive)
	}
	return ing
}

// ProvideSignalQuery creates the read side used by the API.
func ProvideSignalQuery(cfg *config.Config, store domrepo.Store, base models.RunConfig, c pkgcache.Service, l *applogger.Logger) *usecase.SignalQuery {
	q := usecase.NewSignalQuery(store, base)
	q.SetCache(c, cfg.API.SignalsCacheTTL)
	q.SetLogger(l)
	return q
}

// ProvideIngestPipeline groups streamed trades into store batches. Handlers
// block until their batch is stored, so offsets trail persistence.
func ProvideIngestPipeline(cfg *config.Config, ing *usecase.IngestTrades, m domrepo.Metrics, l *applogger.Logger) *mid.IngestPipeline {
	return mid.NewIngestPipeline(ing, m,
		mid.WithBatchSize(cfg.Ingest.BatchSize),
		mid.WithFlushInterval(cfg.Ingest.FlushInterval),
		mid.WithFlushAttempts(cfg.Ingest.FlushAttempts),
		mid.WithBufferSize(cfg.Ingest.BufferSize),
		mid.WithLogger(l),
	)
}

// ProvideKafkaTradesHandler decodes trade batches from the trades topic.
func ProvideKafkaTradesHandler(cfg *config.Config, pipe *mid.IngestPipeline, m domrepo.Metrics) *usecase.KafkaTradesHandler {
	return usecase.NewKafkaTradesHandler(cfg.Kafka.TradesTopic, pipe, m)
}

// ProvideQueue creates the Redis job queue for generation requests. Returns nil when disabled.
// queue.mode splits API instances that only enqueue from workers that only run jobs.
func ProvideQueue(cfg *config.Config, rc *pkgcache.RedisCache, gen *usecase.GenerateSignals, base models.RunConfig, l *applogger.Logger) (*queue.RedisQueue, error) {
	if !cfg.Queue.Enabled {
		return nil, nil
	}
	if rc == nil {
		return nil, fmt.Errorf("queue: redis must be enabled")
	}
	qcfg := &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.QueueSize,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	prefix := queue.WithKeyPrefix(cfg.Redis.Prefix + ":queue")
	jobs := []queue.Job{usecase.NewGenerateSignalsJob(gen, base)}

	switch cfg.Queue.Mode {
	case "producer":
		return queue.NewRedisPublisher(l, rc.Client(), prefix), nil
	case "consumer":
		return queue.NewRedisConsumer(l, qcfg, rc.Client(), jobs, prefix), nil
	default:
		q := queue.NewRedisQueue(l, qcfg, rc.Client(), queue.ModeProducerConsumer, prefix)
		q.RegisterJobs(jobs)
		return q, nil
	}
}

// ProvideRateLimiter limits synchronous generation requests per client.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.API.GenerateLimit.Capacity, cfg.API.GenerateLimit.RefillPerSec)
}

// ProvideSignalsHandler creates the REST handler and its health checks.
func ProvideSignalsHandler(
	l *applogger.Logger,
	query *usecase.SignalQuery,
	gen *usecase.GenerateSignals,
	ing *usecase.IngestTrades,
	rl *ratelimit.Limiter,
	q *queue.RedisQueue,
	store domrepo.Store,
	rc *pkgcache.RedisCache,
	archive *internalrepo.CHArchive,
) *api.SignalsEchoHandler {
	h := api.NewSignalsEchoHandler(l, query, gen, ing, rl)
	if q != nil {
		h.SetQueue(q)
	}
	h.AddHealthCheck("store", store.Health)
	if rc != nil {
		h.AddHealthCheck("redis", func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		})
	}
	if archive != nil {
		h.AddHealthCheck("clickhouse", archive.Health)
	}
	return h
}

// ProvideDailyDigest creates the digest sent to the signals topic and the
// WebSocket hub.
func ProvideDailyDigest(cfg *config.Config, q *usecase.SignalQuery, pub *internalrepo.KafkaEventPublisher, hub *ws.Hub, m domrepo.Metrics, l *applogger.Logger) *usecase.DailyDigest {
	d := usecase.NewDailyDigest(q, cfg.Scheduler.DigestTopN, m)
	d.SetLogger(l)
	d.AddPublisher("websocket", hub)
	if pub != nil {
		d.AddPublisher("kafka", pub)
	}
	return d
}

// ProvideScheduler creates the cron-driven generation and digest jobs.
// Returns nil when disabled.
func ProvideScheduler(cfg *config.Config, gen *usecase.GenerateSignals, digest *usecase.DailyDigest, base models.RunConfig, l *applogger.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.Enabled {
		return nil, nil
	}
	s, err := scheduler.New(gen, base, cfg.Scheduler.GenerateCron, cfg.Scheduler.JobTimeout, l)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	if spec := strings.TrimSpace(cfg.Scheduler.DigestCron); spec != "" {
		if err := s.AddDigest(spec, digest); err != nil {
			return nil, fmt.Errorf("scheduler: %w", err)
		}
	}
	return s, nil
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler *api.SignalsEchoHandler,
	hub *ws.Hub,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTradesHandler,
	pipe *mid.IngestPipeline,
	q *queue.RedisQueue,
	sched *scheduler.Scheduler,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	store domrepo.Store,
	c pkgcache.Service,
	rl *ratelimit.Limiter,
	m domrepo.Metrics,
) *server.App {
	app := server.New(cfg, l, store, c)
	app.SetHandlers(handler, hub)
	if consumer != nil {
		consumer.WithConsumerHook(usecase.NewTradesConsumerHook(m, l))
		app.SetConsumer(consumer, kh, pipe)
	}
	if q != nil {
		app.SetQueue(q)
	}
	if sched != nil {
		app.SetScheduler(sched)
	}
	if producer != nil {
		app.AddCloser("kafka producer", producer.Close)
	}
	if ch != nil {
		app.AddCloser("clickhouse", ch.Close)
	}
	app.SetLimiter(rl)
	return app
}
