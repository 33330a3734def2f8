package di

import (
	"context"
	"fmt"
	"io"
	"time"

	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	"SignalDesk/internal/handler/api"
	internalrepo "SignalDesk/internal/repository"
	"SignalDesk/internal/service/market"
	"SignalDesk/internal/service/pricestream"
	"SignalDesk/internal/service/ratelimit"
	"SignalDesk/internal/services/explainer"
	"SignalDesk/internal/usecase"
	"SignalDesk/pkg/cache"
	pkgch "SignalDesk/pkg/clickhouse"
	"SignalDesk/pkg/config"
	xhttp "SignalDesk/pkg/http"
	pkgkafka "SignalDesk/pkg/kafka"
	"SignalDesk/pkg/logger"
	"SignalDesk/pkg/messaging"
	pkgmetrics "SignalDesk/pkg/metrics"
	"SignalDesk/pkg/queue"
	"SignalDesk/pkg/server"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Stores groups the shared-state adapters selected by store.backend.
type Stores struct {
	Events      domrepo.EventStore
	Snapshots   domrepo.SnapshotStore
	Locker      domrepo.Locker
	RateLimiter domrepo.RateLimiter
	Config      domrepo.RuntimeConfigStore
}

// JobQueue is the explanation job queue, Redis-backed or in process.
type JobQueue interface {
	queue.Publisher
	server.Worker
	RegisterJob(job queue.Job)
}

// ProvideLogger builds the application logger and attaches the error
// collector when it is enabled.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	log, err := logger.New(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: "signaldesk",
		Env:     cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		log.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Log.Collector.Topic,
			Publisher:      producer,
		})
	}
	return log, nil
}

func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) *pkgmetrics.Recorder {
	return pkgmetrics.New(reg)
}

// ProvideRedisClient returns nil when neither the stores nor the queue use Redis.
func ProvideRedisClient(cfg *config.Config) (redis.UniversalClient, error) {
	if cfg.Store.Backend != "redis" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	return client, nil
}

func ProvideStores(cfg *config.Config, client redis.UniversalClient) *Stores {
	rate := internalrepo.RateLimitConfig{Window: cfg.Webhook.RateWindow, Max: cfg.Webhook.RateMax}
	if client == nil {
		return &Stores{
			Events:      internalrepo.NewMemoryEventStore(nil),
			Snapshots:   internalrepo.NewMemorySnapshotStore(),
			Locker:      internalrepo.NewMemoryLocker(nil),
			RateLimiter: internalrepo.NewMemoryRateLimiter(rate),
			Config:      internalrepo.NewMemoryConfigStore(),
		}
	}
	return &Stores{
		Events:      internalrepo.NewRedisEventStore(client),
		Snapshots:   internalrepo.NewRedisSnapshotStore(client),
		Locker:      internalrepo.NewRedisLocker(client),
		RateLimiter: internalrepo.NewRedisRateLimiter(client, rate),
		Config:      internalrepo.NewRedisConfigStore(client),
	}
}

func ProvideConfigHolder(cfg *config.Config, stores *Stores, log *logger.Logger) (*usecase.ConfigHolder, error) {
	runtime, err := cfg.RuntimeConfig()
	if err != nil {
		return nil, err
	}
	return usecase.NewConfigHolder(runtime, stores.Config, log)
}

// ProvideMarketClient returns nil when market data is disabled. The klines
// cache is layered over Redis when it is shared between instances.
func ProvideMarketClient(cfg *config.Config, client redis.UniversalClient, log *logger.Logger) *market.Client {
	if !cfg.Market.Enabled {
		return nil
	}
	var klines cache.Service = cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Market.Cache.MemorySize))
	if cfg.Market.Cache.Shared && client != nil {
		klines = cache.NewLayeredCache(cache.NewRedisCache(client, "signaldesk:klines"),
			cache.WithLayeredMemorySize(cfg.Market.Cache.MemorySize),
			cache.WithLayeredMemoryTTL(market.CacheTTL))
	}
	return market.NewClient(log,
		market.WithBaseURL(cfg.Market.BaseURL),
		market.WithHTTPClient(xhttp.NewClient(xhttp.WithTimeout(cfg.Market.Timeout))),
		market.WithCache(klines),
		market.WithLimiter(ratelimit.New(cfg.Market.RPS, cfg.Market.Burst)),
	)
}

// ProvidePriceStream returns nil when the live price stream is disabled.
func ProvidePriceStream(cfg *config.Config, log *logger.Logger) *pricestream.Client {
	if !cfg.PriceStream.Enabled {
		return nil
	}
	return pricestream.New(pricestream.Config{
		URL:            cfg.PriceStream.URL,
		ReconnectDelay: cfg.PriceStream.ReconnectDelay,
		PingInterval:   cfg.PriceStream.PingInterval,
	}, log)
}

func ProvideExplainer(cfg *config.Config, log *logger.Logger, metrics domrepo.Metrics) service.Explainer {
	return explainer.New(cfg.AI.Provider, explainer.OpenAIConfig{
		APIKey:     cfg.AI.APIKey,
		Model:      cfg.AI.Model,
		BaseURL:    cfg.AI.BaseURL,
		Timeout:    cfg.AI.Timeout,
		MaxRetries: cfg.AI.MaxRetries,
	}, log, metrics)
}

// ProvideKafkaProducer creates a Kafka producer when decisions or the log
// collector are published to Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Producer.Enabled && !cfg.Log.Collector.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithClientID(cfg.Kafka.ClientID),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideNATSConn returns nil when no NATS URL is configured.
func ProvideNATSConn(cfg *config.Config, log *logger.Logger) (*nats.Conn, error) {
	if cfg.NATS.URL == "" {
		return nil, nil
	}
	return messaging.NewNATSConn(messaging.Config{
		URL:           cfg.NATS.URL,
		Name:          cfg.NATS.Name,
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
	}, log)
}

// ProvideClickHouseClient returns nil when the archive is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(cfg.ClickHouse.MaxOpen, cfg.ClickHouse.MaxIdle),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

func ProvideDecisionArchive(cfg *config.Config, ch *pkgch.Client) domrepo.DecisionArchive {
	if ch == nil {
		return internalrepo.NopDecisionArchive{}
	}
	return internalrepo.NewClickHouseDecisionArchive(ch.DB(), cfg.ClickHouse.Table)
}

// ProvideDecisionPublisher fans decision changes out to Kafka and NATS,
// whichever are configured. It returns nil when neither is.
func ProvideDecisionPublisher(cfg *config.Config, producer *pkgkafka.Producer, nc *nats.Conn) domrepo.DecisionPublisher {
	var fan internalrepo.FanoutPublisher
	if producer != nil && cfg.Kafka.Producer.Enabled {
		fan = append(fan, internalrepo.NewKafkaDecisionPublisher(producer, cfg.Kafka.DecisionsTopic))
	}
	if nc != nil {
		fan = append(fan, internalrepo.NewNATSDecisionPublisher(nc, cfg.NATS.SubjectPrefix))
	}
	if len(fan) == 0 {
		return nil
	}
	return fan
}

func ProvideEvaluator(
	stores *Stores,
	holder *usecase.ConfigHolder,
	metrics domrepo.Metrics,
	log *logger.Logger,
	mc *market.Client,
	publisher domrepo.DecisionPublisher,
	archive domrepo.DecisionArchive,
) *usecase.Evaluator {
	opts := []usecase.EvaluatorOption{usecase.WithDecisionArchive(archive)}
	if mc != nil {
		opts = append(opts, usecase.WithMarketData(mc))
	}
	if publisher != nil {
		opts = append(opts, usecase.WithDecisionPublisher(publisher))
	}
	return usecase.NewEvaluator(stores.Events, stores.Snapshots, holder, metrics, log, opts...)
}

func ProvideExplainTier(cfg *config.Config, stores *Stores, ex service.Explainer, metrics domrepo.Metrics, log *logger.Logger) *usecase.ExplainTier {
	return usecase.NewExplainTier(stores.Locker, stores.Snapshots, ex, metrics, log, cfg.Locks.AITTL)
}

func ProvideScheduler(eval *usecase.Evaluator, tier *usecase.ExplainTier, holder *usecase.ConfigHolder, metrics domrepo.Metrics, log *logger.Logger) *usecase.Scheduler {
	return usecase.NewScheduler(eval, tier, holder, metrics, log)
}

// ProvideJobQueue uses the Redis list queue when Redis is available so that
// any instance can run an explanation job.
func ProvideJobQueue(cfg *config.Config, client redis.UniversalClient, tier *usecase.ExplainTier, log *logger.Logger) JobQueue {
	qc := queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	var q JobQueue
	if client != nil {
		q = queue.NewRedisQueue(log, qc, client, queue.WithKeyPrefix(cfg.Queue.Prefix))
	} else {
		q = queue.NewLocalQueue(log, qc, cfg.Queue.Buffer)
	}
	q.RegisterJob(usecase.NewExplainJob(tier))
	return q
}

func ProvideIngestor(
	cfg *config.Config,
	stores *Stores,
	eval *usecase.Evaluator,
	holder *usecase.ConfigHolder,
	metrics domrepo.Metrics,
	log *logger.Logger,
	mc *market.Client,
	jobs JobQueue,
) *usecase.Ingestor {
	opts := []usecase.IngestorOption{
		usecase.WithRateLimiter(stores.RateLimiter),
		usecase.WithExplainJobs(jobs),
	}
	if mc != nil {
		opts = append(opts, usecase.WithFallbackPrices(mc))
	}
	return usecase.NewIngestor(cfg.Webhook.Secret, stores.Events, eval, holder, metrics, log, opts...)
}

// ProvideKafkaConsumer returns nil unless alerts are consumed from Kafka.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

func ProvideKafkaAlertsHandler(cfg *config.Config, ingest *usecase.Ingestor) *usecase.KafkaAlertsHandler {
	return usecase.NewKafkaAlertsHandler(cfg.Kafka.Consumer.AlertsTopic, ingest)
}

func ProvidePriceRelay(cfg *config.Config, stream *pricestream.Client, metrics *pkgmetrics.Recorder, holder *usecase.ConfigHolder, log *logger.Logger) *usecase.PriceRelay {
	if stream == nil {
		return nil
	}
	return usecase.NewPriceRelay(stream, metrics, holder, log, cfg.PriceStream.RelayInterval)
}

func ProvideQueryService(
	stores *Stores,
	holder *usecase.ConfigHolder,
	log *logger.Logger,
	stream *pricestream.Client,
	mc *market.Client,
	sched *usecase.Scheduler,
	archive domrepo.DecisionArchive,
) *usecase.QueryService {
	var (
		ps domrepo.PriceStream
		md service.MarketData
	)
	if stream != nil {
		ps = stream
	}
	if mc != nil {
		md = mc
	}
	return usecase.NewQueryService(stores.Events, stores.Snapshots, holder, log,
		usecase.WithPriceSources(ps, md),
		usecase.WithStatusSources(stores.RateLimiter, sched),
		usecase.WithArchive(archive),
	)
}

func ProvideAdminService(holder *usecase.ConfigHolder, stores *Stores, log *logger.Logger) *usecase.AdminService {
	return usecase.NewAdminService(holder, stores.Events, log)
}

func ProvideHandlers(
	cfg *config.Config,
	log *logger.Logger,
	ingest *usecase.Ingestor,
	query *usecase.QueryService,
	admin *usecase.AdminService,
	relay *usecase.PriceRelay,
) []xhttp.Handler {
	handlers := []xhttp.Handler{
		api.NewWebhookHandler(log, ingest),
		api.NewQueryHandler(log, query),
		api.NewAdminHandler(log, admin, cfg.Admin.Token),
	}
	if relay != nil {
		handlers = append(handlers, api.NewPriceSocketHandler(log, relay))
	}
	return handlers
}

func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, handlers []xhttp.Handler, reg *prometheus.Registry) *xhttp.Server {
	return xhttp.NewServer(log, handlers,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithRegistry(reg),
	)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// ProvideApp creates the application server. Clients are closed in reverse
// order of their dependencies.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	httpServer *xhttp.Server,
	holder *usecase.ConfigHolder,
	sched *usecase.Scheduler,
	jobs JobQueue,
	relay *usecase.PriceRelay,
	consumer *pkgkafka.Consumer,
	alerts *usecase.KafkaAlertsHandler,
	archive domrepo.DecisionArchive,
	mc *market.Client,
	producer *pkgkafka.Producer,
	nc *nats.Conn,
	ch *pkgch.Client,
	client redis.UniversalClient,
) *server.App {
	opts := []server.Option{
		server.WithArchive(archive),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	}
	if relay != nil {
		opts = append(opts, server.WithPriceRelay(relay))
	}
	if consumer != nil {
		opts = append(opts, server.WithAlertConsumer(consumer, alerts))
	}

	var closers []io.Closer
	if mc != nil {
		closers = append(closers, mc)
	}
	if ch != nil {
		closers = append(closers, ch)
	}
	if nc != nil {
		closers = append(closers, closerFunc(func() error { nc.Close(); return nil }))
	}
	if producer != nil {
		closers = append(closers, closerFunc(func() error {
			log.RemoveCollector()
			return producer.Close()
		}))
	}
	if client != nil {
		closers = append(closers, client)
	}
	opts = append(opts, server.WithClosers(closers...))

	return server.New(log, httpServer, holder, sched, jobs, opts...)
}

// Oneshot is the evaluator assembled for a single CLI evaluation.
type Oneshot struct {
	Config    *usecase.ConfigHolder
	Evaluator *usecase.Evaluator
	closers   []io.Closer
}

func ProvideOneshot(
	holder *usecase.ConfigHolder,
	eval *usecase.Evaluator,
	mc *market.Client,
	producer *pkgkafka.Producer,
	nc *nats.Conn,
	ch *pkgch.Client,
	client redis.UniversalClient,
) *Oneshot {
	o := &Oneshot{Config: holder, Evaluator: eval}
	if mc != nil {
		o.closers = append(o.closers, mc)
	}
	if ch != nil {
		o.closers = append(o.closers, ch)
	}
	if nc != nil {
		o.closers = append(o.closers, closerFunc(func() error { nc.Close(); return nil }))
	}
	if producer != nil {
		o.closers = append(o.closers, producer)
	}
	if client != nil {
		o.closers = append(o.closers, client)
	}
	return o
}

func (o *Oneshot) Close() {
	for _, c := range o.closers {
		_ = c.Close()
	}
}
