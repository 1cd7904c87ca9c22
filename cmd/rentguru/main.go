package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/newrelic/go-agent/v3/newrelic"

	"rentguru/internal/app/commands"
	bookingapp "rentguru/internal/app/handlers/booking"
	"rentguru/internal/app/handlers/negotiation"
	"rentguru/internal/app/middleware"
	appoutbox "rentguru/internal/app/outbox"
	"rentguru/internal/app/policies"
	"rentguru/internal/app/queries"
	"rentguru/internal/app/uow"
	"rentguru/internal/domain/chat"
	"rentguru/internal/infra/broker/kafka"
	"rentguru/internal/infra/config"
	mongostore "rentguru/internal/infra/db/mongo"
	"rentguru/internal/infra/db/scylla"
	ginserver "rentguru/internal/infra/http/gin"
	"rentguru/internal/infra/inbox"
	"rentguru/internal/infra/jobs"
	"rentguru/internal/infra/notify"
	"rentguru/internal/infra/obs"
	infraoutbox "rentguru/internal/infra/outbox"
	"rentguru/internal/infra/payment/tinkoff"
	redisinfra "rentguru/internal/infra/redis"
	"rentguru/internal/infra/security"
	"rentguru/internal/infra/storage/memory"
	"rentguru/internal/infra/storage/s3"
	"rentguru/internal/infra/translate"
)

const (
	serviceName     = "rentguru"
	shutdownTimeout = 10 * time.Second
	devJWTSecret    = "rentguru-dev-secret"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	logger := obs.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("rentguru stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	var closers []func(context.Context) error
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](shutdownCtx); err != nil {
				logger.Warn("shutdown step failed", "error", err)
			}
		}
	}()
	onClose := func(fn func(context.Context) error) { closers = append(closers, fn) }

	backend, err := openStorage(ctx, cfg, logger, onClose)
	if err != nil {
		return err
	}
	checks := backend.checks

	directory := notify.NewStaticDirectory()
	fixturesPath := cfg.FixturesPath
	if fixturesPath == "" {
		fixturesPath = defaultFixturesPath()
	}
	if err := loadFixtures(ctx, fixturesPath, backend.seeder, directory, logger); err != nil {
		logger.Warn("fixtures load failed", "error", err, "path", fixturesPath)
	}

	rt, err := openRealtime(ctx, cfg, logger, onClose)
	if err != nil {
		return err
	}
	checks = append(checks, rt.checks...)

	messages, err := openMessageStore(ctx, cfg, logger, onClose)
	if err != nil {
		return err
	}

	var attachments policies.AttachmentStore
	if cfg.S3Endpoint != "" {
		store, err := s3.NewAttachments(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicEndpoint, logger)
		if err != nil {
			return fmt.Errorf("s3 attachments: %w", err)
		}
		attachments = store
		checks = append(checks, obs.Check{Name: "s3", Probe: store.Ready})
	} else {
		logger.Info("S3_ENDPOINT not set, attachments disabled")
	}

	translator, err := openTranslator(ctx, cfg, rt.translationCache, logger, onClose)
	if err != nil {
		return err
	}

	notifier, err := openNotifier(ctx, cfg, directory, logger)
	if err != nil {
		return err
	}

	gateway, err := openGateway(cfg, logger)
	if err != nil {
		return err
	}

	tokens, err := openTokens(cfg, logger)
	if err != nil {
		return err
	}

	cmdBus := commands.NewInMemoryBus()
	queryBus := queries.NewInMemoryBus()
	commandBus := middleware.ChainCommands(
		cmdBus,
		middleware.Logging(logger),
		middleware.Authorization(middleware.RequireActor{}),
		middleware.Validation(middleware.SelfValidator{}),
		middleware.Idempotency(backend.idempotency, nil, bookingapp.ErrorCodec{}),
		middleware.Hooks(),
		middleware.Transaction(backend.factory, nil),
		middleware.OutboxFlush(backend.outbox),
	)
	queryBusWithMiddleware := middleware.ChainQueries(
		queryBus,
		middleware.QueryAuthorization(middleware.RequireActor{}),
		middleware.QueryValidation(middleware.SelfValidator{}),
	)

	svc := &negotiation.Service{
		UoWFactory:  backend.factory,
		Messages:    messages,
		Presence:    rt.presence,
		Broadcaster: rt.broadcaster,
		Translator:  translator,
		Attachments: attachments,
		Notifier:    notifier,
		Locker:      rt.locker,
		Commands:    commandBus,
		Logger:      logger.With("component", "negotiation"),
		Now:         time.Now,
		NewID:       uuid.NewString,
	}
	onClose(func(context.Context) error {
		svc.Wait()
		return nil
	})
	engine := &bookingapp.Engine{
		UoWFactory:   backend.factory,
		Gateway:      gateway,
		Notifier:     notifier,
		Locker:       rt.locker,
		Messages:     messages,
		Publisher:    svc,
		Outbox:       backend.outbox,
		Encoder:      appoutbox.JSONEventEncoder{IDGenerator: uuid.NewString},
		Logger:       logger.With("component", "booking"),
		RefundWindow: cfg.RefundWindow,
		Now:          time.Now,
		NewID:        uuid.NewString,
	}
	bookingapp.Register(cmdBus, queryBus, engine)

	scheduler := jobs.NewScheduler(logger)
	reconciler := &bookingapp.Reconciler{Engine: engine, After: cfg.ReconcileAfter}
	if err := scheduler.Register(jobs.ReconcileJob(cfg.ReconcileSchedule, reconciler, logger)); err != nil {
		return err
	}
	if backend.relay != nil {
		if err := scheduler.Register(jobs.PurgeOutboxJob(cfg.OutboxPurgeCron, backend.relay, cfg.OutboxRetention, logger)); err != nil {
			return err
		}
	}
	scheduler.Start()
	onClose(func(ctx context.Context) error {
		scheduler.Stop(ctx)
		return nil
	})

	if err := startRelay(ctx, cfg, backend.relay, logger, onClose); err != nil {
		return err
	}

	apm := openAPM(cfg, logger, onClose)

	handlers := ginserver.Handlers{
		Requests:      ginserver.RequestHandler{Commands: commandBus, Queries: queryBusWithMiddleware, Logger: logger},
		Trips:         ginserver.TripHandler{Commands: commandBus, Queries: queryBusWithMiddleware, Logger: logger},
		Accounts:      ginserver.AccountHandler{Commands: commandBus, Logger: logger},
		Availability:  ginserver.AvailabilityHandler{Queries: queryBusWithMiddleware, Logger: logger},
		Conversations: ginserver.ConversationHandler{Commands: commandBus, Queries: queryBusWithMiddleware, Logger: logger},
		Webhook: ginserver.WebhookHandler{
			Commands: commandBus,
			Password: cfg.GatewayPassword,
			Inbox:    backend.inbox,
			Logger:   logger,
		},
		Channel: ginserver.ChannelHandler{
			Service:  svc,
			Verifier: tokens,
			Upgrader: websocket.Upgrader{
				ReadBufferSize:  4096,
				WriteBufferSize: 4096,
				CheckOrigin:     func(*http.Request) bool { return true },
			},
			Logger: logger,
		},
		AuthMiddleware: ginserver.AuthMiddleware{Verifier: tokens, Logger: logger}.Handle,
	}
	server := ginserver.NewServer(ginserver.ServerConfig{
		Env:  cfg.Env,
		Addr: cfg.HTTPAddr,
		APM:  apm,
	}, obs.Middleware{Logger: logger}, obs.HealthHandlers{Checks: checks}, handlers)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "store", cfg.Store)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}

type storage struct {
	factory     uow.UoWFactory
	idempotency middleware.IdempotencyStore
	outbox      appoutbox.Outbox
	inbox       ginserver.Inbox
	seeder      seeder
	// relay is the queue drained to Kafka; nil with the memory store.
	relay  *infraoutbox.Store
	checks []obs.Check
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger, onClose func(func(context.Context) error)) (storage, error) {
	if cfg.Store != config.StoreMongo {
		logger.Warn("using in-memory store; data is lost on restart")
		store := memory.NewStore()
		return storage{
			factory:     memory.NewFactory(store),
			idempotency: memory.NewIdempotencyStore(cfg.IdempotencyTTL),
			outbox:      memory.NewOutbox(),
			inbox:       inbox.NewMemory(),
			seeder:      memorySeeder{store: store},
		}, nil
	}

	client, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return storage{}, fmt.Errorf("mongo: %w", err)
	}
	onClose(client.Close)
	if err := mongostore.EnsureIndexes(ctx, client.DB); err != nil {
		return storage{}, fmt.Errorf("mongo indexes: %w", err)
	}
	idem, err := mongostore.NewIdempotencyStore(ctx, client.DB, cfg.IdempotencyTTL)
	if err != nil {
		return storage{}, err
	}
	box, err := infraoutbox.NewStore(ctx, client.DB)
	if err != nil {
		return storage{}, err
	}
	webhookInbox, err := inbox.NewStore(ctx, client.DB, "payments_webhook")
	if err != nil {
		return storage{}, err
	}
	return storage{
		factory:     mongostore.Factory{DB: client.DB},
		idempotency: idem,
		outbox:      box,
		inbox:       webhookInbox,
		seeder:      mongostore.Seeder{DB: client.DB},
		relay:       box,
		checks:      []obs.Check{{Name: "mongo", Probe: client.Ping}},
	}, nil
}

type realtime struct {
	presence         policies.Presence
	broadcaster      policies.Broadcaster
	locker           policies.Locker
	translationCache translate.Cache
	checks           []obs.Check
}

func openRealtime(ctx context.Context, cfg config.Config, logger *slog.Logger, onClose func(func(context.Context) error)) (realtime, error) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, presence and fan-out stay in this process")
		return realtime{
			presence:         memory.NewPresence(),
			broadcaster:      memory.NewBroadcaster(),
			locker:           memory.NewLocker(),
			translationCache: translate.NewMemoryCache(),
		}, nil
	}
	client, err := redisinfra.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return realtime{}, fmt.Errorf("redis: %w", err)
	}
	onClose(func(context.Context) error { return client.Close() })
	return realtime{
		presence:         redisinfra.NewPresence(client),
		broadcaster:      redisinfra.NewBroadcaster(client, logger),
		locker:           redisinfra.NewLocker(client, cfg.LockTTL),
		translationCache: redisinfra.NewTranslationCache(client),
		checks: []obs.Check{{Name: "redis", Probe: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}}},
	}, nil
}

func openMessageStore(ctx context.Context, cfg config.Config, logger *slog.Logger, onClose func(func(context.Context) error)) (chat.MessageStore, error) {
	if len(cfg.ScyllaHosts) == 0 {
		logger.Info("SCYLLA_HOSTS not set, message log kept in memory")
		return memory.NewMessageStore(), nil
	}
	session, err := scylla.NewSession(ctx, scylla.Config{
		Hosts:       cfg.ScyllaHosts,
		Keyspace:    cfg.ScyllaKeyspace,
		Consistency: cfg.ScyllaConsistency,
		Timeout:     cfg.ScyllaTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("scylla: %w", err)
	}
	onClose(func(context.Context) error {
		session.Close()
		return nil
	})
	return scylla.NewStore(session, logger), nil
}

func openTranslator(ctx context.Context, cfg config.Config, cache translate.Cache, logger *slog.Logger, onClose func(func(context.Context) error)) (policies.Translator, error) {
	if cfg.GeminiAPIKey == "" {
		logger.Info("GEMINI_API_KEY not set, messages are not translated")
		return nil, nil
	}
	gemini, err := translate.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	onClose(func(context.Context) error { return gemini.Close() })
	return &translate.Cached{Next: gemini, Cache: cache, TTL: cfg.TranslationCacheTTL, Logger: logger}, nil
}

func openNotifier(ctx context.Context, cfg config.Config, dir *notify.StaticDirectory, logger *slog.Logger) (policies.Notifier, error) {
	sinks := notify.Fanout{notify.Log{Logger: logger}}
	if cfg.SendgridAPIKey != "" {
		sinks = append(sinks, notify.NewEmail(cfg.SendgridAPIKey, cfg.SendgridFrom, cfg.PublicBaseURL, dir))
	}
	if cfg.FirebaseProjectID != "" {
		push, err := notify.NewPush(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentials, dir)
		if err != nil {
			return nil, fmt.Errorf("firebase: %w", err)
		}
		sinks = append(sinks, push)
	}
	return sinks, nil
}

func openGateway(cfg config.Config, logger *slog.Logger) (policies.PaymentGateway, error) {
	if cfg.GatewayEnabled() {
		return tinkoff.New(tinkoff.Config{
			BaseURL:         cfg.GatewayURL,
			TerminalKey:     cfg.GatewayTerminalKey,
			Password:        cfg.GatewayPassword,
			SuccessURL:      cfg.GatewaySuccessURL,
			FailURL:         cfg.GatewayFailURL,
			NotificationURL: cfg.GatewayNotificationURL,
		}, logger), nil
	}
	if !isDevEnv(cfg.Env) {
		return nil, errors.New("GATEWAY_TERMINAL_KEY and GATEWAY_PASSWORD are required outside dev")
	}
	logger.Warn("payment gateway not configured, charges are simulated")
	return memory.NewGateway(), nil
}

func openTokens(cfg config.Config, logger *slog.Logger) (*security.TokenManager, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		logger.Warn("JWT_SECRET not set, using the development secret")
		secret = devJWTSecret
	}
	return security.NewTokenManager(secret)
}

func startRelay(ctx context.Context, cfg config.Config, queue *infraoutbox.Store, logger *slog.Logger, onClose func(func(context.Context) error)) error {
	if queue == nil || len(cfg.KafkaBrokers) == 0 {
		logger.Info("outbox relay disabled", "kafka_brokers", len(cfg.KafkaBrokers), "durable_outbox", queue != nil)
		return nil
	}
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, serviceName)
	if err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	worker := &infraoutbox.Worker{
		Queue:       queue,
		Producer:    producer,
		Interval:    cfg.OutboxPollInterval,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Source:      serviceName,
		Backoff:     cfg.RetryBackoff,
		Logger:      logger.With("component", "outbox"),
	}
	relayCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := worker.Run(relayCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("outbox relay stopped", "error", err)
		}
	}()
	onClose(func(context.Context) error {
		cancel()
		<-done
		return producer.Close()
	})
	return nil
}

func openAPM(cfg config.Config, logger *slog.Logger, onClose func(func(context.Context) error)) *newrelic.Application {
	if cfg.NewRelicLicenseKey == "" {
		return nil
	}
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(serviceName),
		newrelic.ConfigLicense(cfg.NewRelicLicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		logger.Warn("newrelic disabled", "error", err)
		return nil
	}
	onClose(func(ctx context.Context) error {
		timeout := shutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		app.Shutdown(timeout)
		return nil
	})
	return app
}

func isDevEnv(env string) bool {
	return env == "dev" || env == "local" || env == "test"
}
