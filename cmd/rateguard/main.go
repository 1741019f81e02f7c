package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"rateguard/internal/app/commands"
	"rateguard/internal/app/execution"
	proposalapp "rateguard/internal/app/handlers/proposals"
	"rateguard/internal/app/middleware"
	appoutbox "rateguard/internal/app/outbox"
	"rateguard/internal/app/policies"
	"rateguard/internal/app/queries"
	"rateguard/internal/app/uow"
	"rateguard/internal/app/validation"
	"rateguard/internal/infra/broker/kafka"
	"rateguard/internal/infra/config"
	mongostore "rateguard/internal/infra/db/mongo"
	ginserver "rateguard/internal/infra/http/gin"
	"rateguard/internal/infra/inbox"
	"rateguard/internal/infra/lock"
	"rateguard/internal/infra/obs"
	"rateguard/internal/infra/outbox"
	"rateguard/internal/infra/pms"
	"rateguard/internal/infra/pricing"
	"rateguard/internal/infra/storage/memory"
	"rateguard/internal/infra/storage/s3"
)

const eventSource = "app://rateguard"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		obs.NewLogger(os.Getenv("APP_ENV")).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLoggerTo(os.Stdout, cfg.Env, obs.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close(logger)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, app.health, app.handlers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	for _, run := range app.background {
		g.Go(func() error {
			if err := run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("service stopped")
}

type application struct {
	handlers   ginserver.Handlers
	health     obs.HealthHandlers
	background []func(ctx context.Context) error
	closers    []func(ctx context.Context) error
}

func (a *application) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("shutdown step failed", "error", err)
		}
	}
}

// storage is the persistence side chosen by STORAGE_MODE.
type storage struct {
	units       uow.UoWFactory
	outbox      appoutbox.Outbox
	idempotency middleware.IdempotencyStore
	inbox       kafka.Inbox
	queue       outbox.Queue
	memOutbox   *memory.Outbox
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{health: obs.HealthHandlers{Checks: map[string]obs.Check{}}}

	st, err := buildStorage(ctx, cfg, app, logger)
	if err != nil {
		return nil, err
	}

	var producer *kafka.Producer
	if cfg.KafkaEnabled() {
		producer, err = kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func(context.Context) error { return producer.Close() })
	}
	worker := &outbox.Worker{
		Store:       st.queue,
		Interval:    cfg.OutboxPollInterval,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Source:      eventSource,
		Backoff:     cfg.RetryBackoff,
		Logger:      logger,
	}
	if producer != nil {
		worker.Producer = producer
	}
	if st.memOutbox != nil {
		st.memOutbox.Sink = func(ctx context.Context, rec appoutbox.EventRecord) error {
			if worker.Producer == nil {
				logger.DebugContext(ctx, "domain event", "name", rec.Name, "aggregate", rec.Aggregate, "event_id", rec.ID)
				return nil
			}
			return worker.PublishRecord(ctx, rec)
		}
	} else if worker.Producer != nil {
		app.background = append(app.background, worker.Run)
	}

	var pmsPort policies.PMS
	switch cfg.PMSMode {
	case config.PMSHTTP:
		pmsPort = pms.NewClient(cfg.PMSBaseURL, cfg.PMSAPIKey, cfg.PMSTimeout, cfg.PMSRatePerS, logger)
	default:
		logger.Warn("using in-memory PMS; prices are not pushed anywhere")
		pmsPort = pms.NewMemory()
	}

	var locker policies.ExecutionLocker = lock.NewMemory()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		locker = lock.NewRedis(rdb)
		app.health.Checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		app.closers = append(app.closers, func(context.Context) error { return rdb.Close() })
	}

	var receipts policies.ReceiptArchive
	if cfg.S3Endpoint != "" {
		archive, err := s3.NewReceiptArchive(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, logger)
		if err != nil {
			return nil, err
		}
		receipts = archive
		app.health.Checks["s3"] = archive.Ping
	}

	policy := pricing.LoadPolicy(cfg.PolicyFile, cfg.PricingPolicy, logger)
	logger.Info("pricing policy loaded",
		"max_change_pct", policy.MaxChangePct,
		"min_confidence", policy.MinConfidence,
		"listings", len(policy.Listings),
		"auto_approve_low_risk", cfg.AutoApproveLowRisk)

	commandBus := commands.NewInMemoryBus()
	queryBus := queries.NewInMemoryBus()
	proposalapp.Register(commandBus, queryBus, proposalapp.Deps{
		Units:    st.units,
		Guards:   policy,
		Risk:     policy.Risk,
		Approval: policy.Approval(cfg.AutoApproveLowRisk),
		Engine: &execution.Engine{
			Units:     st.units,
			PMS:       pmsPort,
			BatchSize: cfg.PMSBatchSize,
			Logger:    logger,
		},
		Locker:   locker,
		LockTTL:  cfg.ExecutionLockTTL,
		Receipts: receipts,
		Events: proposalapp.Events{
			Outbox:  st.outbox,
			Encoder: appoutbox.JSONEventEncoder{Source: eventSource},
		},
		Logger: logger,
	})

	v := validation.New()
	commandBusWithMiddleware := middleware.ChainCommands(
		commandBus,
		middleware.Logging(logger),
		middleware.Validation(v),
		middleware.Idempotency(st.idempotency, middleware.IdempotencyOptions{TTL: cfg.IdempotencyTTL}),
		middleware.OutboxFlush(st.outbox, logger),
		middleware.Transaction(st.units, nil),
	)
	queryBusWithMiddleware := middleware.ChainQueries(
		queryBus,
		middleware.QueryLogging(logger),
		middleware.QueryValidation(v),
	)

	if producer != nil && cfg.KafkaIntakeTopic != "" {
		intake := kafka.IntakeHandler{Commands: commandBusWithMiddleware, Inbox: st.inbox, Logger: logger}
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, nil, intake, logger)
		if err != nil {
			return nil, err
		}
		consumer.Backoff = cfg.RetryBackoff
		app.closers = append(app.closers, func(context.Context) error { return consumer.Close() })
		app.background = append(app.background, func(ctx context.Context) error {
			logger.Info("intake consumer starting", "topic", cfg.KafkaIntakeTopic, "group", cfg.KafkaGroupID)
			return consumer.Run(ctx, []string{cfg.KafkaIntakeTopic})
		})
	}

	app.handlers = ginserver.Handlers{
		Proposals: ginserver.ProposalHandler{
			Commands:         commandBusWithMiddleware,
			Queries:          queryBusWithMiddleware,
			Logger:           logger,
			ExecutionTimeout: cfg.ExecutionTimeout,
		},
	}
	return app, nil
}

func buildStorage(ctx context.Context, cfg config.Config, app *application, logger *slog.Logger) (storage, error) {
	if cfg.StorageMode != config.StorageMongo {
		box := memory.NewOutbox()
		logger.Info("storage initialized", "mode", config.StorageMemory)
		return storage{
			units:       memory.Factory{Proposals: memory.NewProposalStore(), Outbox: box},
			outbox:      box,
			idempotency: memory.NewIdempotencyStore(),
			inbox:       inbox.NewMemory(),
			memOutbox:   box,
		}, nil
	}

	client, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return storage{}, err
	}
	app.closers = append(app.closers, client.Close)
	app.health.Checks["mongo"] = client.Ping

	proposals := mongostore.NewProposalRepository(client.DB)
	if err := proposals.EnsureIndexes(ctx); err != nil {
		return storage{}, err
	}
	idem, err := mongostore.NewIdempotencyStore(ctx, client.DB)
	if err != nil {
		return storage{}, err
	}
	box, err := outbox.NewStore(ctx, client.DB)
	if err != nil {
		return storage{}, err
	}
	in, err := inbox.NewStore(ctx, client.DB, cfg.KafkaGroupID)
	if err != nil {
		return storage{}, err
	}
	logger.Info("storage initialized", "mode", config.StorageMongo, "db", cfg.MongoDB)
	return storage{
		units:       mongostore.Factory{DB: client.DB, ProposalsRepo: proposals},
		outbox:      box,
		idempotency: idem,
		inbox:       in,
		queue:       box,
	}, nil
}
