package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	// Platform packages
	"github.com/rentwatch/golang_services/internal/platform/cache"
	"github.com/rentwatch/golang_services/internal/platform/config"
	"github.com/rentwatch/golang_services/internal/platform/database"
	"github.com/rentwatch/golang_services/internal/platform/logger"
	"github.com/rentwatch/golang_services/internal/platform/messagebroker"
	"github.com/rentwatch/golang_services/internal/platform/paramstore"

	tglistener "github.com/rentwatch/golang_services/internal/conversation_service/adapters/telegram"
	convapp "github.com/rentwatch/golang_services/internal/conversation_service/app"
	"github.com/rentwatch/golang_services/internal/listing_service/provider"
	notifyapp "github.com/rentwatch/golang_services/internal/notification_service/app"
	"github.com/rentwatch/golang_services/internal/notification_service/messenger"
	"github.com/rentwatch/golang_services/internal/scheduler_service/adapters/broker"
	grpcadapter "github.com/rentwatch/golang_services/internal/scheduler_service/adapters/grpc"
	httpadapter "github.com/rentwatch/golang_services/internal/scheduler_service/adapters/http"
	schedapp "github.com/rentwatch/golang_services/internal/scheduler_service/app"
	searchapp "github.com/rentwatch/golang_services/internal/search_service/app"
	"github.com/rentwatch/golang_services/internal/search_service/domain"
	"github.com/rentwatch/golang_services/internal/search_service/repository/memory"
	"github.com/rentwatch/golang_services/internal/search_service/repository/postgres"
)

const (
	serviceName     = "rentwatch"
	memoryDSN       = "memory"
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 15 * time.Second
	healthInterval  = 15 * time.Second
)

type storage struct {
	users    domain.UserRepository
	searches domain.SearchRepository
	sent     domain.SentListingRepository
	// db is nil in memory mode
	db    interface{ Ping(context.Context) error }
	close func()
}

func main() {
	if len(os.Args) == 3 && os.Args[1] == "hash-password" {
		hash, err := httpadapter.HashPassword(os.Args[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.NewWithWriter(cfg.LogLevel, cfg.LogFormat, os.Stdout).With("service", serviceName)
	slog.SetDefault(log)
	log.Info("Starting service...")

	mainCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(mainCtx, cfg, log); err != nil {
		log.Error("Service stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Service shutdown complete.")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	startCtx, cancelStart := context.WithTimeout(ctx, startupTimeout)
	defer cancelStart()

	if cfg.NeedsParamStore() {
		store, err := paramstore.NewFromDefaultConfig(startCtx, cfg.AWSRegion)
		if err != nil {
			return err
		}
		if err := cfg.ResolveSecrets(startCtx, store); err != nil {
			return err
		}
		log.Info("Secrets resolved from Parameter Store")
	}
	if cfg.TelegramBotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}

	st, err := openStorage(startCtx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	registry := searchapp.NewSearchRegistry(st.searches, st.users, log)
	ledger := searchapp.NewDedupLedger(st.sent, log)

	fetcher, err := newFetcher(cfg, log)
	if err != nil {
		return err
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	bot.Debug = cfg.TelegramDebug
	log.Info("Telegram bot authorized", "username", bot.Self.UserName)

	channel := messenger.NewTelegramChannel(bot, log)
	dispatcher := notifyapp.NewDispatcher(channel, cfg.DispatchDelay, log)
	pipeline := schedapp.NewPipeline(fetcher, registry, ledger, dispatcher, cfg.SchedulerFetchTimeout, log)

	var lock schedapp.PassLock
	if cfg.RedisAddr != "" {
		rdb, err := cache.ConnectRedis(startCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			return err
		}
		defer func(c *redis.Client) {
			if err := cache.DisconnectRedis(c); err != nil {
				log.Warn("Failed to close Redis", "error", err)
			}
		}(rdb)
		lock = schedapp.NewRedisPassLock(rdb, schedapp.DefaultPassLockKey, cfg.SchedulerPassLockTTL, log)
	}

	var (
		natsClient *messagebroker.NATSClient
		publisher  schedapp.SummaryPublisher
	)
	if cfg.NATSUrl != "" {
		natsClient, err = messagebroker.NewNATSClient(cfg.NATSUrl, serviceName, log)
		if err != nil {
			return err
		}
		defer natsClient.Close()
		publisher = broker.NewSummaryPublisher(natsClient, cfg.NATSPassSubject)
	}

	scheduler := schedapp.NewScheduler(pipeline, registry, lock, publisher, schedapp.Config{
		Interval:     cfg.SchedulerInterval,
		InitialDelay: cfg.SchedulerInitialDelay,
	}, log)
	defer scheduler.Close()

	engine := convapp.NewEngine(registry, ledger, pipeline, channel, convapp.Config{
		Districts:     cfg.Districts,
		IdleTTL:       cfg.SessionIdleTTL,
		MailboxSize:   cfg.SessionMailboxSize,
		CheckInterval: cfg.SchedulerInterval,
		CheckTimeout:  cfg.SchedulerFetchTimeout + time.Minute,
	}, log)
	defer engine.Close()

	listener := tglistener.NewListener(bot, engine, channel, time.Duration(cfg.TelegramPollTimeout)*time.Second, log)

	if natsClient != nil {
		if _, err := broker.SubscribeTrigger(ctx, natsClient, cfg.NATSTriggerSubject, scheduler, log); err != nil {
			return err
		}
	}

	validate := validator.New()
	adminHandler := httpadapter.NewAdminHandler(scheduler, registry, st.db, log, validate)
	tokens := httpadapter.NewTokenIssuer(cfg.AdminJWTSecret, cfg.AdminPasswordHash, cfg.AdminTokenTTL, log, validate)
	adminServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AdminHTTPPort),
		Handler:           httpadapter.NewRouter(adminHandler, tokens, cfg.AdminJWTSecret, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer, healthReporter := grpcadapter.NewHealthServer(st.db, healthInterval, log)

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.Run(groupCtx)
	})

	g.Go(func() error {
		return listener.Run(groupCtx)
	})

	g.Go(func() error {
		healthReporter.Run(groupCtx)
		return nil
	})

	g.Go(func() error {
		log.Info("Starting admin HTTP server...", "address", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.GRPCHealthPort)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen for gRPC: %w", err)
		}
		log.Info("Starting gRPC health server...", "address", addr)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		log.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("Admin HTTP server shutdown failed", "error", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	log.Info("Service components initialized and workers started. Service is ready.")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (*storage, error) {
	if cfg.PostgresDSN == memoryDSN {
		log.Warn("Using in-memory storage; searches and the sent ledger are lost on restart")
		store := memory.NewStore()
		return &storage{
			users:    store.Users(),
			searches: store.Searches(),
			sent:     store.SentListings(),
			close:    func() {},
		}, nil
	}

	pool, err := database.NewDBPool(ctx, cfg.PostgresDSN, database.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	log.Info("Database connection pool initialized")
	return &storage{
		users:    postgres.NewPgUserRepository(pool, log),
		searches: postgres.NewPgSearchRepository(pool, log),
		sent:     postgres.NewPgSentListingRepository(pool, log),
		db:       pool,
		close:    pool.Close,
	}, nil
}

func newFetcher(cfg *config.Config, log *slog.Logger) (provider.Fetcher, error) {
	if cfg.ListingProvider == "mock" {
		log.Warn("Using the mock listing provider")
		return provider.NewMockFetcher(log, provider.DemoCatalogue(), 0), nil
	}
	if cfg.ApifyAPIKey == "" {
		return nil, errors.New("APIFY_API_KEY is required for the apify listing provider")
	}
	return provider.NewApifyProvider(log, provider.ApifyConfig{
		BaseURL:      cfg.ApifyBaseURL,
		ActorID:      cfg.ApifyActorID,
		APIKey:       cfg.ApifyAPIKey,
		LocationID:   cfg.ApifyLocationID,
		MaxItems:     cfg.ApifyMaxItems,
		ActorTimeout: cfg.ApifyActorTimeout,
	}, nil), nil
}
