package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"custody-vault/config"
	"custody-vault/internal/adapter/custody"
	httpHandler "custody-vault/internal/adapter/http/handler"
	kafkaBus "custody-vault/internal/adapter/messaging/kafka"
	"custody-vault/internal/adapter/oracle"
	memStorage "custody-vault/internal/adapter/storage/memory"
	pgStorage "custody-vault/internal/adapter/storage/postgres"
	redisStorage "custody-vault/internal/adapter/storage/redis"
	"custody-vault/internal/core/ports"
	"custody-vault/internal/service"
	"custody-vault/pkg/fixedpoint"
	"custody-vault/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const eventDrainTimeout = 15 * time.Second

// repositories is one storage backend's set of adapters.
type repositories struct {
	assets     ports.AssetRepository
	balances   ports.BalanceRepository
	totals     ports.TotalsRepository
	events     ports.EventRepository
	audits     ports.AuditRepository
	transactor ports.DBTransactor
	health     ports.HealthChecker
	close      func()
}

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("VAULT_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Msg("Starting Custody Vault")

	// Open "enc:" sealed secrets
	var box *service.SecretBox
	if cfg.Secrets.Key != "" {
		box, err = service.NewSecretBox(cfg.Secrets.Key)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize secret box")
		}
	}
	if err := service.RevealSecrets(box,
		&cfg.JWT.Secret,
		&cfg.Database.Password,
		&cfg.Redis.Password,
		&cfg.Custody.APISecret,
		&cfg.Events.WebhookSecret,
	); err != nil {
		log.Fatal().Err(err).Msg("Failed to open sealed config secrets")
	}
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret is required")
	}

	params, err := cfg.Vault.Parse()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid vault configuration")
	}

	ctx := context.Background()

	// Storage
	repos, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer repos.close()
	healthCheckers := []ports.HealthChecker{repos.health}

	// Price feed and custody gateway
	feed, err := newPriceFeed(cfg.Oracle)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize price feed")
	}
	sigSvc := service.NewHMACSignatureService()
	gateway, err := newTransferGateway(cfg.Custody, sigSvc)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize custody gateway")
	}

	// Redis: rate limiting, idempotency, event pub/sub
	var (
		rateLimitStore *redisStorage.RateLimitStore
		idempotency    ports.IdempotencyCache
		publishers     []ports.EventPublisher
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		idempotency = redisStorage.NewIdempotencyCache(rdb)
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
		if cfg.Events.RedisChannel != "" {
			publishers = append(publishers, redisStorage.NewEventPublisher(rdb, cfg.Events.RedisChannel))
		}
	} else {
		log.Warn().Msg("Redis disabled: rate limiting and Idempotency-Key replay are off")
	}

	eventsLog := logger.Component(log, "events")
	var kafkaPublisher *kafkaBus.EventPublisher
	if len(cfg.Events.KafkaBrokers) > 0 {
		kafkaPublisher = kafkaBus.NewEventPublisher(
			kafkaBus.NewWriter(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, eventsLog),
		)
		publishers = append(publishers, kafkaPublisher)
		log.Info().Strs("brokers", cfg.Events.KafkaBrokers).Str("topic", cfg.Events.KafkaTopic).Msg("Kafka event publisher enabled")
	}

	if cfg.Events.WebhookURL != "" {
		publishers = append(publishers, service.NewWebhookPublisher(
			cfg.Events.WebhookURL,
			cfg.Events.WebhookSecret,
			sigSvc,
			&http.Client{Timeout: 10 * time.Second},
			eventsLog,
		))
		log.Info().Str("url", cfg.Events.WebhookURL).Msg("Webhook event publisher enabled")
	}

	dispatcher := service.NewEventDispatcher(eventsLog, publishers...)

	// Core services
	registry := service.NewAssetRegistry(repos.assets)
	valuation := service.NewValuation(service.NewPriceOracle(feed, cfg.Oracle.MaxStaleness))
	ledger := service.NewLedger(repos.balances, repos.totals, params.BankCapUSD)
	vaultSvc := service.NewVaultService(
		service.VaultParams{
			BankCapUSD:               params.BankCapUSD,
			WithdrawLimitPerTxNative: params.WithdrawLimitPerTxNative,
			NativeOracle:             params.NativeOracle,
		},
		registry,
		valuation,
		ledger,
		repos.events,
		gateway,
		service.NewStaticAdminPolicy(params.Admins),
		repos.transactor,
		dispatcher,
		logger.Component(log, "vault"),
	)
	if err := vaultSvc.Bootstrap(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to register the native asset")
	}

	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	auditSvc := service.NewAuditService(repos.audits, logger.Component(log, "audit"))

	gin.SetMode(cfg.Server.Mode)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		VaultSvc:       vaultSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		Idempotency:    idempotency,
		HealthCheckers: healthCheckers,
		AuditSvc:       auditSvc,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Give in-flight event deliveries a bounded window before closing their transports.
	drained := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(eventDrainTimeout):
		log.Warn().Dur("timeout", eventDrainTimeout).Msg("Event deliveries still in flight at exit")
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			log.Error().Err(err).Msg("Kafka writer close failed")
		}
	}

	log.Info().Msg("Server exited")
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repositories, error) {
	switch cfg.Storage.Driver {
	case "memory":
		store := memStorage.NewStore()
		log.Warn().Msg("Using in-memory storage: state is lost on restart")
		return &repositories{
			assets:     memStorage.NewAssetRepo(store),
			balances:   memStorage.NewBalanceRepo(store),
			totals:     memStorage.NewTotalsRepo(store),
			events:     memStorage.NewEventRepo(store),
			audits:     memStorage.NewAuditRepo(store),
			transactor: store,
			health:     store,
			close:      func() {},
		}, nil

	case "postgres":
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		if err := pgStorage.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info().Msg("PostgreSQL connected, schema ensured")
		return &repositories{
			assets:     pgStorage.NewAssetRepo(pool),
			balances:   pgStorage.NewBalanceRepo(pool),
			totals:     pgStorage.NewTotalsRepo(pool),
			events:     pgStorage.NewEventRepo(pool),
			audits:     pgStorage.NewAuditRepo(pool),
			transactor: pgStorage.NewTransactor(pool),
			health:     pgStorage.NewHealthCheck(pool),
			close:      pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func newPriceFeed(cfg config.OracleConfig) (ports.PriceFeed, error) {
	switch cfg.Driver {
	case "http":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("oracle.base_url is required for the http driver")
		}
		return oracle.NewHTTPFeed(cfg.BaseURL, cfg.Timeout), nil

	case "static":
		feed := oracle.NewStaticFeed()
		for _, p := range cfg.StaticPrices {
			if !common.IsHexAddress(p.Oracle) {
				return nil, fmt.Errorf("oracle.static_prices: invalid oracle %q", p.Oracle)
			}
			answer, err := fixedpoint.Parse(p.Answer)
			if err != nil {
				return nil, fmt.Errorf("oracle.static_prices[%s]: %w", p.Oracle, err)
			}
			feed.Set(common.HexToAddress(p.Oracle), answer, p.Decimals)
		}
		return feed, nil
	}
	return nil, fmt.Errorf("unknown oracle driver %q", cfg.Driver)
}

func newTransferGateway(cfg config.CustodyConfig, sigSvc ports.SignatureService) (ports.TransferGateway, error) {
	switch cfg.Driver {
	case "http":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("custody.base_url is required for the http driver")
		}
		return custody.NewHTTPGateway(cfg.BaseURL, cfg.APIKey, cfg.APISecret, cfg.Timeout, sigSvc), nil

	case "memory":
		decimals := make(map[common.Address]uint8, len(cfg.Tokens))
		for _, t := range cfg.Tokens {
			if !common.IsHexAddress(t.Token) {
				return nil, fmt.Errorf("custody.tokens: invalid token %q", t.Token)
			}
			decimals[common.HexToAddress(t.Token)] = t.Decimals
		}
		return custody.NewMemoryGateway(decimals), nil
	}
	return nil, fmt.Errorf("unknown custody driver %q", cfg.Driver)
}
