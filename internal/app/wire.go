package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/alta-labs/wagerd/internal/blob/s3"
	"github.com/alta-labs/wagerd/internal/cache/redis"
	"github.com/alta-labs/wagerd/internal/config"
	"github.com/alta-labs/wagerd/internal/crypto"
	"github.com/alta-labs/wagerd/internal/domain"
	"github.com/alta-labs/wagerd/internal/escrow"
	"github.com/alta-labs/wagerd/internal/notify"
	"github.com/alta-labs/wagerd/internal/oracle"
	"github.com/alta-labs/wagerd/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	WagerStore  domain.WagerStore
	TokenStore  domain.TokenStore
	LockupStore domain.LockupStore
	AuditStore  domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	RoundCache  domain.RoundCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	EventBus    *redis.EventBus

	// Escrow and oracle access
	Escrow escrow.Adapter
	Feeds  domain.FeedOpener

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsS3 returns true for modes that require object storage.
func needsS3(mode string) bool {
	switch mode {
	case "archive", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.WagerStore = postgres.NewWagerStore(pool)
	deps.TokenStore = postgres.NewTokenStore(pool)
	deps.LockupStore = postgres.NewLockupStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RoundCache = redis.NewRoundCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.EventBus = redis.NewEventBus(redisClient, logger)
	if cfg.Registry.UseDistLocks {
		deps.LockManager = redis.NewLockManager(redisClient)
	}

	// --- Escrow and price feeds ---
	if err := wireChain(cfg, deps, logger); err != nil {
		cleanup()
		return nil, nil, err
	}

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg.Mode) && cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.WagerStore,
			deps.AuditStore,
			s3blob.ArchiverConfig{
				Retention: time.Duration(cfg.Archive.RetentionDays) * 24 * time.Hour,
				BatchSize: cfg.Archive.BatchSize,
			},
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// wireChain sets up the escrow adapter and the price feed opener. In ledger
// escrow mode balances live in process and no wallet is needed; feeds still
// come from the chain when an RPC endpoint is configured.
func wireChain(cfg *config.Config, deps *Dependencies, logger *slog.Logger) error {
	var client *ethclient.Client
	if cfg.Chain.RPCURL != "" {
		var err error
		client, err = ethclient.Dial(cfg.Chain.RPCURL)
		if err != nil {
			return fmt.Errorf("wire: dial chain rpc: %w", err)
		}
	}

	switch cfg.Chain.Escrow {
	case "chain":
		if client == nil {
			return fmt.Errorf("wire: chain escrow mode requires chain.rpc_url")
		}
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Chain.PrivateKey,
			EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
			KeyPassword:      cfg.Chain.KeyPassword,
		})
		if err != nil {
			return fmt.Errorf("wire: load operator key: %w", err)
		}
		operator, err := crypto.NewOperator(keyHex, cfg.Chain.ChainID)
		if err != nil {
			return fmt.Errorf("wire: operator: %w", err)
		}
		adapter, err := escrow.NewChainAdapter(client, operator, logger)
		if err != nil {
			return fmt.Errorf("wire: chain escrow: %w", err)
		}
		deps.Escrow = adapter
	default:
		deps.Escrow = escrow.NewLedger()
	}

	if client != nil {
		deps.Feeds = oracle.NewChainOpener(client)
	} else {
		logger.Warn("wire: no chain rpc configured, oracle feeds must be registered in process")
		deps.Feeds = oracle.NewFeedRegistry()
	}
	return nil
}
