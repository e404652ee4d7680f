package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alta-labs/wagerd/internal/access"
	"github.com/alta-labs/wagerd/internal/domain"
	"github.com/alta-labs/wagerd/internal/lockup"
	"github.com/alta-labs/wagerd/internal/notify"
	"github.com/alta-labs/wagerd/internal/oracle"
	"github.com/alta-labs/wagerd/internal/registry"
	"github.com/alta-labs/wagerd/internal/server"
	"github.com/alta-labs/wagerd/internal/server/handler"
	"github.com/alta-labs/wagerd/internal/server/ws"
)

// core bundles the domain services a serving mode runs on top of the wired
// infrastructure.
type core struct {
	registry *registry.Registry
	vault    *lockup.Vault
	resolver *oracle.Resolver
	hub      *ws.Hub
}

// ServerMode runs the registry, lockup vault, websocket hub, and HTTP API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	c, err := a.buildCore(ctx, g, deps)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}
	a.startHTTPServer(ctx, g, deps, c)

	return g.Wait()
}

// ArchiveMode runs the closed-wager archival once and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archive.enabled must be true")
	}

	archived, err := deps.Archiver.Run(ctx)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("archived", archived))
	return nil
}

// FullMode runs the serving stack plus the archival loop.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	c, err := a.buildCore(ctx, g, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	a.startHTTPServer(ctx, g, deps, c)

	if deps.Archiver != nil {
		g.Go(func() error {
			deps.Archiver.RunPeriodic(ctx, a.cfg.Archive.Interval.Duration)
			return ctx.Err()
		})
	}

	return g.Wait()
}

// buildCore constructs the registry, vault, resolver, and websocket hub, and
// starts the hub's broadcast loop on the errgroup. Committed events fan out to
// the hub, the Redis event bus, and the notification channels.
func (a *App) buildCore(ctx context.Context, g *errgroup.Group, deps *Dependencies) (*core, error) {
	hub := ws.NewHub(a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	sinks := domain.EventSinks{hub}
	if deps.EventBus != nil {
		sinks = append(sinks, deps.EventBus)
	}
	if deps.Notifier != nil {
		sinks = append(sinks, notify.NewEventSink(deps.Notifier))
	}

	resolver := oracle.NewResolver(deps.RoundCache, a.logger)

	reg, err := registry.New(registry.Config{
		Access:   access.NewController(),
		Escrow:   deps.Escrow,
		Feeds:    deps.Feeds,
		Resolver: resolver,
		Wagers:   deps.WagerStore,
		Tokens:   deps.TokenStore,
		Audit:    deps.AuditStore,
		Locks:    deps.LockManager,
		Prices:   deps.PriceCache,
		Events:   sinks,
		Logger:   a.logger,
	})
	if err != nil {
		return nil, err
	}

	feeAddr := common.HexToAddress(a.cfg.Registry.FeeAddress)
	owner := common.HexToAddress(a.cfg.Registry.Owner)
	if err := reg.Init(ctx, feeAddr, owner); err != nil {
		return nil, fmt.Errorf("registry init: %w", err)
	}
	if a.cfg.Registry.LoadState {
		if err := reg.LoadState(ctx); err != nil {
			return nil, fmt.Errorf("registry load state: %w", err)
		}
	}

	vault, err := lockup.New(lockup.Config{
		Escrow: deps.Escrow,
		Store:  deps.LockupStore,
		Events: sinks,
		Logger: a.logger,
	})
	if err != nil {
		return nil, err
	}

	return &core{
		registry: reg,
		vault:    vault,
		resolver: resolver,
		hub:      hub,
	}, nil
}

// startHTTPServer adds the HTTP server and its graceful shutdown to the given
// errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled")
		return
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.logger),
		Wagers:  handler.NewWagerHandler(c.registry, a.logger),
		Tokens:  handler.NewTokenHandler(c.registry, a.logger),
		Rounds:  handler.NewRoundHandler(deps.Feeds, c.resolver, a.logger),
		Lockups: handler.NewLockupHandler(c.vault, a.logger),
		Audit:   handler.NewAuditHandler(deps.AuditStore, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, c.hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
