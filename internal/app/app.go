// Package app wires configuration into the storage, transport and service
// graph shared by the bidding and admin services.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"auction-storefront/internal/config"
	"auction-storefront/internal/domain"
	"auction-storefront/internal/infrastructure/leader"
	"auction-storefront/internal/infrastructure/memory"
	"auction-storefront/internal/infrastructure/mysql"
	natsinfra "auction-storefront/internal/infrastructure/nats"
	redisinfra "auction-storefront/internal/infrastructure/redis"
	"auction-storefront/internal/services"
	"auction-storefront/pkg/logger"
	"auction-storefront/pkg/metrics"
	"auction-storefront/pkg/utils"

	"github.com/go-redis/redis/v8"
)

type Options struct {
	// Name identifies the process to NATS and prefixes its metrics.
	Name string
	// Migrate applies the schema on start when mysql.migrate is also set.
	Migrate bool
}

type App struct {
	Config     *config.Config
	Log        logger.Logger
	Metrics    *metrics.MetricsManager
	Store      domain.Store
	Publisher  domain.ChangePublisher
	Subscriber domain.ChangeSubscriber
	Election   domain.LeaderElection

	Notifier *services.ChangeNotifier
	Ledger   *services.BidLedger
	Arbiter  *services.BidArbiter
	Auctions *services.AuctionManager
	Likes    *services.LikeService
	Profiles *services.ProfileService

	rdb     *redis.Client
	closers []func() error
}

func New(ctx context.Context, cfg *config.Config, opts Options, log logger.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Log:     log,
		Metrics: metrics.NewMetricsManager(strings.ReplaceAll(opts.Name, "-", "_")),
	}

	idem, err := a.initStorage(ctx, opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initTransport(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}

	a.Notifier = services.NewChangeNotifier(a.Publisher, a.Metrics, log)
	a.Ledger = services.NewBidLedger(a.Store, cfg.Bidding.HistoryDefault, cfg.Bidding.HistoryMax, log)
	a.Arbiter = services.NewBidArbiter(a.Store, a.Ledger, a.Notifier, idem, a.Metrics, services.ArbiterConfig{
		BalanceAccounting: cfg.Bidding.BalanceAccounting,
		AuditRejected:     cfg.Bidding.AuditRejected,
		ExtensionWindow:   cfg.Auction.ExtensionWindow,
		IdempotencyTTL:    cfg.Bidding.IdempotencyTTL,
	}, log)
	a.Auctions = services.NewAuctionManager(a.Store, a.Store, a.Store, a.Arbiter, cfg.Auction.DefaultDuration, log)
	a.Likes = services.NewLikeService(a.Store, a.Notifier, log)
	a.Profiles = services.NewProfileService(a.Store, log)
	return a, nil
}

func (a *App) initStorage(ctx context.Context, opts Options) (domain.IdempotencyStore, error) {
	cfg := a.Config
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		a.Store = memory.NewStore()
		a.Election = leader.Standalone{}
		a.closers = append(a.closers, a.Store.Close)
		a.Log.Warn("Using in-memory storage; state is lost on restart")
		return memory.NewIdempotencyStore(), nil

	case config.DriverMySQL:
		if opts.Migrate && cfg.MySQL.Migrate {
			if err := mysql.Migrate(cfg.MySQL.DSN, a.Log); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		db, err := utils.InitializeMysql(ctx, cfg.MySQL, a.Log)
		if err != nil {
			return nil, err
		}
		a.Store = mysql.NewStore(db, a.Log)
		a.closers = append(a.closers, a.Store.Close)

		rdb, err := a.redis(ctx)
		if err != nil {
			return nil, err
		}
		a.Election = leader.NewRedisLeaderElection(rdb, cfg.Leader.TTL, a.Log)
		return redisinfra.NewIdempotencyStore(rdb), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func (a *App) initTransport(ctx context.Context, opts Options) error {
	switch a.Config.Notifier.Transport {
	case config.TransportLocal:
		bus := memory.NewChangeBus(a.Log)
		a.Publisher, a.Subscriber = bus, bus

	case config.TransportRedis:
		rdb, err := a.redis(ctx)
		if err != nil {
			return err
		}
		a.Publisher = redisinfra.NewEventPublisher(rdb)
		a.Subscriber = redisinfra.NewRedisEventSubscriber(rdb, a.Log)

	case config.TransportNATS:
		conn, err := natsinfra.NewConnection(a.Config.NATS, opts.Name, a.Log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			return conn.Drain()
		})
		bus, err := natsinfra.NewChangeBus(conn, a.Log)
		if err != nil {
			return err
		}
		a.Publisher, a.Subscriber = bus, bus

	default:
		return fmt.Errorf("unknown notifier transport %q", a.Config.Notifier.Transport)
	}
	return nil
}

// redis connects once and shares the client between idempotency, leader
// election and the change transport.
func (a *App) redis(ctx context.Context) (*redis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	rdb, err := utils.InitializeRedis(ctx, a.Config.Redis, a.Log)
	if err != nil {
		return nil, err
	}
	a.rdb = rdb
	a.closers = append(a.closers, rdb.Close)
	return rdb, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
