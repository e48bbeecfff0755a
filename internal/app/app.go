package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/alert"
	"github.com/smartcontractkit/x402-cre-price-alerts/internal/config"
	"github.com/smartcontractkit/x402-cre-price-alerts/internal/evaluator"
	"github.com/smartcontractkit/x402-cre-price-alerts/internal/ingest"
	"github.com/smartcontractkit/x402-cre-price-alerts/internal/notify"
	"github.com/smartcontractkit/x402-cre-price-alerts/internal/pricefeed"
	"github.com/smartcontractkit/x402-cre-price-alerts/internal/scheduler"
	"github.com/smartcontractkit/x402-cre-price-alerts/internal/store"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*store.Postgres, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := store.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	pg := store.NewPostgres(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func (a *App) newAuthenticator() (*ingest.Authenticator, error) {
	opts := ingest.AuthenticatorOptions{}
	authCfg := a.Config.Auth

	if authCfg.TrustedSender != "" {
		sender := common.HexToAddress(authCfg.TrustedSender)
		opts.TrustedSender = &sender
	}
	if authCfg.OriginID != "" {
		raw, err := hexutil.Decode(authCfg.OriginID)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("auth.origin_id must be a 32-byte hex value")
		}
		id := common.BytesToHash(raw)
		opts.OriginID = &id
	}
	if authCfg.OriginOwner != "" {
		owner := common.HexToAddress(authCfg.OriginOwner)
		opts.OriginOwner = &owner
	}
	if authCfg.OriginName != "" {
		digest := ingest.NameDigest(authCfg.OriginName)
		opts.OriginName = &digest
	}

	auth := ingest.NewAuthenticator(opts, a.Logger)
	if auth.Open() {
		a.Logger.Warn().Msg("no ingest auth predicates configured; accepting all reports (unsafe outside development)")
	}
	return auth, nil
}

func (a *App) newFeeds() (map[alert.Asset]evaluator.Feed, error) {
	feeds := make(map[alert.Asset]evaluator.Feed, len(a.Config.Feeds))
	for symbol, feedCfg := range a.Config.Feeds {
		asset, err := alert.ParseAsset(symbol)
		if err != nil {
			return nil, fmt.Errorf("feeds.%s: %w", symbol, err)
		}
		source := pricefeed.NewChainlink(pricefeed.ChainlinkOptions{
			RPCURL:      a.Config.Ethereum.RPCURL,
			FeedAddress: feedCfg.Address,
			Timeout:     a.Config.Ethereum.RequestTimeout,
		}, a.Logger)
		feeds[asset] = evaluator.Feed{Source: source, Decimals: feedCfg.Decimals}
	}
	return feeds, nil
}

func (a *App) newNotifier(ctx context.Context) (notify.Notifier, func(), error) {
	if !a.Config.Pushover.Enabled {
		a.Logger.Warn().Msg("pushover not enabled; notifications will be logged only")
		return notify.NewLogNotifier(a.Logger), nil, nil
	}

	var (
		cache  notify.ResponseCache
		closer func()
	)
	if a.Config.Redis.Addr != "" {
		redisCache, err := notify.NewRedisCache(ctx, notify.RedisCacheConfig{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		cache = redisCache
		closer = func() { _ = redisCache.Close() }
	} else {
		a.Logger.Warn().Msg("redis.addr not configured; notification dedupe limited to this process")
		cache = notify.NewMemoryCache()
	}

	pushover := notify.NewPushover(notify.PushoverOptions{
		Token:        a.Config.Pushover.Token,
		User:         a.Config.Pushover.User,
		BaseURL:      a.Config.Pushover.APIBase,
		Timeout:      a.Config.Pushover.Timeout,
		DedupeWindow: a.Config.Pushover.DedupeWindow,
	}, cache, a.Logger)

	return pushover, closer, nil
}

// Run executes the long-running evaluation service plus, when configured,
// the ingest endpoint.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pg, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	var (
		ruleStore  store.RuleStore
		auditStore store.AuditStore
	)
	if pg != nil {
		ruleStore = pg
		auditStore = pg
	} else {
		a.Logger.Warn().Msg("database.dsn not configured; rules held in memory only")
		ruleStore = store.NewMemory()
	}

	feeds, err := a.newFeeds()
	if err != nil {
		return err
	}
	if len(feeds) == 0 {
		return errors.New("no price feeds configured")
	}

	notifier, closeNotifier, err := a.newNotifier(ctx)
	if err != nil {
		return err
	}
	if closeNotifier != nil {
		defer closeNotifier()
	}

	eval := evaluator.New(ruleStore, feeds, notifier, auditStore, a.Config.Rules.TTL, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToStart,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return sched.Run(groupCtx, func(tickCtx context.Context, cycleTime time.Time) error {
			_, err := eval.RunCycle(tickCtx, cycleTime)
			return err
		})
	})

	if a.Config.Ingest.ListenAddr != "" {
		auth, err := a.newAuthenticator()
		if err != nil {
			return err
		}
		pipeline := ingest.NewPipeline(auth, ruleStore, a.Logger)
		server := ingest.NewServer(pipeline, a.Config.Ingest.ListenAddr, a.Logger)
		group.Go(func() error {
			return server.Run(groupCtx)
		})
	}

	a.Logger.Info().Msg("starting price alert service")
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("price alert service stopped")
	return nil
}
