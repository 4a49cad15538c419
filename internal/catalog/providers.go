package catalog

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/tair/marketplace-catalog/internal/catalog/client"
	catalogHttp "github.com/tair/marketplace-catalog/internal/catalog/delivery/http"
	"github.com/tair/marketplace-catalog/internal/catalog/events"
	"github.com/tair/marketplace-catalog/internal/catalog/fetcher"
	"github.com/tair/marketplace-catalog/internal/catalog/snapshot"
	"github.com/tair/marketplace-catalog/internal/catalog/store"
	"github.com/tair/marketplace-catalog/internal/config"
	"github.com/tair/marketplace-catalog/pkg/auth"
	"github.com/tair/marketplace-catalog/pkg/clock"
	"github.com/tair/marketplace-catalog/pkg/database"
	"github.com/tair/marketplace-catalog/pkg/logger"
)

// App holds everything cmd/catalog needs to serve the catalog
type App struct {
	Store     *store.Store
	Fetcher   *fetcher.Fetcher
	Snapshots *snapshot.Repository
	Handler   *catalogHttp.CatalogHandler
	Consumer  *events.Consumer // nil when Kafka is not configured
}

func NewApp(
	s *store.Store,
	f *fetcher.Fetcher,
	snapshots *snapshot.Repository,
	h *catalogHttp.CatalogHandler,
	c *events.Consumer,
) *App {
	return &App{Store: s, Fetcher: f, Snapshots: snapshots, Handler: h, Consumer: c}
}

func ProvideClock() clock.Clock {
	return clock.NewRealClock()
}

func ProvideCircuitBreaker(cfg config.Config, clk clock.Clock) *client.CircuitBreaker {
	return client.NewCircuitBreaker("marketplace-api", cfg.Upstream.MaxFailures, cfg.Upstream.BreakerCoolDown, clk)
}

func ProvideRemote(cfg config.Config, cb *client.CircuitBreaker) fetcher.Remote {
	return client.NewHTTPClient(cfg.Upstream.BaseURL, client.WithCircuitBreaker(cb))
}

// ProvideSnapshotKV opens the configured snapshot backend
func ProvideSnapshotKV(ctx context.Context, cfg config.Config) (snapshot.KV, func(), error) {
	kv, cleanup, err := openSnapshotKV(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return snapshot.WithTracing(kv, cfg.Snapshot.Backend), cleanup, nil
}

func openSnapshotKV(ctx context.Context, cfg config.Config) (snapshot.KV, func(), error) {
	switch cfg.Snapshot.Backend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, errors.Wrapf(err, "connect to redis at %s", cfg.Redis.Addr)
		}
		logger.Logger.Info().Str("redis_addr", cfg.Redis.Addr).Msg("Catalog snapshots stored in Redis")
		return snapshot.NewRedisKV(rdb, cfg.Redis.TTL), func() { _ = rdb.Close() }, nil

	case config.BackendBadger:
		kv, err := snapshot.OpenBadger(snapshot.BadgerConfig{Path: cfg.Snapshot.BadgerPath, SyncWrites: true})
		if err != nil {
			return nil, nil, err
		}
		logger.Logger.Info().Str("path", cfg.Snapshot.BadgerPath).Msg("Catalog snapshots stored in Badger")
		return kv, func() { _ = kv.Close() }, nil

	case config.BackendPostgres:
		db, err := database.NewGormConnection(cfg.DB.Database())
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, errors.Wrap(err, "get database instance")
		}
		kv, err := snapshot.NewGormKV(db)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		logger.Logger.Info().Str("db_host", cfg.DB.Host).Msg("Catalog snapshots stored in PostgreSQL")
		return kv, func() { _ = sqlDB.Close() }, nil

	default:
		return snapshot.NewMemoryKV(), func() {}, nil
	}
}

func ProvideSnapshotRepository(kv snapshot.KV, clk clock.Clock) *snapshot.Repository {
	return snapshot.NewRepository(kv, clk)
}

// ProvideNotifier returns the Kafka refresh publisher, or nil without brokers
func ProvideNotifier(cfg config.Config) (fetcher.RefreshNotifier, func(), error) {
	if !cfg.Kafka.Enabled() {
		return nil, func() {}, nil
	}
	p, err := events.NewPublisher(cfg.Kafka.Brokers, cfg.Service.Name)
	if err != nil {
		return nil, nil, err
	}
	return p, func() { _ = p.Close() }, nil
}

func ProvideFetcherMetrics(reg prometheus.Registerer) *fetcher.Metrics {
	return fetcher.NewMetrics(reg)
}

func ProvideFetcher(
	cfg config.Config,
	s *store.Store,
	remote fetcher.Remote,
	snapshots *snapshot.Repository,
	notifier fetcher.RefreshNotifier,
	metrics *fetcher.Metrics,
	clk clock.Clock,
) *fetcher.Fetcher {
	opts := []fetcher.Option{
		fetcher.WithStalenessWindow(cfg.Catalog.StalenessWindow),
		fetcher.WithTimeout(cfg.Catalog.FetchTimeout),
		fetcher.WithClock(clk),
		fetcher.WithSnapshotStore(snapshots),
		fetcher.WithMetrics(metrics),
	}
	if notifier != nil {
		opts = append(opts, fetcher.WithNotifier(notifier))
	}
	return fetcher.New(s, remote, opts...)
}

// ProvideTokenValidator returns nil when no JWT secret is configured
func ProvideTokenValidator(cfg config.Config) catalogHttp.TokenValidator {
	if cfg.JWT.Secret == "" {
		return nil
	}
	return auth.NewService(cfg.JWT.Secret, 24*time.Hour)
}

func ProvideCatalogHandler(
	cfg config.Config,
	f *fetcher.Fetcher,
	s *store.Store,
	tokens catalogHttp.TokenValidator,
	reg prometheus.Registerer,
) *catalogHttp.CatalogHandler {
	return catalogHttp.NewCatalogHandler(f, s, catalogHttp.Options{
		Tokens:       tokens,
		AdminRole:    cfg.JWT.AdminRole,
		SimilarLimit: cfg.Catalog.SimilarLimit,
	}, reg)
}

// ProvideConsumer returns a listing consumer feeding s, or nil without brokers
func ProvideConsumer(cfg config.Config, s *store.Store) (*events.Consumer, func(), error) {
	if !cfg.Kafka.Enabled() {
		return nil, func() {}, nil
	}
	c, err := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, []string{events.TopicListings})
	if err != nil {
		return nil, nil, err
	}
	events.NewStoreApplier(s).Register(c)
	return c, func() { _ = c.Close() }, nil
}

// Wire sets
var InfraSet = wire.NewSet(
	ProvideClock,
	ProvideSnapshotKV,
	ProvideSnapshotRepository,
	ProvideNotifier,
)

var CatalogSet = wire.NewSet(
	store.New,
	ProvideCircuitBreaker,
	ProvideRemote,
	ProvideFetcherMetrics,
	ProvideFetcher,
)

var DeliverySet = wire.NewSet(
	ProvideTokenValidator,
	ProvideCatalogHandler,
	ProvideConsumer,
	NewApp,
)
