package fetcher

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/tair/marketplace-catalog/internal/catalog/domain"
	"github.com/tair/marketplace-catalog/internal/catalog/store"
	"github.com/tair/marketplace-catalog/pkg/clock"
	"github.com/tair/marketplace-catalog/pkg/logger"
)

const (
	DefaultStalenessWindow = 5 * time.Minute
	DefaultTimeout         = 10 * time.Second

	sideEffectTimeout = 5 * time.Second
)

var tracer = otel.Tracer("catalog-fetcher")

// Remote lists every product from the marketplace API
type Remote interface {
	ListProducts(ctx context.Context) (domain.ListResponse, error)
}

// SnapshotStore persists the last good product list across restarts
type SnapshotStore interface {
	Load(ctx context.Context) ([]domain.Product, bool, error)
	Save(ctx context.Context, products []domain.Product) error
}

// RefreshNotifier is told about every successful remote refresh
type RefreshNotifier interface {
	CatalogRefreshed(ctx context.Context, count int) error
}

// Source says where the products of a Result came from
type Source string

const (
	SourceCache  Source = "cache"
	SourceRemote Source = "remote"
	SourceStale  Source = "stale"
)

// Result is a successful fetch. When Source is SourceStale, Warning explains
// why fresh data could not be loaded.
type Result struct {
	Products  []domain.Product
	Source    Source
	Warning   *domain.FetchError
	FetchedAt time.Time
}

// Stale reports whether the products are a fallback for a failed refresh
func (r Result) Stale() bool {
	return r.Source == SourceStale
}

type outcome struct {
	products   []domain.Product
	fetchedAt  time.Time
	err        *domain.FetchError
	superseded bool
}

// Fetcher decides between the cached catalog and the marketplace API.
//
// Concurrent Fetch calls share one in-flight request. Every request gets a
// sequence number and only the latest one may write to the store; callers
// waiting on a superseded request are moved over to the latest one.
type Fetcher struct {
	store     *store.Store
	remote    Remote
	clock     clock.Clock
	window    time.Duration
	timeout   time.Duration
	snapshots SnapshotStore
	notifier  RefreshNotifier
	metrics   *Metrics

	group singleflight.Group

	mu            sync.Mutex
	seq           uint64
	pending       string
	lastFetchedAt time.Time
}

// Option configures a Fetcher
type Option func(*Fetcher)

func WithStalenessWindow(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.window = d
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(f *Fetcher) { f.clock = c }
}

func WithSnapshotStore(s SnapshotStore) Option {
	return func(f *Fetcher) { f.snapshots = s }
}

func WithNotifier(n RefreshNotifier) Option {
	return func(f *Fetcher) { f.notifier = n }
}

func WithMetrics(m *Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// New creates a Fetcher writing into s and reading from remote
func New(s *store.Store, remote Remote, opts ...Option) *Fetcher {
	f := &Fetcher{
		store:   s,
		remote:  remote,
		clock:   clock.NewRealClock(),
		window:  DefaultStalenessWindow,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the cached catalog while it is fresh and loads it from the
// marketplace API otherwise. With force set the cache is bypassed.
//
// A failed load falls back to whatever the store holds; the error is only
// returned when there is nothing to fall back to.
//
// The store's loading and error flags follow the shared remote request, not
// each caller. A caller whose ctx ends returns early while the request keeps
// running, so loading stays set until that request completes.
func (f *Fetcher) Fetch(ctx context.Context, force bool) (Result, error) {
	ctx, span := tracer.Start(ctx, "catalog.fetch",
		trace.WithAttributes(attribute.Bool("catalog.force", force)),
	)
	defer span.End()

	if !force {
		if products, fetchedAt, ok := f.fresh(); ok {
			f.metrics.outcome(OutcomeHit)
			span.SetAttributes(
				attribute.String("catalog.source", string(SourceCache)),
				attribute.Int("result.count", len(products)),
			)
			return Result{Products: products, Source: SourceCache, FetchedAt: fetchedAt}, nil
		}
	}

	key := f.issue(force)
	for {
		out, err := f.wait(ctx, key)
		if err != nil {
			return f.degrade(ctx, span, domain.NewFetchError(err))
		}
		if out.superseded {
			f.metrics.outcome(OutcomeSuperseded)
			next := f.pendingKey()
			if next == "" || next == key {
				return f.fromStore(ctx, span)
			}
			key = next
			continue
		}
		if out.err != nil {
			return f.degrade(ctx, span, out.err)
		}

		f.metrics.outcome(OutcomeRemote)
		span.SetAttributes(
			attribute.String("catalog.source", string(SourceRemote)),
			attribute.Int("result.count", len(out.products)),
		)
		return Result{Products: out.products, Source: SourceRemote, FetchedAt: out.fetchedAt}, nil
	}
}

// Refresh always goes to the marketplace API
func (f *Fetcher) Refresh(ctx context.Context) (Result, error) {
	return f.Fetch(ctx, true)
}

// GetProducts returns the store's current products without any I/O
func (f *Fetcher) GetProducts() []domain.Product {
	return f.store.Records()
}

// LastFetchedAt is the time of the last successful remote load; zero means never
func (f *Fetcher) LastFetchedAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFetchedAt
}

// Hydrate seeds an empty store from the persisted snapshot. Hydrated data is
// never considered fresh, so the next Fetch still goes to the API.
func (f *Fetcher) Hydrate(ctx context.Context) (int, error) {
	if f.snapshots == nil {
		return 0, nil
	}

	products, ok, err := f.snapshots.Load(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to load catalog snapshot")
	}
	if !ok || len(products) == 0 {
		return 0, nil
	}
	products, dropped, err := domain.ValidatePayload(products)
	if err != nil {
		return 0, errors.Wrap(err, "discarding invalid catalog snapshot")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.lastFetchedAt.IsZero() || f.store.Len() > 0 {
		return 0, nil
	}
	f.store.SetAll(products)
	f.reportDropped(ctx, "snapshot", dropped)
	f.metrics.size(len(products))

	logger.Info(ctx).
		Int("count", len(products)).
		Msg("Catalog hydrated from snapshot")
	return len(products), nil
}

func (f *Fetcher) fresh() ([]domain.Product, time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastFetchedAt.IsZero() || f.clock.Now().Sub(f.lastFetchedAt) >= f.window {
		return nil, time.Time{}, false
	}
	products := f.store.Records()
	if len(products) == 0 {
		return nil, time.Time{}, false
	}
	return products, f.lastFetchedAt, true
}

// issue returns the key of the request the caller should wait on, starting a
// new one unless a non-forced caller can join the one in flight.
func (f *Fetcher) issue(force bool) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !force && f.pending != "" {
		return f.pending
	}
	f.seq++
	f.pending = strconv.FormatUint(f.seq, 10)
	return f.pending
}

func (f *Fetcher) pendingKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *Fetcher) wait(ctx context.Context, key string) (outcome, error) {
	ch := f.group.DoChan(key, func() (interface{}, error) {
		return f.load(ctx, key), nil
	})

	select {
	case res := <-ch:
		return res.Val.(outcome), nil
	case <-ctx.Done():
		return outcome{}, ctx.Err()
	}
}

// load performs one remote request. It runs detached from the caller's
// cancellation because other callers may be waiting on it.
func (f *Fetcher) load(parent context.Context, key string) outcome {
	seq, _ := strconv.ParseUint(key, 10, 64)

	f.mu.Lock()
	if f.pending != key {
		f.mu.Unlock()
		return outcome{superseded: true}
	}
	f.store.SetLoading(true)
	f.store.SetError("")
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), f.timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "catalog.remote",
		trace.WithAttributes(attribute.Int64("catalog.request_seq", int64(seq))),
	)
	defer span.End()

	start := f.clock.Now()
	resp, err := f.remote.ListProducts(ctx)
	if err == nil && !resp.Success {
		err = domain.ErrUpstreamRejected
		if resp.Message != "" {
			err = errors.Wrap(err, resp.Message)
		}
	}
	var dropped []error
	if err == nil {
		resp.Items, dropped, err = domain.ValidatePayload(resp.Items)
	}
	f.metrics.remote(f.clock.Now().Sub(start), err)

	f.mu.Lock()
	if seq != f.seq {
		f.mu.Unlock()
		span.SetAttributes(attribute.Bool("catalog.superseded", true))
		logger.Debug(ctx).
			Uint64("seq", seq).
			Msg("Discarding superseded catalog response")
		return outcome{superseded: true}
	}
	f.pending = ""

	if err != nil {
		fe := domain.NewFetchError(err)
		f.store.SetError(fe.Message)
		f.store.SetLoading(false)
		f.mu.Unlock()

		span.RecordError(err)
		span.SetStatus(codes.Error, fe.Message)
		logger.Error(ctx).
			Err(err).
			Str("kind", string(fe.Kind)).
			Msg("Catalog fetch failed")
		return outcome{err: fe}
	}

	f.store.SetAll(resp.Items)
	f.reportDropped(ctx, "remote", dropped)
	f.lastFetchedAt = f.clock.Now()
	fetchedAt := f.lastFetchedAt
	products := f.store.Records()
	f.store.SetLoading(false)
	f.mu.Unlock()

	f.metrics.size(len(products))
	span.SetAttributes(attribute.Int("result.count", len(products)))
	logger.Info(ctx).
		Int("count", len(products)).
		Uint64("seq", seq).
		Msg("Catalog refreshed from upstream")

	f.afterRefresh(parent, products)
	return outcome{products: products, fetchedAt: fetchedAt}
}

// reportDropped logs records that were left out of the catalog
func (f *Fetcher) reportDropped(ctx context.Context, source string, dropped []error) {
	if len(dropped) == 0 {
		return
	}
	f.metrics.dropped(source, len(dropped))
	for _, err := range dropped {
		logger.Warn(ctx).
			Err(err).
			Str("source", source).
			Msg("Dropping invalid catalog record")
	}
}

// afterRefresh persists the snapshot and announces the refresh. Failures are
// logged only; the in-memory catalog is already up to date.
func (f *Fetcher) afterRefresh(parent context.Context, products []domain.Product) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), sideEffectTimeout)
	defer cancel()

	if f.snapshots != nil {
		if err := f.snapshots.Save(ctx, products); err != nil {
			logger.Warn(ctx).Err(err).Msg("Failed to persist catalog snapshot")
		}
	}
	if f.notifier != nil {
		if err := f.notifier.CatalogRefreshed(ctx, len(products)); err != nil {
			logger.Warn(ctx).Err(err).Msg("Failed to publish catalog refresh")
		}
	}
}

func (f *Fetcher) degrade(ctx context.Context, span trace.Span, fe *domain.FetchError) (Result, error) {
	products := f.store.Records()
	if len(products) == 0 {
		f.metrics.outcome(OutcomeError)
		span.SetStatus(codes.Error, fe.Message)
		return Result{}, fe
	}

	f.metrics.outcome(OutcomeStale)
	span.SetAttributes(
		attribute.String("catalog.source", string(SourceStale)),
		attribute.String("catalog.error_kind", string(fe.Kind)),
	)
	logger.Warn(ctx).
		Str("kind", string(fe.Kind)).
		Int("count", len(products)).
		Msg("Serving stale catalog")
	return Result{Products: products, Source: SourceStale, Warning: fe, FetchedAt: f.LastFetchedAt()}, nil
}

// fromStore answers a caller whose request was superseded by one that has
// already completed.
func (f *Fetcher) fromStore(ctx context.Context, span trace.Span) (Result, error) {
	snap := f.store.Snapshot()
	if snap.Error == "" {
		return Result{Products: snap.Products, Source: SourceRemote, FetchedAt: f.LastFetchedAt()}, nil
	}
	return f.degrade(ctx, span, &domain.FetchError{Kind: domain.KindTransport, Message: snap.Error})
}
