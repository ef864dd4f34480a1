package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"exchange-ledger/internal/core/domain"
	"exchange-ledger/internal/core/ports"
	"exchange-ledger/pkg/apperror"
	"exchange-ledger/pkg/breaker"
	"exchange-ledger/pkg/retry"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// OracleOptions tunes freshness, direct-fetch retry, and synthetic depth.
type OracleOptions struct {
	Assets         []string
	Freshness      time.Duration
	CacheTTL       time.Duration
	FetchRetry     retry.Policy
	DepthLevels    int
	LevelSize      decimal.Decimal
	LevelSpreadBps int64
}

// OracleServiceImpl implements ports.PriceOracle. It keeps the latest sample
// per asset in memory, writes each accepted sample through to the cache, and
// falls back to cache then direct fetch when memory has nothing fresh.
type OracleServiceImpl struct {
	cache   ports.Cache
	fetcher ports.PriceFetcher
	brk     *breaker.Breaker
	opts    OracleOptions
	log     zerolog.Logger

	mu      sync.RWMutex
	samples map[string]domain.PriceSample

	now func() time.Time
}

// NewOracleService creates a new OracleServiceImpl.
func NewOracleService(cache ports.Cache, fetcher ports.PriceFetcher, brk *breaker.Breaker, opts OracleOptions, log zerolog.Logger) *OracleServiceImpl {
	return &OracleServiceImpl{
		cache:   cache,
		fetcher: fetcher,
		brk:     brk,
		opts:    opts,
		log:     log,
		samples: make(map[string]domain.PriceSample),
		now:     time.Now,
	}
}

// Apply ingests one price sample from the feed. Samples older than the one
// already held are dropped so an out-of-order poll result cannot regress a
// streamed price.
func (s *OracleServiceImpl) Apply(ctx context.Context, sample domain.PriceSample) {
	s.mu.Lock()
	prev, ok := s.samples[sample.Asset]
	if ok && sample.Timestamp.Before(prev.Timestamp) {
		s.mu.Unlock()
		return
	}
	s.samples[sample.Asset] = sample
	s.mu.Unlock()

	if payload, err := json.Marshal(sample); err == nil {
		s.cache.Set(ctx, domain.PriceCacheKey(sample.Asset), payload, s.opts.CacheTTL) //nolint:errcheck
	}
}

// CurrentPrice returns the freshest known price for asset, consulting memory,
// then cache, then a direct fetch. It never substitutes a default price: when
// every source fails it returns the price-unavailable error.
func (s *OracleServiceImpl) CurrentPrice(ctx context.Context, asset string) (domain.PriceSample, error) {
	now := s.now()

	s.mu.RLock()
	sample, ok := s.samples[asset]
	s.mu.RUnlock()
	if ok && sample.Fresh(now, s.opts.Freshness) {
		return sample, nil
	}

	if cached, hit := s.cache.Get(ctx, domain.PriceCacheKey(asset)); hit {
		var cs domain.PriceSample
		if err := json.Unmarshal(cached, &cs); err == nil && cs.Fresh(now, s.opts.Freshness) {
			s.mu.Lock()
			s.samples[asset] = cs
			s.mu.Unlock()
			return cs, nil
		}
	}

	if fetched, err := s.directFetch(ctx, asset); err == nil {
		return fetched, nil
	}

	return domain.PriceSample{}, apperror.ErrPriceUnavailable(asset)
}

// directFetch performs a breaker-guarded, retried one-shot poll for a single
// asset.
func (s *OracleServiceImpl) directFetch(ctx context.Context, asset string) (domain.PriceSample, error) {
	if !s.brk.Allow() {
		return domain.PriceSample{}, breaker.ErrOpen
	}

	var result domain.PriceSample
	err := s.opts.FetchRetry.Do(ctx, func(error) bool { return true }, func(ctx context.Context) error {
		samples, err := s.fetcher.Fetch(ctx, []string{asset})
		if err != nil {
			return err
		}
		for _, sm := range samples {
			if sm.Asset == asset {
				result = sm
				return nil
			}
		}
		return fmt.Errorf("vendor returned no price for %s", asset)
	})
	if err != nil {
		s.brk.Failure()
		s.log.Warn().Err(err).Str("asset", asset).Msg("direct price fetch failed")
		return domain.PriceSample{}, err
	}

	s.brk.Success()
	s.Apply(ctx, result)
	return result, nil
}

// Depth synthesizes order-book depth for a pair around the current cross
// rate. Level i sits i spread steps away from mid, best level first.
func (s *OracleServiceImpl) Depth(ctx context.Context, baseAsset, quoteAsset string) (*domain.OrderBook, error) {
	basePrice, err := s.CurrentPrice(ctx, baseAsset)
	if err != nil {
		return nil, err
	}
	quotePrice, err := s.CurrentPrice(ctx, quoteAsset)
	if err != nil {
		return nil, err
	}
	if quotePrice.Price.IsZero() {
		return nil, apperror.ErrPriceUnavailable(quoteAsset)
	}

	mid := basePrice.Price.Div(quotePrice.Price)
	step := mid.Mul(decimal.NewFromInt(s.opts.LevelSpreadBps)).Div(decimal.NewFromInt(10000))

	book := &domain.OrderBook{
		BaseAsset:  baseAsset,
		QuoteAsset: quoteAsset,
		Bids:       make([]domain.DepthLevel, 0, s.opts.DepthLevels),
		Asks:       make([]domain.DepthLevel, 0, s.opts.DepthLevels),
	}
	for i := 1; i <= s.opts.DepthLevels; i++ {
		offset := step.Mul(decimal.NewFromInt(int64(i)))
		book.Asks = append(book.Asks, domain.DepthLevel{
			Price:    mid.Add(offset),
			Quantity: s.opts.LevelSize,
		})
		book.Bids = append(book.Bids, domain.DepthLevel{
			Price:    mid.Sub(offset),
			Quantity: s.opts.LevelSize,
		})
	}
	return book, nil
}

// Healthy reports whether every configured asset has a fresh sample in memory.
func (s *OracleServiceImpl) Healthy() bool {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, asset := range s.opts.Assets {
		sample, ok := s.samples[asset]
		if !ok || !sample.Fresh(now, s.opts.Freshness) {
			return false
		}
	}
	return true
}
