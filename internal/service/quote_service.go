package service

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"exchange-ledger/internal/core/domain"
	"exchange-ledger/internal/core/ports"
	"exchange-ledger/pkg/apperror"
	"exchange-ledger/pkg/breaker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// FeeTier maps a USD-notional ceiling to a fee rate. A zero ceiling is the
// catch-all tier.
type FeeTier struct {
	CeilingUSD decimal.Decimal
	Rate       decimal.Decimal
}

// QuoteOptions holds the business constants of quote generation and
// execution. These are deployment configuration, never hard-coded.
type QuoteOptions struct {
	SupportedAssets []string
	TTL             time.Duration
	MinNotionalUSD  decimal.Decimal
	DriftTolerance  decimal.Decimal // fraction, e.g. 0.01
	FeeTiers        []FeeTier
}

// QuoteServiceImpl implements ports.QuoteEngine.
type QuoteServiceImpl struct {
	oracle ports.PriceOracle
	ledger ports.BalanceLedger
	cache  ports.Cache
	brk    *breaker.Breaker
	opts   QuoteOptions
	log    zerolog.Logger

	now func() time.Time
}

// NewQuoteService creates a new QuoteServiceImpl.
func NewQuoteService(
	oracle ports.PriceOracle,
	ledger ports.BalanceLedger,
	cache ports.Cache,
	brk *breaker.Breaker,
	opts QuoteOptions,
	log zerolog.Logger,
) *QuoteServiceImpl {
	return &QuoteServiceImpl{
		oracle: oracle,
		ledger: ledger,
		cache:  cache,
		brk:    brk,
		opts:   opts,
		log:    log,
		now:    time.Now,
	}
}

// GetQuote computes a time-boxed exchange offer. Identical requests within
// the TTL are served verbatim from the cache, same expiry included.
func (s *QuoteServiceImpl) GetQuote(ctx context.Context, req ports.QuoteRequest) (*domain.Quote, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.FromAsset == req.ToAsset {
		return nil, apperror.Validation("source and destination assets must differ")
	}
	if !slices.Contains(s.opts.SupportedAssets, req.FromAsset) {
		return nil, apperror.ErrInvalidAsset(req.FromAsset)
	}
	if !slices.Contains(s.opts.SupportedAssets, req.ToAsset) {
		return nil, apperror.ErrInvalidAsset(req.ToAsset)
	}

	now := s.now().UTC()
	cacheKey := domain.QuoteCacheKey(req.FromAsset, req.ToAsset, req.Amount)
	if cached, hit := s.cache.Get(ctx, cacheKey); hit {
		var q domain.Quote
		if err := json.Unmarshal(cached, &q); err == nil && !q.Expired(now) {
			return &q, nil
		}
	}

	srcPrice, err := s.oracle.CurrentPrice(ctx, req.FromAsset)
	if err != nil {
		return nil, err
	}
	dstPrice, err := s.oracle.CurrentPrice(ctx, req.ToAsset)
	if err != nil {
		return nil, err
	}
	if dstPrice.Price.IsZero() {
		return nil, apperror.ErrPriceUnavailable(req.ToAsset)
	}

	notionalUSD := req.Amount.Mul(srcPrice.Price)
	if notionalUSD.LessThan(s.opts.MinNotionalUSD) {
		return nil, apperror.Validation("notional value below the quotable minimum")
	}

	rate := srcPrice.Price.Div(dstPrice.Price)
	grossOut := req.Amount.Mul(rate)

	slippage, err := s.slippage(ctx, req.FromAsset, req.ToAsset, req.Amount)
	if err != nil {
		return nil, err
	}

	feeRate := s.feeRate(notionalUSD)
	feeAmount := grossOut.Mul(feeRate)

	quote := &domain.Quote{
		FromAsset:   req.FromAsset,
		ToAsset:     req.ToAsset,
		AmountIn:    req.Amount,
		Rate:        rate,
		FeeAmount:   feeAmount,
		SlippagePct: slippage,
		AmountOut:   grossOut.Sub(feeAmount),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.opts.TTL),
	}

	if payload, err := json.Marshal(quote); err == nil {
		s.cache.Set(ctx, cacheKey, payload, s.opts.TTL) //nolint:errcheck
	}
	return quote, nil
}

// slippage walks the synthetic ask side until the input amount is filled and
// compares the average fill price to top-of-book, as a percentage.
func (s *QuoteServiceImpl) slippage(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	book, err := s.oracle.Depth(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	if len(book.Asks) == 0 {
		return decimal.Zero, apperror.ErrInsufficientLiquidity()
	}

	remaining := amount
	cost := decimal.Zero
	for _, level := range book.Asks {
		fill := decimal.Min(remaining, level.Quantity)
		cost = cost.Add(fill.Mul(level.Price))
		remaining = remaining.Sub(fill)
		if remaining.IsZero() {
			break
		}
	}
	if remaining.IsPositive() {
		return decimal.Zero, apperror.ErrInsufficientLiquidity()
	}

	avg := cost.Div(amount)
	best := book.Asks[0].Price
	return avg.Sub(best).Div(best).Mul(decimal.NewFromInt(100)), nil
}

// feeRate resolves the tier for the given USD notional. Tiers are evaluated
// in order; a zero ceiling catches everything above the previous tier.
func (s *QuoteServiceImpl) feeRate(notionalUSD decimal.Decimal) decimal.Decimal {
	for _, tier := range s.opts.FeeTiers {
		if tier.CeilingUSD.IsZero() || notionalUSD.LessThan(tier.CeilingUSD) {
			return tier.Rate
		}
	}
	return decimal.Zero
}

// ExecuteExchange settles a previously issued quote: the source debit, the
// destination credit, and both transaction records commit in one database
// transaction or not at all.
func (s *QuoteServiceImpl) ExecuteExchange(ctx context.Context, req ports.ExchangeRequest) (*domain.Transaction, error) {
	now := s.now().UTC()
	claimed := req.Quote

	if claimed.Expired(now) {
		return nil, apperror.ErrQuoteExpired()
	}

	srcPrice, err := s.oracle.CurrentPrice(ctx, claimed.FromAsset)
	if err != nil {
		return nil, err
	}
	dstPrice, err := s.oracle.CurrentPrice(ctx, claimed.ToAsset)
	if err != nil {
		return nil, err
	}
	if dstPrice.Price.IsZero() {
		return nil, apperror.ErrPriceUnavailable(claimed.ToAsset)
	}

	// Drift protects the caller: the rate they were shown must still hold.
	currentRate := srcPrice.Price.Div(dstPrice.Price)
	drift := currentRate.Sub(claimed.Rate).Abs().Div(claimed.Rate)
	if drift.GreaterThan(s.opts.DriftTolerance) {
		return nil, apperror.ErrRateDrifted()
	}

	if !s.brk.Allow() {
		return nil, apperror.ErrServiceUnavailable()
	}

	// The echoed quote only identifies the offer. Settlement amounts always
	// come from the engine's own copy: the cached issued quote, or a fresh
	// derivation through the same pricing pipeline when the cache lost it.
	// Fabricated output or fee fields in the request never reach the ledger.
	quote, err := s.GetQuote(ctx, ports.QuoteRequest{
		FromAsset: claimed.FromAsset,
		ToAsset:   claimed.ToAsset,
		Amount:    claimed.AmountIn,
	})
	if err != nil {
		return nil, err
	}

	fromWallet, err := s.ledger.GetWalletByOwnerAsset(ctx, req.OwnerID, quote.FromAsset)
	if err != nil {
		return nil, err
	}
	toWallet, err := s.ledger.GetWalletByOwnerAsset(ctx, req.OwnerID, quote.ToAsset)
	if err != nil {
		return nil, err
	}

	exchangeID := uuid.New()
	meta := func(direction string) map[string]string {
		return map[string]string{
			"exchange_id":  exchangeID.String(),
			"direction":    direction,
			"rate":         quote.Rate.String(),
			"fee_amount":   quote.FeeAmount.String(),
			"slippage_pct": quote.SlippagePct.String(),
			"amount_out":   quote.AmountOut.String(),
		}
	}

	debitTxn, _, err := s.ledger.ApplyPair(ctx,
		ports.BalanceChange{
			WalletID: fromWallet.ID,
			Delta:    quote.AmountIn.Neg(),
			Record: ports.TransactionInput{
				Type:     domain.TransactionTypeExchange,
				Amount:   quote.AmountIn,
				Asset:    quote.FromAsset,
				Metadata: meta("out"),
			},
		},
		ports.BalanceChange{
			WalletID: toWallet.ID,
			Delta:    quote.AmountOut,
			Record: ports.TransactionInput{
				Type:     domain.TransactionTypeExchange,
				Amount:   quote.AmountOut,
				Asset:    quote.ToAsset,
				Metadata: meta("in"),
			},
		},
	)
	if err != nil {
		if apperror.IsCode(err, "LGR_006") {
			s.brk.Failure()
			return nil, apperror.ErrSettlementFailed(err)
		}
		if apperror.IsCode(err, "SYS_001") {
			s.brk.Failure()
		}
		return nil, err
	}

	s.brk.Success()
	s.log.Info().
		Str("exchange_id", exchangeID.String()).
		Str("owner_id", req.OwnerID.String()).
		Str("pair", quote.FromAsset+"/"+quote.ToAsset).
		Str("amount_in", quote.AmountIn.String()).
		Str("amount_out", quote.AmountOut.String()).
		Msg("exchange settled")
	return debitTxn, nil
}
