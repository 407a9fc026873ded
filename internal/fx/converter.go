package fx

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
)

// snapshot is the immutable, atomically-swapped rate table a Converter
// reads from. Readers never block on the background refresher.
type snapshot struct {
	rates map[string]domain.ExchangeRate
}

// Converter caches exchange rates and converts settlement amounts to USD.
// Rates are refreshed on a schedule from a RateProvider; readers always
// see a complete, internally-consistent snapshot (§9 design notes: global
// caches become process-scoped state with explicit lifecycle).
type Converter struct {
	provider RateProvider
	logger   zerolog.Logger
	interval time.Duration

	current atomic.Pointer[snapshot]

	cancel context.CancelFunc
	done   chan struct{}
}

func NewConverter(provider RateProvider, logger zerolog.Logger, interval time.Duration) *Converter {
	if interval < time.Second {
		interval = 15 * time.Minute
	}
	c := &Converter{
		provider: provider,
		logger:   logger.With().Str("component", "fx_converter").Logger(),
		interval: interval,
		done:     make(chan struct{}),
	}
	c.current.Store(&snapshot{rates: map[string]domain.ExchangeRate{}})
	return c
}

// Start begins the background refresh loop, fetching immediately and then
// on every tick. Call Stop to shut it down gracefully.
func (c *Converter) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.refresh(ctx)

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.refresh(ctx)
			}
		}
	}()
}

// Stop cancels the background refresh loop and waits for it to exit.
func (c *Converter) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
}

func (c *Converter) refresh(ctx context.Context) {
	rates, err := c.provider.FetchRates(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("rate refresh failed, keeping previous snapshot")
		return
	}
	next := &snapshot{rates: make(map[string]domain.ExchangeRate, len(rates))}
	for _, r := range rates {
		next.rates[r.Currency] = r
	}
	c.current.Store(next)
	c.logger.Info().Int("currencies", len(next.rates)).Msg("rate snapshot refreshed")
}

// ToUSD converts amount (in currency) to a USD decimal rounded half-even
// to 2 fractional digits. USD input is returned unchanged. An unknown
// currency fails with *domain.FxError; staleness is logged but does not
// block conversion (§4.2).
func (c *Converter) ToUSD(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	if currency == "USD" {
		return amount.Round(2), nil
	}

	snap := c.current.Load()
	rate, ok := snap.rates[currency]
	if !ok {
		return decimal.Zero, &domain.FxError{Currency: currency, Reason: "no cached rate available"}
	}
	if rate.Stale(time.Now()) {
		c.logger.Warn().Str("currency", currency).Time("updated_at", rate.UpdateTime).Msg("using stale exchange rate")
	}

	usd := amount.Mul(rate.RateToUSD).RoundBank(2)
	return usd, nil
}
