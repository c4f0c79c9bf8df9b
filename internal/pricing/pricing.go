// Package pricing resolves daily EUR prices for crypto assets. An Oracle
// walks an ordered list of providers with retry and fallback, memoizes
// results per (asset, calendar day) and keeps track of assets no provider
// had data for.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ReferenceCurrency is the currency every value is normalized into. It is
// always priced at exactly 1.0 and never queried from a provider.
const ReferenceCurrency = "EUR"

// ErrNoPrice signals that a provider has no data for an asset/day. It is
// not a provider failure; callers decide via the oracle policy whether it
// becomes a missing price or a hard error.
var ErrNoPrice = errors.New("no price data available")

// Error is a hard pricing failure (network, provider outage). It aborts
// the whole processing run.
type Error struct {
	Asset string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pricing failed for %s: %v", e.Asset, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Service resolves the EUR price of an asset at a point in time.
type Service interface {
	PriceEUR(ctx context.Context, asset string, at time.Time) (float64, error)
}

// ServiceFunc adapts a plain function to the Service interface.
type ServiceFunc func(ctx context.Context, asset string, at time.Time) (float64, error)

func (f ServiceFunc) PriceEUR(ctx context.Context, asset string, at time.Time) (float64, error) {
	return f(ctx, asset, at)
}

// Provider fetches a daily EUR price from one external source.
type Provider interface {
	Name() string
	FetchPriceEUR(ctx context.Context, asset string, at time.Time) (float64, error)
}

// Config controls oracle behavior.
type Config struct {
	// Strict makes provider exhaustion a hard Error that aborts the run.
	// When false, exhaustion records the asset as missing and yields 0.0.
	Strict bool

	// CacheSize bounds the day cache. Zero means DefaultCacheSize.
	CacheSize int
}

// Oracle is a Service backed by ordered fallback providers and a
// per-(asset, day) cache. Safe for concurrent use; intended to be shared
// across sessions as a pure read-through cache.
type Oracle struct {
	providers []Provider
	cache     *DayCache
	retryer   *Retryer
	strict    bool
	logger    *logrus.Logger

	mu      sync.Mutex
	missing map[string]struct{}
	noData  map[string]struct{}
}

// NewOracle builds an oracle over the given providers, consulted in order.
func NewOracle(providers []Provider, cfg Config, logger *logrus.Logger) *Oracle {
	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Oracle{
		providers: providers,
		cache:     NewDayCache(size),
		retryer:   NewRetryer(DefaultRetryConfig("pricing"), logger),
		strict:    cfg.Strict,
		logger:    logger,
		missing:   make(map[string]struct{}),
		noData:    make(map[string]struct{}),
	}
}

// PriceEUR resolves the EUR price of asset on the calendar day of at.
func (o *Oracle) PriceEUR(ctx context.Context, asset string, at time.Time) (float64, error) {
	symbol := strings.ToUpper(strings.TrimSpace(asset))
	if symbol == ReferenceCurrency {
		return 1.0, nil
	}

	day := DayKey(at)
	if price, ok := o.cache.Get(symbol, day); ok {
		return price, nil
	}

	// Days already known to have no data short-circuit the providers, but
	// the asset is flagged missing again so every run that leans on the
	// 0.0 approximation reports it.
	o.mu.Lock()
	_, none := o.noData[symbol+"@"+day]
	if none {
		o.missing[symbol] = struct{}{}
	}
	o.mu.Unlock()
	if none {
		return 0.0, nil
	}

	var lastErr error
	for _, provider := range o.providers {
		var price float64
		err := o.retryer.Execute(ctx, func() error {
			var fetchErr error
			price, fetchErr = provider.FetchPriceEUR(ctx, symbol, at)
			if errors.Is(fetchErr, ErrNoPrice) {
				// Not retryable and not a failure; move on to the
				// next provider.
				return &nonRetryableError{fetchErr}
			}
			return fetchErr
		})
		if err == nil {
			o.cache.Set(symbol, day, price)
			return price, nil
		}
		lastErr = err
		o.logger.Warnf("[pricing] provider %s failed for %s@%s: %v", provider.Name(), symbol, day, err)
	}

	// No-data answers never abort a run; provider failures do when the
	// oracle is strict.
	if o.strict && !errors.Is(lastErr, ErrNoPrice) {
		return 0, &Error{Asset: symbol, Cause: lastErr}
	}

	o.mu.Lock()
	o.missing[symbol] = struct{}{}
	o.noData[symbol+"@"+day] = struct{}{}
	o.mu.Unlock()
	return 0.0, nil
}

// MissingAssets returns the sorted set of assets no provider had data for
// since the last Reset.
func (o *Oracle) MissingAssets() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	assets := make([]string, 0, len(o.missing))
	for asset := range o.missing {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}

// Reset clears the missing-asset set. The day cache and the no-data memo
// are kept: cached prices are valid across runs within the process
// lifetime, and memoized no-data days re-flag their asset on lookup.
func (o *Oracle) Reset() {
	o.mu.Lock()
	o.missing = make(map[string]struct{})
	o.mu.Unlock()
}

// ResetAll clears the missing-asset set, the no-data memo and the day
// cache.
func (o *Oracle) ResetAll() {
	o.mu.Lock()
	o.missing = make(map[string]struct{})
	o.noData = make(map[string]struct{})
	o.mu.Unlock()
	o.cache.Reset()
}

// DayKey formats a timestamp as the dd-mm-yyyy key used by the cache and
// the CoinGecko history endpoint.
func DayKey(at time.Time) string {
	return at.UTC().Format("02-01-2006")
}
