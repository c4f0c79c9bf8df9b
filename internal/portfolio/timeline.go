// Package portfolio replays trades and cash movements in time order and
// produces a point-in-time valuation snapshot after every event.
package portfolio

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/almariscal/criptohacienda/internal/models"
	"github.com/almariscal/criptohacienda/internal/pricing"
)

// balanceEpsilon prunes balances that are floating-point residue.
const balanceEpsilon = 1e-9

// event kinds. Cash movements sort before trades when timestamps tie; the
// tie-break is an implementation contract for reproducible snapshots, not
// a business rule.
const (
	kindCash = iota
	kindTrade
)

type timelineEvent struct {
	timestamp time.Time
	kind      int
	trade     models.Trade
	cash      models.CashMovement
}

// Builder replays a session's events against a running balance map.
type Builder struct {
	prices pricing.Service

	// dayPrices memoizes one price per (asset, day) within the run so a
	// snapshot-per-event replay stays bounded in oracle calls.
	dayPrices map[string]float64

	balances       map[string]float64
	totalDeposited float64
	totalWithdrawn float64
}

// NewBuilder creates a timeline builder valuing assets through prices.
func NewBuilder(prices pricing.Service) *Builder {
	return &Builder{
		prices:    prices,
		dayPrices: make(map[string]float64),
		balances:  make(map[string]float64),
	}
}

// Build merges the trades and cash movements into one time-ordered stream
// and returns one snapshot per event. Events with equal timestamps keep
// cash movements first and preserve the original relative order within
// each kind.
func (b *Builder) Build(ctx context.Context, trades []models.Trade, movements []models.CashMovement) ([]models.PortfolioSnapshot, error) {
	events := make([]timelineEvent, 0, len(trades)+len(movements))
	for _, movement := range movements {
		events = append(events, timelineEvent{timestamp: movement.Timestamp, kind: kindCash, cash: movement})
	}
	for _, trade := range trades {
		events = append(events, timelineEvent{timestamp: trade.Timestamp, kind: kindTrade, trade: trade})
	}
	// Stable sort on timestamp alone: cash events were appended first, so
	// ties keep them ahead of trades and preserve insertion order.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].timestamp.Before(events[j].timestamp)
	})

	snapshots := make([]models.PortfolioSnapshot, 0, len(events))
	for _, event := range events {
		if event.kind == kindCash {
			if err := b.applyCashMovement(ctx, event.cash); err != nil {
				return nil, err
			}
		} else {
			b.applyTrade(event.trade)
		}
		snapshot, err := b.snapshot(ctx, event.timestamp)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// TotalDepositedEUR returns the cumulative EUR value of deposits replayed
// so far.
func (b *Builder) TotalDepositedEUR() float64 {
	return b.totalDeposited
}

// TotalWithdrawnEUR returns the cumulative EUR value of withdrawals
// replayed so far.
func (b *Builder) TotalWithdrawnEUR() float64 {
	return b.totalWithdrawn
}

func (b *Builder) applyTrade(trade models.Trade) {
	sign := 1.0
	if trade.Side == models.SideSell {
		sign = -1.0
	}
	b.adjust(trade.BaseAsset, sign*trade.Amount)
	b.adjust(trade.QuoteAsset, -sign*trade.QuoteAmount)
	if trade.FeeAmount > 0 && trade.FeeAsset != "" && trade.FeeAsset != models.UnknownAsset {
		b.adjust(trade.FeeAsset, -trade.FeeAmount)
	}
}

func (b *Builder) applyCashMovement(ctx context.Context, movement models.CashMovement) error {
	price, err := b.dayPrice(ctx, movement.Asset, movement.Timestamp)
	if err != nil {
		return err
	}
	valueEUR := movement.Amount * price

	if movement.Type == models.MovementDeposit {
		b.adjust(movement.Asset, movement.Amount)
		b.totalDeposited += valueEUR
	} else {
		b.adjust(movement.Asset, -movement.Amount)
		b.totalWithdrawn += valueEUR
	}
	return nil
}

func (b *Builder) adjust(asset string, delta float64) {
	balance := b.balances[asset] + delta
	if balance > -balanceEpsilon && balance < balanceEpsilon {
		delete(b.balances, asset)
		return
	}
	b.balances[asset] = balance
}

func (b *Builder) snapshot(ctx context.Context, at time.Time) (models.PortfolioSnapshot, error) {
	quantities := make(map[string]float64, len(b.balances))
	values := make(map[string]float64, len(b.balances))
	total := 0.0

	for asset, balance := range b.balances {
		quantities[asset] = balance
		if balance <= 0 {
			continue
		}
		price, err := b.dayPrice(ctx, asset, at)
		if err != nil {
			return models.PortfolioSnapshot{}, err
		}
		value := balance * price
		values[asset] = value
		total += value
	}

	return models.PortfolioSnapshot{
		Timestamp:         at,
		TotalValue:        total,
		AssetValues:       values,
		AssetQuantities:   quantities,
		TotalDepositedEUR: b.totalDeposited,
		TotalWithdrawnEUR: b.totalWithdrawn,
	}, nil
}

func (b *Builder) dayPrice(ctx context.Context, asset string, at time.Time) (float64, error) {
	if strings.ToUpper(asset) == pricing.ReferenceCurrency {
		return 1.0, nil
	}
	key := strings.ToUpper(asset) + "@" + pricing.DayKey(at)
	if price, ok := b.dayPrices[key]; ok {
		return price, nil
	}
	price, err := b.prices.PriceEUR(ctx, asset, at)
	if err != nil {
		return 0, err
	}
	b.dayPrices[key] = price
	return price, nil
}
