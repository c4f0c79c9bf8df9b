// Package tax maintains per-asset FIFO inventories of acquisition lots and
// computes the realized gain of every disposal.
package tax

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/almariscal/criptohacienda/internal/models"
	"github.com/almariscal/criptohacienda/internal/pricing"
)

// Near-zero tolerances. consumeEpsilon stops FIFO consumption; lotEpsilon
// destroys lots whose remainder is floating-point noise.
const (
	consumeEpsilon = 1e-12
	lotEpsilon     = 1e-9
)

// Engine consumes trades in timestamp order and tracks one FIFO lot queue
// per asset. It owns its queues for the duration of a run; results are
// read after Process returns.
type Engine struct {
	prices pricing.Service

	// Holdings maps asset -> FIFO lot queue, oldest first.
	Holdings map[string][]models.Lot

	// RealizedGains collects one event per disposal, in processing order.
	RealizedGains []models.RealizedGain

	// TotalInvestedEUR sums the EUR spent on buys settled directly in the
	// reference currency.
	TotalInvestedEUR float64

	// TotalFeesEUR sums every trade fee valued in EUR.
	TotalFeesEUR float64
}

// NewEngine creates an engine that values assets through prices.
func NewEngine(prices pricing.Service) *Engine {
	return &Engine{
		prices:   prices,
		Holdings: make(map[string][]models.Lot),
	}
}

// Process replays all trades in ascending timestamp order; trades sharing a
// timestamp keep their original relative order. A hard pricing failure
// aborts the run and leaves the engine state unusable.
func (e *Engine) Process(ctx context.Context, trades []models.Trade) error {
	ordered := make([]models.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	for _, trade := range ordered {
		var err error
		switch trade.Side {
		case models.SideBuy:
			err = e.handleBuy(ctx, trade)
		case models.SideSell:
			err = e.handleSell(ctx, trade)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) priceEUR(ctx context.Context, asset string, at time.Time) (float64, error) {
	if strings.ToUpper(asset) == pricing.ReferenceCurrency {
		return 1.0, nil
	}
	return e.prices.PriceEUR(ctx, asset, at)
}

func (e *Engine) feeEUR(ctx context.Context, feeAmount float64, feeAsset string, at time.Time) (float64, error) {
	if feeAmount <= 0 {
		return 0, nil
	}
	price, err := e.priceEUR(ctx, feeAsset, at)
	if err != nil {
		return 0, err
	}
	return feeAmount * price, nil
}

// consumeLots takes amount units of asset out of its FIFO queue and returns
// the consumed cost basis. A shortfall beyond tracked inventory is valued
// at the market price at the disposal timestamp instead of failing.
func (e *Engine) consumeLots(ctx context.Context, asset string, amount float64, at time.Time) (float64, error) {
	lots := e.Holdings[asset]
	remaining := amount
	costTotal := 0.0

	for remaining > consumeEpsilon && len(lots) > 0 {
		lot := &lots[0]
		take := remaining
		if lot.Amount < take {
			take = lot.Amount
		}
		costTotal += take * lot.CostPerUnit
		lot.Amount -= take
		remaining -= take
		if lot.Amount <= lotEpsilon {
			lots = lots[1:]
		}
	}
	e.Holdings[asset] = lots

	if remaining > lotEpsilon {
		price, err := e.priceEUR(ctx, asset, at)
		if err != nil {
			return 0, err
		}
		costTotal += remaining * price
	}
	return costTotal, nil
}

func (e *Engine) addLot(asset string, amount, costPerUnit float64) {
	if amount <= 0 {
		return
	}
	e.Holdings[asset] = append(e.Holdings[asset], models.Lot{Amount: amount, CostPerUnit: costPerUnit})
}

func (e *Engine) recordGain(at time.Time, asset string, quantity, proceeds, costBasis, fees float64, note string) {
	e.RealizedGains = append(e.RealizedGains, models.RealizedGain{
		Timestamp:    at,
		Asset:        asset,
		Quantity:     quantity,
		ProceedsEUR:  proceeds,
		CostBasisEUR: costBasis,
		FeesEUR:      fees,
		GainEUR:      proceeds - costBasis - fees,
		Note:         note,
	})
}

// handleBuy disposes the quote asset (unless it is the reference currency)
// and adds the acquired base quantity as one new lot.
func (e *Engine) handleBuy(ctx context.Context, trade models.Trade) error {
	quotePrice, err := e.priceEUR(ctx, trade.QuoteAsset, trade.Timestamp)
	if err != nil {
		return err
	}
	quoteValueEUR := trade.QuoteAmount * quotePrice

	feeEUR, err := e.feeEUR(ctx, trade.FeeAmount, trade.FeeAsset, trade.Timestamp)
	if err != nil {
		return err
	}
	e.TotalFeesEUR += feeEUR

	if strings.ToUpper(trade.QuoteAsset) != pricing.ReferenceCurrency {
		costBasisQuote, err := e.consumeLots(ctx, trade.QuoteAsset, trade.QuoteAmount, trade.Timestamp)
		if err != nil {
			return err
		}
		disposalFee := 0.0
		if trade.FeeAsset == trade.QuoteAsset {
			disposalFee = feeEUR
		}
		e.recordGain(trade.Timestamp, trade.QuoteAsset, trade.QuoteAmount,
			quoteValueEUR, costBasisQuote, disposalFee,
			"Disposed quote asset to buy base asset")
	} else {
		e.TotalInvestedEUR += quoteValueEUR
	}

	costBasisTotal := quoteValueEUR
	if trade.FeeAsset == trade.BaseAsset {
		costBasisTotal += feeEUR
	}
	costPerUnit := 0.0
	if trade.Amount > 0 {
		costPerUnit = costBasisTotal / trade.Amount
	}
	e.addLot(trade.BaseAsset, trade.Amount, costPerUnit)
	return nil
}

// handleSell consumes base lots and records the gain. The fee is always
// subtracted from the gain, while the new quote lot is only netted of the
// fee when the fee asset matches the quote asset; this asymmetry is
// deliberate and matches the published figures.
func (e *Engine) handleSell(ctx context.Context, trade models.Trade) error {
	quotePrice, err := e.priceEUR(ctx, trade.QuoteAsset, trade.Timestamp)
	if err != nil {
		return err
	}
	proceedsEUR := trade.QuoteAmount * quotePrice

	feeEUR, err := e.feeEUR(ctx, trade.FeeAmount, trade.FeeAsset, trade.Timestamp)
	if err != nil {
		return err
	}
	e.TotalFeesEUR += feeEUR

	costBasis, err := e.consumeLots(ctx, trade.BaseAsset, trade.Amount, trade.Timestamp)
	if err != nil {
		return err
	}
	e.recordGain(trade.Timestamp, trade.BaseAsset, trade.Amount,
		proceedsEUR, costBasis, feeEUR, "Sold base asset")

	// The reference currency is never inventoried.
	if strings.ToUpper(trade.QuoteAsset) == pricing.ReferenceCurrency {
		return nil
	}
	netForQuote := proceedsEUR
	if trade.FeeAsset == trade.QuoteAsset {
		netForQuote -= feeEUR
	}
	if trade.QuoteAmount > 0 {
		e.addLot(trade.QuoteAsset, trade.QuoteAmount, netForQuote/trade.QuoteAmount)
	}
	return nil
}
