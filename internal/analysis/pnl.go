package analysis

import (
	"sort"
	"time"

	"github.com/almariscal/criptohacienda/internal/models"
)

// BalancePoint is one point of an asset's balance history.
type BalancePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Balance   float64   `json:"balance"`
}

// AssetLedgerEntry is one transaction leg in an asset's ledger view.
type AssetLedgerEntry struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Location     string    `json:"location"`
	Type         string    `json:"type"`
	Amount       float64   `json:"amount"`
	Fee          float64   `json:"fee"`
	FeeAsset     string    `json:"fee_asset"`
	SourceSystem string    `json:"source_system"`
}

// AssetBreakdown aggregates one asset's inflows, outflows and fees.
type AssetBreakdown struct {
	Asset     string             `json:"asset"`
	TotalIn   float64            `json:"total_in"`
	TotalOut  float64            `json:"total_out"`
	NetAmount float64            `json:"net_amount"`
	FeesPaid  float64            `json:"fees_paid"`
	Entries   []AssetLedgerEntry `json:"entries"`
}

// Calculator tracks per-location balances and a naive per-asset in/out PnL
// over a normalized transaction stream.
type Calculator struct {
	balances      map[string]map[string]float64
	pnl           map[string]float64
	valueTimeline map[string]float64
	assetHistory  map[string][]BalancePoint
	assetTotals   map[string]float64
}

// NewCalculator creates an empty calculator.
func NewCalculator() *Calculator {
	return &Calculator{
		balances:      make(map[string]map[string]float64),
		pnl:           make(map[string]float64),
		valueTimeline: make(map[string]float64),
		assetHistory:  make(map[string][]BalancePoint),
		assetTotals:   make(map[string]float64),
	}
}

// Process replays the transactions in ascending timestamp order.
func (c *Calculator) Process(txs []models.NormalizedTx) {
	ordered := make([]models.NormalizedTx, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	for _, tx := range ordered {
		if c.balances[tx.Location] == nil {
			c.balances[tx.Location] = make(map[string]float64)
		}
		c.balances[tx.Location][tx.Asset] += tx.Amount
		c.assetTotals[tx.Asset] += tx.Amount

		total := 0.0
		for _, balance := range c.assetTotals {
			total += balance
		}
		c.valueTimeline[tx.ID] = total
		c.assetHistory[tx.Asset] = append(c.assetHistory[tx.Asset], BalancePoint{
			Timestamp: tx.Timestamp,
			Balance:   c.assetTotals[tx.Asset],
		})

		if tx.Type == models.TxTrade {
			c.pnl[tx.Asset] -= tx.Fee
		}
		switch tx.Type {
		case models.TxWithdrawal, models.TxTransferOut:
			c.pnl[tx.Asset] -= abs(tx.Amount)
		case models.TxDeposit, models.TxTransferIn:
			c.pnl[tx.Asset] += abs(tx.Amount)
		}
	}
}

// Summary returns the naive per-asset PnL.
func (c *Calculator) Summary() map[string]float64 {
	out := make(map[string]float64, len(c.pnl))
	for asset, value := range c.pnl {
		out[asset] = value
	}
	return out
}

// BalancesByLocation returns the per-location per-asset balances.
func (c *Calculator) BalancesByLocation() map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(c.balances))
	for location, assets := range c.balances {
		inner := make(map[string]float64, len(assets))
		for asset, balance := range assets {
			inner[asset] = balance
		}
		out[location] = inner
	}
	return out
}

// Timeline returns the running total balance keyed by transaction id.
func (c *Calculator) Timeline() map[string]float64 {
	out := make(map[string]float64, len(c.valueTimeline))
	for id, value := range c.valueTimeline {
		out[id] = value
	}
	return out
}

// History returns each asset's balance history.
func (c *Calculator) History() map[string][]BalancePoint {
	out := make(map[string][]BalancePoint, len(c.assetHistory))
	for asset, points := range c.assetHistory {
		out[asset] = append([]BalancePoint(nil), points...)
	}
	return out
}

// BuildAssetBreakdown aggregates the stream into one breakdown per asset,
// sorted by asset symbol.
func BuildAssetBreakdown(txs []models.NormalizedTx) []AssetBreakdown {
	entries := make(map[string][]AssetLedgerEntry)
	type totals struct{ in, out, fees float64 }
	sums := make(map[string]*totals)

	for _, tx := range txs {
		entries[tx.Asset] = append(entries[tx.Asset], AssetLedgerEntry{
			ID:           tx.ID,
			Timestamp:    tx.Timestamp,
			Location:     tx.Location,
			Type:         tx.Type,
			Amount:       tx.Amount,
			Fee:          tx.Fee,
			FeeAsset:     tx.FeeAsset,
			SourceSystem: tx.SourceSystem,
		})
		sum := sums[tx.Asset]
		if sum == nil {
			sum = &totals{}
			sums[tx.Asset] = sum
		}
		if tx.Amount > 0 {
			sum.in += tx.Amount
		} else {
			sum.out += abs(tx.Amount)
		}
		sum.fees += tx.Fee
	}

	breakdown := make([]AssetBreakdown, 0, len(entries))
	for asset, ledger := range entries {
		sum := sums[asset]
		breakdown = append(breakdown, AssetBreakdown{
			Asset:     asset,
			TotalIn:   sum.in,
			TotalOut:  sum.out,
			NetAmount: sum.in - sum.out,
			FeesPaid:  sum.fees,
			Entries:   ledger,
		})
	}
	sort.Slice(breakdown, func(i, j int) bool {
		return breakdown[i].Asset < breakdown[j].Asset
	})
	return breakdown
}
