package portfolio

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/almariscal/criptohacienda/internal/models"
	"github.com/almariscal/criptohacienda/internal/pricing"
)

func fixedPrices(prices map[string]float64) pricing.Service {
	return pricing.ServiceFunc(func(ctx context.Context, asset string, at time.Time) (float64, error) {
		return prices[asset], nil
	})
}

func countingPrices(prices map[string]float64, calls map[string]int) pricing.Service {
	return pricing.ServiceFunc(func(ctx context.Context, asset string, at time.Time) (float64, error) {
		calls[asset]++
		return prices[asset], nil
	})
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func at(day, hour int) time.Time {
	return time.Date(2022, time.April, day, hour, 0, 0, 0, time.UTC)
}

func TestBuildSnapshotPerEvent(t *testing.T) {
	builder := NewBuilder(fixedPrices(map[string]float64{"BTC": 20000}))

	snapshots, err := builder.Build(context.Background(),
		[]models.Trade{
			{Timestamp: at(1, 12), BaseAsset: "BTC", QuoteAsset: "EUR",
				Side: models.SideBuy, Amount: 0.5, QuoteAmount: 10000},
		},
		[]models.CashMovement{
			{Timestamp: at(1, 9), Asset: "EUR", Amount: 12000, Type: models.MovementDeposit},
		},
	)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(snapshots))
	}

	if !approx(snapshots[0].TotalValue, 12000) {
		t.Errorf("Expected 12000 after the deposit, got %v", snapshots[0].TotalValue)
	}
	// 2000 EUR cash + 0.5 BTC at 20000.
	if !approx(snapshots[1].TotalValue, 12000) {
		t.Errorf("Expected 12000 after the buy, got %v", snapshots[1].TotalValue)
	}
	if !approx(snapshots[1].AssetQuantities["BTC"], 0.5) {
		t.Errorf("Expected 0.5 BTC held, got %v", snapshots[1].AssetQuantities["BTC"])
	}
	if !approx(snapshots[1].TotalDepositedEUR, 12000) {
		t.Errorf("Expected cumulative deposits 12000, got %v", snapshots[1].TotalDepositedEUR)
	}
}

func TestBuildCashBeforeTradesOnTie(t *testing.T) {
	ts := at(2, 10)
	builder := NewBuilder(fixedPrices(nil))

	// The deposit funds the buy at the same timestamp; cash must apply
	// first or the EUR balance would dip negative.
	snapshots, err := builder.Build(context.Background(),
		[]models.Trade{
			{Timestamp: ts, BaseAsset: "BTC", QuoteAsset: "EUR",
				Side: models.SideBuy, Amount: 1, QuoteAmount: 1000},
		},
		[]models.CashMovement{
			{Timestamp: ts, Asset: "EUR", Amount: 1000, Type: models.MovementDeposit},
		},
	)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(snapshots))
	}
	if !approx(snapshots[0].AssetQuantities["EUR"], 1000) {
		t.Errorf("Expected the deposit applied first, got %+v", snapshots[0].AssetQuantities)
	}
	if _, ok := snapshots[1].AssetQuantities["EUR"]; ok {
		t.Errorf("Expected the EUR balance pruned to zero, got %+v", snapshots[1].AssetQuantities)
	}
}

func TestBuildNegativeBalancesNotValued(t *testing.T) {
	builder := NewBuilder(fixedPrices(map[string]float64{"BTC": 20000}))

	snapshots, err := builder.Build(context.Background(),
		[]models.Trade{
			{Timestamp: at(3, 10), BaseAsset: "BTC", QuoteAsset: "EUR",
				Side: models.SideSell, Amount: 1, QuoteAmount: 20000},
		},
		nil,
	)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	snapshot := snapshots[0]
	// The shorted BTC still shows in quantities but never in value.
	if !approx(snapshot.AssetQuantities["BTC"], -1) {
		t.Errorf("Expected quantity -1, got %v", snapshot.AssetQuantities["BTC"])
	}
	if _, ok := snapshot.AssetValues["BTC"]; ok {
		t.Errorf("Negative balance must not be valued, got %+v", snapshot.AssetValues)
	}
	if !approx(snapshot.TotalValue, 20000) {
		t.Errorf("Expected only the EUR proceeds valued, got %v", snapshot.TotalValue)
	}
}

func TestBuildFeeDebitSkippedForUnknownAsset(t *testing.T) {
	builder := NewBuilder(fixedPrices(nil))

	snapshots, err := builder.Build(context.Background(),
		[]models.Trade{
			{Timestamp: at(4, 10), BaseAsset: "BTC", QuoteAsset: "EUR",
				Side: models.SideBuy, Amount: 1, QuoteAmount: 100,
				FeeAmount: 0.1, FeeAsset: models.UnknownAsset},
		},
		nil,
	)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !approx(snapshots[0].AssetQuantities["BTC"], 1) {
		t.Errorf("Expected full 1 BTC with the unknown fee ignored, got %v",
			snapshots[0].AssetQuantities["BTC"])
	}
}

func TestBuildMemoizesDayPrices(t *testing.T) {
	calls := make(map[string]int)
	builder := NewBuilder(countingPrices(map[string]float64{"BTC": 20000}, calls))

	trades := []models.Trade{
		{Timestamp: at(5, 9), BaseAsset: "BTC", QuoteAsset: "EUR", Side: models.SideBuy, Amount: 1, QuoteAmount: 100},
		{Timestamp: at(5, 12), BaseAsset: "BTC", QuoteAsset: "EUR", Side: models.SideBuy, Amount: 1, QuoteAmount: 100},
		{Timestamp: at(6, 9), BaseAsset: "BTC", QuoteAsset: "EUR", Side: models.SideBuy, Amount: 1, QuoteAmount: 100},
	}
	if _, err := builder.Build(context.Background(), trades, nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// One lookup per (asset, day): days 5 and 6.
	if calls["BTC"] != 2 {
		t.Errorf("Expected 2 BTC price lookups, got %d", calls["BTC"])
	}
	if calls["EUR"] != 0 {
		t.Errorf("Expected no EUR lookups, got %d", calls["EUR"])
	}
}

func TestBuildCumulativeWithdrawalsValued(t *testing.T) {
	builder := NewBuilder(fixedPrices(map[string]float64{"BTC": 10000}))

	snapshots, err := builder.Build(context.Background(), nil,
		[]models.CashMovement{
			{Timestamp: at(7, 9), Asset: "BTC", Amount: 1, Type: models.MovementDeposit},
			{Timestamp: at(7, 10), Asset: "BTC", Amount: 0.5, Type: models.MovementWithdraw},
		},
	)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	last := snapshots[len(snapshots)-1]
	if !approx(last.TotalDepositedEUR, 10000) {
		t.Errorf("Expected deposits valued at 10000, got %v", last.TotalDepositedEUR)
	}
	if !approx(last.TotalWithdrawnEUR, 5000) {
		t.Errorf("Expected withdrawals valued at 5000, got %v", last.TotalWithdrawnEUR)
	}
	if !approx(last.TotalValue, 5000) {
		t.Errorf("Expected remaining 0.5 BTC worth 5000, got %v", last.TotalValue)
	}
}
