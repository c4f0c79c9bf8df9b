package analysis

import (
	"math"
	"testing"

	"github.com/almariscal/criptohacienda/internal/models"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPairWalletTradesSwapWithGas(t *testing.T) {
	txs := []models.NormalizedTx{
		{ID: "out", Timestamp: at(0), Asset: "USDC", Amount: -1000, TxHash: "0xabc",
			Location: models.LocationWalletEVM, Type: models.TxTrade, SourceSystem: "evm"},
		{ID: "in", Timestamp: at(0), Asset: "WETH", Amount: 0.5, TxHash: "0xabc",
			Location: models.LocationWalletEVM, Type: models.TxTrade, SourceSystem: "evm"},
		{ID: "gas", Timestamp: at(0), Asset: "ETH", Amount: -0.004, TxHash: "0xabc", GasFee: 0.004,
			Location: models.LocationWalletEVM, Type: models.TxOther, SourceSystem: "evm"},
	}

	trades, movements := PairWalletTrades(txs)
	if len(movements) != 0 {
		t.Errorf("Expected no leftover movements, got %d", len(movements))
	}
	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(trades))
	}

	trade := trades[0]
	if trade.Side != models.SideBuy {
		t.Errorf("Expected BUY, got %s", trade.Side)
	}
	if trade.BaseAsset != "WETH" || trade.QuoteAsset != "USDC" {
		t.Errorf("Expected WETH/USDC, got %s/%s", trade.BaseAsset, trade.QuoteAsset)
	}
	if !approx(trade.Amount, 0.5) || !approx(trade.QuoteAmount, 1000) {
		t.Errorf("Expected 0.5 WETH for 1000 USDC, got %v / %v", trade.Amount, trade.QuoteAmount)
	}
	if !approx(trade.Price, 2000) {
		t.Errorf("Expected price 2000, got %v", trade.Price)
	}
	if trade.FeeAsset != "ETH" || !approx(trade.FeeAmount, 0.004) {
		t.Errorf("Expected gas fee 0.004 ETH, got %v %s", trade.FeeAmount, trade.FeeAsset)
	}
}

func TestPairWalletTradesSplitsGasAcrossPairs(t *testing.T) {
	txs := []models.NormalizedTx{
		{Timestamp: at(0), Asset: "USDC", Amount: -300, TxHash: "0x1", Type: models.TxTrade},
		{Timestamp: at(0), Asset: "DAI", Amount: -100, TxHash: "0x1", Type: models.TxTrade},
		{Timestamp: at(0), Asset: "WETH", Amount: 0.2, TxHash: "0x1", Type: models.TxTrade},
		{Timestamp: at(0), Asset: "WBTC", Amount: 0.01, TxHash: "0x1", Type: models.TxTrade},
		{Timestamp: at(0), Asset: "ETH", Amount: -0.01, TxHash: "0x1", GasFee: 0.01, Type: models.TxOther},
	}

	trades, movements := PairWalletTrades(txs)
	if len(trades) != 2 {
		t.Fatalf("Expected 2 trades, got %d", len(trades))
	}
	if len(movements) != 0 {
		t.Errorf("Expected no leftover movements, got %d", len(movements))
	}

	// Legs pair largest-to-largest: 0.2 WETH against 300 USDC.
	if trades[0].BaseAsset != "WETH" || trades[0].QuoteAsset != "USDC" {
		t.Errorf("Expected WETH/USDC first, got %s/%s", trades[0].BaseAsset, trades[0].QuoteAsset)
	}
	if trades[1].BaseAsset != "WBTC" || trades[1].QuoteAsset != "DAI" {
		t.Errorf("Expected WBTC/DAI second, got %s/%s", trades[1].BaseAsset, trades[1].QuoteAsset)
	}
	for _, trade := range trades {
		if !approx(trade.FeeAmount, 0.005) {
			t.Errorf("Expected even gas share 0.005, got %v", trade.FeeAmount)
		}
		if trade.FeeAsset != "ETH" {
			t.Errorf("Expected ETH fee asset, got %s", trade.FeeAsset)
		}
	}
}

func TestPairWalletTradesLeftoversBecomeMovements(t *testing.T) {
	txs := []models.NormalizedTx{
		{Timestamp: at(0), Asset: "USDC", Amount: -500, TxHash: "0x2", Type: models.TxTrade},
		{Timestamp: at(0), Asset: "WETH", Amount: 0.2, TxHash: "0x2", Type: models.TxTrade},
		{Timestamp: at(0), Asset: "ARB", Amount: 50, TxHash: "0x2", Type: models.TxTrade, SourceSystem: "evm"},
	}

	trades, movements := PairWalletTrades(txs)
	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(trades))
	}
	if len(movements) != 1 {
		t.Fatalf("Expected 1 leftover movement, got %d", len(movements))
	}
	// 50 ARB > 0.2 WETH, so ARB pairs first and WETH is the leftover.
	if trades[0].BaseAsset != "ARB" {
		t.Errorf("Expected the larger inbound leg paired, got %s", trades[0].BaseAsset)
	}
	if movements[0].Asset != "WETH" || movements[0].Type != models.MovementDeposit {
		t.Errorf("Expected WETH deposit leftover, got %s %s", movements[0].Asset, movements[0].Type)
	}
}

func TestPairWalletTradesHashlessAndNeutralizedLegs(t *testing.T) {
	txs := []models.NormalizedTx{
		{Timestamp: at(0), Asset: "BTC", Amount: 0.1, Type: models.TxTransferIn, SourceSystem: "btc"},
		{Timestamp: at(1), Asset: "ETH", Amount: -1, Type: models.TxOther, TxHash: "0x3"},
	}

	trades, movements := PairWalletTrades(txs)
	if len(trades) != 0 {
		t.Errorf("Expected no trades, got %d", len(trades))
	}
	if len(movements) != 1 {
		t.Fatalf("Expected only the hashless leg as movement, got %d", len(movements))
	}
	if movements[0].Asset != "BTC" || movements[0].Origin != "btc" {
		t.Errorf("Expected BTC movement from btc importer, got %+v", movements[0])
	}
}
