package parser

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/almariscal/criptohacienda/internal/models"
)

const statementHeader = "User_ID,UTC_Time,Account,Operation,Coin,Change,Remark\n"

func statementCSV(rows ...string) string {
	return statementHeader + strings.Join(rows, "\n") + "\n"
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAccountStatementSellWithFee(t *testing.T) {
	content := statementCSV(
		"1,2021-05-01 09:00:00,Spot,Transaction Related,USDT,100,",
		"1,2021-05-01 09:00:00,Spot,Transaction Related,BTC,-0.01,",
		"1,2021-05-01 09:00:00,Spot,Transaction Fee,BTC,-0.0001,",
	)

	trades, _, err := ParseStatement(content)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(trades))
	}

	trade := trades[0]
	if trade.Side != models.SideSell {
		t.Errorf("Expected SELL (fiat received for crypto), got %s", trade.Side)
	}
	if trade.BaseAsset != "BTC" || trade.QuoteAsset != "USDT" {
		t.Errorf("Expected BTC/USDT, got %s/%s", trade.BaseAsset, trade.QuoteAsset)
	}
	if !approx(trade.Amount, 0.01) || !approx(trade.QuoteAmount, 100) {
		t.Errorf("Expected amount 0.01 / quote 100, got %v / %v", trade.Amount, trade.QuoteAmount)
	}
	if !approx(trade.Price, 10000) {
		t.Errorf("Expected price 10000, got %v", trade.Price)
	}
	if trade.FeeAsset != "BTC" || !approx(trade.FeeAmount, 0.0001) {
		t.Errorf("Expected fee 0.0001 BTC, got %v %s", trade.FeeAmount, trade.FeeAsset)
	}
}

func TestAccountStatementBuyByRemark(t *testing.T) {
	content := statementCSV(
		"1,2021-05-01 09:00:00,Spot,Buy,EUR,-500,order-1",
		"1,2021-05-01 09:00:05,Spot,Buy,BTC,0.01,order-1",
	)

	trades, _, err := ParseStatement(content)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(trades))
	}

	trade := trades[0]
	if trade.Side != models.SideBuy {
		t.Errorf("Expected BUY, got %s", trade.Side)
	}
	if trade.BaseAsset != "BTC" || trade.QuoteAsset != "EUR" {
		t.Errorf("Expected BTC/EUR, got %s/%s", trade.BaseAsset, trade.QuoteAsset)
	}
	if !approx(trade.QuoteAmount, 500) {
		t.Errorf("Expected quote amount 500, got %v", trade.QuoteAmount)
	}
	if trade.FeeAsset != models.UnknownAsset {
		t.Errorf("Expected no fee, got asset %s", trade.FeeAsset)
	}
}

func TestAccountStatementComplementaryMerge(t *testing.T) {
	// Two consecutive one-sided buckets with the same operation set and
	// opposite signs merge into one trade.
	content := statementCSV(
		"1,2021-06-01 12:00:00,Spot,Buy,USDT,-1000,",
		"1,2021-06-01 12:00:01,Spot,Buy,ETH,0.5,",
	)

	trades, _, err := ParseStatement(content)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("Expected 1 merged trade, got %d", len(trades))
	}

	trade := trades[0]
	if trade.BaseAsset != "ETH" || trade.QuoteAsset != "USDT" {
		t.Errorf("Expected ETH/USDT, got %s/%s", trade.BaseAsset, trade.QuoteAsset)
	}
	if trade.Side != models.SideBuy {
		t.Errorf("Expected BUY, got %s", trade.Side)
	}
	if !approx(trade.Amount, 0.5) || !approx(trade.QuoteAmount, 1000) {
		t.Errorf("Expected 0.5 ETH for 1000 USDT, got %v / %v", trade.Amount, trade.QuoteAmount)
	}
}

func TestAccountStatementFeeOnlyBucketDropped(t *testing.T) {
	content := statementCSV(
		"1,2021-06-01 12:00:00,Spot,Transaction Related,USDT,100,",
		"1,2021-06-01 12:00:00,Spot,Transaction Related,BTC,-0.01,",
		"1,2021-06-02 08:00:00,Spot,Transaction Fee,BNB,-0.002,",
	)

	trades, _, err := ParseStatement(content)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(trades))
	}
	if trades[0].FeeAmount != 0 || trades[0].FeeAsset != models.UnknownAsset {
		t.Errorf("Orphan fee bucket must not attach, got fee %v %s",
			trades[0].FeeAmount, trades[0].FeeAsset)
	}
}

func TestAccountStatementProportionalFeeSplit(t *testing.T) {
	// Two buys in one bucket sharing the USDT quote; the pooled fee is
	// split by quote weight (300:100).
	content := statementCSV(
		"1,2021-07-01 10:00:00,Spot,Transaction Related,BTC,0.01,",
		"1,2021-07-01 10:00:00,Spot,Transaction Related,ETH,1,",
		"1,2021-07-01 10:00:00,Spot,Transaction Related,USDT,-300,",
		"1,2021-07-01 10:00:00,Spot,Transaction Related,USDT,-100,",
		"1,2021-07-01 10:00:00,Spot,Transaction Fee,USDT,-4,",
	)

	trades, _, err := ParseStatement(content)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("Expected 2 trades, got %d", len(trades))
	}

	if trades[0].BaseAsset != "BTC" || !approx(trades[0].FeeAmount, 3) {
		t.Errorf("Expected BTC trade with fee 3, got %s fee %v",
			trades[0].BaseAsset, trades[0].FeeAmount)
	}
	if trades[1].BaseAsset != "ETH" || !approx(trades[1].FeeAmount, 1) {
		t.Errorf("Expected ETH trade with fee 1, got %s fee %v",
			trades[1].BaseAsset, trades[1].FeeAmount)
	}
	for _, trade := range trades {
		if trade.FeeAsset != "USDT" {
			t.Errorf("Expected USDT fee asset, got %s", trade.FeeAsset)
		}
	}
}

func TestAccountStatementUnbalancedGroup(t *testing.T) {
	content := statementCSV(
		"1,2021-07-01 10:00:00,Spot,Transaction Related,USDT,100,",
		"1,2021-07-01 10:00:00,Spot,Transaction Related,BTC,-0.01,",
		"1,2021-07-01 10:00:00,Spot,Transaction Related,BUSD,-50,",
	)

	_, _, err := ParseStatement(content)
	var formatErr *FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("Expected FormatError for unbalanced group, got %v", err)
	}
	if !strings.Contains(formatErr.Reason, "unbalanced") {
		t.Errorf("Expected unbalanced group error, got %q", formatErr.Reason)
	}
}

func TestAccountStatementConflictingFeeAssets(t *testing.T) {
	content := statementCSV(
		"1,2021-07-01 10:00:00,Spot,Transaction Related,BTC,0.01,",
		"1,2021-07-01 10:00:00,Spot,Transaction Related,USDT,-100,",
		"1,2021-07-01 10:00:00,Spot,Transaction Fee,BTC,-0.0001,",
		"1,2021-07-01 10:00:00,Spot,Trading Fee,USDT,-0.1,",
	)

	_, _, err := ParseStatement(content)
	var formatErr *FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("Expected FormatError for conflicting fee assets, got %v", err)
	}
	if !strings.Contains(formatErr.Reason, "multiple fee assets") {
		t.Errorf("Expected multiple fee assets error, got %q", formatErr.Reason)
	}
}

func TestAccountStatementCashMovements(t *testing.T) {
	content := statementCSV(
		"1,2021-05-01 08:00:00,Spot,Deposit,EUR,1000,",
		"1,2021-05-01 09:00:00,Spot,Transaction Related,BTC,0.01,",
		"1,2021-05-01 09:00:00,Spot,Transaction Related,EUR,-500,",
		"1,2021-05-02 10:00:00,Spot,Airdrop Assets,XYZ,5,",
		"1,2021-05-03 11:00:00,Spot,Withdraw,EUR,-200,",
	)

	trades, movements, err := ParseStatement(content)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(trades))
	}
	if len(movements) != 3 {
		t.Fatalf("Expected 3 cash movements, got %d", len(movements))
	}

	if movements[0].Type != models.MovementDeposit || movements[0].Amount != 1000 {
		t.Errorf("Expected 1000 EUR deposit, got %v %s", movements[0].Amount, movements[0].Type)
	}
	if movements[1].Origin != "airdrop assets" || movements[1].Type != models.MovementDeposit {
		t.Errorf("Expected airdrop deposit, got origin %q type %s", movements[1].Origin, movements[1].Type)
	}
	if movements[2].Type != models.MovementWithdraw || movements[2].Amount != 200 {
		t.Errorf("Expected 200 EUR withdrawal, got %v %s", movements[2].Amount, movements[2].Type)
	}
}

func TestAccountStatementNoTrades(t *testing.T) {
	content := statementCSV(
		"1,2021-05-01 08:00:00,Spot,Deposit,EUR,1000,",
	)

	_, _, err := ParseStatement(content)
	var formatErr *FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("Expected FormatError when no trades reconstructed, got %v", err)
	}
}
