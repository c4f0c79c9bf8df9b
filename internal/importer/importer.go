// Package importer produces NormalizedTx legs from external transaction
// sources: blockchain explorers and the exchange statement parser output.
package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/almariscal/criptohacienda/internal/models"
)

// WalletImporter fetches and normalizes the transaction history of a set
// of wallet addresses. Multi-chain importers receive chain identifiers;
// single-chain importers ignore them.
type WalletImporter interface {
	Import(ctx context.Context, addresses []string, chains []string) ([]models.NormalizedTx, error)
}

// CleanAddresses trims the input and drops empty entries.
func CleanAddresses(values []string) []string {
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

// FromStatement converts parsed statement trades and cash movements into
// NormalizedTx legs for the unified analysis stream. Leg ids are
// deterministic ("binance-<n>-base", "binance-mov-<n>") so callers can map
// reconciliation results back to the originating records.
func FromStatement(trades []models.Trade, movements []models.CashMovement) []models.NormalizedTx {
	legs := make([]models.NormalizedTx, 0, 2*len(trades)+len(movements))

	for i, trade := range trades {
		baseAmount := trade.Amount
		quoteAmount := -trade.QuoteAmount
		if trade.Side == models.SideSell {
			baseAmount = -trade.Amount
			quoteAmount = trade.QuoteAmount
		}

		legs = append(legs, models.NormalizedTx{
			ID:           fmt.Sprintf("binance-%d-base", i),
			Timestamp:    trade.Timestamp,
			Asset:        strings.ToUpper(trade.BaseAsset),
			Amount:       baseAmount,
			FeeAsset:     strings.ToUpper(trade.BaseAsset),
			Location:     models.LocationBinanceSpot,
			Type:         models.TxTrade,
			SourceSystem: "binance_csv",
		})
		legs = append(legs, models.NormalizedTx{
			ID:           fmt.Sprintf("binance-%d-quote", i),
			Timestamp:    trade.Timestamp,
			Asset:        strings.ToUpper(trade.QuoteAsset),
			Amount:       quoteAmount,
			FeeAsset:     strings.ToUpper(trade.QuoteAsset),
			Location:     models.LocationBinanceSpot,
			Type:         models.TxTrade,
			SourceSystem: "binance_csv",
		})

		if trade.FeeAmount > 0 && trade.FeeAsset != "" && trade.FeeAsset != models.UnknownAsset {
			legs = append(legs, models.NormalizedTx{
				ID:           fmt.Sprintf("binance-%d-fee", i),
				Timestamp:    trade.Timestamp,
				Asset:        strings.ToUpper(trade.FeeAsset),
				Amount:       -trade.FeeAmount,
				FeeAsset:     strings.ToUpper(trade.FeeAsset),
				Location:     models.LocationBinanceSpot,
				Type:         models.TxTrade,
				SourceSystem: "binance_csv",
			})
		}
	}

	for i, movement := range movements {
		txType := models.TxWithdrawal
		amount := -movement.Amount
		if movement.Type == models.MovementDeposit {
			txType = models.TxDeposit
			amount = movement.Amount
		}
		legs = append(legs, models.NormalizedTx{
			ID:           fmt.Sprintf("binance-mov-%d", i),
			Timestamp:    movement.Timestamp,
			Asset:        strings.ToUpper(movement.Asset),
			Amount:       amount,
			FeeAsset:     strings.ToUpper(movement.Asset),
			Location:     models.LocationBinanceSpot,
			Type:         txType,
			SourceSystem: "binance_csv",
		})
	}

	return legs
}

// StatementMovementID returns the leg id FromStatement assigns to the
// cash movement at index i.
func StatementMovementID(i int) string {
	return fmt.Sprintf("binance-mov-%d", i)
}
