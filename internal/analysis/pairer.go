package analysis

import (
	"sort"
	"strings"

	"github.com/almariscal/criptohacienda/internal/models"
)

// PairWalletTrades converts wallet transaction legs into synthetic trades
// plus residual cash movements. Legs sharing a transaction hash form one
// group (processed in first-seen order); hashless legs become cash
// movements directly. Legs already neutralized by reconciliation are
// skipped entirely.
func PairWalletTrades(txs []models.NormalizedTx) ([]models.Trade, []models.CashMovement) {
	var trades []models.Trade
	var movements []models.CashMovement

	grouped := make(map[string][]models.NormalizedTx)
	var hashOrder []string

	for _, tx := range txs {
		if isNeutralized(tx) {
			continue
		}
		if tx.TxHash == "" {
			movements = append(movements, cashMovementFromLeg(tx))
			continue
		}
		if _, ok := grouped[tx.TxHash]; !ok {
			hashOrder = append(hashOrder, tx.TxHash)
		}
		grouped[tx.TxHash] = append(grouped[tx.TxHash], tx)
	}

	for _, hash := range hashOrder {
		groupTrades, groupMovements := pairGroup(grouped[hash])
		trades = append(trades, groupTrades...)
		movements = append(movements, groupMovements...)
	}
	return trades, movements
}

// isNeutralized reports whether a leg was retyped by the transfer
// reconciler. Gas legs also carry the neutral type but keep their role.
func isNeutralized(tx models.NormalizedTx) bool {
	return tx.Type == models.TxOther && tx.GasFee == 0
}

// pairGroup pairs the inbound and outbound token legs of one on-chain
// transaction positionally, largest first, into BUY trades. The pooled gas
// cost is split evenly across the pairs; unpaired legs become cash
// movements.
func pairGroup(group []models.NormalizedTx) ([]models.Trade, []models.CashMovement) {
	var tokens, gasLegs []models.NormalizedTx
	for _, tx := range group {
		if tx.GasFee > 0 {
			gasLegs = append(gasLegs, tx)
		} else {
			tokens = append(tokens, tx)
		}
	}

	var positives, negatives []models.NormalizedTx
	for _, tx := range tokens {
		switch {
		case tx.Amount > 0:
			positives = append(positives, tx)
		case tx.Amount < 0:
			negatives = append(negatives, tx)
		}
	}
	sort.SliceStable(positives, func(i, j int) bool {
		return positives[i].Amount > positives[j].Amount
	})
	sort.SliceStable(negatives, func(i, j int) bool {
		return abs(negatives[i].Amount) > abs(negatives[j].Amount)
	})

	numPairs := len(positives)
	if len(negatives) < numPairs {
		numPairs = len(negatives)
	}

	totalGas := 0.0
	gasAsset := ""
	for _, gas := range gasLegs {
		totalGas += abs(gas.Amount)
	}
	if len(gasLegs) > 0 {
		gasAsset = strings.ToUpper(gasLegs[0].Asset)
	}
	gasShare := 0.0
	if numPairs > 0 {
		gasShare = totalGas / float64(numPairs)
	}

	var trades []models.Trade
	for i := 0; i < numPairs; i++ {
		buyLeg := positives[i]
		sellLeg := negatives[i]
		amount := abs(buyLeg.Amount)
		quoteAmount := abs(sellLeg.Amount)
		if amount <= 0 || quoteAmount <= 0 {
			continue
		}
		feeAsset := gasAsset
		if feeAsset == "" {
			feeAsset = strings.ToUpper(sellLeg.Asset)
		}
		trades = append(trades, models.Trade{
			Timestamp:   buyLeg.Timestamp,
			BaseAsset:   strings.ToUpper(buyLeg.Asset),
			QuoteAsset:  strings.ToUpper(sellLeg.Asset),
			Side:        models.SideBuy,
			Price:       quoteAmount / amount,
			Amount:      amount,
			QuoteAmount: quoteAmount,
			FeeAmount:   gasShare,
			FeeAsset:    feeAsset,
		})
	}

	var movements []models.CashMovement
	for _, leftover := range positives[numPairs:] {
		movements = append(movements, cashMovementFromLeg(leftover))
	}
	for _, leftover := range negatives[numPairs:] {
		movements = append(movements, cashMovementFromLeg(leftover))
	}
	return trades, movements
}

func cashMovementFromLeg(tx models.NormalizedTx) models.CashMovement {
	movementType := models.MovementWithdraw
	if tx.Amount > 0 {
		movementType = models.MovementDeposit
	}
	return models.CashMovement{
		Timestamp: tx.Timestamp,
		Asset:     strings.ToUpper(tx.Asset),
		Amount:    abs(tx.Amount),
		Type:      movementType,
		Origin:    tx.SourceSystem,
	}
}
