// Package analysis reconciles and aggregates the unified transaction
// stream: duplicate internal-transfer legs are neutralized, wallet legs are
// paired into synthetic trades and per-asset exposure is summarized.
package analysis

import (
	"sort"
	"time"

	"github.com/almariscal/criptohacienda/internal/models"
)

const (
	// matchWindow is how far apart the two legs of one transfer may be.
	matchWindow = 15 * time.Minute

	// matchTolerance allows the legs to differ by network fees.
	matchTolerance = 0.02
	toleranceFloor = 1e-8
)

// ReconcileInternalTransfers scans a merged transaction stream for the two
// legs of a single internal transfer observed by different sources and
// retypes both to "other" so they drop out of gain and inflow/outflow
// accounting. Matching is greedy first-found, each leg matches at most
// once, and the scan is idempotent: retyped legs are no longer candidates.
// Returns the number of matched pairs.
func ReconcileInternalTransfers(txs []models.NormalizedTx) int {
	candidates := make([]int, 0, len(txs))
	for i := range txs {
		if isTransferCandidate(txs[i].Type) {
			candidates = append(candidates, i)
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return txs[candidates[a]].Timestamp.Before(txs[candidates[b]].Timestamp)
	})

	matched := make(map[int]struct{})
	pairs := 0

	for a, i := range candidates {
		if _, ok := matched[i]; ok {
			continue
		}
		tx := &txs[i]
		for _, j := range candidates[a+1:] {
			if _, ok := matched[j]; ok {
				continue
			}
			other := &txs[j]
			if tx.Asset != other.Asset {
				continue
			}
			// The candidate list is time sorted, so once a candidate
			// falls outside the window nothing later can match.
			if other.Timestamp.Sub(tx.Timestamp) > matchWindow {
				break
			}
			if tx.Amount*other.Amount >= 0 {
				continue
			}
			if !amountsMatch(tx.Amount, other.Amount) {
				continue
			}
			if !locationsMatch(tx.Location, other.Location) {
				continue
			}
			tx.Type = models.TxOther
			other.Type = models.TxOther
			matched[i] = struct{}{}
			matched[j] = struct{}{}
			pairs++
			break
		}
	}
	return pairs
}

func isTransferCandidate(txType string) bool {
	switch txType {
	case models.TxTransferIn, models.TxTransferOut, models.TxDeposit, models.TxWithdrawal:
		return true
	}
	return false
}

func amountsMatch(a, b float64) bool {
	absA, absB := abs(a), abs(b)
	larger := absA
	if absB > larger {
		larger = absB
	}
	diff := absA - absB
	if diff < 0 {
		diff = -diff
	}
	return diff <= larger*matchTolerance+toleranceFloor
}

// locationsMatch accepts the recognized internal-transfer routes:
// exchange<->BTC wallet, exchange<->EVM wallet and EVM wallet<->EVM wallet.
func locationsMatch(loc1, loc2 string) bool {
	switch {
	case loc1 == models.LocationBinanceSpot && loc2 == models.LocationWalletBTC,
		loc1 == models.LocationWalletBTC && loc2 == models.LocationBinanceSpot:
		return true
	case loc1 == models.LocationBinanceSpot && loc2 == models.LocationWalletEVM,
		loc1 == models.LocationWalletEVM && loc2 == models.LocationBinanceSpot:
		return true
	case loc1 == models.LocationWalletEVM && loc2 == models.LocationWalletEVM:
		return true
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
