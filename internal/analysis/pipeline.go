package analysis

import (
	"sort"

	"github.com/almariscal/criptohacienda/internal/models"
)

// Result bundles everything the combined analysis derives from a unified
// transaction stream.
type Result struct {
	Transactions       []models.NormalizedTx         `json:"transactions"`
	ReconciledPairs    int                           `json:"reconciled_pairs"`
	BalancesByLocation map[string]map[string]float64 `json:"balances_by_location"`
	PnLSummary         map[string]float64            `json:"pnl_summary"`
	Timeline           map[string]float64            `json:"timeline"`
	AssetHistory       map[string][]BalancePoint     `json:"asset_history"`
	AssetBreakdown     []AssetBreakdown              `json:"asset_breakdown"`
}

// Run reconciles internal transfers across the combined stream, then replays
// it through the balance calculator and the per-asset breakdown. The input
// slice is not modified; reconciliation happens on a copy, which Run returns
// so callers can inspect the retyped legs.
func Run(txs []models.NormalizedTx) *Result {
	combined := make([]models.NormalizedTx, len(txs))
	copy(combined, txs)
	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Timestamp.Before(combined[j].Timestamp)
	})

	pairs := ReconcileInternalTransfers(combined)

	calc := NewCalculator()
	calc.Process(combined)

	return &Result{
		Transactions:       combined,
		ReconciledPairs:    pairs,
		BalancesByLocation: calc.BalancesByLocation(),
		PnLSummary:         calc.Summary(),
		Timeline:           calc.Timeline(),
		AssetHistory:       calc.History(),
		AssetBreakdown:     BuildAssetBreakdown(combined),
	}
}
