package parser

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/almariscal/criptohacienda/internal/models"
)

// Operation labels emitted directly as cash movements instead of being
// grouped into trades.
var cashOperations = map[string]struct{}{
	"deposit":        {},
	"withdraw":       {},
	"airdrop assets": {},
}

const statementTimeLayout = "2006-01-02 15:04:05"

// movementEntry is one non-cash statement row awaiting grouping.
type movementEntry struct {
	timestamp time.Time
	order     int
	operation string
	coin      string
	change    decimal.Decimal
}

// movementGroup is a run of consecutive rows sharing a grouping key:
// "remark::<remark>" when the row carries a remark, "time::<raw ts>"
// otherwise.
type movementGroup struct {
	key     string
	entries []movementEntry
}

// movementTrade is a trade reconstructed from a balanced group, still in
// decimal form while fees are allocated.
type movementTrade struct {
	timestamp   time.Time
	baseAsset   string
	baseAmount  decimal.Decimal
	quoteAsset  string
	quoteAmount decimal.Decimal
	side        string
	feeAmount   decimal.Decimal
	feeAsset    string
}

// parseAccountStatement groups the flat movement rows of an account
// statement into trades and cash movements.
func parseAccountStatement(header map[string]int, rows [][]string) ([]models.Trade, []models.CashMovement, error) {
	groups, cashMovements, err := groupMovements(header, rows)
	if err != nil {
		return nil, nil, err
	}

	trades := make([]models.Trade, 0, len(groups))
	for _, entries := range mergeComplementaryGroups(groups) {
		built, err := buildTradesFromGroup(entries)
		if err != nil {
			return nil, nil, err
		}
		for _, trade := range built {
			trades = append(trades, trade.toModel())
		}
	}

	if len(trades) == 0 {
		return nil, nil, formatErrorf("no valid trades found in the account statement")
	}
	return trades, cashMovements, nil
}

func groupMovements(header map[string]int, rows [][]string) ([]movementGroup, []models.CashMovement, error) {
	var groups []movementGroup
	var cashMovements []models.CashMovement
	rowIndex := 0

	for _, row := range rows {
		timestampRaw := strings.TrimSpace(field(header, row, "UTC_Time"))
		if timestampRaw == "" {
			continue
		}
		timestamp, err := time.Parse(statementTimeLayout, timestampRaw)
		if err != nil {
			return nil, nil, formatErrorf("invalid timestamp: %s", timestampRaw)
		}

		operation := strings.TrimSpace(field(header, row, "Operation"))
		opNormalized := strings.ToLower(operation)
		coin := strings.ToUpper(strings.TrimSpace(field(header, row, "Coin")))
		changeRaw := strings.TrimSpace(field(header, row, "Change"))
		if coin == "" || changeRaw == "" {
			continue
		}
		change, err := decimal.NewFromString(changeRaw)
		if err != nil {
			return nil, nil, formatErrorf("invalid amount for %s at %s", coin, timestampRaw)
		}

		if _, ok := cashOperations[opNormalized]; ok {
			movementType := models.MovementWithdraw
			if change.IsPositive() {
				movementType = models.MovementDeposit
			}
			cashMovements = append(cashMovements, models.CashMovement{
				Timestamp: timestamp,
				Asset:     coin,
				Amount:    change.Abs().InexactFloat64(),
				Type:      movementType,
				Origin:    opNormalized,
			})
			rowIndex++
			continue
		}

		entry := movementEntry{
			timestamp: timestamp,
			order:     rowIndex,
			operation: operation,
			coin:      coin,
			change:    change,
		}
		rowIndex++

		groupID := movementGroupID(timestampRaw, strings.TrimSpace(field(header, row, "Remark")))
		if len(groups) == 0 || groups[len(groups)-1].key != groupID {
			groups = append(groups, movementGroup{key: groupID})
		}
		groups[len(groups)-1].entries = append(groups[len(groups)-1].entries, entry)
	}

	return groups, cashMovements, nil
}

func movementGroupID(timestampRaw, remark string) string {
	if remark != "" {
		return "remark::" + remark
	}
	return "time::" + timestampRaw
}

// mergeComplementaryGroups finalizes the bucket list. Fee-only groups are
// dropped (their cost stays unattached). A single-sided group is merged with
// the nearest following group carrying the complementary side and an
// identical non-fee operation set; the scan is greedy and stops at the first
// non-fee group that does not qualify.
func mergeComplementaryGroups(groups []movementGroup) [][]movementEntry {
	var merged [][]movementEntry
	idx := 0
	for idx < len(groups) {
		group := groups[idx]
		if isFeeOnly(group.entries) {
			idx++
			continue
		}

		if hasSingleSide(group.entries) {
			if partner := findPartnerGroup(groups, idx); partner >= 0 {
				combined := make([]movementEntry, 0, len(group.entries)+len(groups[partner].entries))
				combined = append(combined, group.entries...)
				combined = append(combined, groups[partner].entries...)
				sortByOrder(combined)
				merged = append(merged, combined)
				idx = partner + 1
				continue
			}
		}

		entries := make([]movementEntry, len(group.entries))
		copy(entries, group.entries)
		sortByOrder(entries)
		merged = append(merged, entries)
		idx++
	}
	return merged
}

// findPartnerGroup returns the index of the merge partner for the group at
// currentIndex, or -1 when none qualifies.
func findPartnerGroup(groups []movementGroup, currentIndex int) int {
	current := groups[currentIndex]
	currentSignature := operationSignature(current.entries)
	if len(currentSignature) == 0 {
		return -1
	}
	currentHasPositive := hasPositiveEntries(current.entries)

	for next := currentIndex + 1; next < len(groups); next++ {
		candidate := groups[next]
		if isFeeOnly(candidate.entries) {
			continue
		}
		if signaturesEqual(operationSignature(candidate.entries), currentSignature) &&
			hasPositiveEntries(candidate.entries) != currentHasPositive &&
			hasSingleSide(candidate.entries) {
			return next
		}
		break
	}
	return -1
}

// operationSignature is the set of normalized non-fee operation labels.
func operationSignature(entries []movementEntry) map[string]struct{} {
	signature := make(map[string]struct{})
	for _, entry := range entries {
		if !isFeeOperation(entry.operation) {
			signature[strings.ToLower(strings.TrimSpace(entry.operation))] = struct{}{}
		}
	}
	return signature
}

func signaturesEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for key := range a {
		if _, ok := b[key]; !ok {
			return false
		}
	}
	return true
}

func hasPositiveEntries(entries []movementEntry) bool {
	for _, entry := range entries {
		if entry.change.IsPositive() && !isFeeOperation(entry.operation) {
			return true
		}
	}
	return false
}

func hasNegativeEntries(entries []movementEntry) bool {
	for _, entry := range entries {
		if entry.change.IsNegative() && !isFeeOperation(entry.operation) {
			return true
		}
	}
	return false
}

func hasSingleSide(entries []movementEntry) bool {
	hasPositive := hasPositiveEntries(entries)
	hasNegative := hasNegativeEntries(entries)
	return (hasPositive || hasNegative) && hasPositive != hasNegative
}

func isFeeOnly(entries []movementEntry) bool {
	for _, entry := range entries {
		if !isFeeOperation(entry.operation) {
			return false
		}
	}
	return true
}

func isFeeOperation(operation string) bool {
	op := strings.ToLower(strings.TrimSpace(operation))
	return strings.Contains(op, "fee") || strings.Contains(op, "commission")
}

func sortByOrder(entries []movementEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].order < entries[j].order
	})
}

// buildTradesFromGroup pairs the positive and negative legs of a finalized
// group positionally into trades and allocates the pooled fees. A group
// whose leg counts differ is an unbalanced trade error; a one-sided group
// yields nothing.
func buildTradesFromGroup(entries []movementEntry) ([]movementTrade, error) {
	var positive, negative []movementEntry
	fees := make(map[string]decimal.Decimal)
	var feeOrder []string

	for _, entry := range entries {
		if isFeeOperation(entry.operation) {
			if _, ok := fees[entry.coin]; !ok {
				feeOrder = append(feeOrder, entry.coin)
			}
			fees[entry.coin] = fees[entry.coin].Add(entry.change.Abs())
			continue
		}
		switch {
		case entry.change.IsPositive():
			positive = append(positive, entry)
		case entry.change.IsNegative():
			negative = append(negative, entry)
		}
	}

	if len(positive) == 0 || len(negative) == 0 {
		return nil, nil
	}
	if len(positive) != len(negative) {
		return nil, formatErrorf("unbalanced trade group at %s", positive[0].timestamp.Format(time.RFC3339))
	}

	trades := make([]movementTrade, 0, len(positive))
	for i := range positive {
		trades = append(trades, buildTradeFromLegs(positive[i], negative[i]))
	}

	if len(fees) > 0 {
		if err := applyFees(trades, fees, feeOrder); err != nil {
			return nil, err
		}
	}
	return trades, nil
}

func buildTradeFromLegs(pos, neg movementEntry) movementTrade {
	posAmount := pos.change
	negAmount := neg.change.Abs()

	// A fiat asset received for a non-fiat asset is a disposal of the
	// crypto leg; everything else (including fiat-for-fiat) is a buy of
	// the received asset.
	if isFiat(pos.coin) && !isFiat(neg.coin) {
		return movementTrade{
			timestamp:   pos.timestamp,
			baseAsset:   neg.coin,
			baseAmount:  negAmount,
			quoteAsset:  pos.coin,
			quoteAmount: posAmount,
			side:        models.SideSell,
			feeAsset:    models.UnknownAsset,
		}
	}
	return movementTrade{
		timestamp:   pos.timestamp,
		baseAsset:   pos.coin,
		baseAmount:  posAmount,
		quoteAsset:  neg.coin,
		quoteAmount: negAmount,
		side:        models.SideBuy,
		feeAsset:    models.UnknownAsset,
	}
}

// applyFees distributes each pooled fee asset across the group's trades
// proportionally to the quantity each trade moves in that asset. A trade
// may end up with at most one fee asset.
func applyFees(trades []movementTrade, fees map[string]decimal.Decimal, feeOrder []string) error {
	for _, asset := range feeOrder {
		totalFee := fees[asset]

		type candidate struct {
			index  int
			weight decimal.Decimal
		}
		var candidates []candidate
		weightSum := decimal.Zero
		for i := range trades {
			switch asset {
			case trades[i].baseAsset:
				candidates = append(candidates, candidate{i, trades[i].baseAmount})
				weightSum = weightSum.Add(trades[i].baseAmount)
			case trades[i].quoteAsset:
				candidates = append(candidates, candidate{i, trades[i].quoteAmount})
				weightSum = weightSum.Add(trades[i].quoteAmount)
			}
		}
		if weightSum.IsZero() {
			continue
		}

		for _, cand := range candidates {
			share := totalFee.Mul(cand.weight).Div(weightSum)
			if share.IsZero() {
				continue
			}
			trade := &trades[cand.index]
			if trade.feeAsset != models.UnknownAsset && trade.feeAsset != asset {
				return formatErrorf("multiple fee assets for trade at %s", trade.timestamp.Format(time.RFC3339))
			}
			trade.feeAsset = asset
			trade.feeAmount = trade.feeAmount.Add(share)
		}
	}
	return nil
}

func (t movementTrade) price() decimal.Decimal {
	if t.baseAmount.IsZero() {
		return decimal.Zero
	}
	return t.quoteAmount.Div(t.baseAmount)
}

func (t movementTrade) toModel() models.Trade {
	feeAsset := models.UnknownAsset
	if t.feeAmount.IsPositive() {
		feeAsset = t.feeAsset
	}
	return models.Trade{
		Timestamp:   t.timestamp,
		BaseAsset:   t.baseAsset,
		QuoteAsset:  t.quoteAsset,
		Side:        t.side,
		Price:       t.price().InexactFloat64(),
		Amount:      t.baseAmount.InexactFloat64(),
		QuoteAmount: t.quoteAmount.InexactFloat64(),
		FeeAmount:   t.feeAmount.InexactFloat64(),
		FeeAsset:    feeAsset,
	}
}
