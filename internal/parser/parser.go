// Package parser normalizes raw exchange statement exports into trades and
// cash movements. Two header shapes are recognized: the trade-history export
// (one row per executed trade) and the account statement export (flat
// movement rows that must be grouped back into trades).
package parser

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/almariscal/criptohacienda/internal/models"
)

// Expected headers of the trade-history export.
var tradeHistoryHeaders = []string{
	"Date(UTC)",
	"Pair",
	"Side",
	"Price",
	"Executed",
	"Amount",
	"Fee",
	"Fee Asset",
}

// Expected headers of the account statement export.
var statementHeaders = []string{
	"User_ID",
	"UTC_Time",
	"Account",
	"Operation",
	"Coin",
	"Change",
	"Remark",
}

// fiatAssets are the symbols treated as fiat/stable when deciding the side
// of a reconstructed trade.
var fiatAssets = map[string]struct{}{
	"EUR":  {},
	"USD":  {},
	"USDT": {},
	"BUSD": {},
	"USDC": {},
	"GBP":  {},
	"TRY":  {},
}

// FormatError reports a malformed or unrecognized statement. A statement
// either normalizes completely or fails with a FormatError before any
// partial result is produced.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return e.Reason
}

func formatErrorf(format string, args ...any) *FormatError {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// ParseStatement classifies the CSV content by its header row and parses it.
// Trade-history exports produce trades only; account statements produce
// trades plus cash movements. Unrecognized headers are a classification
// failure, reported as a FormatError.
func ParseStatement(content string) ([]models.Trade, []models.CashMovement, error) {
	records, err := readRecords(content)
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, formatErrorf("statement is empty")
	}

	header := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		header[strings.TrimSpace(name)] = i
	}

	if hasHeaders(header, tradeHistoryHeaders) {
		trades, err := parseTradeHistory(header, records[1:])
		return trades, nil, err
	}
	if hasHeaders(header, statementHeaders) {
		return parseAccountStatement(header, records[1:])
	}

	return nil, nil, formatErrorf("CSV headers do not match any supported statement format")
}

func readRecords(content string) ([][]string, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, formatErrorf("invalid CSV: %v", err)
	}
	return records, nil
}

func hasHeaders(header map[string]int, required []string) bool {
	for _, name := range required {
		if _, ok := header[name]; !ok {
			return false
		}
	}
	return true
}

// field returns the named column of a row, or "" when the row is short.
func field(header map[string]int, row []string, name string) string {
	idx, ok := header[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// Timestamp layouts accepted in trade-history exports.
var tradeTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func parseTradeTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range tradeTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

// parseTradeHistory converts trade-history rows one-to-one into trades.
// Any corrupt row rejects the whole statement.
func parseTradeHistory(header map[string]int, rows [][]string) ([]models.Trade, error) {
	trades := make([]models.Trade, 0, len(rows))
	for _, row := range rows {
		trade, err := parseTradeRow(header, row)
		if err != nil {
			return nil, formatErrorf("invalid row %v: %v", row, err)
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

func parseTradeRow(header map[string]int, row []string) (models.Trade, error) {
	timestamp, err := parseTradeTime(field(header, row, "Date(UTC)"))
	if err != nil {
		return models.Trade{}, err
	}

	price, err := strconv.ParseFloat(strings.TrimSpace(field(header, row, "Price")), 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("invalid price: %w", err)
	}
	executed, err := strconv.ParseFloat(strings.TrimSpace(field(header, row, "Executed")), 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("invalid executed quantity: %w", err)
	}

	// Missing Amount falls back to Price * Executed.
	quoteAmount := price * executed
	if raw := strings.TrimSpace(field(header, row, "Amount")); raw != "" {
		quoteAmount, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.Trade{}, fmt.Errorf("invalid amount: %w", err)
		}
	}

	fee := 0.0
	if raw := strings.TrimSpace(field(header, row, "Fee")); raw != "" {
		fee, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.Trade{}, fmt.Errorf("invalid fee: %w", err)
		}
	}
	feeAsset := strings.ToUpper(strings.TrimSpace(field(header, row, "Fee Asset")))
	if feeAsset == "" {
		feeAsset = models.UnknownAsset
	}

	baseAsset, quoteAsset, err := SplitPair(field(header, row, "Pair"))
	if err != nil {
		return models.Trade{}, err
	}

	return models.Trade{
		Timestamp:   timestamp,
		BaseAsset:   baseAsset,
		QuoteAsset:  quoteAsset,
		Side:        strings.ToUpper(strings.TrimSpace(field(header, row, "Side"))),
		Price:       price,
		Amount:      executed,
		QuoteAmount: quoteAmount,
		FeeAmount:   fee,
		FeeAsset:    feeAsset,
	}, nil
}

func isFiat(symbol string) bool {
	_, ok := fiatAssets[strings.ToUpper(symbol)]
	return ok
}
