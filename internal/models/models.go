// Package models defines the domain models used across the application.
package models

import "time"

// Trade sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// UnknownAsset marks a fee whose asset could not be determined.
const UnknownAsset = "UNKNOWN"

// Trade is one atomic exchange of a base asset against a quote asset.
// Amounts are always positive; Side carries the direction.
type Trade struct {
	// Timestamp is when the trade executed (UTC).
	Timestamp time.Time `json:"timestamp"`

	// BaseAsset is the asset acquired (BUY) or disposed (SELL).
	BaseAsset string `json:"base_asset"`

	// QuoteAsset is the asset given (BUY) or received (SELL) in exchange.
	QuoteAsset string `json:"quote_asset"`

	// Side is "BUY" or "SELL".
	Side string `json:"side"`

	// Price is the unit price, QuoteAmount / Amount.
	Price float64 `json:"price"`

	// Amount is the executed base quantity, strictly positive.
	Amount float64 `json:"amount"`

	// QuoteAmount is the total quote quantity, strictly positive.
	QuoteAmount float64 `json:"quote_amount"`

	// FeeAmount is the fee charged, in FeeAsset units.
	FeeAmount float64 `json:"fee_amount"`

	// FeeAsset is the asset the fee was charged in, or "UNKNOWN".
	FeeAsset string `json:"fee_asset"`
}

// Cash movement directions.
const (
	MovementDeposit  = "deposit"
	MovementWithdraw = "withdraw"
)

// CashMovement is a fiat or crypto inflow/outflow that is not part of a
// trade. Also used as the catch-all for wallet legs that could not be
// paired into a trade.
type CashMovement struct {
	Timestamp time.Time `json:"timestamp"`
	Asset     string    `json:"asset"`

	// Amount is always positive; Type carries the direction.
	Amount float64 `json:"amount"`

	// Type is "deposit" or "withdraw".
	Type string `json:"type"`

	// Origin is a free-text provenance label, e.g. "deposit", "airdrop assets".
	Origin string `json:"origin"`
}

// NormalizedTx semantic types.
const (
	TxTrade       = "trade"
	TxTransferIn  = "transfer_in"
	TxTransferOut = "transfer_out"
	TxDeposit     = "deposit"
	TxWithdrawal  = "withdrawal"
	TxBridge      = "bridge"
	TxOther       = "other"
)

// Known transaction locations.
const (
	LocationBinanceSpot = "binance_spot"
	LocationWalletBTC   = "wallet_btc"
	LocationWalletEVM   = "wallet_evm"
)

// NormalizedTx is one transaction leg in the common shape produced by the
// wallet and statement importers. Amount is signed: positive means inbound.
type NormalizedTx struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Asset     string    `json:"asset"`

	// Chain is the blockchain identifier for on-chain legs, empty otherwise.
	Chain string `json:"chain,omitempty"`

	// Amount is the signed quantity; positive = inbound.
	Amount float64 `json:"amount"`

	Fee      float64 `json:"fee"`
	FeeAsset string  `json:"fee_asset"`

	// Location tags where the leg was observed, e.g. "binance_spot",
	// "wallet_evm".
	Location string `json:"location"`

	Address    string `json:"address,omitempty"`
	SrcAddress string `json:"src_address,omitempty"`
	DstAddress string `json:"dst_address,omitempty"`

	// Type is the semantic type, one of the Tx* constants.
	Type string `json:"type"`

	// SourceSystem names the importer that produced the leg.
	SourceSystem string `json:"source_system"`

	// TxHash groups the legs of one on-chain transaction. Legs without a
	// hash cannot be paired into trades.
	TxHash string `json:"tx_hash,omitempty"`

	// TokenAddress is the contract address for token transfers.
	TokenAddress string `json:"token_address,omitempty"`

	// GasFee marks a synthetic gas-spend leg when positive.
	GasFee float64 `json:"gas_fee,omitempty"`
}

// Lot is a FIFO-tracked parcel of an asset with its acquisition cost.
type Lot struct {
	// Amount is the remaining quantity of the lot.
	Amount float64 `json:"amount"`

	// CostPerUnit is the EUR acquisition cost per unit.
	CostPerUnit float64 `json:"cost_per_unit"`
}

// RealizedGain is the result of one FIFO disposal.
type RealizedGain struct {
	Timestamp    time.Time `json:"timestamp"`
	Asset        string    `json:"asset"`
	Quantity     float64   `json:"quantity"`
	ProceedsEUR  float64   `json:"proceeds_eur"`
	CostBasisEUR float64   `json:"cost_basis_eur"`
	FeesEUR      float64   `json:"fees_eur"`

	// GainEUR = ProceedsEUR - CostBasisEUR - FeesEUR.
	GainEUR float64 `json:"gain_eur"`

	// Note says why the disposal happened, e.g. "Sold base asset".
	Note string `json:"note"`
}

// PortfolioSnapshot is the portfolio state after one timeline event.
type PortfolioSnapshot struct {
	Timestamp  time.Time `json:"timestamp"`
	TotalValue float64   `json:"total_value"`

	// AssetValues maps asset -> EUR value at the snapshot timestamp.
	AssetValues map[string]float64 `json:"asset_values"`

	// AssetQuantities maps asset -> held quantity.
	AssetQuantities map[string]float64 `json:"asset_quantities"`

	TotalDepositedEUR float64 `json:"total_deposited_eur"`
	TotalWithdrawnEUR float64 `json:"total_withdrawn_eur"`
}

// SessionData is the full immutable result set of one processing run.
// A session is only published once the whole pipeline succeeded.
type SessionData struct {
	Trades             []Trade             `json:"trades"`
	RealizedGains      []RealizedGain      `json:"realized_gains"`
	Holdings           map[string][]Lot    `json:"holdings"`
	CashMovements      []CashMovement      `json:"cash_movements"`
	TotalInvestedEUR   float64             `json:"total_invested_eur"`
	TotalFeesEUR       float64             `json:"total_fees_eur"`
	TotalDepositedEUR  float64             `json:"total_deposited_eur"`
	TotalWithdrawnEUR  float64             `json:"total_withdrawn_eur"`
	PortfolioSnapshots []PortfolioSnapshot `json:"portfolio_snapshots"`

	// MissingPrices lists assets the oracle had no data for; figures
	// involving them are approximate.
	MissingPrices []string `json:"missing_prices"`
}

// Processing job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobError     = "error"
)

// ProcessingStep is one advisory pipeline step shown to pollers.
type ProcessingStep struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Status string `json:"status"`
}

// ProcessingJob tracks one background pipeline run. Progress is advisory
// only; correctness never depends on it.
type ProcessingJob struct {
	ID        string           `json:"id"`
	Status    string           `json:"status"`
	Steps     []ProcessingStep `json:"steps"`
	SessionID string           `json:"session_id,omitempty"`
	Error     string           `json:"error,omitempty"`
	Messages  []string         `json:"messages,omitempty"`
}
