package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/almariscal/criptohacienda/internal/models"
)

const evmRequestTimeout = 30 * time.Second

// EVMImporter normalizes native and token transactions of EVM wallet
// addresses through the etherscan-family explorer APIs.
type EVMImporter struct {
	httpClient *http.Client
	chains     map[string]ChainConfig
	logger     *logrus.Logger
}

// NewEVMImporter creates an importer over the supported chain set.
func NewEVMImporter(logger *logrus.Logger) *EVMImporter {
	return &EVMImporter{
		httpClient: &http.Client{Timeout: evmRequestTimeout},
		chains:     ChainConfigs,
		logger:     logger,
	}
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type explorerTx struct {
	Hash            string `json:"hash"`
	TimeStamp       string `json:"timeStamp"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	GasPrice        string `json:"gasPrice"`
	GasUsed         string `json:"gasUsed"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenName       string `json:"tokenName"`
	TokenDecimal    string `json:"tokenDecimal"`
	ContractAddress string `json:"contractAddress"`
}

// Import fetches the native and token history of every address on every
// requested chain. Unknown chain ids are skipped.
func (im *EVMImporter) Import(ctx context.Context, addresses []string, chains []string) ([]models.NormalizedTx, error) {
	var normalized []models.NormalizedTx
	for _, chainID := range chains {
		cfg, ok := im.chains[chainID]
		if !ok {
			im.logger.Warnf("[evm] unknown chain %q skipped", chainID)
			continue
		}
		for _, address := range CleanAddresses(addresses) {
			txs, err := im.fetchList(ctx, cfg, address, "txlist")
			if err != nil {
				return nil, err
			}
			for _, tx := range txs {
				normalized = append(normalized, im.normalizeNative(cfg, address, tx))
			}

			// Token transfer errors are soft: an address without token
			// activity reports an explorer error instead of an empty list.
			tokenTxs, err := im.fetchList(ctx, cfg, address, "tokentx")
			if err != nil {
				im.logger.Warnf("[evm] token transfers unavailable for %s on %s: %v", address, cfg.ChainID, err)
				continue
			}
			for _, tx := range tokenTxs {
				normalized = append(normalized, im.normalizeTokenTransfer(cfg, address, tx)...)
			}
		}
	}
	return normalized, nil
}

func (im *EVMImporter) fetchList(ctx context.Context, cfg ChainConfig, address, action string) ([]explorerTx, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL, nil)
	if err != nil {
		return nil, err
	}
	apiKey := cfg.APIKey()
	if apiKey == "" {
		apiKey = "YourApiKeyToken"
	}
	query := req.URL.Query()
	query.Set("module", "account")
	query.Set("action", action)
	query.Set("address", address)
	query.Set("startblock", "0")
	query.Set("endblock", "99999999")
	query.Set("sort", "asc")
	query.Set("chain", cfg.APIChain)
	query.Set("chainid", cfg.ChainIdentifier)
	query.Set("apikey", apiKey)
	req.URL.RawQuery = query.Encode()

	resp, err := im.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s explorer request failed: %w", cfg.ChainID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s explorer returned status %d", cfg.ChainID, resp.StatusCode)
	}

	var payload explorerResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%s explorer decode failed: %w", cfg.ChainID, err)
	}
	if payload.Status != "1" {
		message := payload.Message
		var detail string
		if err := json.Unmarshal(payload.Result, &detail); err == nil && detail != "" {
			message = message + ": " + detail
		}
		if strings.Contains(strings.ToUpper(message), "API KEY") {
			return nil, fmt.Errorf("%s explorer requires a valid API key (set %s)", cfg.ChainID, cfg.APIKeyEnv)
		}
		return nil, fmt.Errorf("%s explorer error: %s", cfg.ChainID, message)
	}

	var txs []explorerTx
	if err := json.Unmarshal(payload.Result, &txs); err != nil {
		return nil, fmt.Errorf("%s explorer response not understood", cfg.ChainID)
	}
	return txs, nil
}

func (im *EVMImporter) normalizeNative(cfg ChainConfig, address string, tx explorerTx) models.NormalizedTx {
	value := unitsToFloat(tx.Value, cfg.Decimals)
	fee := gasFee(tx.GasPrice, tx.GasUsed, cfg.Decimals)

	incoming := strings.EqualFold(tx.To, address)
	amount := value
	txType := models.TxTransferIn
	feeValue := fee
	if !incoming {
		amount = -value
		txType = models.TxTransferOut
	} else {
		feeValue = 0
	}

	return models.NormalizedTx{
		ID:           fmt.Sprintf("%s-%s-%s", cfg.ChainID, tx.Hash, address),
		Timestamp:    unixTime(tx.TimeStamp),
		Asset:        cfg.Symbol,
		Chain:        cfg.ChainID,
		Amount:       amount,
		Fee:          feeValue,
		FeeAsset:     cfg.Symbol,
		Location:     models.LocationWalletEVM,
		Address:      address,
		SrcAddress:   tx.From,
		DstAddress:   tx.To,
		Type:         txType,
		SourceSystem: "evm_chain",
		TxHash:       tx.Hash,
	}
}

// normalizeTokenTransfer converts one token transfer into a token leg plus,
// for outgoing transfers, a synthetic gas-spend leg so the paired trade can
// carry the gas cost.
func (im *EVMImporter) normalizeTokenTransfer(cfg ChainConfig, address string, tx explorerTx) []models.NormalizedTx {
	tokenDecimals := 0
	fmt.Sscanf(tx.TokenDecimal, "%d", &tokenDecimals)
	value := unitsToFloat(tx.Value, tokenDecimals)

	symbol := strings.ToUpper(tx.TokenSymbol)
	if symbol == "" {
		symbol = strings.ToUpper(tx.TokenName)
	}
	if symbol == "" {
		symbol = "TOKEN"
	}

	incoming := strings.EqualFold(tx.To, address)
	amount := value
	txType := models.TxTransferIn
	if !incoming {
		amount = -value
		txType = models.TxTransferOut
	}
	timestamp := unixTime(tx.TimeStamp)

	entry := models.NormalizedTx{
		ID:           fmt.Sprintf("%s-token-%s-%s-%s", cfg.ChainID, tx.Hash, symbol, address),
		Timestamp:    timestamp,
		Asset:        symbol,
		Chain:        cfg.ChainID,
		Amount:       amount,
		FeeAsset:     cfg.Symbol,
		Location:     models.LocationWalletEVM,
		Address:      address,
		SrcAddress:   tx.From,
		DstAddress:   tx.To,
		Type:         txType,
		SourceSystem: "evm_chain",
		TxHash:       tx.Hash,
		TokenAddress: tx.ContractAddress,
	}

	legs := []models.NormalizedTx{entry}
	if !incoming {
		if fee := gasFee(tx.GasPrice, tx.GasUsed, cfg.Decimals); fee > 0 {
			legs = append(legs, models.NormalizedTx{
				ID:           fmt.Sprintf("%s-gas-%s-%s", cfg.ChainID, tx.Hash, address),
				Timestamp:    timestamp,
				Asset:        cfg.Symbol,
				Chain:        cfg.ChainID,
				Amount:       -fee,
				FeeAsset:     cfg.Symbol,
				Location:     models.LocationWalletEVM,
				Address:      address,
				SrcAddress:   address,
				Type:         models.TxOther,
				SourceSystem: "evm_chain",
				TxHash:       tx.Hash,
				GasFee:       fee,
			})
		}
	}
	return legs
}

// unitsToFloat converts a raw integer amount string with the given number
// of decimals into a float. Values can exceed int64, so big integers are
// used for the intermediate math.
func unitsToFloat(raw string, decimals int) float64 {
	if raw == "" {
		return 0
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return 0
	}
	if decimals <= 0 {
		result, _ := new(big.Float).SetInt(value).Float64()
		return result
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quotient := new(big.Float).Quo(new(big.Float).SetInt(value), new(big.Float).SetInt(divisor))
	result, _ := quotient.Float64()
	return result
}

func gasFee(gasPrice, gasUsed string, decimals int) float64 {
	price, okPrice := new(big.Int).SetString(orZero(gasPrice), 10)
	used, okUsed := new(big.Int).SetString(orZero(gasUsed), 10)
	if !okPrice || !okUsed {
		return 0
	}
	total := new(big.Int).Mul(price, used)
	return unitsToFloat(total.String(), decimals)
}

func orZero(raw string) string {
	if raw == "" {
		return "0"
	}
	return raw
}

func unixTime(raw string) time.Time {
	var seconds int64
	fmt.Sscanf(raw, "%d", &seconds)
	return time.Unix(seconds, 0).UTC()
}
