package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/almariscal/criptohacienda/internal/models"
)

const (
	blockstreamAPI = "https://blockstream.info/api"
	satoshi        = 100_000_000
)

// BTCImporter normalizes BTC wallet activity through the Blockstream API.
// Each transaction becomes one leg carrying the address's net value change.
type BTCImporter struct {
	httpClient *http.Client
	baseURL    string
	logger     *logrus.Logger
}

// NewBTCImporter creates a Blockstream-backed importer.
func NewBTCImporter(logger *logrus.Logger) *BTCImporter {
	return &BTCImporter{
		httpClient: &http.Client{Timeout: evmRequestTimeout},
		baseURL:    blockstreamAPI,
		logger:     logger,
	}
}

type btcPrevout struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"`
}

type btcVin struct {
	Prevout *btcPrevout `json:"prevout"`
}

type btcTx struct {
	TxID   string       `json:"txid"`
	Fee    int64        `json:"fee"`
	Vin    []btcVin     `json:"vin"`
	Vout   []btcPrevout `json:"vout"`
	Status struct {
		BlockTime int64 `json:"block_time"`
	} `json:"status"`
}

// Import fetches the transaction history of every address. The chains
// argument is ignored; BTC is single-chain.
func (im *BTCImporter) Import(ctx context.Context, addresses []string, _ []string) ([]models.NormalizedTx, error) {
	var normalized []models.NormalizedTx
	for _, address := range CleanAddresses(addresses) {
		txs, err := im.fetchAddressTxs(ctx, address)
		if err != nil {
			return nil, err
		}
		im.logger.Debugf("[btc] fetched %d transactions for %s", len(txs), address)
		for _, tx := range txs {
			change := addressValueChange(address, tx)
			if change == 0 {
				continue
			}

			txType := models.TxTransferOut
			feeBTC := float64(tx.Fee) / satoshi
			if change > 0 {
				txType = models.TxTransferIn
				feeBTC = 0
			}

			var src string
			if len(tx.Vin) > 0 && tx.Vin[0].Prevout != nil {
				src = tx.Vin[0].Prevout.ScriptPubKeyAddress
			}
			var dst string
			for _, out := range tx.Vout {
				if out.ScriptPubKeyAddress != address {
					dst = out.ScriptPubKeyAddress
					break
				}
			}

			normalized = append(normalized, models.NormalizedTx{
				ID:           fmt.Sprintf("btc-%s-%s", tx.TxID, address),
				Timestamp:    btcTimestamp(tx),
				Asset:        "BTC",
				Chain:        "bitcoin",
				Amount:       change,
				Fee:          feeBTC,
				FeeAsset:     "BTC",
				Location:     models.LocationWalletBTC,
				Address:      address,
				SrcAddress:   src,
				DstAddress:   dst,
				Type:         txType,
				SourceSystem: "btc_chain",
				TxHash:       tx.TxID,
			})
		}
	}
	return normalized, nil
}

func (im *BTCImporter) fetchAddressTxs(ctx context.Context, address string) ([]btcTx, error) {
	endpoint := fmt.Sprintf("%s/address/%s/txs", im.baseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := im.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blockstream request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blockstream returned status %d for %s", resp.StatusCode, address)
	}

	var txs []btcTx
	if err := json.NewDecoder(resp.Body).Decode(&txs); err != nil {
		return nil, fmt.Errorf("blockstream decode failed: %w", err)
	}
	return txs, nil
}

// addressValueChange is the net BTC the address gained (positive) or spent
// (negative) in one transaction.
func addressValueChange(address string, tx btcTx) float64 {
	var spent, received int64
	for _, vin := range tx.Vin {
		if vin.Prevout != nil && vin.Prevout.ScriptPubKeyAddress == address {
			spent += vin.Prevout.Value
		}
	}
	for _, out := range tx.Vout {
		if out.ScriptPubKeyAddress == address {
			received += out.Value
		}
	}
	return float64(received-spent) / satoshi
}

func btcTimestamp(tx btcTx) time.Time {
	if tx.Status.BlockTime > 0 {
		return time.Unix(tx.Status.BlockTime, 0).UTC()
	}
	return time.Now().UTC()
}
