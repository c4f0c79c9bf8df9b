package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	cryptoCompareBaseURL   = "https://min-api.cryptocompare.com/data/dayAvg"
	cryptoCompareRateLimit = 2 * time.Second
	cryptoCompareTimeout   = 15 * time.Second
)

// CryptoCompareProvider fetches daily average EUR prices from the
// CryptoCompare dayAvg endpoint. Used as the fallback behind CoinGecko.
type CryptoCompareProvider struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// NewCryptoCompareProvider creates a rate-limited CryptoCompare provider.
func NewCryptoCompareProvider() *CryptoCompareProvider {
	return &CryptoCompareProvider{
		httpClient: &http.Client{Timeout: cryptoCompareTimeout},
		limiter:    rate.NewLimiter(rate.Every(cryptoCompareRateLimit), 1),
		baseURL:    cryptoCompareBaseURL,
	}
}

func (p *CryptoCompareProvider) Name() string {
	return "cryptocompare"
}

type compareResponse struct {
	Response string  `json:"Response"`
	Message  string  `json:"Message"`
	EUR      float64 `json:"EUR"`
}

// FetchPriceEUR fetches the day-average EUR price of asset on the calendar
// day of at.
func (p *CryptoCompareProvider) FetchPriceEUR(ctx context.Context, asset string, at time.Time) (float64, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL, nil)
	if err != nil {
		return 0, err
	}
	query := req.URL.Query()
	query.Set("fsym", strings.ToUpper(asset))
	query.Set("tsym", ReferenceCurrency)
	query.Set("toTs", fmt.Sprintf("%d", at.UTC().Unix()))
	req.URL.RawQuery = query.Encode()

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("cryptocompare request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("cryptocompare returned status %d", resp.StatusCode)
	}

	var payload compareResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("cryptocompare decode failed: %w", err)
	}
	if payload.Response == "Error" {
		return 0, fmt.Errorf("%w: cryptocompare: %s", ErrNoPrice, payload.Message)
	}
	if payload.EUR <= 0 {
		return 0, fmt.Errorf("%w: cryptocompare has no EUR quote for %s", ErrNoPrice, asset)
	}
	return payload.EUR, nil
}
