package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	coinGeckoBaseURL = "https://api.coingecko.com/api/v3"

	// Free tier allows roughly 4 requests per minute.
	coinGeckoRateLimit = 15 * time.Second
	coinGeckoTimeout   = 30 * time.Second
)

// symbolToGeckoID maps ticker symbols to CoinGecko asset ids. Unknown
// symbols fall back to the lowercased symbol.
var symbolToGeckoID = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"BNB":  "binancecoin",
	"USDT": "tether",
	"BUSD": "binance-usd",
	"USDC": "usd-coin",
	"ADA":  "cardano",
	"XRP":  "ripple",
	"DOT":  "polkadot",
	"SOL":  "solana",
}

// CoinGeckoProvider fetches daily EUR prices from the CoinGecko history
// endpoint. Requests are rate limited to stay inside the free tier.
type CoinGeckoProvider struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// NewCoinGeckoProvider creates a rate-limited CoinGecko provider.
func NewCoinGeckoProvider() *CoinGeckoProvider {
	return &CoinGeckoProvider{
		httpClient: &http.Client{Timeout: coinGeckoTimeout},
		limiter:    rate.NewLimiter(rate.Every(coinGeckoRateLimit), 1),
		baseURL:    coinGeckoBaseURL,
	}
}

func (p *CoinGeckoProvider) Name() string {
	return "coingecko"
}

func geckoID(symbol string) string {
	upper := strings.ToUpper(symbol)
	if id, ok := symbolToGeckoID[upper]; ok {
		return id
	}
	return strings.ToLower(upper)
}

type geckoHistoryResponse struct {
	MarketData *struct {
		CurrentPrice map[string]float64 `json:"current_price"`
	} `json:"market_data"`
}

// FetchPriceEUR fetches the EUR price of asset for the calendar day of at.
func (p *CoinGeckoProvider) FetchPriceEUR(ctx context.Context, asset string, at time.Time) (float64, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("%s/coins/%s/history", p.baseURL, url.PathEscape(geckoID(asset)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	query := req.URL.Query()
	query.Set("date", DayKey(at))
	query.Set("localization", "false")
	req.URL.RawQuery = query.Encode()

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("coingecko request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Unknown asset id: no data, not a provider failure.
		return 0, fmt.Errorf("%w: coingecko has no asset %s", ErrNoPrice, asset)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("coingecko returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("coingecko read failed: %w", err)
	}

	var payload geckoHistoryResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("coingecko decode failed: %w", err)
	}
	if payload.MarketData == nil {
		return 0, fmt.Errorf("%w: coingecko has no market data for %s at %s", ErrNoPrice, asset, DayKey(at))
	}
	price, ok := payload.MarketData.CurrentPrice["eur"]
	if !ok {
		return 0, fmt.Errorf("%w: coingecko has no EUR quote for %s", ErrNoPrice, asset)
	}
	return price, nil
}
