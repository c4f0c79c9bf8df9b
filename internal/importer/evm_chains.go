package importer

import "os"

// ChainConfig describes one supported EVM-compatible chain and its
// etherscan-family explorer endpoint.
type ChainConfig struct {
	ChainID         string
	BaseURL         string
	Symbol          string
	Decimals        int
	APIKeyEnv       string
	APIChain        string
	ChainIdentifier string
}

// APIKey reads the chain's explorer API key from the environment.
func (c ChainConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// ChainConfigs lists the supported EVM chains keyed by chain id.
var ChainConfigs = map[string]ChainConfig{
	"ethereum":  {"ethereum", "https://api.etherscan.io/v2/api", "ETH", 18, "ETHERSCAN_API_KEY", "eth", "1"},
	"arbitrum":  {"arbitrum", "https://api.arbiscan.io/v2/api", "ETH", 18, "ARBISCAN_API_KEY", "arb", "42161"},
	"base":      {"base", "https://api.basescan.org/v2/api", "ETH", 18, "BASESCAN_API_KEY", "base", "8453"},
	"polygon":   {"polygon", "https://api.polygonscan.com/v2/api", "MATIC", 18, "POLYGONSCAN_API_KEY", "matic", "137"},
	"optimism":  {"optimism", "https://api-optimistic.etherscan.io/v2/api", "ETH", 18, "OPTIMISTICSCAN_API_KEY", "opt", "10"},
	"bsc":       {"bsc", "https://api.bscscan.com/v2/api", "BNB", 18, "BSCSCAN_API_KEY", "bsc", "56"},
	"avalanche": {"avalanche", "https://api.snowtrace.io/v2/api", "AVAX", 18, "SNOWTRACE_API_KEY", "avax", "43114"},
}
