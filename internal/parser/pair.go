package parser

import "strings"

// Quote symbols tried as suffixes when a pair has no explicit separator.
// Order matters: longer stable symbols are tried before the short majors.
var quoteCandidates = []string{"USDT", "BUSD", "USDC", "EUR", "USD", "GBP", "TRY", "BNB", "BTC", "ETH"}

// SplitPair splits a trading-pair symbol into base and quote assets.
// It tries an explicit "/" separator first, then a suffix match against the
// common quote symbols, and falls back to a midpoint split for long tokens.
func SplitPair(rawPair string) (string, string, error) {
	if strings.Contains(rawPair, "/") {
		parts := strings.SplitN(rawPair, "/", 2)
		return strings.ToUpper(strings.TrimSpace(parts[0])), strings.ToUpper(strings.TrimSpace(parts[1])), nil
	}

	token := strings.ToUpper(strings.TrimSpace(rawPair))
	for _, suffix := range quoteCandidates {
		if strings.HasSuffix(token, suffix) && len(token) > len(suffix) {
			return token[:len(token)-len(suffix)], suffix, nil
		}
	}
	if len(token) < 6 {
		return "", "", formatErrorf("could not parse trading pair: %s", rawPair)
	}
	midpoint := len(token) / 2
	return token[:midpoint], token[midpoint:], nil
}
