package symbols

import "strings"

// aliases maps exchange-specific base currency spellings to the canonical
// asset name. KuCoin uses XBT for Bitcoin; Binance and Bybit list some low
// priced assets as 1000-multiples.
var aliases = map[string]string{
	"XBT":      "BTC",
	"1000PEPE": "PEPE",
	"1000SHIB": "SHIB",
	"1000BONK": "BONK",
	"SHIB1000": "SHIB",
}

// Normalize maps an exchange base currency to its canonical asset name.
func Normalize(base string) string {
	base = strings.ToUpper(base)
	if canonical, ok := aliases[base]; ok {
		return canonical
	}
	return base
}

// BaseAsset extracts the normalized base asset from an exchange-specific
// perpetual contract name and reports whether the contract is quoted in the
// given stablecoin. Formats handled:
//
//	binance BTCUSDT
//	bybit   BTCUSDT, SHIB1000USDT
//	okx     BTC-USDT-SWAP
//	kucoin  XBTUSDTM
//
// Anything else returns ok=false so callers can drop it silently.
func BaseAsset(exchange, contract, quote string) (string, bool) {
	contract = strings.ToUpper(strings.TrimSpace(contract))
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if contract == "" || quote == "" {
		return "", false
	}

	switch strings.ToLower(exchange) {
	case "binance", "bybit":
		base, ok := strings.CutSuffix(contract, quote)
		if !ok || base == "" {
			return "", false
		}
		return Normalize(base), true
	case "okx":
		parts := strings.Split(contract, "-")
		if len(parts) != 3 || parts[0] == "" || parts[1] != quote || parts[2] != "SWAP" {
			return "", false
		}
		return Normalize(parts[0]), true
	case "kucoin":
		base, ok := strings.CutSuffix(strings.TrimSuffix(contract, "M"), quote)
		if !ok || base == "" {
			return "", false
		}
		return Normalize(base), true
	default:
		return "", false
	}
}

// Set is a lookup table of supported base assets.
type Set map[string]struct{}

// NewSet builds a Set from the configured asset list.
func NewSet(assets []string) Set {
	s := make(Set, len(assets))
	for _, a := range assets {
		s[strings.ToUpper(strings.TrimSpace(a))] = struct{}{}
	}
	return s
}

// Contains reports whether the asset is in the supported set.
func (s Set) Contains(asset string) bool {
	_, ok := s[strings.ToUpper(asset)]
	return ok
}

// Assets returns the set contents in unspecified order.
func (s Set) Assets() []string {
	out := make([]string, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	return out
}
