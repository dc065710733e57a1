package symbols

import "testing"

func TestBaseAsset(t *testing.T) {
	cases := []struct {
		exchange string
		contract string
		base     string
		ok       bool
	}{
		{"binance", "BTCUSDT", "BTC", true},
		{"binance", "1000PEPEUSDT", "PEPE", true},
		{"binance", "BTCUSDC", "", false},
		{"binance", "USDT", "", false},
		{"bybit", "ETHUSDT", "ETH", true},
		{"bybit", "SHIB1000USDT", "SHIB", true},
		{"okx", "BTC-USDT-SWAP", "BTC", true},
		{"okx", "BTC-USD-SWAP", "", false},
		{"okx", "BTC-USDT", "", false},
		{"kucoin", "XBTUSDTM", "BTC", true},
		{"kucoin", "SOLUSDTM", "SOL", true},
		{"kucoin", "XBTUSDM", "", false},
		{"kraken", "BTCUSDT", "", false},
	}
	for _, c := range cases {
		base, ok := BaseAsset(c.exchange, c.contract, "USDT")
		if ok != c.ok || base != c.base {
			t.Fatalf("BaseAsset(%s, %s) = %q, %v; want %q, %v", c.exchange, c.contract, base, ok, c.base, c.ok)
		}
	}
}

func TestSet(t *testing.T) {
	s := NewSet([]string{"btc", " ETH "})
	if !s.Contains("BTC") || !s.Contains("eth") {
		t.Fatalf("expected BTC and ETH in set")
	}
	if s.Contains("DOGE") {
		t.Fatalf("did not expect DOGE in set")
	}
	if len(s.Assets()) != 2 {
		t.Fatalf("expected 2 assets, got %v", s.Assets())
	}
}
