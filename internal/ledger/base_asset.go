package ledger

import "strings"

// quoteSuffixes is the ordered list of quote tickers used to strip the quote
// side off a trading-pair symbol. Longest match wins, so "ETHBTC" resolves to
// base "ETH" and "BTCUSDT" to "BTC".
var quoteSuffixes = []string{
	"FDUSD",
	"USDT",
	"USDC",
	"BUSD",
	"TUSD",
	"BIDR",
	"BRL",
	"DAI",
	"EUR",
	"GBP",
	"TRY",
	"BTC",
	"ETH",
	"BNB",
}

// ExtractBaseAsset derives the base asset of a trading symbol by stripping a
// known quote-currency suffix. This is a heuristic: a base asset whose name
// itself ends in a quote ticker is ambiguous, which is why callers should
// prefer a symbol catalog when one is available (see Aggregate's catalog
// argument). When no suffix matches, the whole symbol is returned unchanged.
func ExtractBaseAsset(symbol string) string {
	best := ""
	for _, quote := range quoteSuffixes {
		if len(symbol) > len(quote) && strings.HasSuffix(symbol, quote) && len(quote) > len(best) {
			best = quote
		}
	}
	if best == "" {
		return symbol
	}
	return strings.TrimSuffix(symbol, best)
}
