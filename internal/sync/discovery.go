// Package sync implements the incremental synchronization engine: symbol
// discovery, cursor-resumable dataset synchronizers and the per-integration
// orchestrator.
package sync

import (
	"sort"

	"github.com/portfolio-tracker/internal/exchange"
)

// quoteAllowList holds the major quote currencies discovery considers
// eligible even with a zero balance, so quote-side pairs of held assets are
// still tracked.
var quoteAllowList = map[string]bool{
	"USDT":  true,
	"USDC":  true,
	"FDUSD": true,
	"BUSD":  true,
	"BTC":   true,
	"ETH":   true,
	"BNB":   true,
	"EUR":   true,
}

// DiscoverSymbols computes the set of trading-pair symbols worth polling:
// pairs where one side is actually held and the other side is held or a major
// quote currency, plus explicitly requested and previously tracked symbols.
// The result is sorted lexicographically for deterministic iteration.
func DiscoverSymbols(balances []exchange.Balance, catalog []exchange.SymbolInfo, explicit, tracked []string) []string {
	hasBalance := make(map[string]bool, len(balances))
	for _, b := range balances {
		if b.Total().IsPositive() {
			hasBalance[b.Asset] = true
		}
	}

	// eligible = held or allow-listed; a symbol needs at least one side with
	// a real balance.
	eligible := func(asset string) bool {
		return hasBalance[asset] || quoteAllowList[asset]
	}

	selected := make(map[string]bool)
	for _, info := range catalog {
		if info.Status != "" && info.Status != "TRADING" {
			continue
		}
		baseHeld := hasBalance[info.BaseAsset]
		quoteHeld := hasBalance[info.QuoteAsset]
		if (baseHeld && eligible(info.QuoteAsset)) || (quoteHeld && eligible(info.BaseAsset)) {
			selected[info.Symbol] = true
		}
	}

	// A zero-balance asset that was once traded keeps being synced.
	for _, s := range explicit {
		if s != "" {
			selected[s] = true
		}
	}
	for _, s := range tracked {
		if s != "" {
			selected[s] = true
		}
	}

	symbols := make([]string, 0, len(selected))
	for s := range selected {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}
