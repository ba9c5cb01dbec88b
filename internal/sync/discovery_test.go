package sync

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/exchange"
)

func balance(asset string, free int64) exchange.Balance {
	return exchange.Balance{Asset: asset, Free: decimal.NewFromInt(free)}
}

func pair(symbol, base, quote string) exchange.SymbolInfo {
	return exchange.SymbolInfo{Symbol: symbol, Status: "TRADING", BaseAsset: base, QuoteAsset: quote}
}

// TestDiscoverSymbols tests the held-plus-eligible selection rule
func TestDiscoverSymbols(t *testing.T) {
	catalog := []exchange.SymbolInfo{
		pair("BTCUSDT", "BTC", "USDT"),
		pair("ETHBTC", "ETH", "BTC"),
		pair("DOGEUSDT", "DOGE", "USDT"),
		pair("ADATRY", "ADA", "TRY"),
		pair("ETHUSDT", "ETH", "USDT"),
	}

	tests := []struct {
		name     string
		balances []exchange.Balance
		explicit []string
		tracked  []string
		want     []string
	}{
		{
			name:     "held base against major quote",
			balances: []exchange.Balance{balance("BTC", 1)},
			want:     []string{"BTCUSDT", "ETHBTC"},
		},
		{
			name:     "zero balances select nothing",
			balances: []exchange.Balance{balance("BTC", 0)},
			want:     []string{},
		},
		{
			name:     "minor quote needs both sides held",
			balances: []exchange.Balance{balance("ADA", 5)},
			want:     []string{},
		},
		{
			name:     "minor quote held on both sides",
			balances: []exchange.Balance{balance("ADA", 5), balance("TRY", 100)},
			want:     []string{"ADATRY"},
		},
		{
			name:     "explicit and tracked symbols survive zero balances",
			balances: nil,
			explicit: []string{"DOGEUSDT"},
			tracked:  []string{"ETHUSDT"},
			want:     []string{"DOGEUSDT", "ETHUSDT"},
		},
		{
			name:     "union is deduplicated and sorted",
			balances: []exchange.Balance{balance("ETH", 2)},
			tracked:  []string{"ETHUSDT", "BTCUSDT"},
			want:     []string{"BTCUSDT", "ETHBTC", "ETHUSDT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DiscoverSymbols(tt.balances, catalog, tt.explicit, tt.tracked)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DiscoverSymbols = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestDiscoverSymbolsSkipsNonTrading tests the status filter
func TestDiscoverSymbolsSkipsNonTrading(t *testing.T) {
	catalog := []exchange.SymbolInfo{
		{Symbol: "LUNAUSDT", Status: "BREAK", BaseAsset: "LUNA", QuoteAsset: "USDT"},
		pair("BTCUSDT", "BTC", "USDT"),
	}
	balances := []exchange.Balance{balance("LUNA", 10), balance("BTC", 1)}

	got := DiscoverSymbols(balances, catalog, nil, nil)
	want := []string{"BTCUSDT"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DiscoverSymbols = %v, want %v", got, want)
	}
}

// TestDiscoverSymbolsLockedBalanceCounts tests that locked holdings count
func TestDiscoverSymbolsLockedBalanceCounts(t *testing.T) {
	catalog := []exchange.SymbolInfo{pair("BTCUSDT", "BTC", "USDT")}
	balances := []exchange.Balance{{Asset: "BTC", Locked: decimal.NewFromInt(1)}}

	got := DiscoverSymbols(balances, catalog, nil, nil)
	if !reflect.DeepEqual(got, []string{"BTCUSDT"}) {
		t.Errorf("DiscoverSymbols = %v, want [BTCUSDT]", got)
	}
}
