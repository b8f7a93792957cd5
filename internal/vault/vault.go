// Package vault picks the markets offered as looping vaults and formats
// them for the selector.
package vault

import (
	"fmt"
	"sort"
	"strings"

	"loop-dash/internal/market"
)

const unknownSymbol = "Unknown"

// ethCollaterals is matched by substring, so "WSTETH" also hits "ETH".
var ethCollaterals = []string{"ETH", "WETH", "STETH", "WSTETH", "CBETH", "RETH"}

func IsETHCollateral(symbol string) bool {
	upper := strings.ToUpper(symbol)
	for _, eth := range ethCollaterals {
		if strings.Contains(upper, eth) {
			return true
		}
	}
	return false
}

// Select keeps ETH-collateral markets and orders them by available
// liquidity, largest first. Ties keep their input order.
func Select(markets []market.Market) []market.Market {
	out := make([]market.Market, 0, len(markets))
	for _, m := range markets {
		if m.CollateralAsset.Symbol == "" || !IsETHCollateral(m.CollateralAsset.Symbol) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].State.LiquidityAssetsUSD > out[j].State.LiquidityAssetsUSD
	})
	return out
}

type Option struct {
	ID         string `json:"id"`
	Collateral string `json:"collateral"`
	Loan       string `json:"loan"`
	SupplyAPY  string `json:"supplyApy"`
	Liquidity  string `json:"liquidity"`
	Selected   bool   `json:"selected"`
}

func (o Option) Label() string {
	return fmt.Sprintf("%s | %s | %s | %s", o.Collateral, o.Loan, o.SupplyAPY, o.Liquidity)
}

// Options builds the selector rows for the selected markets.
func Options(markets []market.Market, selectedID string) []Option {
	selected := Select(markets)
	out := make([]Option, 0, len(selected))
	for _, m := range selected {
		out = append(out, Option{
			ID:         m.ID,
			Collateral: symbolOrUnknown(m.CollateralAsset.Symbol),
			Loan:       symbolOrUnknown(m.LoanAsset.Symbol),
			SupplyAPY:  FormatAPY(m.DailyAPYs.SupplyAPY),
			Liquidity:  FormatLiquidity(m.State.LiquidityAssetsUSD),
			Selected:   selectedID != "" && strings.EqualFold(m.ID, selectedID),
		})
	}
	return out
}

// FormatAPY renders a fractional rate as a percentage with two decimals.
func FormatAPY(rate float64) string {
	return fmt.Sprintf("%.2f%%", rate*100)
}

// FormatLiquidity renders USD liquidity in millions, e.g. "$12.34M".
func FormatLiquidity(usd float64) string {
	return fmt.Sprintf("$%.2fM", usd/1_000_000)
}

func symbolOrUnknown(symbol string) string {
	if symbol == "" {
		return unknownSymbol
	}
	return symbol
}
