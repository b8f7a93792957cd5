package market

import "loop-dash/internal/morpho"

// Normalize drops records missing any of collateralAsset, loanAsset, state
// or dailyApys and reshapes the rest. API order is preserved.
func Normalize(raw []morpho.RawMarket) []Market {
	out := make([]Market, 0, len(raw))
	for _, r := range raw {
		if r.CollateralAsset == nil || r.LoanAsset == nil || r.State == nil || r.DailyAPYs == nil {
			continue
		}
		out = append(out, Market{
			ID:              r.ID,
			LLTV:            r.LLTV.String(),
			CollateralPrice: r.CollateralPrice.String(),
			CollateralAsset: assetFromRaw(r.CollateralAsset, true),
			LoanAsset:       assetFromRaw(r.LoanAsset, false),
			State: State{
				SupplyAPY:          r.State.SupplyAPY,
				BorrowAPY:          r.State.BorrowAPY,
				SupplyAssetsUSD:    r.State.SupplyAssetsUSD,
				BorrowAssetsUSD:    r.State.BorrowAssetsUSD,
				LiquidityAssetsUSD: floatOrZero(r.State.LiquidityAssetsUSD),
			},
			DailyAPYs: DailyAPYs{
				SupplyAPY: r.DailyAPYs.SupplyAPY,
				BorrowAPY: r.DailyAPYs.BorrowAPY,
			},
		})
	}
	return out
}

func assetFromRaw(r *morpho.RawAsset, withYield bool) Asset {
	asset := Asset{
		Symbol:   r.Symbol,
		PriceUSD: copyFloat(r.PriceUSD),
		Decimals: r.Decimals,
	}
	if withYield && r.Yield != nil {
		apr := r.Yield.APR
		asset.YieldAPR = &apr
	}
	return asset
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
