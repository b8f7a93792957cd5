package market

import (
	"strings"

	"github.com/shopspring/decimal"
)

// lltvScale is the fixed-point exponent of the API's LLTV values (1e18).
const lltvScale = 18

type Asset struct {
	Symbol   string   `json:"symbol" msgpack:"symbol"`
	PriceUSD *float64 `json:"priceUsd" msgpack:"price_usd"`
	Decimals int      `json:"decimals" msgpack:"decimals"`
	YieldAPR *float64 `json:"yieldApr,omitempty" msgpack:"yield_apr"`
}

type State struct {
	SupplyAPY          float64 `json:"supplyApy" msgpack:"supply_apy"`
	BorrowAPY          float64 `json:"borrowApy" msgpack:"borrow_apy"`
	SupplyAssetsUSD    float64 `json:"supplyAssetsUsd" msgpack:"supply_assets_usd"`
	BorrowAssetsUSD    float64 `json:"borrowAssetsUsd" msgpack:"borrow_assets_usd"`
	LiquidityAssetsUSD float64 `json:"liquidityAssetsUsd" msgpack:"liquidity_assets_usd"`
}

type DailyAPYs struct {
	SupplyAPY float64 `json:"supplyApy" msgpack:"supply_apy"`
	BorrowAPY float64 `json:"borrowApy" msgpack:"borrow_apy"`
}

// Market is an immutable snapshot of one lending market.
type Market struct {
	ID              string    `json:"id" msgpack:"id"`
	LLTV            string    `json:"lltv" msgpack:"lltv"`
	CollateralPrice string    `json:"collateralPrice,omitempty" msgpack:"collateral_price"`
	CollateralAsset Asset     `json:"collateralAsset" msgpack:"collateral_asset"`
	LoanAsset       Asset     `json:"loanAsset" msgpack:"loan_asset"`
	State           State     `json:"state" msgpack:"state"`
	DailyAPYs       DailyAPYs `json:"dailyApys" msgpack:"daily_apys"`
}

// LTV returns the liquidation loan-to-value as a fraction. An unparsable
// LLTV yields 0.
func (m Market) LTV() float64 {
	return ParseLLTV(m.LLTV)
}

func ParseLLTV(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0
	}
	return d.Shift(-lltvScale).InexactFloat64()
}

// Find returns the market with the given id.
func Find(markets []Market, id string) (Market, bool) {
	if id == "" {
		return Market{}, false
	}
	for _, m := range markets {
		if strings.EqualFold(m.ID, id) {
			return m, true
		}
	}
	return Market{}, false
}
