package morpho

import (
	"context"
	"errors"
)

// ErrNoMarkets is returned when the response carries no markets object at all.
var ErrNoMarkets = errors.New("markets missing from response")

const marketsOperation = "GetMarkets"

const marketsQuery = `query GetMarkets($skip: Int, $first: Int) {
  markets(skip: $skip, first: $first) {
    items {
      id
      lltv
      collateralPrice
      loanAsset {
        symbol
        priceUsd
        decimals
      }
      collateralAsset {
        symbol
        priceUsd
        decimals
        yield {
          apr
        }
      }
      dailyApys {
        borrowApy
        supplyApy
      }
      state {
        supplyApy
        borrowApy
        supplyAssetsUsd
        borrowAssetsUsd
        liquidityAssetsUsd
      }
    }
  }
}`

type RawAsset struct {
	Symbol   string   `json:"symbol"`
	PriceUSD *float64 `json:"priceUsd"`
	Decimals int      `json:"decimals"`
	Yield    *struct {
		APR float64 `json:"apr"`
	} `json:"yield"`
}

type RawState struct {
	SupplyAPY          float64  `json:"supplyApy"`
	BorrowAPY          float64  `json:"borrowApy"`
	SupplyAssetsUSD    float64  `json:"supplyAssetsUsd"`
	BorrowAssetsUSD    float64  `json:"borrowAssetsUsd"`
	LiquidityAssetsUSD *float64 `json:"liquidityAssetsUsd"`
}

type RawDailyAPYs struct {
	BorrowAPY float64 `json:"borrowApy"`
	SupplyAPY float64 `json:"supplyApy"`
}

// RawMarket is one item as returned by the API. Nested objects are pointers
// so records with missing members can be told apart from zero values.
type RawMarket struct {
	ID              string        `json:"id"`
	LLTV            BigInt        `json:"lltv"`
	CollateralPrice BigInt        `json:"collateralPrice"`
	LoanAsset       *RawAsset     `json:"loanAsset"`
	CollateralAsset *RawAsset     `json:"collateralAsset"`
	DailyAPYs       *RawDailyAPYs `json:"dailyApys"`
	State           *RawState     `json:"state"`
}

type marketsData struct {
	Markets *struct {
		Items []*RawMarket `json:"items"`
	} `json:"markets"`
}

// Markets fetches one page of markets. Null items are skipped.
func (c *Client) Markets(ctx context.Context, skip, first int) ([]RawMarket, error) {
	var data marketsData
	vars := map[string]any{"skip": skip, "first": first}
	if err := c.Do(ctx, marketsOperation, marketsQuery, vars, &data); err != nil {
		return nil, err
	}
	if data.Markets == nil {
		return nil, ErrNoMarkets
	}
	out := make([]RawMarket, 0, len(data.Markets.Items))
	for _, item := range data.Markets.Items {
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}
