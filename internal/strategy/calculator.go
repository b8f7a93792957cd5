package strategy

import (
	"math"
	"strconv"
	"strings"

	"loop-dash/internal/market"
)

const (
	daysPerYear   = 365
	weeksPerYear  = 52
	monthsPerYear = 12
)

type Components struct {
	BaseAPY     float64 `json:"baseApy"`
	StrategyAPY float64 `json:"strategyApy"`
	BorrowCost  float64 `json:"borrowCost"`
}

// Returns holds projected earnings. Yearly adds the USD supply and borrow
// legs to StrategyYield, which is on a percent scale; callers get the
// legs separately as well.
type Returns struct {
	Daily      float64    `json:"daily"`
	Weekly     float64    `json:"weekly"`
	Monthly    float64    `json:"monthly"`
	Yearly     float64    `json:"yearly"`
	Components Components `json:"components"`

	SupplyYield   float64 `json:"supplyYield"`
	BorrowCost    float64 `json:"borrowCost"`
	StrategyYield float64 `json:"strategyYield"`
}

// ParseAmount reads a user-entered USD amount. Anything unparsable is 0.
func ParseAmount(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func MaxBorrow(m *market.Market, collateralUSD float64) float64 {
	if collateralUSD == 0 || m == nil {
		return 0
	}
	return collateralUSD * m.LTV()
}

// HealthFactor is max borrow over current borrow, +Inf when nothing is
// borrowed or no market is selected.
func HealthFactor(m *market.Market, collateralUSD, borrowUSD float64) float64 {
	if borrowUSD == 0 || m == nil {
		return math.Inf(1)
	}
	return collateralUSD * m.LTV() / borrowUSD
}

func IsOverBorrowed(borrowUSD, maxBorrow float64) bool {
	return borrowUSD > maxBorrow
}

// CalculateReturns projects yield for a position. Without a market or a
// strategy every figure is zero.
func CalculateReturns(m *market.Market, s *Strategy, collateralUSD, borrowUSD, leverage float64) Returns {
	if m == nil || s == nil {
		return Returns{}
	}
	supplyYield := collateralUSD * m.State.SupplyAPY
	borrowCost := borrowUSD * m.State.BorrowAPY
	strategyYield := borrowUSD * s.APY / 100
	strategyAPY := s.APY
	if s.IsLeveraged {
		strategyYield = borrowUSD * s.APY * leverage / 100
		strategyAPY = s.APY * leverage
	}
	net := supplyYield - borrowCost + strategyYield
	return Returns{
		Daily:   net / daysPerYear,
		Weekly:  net / weeksPerYear,
		Monthly: net / monthsPerYear,
		Yearly:  net,
		Components: Components{
			BaseAPY:     m.State.SupplyAPY * 100,
			StrategyAPY: strategyAPY,
			BorrowCost:  m.State.BorrowAPY * 100,
		},
		SupplyYield:   supplyYield,
		BorrowCost:    borrowCost,
		StrategyYield: strategyYield,
	}
}
