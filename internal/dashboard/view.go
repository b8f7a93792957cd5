package dashboard

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"loop-dash/internal/market"
	"loop-dash/internal/strategy"
	"loop-dash/internal/vault"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusLoading Status = "loading"
	StatusError   Status = "error"
	StatusReady   Status = "ready"
)

// lowHealth marks health factors shown as at risk.
const lowHealth = 1.1

type StrategyOption struct {
	strategy.Strategy
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

type YieldComponents struct {
	SupplyAPY   string `json:"supplyApy"`
	BorrowAPY   string `json:"borrowApy"`
	StrategyAPY string `json:"strategyApy"`
	NetAPY      string `json:"netApy"`
}

type PeriodReturn struct {
	Period string `json:"period"`
	Amount string `json:"amount"`
	Rebate string `json:"rebate"`
}

// Quote is the numeric result for a position. HealthFactor is nil when it
// is unbounded.
type Quote struct {
	MarketID      string                   `json:"marketId,omitempty"`
	StrategyID    string                   `json:"strategyId"`
	CollateralUSD float64                  `json:"collateralUsd"`
	BorrowUSD     float64                  `json:"borrowUsd"`
	Leverage      float64                  `json:"leverage"`
	LTV           float64                  `json:"ltv"`
	MaxBorrow     float64                  `json:"maxBorrow"`
	HealthFactor  *float64                 `json:"healthFactor"`
	OverBorrowed  bool                     `json:"overBorrowed"`
	Returns       strategy.Returns         `json:"returns"`
	Advice        *strategy.LeverageAdvice `json:"leverageAdvice,omitempty"`
}

// View is everything the page renders. Only Status, Error and the input
// echo are populated unless Status is ready.
type View struct {
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	FromCache bool      `json:"fromCache"`
	Input     Input     `json:"input"`

	Vaults     []vault.Option     `json:"vaults"`
	Strategies []StrategyOption   `json:"strategies"`
	Strategy   *strategy.Strategy `json:"strategy,omitempty"`
	RiskBadge  string             `json:"riskBadge"`

	CollateralTokens string `json:"collateralTokens"`
	BorrowTokens     string `json:"borrowTokens"`
	OverBorrowed     bool   `json:"overBorrowed"`

	ShowLeverage   bool                    `json:"showLeverage"`
	LeverageLabel  string                  `json:"leverageLabel"`
	LeverageAdvice strategy.LeverageAdvice `json:"leverageAdvice"`

	MaxBorrow    string `json:"maxBorrow"`
	LTV          string `json:"ltv"`
	HealthFactor string `json:"healthFactor"`
	HealthLow    bool   `json:"healthLow"`

	Components YieldComponents `json:"components"`
	Returns    []PeriodReturn  `json:"returns"`
	LockNotice string          `json:"lockNotice"`

	Quote Quote `json:"quote"`
}

// Build derives the page state from the latest market snapshot and the
// user's form. It is pure and cheap enough to run on every request.
func Build(snap market.Snapshot, in Input) View {
	in.Leverage = strategy.ClampLeverage(in.Leverage)
	v := View{
		UpdatedAt: snap.UpdatedAt,
		FromCache: snap.FromCache,
		Input:     in,
	}
	switch {
	case snap.Loading:
		v.Status = StatusLoading
		return v
	case snap.Err != nil:
		v.Status = StatusError
		v.Error = snap.Err.Error()
		return v
	}
	v.Status = StatusReady

	var selected *market.Market
	if m, ok := market.Find(snap.Markets, in.MarketID); ok {
		selected = &m
	}
	var strat *strategy.Strategy
	if s, ok := strategy.Find(in.StrategyID); ok {
		strat = &s
	}

	v.Vaults = vault.Options(snap.Markets, in.MarketID)
	v.Strategies = strategyOptions(in.StrategyID)
	v.Strategy = strat
	if strat != nil {
		v.RiskBadge = riskBadge(strat.Risk)
		v.ShowLeverage = strat.IsLeveraged
	}

	collateral := strategy.ParseAmount(in.Collateral)
	borrow := strategy.ParseAmount(in.Borrow)
	maxBorrow := strategy.MaxBorrow(selected, collateral)
	health := strategy.HealthFactor(selected, collateral, borrow)
	returns := strategy.CalculateReturns(selected, strat, collateral, borrow, in.Leverage)
	advice := strategy.AdviseLeverage(in.Leverage)

	v.CollateralTokens = tokenAmount(selected, collateral, true)
	v.BorrowTokens = tokenAmount(selected, borrow, false)
	v.OverBorrowed = strategy.IsOverBorrowed(borrow, maxBorrow)

	v.LeverageLabel = strconv.FormatFloat(in.Leverage, 'f', -1, 64) + "x"
	v.LeverageAdvice = advice

	var ltv float64
	if selected != nil {
		ltv = selected.LTV()
	}
	v.MaxBorrow = "$" + fixed(maxBorrow, 2)
	v.LTV = fixed(ltv*100, 2) + "%"
	v.HealthFactor = formatHealth(health)
	v.HealthLow = health < lowHealth

	v.Components = YieldComponents{
		SupplyAPY:   "+" + fixed(returns.Components.BaseAPY, 2) + "%",
		BorrowAPY:   "-" + fixed(returns.Components.BorrowCost, 2) + "%",
		StrategyAPY: "+" + fixed(returns.Components.StrategyAPY, 2) + "%",
		NetAPY:      fixed(returns.Yearly, 2) + "%",
	}
	v.Returns = []PeriodReturn{
		periodReturn("Daily", returns.Daily),
		periodReturn("Weekly", returns.Weekly),
		periodReturn("Monthly", returns.Monthly),
		periodReturn("Yearly", returns.Yearly),
	}
	v.LockNotice = strategy.LockNotice

	v.Quote = Quote{
		StrategyID:    in.StrategyID,
		CollateralUSD: collateral,
		BorrowUSD:     borrow,
		Leverage:      in.Leverage,
		LTV:           ltv,
		MaxBorrow:     maxBorrow,
		OverBorrowed:  v.OverBorrowed,
		Returns:       returns,
	}
	if selected != nil {
		v.Quote.MarketID = selected.ID
	}
	if !math.IsInf(health, 0) && !math.IsNaN(health) {
		h := health
		v.Quote.HealthFactor = &h
	}
	if v.ShowLeverage {
		v.Quote.Advice = &advice
	}
	return v
}

func strategyOptions(selectedID string) []StrategyOption {
	catalog := strategy.Catalog()
	out := make([]StrategyOption, 0, len(catalog))
	for _, s := range catalog {
		out = append(out, StrategyOption{
			Strategy: s,
			Label:    fmt.Sprintf("%s (%s%% Base APY)", s.Name, strconv.FormatFloat(s.APY, 'f', -1, 64)),
			Selected: s.ID == selectedID,
		})
	}
	return out
}

func riskBadge(r strategy.Risk) string {
	if r == strategy.RiskLow {
		return "green"
	}
	return "yellow"
}

// tokenAmount converts a USD amount into collateral or loan tokens. A
// missing or zero price counts as 1.
func tokenAmount(m *market.Market, usd float64, collateral bool) string {
	if m == nil {
		return "0.0000"
	}
	asset := m.LoanAsset
	if collateral {
		asset = m.CollateralAsset
	}
	price := 1.0
	if asset.PriceUSD != nil && *asset.PriceUSD != 0 {
		price = *asset.PriceUSD
	}
	return fixed(usd/price, 4) + " " + asset.Symbol
}

func formatHealth(h float64) string {
	if math.IsInf(h, 1) {
		return "∞"
	}
	return fixed(h, 2)
}

func periodReturn(period string, v float64) PeriodReturn {
	return PeriodReturn{
		Period: period,
		Amount: "$" + fixed(v, 4),
		Rebate: "+$" + fixed(strategy.DLPRebate(v), 4) + " (dLP)",
	}
}

// fixed formats v with a fixed number of decimals, rounding half away from
// zero.
// float64 values have at most this many fractional decimal digits.
const exactFracDigits = 1074

// fixed rounds the exact binary value of v half away from zero, the way a
// browser's toFixed does. 1.005 is stored just below 1.005 and gives "1.00".
func fixed(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', int(places), 64)
	}
	exact := new(big.Float).SetFloat64(v).Text('f', exactFracDigits)
	return decimal.RequireFromString(exact).StringFixed(places)
}
