package strategy

import "math"

const (
	MinLeverage = 1.0
	MaxLeverage = 5.0
	// leverageSteps per unit gives the slider's 0.1 step.
	leverageSteps = 10

	// DLPRebateRate is the flat annotation shown next to every return figure.
	DLPRebateRate = 0.05
)

const LockNotice = "Lock 5% of your Total Looped Position Size in dLP to receive rebates on interest paid."

type RiskLevel string

const (
	LeverageLow      RiskLevel = "low"
	LeverageModerate RiskLevel = "moderate"
	LeverageHigh     RiskLevel = "high"
)

type LeverageAdvice struct {
	Level   RiskLevel `json:"level"`
	Message string    `json:"message"`
}

// ClampLeverage snaps x onto the slider range [1,5] in 0.1 steps.
func ClampLeverage(x float64) float64 {
	if math.IsNaN(x) || x < MinLeverage {
		return MinLeverage
	}
	if x > MaxLeverage {
		return MaxLeverage
	}
	return math.Round(x*leverageSteps) / leverageSteps
}

func AdviseLeverage(x float64) LeverageAdvice {
	switch {
	case x > 3:
		return LeverageAdvice{Level: LeverageHigh, Message: "High leverage increases liquidation risk significantly"}
	case x > 2:
		return LeverageAdvice{Level: LeverageModerate, Message: "Moderate leverage risk, monitor positions carefully"}
	default:
		return LeverageAdvice{Level: LeverageLow, Message: "Low leverage position, relatively safe"}
	}
}

func DLPRebate(v float64) float64 {
	return v * DLPRebateRate
}
