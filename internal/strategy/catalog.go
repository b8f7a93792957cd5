package strategy

type Risk string

const (
	RiskLow      Risk = "Low"
	RiskMedium   Risk = "Medium"
	RiskVariable Risk = "Variable"
)

// Strategy is a yield destination for borrowed funds. APY is in percent
// (3.8 means 3.8%), unlike market rates which are fractions.
type Strategy struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	APY         float64 `json:"apy"`
	Risk        Risk    `json:"risk"`
	IsLeveraged bool    `json:"isLeveraged"`
}

const DefaultID = "leverage-eth"

var catalog = []Strategy{
	{
		ID:          "leverage-eth",
		Name:        "Leveraged ETH",
		Description: "ETH staking with leverage",
		APY:         3.8,
		Risk:        RiskVariable,
		IsLeveraged: true,
	},
	{
		ID:          "ycrv",
		Name:        "yCRV Vault",
		Description: "Curve ETH/stETH LP Strategy",
		APY:         4.5,
		Risk:        RiskLow,
	},
	{
		ID:          "pendle",
		Name:        "Pendle ETH LP",
		Description: "Pendle Market Making",
		APY:         6.2,
		Risk:        RiskMedium,
	},
}

// Catalog returns a copy of the built-in strategies in display order.
func Catalog() []Strategy {
	out := make([]Strategy, len(catalog))
	copy(out, catalog)
	return out
}

func Find(id string) (Strategy, bool) {
	for _, s := range catalog {
		if s.ID == id {
			return s, true
		}
	}
	return Strategy{}, false
}
