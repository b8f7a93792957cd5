package dashboard

import (
	"net/url"
	"strconv"
	"strings"

	"loop-dash/internal/strategy"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Input is the user's position form. Amounts stay as typed so the page can
// echo them back; they are parsed leniently when computing.
type Input struct {
	Collateral string  `json:"collateral"`
	Borrow     string  `json:"borrow"`
	MarketID   string  `json:"vault"`
	StrategyID string  `json:"strategy"`
	Leverage   float64 `json:"leverage"`
}

func DefaultInput() Input {
	return Input{StrategyID: strategy.DefaultID, Leverage: strategy.MinLeverage}
}

// ParseInput reads the form from query parameters. Missing or malformed
// values fall back to defaults instead of failing.
func ParseInput(q url.Values) Input {
	in := DefaultInput()
	in.Collateral = strings.TrimSpace(q.Get("collateral"))
	in.Borrow = strings.TrimSpace(q.Get("borrow"))
	in.MarketID = CanonicalMarketID(q.Get("vault"))
	if id := strings.TrimSpace(q.Get("strategy")); id != "" {
		in.StrategyID = id
	}
	if raw := strings.TrimSpace(q.Get("leverage")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			in.Leverage = v
		}
	}
	in.Leverage = strategy.ClampLeverage(in.Leverage)
	return in
}

// CanonicalMarketID normalises 32-byte hex market ids to lower-case 0x
// form. Anything else is returned trimmed.
func CanonicalMarketID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	hex := raw
	if len(hex) >= 2 && (hex[:2] == "0x" || hex[:2] == "0X") {
		hex = hex[2:]
	}
	b, err := hexutil.Decode("0x" + hex)
	if err != nil || len(b) != common.HashLength {
		return raw
	}
	return common.BytesToHash(b).Hex()
}

// Query encodes the input back into URL parameters.
func (in Input) Query() url.Values {
	q := url.Values{}
	if in.Collateral != "" {
		q.Set("collateral", in.Collateral)
	}
	if in.Borrow != "" {
		q.Set("borrow", in.Borrow)
	}
	if in.MarketID != "" {
		q.Set("vault", in.MarketID)
	}
	if in.StrategyID != "" {
		q.Set("strategy", in.StrategyID)
	}
	q.Set("leverage", strconv.FormatFloat(in.Leverage, 'f', -1, 64))
	return q
}
