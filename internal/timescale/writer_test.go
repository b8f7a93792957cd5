package timescale

import (
	"strings"
	"testing"
	"time"

	"loop-dash/internal/config"
	"loop-dash/internal/market"
	"loop-dash/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestNewDisabledReturnsNil(t *testing.T) {
	w, err := New(config.TimescaleConfig{Enabled: false}, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if w != nil {
		t.Fatalf("expected nil writer when disabled")
	}
}

func TestNewRequiresDSN(t *testing.T) {
	if _, err := New(config.TimescaleConfig{Enabled: true}, nil, zap.NewNop()); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestNilWriterIsNoop(t *testing.T) {
	var w *Writer
	w.RecordMarkets(time.Now(), []market.Market{{ID: "0x1"}})
	if err := w.Close(); err != nil {
		t.Fatalf("expected nil close, got %v", err)
	}
}

func TestRowsForMapsMarkets(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	markets := []market.Market{{
		ID:              "0xabc",
		LLTV:            "860000000000000000",
		CollateralAsset: market.Asset{Symbol: "wstETH"},
		LoanAsset:       market.Asset{Symbol: "WETH"},
		State:           market.State{SupplyAPY: 0.02, BorrowAPY: 0.025, LiquidityAssetsUSD: 1e6},
		DailyAPYs:       market.DailyAPYs{SupplyAPY: 0.021, BorrowAPY: 0.026},
	}}
	rows := RowsFor(at, markets)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if !r.Time.Equal(at) || r.MarketID != "0xabc" {
		t.Fatalf("unexpected row identity: %+v", r)
	}
	if r.CollateralSymbol != "wstETH" || r.LoanSymbol != "WETH" {
		t.Fatalf("unexpected symbols: %+v", r)
	}
	if r.LTV < 0.859999 || r.LTV > 0.860001 {
		t.Fatalf("expected ltv 0.86, got %v", r.LTV)
	}
	if r.SupplyAPY != 0.02 || r.BorrowAPY != 0.025 || r.DailySupplyAPY != 0.021 || r.DailyBorrowAPY != 0.026 {
		t.Fatalf("unexpected rates: %+v", r)
	}
	if r.LiquidityUSD != 1e6 {
		t.Fatalf("expected liquidity 1e6, got %v", r.LiquidityUSD)
	}
}

func TestRecordMarketsDropsWhenFull(t *testing.T) {
	drops := prometheus.NewCounter(prometheus.CounterOpts{Name: "drops"})
	m := metrics.NewNoop()
	m.TimescaleDrops = drops
	w := newWriter(nil, "public", 1, m, zap.NewNop())
	markets := []market.Market{{ID: "0x1"}}
	w.RecordMarkets(time.Now(), markets)
	w.RecordMarkets(time.Now(), markets)
	w.RecordMarkets(time.Now(), nil)
	if got := w.dropped.Load(); got != 1 {
		t.Fatalf("expected 1 dropped batch, got %d", got)
	}
	if got := testutil.ToFloat64(drops); got != 1 {
		t.Fatalf("expected drop counter 1, got %v", got)
	}
}

func TestInsertQueryUsesSchema(t *testing.T) {
	w := newWriter(nil, "loop", 1, nil, zap.NewNop())
	if !strings.Contains(w.insertQuery(), "INSERT INTO loop.market_apys") {
		t.Fatalf("unexpected query: %s", w.insertQuery())
	}
}
