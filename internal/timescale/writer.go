package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"loop-dash/internal/config"
	"loop-dash/internal/market"
	"loop-dash/internal/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	writeTimeout = 5 * time.Second
	apyTable     = "market_apys"
)

// APYRow is one market's rates at poll time.
type APYRow struct {
	Time             time.Time
	MarketID         string
	CollateralSymbol string
	LoanSymbol       string
	LTV              float64
	SupplyAPY        float64
	BorrowAPY        float64
	DailySupplyAPY   float64
	DailyBorrowAPY   float64
	LiquidityUSD     float64
	SupplyUSD        float64
	BorrowUSD        float64
}

// Writer appends market rate history asynchronously. A nil *Writer is a
// valid no-op, which is what New returns when disabled.
type Writer struct {
	db      *sql.DB
	log     *zap.Logger
	metrics *metrics.Metrics
	schema  string
	batches chan []APYRow
	started atomic.Bool
	dropped atomic.Uint64
}

func New(cfg config.TimescaleConfig, m *metrics.Metrics, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := newWriter(db, schema, queueSize, m, log)
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWriter(db *sql.DB, schema string, queueSize int, m *metrics.Metrics, log *zap.Logger) *Writer {
	if m == nil {
		m = metrics.NewNoop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:      db,
		log:     log,
		metrics: m,
		schema:  schema,
		batches: make(chan []APYRow, queueSize),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// RecordMarkets queues one row per market. When the queue is full the
// batch is dropped rather than blocking the poller.
func (w *Writer) RecordMarkets(at time.Time, markets []market.Market) {
	if w == nil || len(markets) == 0 {
		return
	}
	select {
	case w.batches <- RowsFor(at, markets):
	default:
		w.metrics.TimescaleDrops.Inc()
		if w.dropped.Add(1) == 1 {
			w.log.Warn("timescale queue full, dropping market history")
		}
	}
}

func RowsFor(at time.Time, markets []market.Market) []APYRow {
	rows := make([]APYRow, 0, len(markets))
	for _, m := range markets {
		rows = append(rows, APYRow{
			Time:             at,
			MarketID:         m.ID,
			CollateralSymbol: m.CollateralAsset.Symbol,
			LoanSymbol:       m.LoanAsset.Symbol,
			LTV:              m.LTV(),
			SupplyAPY:        m.State.SupplyAPY,
			BorrowAPY:        m.State.BorrowAPY,
			DailySupplyAPY:   m.DailyAPYs.SupplyAPY,
			DailyBorrowAPY:   m.DailyAPYs.BorrowAPY,
			LiquidityUSD:     m.State.LiquidityAssetsUSD,
			SupplyUSD:        m.State.SupplyAssetsUSD,
			BorrowUSD:        m.State.BorrowAssetsUSD,
		})
	}
	return rows
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rows := <-w.batches:
			if err := w.writeRows(ctx, rows); err != nil {
				w.log.Warn("timescale market_apys insert failed", zap.Int("rows", len(rows)), zap.Error(err))
			}
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		market_id TEXT NOT NULL,
		collateral_symbol TEXT NOT NULL,
		loan_symbol TEXT NOT NULL,
		ltv DOUBLE PRECISION NOT NULL,
		supply_apy DOUBLE PRECISION NOT NULL,
		borrow_apy DOUBLE PRECISION NOT NULL,
		daily_supply_apy DOUBLE PRECISION NOT NULL,
		daily_borrow_apy DOUBLE PRECISION NOT NULL,
		liquidity_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		supply_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		borrow_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (ts, market_id)
	)`, w.table(apyTable))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(apyTable))); err != nil {
		w.log.Warn("timescale market_apys hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeRows(ctx context.Context, rows []APYRow) error {
	if w.db == nil || len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, w.insertQuery())
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.Time,
			r.MarketID,
			r.CollateralSymbol,
			r.LoanSymbol,
			r.LTV,
			r.SupplyAPY,
			r.BorrowAPY,
			r.DailySupplyAPY,
			r.DailyBorrowAPY,
			r.LiquidityUSD,
			r.SupplyUSD,
			r.BorrowUSD,
		); err != nil {
			return fmt.Errorf("market %s: %w", r.MarketID, err)
		}
	}
	return tx.Commit()
}

func (w *Writer) insertQuery() string {
	return fmt.Sprintf(`INSERT INTO %s (
		ts, market_id, collateral_symbol, loan_symbol, ltv,
		supply_apy, borrow_apy, daily_supply_apy, daily_borrow_apy, liquidity_usd,
		supply_usd, borrow_usd
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
	)
	ON CONFLICT (ts, market_id) DO NOTHING`, w.table(apyTable))
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
