package market

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"loop-dash/internal/metrics"
	"loop-dash/internal/morpho"
	"loop-dash/internal/state"

	"go.uber.org/zap"
)

// Fetcher is the upstream market source.
type Fetcher interface {
	Markets(ctx context.Context, skip, first int) ([]morpho.RawMarket, error)
}

// Recorder receives every successful snapshot, e.g. for history storage.
type Recorder interface {
	RecordMarkets(at time.Time, markets []Market)
}

// Notifier delivers operator messages.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// Snapshot is what consumers see. Markets is empty while Loading or when
// Err is set.
type Snapshot struct {
	Markets   []Market
	Loading   bool
	Err       error
	UpdatedAt time.Time
	FromCache bool
}

type Options struct {
	PollInterval time.Duration
	Skip         int
	First        int
	Store        state.Store
	Metrics      *metrics.Metrics
	Recorder     Recorder
	Notifier     Notifier
}

type Gateway struct {
	fetcher  Fetcher
	log      *zap.Logger
	interval time.Duration
	skip     int
	first    int
	store    state.Store
	metrics  *metrics.Metrics
	recorder Recorder
	notifier Notifier

	started atomic.Bool
	refresh chan struct{}

	mu      sync.RWMutex
	snap    Snapshot
	failing bool
	subs    map[int]chan Snapshot
	nextSub int
}

func NewGateway(fetcher Fetcher, opts Options, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.First <= 0 {
		opts.First = 100
	}
	if opts.Skip < 0 {
		opts.Skip = 0
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	return &Gateway{
		fetcher:  fetcher,
		log:      log,
		interval: opts.PollInterval,
		skip:     opts.Skip,
		first:    opts.First,
		store:    opts.Store,
		metrics:  opts.Metrics,
		recorder: opts.Recorder,
		notifier: opts.Notifier,
		refresh:  make(chan struct{}, 1),
		snap:     Snapshot{Loading: true},
		subs:     make(map[int]chan Snapshot),
	}
}

// Start serves any cached snapshot immediately, then polls in the
// background until ctx is done. Calling Start twice is a no-op.
func (g *Gateway) Start(ctx context.Context) {
	if !g.started.CompareAndSwap(false, true) {
		return
	}
	g.loadCache(ctx)
	go g.run(ctx)
}

func (g *Gateway) run(ctx context.Context) {
	_ = g.Poll(ctx)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = g.Poll(ctx)
		case <-g.refresh:
			_ = g.Poll(ctx)
		}
	}
}

// Refresh asks the poll loop for an immediate fetch without waiting for it.
func (g *Gateway) Refresh() {
	select {
	case g.refresh <- struct{}{}:
	default:
	}
}

// Poll fetches once and replaces the snapshot wholesale.
func (g *Gateway) Poll(ctx context.Context) error {
	raw, err := g.fetcher.Markets(ctx, g.skip, g.first)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.metrics.PollsFailed.Inc()
		g.log.Warn("market poll failed", zap.Error(err))
		g.setFailure(ctx, err)
		return err
	}
	markets := Normalize(raw)
	now := time.Now().UTC()
	g.metrics.PollsSucceeded.Inc()
	g.metrics.MarketsTracked.Set(float64(len(markets)))
	g.log.Debug("market poll done", zap.Int("raw", len(raw)), zap.Int("markets", len(markets)))
	g.setMarkets(ctx, Snapshot{Markets: markets, UpdatedAt: now})
	if err := g.saveCache(ctx, markets, now); err != nil {
		g.log.Warn("market cache save failed", zap.Error(err))
	}
	if g.recorder != nil {
		g.recorder.RecordMarkets(now, markets)
	}
	return nil
}

// Snapshot returns the current state. The Markets slice is shared and must
// not be mutated.
func (g *Gateway) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snap
}

// Subscribe returns a channel receiving every new snapshot. Slow readers
// only ever see the latest one. The returned func unsubscribes.
func (g *Gateway) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = ch
	g.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subs, id)
			g.mu.Unlock()
		})
	}
}

func (g *Gateway) setMarkets(ctx context.Context, snap Snapshot) {
	g.mu.Lock()
	recovered := g.failing
	g.failing = false
	g.snap = snap
	g.publishLocked()
	g.mu.Unlock()
	if recovered {
		g.notify(ctx, fmt.Sprintf("Market polling recovered: %d markets", len(snap.Markets)))
	}
}

func (g *Gateway) setFailure(ctx context.Context, err error) {
	g.mu.Lock()
	first := !g.failing
	g.failing = true
	g.snap = Snapshot{Err: err, UpdatedAt: time.Now().UTC()}
	g.publishLocked()
	g.mu.Unlock()
	if first {
		g.notify(ctx, fmt.Sprintf("Market polling failing: %v", err))
	}
}

func (g *Gateway) publishLocked() {
	for _, ch := range g.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- g.snap:
		default:
		}
	}
}

func (g *Gateway) notify(ctx context.Context, message string) {
	if g.notifier == nil {
		return
	}
	if err := g.notifier.Send(ctx, message); err != nil {
		g.metrics.AlertsFailed.Inc()
		g.log.Warn("alert send failed", zap.Error(err))
	}
}
