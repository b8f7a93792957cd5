package market

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"loop-dash/internal/morpho"
	"loop-dash/internal/state/sqlite"

	"go.uber.org/zap"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	skip  int
	first int
	raw   []morpho.RawMarket
	err   error
}

func (f *fakeFetcher) Markets(ctx context.Context, skip, first int) ([]morpho.RawMarket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.skip = skip
	f.first = first
	if f.err != nil {
		return nil, f.err
	}
	return f.raw, nil
}

func (f *fakeFetcher) set(raw []morpho.RawMarket, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = raw
	f.err = err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Send(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

type recordingRecorder struct {
	mu    sync.Mutex
	count int
}

func (r *recordingRecorder) RecordMarkets(at time.Time, markets []Market) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count += len(markets)
}

func TestGatewayLoadingUntilFirstResponse(t *testing.T) {
	g := NewGateway(&fakeFetcher{}, Options{}, zap.NewNop())
	snap := g.Snapshot()
	if !snap.Loading {
		t.Fatalf("expected loading before first poll")
	}
	if len(snap.Markets) != 0 {
		t.Fatalf("expected empty list while loading")
	}
}

func TestGatewayPollUsesPageParameters(t *testing.T) {
	f := &fakeFetcher{raw: []morpho.RawMarket{completeRaw("0x01", "WETH", ptr(1))}}
	g := NewGateway(f, Options{First: 100, Skip: 0}, zap.NewNop())
	if err := g.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if f.first != 100 || f.skip != 0 {
		t.Fatalf("expected first=100 skip=0, got first=%d skip=%d", f.first, f.skip)
	}
	snap := g.Snapshot()
	if snap.Loading || snap.Err != nil || len(snap.Markets) != 1 {
		t.Fatalf("unexpected snapshot %#v", snap)
	}
}

func TestGatewayErrorBlanksMarkets(t *testing.T) {
	f := &fakeFetcher{raw: []morpho.RawMarket{completeRaw("0x01", "WETH", ptr(1))}}
	g := NewGateway(f, Options{}, zap.NewNop())
	if err := g.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	boom := errors.New("network down")
	f.set(nil, boom)
	if err := g.Poll(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected poll error, got %v", err)
	}
	snap := g.Snapshot()
	if !errors.Is(snap.Err, boom) {
		t.Fatalf("expected error surfaced unmodified, got %v", snap.Err)
	}
	if len(snap.Markets) != 0 {
		t.Fatalf("expected markets blanked on error, got %d", len(snap.Markets))
	}
	if snap.Loading {
		t.Fatalf("expected loading false after error")
	}
}

func TestGatewayAlertsOnTransitionsOnly(t *testing.T) {
	f := &fakeFetcher{err: errors.New("down")}
	n := &recordingNotifier{}
	g := NewGateway(f, Options{Notifier: n}, zap.NewNop())
	ctx := context.Background()
	_ = g.Poll(ctx)
	_ = g.Poll(ctx)
	f.set([]morpho.RawMarket{completeRaw("0x01", "WETH", nil)}, nil)
	_ = g.Poll(ctx)
	_ = g.Poll(ctx)
	if len(n.messages) != 2 {
		t.Fatalf("expected 2 alerts, got %v", n.messages)
	}
	if !strings.Contains(n.messages[0], "failing") || !strings.Contains(n.messages[1], "recovered") {
		t.Fatalf("unexpected alerts %v", n.messages)
	}
}

func TestGatewayRecordsSuccessfulPolls(t *testing.T) {
	f := &fakeFetcher{raw: []morpho.RawMarket{completeRaw("0x01", "WETH", nil), completeRaw("0x02", "DAI", nil)}}
	rec := &recordingRecorder{}
	g := NewGateway(f, Options{Recorder: rec}, zap.NewNop())
	if err := g.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if rec.count != 2 {
		t.Fatalf("expected 2 recorded markets, got %d", rec.count)
	}
}

func TestGatewayServesCacheBeforeNetwork(t *testing.T) {
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	warm := NewGateway(&fakeFetcher{raw: []morpho.RawMarket{completeRaw("0x01", "WETH", ptr(7))}}, Options{Store: store}, zap.NewNop())
	if err := warm.Poll(ctx); err != nil {
		t.Fatalf("warm poll: %v", err)
	}

	cold := NewGateway(&fakeFetcher{}, Options{Store: store}, zap.NewNop())
	cold.loadCache(ctx)
	snap := cold.Snapshot()
	if snap.Loading {
		t.Fatalf("expected cached snapshot to end loading")
	}
	if !snap.FromCache || len(snap.Markets) != 1 || snap.Markets[0].State.LiquidityAssetsUSD != 7 {
		t.Fatalf("unexpected cached snapshot %#v", snap)
	}
}

func TestGatewaySubscribeReceivesLatest(t *testing.T) {
	f := &fakeFetcher{raw: []morpho.RawMarket{completeRaw("0x01", "WETH", nil)}}
	g := NewGateway(f, Options{}, zap.NewNop())
	ch, cancel := g.Subscribe()
	defer cancel()
	ctx := context.Background()
	_ = g.Poll(ctx)
	f.set([]morpho.RawMarket{completeRaw("0x01", "WETH", nil), completeRaw("0x02", "WETH", nil)}, nil)
	_ = g.Poll(ctx)
	select {
	case snap := <-ch:
		if len(snap.Markets) != 2 {
			t.Fatalf("expected latest snapshot with 2 markets, got %d", len(snap.Markets))
		}
	default:
		t.Fatalf("expected a pending snapshot")
	}
	cancel()
	_ = g.Poll(ctx)
	select {
	case <-ch:
		t.Fatalf("expected no delivery after unsubscribe")
	default:
	}
}

func TestGatewayStartPollsAndRefreshes(t *testing.T) {
	f := &fakeFetcher{raw: []morpho.RawMarket{completeRaw("0x01", "WETH", nil)}}
	g := NewGateway(f, Options{PollInterval: time.Hour}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)
	g.Start(ctx)
	waitFor(t, func() bool { return f.callCount() >= 1 })
	g.Refresh()
	waitFor(t, func() bool { return f.callCount() >= 2 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
