package market

import (
	"context"
	"time"

	"loop-dash/internal/state"

	"go.uber.org/zap"
)

type cachedSnapshot struct {
	Markets   []Market  `msgpack:"markets"`
	UpdatedAt time.Time `msgpack:"updated_at"`
}

func (g *Gateway) loadCache(ctx context.Context) {
	if g.store == nil {
		return
	}
	var cached cachedSnapshot
	ok, err := state.LoadSnapshot(ctx, g.store, state.MarketsSnapshotKey, &cached)
	if err != nil {
		g.log.Warn("market cache load failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	g.mu.Lock()
	// A network result may already have landed.
	if !g.snap.Loading {
		g.mu.Unlock()
		return
	}
	g.snap = Snapshot{Markets: cached.Markets, UpdatedAt: cached.UpdatedAt, FromCache: true}
	g.publishLocked()
	g.mu.Unlock()
	g.metrics.CacheLoads.Inc()
	g.metrics.MarketsTracked.Set(float64(len(cached.Markets)))
	g.log.Info("served cached markets", zap.Int("markets", len(cached.Markets)), zap.Time("cached_at", cached.UpdatedAt))
}

func (g *Gateway) saveCache(ctx context.Context, markets []Market, at time.Time) error {
	if g.store == nil {
		return nil
	}
	return state.SaveSnapshot(ctx, g.store, state.MarketsSnapshotKey, cachedSnapshot{Markets: markets, UpdatedAt: at})
}
