package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"loop-dash/internal/market"
	"loop-dash/internal/metrics"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const writeTimeout = 5 * time.Second

// Source is the snapshot stream the hub fans out.
type Source interface {
	Snapshot() market.Snapshot
	Subscribe() (<-chan market.Snapshot, func())
}

// Hub upgrades HTTP requests to websockets and pushes every market
// snapshot to each connected client.
type Hub struct {
	source         Source
	pingInterval   time.Duration
	originPatterns []string
	metrics        *metrics.Metrics
	log            *zap.Logger
}

func NewHub(source Source, pingInterval time.Duration, m *metrics.Metrics, log *zap.Logger) *Hub {
	if m == nil {
		m = metrics.NewNoop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{source: source, pingInterval: pingInterval, metrics: m, log: log}
}

// AllowOrigins permits cross-origin browser connections from hosts
// matching the given patterns.
func (h *Hub) AllowOrigins(patterns ...string) {
	h.originPatterns = append(h.originPatterns, patterns...)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.log.Debug("feed accept failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close(websocket.StatusInternalError, "feed closed") }()
	h.metrics.FeedClients.Inc()
	h.log.Debug("feed client connected", zap.String("remote", r.RemoteAddr))

	// Clients never send; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	err = h.serve(ctx, conn)
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	h.log.Debug("feed client dropped", zap.Error(err))
}

func (h *Hub) serve(ctx context.Context, conn *websocket.Conn) error {
	updates, unsubscribe := h.source.Subscribe()
	defer unsubscribe()

	if err := writeUpdate(ctx, conn, FromSnapshot(h.source.Snapshot())); err != nil {
		return err
	}

	var ping <-chan time.Time
	if h.pingInterval > 0 {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-updates:
			if err := writeUpdate(ctx, conn, FromSnapshot(snap)); err != nil {
				return err
			}
		case <-ping:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func writeUpdate(ctx context.Context, conn *websocket.Conn, u Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
